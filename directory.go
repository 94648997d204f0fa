package access

import (
	"context"
)

var _ Directory = (*RepositoryDirectory)(nil)

// RepositoryDirectory binds the external Directory contract to the local
// session store and the bun-backed records repository. Deployments that talk
// to a remote service provide their own Directory instead.
type RepositoryDirectory struct {
	sessions *SessionStore
	records  Records
	logger   Logger
}

// DirectoryOption customizes RepositoryDirectory construction.
type DirectoryOption func(*RepositoryDirectory)

// WithDirectoryLogger overrides the logger.
func WithDirectoryLogger(logger Logger) DirectoryOption {
	return func(d *RepositoryDirectory) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// NewRepositoryDirectory wires a Directory from its two halves.
func NewRepositoryDirectory(sessions *SessionStore, records Records, opts ...DirectoryOption) *RepositoryDirectory {
	d := &RepositoryDirectory{
		sessions: sessions,
		records:  records,
		logger:   defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}

	return d
}

func (d *RepositoryDirectory) GetSession(ctx context.Context) (Session, error) {
	return d.sessions.GetSession(ctx)
}

func (d *RepositoryDirectory) OnSessionChange(fn func(Session)) func() {
	return d.sessions.OnSessionChange(fn)
}

func (d *RepositoryDirectory) SignOut(ctx context.Context) error {
	return d.sessions.SignOut(ctx)
}

func (d *RepositoryDirectory) FetchUserRecord(ctx context.Context, id string) (*UserRecord, error) {
	record, err := d.records.GetByUserID(ctx, id)
	if err != nil {
		d.logger.Debug("directory record fetch failed", "id", id, "error", err)
		return nil, err
	}
	return record, nil
}

func (d *RepositoryDirectory) UpdateUserRecord(ctx context.Context, id string, fields map[string]any) (*UserRecord, error) {
	return d.records.UpdateFields(ctx, id, fields)
}
