package access

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// RepositoryManager exposes all repositories
type RepositoryManager interface {
	repository.Validator
	repository.TransactionManager
	Records() Records
	State() StateStore
}

type mngr struct {
	db      *bun.DB
	records Records
	state   *StateRepository
}

func NewRepositoryManager(db *bun.DB, opts ...RecordsOption) RepositoryManager {
	return &mngr{
		db:      db,
		records: NewRecordsRepository(db, opts...),
		state:   NewStateRepository(db),
	}
}

func (m mngr) Validate() error {
	if m.records == nil {
		return errors.New("repository records should be initialized")
	}

	if m.state == nil {
		return errors.New("repository state should be initialized")
	}

	return nil
}

func (m mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

func (m mngr) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, opts, f)
	}
}

func (m mngr) Records() Records {
	return m.records
}

func (m mngr) State() StateStore {
	return m.state
}
