package access

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"
)

// StateRepository is the bun-backed StateStore. It persists the reload
// surviving keys (impersonation override, logout flag) in the app_state
// table so sibling views and a reloaded process observe the same values.
type StateRepository struct {
	db *bun.DB
}

var _ StateStore = (*StateRepository)(nil)

// NewStateRepository returns a StateStore over the given bun DB.
func NewStateRepository(db *bun.DB) *StateRepository {
	return &StateRepository{db: db}
}

// Get returns the stored value for key and whether a row was present.
func (r *StateRepository) Get(ctx context.Context, key string) (string, bool, error) {
	record := &AppState{}
	err := r.db.NewSelect().
		Model(record).
		Where("?TableAlias.key = ?", key).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}

	return record.Value, true, nil
}

// Set upserts the value for key.
func (r *StateRepository) Set(ctx context.Context, key, value string) error {
	now := time.Now()
	record := &AppState{
		Key:       key,
		Value:     value,
		UpdatedAt: &now,
	}

	_, err := r.db.NewInsert().
		Model(record).
		On("CONFLICT (key) DO UPDATE").
		Set("value = EXCLUDED.value").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)

	return err
}

// Delete removes the row for key. Removing an absent key is a no-op.
func (r *StateRepository) Delete(ctx context.Context, key string) error {
	_, err := r.db.NewDelete().
		Model((*AppState)(nil)).
		Where("?TableAlias.key = ?", key).
		Exec(ctx)

	return err
}
