package access

import (
	"context"
	"strings"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Records is the repository behind the record side of the Directory contract.
type Records interface {
	repository.Repository[*UserRecord]

	Provision(ctx context.Context, record *UserRecord) (*UserRecord, error)
	ProvisionTx(ctx context.Context, tx bun.IDB, record *UserRecord) (*UserRecord, error)

	GetByUserID(ctx context.Context, id string, criteria ...repository.SelectCriteria) (*UserRecord, error)
	GetByUserIDTx(ctx context.Context, tx bun.IDB, id string, criteria ...repository.SelectCriteria) (*UserRecord, error)

	UpdateFields(ctx context.Context, id string, fields map[string]any) (*UserRecord, error)
	UpdateAccountStatus(ctx context.Context, id uuid.UUID, status AccountStatus, opts ...StatusUpdateOption) (*UserRecord, error)
	UpdateAccountStatusTx(ctx context.Context, tx bun.IDB, id uuid.UUID, status AccountStatus, opts ...StatusUpdateOption) (*UserRecord, error)
	UpdateKYCStatus(ctx context.Context, id uuid.UUID, status KYCStatus, reason string) (*UserRecord, error)

	Suspend(ctx context.Context, actor ActorRef, record *UserRecord, opts ...TransitionOption) (*UserRecord, error)
	Reinstate(ctx context.Context, actor ActorRef, record *UserRecord, opts ...TransitionOption) (*UserRecord, error)
	Block(ctx context.Context, actor ActorRef, record *UserRecord, opts ...TransitionOption) (*UserRecord, error)
}

type records struct {
	repository.Repository[*UserRecord]
	db                  *bun.DB
	stateMachine        AccountStateMachine
	stateMachineOptions []StateMachineOption
}

var (
	_ Records                            = (*records)(nil)
	_ repository.Repository[*UserRecord] = (*records)(nil)
)

// RecordsOption customizes the records repository.
type RecordsOption func(*records)

// NewRecordsRepository returns the bun-backed Records implementation.
func NewRecordsRepository(db *bun.DB, opts ...RecordsOption) Records {
	repo := repository.NewRepository[*UserRecord](db, repository.ModelHandlers[*UserRecord]{
		NewRecord: func() *UserRecord { return &UserRecord{} },
		GetID: func(r *UserRecord) uuid.UUID {
			if r == nil {
				return uuid.Nil
			}
			return r.ID
		},
		SetID: func(r *UserRecord, id uuid.UUID) {
			if r != nil {
				r.ID = id
			}
		},
	})

	repoRecords := &records{
		Repository: repo,
		db:         db,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(repoRecords)
		}
	}

	return repoRecords
}

// WithRecordsStateMachineOptions forwards options to the lazily built state machine.
func WithRecordsStateMachineOptions(options ...StateMachineOption) RecordsOption {
	return func(r *records) {
		if len(options) == 0 {
			return
		}
		r.stateMachineOptions = append(r.stateMachineOptions, options...)
		r.stateMachine = nil
	}
}

// WithRecordsStateMachine injects a custom lifecycle machine.
func WithRecordsStateMachine(sm AccountStateMachine) RecordsOption {
	return func(r *records) {
		r.stateMachine = sm
	}
}

func (a *records) Provision(ctx context.Context, record *UserRecord) (*UserRecord, error) {
	return a.ProvisionTx(ctx, a.db, record)
}

func (a *records) ProvisionTx(ctx context.Context, tx bun.IDB, record *UserRecord) (*UserRecord, error) {
	prepareRecordDefaults(record)
	return a.Repository.CreateTx(ctx, tx, record)
}

func (a *records) GetByUserID(ctx context.Context, id string, criteria ...repository.SelectCriteria) (*UserRecord, error) {
	return a.GetByUserIDTx(ctx, a.db, id, criteria...)
}

func (a *records) GetByUserIDTx(ctx context.Context, tx bun.IDB, id string, criteria ...repository.SelectCriteria) (*UserRecord, error) {
	trimmed := strings.TrimSpace(id)
	if _, err := uuid.Parse(trimmed); err != nil {
		return nil, repository.NewRecordNotFound().
			WithMetadata(map[string]any{
				"id": id,
			})
	}

	record := &UserRecord{}
	q := tx.NewSelect().Model(record)

	for _, c := range criteria {
		q.Apply(c)
	}

	err := q.
		Where("?TableAlias.id = ?", trimmed).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"id": id,
				})
		}
		return nil, err
	}

	record.EnsureStatus()
	return record, nil
}

func (a *records) UpdateFields(ctx context.Context, id string, fields map[string]any) (*UserRecord, error) {
	if len(fields) == 0 {
		return a.GetByUserID(ctx, id)
	}

	q := a.db.NewUpdate().
		Model((*UserRecord)(nil)).
		Where("?TableAlias.id = ?", id).
		Where("?TableAlias.deleted_at IS NULL")

	for column, value := range fields {
		q.Set("? = ?", bun.Ident(column), value)
	}
	q.Set("updated_at = ?", time.Now())

	if _, err := q.Exec(ctx); err != nil {
		return nil, err
	}

	return a.GetByUserID(ctx, id)
}

func (a *records) UpdateAccountStatus(ctx context.Context, id uuid.UUID, status AccountStatus, opts ...StatusUpdateOption) (*UserRecord, error) {
	return a.UpdateAccountStatusTx(ctx, a.db, id, status, opts...)
}

func (a *records) UpdateAccountStatusTx(ctx context.Context, tx bun.IDB, id uuid.UUID, status AccountStatus, opts ...StatusUpdateOption) (*UserRecord, error) {
	record := &UserRecord{
		ID:            id,
		AccountStatus: status,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(record)
		}
	}

	return a.Repository.UpdateTx(ctx, tx, record, repository.UpdateByID(id.String()))
}

func (a *records) UpdateKYCStatus(ctx context.Context, id uuid.UUID, status KYCStatus, reason string) (*UserRecord, error) {
	record := &UserRecord{
		ID:        id,
		KYCStatus: status,
	}

	// The rejection reason only makes sense alongside a rejection; clear it
	// on any other status so an old reason never resurfaces in the overlay.
	if status == KYCStatusRejected {
		record.KYCRejectionReason = reason
	}

	fields := map[string]any{
		"kyc_status":           record.KYCStatus,
		"kyc_rejection_reason": record.KYCRejectionReason,
	}

	return a.UpdateFields(ctx, id.String(), fields)
}

func (a *records) Suspend(ctx context.Context, actor ActorRef, record *UserRecord, opts ...TransitionOption) (*UserRecord, error) {
	return a.lifecycleMachine().Transition(ctx, actor, record, AccountStatusSuspended, opts...)
}

func (a *records) Reinstate(ctx context.Context, actor ActorRef, record *UserRecord, opts ...TransitionOption) (*UserRecord, error) {
	return a.lifecycleMachine().Transition(ctx, actor, record, AccountStatusActive, opts...)
}

func (a *records) Block(ctx context.Context, actor ActorRef, record *UserRecord, opts ...TransitionOption) (*UserRecord, error) {
	return a.lifecycleMachine().Transition(ctx, actor, record, AccountStatusBlocked, opts...)
}

// StatusUpdateOption allows callers to mutate the record before persisting status changes.
type StatusUpdateOption func(*UserRecord)

// WithSuspendedAt sets the SuspendedAt timestamp during a status transition.
func WithSuspendedAt(at *time.Time) StatusUpdateOption {
	return func(r *UserRecord) {
		r.SuspendedAt = at
	}
}

func prepareRecordDefaults(record *UserRecord) {
	if record == nil {
		return
	}

	if record.Role == "" {
		record.Role = RoleClient
	}

	record.EnsureStatus()

	if record.ID == uuid.Nil {
		if id, err := hashid.NewUUID(record.Email); err == nil {
			record.ID = id
		} else {
			record.ID = uuid.New()
		}
	}
}

func (a *records) lifecycleMachine() AccountStateMachine {
	if a.stateMachine == nil {
		a.stateMachine = NewAccountStateMachine(a, a.stateMachineOptions...)
	}
	return a.stateMachine
}
