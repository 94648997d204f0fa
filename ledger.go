package access

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
)

// StartImpersonationPayload carries everything needed to open an override.
type StartImpersonationPayload struct {
	TargetUserID string `json:"target_user_id"`
	ActorID      string `json:"actor_id"`
	ActorRole    Role   `json:"actor_role"`
}

// Validate will validate the payload
func (p StartImpersonationPayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.TargetUserID, validation.Required, is.UUID),
		validation.Field(&p.ActorID, validation.Required),
		validation.Field(&p.ActorRole, validation.Required, validation.In(
			RoleClient,
			RoleManager,
			RoleAdmin,
		)),
	)
}

// Ledger holds the single optional impersonation override. The in-memory
// value is authoritative once loaded; the persisted copy exists so a full
// reload reproduces the same override instead of silently dropping back to
// the admin's own identity.
type Ledger struct {
	mu           sync.Mutex
	store        StateStore
	current      *ImpersonationOverride
	loaded       bool
	subs         map[int]func(*ImpersonationOverride)
	nextSub      int
	logger       Logger
	activitySink ActivitySink
	now          func() time.Time
}

// LedgerOption customizes Ledger construction.
type LedgerOption func(*Ledger)

// WithLedgerLogger overrides the logger.
func WithLedgerLogger(logger Logger) LedgerOption {
	return func(l *Ledger) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithLedgerClock injects a custom clock (useful for tests).
func WithLedgerClock(clock func() time.Time) LedgerOption {
	return func(l *Ledger) {
		if clock != nil {
			l.now = clock
		}
	}
}

// WithLedgerActivitySink sets the ActivitySink for impersonation events.
func WithLedgerActivitySink(sink ActivitySink) LedgerOption {
	return func(l *Ledger) {
		l.activitySink = normalizeActivitySink(sink)
	}
}

// NewLedger returns a ledger persisting overrides through store.
func NewLedger(store StateStore, opts ...LedgerOption) *Ledger {
	l := &Ledger{
		store:        store,
		subs:         map[int]func(*ImpersonationOverride){},
		logger:       defLogger{},
		activitySink: noopActivitySink{},
		now:          time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}

	return l
}

// Start opens an override for the payload's target. It requires a role that
// can impersonate and no override already active; on any failure the ledger
// state is left unchanged.
func (l *Ledger) Start(ctx context.Context, p StartImpersonationPayload) (*ImpersonationOverride, error) {
	if err := p.Validate(); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid impersonation request").
			WithCode(goerrors.CodeBadRequest)
	}

	if !CanImpersonate(p.ActorRole) {
		l.emit(ctx, ActivityEventImpersonationDenied, p, "role cannot impersonate")
		return nil, ErrForbidden.WithMetadata(map[string]any{
			"actor_id": p.ActorID,
			"role":     p.ActorRole,
		})
	}

	if p.TargetUserID == p.ActorID {
		l.emit(ctx, ActivityEventImpersonationDenied, p, "cannot impersonate self")
		return nil, ErrForbidden.WithMetadata(map[string]any{
			"actor_id": p.ActorID,
			"reason":   "cannot impersonate self",
		})
	}

	l.mu.Lock()

	if err := l.ensureLoaded(ctx); err != nil {
		l.mu.Unlock()
		return nil, err
	}

	if l.current != nil {
		active := l.current.TargetUserID
		l.mu.Unlock()
		return nil, ErrOverrideActive.WithMetadata(map[string]any{
			"active_target": active,
		})
	}

	override := &ImpersonationOverride{
		TargetUserID:     p.TargetUserID,
		StartedByAdminID: p.ActorID,
		StartedAt:        l.now(),
	}

	raw, err := json.Marshal(override)
	if err != nil {
		l.mu.Unlock()
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to serialize override")
	}

	// Persist before flipping memory: if the write fails the override never
	// existed, so a reload cannot resurrect a half-applied state.
	if err := l.store.Set(ctx, StateKeyImpersonation, string(raw)); err != nil {
		l.mu.Unlock()
		return nil, goerrors.Wrap(err, goerrors.CategoryOperation, "failed to persist override")
	}

	l.current = override
	listeners := l.listeners()
	l.mu.Unlock()

	l.notify(listeners, override)
	l.emit(ctx, ActivityEventImpersonationStarted, p, "")

	copied := *override
	return &copied, nil
}

// Stop clears the override. It is idempotent: stopping with nothing active
// is a no-op, not an error.
func (l *Ledger) Stop(ctx context.Context) error {
	l.mu.Lock()

	if err := l.ensureLoaded(ctx); err != nil {
		l.mu.Unlock()
		return err
	}

	if l.current == nil {
		l.mu.Unlock()
		return nil
	}

	if err := l.store.Delete(ctx, StateKeyImpersonation); err != nil {
		l.mu.Unlock()
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to clear override")
	}

	stopped := l.current
	l.current = nil
	listeners := l.listeners()
	l.mu.Unlock()

	l.notify(listeners, nil)
	l.emit(ctx, ActivityEventImpersonationStopped, StartImpersonationPayload{
		TargetUserID: stopped.TargetUserID,
		ActorID:      stopped.StartedByAdminID,
	}, "")

	return nil
}

// Current returns the active override, or nil. The first read after a reload
// falls back to the persisted copy.
func (l *Ledger) Current(ctx context.Context) (*ImpersonationOverride, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	if l.current == nil {
		return nil, nil
	}

	copied := *l.current
	return &copied, nil
}

// OnChange registers a callback invoked with the new override (nil when
// cleared) and returns its unsubscribe.
func (l *Ledger) OnChange(fn func(*ImpersonationOverride)) func() {
	if fn == nil {
		return func() {}
	}

	l.mu.Lock()
	id := l.nextSub
	l.nextSub++
	l.subs[id] = fn
	l.mu.Unlock()

	return func() {
		l.mu.Lock()
		delete(l.subs, id)
		l.mu.Unlock()
	}
}

// ensureLoaded reads the persisted override once per process lifetime.
// Callers must hold l.mu.
func (l *Ledger) ensureLoaded(ctx context.Context) error {
	if l.loaded {
		return nil
	}

	raw, ok, err := l.store.Get(ctx, StateKeyImpersonation)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to read persisted override")
	}

	l.loaded = true

	if !ok {
		return nil
	}

	override := &ImpersonationOverride{}
	if err := json.Unmarshal([]byte(raw), override); err != nil || override.TargetUserID == "" {
		// Corrupt payloads drop the override rather than wedging resolution.
		l.logger.Warn("discarding unreadable persisted override", "error", err)
		if delErr := l.store.Delete(ctx, StateKeyImpersonation); delErr != nil {
			l.logger.Error("failed to remove unreadable override", "error", delErr)
		}
		return nil
	}

	l.current = override
	return nil
}

// listeners snapshots subscribers. Callers must hold l.mu.
func (l *Ledger) listeners() []func(*ImpersonationOverride) {
	fns := make([]func(*ImpersonationOverride), 0, len(l.subs))
	for _, fn := range l.subs {
		fns = append(fns, fn)
	}
	return fns
}

// notify runs outside the lock so subscribers can read the ledger back.
func (l *Ledger) notify(listeners []func(*ImpersonationOverride), override *ImpersonationOverride) {
	for _, fn := range listeners {
		fn(override)
	}
}

func (l *Ledger) emit(ctx context.Context, eventType ActivityEventType, p StartImpersonationPayload, reason string) {
	metadata := map[string]any{
		"target_user_id": p.TargetUserID,
	}
	if reason != "" {
		metadata["reason"] = reason
	}

	event := ActivityEvent{
		EventType:  eventType,
		Actor:      ActorRef{ID: p.ActorID, Type: "user"},
		UserID:     p.TargetUserID,
		Metadata:   metadata,
		OccurredAt: l.now(),
	}

	if err := normalizeActivitySink(l.activitySink).Record(ctx, event); err != nil {
		l.logger.Warn("ledger activity sink error: %v", err)
	}
}
