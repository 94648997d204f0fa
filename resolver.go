package access

import (
	"context"
	"sync"
)

// EffectiveIdentity is the single derived answer to "who is acting and whose
// data do we show". It is computed, never stored.
type EffectiveIdentity struct {
	// ActingUserID is the real logged-in principal, used for permission
	// checks regardless of who is being impersonated.
	ActingUserID string
	// EffectiveUserID is the id whose data should be displayed.
	EffectiveUserID string
	// Role is the acting principal's role.
	Role          Role
	Email         string
	Impersonating bool
	Override      *ImpersonationOverride
}

// Actor returns the acting principal as an audit reference.
func (e EffectiveIdentity) Actor() ActorRef {
	return ActorRef{ID: e.ActingUserID, Type: "user"}
}

// Resolver reconciles the session store, the impersonation ledger, and the
// effective user's record into one EffectiveIdentity. All consumers depend on
// it instead of re-implementing role checks per page.
type Resolver struct {
	provider AuthProvider
	ledger   *Ledger
	fetcher  *RecordFetcher
	logger   Logger

	mu            sync.Mutex
	lastEffective string
	subs          map[int]func()
	nextSub       int
	unsubs        []func()
}

// ResolverOption customizes Resolver construction.
type ResolverOption func(*Resolver)

// WithResolverLogger overrides the logger.
func WithResolverLogger(logger Logger) ResolverOption {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewResolver wires a resolver to its three inputs and subscribes to their
// change notifications so recomputation happens without waiting for the next
// navigation.
func NewResolver(provider AuthProvider, ledger *Ledger, fetcher *RecordFetcher, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		provider: provider,
		ledger:   ledger,
		fetcher:  fetcher,
		logger:   defLogger{},
		subs:     map[int]func(){},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}

	r.unsubs = append(r.unsubs, provider.OnSessionChange(r.sessionChanged))
	r.unsubs = append(r.unsubs, ledger.OnChange(func(*ImpersonationOverride) {
		r.recompute()
	}))

	return r
}

// Resolve returns the current effective identity, or ErrUnauthenticated when
// no principal is signed in. A change of the resolved effective id triggers a
// refetch of that id's record as a side effect.
func (r *Resolver) Resolve(ctx context.Context) (EffectiveIdentity, error) {
	session, err := r.provider.GetSession(ctx)
	if err != nil {
		if IsUnauthenticated(err) {
			return EffectiveIdentity{}, err
		}
		r.logger.Error("resolver session read failed", "error", err)
		return EffectiveIdentity{}, ErrUnauthenticated
	}

	if session == nil {
		return EffectiveIdentity{}, ErrUnauthenticated
	}

	identity := EffectiveIdentity{
		ActingUserID:    session.GetUserID(),
		EffectiveUserID: session.GetUserID(),
		Role:            sessionRole(session),
		Email:           session.GetEmail(),
	}

	// An override is only ever applied for privileged roles; a client's
	// resolution never even consults the ledger.
	if CanImpersonate(identity.Role) {
		override, err := r.ledger.Current(ctx)
		if err != nil {
			// Unreadable override resolves to acting-as-self, the most
			// restrictive interpretation available.
			r.logger.Warn("resolver override read failed", "error", err)
		} else if override != nil {
			identity.EffectiveUserID = override.TargetUserID
			identity.Impersonating = true
			identity.Override = override
		}
	}

	r.ensureRecord(ctx, identity.EffectiveUserID)

	return identity, nil
}

// Record returns the snapshot of the effective user's record, refetching if
// the snapshot belongs to a different identity. A failed snapshot is not
// retried implicitly; callers surface it and use RetryRecord.
func (r *Resolver) Record(ctx context.Context) RecordSnapshot {
	identity, err := r.Resolve(ctx)
	if err != nil {
		return RecordSnapshot{Err: err}
	}

	snap := r.fetcher.Snapshot()
	if snap.UserID != identity.EffectiveUserID {
		snap = r.fetcher.Refetch(ctx, identity.EffectiveUserID)
	}

	return snap
}

// RetryRecord forces a refetch of the current effective identity's record.
// It is the retry path surfaced when the guard reports a fetch failure.
func (r *Resolver) RetryRecord(ctx context.Context) RecordSnapshot {
	identity, err := r.Resolve(ctx)
	if err != nil {
		return RecordSnapshot{Err: err}
	}
	return r.fetcher.Refetch(ctx, identity.EffectiveUserID)
}

// Impersonate opens an override for targetUserID on behalf of the acting
// principal. The ledger enforces the role gate; the resolver only supplies
// the acting context.
func (r *Resolver) Impersonate(ctx context.Context, targetUserID string) (*ImpersonationOverride, error) {
	identity, err := r.Resolve(ctx)
	if err != nil {
		return nil, err
	}

	return r.ledger.Start(ctx, StartImpersonationPayload{
		TargetUserID: targetUserID,
		ActorID:      identity.ActingUserID,
		ActorRole:    identity.Role,
	})
}

// StopImpersonation clears any active override. Idempotent.
func (r *Resolver) StopImpersonation(ctx context.Context) error {
	return r.ledger.Stop(ctx)
}

// OnChange registers a callback invoked after every recomputation and returns
// its unsubscribe.
func (r *Resolver) OnChange(fn func()) func() {
	if fn == nil {
		return func() {}
	}

	r.mu.Lock()
	id := r.nextSub
	r.nextSub++
	r.subs[id] = fn
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		delete(r.subs, id)
		r.mu.Unlock()
	}
}

// Close detaches the resolver from its upstream subscriptions.
func (r *Resolver) Close() {
	for _, unsub := range r.unsubs {
		unsub()
	}
	r.unsubs = nil
}

func (r *Resolver) sessionChanged(session Session) {
	if session == nil {
		// The acting session ended: any override it owned dies with it.
		if err := r.ledger.Stop(context.Background()); err != nil {
			r.logger.Warn("failed to clear override on sign-out", "error", err)
		}

		r.mu.Lock()
		r.lastEffective = ""
		r.mu.Unlock()
		r.fetcher.Invalidate()
	}

	r.recompute()
}

func (r *Resolver) recompute() {
	ctx := context.Background()
	if _, err := r.Resolve(ctx); err != nil && !IsUnauthenticated(err) {
		r.logger.Error("resolver recompute failed", "error", err)
	}

	r.mu.Lock()
	listeners := make([]func(), 0, len(r.subs))
	for _, fn := range r.subs {
		listeners = append(listeners, fn)
	}
	r.mu.Unlock()

	for _, fn := range listeners {
		fn()
	}
}

func (r *Resolver) ensureRecord(ctx context.Context, effective string) {
	r.mu.Lock()
	changed := r.lastEffective != effective
	if changed {
		r.lastEffective = effective
	}
	r.mu.Unlock()

	if changed {
		r.fetcher.Refetch(ctx, effective)
	}
}
