package access

import (
	"context"
	"sync"

	goerrors "github.com/goliatone/go-errors"
)

var _ AuthProvider = (*SessionStore)(nil)

// SessionStore wraps the external auth provider's sign-in state. It is the
// sole writer of the current Session; every other component reads it through
// GetSession or subscribes with OnSessionChange.
type SessionStore struct {
	mu         sync.RWMutex
	current    Session
	signingKey []byte
	remote     func(ctx context.Context) error
	subs       map[int]func(Session)
	nextSub    int
	logger     Logger
}

// SessionStoreOption customizes SessionStore construction.
type SessionStoreOption func(*SessionStore)

// WithSessionStoreLogger overrides the logger.
func WithSessionStoreLogger(logger Logger) SessionStoreOption {
	return func(s *SessionStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithRemoteSignOut registers the provider call performed on SignOut. The
// call is best-effort: local state is cleared regardless of its result.
func WithRemoteSignOut(fn func(ctx context.Context) error) SessionStoreOption {
	return func(s *SessionStore) {
		s.remote = fn
	}
}

// NewSessionStore returns a store that mints sessions from provider tokens
// signed with signingKey.
func NewSessionStore(signingKey []byte, opts ...SessionStoreOption) *SessionStore {
	s := &SessionStore{
		signingKey: signingKey,
		subs:       map[int]func(Session){},
		logger:     defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	return s
}

// GetSession returns the current principal, or ErrUnauthenticated when no one
// is signed in.
func (s *SessionStore) GetSession(_ context.Context) (Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.current == nil {
		return nil, ErrUnauthenticated
	}
	return s.current, nil
}

// SetToken installs the session minted from a raw provider token and notifies
// subscribers. Called on sign-in and on reload when a persisted token is
// still present.
func (s *SessionStore) SetToken(raw string) error {
	session, err := SessionFromToken(raw, s.signingKey)
	if err != nil {
		s.logger.Error("session store token rejected", "error", err)
		return goerrors.Wrap(err, goerrors.CategoryAuth, "invalid session token").
			WithCode(goerrors.CodeUnauthorized)
	}

	s.setCurrent(session)
	return nil
}

// SetSession installs an already-built session. Used by providers that hand
// out principals without a token round trip.
func (s *SessionStore) SetSession(session Session) {
	s.setCurrent(session)
}

// Clear drops the current session and notifies subscribers.
func (s *SessionStore) Clear() {
	s.setCurrent(nil)
}

// SignOut invokes the remote provider sign-out and clears local state. The
// local transition never waits on the remote result.
func (s *SessionStore) SignOut(ctx context.Context) error {
	var err error
	if s.remote != nil {
		err = s.remote(ctx)
		if err != nil {
			s.logger.Warn("remote sign-out failed", "error", err)
		}
	}

	s.Clear()

	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "remote sign-out failed")
	}
	return nil
}

// OnSessionChange registers a change callback and returns its unsubscribe.
// Callbacks receive the new session, or nil on sign-out.
func (s *SessionStore) OnSessionChange(fn func(Session)) func() {
	if fn == nil {
		return func() {}
	}

	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

func (s *SessionStore) setCurrent(session Session) {
	s.mu.Lock()
	s.current = session
	listeners := make([]func(Session), 0, len(s.subs))
	for _, fn := range s.subs {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()

	// Notify outside the lock so subscribers can read the store back.
	for _, fn := range listeners {
		fn(session)
	}
}
