package access

import (
	"context"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// DefaultMinLogoutDisplay guarantees the logging-out screen is perceptible
// even when the remote sign-out resolves instantly.
const DefaultMinLogoutDisplay = 1500 * time.Millisecond

// DefaultLogoutPollInterval is how often the persisted logout flag is polled
// for changes written by sibling views. In-process observers get pushed
// notifications; polling only covers writers outside this process.
const DefaultLogoutPollInterval = 250 * time.Millisecond

// LogoutCoordinator orchestrates sign-out: the visible logging-out state is
// set synchronously (and persisted for views that have not re-rendered yet),
// the remote sign-out never blocks the transition, and the final navigation
// replaces history so "back" cannot return to an authenticated page.
type LogoutCoordinator struct {
	provider  AuthProvider
	store     StateStore
	navigator Navigator

	loginPath    string
	minDisplay   time.Duration
	pollInterval time.Duration

	mu      sync.Mutex
	phase   LogoutPhase
	subs    map[int]func(LogoutPhase)
	nextSub int

	logger       Logger
	activitySink ActivitySink
	sleep        func(time.Duration)
}

// LogoutOption customizes coordinator construction.
type LogoutOption func(*LogoutCoordinator)

// WithLogoutLoginPath overrides the destination route.
func WithLogoutLoginPath(path string) LogoutOption {
	return func(c *LogoutCoordinator) {
		if path != "" {
			c.loginPath = path
		}
	}
}

// WithLogoutMinDisplay overrides the minimum visible duration of the
// logging-out screen.
func WithLogoutMinDisplay(d time.Duration) LogoutOption {
	return func(c *LogoutCoordinator) {
		if d >= 0 {
			c.minDisplay = d
		}
	}
}

// WithLogoutPollInterval overrides the persisted-flag polling interval.
func WithLogoutPollInterval(d time.Duration) LogoutOption {
	return func(c *LogoutCoordinator) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

// WithLogoutLogger overrides the logger.
func WithLogoutLogger(logger Logger) LogoutOption {
	return func(c *LogoutCoordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithLogoutActivitySink sets the sink receiving logout events.
func WithLogoutActivitySink(sink ActivitySink) LogoutOption {
	return func(c *LogoutCoordinator) {
		c.activitySink = normalizeActivitySink(sink)
	}
}

// WithLogoutSleeper injects the wait primitive (useful for tests).
func WithLogoutSleeper(sleep func(time.Duration)) LogoutOption {
	return func(c *LogoutCoordinator) {
		if sleep != nil {
			c.sleep = sleep
		}
	}
}

// NewLogoutCoordinator wires the coordinator to the provider, the persisted
// store, and the navigator performing the final redirect.
func NewLogoutCoordinator(provider AuthProvider, store StateStore, navigator Navigator, opts ...LogoutOption) *LogoutCoordinator {
	c := &LogoutCoordinator{
		provider:     provider,
		store:        store,
		navigator:    navigator,
		loginPath:    "/login",
		minDisplay:   DefaultMinLogoutDisplay,
		pollInterval: DefaultLogoutPollInterval,
		phase:        LogoutPhaseIdle,
		subs:         map[int]func(LogoutPhase){},
		logger:       defLogger{},
		activitySink: noopActivitySink{},
		sleep:        time.Sleep,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	return c
}

// Phase returns the current logout phase.
func (c *LogoutCoordinator) Phase() LogoutPhase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// OnPhaseChange registers a callback for phase transitions and returns its
// unsubscribe.
func (c *LogoutCoordinator) OnPhaseChange(fn func(LogoutPhase)) func() {
	if fn == nil {
		return func() {}
	}

	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

// Logout runs the full sequence. The user's intent to leave takes priority
// over best-effort remote invalidation: a failed sign-out still redirects,
// and the persisted flag is cleared either way so the UI cannot wedge in a
// permanent loading state on next load.
func (c *LogoutCoordinator) Logout(ctx context.Context) error {
	return c.LogoutWith(ctx, c.navigator)
}

// LogoutWith runs the sequence with a per-call navigator, for surfaces that
// carry their own redirect mechanism (e.g. an HTTP response).
func (c *LogoutCoordinator) LogoutWith(ctx context.Context, navigator Navigator) error {
	if navigator == nil {
		navigator = c.navigator
	}

	c.setPhase(LogoutPhaseLoggingOut)

	if err := c.store.Set(ctx, StateKeyLogout, stateFlagSet); err != nil {
		// The in-memory phase already flipped; sibling views in this process
		// are covered, only out-of-process observers miss the flag.
		c.logger.Warn("failed to persist logout flag", "error", err)
	}

	c.emit(ctx, ActivityEventLogoutStarted)

	signOutErr := c.provider.SignOut(ctx)
	if signOutErr != nil {
		c.logger.Error("remote sign-out failed, redirecting anyway", "error", signOutErr)
	}

	c.sleep(c.minDisplay)

	// A coordinator without any navigator still completes the sequence; the
	// caller owns the redirect in that configuration.
	if navigator == nil {
		c.logger.Warn("no navigator configured, skipping redirect", "path", c.loginPath)
	} else if err := navigator.Replace(c.loginPath); err != nil {
		c.logger.Error("logout navigation failed", "error", err)
	}

	if err := c.store.Delete(ctx, StateKeyLogout); err != nil {
		c.logger.Warn("failed to clear logout flag", "error", err)
	}

	c.setPhase(LogoutPhaseIdle)
	c.emit(ctx, ActivityEventLogoutCompleted)

	if signOutErr != nil {
		return goerrors.Wrap(signOutErr, goerrors.CategoryOperation, "sign-out failed after redirect").
			WithMetadata(map[string]any{
				"redirected": true,
			})
	}

	return nil
}

// Recover clears a leftover persisted flag. Called at startup: a flag that
// survived a crash mid-logout must not wedge the next load into a permanent
// logging-out screen.
func (c *LogoutCoordinator) Recover(ctx context.Context) error {
	_, ok, err := c.store.Get(ctx, StateKeyLogout)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to read logout flag")
	}

	if !ok {
		return nil
	}

	c.logger.Info("clearing stale logout flag from previous session")
	return c.store.Delete(ctx, StateKeyLogout)
}

// Watch polls the persisted flag so phase changes written by other processes
// become visible here. It returns a stop function. The interval is a
// deliberate trade-off documented on DefaultLogoutPollInterval; in-process
// writers already push through OnPhaseChange.
func (c *LogoutCoordinator) Watch(ctx context.Context) func() {
	done := make(chan struct{})

	go func() {
		ticker := time.NewTicker(c.pollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.syncFromStore(ctx)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() { close(done) })
	}
}

func (c *LogoutCoordinator) syncFromStore(ctx context.Context) {
	value, ok, err := c.store.Get(ctx, StateKeyLogout)
	if err != nil {
		c.logger.Debug("logout flag poll failed", "error", err)
		return
	}

	observed := LogoutPhaseIdle
	if ok && value == stateFlagSet {
		observed = LogoutPhaseLoggingOut
	}

	c.setPhase(observed)
}

func (c *LogoutCoordinator) setPhase(phase LogoutPhase) {
	c.mu.Lock()
	if c.phase == phase {
		c.mu.Unlock()
		return
	}
	c.phase = phase
	listeners := make([]func(LogoutPhase), 0, len(c.subs))
	for _, fn := range c.subs {
		listeners = append(listeners, fn)
	}
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(phase)
	}
}

func (c *LogoutCoordinator) emit(ctx context.Context, eventType ActivityEventType) {
	event := ActivityEvent{
		EventType:  eventType,
		Actor:      ActorRef{Type: "user"},
		OccurredAt: time.Now(),
	}

	if err := normalizeActivitySink(c.activitySink).Record(ctx, event); err != nil {
		c.logger.Warn("logout activity sink error: %v", err)
	}
}
