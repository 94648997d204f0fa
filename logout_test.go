package access_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	access "github.com/xsterhouse/gatewaypagamento-sub000"
)

func newLogoutFixture(t *testing.T, remote func(context.Context) error) (*access.SessionStore, *access.MemoryStateStore, *recordingNavigator) {
	t.Helper()

	opts := []access.SessionStoreOption{}
	if remote != nil {
		opts = append(opts, access.WithRemoteSignOut(remote))
	}

	sessions := access.NewSessionStore(testSigningKey, opts...)
	require.NoError(t, sessions.SetToken(mintToken(t, uuid.New().String(), "user@example.com", access.RoleClient)))

	return sessions, access.NewMemoryStateStore(), &recordingNavigator{}
}

func TestLogoutSequence(t *testing.T) {
	var phaseDuringSignOut access.LogoutPhase
	var flagDuringSignOut bool

	state := access.NewMemoryStateStore()
	var coordinator *access.LogoutCoordinator

	sessions := access.NewSessionStore(testSigningKey, access.WithRemoteSignOut(func(ctx context.Context) error {
		// The visible transition happens before the remote call resolves.
		phaseDuringSignOut = coordinator.Phase()
		_, flagDuringSignOut, _ = state.Get(ctx, access.StateKeyLogout)
		return nil
	}))
	require.NoError(t, sessions.SetToken(mintToken(t, uuid.New().String(), "user@example.com", access.RoleClient)))

	navigator := &recordingNavigator{}
	sink := &captureSink{}
	var slept time.Duration

	coordinator = access.NewLogoutCoordinator(sessions, state, navigator,
		access.WithLogoutActivitySink(sink),
		access.WithLogoutSleeper(func(d time.Duration) { slept = d }),
	)

	var phases []access.LogoutPhase
	coordinator.OnPhaseChange(func(p access.LogoutPhase) {
		phases = append(phases, p)
	})

	require.NoError(t, coordinator.Logout(context.Background()))

	assert.Equal(t, access.LogoutPhaseLoggingOut, phaseDuringSignOut)
	assert.True(t, flagDuringSignOut)

	assert.Equal(t, []access.LogoutPhase{access.LogoutPhaseLoggingOut, access.LogoutPhaseIdle}, phases)
	assert.Equal(t, []string{"/login"}, navigator.Paths())
	assert.Equal(t, access.DefaultMinLogoutDisplay, slept)

	// The session is gone and the flag cleaned up.
	_, err := sessions.GetSession(context.Background())
	assert.True(t, access.IsUnauthenticated(err))

	_, ok, err := state.Get(context.Background(), access.StateKeyLogout)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, []access.ActivityEventType{
		access.ActivityEventLogoutStarted,
		access.ActivityEventLogoutCompleted,
	}, sink.Types())
}

func TestLogoutRedirectsDespiteSignOutFailure(t *testing.T) {
	remoteErr := errors.New("provider unreachable")
	sessions, state, navigator := newLogoutFixture(t, func(context.Context) error {
		return remoteErr
	})

	coordinator := access.NewLogoutCoordinator(sessions, state, navigator,
		access.WithLogoutSleeper(func(time.Duration) {}),
	)

	err := coordinator.Logout(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, remoteErr)

	// The user still left: redirect happened, flag cleared, phase back to idle.
	assert.Equal(t, []string{"/login"}, navigator.Paths())
	assert.Equal(t, access.LogoutPhaseIdle, coordinator.Phase())

	_, ok, gerr := state.Get(context.Background(), access.StateKeyLogout)
	require.NoError(t, gerr)
	assert.False(t, ok)

	// Local session state cleared regardless of the remote failure.
	_, serr := sessions.GetSession(context.Background())
	assert.True(t, access.IsUnauthenticated(serr))
}

func TestLogoutContinuesWhenFlagPersistFails(t *testing.T) {
	sessions, _, navigator := newLogoutFixture(t, nil)
	state := &failingStateStore{
		StateStore: access.NewMemoryStateStore(),
		setErr:     errors.New("storage full"),
	}

	coordinator := access.NewLogoutCoordinator(sessions, state, navigator,
		access.WithLogoutSleeper(func(time.Duration) {}),
	)

	require.NoError(t, coordinator.Logout(context.Background()))
	assert.Equal(t, []string{"/login"}, navigator.Paths())
}

func TestLogoutWithoutNavigatorCompletesSequence(t *testing.T) {
	sessions, state, _ := newLogoutFixture(t, nil)

	coordinator := access.NewLogoutCoordinator(sessions, state, nil,
		access.WithLogoutSleeper(func(time.Duration) {}),
	)

	require.NoError(t, coordinator.Logout(context.Background()))
	assert.Equal(t, access.LogoutPhaseIdle, coordinator.Phase())

	// Session and flag are still cleaned up; the caller owns the redirect.
	_, err := sessions.GetSession(context.Background())
	assert.True(t, access.IsUnauthenticated(err))

	_, ok, err := state.Get(context.Background(), access.StateKeyLogout)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLogoutCustomOptions(t *testing.T) {
	sessions, state, navigator := newLogoutFixture(t, nil)

	var slept time.Duration
	coordinator := access.NewLogoutCoordinator(sessions, state, navigator,
		access.WithLogoutLoginPath("/auth/login"),
		access.WithLogoutMinDisplay(200*time.Millisecond),
		access.WithLogoutSleeper(func(d time.Duration) { slept = d }),
	)

	require.NoError(t, coordinator.Logout(context.Background()))
	assert.Equal(t, []string{"/auth/login"}, navigator.Paths())
	assert.Equal(t, 200*time.Millisecond, slept)
}

func TestLogoutRecoverClearsStaleFlag(t *testing.T) {
	sessions, state, navigator := newLogoutFixture(t, nil)
	require.NoError(t, state.Set(context.Background(), access.StateKeyLogout, "1"))

	coordinator := access.NewLogoutCoordinator(sessions, state, navigator)
	require.NoError(t, coordinator.Recover(context.Background()))

	_, ok, err := state.Get(context.Background(), access.StateKeyLogout)
	require.NoError(t, err)
	assert.False(t, ok)

	// Recover on a clean store is a no-op.
	require.NoError(t, coordinator.Recover(context.Background()))
}

func TestLogoutWatchObservesExternalFlag(t *testing.T) {
	sessions, state, navigator := newLogoutFixture(t, nil)

	coordinator := access.NewLogoutCoordinator(sessions, state, navigator,
		access.WithLogoutPollInterval(5*time.Millisecond),
	)

	stop := coordinator.Watch(context.Background())
	defer stop()

	require.NoError(t, state.Set(context.Background(), access.StateKeyLogout, "1"))
	assert.Eventually(t, func() bool {
		return coordinator.Phase() == access.LogoutPhaseLoggingOut
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, state.Delete(context.Background(), access.StateKeyLogout))
	assert.Eventually(t, func() bool {
		return coordinator.Phase() == access.LogoutPhaseIdle
	}, time.Second, 5*time.Millisecond)
}
