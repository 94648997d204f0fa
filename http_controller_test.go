package access_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	access "github.com/xsterhouse/gatewaypagamento-sub000"
)

func newControllerFixture(t *testing.T, source *recordMap) (*accessStack, *access.AccessController, *recordingFlash) {
	t.Helper()

	stack := newAccessStack(source)
	t.Cleanup(stack.resolver.Close)

	coordinator := access.NewLogoutCoordinator(stack.sessions, stack.state, nil,
		access.WithLogoutSleeper(func(time.Duration) {}),
	)

	controller := access.NewAccessController(stack.resolver, coordinator)
	flashRec := &recordingFlash{}
	controller.Flash = flashRec

	return stack, controller, flashRec
}

func TestImpersonatePostStartsOverride(t *testing.T) {
	adminID := uuid.New()
	clientID := uuid.New()
	source := newRecordMap().
		add(activeRecord(adminID, access.RoleAdmin)).
		add(activeRecord(clientID, access.RoleClient))

	stack, controller, flashRec := newControllerFixture(t, source)
	stack.signIn(t, adminID, access.RoleAdmin)

	ctx := &MockContext{}
	ctx.On("Context").Return(context.Background())
	ctx.On("Bind", mock.Anything).Run(func(args mock.Arguments) {
		payload := args.Get(0).(*access.ImpersonatePayload)
		payload.TargetUserID = clientID.String()
	}).Return(nil)
	ctx.On("Redirect", "/", []int{http.StatusSeeOther}).Return(nil)

	require.NoError(t, controller.ImpersonatePost(ctx))

	identity, err := stack.resolver.Resolve(context.Background())
	require.NoError(t, err)
	assert.True(t, identity.Impersonating)
	assert.Equal(t, clientID.String(), identity.EffectiveUserID)

	require.Len(t, flashRec.successes, 1)
	assert.Empty(t, flashRec.errors)
	ctx.AssertExpectations(t)
}

func TestImpersonatePostRejectsBadPayload(t *testing.T) {
	adminID := uuid.New()
	source := newRecordMap().add(activeRecord(adminID, access.RoleAdmin))

	stack, controller, flashRec := newControllerFixture(t, source)
	stack.signIn(t, adminID, access.RoleAdmin)

	ctx := &MockContext{}
	ctx.On("Bind", mock.Anything).Return(errors.New("malformed form"))
	ctx.On("Status", fiber.StatusBadRequest).Return()
	ctx.On("Redirect", "/admin", []int{http.StatusSeeOther}).Return(nil)

	require.NoError(t, controller.ImpersonatePost(ctx))

	require.Len(t, flashRec.errors, 1)
	assert.Equal(t, "Error parsing body", flashRec.errors[0]["system_message"])

	identity, err := stack.resolver.Resolve(context.Background())
	require.NoError(t, err)
	assert.False(t, identity.Impersonating)
	ctx.AssertExpectations(t)
}

func TestImpersonatePostValidatesTargetID(t *testing.T) {
	adminID := uuid.New()
	source := newRecordMap().add(activeRecord(adminID, access.RoleAdmin))

	stack, controller, flashRec := newControllerFixture(t, source)
	stack.signIn(t, adminID, access.RoleAdmin)

	ctx := &MockContext{}
	ctx.On("Bind", mock.Anything).Run(func(args mock.Arguments) {
		payload := args.Get(0).(*access.ImpersonatePayload)
		payload.TargetUserID = "not-a-uuid"
	}).Return(nil)
	ctx.On("Redirect", "/admin", []int{http.StatusSeeOther}).Return(nil)

	require.NoError(t, controller.ImpersonatePost(ctx))

	require.Len(t, flashRec.errors, 1)
	assert.Equal(t, "Error validating payload", flashRec.errors[0]["system_message"])

	identity, err := stack.resolver.Resolve(context.Background())
	require.NoError(t, err)
	assert.False(t, identity.Impersonating)
	ctx.AssertExpectations(t)
}

func TestImpersonatePostForbiddenForClient(t *testing.T) {
	clientID := uuid.New()
	targetID := uuid.New()
	source := newRecordMap().
		add(activeRecord(clientID, access.RoleClient)).
		add(activeRecord(targetID, access.RoleClient))

	stack, controller, flashRec := newControllerFixture(t, source)
	stack.signIn(t, clientID, access.RoleClient)

	ctx := &MockContext{}
	ctx.On("Context").Return(context.Background())
	ctx.On("Bind", mock.Anything).Run(func(args mock.Arguments) {
		payload := args.Get(0).(*access.ImpersonatePayload)
		payload.TargetUserID = targetID.String()
	}).Return(nil)
	ctx.On("Redirect", "/admin", []int{http.StatusSeeOther}).Return(nil)

	require.NoError(t, controller.ImpersonatePost(ctx))

	require.Len(t, flashRec.errors, 1)
	assert.Equal(t, "Unable to impersonate user", flashRec.errors[0]["system_message"])

	identity, err := stack.resolver.Resolve(context.Background())
	require.NoError(t, err)
	assert.False(t, identity.Impersonating)
	ctx.AssertExpectations(t)
}

func TestImpersonateStopPostReturnsToAdmin(t *testing.T) {
	adminID := uuid.New()
	clientID := uuid.New()
	source := newRecordMap().
		add(activeRecord(adminID, access.RoleAdmin)).
		add(activeRecord(clientID, access.RoleClient))

	stack, controller, flashRec := newControllerFixture(t, source)
	stack.signIn(t, adminID, access.RoleAdmin)

	_, err := stack.resolver.Impersonate(context.Background(), clientID.String())
	require.NoError(t, err)

	ctx := &MockContext{}
	ctx.On("Context").Return(context.Background())
	ctx.On("Redirect", "/admin", []int{http.StatusSeeOther}).Return(nil)

	require.NoError(t, controller.ImpersonateStopPost(ctx))

	identity, err := stack.resolver.Resolve(context.Background())
	require.NoError(t, err)
	assert.False(t, identity.Impersonating)
	assert.Equal(t, adminID.String(), identity.EffectiveUserID)

	require.Len(t, flashRec.successes, 1)
	ctx.AssertExpectations(t)
}

func TestLogoutPostEndsSessionAndRedirects(t *testing.T) {
	clientID := uuid.New()
	source := newRecordMap().add(activeRecord(clientID, access.RoleClient))

	stack, controller, _ := newControllerFixture(t, source)
	stack.signIn(t, clientID, access.RoleClient)

	ctx := &MockContext{}
	ctx.On("Context").Return(context.Background())
	ctx.On("Redirect", "/login", []int{http.StatusSeeOther}).Return(nil)

	require.NoError(t, controller.LogoutPost(ctx))

	// The response itself carried the navigation; the session is gone.
	_, err := stack.sessions.GetSession(context.Background())
	assert.True(t, access.IsUnauthenticated(err))

	_, ok, err := stack.state.Get(context.Background(), access.StateKeyLogout)
	require.NoError(t, err)
	assert.False(t, ok)
	ctx.AssertExpectations(t)
}
