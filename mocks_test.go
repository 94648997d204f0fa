package access_test

import (
	"context"
	"io"
	"mime/multipart"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/goliatone/go-router"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	access "github.com/xsterhouse/gatewaypagamento-sub000"
)

var testSigningKey = []byte("test-signing-key")

// mintToken builds a signed provider token carrying the acting role claim.
func mintToken(t *testing.T, userID, email string, role access.Role) string {
	t.Helper()

	claims := jwt.MapClaims{
		"sub":   userID,
		"email": email,
		"role":  role,
		"iss":   "gateway-auth",
		"iat":   jwt.NewNumericDate(time.Now()),
		"exp":   jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(testSigningKey)
	require.NoError(t, err)
	return signed
}

// MockRecordSource implements access.RecordSource
type MockRecordSource struct {
	mock.Mock
}

func (m *MockRecordSource) FetchUserRecord(ctx context.Context, id string) (*access.UserRecord, error) {
	args := m.Called(ctx, id)
	var record *access.UserRecord
	if v := args.Get(0); v != nil {
		record = v.(*access.UserRecord)
	}
	return record, args.Error(1)
}

func (m *MockRecordSource) UpdateUserRecord(ctx context.Context, id string, fields map[string]any) (*access.UserRecord, error) {
	args := m.Called(ctx, id, fields)
	var record *access.UserRecord
	if v := args.Get(0); v != nil {
		record = v.(*access.UserRecord)
	}
	return record, args.Error(1)
}

// funcRecordSource is a closure-backed RecordSource for tests that need
// per-call behavior without expectation bookkeeping.
type funcRecordSource struct {
	fetch  func(ctx context.Context, id string) (*access.UserRecord, error)
	update func(ctx context.Context, id string, fields map[string]any) (*access.UserRecord, error)
}

func (f *funcRecordSource) FetchUserRecord(ctx context.Context, id string) (*access.UserRecord, error) {
	return f.fetch(ctx, id)
}

func (f *funcRecordSource) UpdateUserRecord(ctx context.Context, id string, fields map[string]any) (*access.UserRecord, error) {
	if f.update == nil {
		return nil, nil
	}
	return f.update(ctx, id, fields)
}

// MockRecords overrides the status update used by the lifecycle machine; the
// embedded interface covers the methods a given test never reaches.
type MockRecords struct {
	access.Records
	mock.Mock
}

func (m *MockRecords) UpdateAccountStatus(ctx context.Context, id uuid.UUID, status access.AccountStatus, opts ...access.StatusUpdateOption) (*access.UserRecord, error) {
	args := m.Called(ctx, id, status, opts)
	var record *access.UserRecord
	if v := args.Get(0); v != nil {
		record = v.(*access.UserRecord)
	}
	return record, args.Error(1)
}

// MockActivitySink implements access.ActivitySink
type MockActivitySink struct {
	mock.Mock
}

func (m *MockActivitySink) Record(ctx context.Context, event access.ActivityEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

// captureSink records every activity event it sees.
type captureSink struct {
	mu     sync.Mutex
	events []access.ActivityEvent
}

func (s *captureSink) Record(_ context.Context, event access.ActivityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *captureSink) Events() []access.ActivityEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]access.ActivityEvent, len(s.events))
	copy(out, s.events)
	return out
}

func (s *captureSink) Types() []access.ActivityEventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	types := make([]access.ActivityEventType, 0, len(s.events))
	for _, e := range s.events {
		types = append(types, e.EventType)
	}
	return types
}

// recordingNavigator remembers every Replace target.
type recordingNavigator struct {
	mu    sync.Mutex
	paths []string
	err   error
}

func (n *recordingNavigator) Replace(path string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.paths = append(n.paths, path)
	return n.err
}

func (n *recordingNavigator) Paths() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.paths))
	copy(out, n.paths)
	return out
}

// recordingFlash captures flash payloads instead of mutating cookies.
type recordingFlash struct {
	mu        sync.Mutex
	errors    []router.ViewContext
	successes []router.ViewContext
}

func (f *recordingFlash) Error(c router.Context, data router.ViewContext) router.Context {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors = append(f.errors, data)
	return c
}

func (f *recordingFlash) Success(c router.Context, data router.ViewContext) router.Context {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.successes = append(f.successes, data)
	return c
}

// MockContext mocks the router.Context
type MockContext struct {
	mock.Mock
	NextCalled bool
}

func (m *MockContext) Next() error {
	m.NextCalled = true
	return nil
}

func (m *MockContext) Context() context.Context {
	args := m.Called()
	c, ok := args.Get(0).(context.Context)
	if !ok {
		panic("arg needs to be context.Context")
	}
	return c
}

func (m *MockContext) SetContext(ctx context.Context) {
	m.Called(ctx)
}

func (m *MockContext) Path() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockContext) Method() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockContext) Body() []byte {
	args := m.Called()
	return args.Get(0).([]byte)
}

func (m *MockContext) Status(code int) router.Context {
	m.Called(code)
	return m
}

func (m *MockContext) SendString(s string) error {
	args := m.Called(s)
	return args.Error(0)
}

func (m *MockContext) Send(b []byte) error {
	args := m.Called(b)
	return args.Error(0)
}

func (m *MockContext) JSON(code int, val any) error {
	args := m.Called(code, val)
	return args.Error(0)
}

func (m *MockContext) NoContent(code int) error {
	args := m.Called(code)
	return args.Error(0)
}

func (m *MockContext) Render(name string, bind any, layout ...string) error {
	if len(layout) > 0 {
		args := m.Called(name, bind, layout[0])
		return args.Error(0)
	}
	args := m.Called(name, bind)
	return args.Error(0)
}

func (m *MockContext) Redirect(path string, status ...int) error {
	if len(status) > 0 {
		args := m.Called(path, status)
		return args.Error(0)
	}
	args := m.Called(path)
	return args.Error(0)
}

func (m *MockContext) RedirectToRoute(name string, data router.ViewContext, status ...int) error {
	if len(status) > 0 {
		args := m.Called(name, data, status[0])
		return args.Error(0)
	}
	args := m.Called(name, data)
	return args.Error(0)
}

func (m *MockContext) RedirectBack(fallback string, status ...int) error {
	if len(status) > 0 {
		args := m.Called(fallback, status)
		return args.Error(0)
	}
	args := m.Called(fallback)
	return args.Error(0)
}

func (m *MockContext) SetHeader(key, val string) router.Context {
	m.Called(key, val)
	return m
}

func (m *MockContext) Header(key string) string {
	args := m.Called(key)
	return args.String(0)
}

func (m *MockContext) Get(key string, defaultValue any) any {
	args := m.Called(key, defaultValue)
	return args.Get(0)
}

func (m *MockContext) GetBool(key string, defaultValue bool) bool {
	args := m.Called(key, defaultValue)
	return args.Bool(0)
}

func (m *MockContext) GetInt(key string, def int) int {
	args := m.Called(key, def)
	return args.Int(0)
}

func (m *MockContext) Set(key string, val any) {
	m.Called(key, val)
}

func (m *MockContext) Bind(i any) error {
	args := m.Called(i)
	return args.Error(0)
}

func (m *MockContext) BindJSON(i any) error {
	args := m.Called(i)
	return args.Error(0)
}

func (m *MockContext) BindXML(i any) error {
	args := m.Called(i)
	return args.Error(0)
}

func (m *MockContext) BindQuery(i any) error {
	args := m.Called(i)
	return args.Error(0)
}

func (m *MockContext) CookieParser(i any) error {
	args := m.Called(i)
	return args.Error(0)
}

func (m *MockContext) Cookie(cookie *router.Cookie) {
	m.Called(cookie)
}

func (m *MockContext) Cookies(key string, defaultValue ...string) string {
	if len(defaultValue) > 0 {
		args := m.Called(key, defaultValue[0])
		return args.String(0)
	}
	args := m.Called(key)
	return args.String(0)
}

func (m *MockContext) Param(key string, defaultValue ...string) string {
	if len(defaultValue) > 0 {
		args := m.Called(key, defaultValue[0])
		return args.String(0)
	}
	args := m.Called(key)
	return args.String(0)
}

func (m *MockContext) ParamsInt(key string, defaultValue int) int {
	args := m.Called(key, defaultValue)
	return args.Int(0)
}

func (m *MockContext) Query(key string, defaultValue ...string) string {
	if len(defaultValue) > 0 {
		args := m.Called(key, defaultValue[0])
		return args.String(0)
	}
	args := m.Called(key)
	return args.String(0)
}

func (m *MockContext) QueryValues(key string) []string {
	args := m.Called(key)
	if v := args.Get(0); v != nil {
		return v.([]string)
	}
	return nil
}

func (m *MockContext) QueryInt(key string, defaultValue int) int {
	args := m.Called(key, defaultValue)
	return args.Int(0)
}

func (m *MockContext) Queries() map[string]string {
	args := m.Called()
	return args.Get(0).(map[string]string)
}

func (m *MockContext) GetString(key string, defaultValue string) string {
	args := m.Called(key, defaultValue)
	return args.String(0)
}

func (m *MockContext) Locals(key any, value ...any) any {
	if len(value) > 0 {
		m.Called(key, value[0])
		return nil
	}
	args := m.Called(key)
	return args.Get(0)
}

func (m *MockContext) OriginalURL() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockContext) OnNext(callback func() error) {
	m.Called(callback)
}

func (m *MockContext) Referer() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockContext) FormFile(key string) (*multipart.FileHeader, error) {
	args := m.Called(key)
	var fh *multipart.FileHeader
	if v := args.Get(0); v != nil {
		fh = v.(*multipart.FileHeader)
	}
	return fh, args.Error(1)
}

func (m *MockContext) FormValue(key string, defaultValue ...string) string {
	if len(defaultValue) > 0 {
		args := m.Called(key, defaultValue[0])
		return args.String(0)
	}
	args := m.Called(key)
	return args.String(0)
}

func (m *MockContext) IP() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockContext) LocalsMerge(key any, value map[string]any) map[string]any {
	args := m.Called(key, value)
	if v := args.Get(0); v != nil {
		return v.(map[string]any)
	}
	return nil
}

func (m *MockContext) SendStatus(code int) error {
	args := m.Called(code)
	return args.Error(0)
}

func (m *MockContext) SendStream(r io.Reader) error {
	args := m.Called(r)
	return args.Error(0)
}

func (m *MockContext) RouteName() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockContext) RouteParams() map[string]string {
	args := m.Called()
	if v := args.Get(0); v != nil {
		return v.(map[string]string)
	}
	return nil
}

// failingStateStore wraps a StateStore with injectable failures.
type failingStateStore struct {
	access.StateStore
	getErr error
	setErr error
	delErr error
}

func (f *failingStateStore) Get(ctx context.Context, key string) (string, bool, error) {
	if f.getErr != nil {
		return "", false, f.getErr
	}
	return f.StateStore.Get(ctx, key)
}

func (f *failingStateStore) Set(ctx context.Context, key, value string) error {
	if f.setErr != nil {
		return f.setErr
	}
	return f.StateStore.Set(ctx, key, value)
}

func (f *failingStateStore) Delete(ctx context.Context, key string) error {
	if f.delErr != nil {
		return f.delErr
	}
	return f.StateStore.Delete(ctx, key)
}
