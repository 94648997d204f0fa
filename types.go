package access

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Session holds the attributes of the raw authenticated principal
type Session interface {
	GetUserID() string
	GetUserUUID() (uuid.UUID, error)
	GetEmail() string
	GetIssuer() string
	GetIssuedAt() *time.Time
	GetData() map[string]any
}

// AuthProvider is the authentication side of the external service: it owns
// sign-in state and notifies subscribers when that state changes.
type AuthProvider interface {
	GetSession(ctx context.Context) (Session, error)
	OnSessionChange(fn func(Session)) (unsubscribe func())
	SignOut(ctx context.Context) error
}

// RecordSource loads and updates domain user rows. Results are fallible and
// not necessarily consistent with locally cached state until applied.
type RecordSource interface {
	FetchUserRecord(ctx context.Context, id string) (*UserRecord, error)
	UpdateUserRecord(ctx context.Context, id string, fields map[string]any) (*UserRecord, error)
}

// Directory is the full external identity/data service contract.
type Directory interface {
	AuthProvider
	RecordSource
}

// StateStore is a persisted key-value store that survives a full reload.
// The ledger and the logout coordinator are its only writers.
type StateStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Navigator performs client navigations. Replace must not leave the previous
// location in history, so "back" cannot return to an authenticated page.
type Navigator interface {
	Replace(path string) error
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] ACCESS "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] ACCESS "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] ACCESS "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] ACCESS "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
