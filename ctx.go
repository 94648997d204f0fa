package access

import (
	"context"
)

var identityCtxKey = &contextKey{"identity"}
var recordCtxKey = &contextKey{"record"}

type contextKey struct {
	name string
}

// WithIdentityContext sets the EffectiveIdentity in the given context
func WithIdentityContext(r context.Context, identity EffectiveIdentity) context.Context {
	return context.WithValue(r, identityCtxKey, identity)
}

// IdentityFromContext finds the effective identity from the context.
func IdentityFromContext(ctx context.Context) (EffectiveIdentity, bool) {
	raw, ok := ctx.Value(identityCtxKey).(EffectiveIdentity)
	return raw, ok
}

// WithRecordContext sets the effective user's record in the given context
func WithRecordContext(r context.Context, record *UserRecord) context.Context {
	return context.WithValue(r, recordCtxKey, record)
}

// RecordFromContext finds the effective user's record from the context.
func RecordFromContext(ctx context.Context) (*UserRecord, bool) {
	raw, ok := ctx.Value(recordCtxKey).(*UserRecord)
	return raw, ok
}

// CanActFor is a convenience check for handlers: it reports whether the
// resolved identity may operate on rows belonging to userID.
func CanActFor(ctx context.Context, userID string) bool {
	identity, ok := IdentityFromContext(ctx)
	if !ok {
		return false
	}

	if identity.EffectiveUserID == userID {
		return true
	}

	// Privileged roles may act on any row while not impersonating; while
	// impersonating they are scoped down to the effective user only.
	return CanImpersonate(identity.Role) && !identity.Impersonating
}
