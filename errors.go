package access

import (
	"errors"

	goerrors "github.com/goliatone/go-errors"
)

// ErrUnableToDecodeSession unable to decode JWT from session token
var ErrUnableToDecodeSession = errors.New("unable to decode session")

// ErrUnableToMapClaims unable to get claims from token
var ErrUnableToMapClaims = errors.New("unable to map claims")

// ErrUnauthenticated means no principal is signed in. It is resolved to a
// login redirect, never surfaced as an error page.
var ErrUnauthenticated = goerrors.New("no authenticated principal", goerrors.CategoryAuth).
	WithTextCode("UNAUTHENTICATED").
	WithCode(goerrors.CodeUnauthorized)

// ErrForbidden is returned when impersonation is attempted by a role that
// cannot impersonate. State is left unchanged.
var ErrForbidden = goerrors.New("operation not permitted for role", goerrors.CategoryAuthz).
	WithTextCode("FORBIDDEN").
	WithCode(goerrors.CodeForbidden)

// ErrOverrideActive is returned when starting an impersonation while another
// override is already in place. It matches IsForbidden as well.
var ErrOverrideActive = goerrors.Wrap(ErrForbidden, goerrors.CategoryAuthz, "impersonation override already active").
	WithTextCode("OVERRIDE_ACTIVE").
	WithCode(goerrors.CodeForbidden)

// ErrRecordFetchFailed means the backing store was unreachable or the row is
// missing. Consumers must hold a loading/retry state, never assume a role.
var ErrRecordFetchFailed = goerrors.New("user record fetch failed", goerrors.CategoryOperation).
	WithTextCode("RECORD_FETCH_FAILED").
	WithCode(goerrors.CodeInternal)

// IsUnauthenticated reports whether err resolves to the no-principal case.
func IsUnauthenticated(err error) bool {
	return errors.Is(err, ErrUnauthenticated)
}

// IsForbidden reports whether err is a rejected privileged operation.
func IsForbidden(err error) bool {
	return errors.Is(err, ErrForbidden)
}

// IsOverrideActive reports whether err is a second-override rejection.
func IsOverrideActive(err error) bool {
	return errors.Is(err, ErrOverrideActive)
}

// IsRecordFetchFailed reports whether err is a failed user record load.
func IsRecordFetchFailed(err error) bool {
	return errors.Is(err, ErrRecordFetchFailed)
}
