// Package tokenware installs the auth provider token carried by a request
// into the session store, so the identity resolution pipeline sees the same
// principal the transport authenticated.
package tokenware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/goliatone/go-router"
	access "github.com/xsterhouse/gatewaypagamento-sub000"
)

var (
	defaultTokenLookup = "header:" + router.HeaderAuthorization

	// ErrTokenMissingOrMalformed is returned when no token can be extracted
	// from the request.
	ErrTokenMissingOrMalformed = errors.New("missing or malformed token")
)

// Sessions is the subset of the session store the middleware needs.
type Sessions interface {
	SetToken(raw string) error
	Clear()
}

type Config struct {
	// Filter skips the middleware for matching requests.
	Filter func(router.Context) bool
	// ErrorHandler handles extraction/installation failures. The default
	// clears the session and continues, leaving the route guard to redirect.
	ErrorHandler router.ErrorHandler
	// TokenLookup is a comma-separated list of "<source>:<name>" entries,
	// tried in order. Supported sources: header, cookie, query.
	TokenLookup string
	// AuthScheme is stripped from header values ("Bearer" by default).
	AuthScheme string

	sessions Sessions
}

// New returns a middleware extracting the raw provider token from each
// request and installing it into sessions.
func New(sessions Sessions, config ...Config) router.MiddlewareFunc {
	cfg := getDefaultConfig(sessions, config...)

	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			if cfg.Filter != nil && cfg.Filter(ctx) {
				return next(ctx)
			}

			raw, err := extractRawToken(ctx, cfg)
			if err != nil {
				return cfg.ErrorHandler(ctx, err)
			}

			if err := cfg.sessions.SetToken(raw); err != nil {
				return cfg.ErrorHandler(ctx, err)
			}

			return next(ctx)
		}
	}
}

func getDefaultConfig(sessions Sessions, config ...Config) Config {
	var cfg Config
	if len(config) > 0 {
		cfg = config[0]
	}

	cfg.sessions = sessions

	if cfg.TokenLookup == "" {
		cfg.TokenLookup = defaultTokenLookup
	}

	if cfg.AuthScheme == "" {
		cfg.AuthScheme = "Bearer"
	}

	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = func(ctx router.Context, err error) error {
			// An anonymous request is not an error at this layer: the
			// session is cleared and the guard decides what to do.
			sessions.Clear()
			if errors.Is(err, ErrTokenMissingOrMalformed) {
				return ctx.Next()
			}
			return ctx.JSON(http.StatusUnauthorized, map[string]any{
				"error": "invalid session token",
			})
		}
	}

	return cfg
}

type extractor func(router.Context) (string, error)

func extractRawToken(ctx router.Context, cfg Config) (string, error) {
	var lastErr error
	for _, fn := range buildExtractors(cfg) {
		raw, err := fn(ctx)
		if err == nil && raw != "" {
			return raw, nil
		}
		if err != nil {
			lastErr = err
		}
	}

	if lastErr == nil {
		lastErr = ErrTokenMissingOrMalformed
	}
	return "", lastErr
}

func buildExtractors(cfg Config) []extractor {
	extractors := []extractor{}

	for _, entry := range strings.Split(cfg.TokenLookup, ",") {
		parts := strings.SplitN(strings.TrimSpace(entry), ":", 2)
		if len(parts) != 2 {
			continue
		}

		source, name := parts[0], parts[1]
		switch source {
		case "header":
			extractors = append(extractors, fromHeader(name, cfg.AuthScheme))
		case "cookie":
			extractors = append(extractors, fromCookie(name))
		case "query":
			extractors = append(extractors, fromQuery(name))
		}
	}

	return extractors
}

func fromHeader(name, scheme string) extractor {
	return func(ctx router.Context) (string, error) {
		value := ctx.Header(name)
		if value == "" {
			return "", ErrTokenMissingOrMalformed
		}

		if scheme == "" {
			return value, nil
		}

		prefix := scheme + " "
		if len(value) > len(prefix) && strings.EqualFold(value[:len(prefix)], prefix) {
			return strings.TrimSpace(value[len(prefix):]), nil
		}

		return "", ErrTokenMissingOrMalformed
	}
}

func fromCookie(name string) extractor {
	return func(ctx router.Context) (string, error) {
		value := ctx.Cookies(name)
		if value == "" {
			return "", ErrTokenMissingOrMalformed
		}
		return value, nil
	}
}

func fromQuery(name string) extractor {
	return func(ctx router.Context) (string, error) {
		value := ctx.Query(name, "")
		if value == "" {
			return "", ErrTokenMissingOrMalformed
		}
		return value, nil
	}
}

var _ Sessions = (*access.SessionStore)(nil)
