package access

import (
	"net/http"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
)

// DefaultRejectedRouteKey names the cookie remembering where an
// unauthenticated navigation was headed.
const DefaultRejectedRouteKey = "rejected_route"

// GuardedRoutes applies RouteDecisions to HTTP navigations: the requested
// view renders only when the guard authorizes it, redirect decisions become
// HTTP redirects, and Checking renders the loading/retry surface instead of
// failing open.
type GuardedRoutes struct {
	guard            *RouteGuard
	rejectedRouteKey string
	Logger           Logger
	ErrorHandler     func(c router.Context, err error) error
}

// GuardedRoutesOption customizes the adapter.
type GuardedRoutesOption func(*GuardedRoutes)

// WithGuardedRoutesLogger overrides the logger.
func WithGuardedRoutesLogger(logger Logger) GuardedRoutesOption {
	return func(g *GuardedRoutes) {
		if logger != nil {
			g.Logger = logger
		}
	}
}

// WithRejectedRouteKey overrides the redirect-back cookie name.
func WithRejectedRouteKey(key string) GuardedRoutesOption {
	return func(g *GuardedRoutes) {
		if key != "" {
			g.rejectedRouteKey = key
		}
	}
}

// NewGuardedRoutes wires the guard into a router middleware.
func NewGuardedRoutes(guard *RouteGuard, opts ...GuardedRoutesOption) *GuardedRoutes {
	g := &GuardedRoutes{
		guard:            guard,
		rejectedRouteKey: DefaultRejectedRouteKey,
		Logger:           defLogger{},
	}

	g.ErrorHandler = g.defaultErrHandler

	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}

	return g
}

// Middleware evaluates the guard for every request path.
func (a *GuardedRoutes) Middleware() router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			decision := a.guard.Evaluate(c.Context(), c.Path())

			switch decision.State {
			case GuardStateAuthorized:
				c.SetContext(WithIdentityContext(c.Context(), decision.Identity))
				if err := next(c); err != nil {
					return a.ErrorHandler(c, err)
				}
				return nil

			case GuardStateRedirectLogin:
				a.SetRedirect(c)
				return c.Redirect(decision.RedirectTo, a.redirectStatus(c))

			case GuardStateRedirectAdminHome, GuardStateRedirectClientHome, GuardStateRedirectBlocked:
				return c.Redirect(decision.RedirectTo, a.redirectStatus(c))

			default:
				// Checking: the record is loading or its fetch failed. Either
				// way the client gets the holding surface, never the page.
				return c.JSON(http.StatusServiceUnavailable, map[string]any{
					"status":    string(GuardStateChecking),
					"path":      decision.Path,
					"retryable": decision.Retryable(),
				})
			}
		}
	}
}

// GetRedirect pops the remembered rejected route, falling back to def.
func (a *GuardedRoutes) GetRedirect(c router.Context, def ...string) string {
	r := c.Cookies(a.rejectedRouteKey)
	if r == "" {
		if len(def) > 0 {
			return def[0]
		}
		return "/"
	}
	a.cookieDel(c, a.rejectedRouteKey)
	return r
}

// SetRedirect remembers the navigation target a login redirect interrupted.
func (a *GuardedRoutes) SetRedirect(c router.Context) {
	a.Logger.Info("Setting redirect cookie", "key", a.rejectedRouteKey, "path", c.OriginalURL())

	c.Cookie(&router.Cookie{
		Name:     a.rejectedRouteKey,
		Value:    c.OriginalURL(),
		Expires:  time.Now().Add(time.Minute * 5),
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Lax",
	})
}

func (a *GuardedRoutes) redirectStatus(c router.Context) int {
	if c.Method() == string(router.GET) {
		return http.StatusFound
	}
	return http.StatusSeeOther
}

func (a *GuardedRoutes) cookieDel(c router.Context, name string) {
	c.Cookie(&router.Cookie{
		Name:     name,
		Value:    "",
		Expires:  time.Now().Add(-time.Hour * (24 * 365)),
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Lax",
	})
}

func (a *GuardedRoutes) defaultErrHandler(c router.Context, err error) error {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		richErr = errors.Wrap(err, errors.CategoryInternal, "An unexpected server error occurred").
			WithCode(errors.CodeInternal)
	}

	a.Logger.Info(
		"Middleware error handler",
		"error", richErr.Message,
		"category", richErr.Category,
		"details", print.MaybePrettyJSON(richErr.Metadata),
	)

	switch richErr.Category {
	case errors.CategoryAuth, errors.CategoryAuthz:
		a.SetRedirect(c)
		return c.Redirect(a.guard.Routes().LoginPath, a.redirectStatus(c))
	default:
		return c.Status(richErr.Code).Render("errors/500", router.ViewContext{
			"error": richErr,
		})
	}
}
