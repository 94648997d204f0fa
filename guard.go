package access

import (
	"context"
	"strings"
	"time"
)

// GuardState is the route guard's per-navigation state.
type GuardState string

const (
	// GuardStateChecking is the initial state, held while the effective
	// record is loading or failed to load. It never falls open to Authorized.
	GuardStateChecking           GuardState = "checking"
	GuardStateAuthorized         GuardState = "authorized"
	GuardStateRedirectLogin      GuardState = "redirect_login"
	GuardStateRedirectAdminHome  GuardState = "redirect_admin_home"
	GuardStateRedirectClientHome GuardState = "redirect_client_home"
	GuardStateRedirectBlocked    GuardState = "redirect_blocked"
)

// RouteDecision is the outcome of evaluating one navigation.
type RouteDecision struct {
	State      GuardState
	Path       string
	RedirectTo string
	Identity   EffectiveIdentity
	// Err is set when the guard holds Checking because the record fetch
	// failed, so a retry affordance can be distinguished from plain loading.
	Err error
}

// Authorized reports whether the requested view may render.
func (d RouteDecision) Authorized() bool {
	return d.State == GuardStateAuthorized
}

// Redirecting reports whether the decision carries a redirect target.
func (d RouteDecision) Redirecting() bool {
	return d.RedirectTo != ""
}

// Retryable reports whether the guard is stuck on a failed fetch rather than
// a fetch still in flight.
func (d RouteDecision) Retryable() bool {
	return d.State == GuardStateChecking && d.Err != nil
}

// RouteTable partitions the client-side path space. Client-only paths are the
// account-holder surfaces an un-impersonating back-office user has no
// business rendering; public paths bypass the guard entirely.
type RouteTable struct {
	ClientPaths []string
	AdminPrefix string
	PublicPaths []string

	LoginPath      string
	AdminHomePath  string
	ClientHomePath string
	BlockedPath    string
}

// DefaultRouteTable returns the back office's route partition.
func DefaultRouteTable() RouteTable {
	return RouteTable{
		ClientPaths: []string{
			"/",
			"/wallets",
			"/exchange",
			"/deposits",
			"/statement",
			"/invoices",
			"/tickets",
		},
		AdminPrefix: "/admin",
		PublicPaths: []string{
			"/login",
			"/register",
			"/password-reset",
			"/pay",
			"/blocked",
		},
		LoginPath:      "/login",
		AdminHomePath:  "/admin",
		ClientHomePath: "/",
		BlockedPath:    "/blocked",
	}
}

// IsPublic reports whether path is reachable without a principal.
func (t RouteTable) IsPublic(path string) bool {
	path = normalizePath(path)
	for _, p := range t.PublicPaths {
		if path == p || strings.HasPrefix(path, p+"/") {
			return true
		}
	}
	return false
}

// IsClientOnly reports whether path belongs to the client-only set.
func (t RouteTable) IsClientOnly(path string) bool {
	path = normalizePath(path)
	for _, p := range t.ClientPaths {
		if path == p {
			return true
		}
		if p != "/" && strings.HasPrefix(path, p+"/") {
			return true
		}
	}
	return false
}

// IsAdmin reports whether path lives under the admin prefix.
func (t RouteTable) IsAdmin(path string) bool {
	path = normalizePath(path)
	return path == t.AdminPrefix || strings.HasPrefix(path, t.AdminPrefix+"/")
}

func normalizePath(path string) string {
	if path == "" {
		return "/"
	}
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
		if path == "" {
			path = "/"
		}
	}
	return path
}

// RouteGuard evaluates navigations against the resolved identity. It re-runs
// on every path change and, through the resolver's subscription, on every
// identity recomputation.
type RouteGuard struct {
	resolver     *Resolver
	routes       RouteTable
	logger       Logger
	activitySink ActivitySink
}

// RouteGuardOption customizes guard construction.
type RouteGuardOption func(*RouteGuard)

// WithGuardRoutes overrides the route table.
func WithGuardRoutes(routes RouteTable) RouteGuardOption {
	return func(g *RouteGuard) {
		g.routes = routes
	}
}

// WithGuardLogger overrides the logger.
func WithGuardLogger(logger Logger) RouteGuardOption {
	return func(g *RouteGuard) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithGuardActivitySink sets the sink receiving blocked-navigation events.
func WithGuardActivitySink(sink ActivitySink) RouteGuardOption {
	return func(g *RouteGuard) {
		g.activitySink = normalizeActivitySink(sink)
	}
}

// NewRouteGuard returns a guard over the resolver with the default route table.
func NewRouteGuard(resolver *Resolver, opts ...RouteGuardOption) *RouteGuard {
	g := &RouteGuard{
		resolver:     resolver,
		routes:       DefaultRouteTable(),
		logger:       defLogger{},
		activitySink: noopActivitySink{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}

	return g
}

// Routes returns the guard's route table.
func (g *RouteGuard) Routes() RouteTable {
	return g.routes
}

// Evaluate runs the precedence chain for one navigation. First match wins:
// no principal, blocked account, privileged role on a client-only path,
// authorized.
func (g *RouteGuard) Evaluate(ctx context.Context, path string) RouteDecision {
	path = normalizePath(path)

	if g.routes.IsPublic(path) {
		return RouteDecision{State: GuardStateAuthorized, Path: path}
	}

	identity, err := g.resolver.Resolve(ctx)
	if err != nil {
		return RouteDecision{
			State:      GuardStateRedirectLogin,
			Path:       path,
			RedirectTo: g.routes.LoginPath,
		}
	}

	snap := g.resolver.Record(ctx)
	if snap.Loading {
		return RouteDecision{State: GuardStateChecking, Path: path, Identity: identity}
	}
	if snap.Err != nil || snap.Record == nil {
		// Fail closed: an unknown status is never treated as authorized.
		return RouteDecision{
			State:    GuardStateChecking,
			Path:     path,
			Identity: identity,
			Err:      snap.Err,
		}
	}

	// Block wins over everything, including an active impersonation: if the
	// effective account is blocked the only reachable surface is the blocked
	// page.
	if snap.Record.IsBlocked() && path != g.routes.BlockedPath {
		g.emitBlocked(ctx, identity, path)
		return RouteDecision{
			State:      GuardStateRedirectBlocked,
			Path:       path,
			Identity:   identity,
			RedirectTo: g.routes.BlockedPath,
		}
	}

	// The acting role gates the admin area, so an impersonating admin can
	// still reach it to stop the override.
	if !CanImpersonate(identity.Role) && g.routes.IsAdmin(path) {
		return RouteDecision{
			State:      GuardStateRedirectClientHome,
			Path:       path,
			Identity:   identity,
			RedirectTo: g.routes.ClientHomePath,
		}
	}

	if CanImpersonate(identity.Role) && !identity.Impersonating && g.routes.IsClientOnly(path) {
		return RouteDecision{
			State:      GuardStateRedirectAdminHome,
			Path:       path,
			Identity:   identity,
			RedirectTo: g.routes.AdminHomePath,
		}
	}

	return RouteDecision{State: GuardStateAuthorized, Path: path, Identity: identity}
}

func (g *RouteGuard) emitBlocked(ctx context.Context, identity EffectiveIdentity, path string) {
	event := ActivityEvent{
		EventType: ActivityEventNavigationBlocked,
		Actor:     identity.Actor(),
		UserID:    identity.EffectiveUserID,
		Metadata: map[string]any{
			"path": path,
		},
		OccurredAt: time.Now(),
	}

	if err := normalizeActivitySink(g.activitySink).Record(ctx, event); err != nil {
		g.logger.Warn("guard activity sink error: %v", err)
	}
}
