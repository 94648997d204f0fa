// Package access decides, for every navigation and data fetch in the
// payment-gateway back office, who the acting user is, whose data may be
// shown, and which surface (client, admin, blocked, KYC-gated) gets rendered.
//
// Identity resolution:
//   - SessionStore wraps the external auth provider and owns the current
//     Session (the raw authenticated principal). It is the only writer of
//     that state; everything else subscribes to change notifications.
//   - Ledger holds the optional impersonation override. It persists the
//     override through a StateStore so a full reload reproduces the same
//     acting-as context instead of silently dropping back to the admin.
//   - Resolver combines the two, plus the effective user's record, into a
//     single EffectiveIdentity. Role and impersonation logic is defined here
//     once rather than re-implemented per page.
//
// Gating:
//   - RouteGuard evaluates each path against the resolved identity and the
//     effective record's account status, failing closed (it holds Checking
//     rather than guessing) when the record cannot be loaded.
//   - EvaluateOverlay maps the effective user's KYC status to the overlay
//     the UI must render. It always works off the effective identity, so an
//     admin impersonating a pending client sees that client's gated view.
//
// Activity sinks:
//   - ActivitySink is a light-weight audit emitter used by the ledger, the
//     guard, and the logout coordinator. Sinks run best-effort (errors are
//     logged) so auditing never blocks an access decision.
package access
