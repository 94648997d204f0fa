package access

import "context"

// OverlayKind classifies what the access gate renders over page content.
type OverlayKind string

const (
	// OverlayNone renders content normally.
	OverlayNone OverlayKind = "none"
	// OverlayPending renders content visually suppressed and non-interactive;
	// the user may still navigate but not act.
	OverlayPending OverlayKind = "pending"
	// OverlayRejected fully gates content and offers a sign-out affordance.
	OverlayRejected OverlayKind = "rejected"
)

// Overlay is the gate's verdict for the effective identity.
type Overlay struct {
	Kind            OverlayKind
	RejectionReason string
	CanSignOut      bool
}

// Gated reports whether any overlay suppresses the content.
func (o Overlay) Gated() bool {
	return o.Kind != OverlayNone
}

// EvaluateOverlay maps the effective user's KYC state to the overlay the UI
// must render. The record is always the effective identity's, never the
// acting principal's: an admin impersonating a pending client sees that
// client's gated view.
func EvaluateOverlay(role Role, impersonating bool, record *UserRecord) Overlay {
	// Admins bypass gating for their own identity only.
	if role == RoleAdmin && !impersonating {
		return Overlay{Kind: OverlayNone}
	}

	// No record yet means the status is unknown; suppress interaction until
	// it is.
	if record == nil {
		return Overlay{Kind: OverlayPending}
	}

	switch record.KYCStatus {
	case KYCStatusApproved:
		return Overlay{Kind: OverlayNone}
	case KYCStatusRejected:
		return Overlay{
			Kind:            OverlayRejected,
			RejectionReason: record.KYCRejectionReason,
			CanSignOut:      true,
		}
	default:
		// pending and awaiting_verification both read as "documents not yet
		// cleared".
		return Overlay{Kind: OverlayPending}
	}
}

// AccessGate is the resolver-bound convenience over EvaluateOverlay.
type AccessGate struct {
	resolver *Resolver
}

// NewAccessGate binds a gate to the resolver.
func NewAccessGate(resolver *Resolver) *AccessGate {
	return &AccessGate{resolver: resolver}
}

// Current evaluates the overlay for the present effective identity. While
// the record is loading or failed it reports the pending overlay, which is
// the restrictive default.
func (g *AccessGate) Current(ctx context.Context) Overlay {
	identity, err := g.resolver.Resolve(ctx)
	if err != nil {
		return Overlay{Kind: OverlayPending}
	}

	snap := g.resolver.Record(ctx)
	if !snap.Ready() {
		return EvaluateOverlay(identity.Role, identity.Impersonating, nil)
	}

	return EvaluateOverlay(identity.Role, identity.Impersonating, snap.Record)
}
