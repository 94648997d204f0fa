package access

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Role is the user's role
type Role = string

const (
	// RoleClient is a regular account holder (dashboard, wallets, exchange)
	RoleClient Role = "client"
	// RoleManager operates the back office for a subset of clients
	RoleManager Role = "manager"
	// RoleAdmin has full back-office access
	RoleAdmin Role = "admin"
)

// AccountStatus is the account's lifecycle status
type AccountStatus = string

const (
	AccountStatusActive    AccountStatus = "active"
	AccountStatusSuspended AccountStatus = "suspended"
	// AccountStatusBlocked is terminal: the account is routed to a dedicated
	// contact page and gets no further app access.
	AccountStatusBlocked AccountStatus = "blocked"
)

// KYCStatus is the verification state of a client's identity documents
type KYCStatus = string

const (
	KYCStatusPending              KYCStatus = "pending"
	KYCStatusAwaitingVerification KYCStatus = "awaiting_verification"
	KYCStatusApproved             KYCStatus = "approved"
	KYCStatusRejected             KYCStatus = "rejected"
)

// UserRecord is the domain profile row backing access decisions
type UserRecord struct {
	bun.BaseModel      `bun:"table:user_records,alias:rec"`
	ID                 uuid.UUID      `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Role               Role           `bun:"user_role,notnull" json:"user_role,omitempty"`
	FirstName          string         `bun:"first_name" json:"first_name,omitempty"`
	LastName           string         `bun:"last_name" json:"last_name,omitempty"`
	Email              string         `bun:"email,notnull,unique" json:"email,omitempty"`
	AccountStatus      AccountStatus  `bun:"account_status,notnull" json:"account_status,omitempty"`
	KYCStatus          KYCStatus      `bun:"kyc_status,notnull" json:"kyc_status,omitempty"`
	KYCRejectionReason string         `bun:"kyc_rejection_reason" json:"kyc_rejection_reason,omitempty"`
	SuspendedAt        *time.Time     `bun:"suspended_at,nullzero" json:"suspended_at,omitempty"`
	Metadata           map[string]any `bun:"metadata" json:"metadata,omitempty"`
	CreatedAt          *time.Time     `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt          *time.Time     `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt          *time.Time     `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// EnsureStatus backfills zero-value statuses with their defaults.
func (u *UserRecord) EnsureStatus() {
	if u.AccountStatus == "" {
		u.AccountStatus = AccountStatusActive
	}
	if u.KYCStatus == "" {
		u.KYCStatus = KYCStatusPending
	}
}

// IsActive reports whether the account is in the active status.
func (u *UserRecord) IsActive() bool {
	return u.AccountStatus == AccountStatusActive
}

// IsSuspended reports whether the account is in the suspended status.
func (u *UserRecord) IsSuspended() bool {
	return u.AccountStatus == AccountStatusSuspended
}

// IsBlocked reports whether the account is in the terminal blocked status.
func (u *UserRecord) IsBlocked() bool {
	return u.AccountStatus == AccountStatusBlocked
}

// KYCApproved reports whether the record's documents were approved.
func (u *UserRecord) KYCApproved() bool {
	return u.KYCStatus == KYCStatusApproved
}

// AddMetadata will append information to a metadata attribute
func (u *UserRecord) AddMetadata(key string, val any) *UserRecord {
	if u.Metadata == nil {
		u.Metadata = make(map[string]any)
	}
	u.Metadata[key] = val
	return u
}

// AppState is a persisted key-value row. It backs the StateStore used for
// state that must outlive a full reload (impersonation override, logout flag).
type AppState struct {
	bun.BaseModel `bun:"table:app_state,alias:st"`
	Key           string     `bun:"key,pk" json:"key"`
	Value         string     `bun:"value,notnull" json:"value"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// ImpersonationOverride records an admin/manager acting as a client.
// At most one override is active at a time.
type ImpersonationOverride struct {
	TargetUserID     string    `json:"target_user_id"`
	StartedByAdminID string    `json:"started_by_admin_id"`
	StartedAt        time.Time `json:"started_at"`
}

// LogoutPhase tracks the visible logout transition
type LogoutPhase = string

const (
	LogoutPhaseIdle LogoutPhase = "idle"
	// LogoutPhaseLoggingOut is set synchronously at logout initiation and
	// cleared only after the destination route has taken over.
	LogoutPhaseLoggingOut LogoutPhase = "logging_out"
)
