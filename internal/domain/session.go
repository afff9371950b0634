package domain

import (
	"strings"
	"time"
)

// Role is the normalised platform role of a user.
type Role string

const (
	RoleUser     Role = "user"
	RoleMerchant Role = "merchant"
	RoleAdmin    Role = "admin"
	RoleManager  Role = "manager"
)

// ParseRole normalises a backend role string. Matching is case-insensitive,
// the super-admin spellings collapse to RoleAdmin and anything unknown is a
// plain RoleUser.
func ParseRole(s string) Role {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "admin", "super_admin", "superadmin":
		return RoleAdmin
	case "merchant":
		return RoleMerchant
	case "manager":
		return RoleManager
	default:
		return RoleUser
	}
}

// IsOperator reports whether the role bypasses tenant ownership checks.
func (r Role) IsOperator() bool { return r == RoleAdmin }

// OwnsTenants reports whether the role is a tenant owner.
func (r Role) OwnsTenants() bool { return r == RoleMerchant }

// Profile is the user record served by login and profile fetches.
type Profile struct {
	UserID    string
	Email     string
	Role      Role
	FirstName string
	LastName  string
	Status    string

	// TenantID is the primary store id embedded in the profile, if any.
	TenantID string
	// TenantIDs lists every store id the profile references.
	TenantIDs []string
}

// EmbeddedTenantID returns the tenant id the profile points at: the primary
// id when set, otherwise the first referenced store.
func (p Profile) EmbeddedTenantID() string {
	if p.TenantID != "" {
		return p.TenantID
	}
	if len(p.TenantIDs) > 0 {
		return p.TenantIDs[0]
	}
	return ""
}

// Equal reports whether two profiles carry the same identity and tenant data.
func (p Profile) Equal(o Profile) bool {
	if p.UserID != o.UserID || p.Email != o.Email || p.Role != o.Role ||
		p.FirstName != o.FirstName || p.LastName != o.LastName ||
		p.Status != o.Status || p.TenantID != o.TenantID ||
		len(p.TenantIDs) != len(o.TenantIDs) {
		return false
	}
	for i := range p.TenantIDs {
		if p.TenantIDs[i] != o.TenantIDs[i] {
			return false
		}
	}
	return true
}

// SessionSource records which input produced a session.
type SessionSource string

const (
	SourceCache   SessionSource = "cache"
	SourceProfile SessionSource = "profile"
	SourceLogin   SessionSource = "login"
)

// Session is the in-memory representation of an authenticated user.
type Session struct {
	UserID     string
	Email      string
	Role       Role
	Token      string
	Profile    Profile
	Source     SessionSource
	ResolvedAt time.Time
}

// NewSession builds a session from a token and the profile snapshot it belongs to.
func NewSession(token string, profile Profile, source SessionSource) Session {
	return Session{
		UserID:     profile.UserID,
		Email:      profile.Email,
		Role:       profile.Role,
		Token:      token,
		Profile:    profile,
		Source:     source,
		ResolvedAt: time.Now().UTC(),
	}
}

// Credentials is the persisted bundle. Token, profile, active tenant and the
// pending purchase slug are always written or cleared as one unit.
type Credentials struct {
	Token           string
	Profile         *Profile
	ActiveTenant    *Tenant
	PendingPurchase string
}

// IsZero reports whether nothing is persisted.
func (c Credentials) IsZero() bool {
	return c.Token == "" && c.Profile == nil && c.ActiveTenant == nil && c.PendingPurchase == ""
}
