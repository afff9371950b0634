package domain

import "time"

// SubscriptionStatus is the billing standing of a tenant.
type SubscriptionStatus string

const (
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionInactive  SubscriptionStatus = "inactive"
	SubscriptionCancelled SubscriptionStatus = "cancelled"
)

// Tenant is one merchant storefront. A user may own several.
type Tenant struct {
	ID                 string
	Slug               string
	Name               string
	OwnerID            string
	IsActive           bool
	SubscriptionStatus SubscriptionStatus
	PlanID             string
	ThemeID            string
	CreatedAt          time.Time
}

// InGoodStanding reports whether the tenant may be operated on. A cancelled
// or inactive subscription locks the tenant regardless of IsActive.
func (t Tenant) InGoodStanding() bool {
	switch t.SubscriptionStatus {
	case SubscriptionInactive, SubscriptionCancelled:
		return false
	}
	return t.IsActive
}

// OwnedBy reports whether the record names userID as its owner. Records
// without an owner are never owned; callers confirm them against the owned
// list.
func (t Tenant) OwnedBy(userID string) bool {
	return userID != "" && t.OwnerID == userID
}

// Equal compares two tenant records field by field.
func (t Tenant) Equal(o Tenant) bool {
	return t.ID == o.ID && t.Slug == o.Slug && t.Name == o.Name &&
		t.OwnerID == o.OwnerID && t.IsActive == o.IsActive &&
		t.SubscriptionStatus == o.SubscriptionStatus && t.PlanID == o.PlanID &&
		t.ThemeID == o.ThemeID && t.CreatedAt.Equal(o.CreatedAt)
}

// FindTenantByID returns the tenant with the given id.
func FindTenantByID(tenants []Tenant, id string) (Tenant, bool) {
	for _, t := range tenants {
		if t.ID == id {
			return t, true
		}
	}
	return Tenant{}, false
}

// FindTenantBySlug returns the tenant with the given slug.
func FindTenantBySlug(tenants []Tenant, slug string) (Tenant, bool) {
	for _, t := range tenants {
		if t.Slug == slug {
			return t, true
		}
	}
	return Tenant{}, false
}

// MostRecentTenant returns the tenant created last. Equal creation times are
// broken by the lexically smallest id so the choice never depends on the
// order the backend listed them in.
func MostRecentTenant(tenants []Tenant) (Tenant, bool) {
	if len(tenants) == 0 {
		return Tenant{}, false
	}
	best := tenants[0]
	for _, t := range tenants[1:] {
		switch {
		case t.CreatedAt.After(best.CreatedAt):
			best = t
		case t.CreatedAt.Equal(best.CreatedAt) && t.ID < best.ID:
			best = t
		}
	}
	return best, true
}
