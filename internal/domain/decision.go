package domain

// DecisionKind is the result class of an access check.
type DecisionKind string

const (
	DecisionAllow                  DecisionKind = "allow"
	DecisionRedirectToLogin        DecisionKind = "redirect_login"
	DecisionRedirectToOnboarding   DecisionKind = "redirect_onboarding"
	DecisionRedirectToPlanPurchase DecisionKind = "redirect_plan_purchase"
	DecisionRedirectToOwnedTenant  DecisionKind = "redirect_owned_tenant"
	DecisionDeny                   DecisionKind = "deny"
)

// Decision is the outcome of Authorize. TenantSlug is set for the plan
// purchase redirect (the requested tenant) and the owned tenant redirect
// (the tenant to go to instead).
type Decision struct {
	Kind       DecisionKind
	TenantSlug string
	Notice     string
}

// Allowed reports whether the route may render.
func (d Decision) Allowed() bool { return d.Kind == DecisionAllow }

// Authorize decides whether session may enter the route of tenant slug,
// given the tenants the session's user owns. It has no side effects.
func Authorize(session *Session, owned []Tenant, slug string) Decision {
	if session == nil {
		return Decision{Kind: DecisionRedirectToLogin, Notice: "Please login to access this page"}
	}

	if session.Role.IsOperator() {
		return Decision{Kind: DecisionAllow}
	}

	if !session.Role.OwnsTenants() {
		return Decision{Kind: DecisionDeny, Notice: "Access denied. Merchant privileges required."}
	}

	if len(owned) == 0 {
		return Decision{Kind: DecisionRedirectToOnboarding, Notice: "No store found for your account"}
	}

	requested, ok := FindTenantBySlug(owned, slug)
	if !ok {
		return Decision{
			Kind:       DecisionRedirectToOwnedTenant,
			TenantSlug: owned[0].Slug,
			Notice:     "Access denied. You can only access your own stores.",
		}
	}

	if !requested.InGoodStanding() {
		return Decision{
			Kind:       DecisionRedirectToPlanPurchase,
			TenantSlug: requested.Slug,
			Notice:     "Your store is inactive. Please purchase a plan to reactivate it.",
		}
	}

	return Decision{Kind: DecisionAllow}
}
