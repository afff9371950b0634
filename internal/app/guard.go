package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/neomorfeo/storeconsole/internal/domain"
)

// AccessGuard decides whether a session may enter a tenant route. It gathers
// what domain.Authorize needs and applies the decision's side effects.
type AccessGuard struct {
	store  domain.CredentialStore
	dir    domain.TenantDirectory
	logger *slog.Logger
}

// NewAccessGuard creates a guard. A nil logger means slog.Default().
func NewAccessGuard(store domain.CredentialStore, dir domain.TenantDirectory, logger *slog.Logger) *AccessGuard {
	if logger == nil {
		logger = slog.Default()
	}
	return &AccessGuard{store: store, dir: dir, logger: logger}
}

// Check authorizes session for the tenant route slug. The owned list is only
// fetched for tenant owners. On 401/403 it returns RedirectToLogin together
// with the auth-expired error so the caller can tear the session down; other
// fetch failures return the error and an empty decision.
func (g *AccessGuard) Check(ctx context.Context, session *domain.Session, slug string) (domain.Decision, error) {
	var owned []domain.Tenant
	if session != nil && session.Role.OwnsTenants() {
		list, err := g.dir.ListOwned(ctx)
		switch {
		case err == nil:
			owned = list
		case domain.IsAuthExpired(err):
			return domain.Authorize(nil, nil, slug), err
		default:
			return domain.Decision{}, fmt.Errorf("listing owned tenants: %w", err)
		}
	}

	decision := domain.Authorize(session, owned, slug)

	if decision.Kind == domain.DecisionRedirectToPlanPurchase {
		g.rememberPendingPurchase(ctx, session, decision.TenantSlug)
	}
	if !decision.Allowed() {
		g.logger.InfoContext(ctx, "access redirected",
			"tenant_slug", slug,
			"decision", decision.Kind,
			"redirect_slug", decision.TenantSlug,
		)
	}
	return decision, nil
}

// rememberPendingPurchase stores slug so the purchase flow can return to it.
// A failed write only loses that convenience.
func (g *AccessGuard) rememberPendingPurchase(ctx context.Context, session *domain.Session, slug string) {
	err := g.store.Update(ctx, func(c *domain.Credentials) bool {
		if c.Token != session.Token || c.PendingPurchase == slug {
			return false
		}
		c.PendingPurchase = slug
		return true
	})
	if err != nil {
		g.logger.WarnContext(ctx, "persisting pending purchase", "tenant_slug", slug, "error", err)
	}
}
