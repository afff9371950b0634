package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/neomorfeo/storeconsole/internal/domain"
)

// TenantResolver picks the tenant the console operates against and keeps the
// choice sticky across restarts.
type TenantResolver struct {
	store  domain.CredentialStore
	dir    domain.TenantDirectory
	logger *slog.Logger
}

// NewTenantResolver creates a resolver. A nil logger means slog.Default().
func NewTenantResolver(store domain.CredentialStore, dir domain.TenantDirectory, logger *slog.Logger) *TenantResolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &TenantResolver{store: store, dir: dir, logger: logger}
}

// ResolveActiveTenant returns the active tenant for session. It tries a
// direct lookup first and falls back to the owned list, returning
// domain.ErrNoTenants when the user owns none. A direct lookup is only
// trusted when the record names the user as owner.
func (r *TenantResolver) ResolveActiveTenant(ctx context.Context, session *domain.Session) (domain.Tenant, error) {
	if session == nil {
		return domain.Tenant{}, domain.ErrNoSession
	}

	creds, err := r.store.Load(ctx)
	if err != nil {
		return domain.Tenant{}, fmt.Errorf("loading credentials: %w", err)
	}

	persistedID := ""
	if creds.ActiveTenant != nil {
		persistedID = creds.ActiveTenant.ID
	}

	candidate := persistedID
	if candidate == "" {
		candidate = session.Profile.EmbeddedTenantID()
	}

	if candidate != "" {
		tenant, err := r.dir.GetByID(ctx, candidate)
		switch {
		case err == nil && tenant.OwnedBy(session.UserID):
			return r.persist(ctx, session, tenant)
		case err == nil && tenant.OwnerID == "":
			r.logger.DebugContext(ctx, "candidate tenant has no owner, confirming against owned list",
				"tenant_id", candidate)
		case err == nil:
			r.logger.WarnContext(ctx, "candidate tenant not owned, falling back to owned list",
				"tenant_id", candidate, "user_id", session.UserID)
		case domain.IsAuthExpired(err):
			return domain.Tenant{}, err
		default:
			r.logger.DebugContext(ctx, "direct tenant lookup failed, falling back to owned list",
				"tenant_id", candidate, "error", err)
		}
	}

	owned, err := r.dir.ListOwned(ctx)
	if err != nil {
		return domain.Tenant{}, fmt.Errorf("listing owned tenants: %w", err)
	}
	if len(owned) == 0 {
		return domain.Tenant{}, domain.ErrNoTenants
	}

	if candidate != "" {
		if tenant, ok := domain.FindTenantByID(owned, candidate); ok {
			return r.persist(ctx, session, tenant)
		}
	}

	tenant, _ := domain.MostRecentTenant(owned)
	return r.persist(ctx, session, tenant)
}

// SwitchActiveTenant makes the tenant with id active. Merchants may only
// switch to tenants they own; operators may switch to any tenant.
func (r *TenantResolver) SwitchActiveTenant(ctx context.Context, session *domain.Session, id string) (domain.Tenant, error) {
	if session == nil {
		return domain.Tenant{}, domain.ErrNoSession
	}

	var tenant domain.Tenant
	if session.Role.IsOperator() {
		t, err := r.dir.GetByID(ctx, id)
		if err != nil {
			return domain.Tenant{}, fmt.Errorf("getting tenant %q: %w", id, err)
		}
		tenant = t
	} else {
		owned, err := r.dir.ListOwned(ctx)
		if err != nil {
			return domain.Tenant{}, fmt.Errorf("listing owned tenants: %w", err)
		}
		t, ok := domain.FindTenantByID(owned, id)
		if !ok {
			return domain.Tenant{}, &domain.OwnershipError{TenantID: id, UserID: session.UserID}
		}
		tenant = t
	}

	t, err := r.persist(ctx, session, tenant)
	if err != nil {
		return domain.Tenant{}, err
	}
	r.logger.InfoContext(ctx, "active tenant switched", "tenant_id", t.ID, "user_id", session.UserID)
	return t, nil
}

// persist records tenant as active unless it already is. A bundle that no
// longer belongs to session is left alone, so a resolution racing a logout
// cannot write the old token back.
func (r *TenantResolver) persist(ctx context.Context, session *domain.Session, tenant domain.Tenant) (domain.Tenant, error) {
	err := r.store.Update(ctx, func(c *domain.Credentials) bool {
		if c.Token != session.Token {
			return false
		}
		if c.ActiveTenant != nil && c.ActiveTenant.Equal(tenant) {
			return false
		}
		c.ActiveTenant = &tenant
		return true
	})
	if err != nil {
		return domain.Tenant{}, fmt.Errorf("persisting active tenant: %w", err)
	}
	return tenant, nil
}
