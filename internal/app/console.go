package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/neomorfeo/storeconsole/internal/domain"
)

// State is what the console shows after loading: the session, the active
// tenant, and whether the user still has to create a tenant.
type State struct {
	Session         *domain.Session
	ActiveTenant    *domain.Tenant
	NeedsOnboarding bool
}

// Console ties session, tenant, access and activation handling together.
// Any auth-expired failure from a collaborator tears the session down.
type Console struct {
	sessions *SessionResolver
	tenants  *TenantResolver
	guard    *AccessGuard
	poller   *ActivationPoller
	dir      domain.TenantDirectory
	logger   *slog.Logger

	mu     sync.Mutex
	active *domain.Tenant
}

// NewConsole wires the services. Jobs failing on an expired token tear the
// session down through the console. A nil logger means slog.Default().
func NewConsole(sessions *SessionResolver, tenants *TenantResolver, guard *AccessGuard, poller *ActivationPoller, dir domain.TenantDirectory, logger *slog.Logger) *Console {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Console{
		sessions: sessions,
		tenants:  tenants,
		guard:    guard,
		poller:   poller,
		dir:      dir,
		logger:   logger,
	}
	if poller.onAuthExpired == nil {
		poller.onAuthExpired = c.teardown
	}
	return c
}

// Load resolves the session and then the active tenant. A transient tenant
// failure returns the last known tenant together with the error.
func (c *Console) Load(ctx context.Context) (State, error) {
	sess := c.sessions.Resolve(ctx)
	if sess == nil {
		return State{}, nil
	}
	return c.loadTenant(ctx, sess)
}

func (c *Console) loadTenant(ctx context.Context, sess *domain.Session) (State, error) {
	state := State{Session: sess}

	tenant, err := c.tenants.ResolveActiveTenant(ctx, sess)
	switch {
	case err == nil:
		c.setActive(&tenant)
		state.ActiveTenant = &tenant
		return state, nil
	case errors.Is(err, domain.ErrNoTenants):
		c.setActive(nil)
		state.NeedsOnboarding = true
		return state, nil
	case domain.IsAuthExpired(err):
		c.teardown(ctx)
		return State{}, nil
	default:
		state.ActiveTenant = c.activeTenant()
		return state, fmt.Errorf("resolving active tenant: %w", err)
	}
}

// Login authenticates and resolves the active tenant of the new session.
// Activations of the previous session are cancelled first.
func (c *Console) Login(ctx context.Context, email, password string) (State, error) {
	c.poller.CancelAll()
	c.setActive(nil)

	sess, err := c.sessions.Login(ctx, email, password)
	if err != nil {
		return State{}, err
	}
	return c.loadTenant(ctx, sess)
}

// Logout cancels all activations and ends the session.
func (c *Console) Logout(ctx context.Context) error {
	c.poller.CancelAll()
	c.setActive(nil)
	return c.sessions.Logout(ctx)
}

// Session returns the resolved session, or nil.
func (c *Console) Session(ctx context.Context) *domain.Session {
	return c.sessions.Resolve(ctx)
}

// Authorize decides whether the current session may enter tenant slug.
func (c *Console) Authorize(ctx context.Context, slug string) (domain.Decision, error) {
	sess := c.sessions.Resolve(ctx)
	decision, err := c.guard.Check(ctx, sess, slug)
	if domain.IsAuthExpired(err) {
		c.teardown(ctx)
		return decision, nil
	}
	return decision, err
}

// SwitchTenant makes the tenant with id active.
func (c *Console) SwitchTenant(ctx context.Context, id string) (domain.Tenant, error) {
	sess := c.sessions.Resolve(ctx)
	if sess == nil {
		return domain.Tenant{}, domain.ErrNoSession
	}
	tenant, err := c.tenants.SwitchActiveTenant(ctx, sess, id)
	if err != nil {
		return domain.Tenant{}, c.checkAuth(ctx, err)
	}
	c.setActive(&tenant)
	return tenant, nil
}

// StartTheme begins activating a theme on tenant slug and returns the job
// without waiting for it.
func (c *Console) StartTheme(ctx context.Context, slug, themeID, themeSlug string) (domain.ActivationJob, error) {
	req, err := c.activationRequest(ctx, slug, themeID, themeSlug)
	if err != nil {
		return domain.ActivationJob{}, err
	}
	return c.poller.Start(ctx, req)
}

// ApplyTheme activates a theme on tenant slug and waits for the outcome.
func (c *Console) ApplyTheme(ctx context.Context, slug, themeID, themeSlug string) (domain.Outcome, error) {
	req, err := c.activationRequest(ctx, slug, themeID, themeSlug)
	if err != nil {
		return domain.Outcome{}, err
	}
	return c.poller.ApplyTheme(ctx, req)
}

// activationRequest checks that the session may operate on slug and builds
// the request for its tenant.
func (c *Console) activationRequest(ctx context.Context, slug, themeID, themeSlug string) (domain.ActivationRequest, error) {
	decision, err := c.Authorize(ctx, slug)
	if err != nil {
		return domain.ActivationRequest{}, err
	}
	if decision.Kind == domain.DecisionRedirectToLogin {
		return domain.ActivationRequest{}, domain.ErrNoSession
	}
	if !decision.Allowed() {
		return domain.ActivationRequest{}, &domain.AccessError{Slug: slug, Decision: decision}
	}

	tenant, err := c.tenantBySlug(ctx, slug)
	if err != nil {
		return domain.ActivationRequest{}, err
	}
	return domain.ActivationRequest{
		TenantID:   tenant.ID,
		TenantSlug: tenant.Slug,
		ThemeID:    themeID,
		ThemeSlug:  themeSlug,
	}, nil
}

// CancelActivation stops the running activation of tenant slug and reports
// whether one was running.
func (c *Console) CancelActivation(ctx context.Context, slug string) (bool, error) {
	tenant, err := c.tenantBySlug(ctx, slug)
	if err != nil {
		return false, err
	}
	return c.poller.Cancel(tenant.ID), nil
}

// LastActivation returns the running or most recent activation of slug.
func (c *Console) LastActivation(ctx context.Context, slug string) (domain.ActivationJob, error) {
	tenant, err := c.tenantBySlug(ctx, slug)
	if err != nil {
		return domain.ActivationJob{}, err
	}
	job, ok := c.poller.Last(tenant.ID)
	if !ok {
		return domain.ActivationJob{}, fmt.Errorf("activation for tenant %q: %w", slug, domain.ErrNotFound)
	}
	return job, nil
}

// Recheck asks once whether the theme of the last activation of slug has
// been applied, typically after the job timed out.
func (c *Console) Recheck(ctx context.Context, slug string) (bool, error) {
	job, err := c.LastActivation(ctx, slug)
	if err != nil {
		return false, err
	}
	ok, err := c.poller.Recheck(ctx, job.Request.TenantSlug, job.Request.ThemeID)
	if err != nil {
		return false, c.checkAuth(ctx, err)
	}
	return ok, nil
}

// Close cancels every activation. The session is kept.
func (c *Console) Close() {
	c.poller.CancelAll()
	c.sessions.Wait()
}

// tenantBySlug uses the active tenant when it matches and asks the backend
// otherwise.
func (c *Console) tenantBySlug(ctx context.Context, slug string) (domain.Tenant, error) {
	if c.sessions.Resolve(ctx) == nil {
		return domain.Tenant{}, domain.ErrNoSession
	}
	if active := c.activeTenant(); active != nil && active.Slug == slug {
		return *active, nil
	}
	tenant, err := c.dir.GetBySlug(ctx, slug)
	if err != nil {
		return domain.Tenant{}, c.checkAuth(ctx, fmt.Errorf("getting tenant %q: %w", slug, err))
	}
	return tenant, nil
}

// checkAuth tears the session down when err is auth-expired and returns err.
func (c *Console) checkAuth(ctx context.Context, err error) error {
	if domain.IsAuthExpired(err) {
		c.teardown(ctx)
	}
	return err
}

func (c *Console) teardown(ctx context.Context) {
	c.logger.WarnContext(ctx, "authentication expired, ending session")
	if err := c.Logout(ctx); err != nil {
		c.logger.ErrorContext(ctx, "ending session", "error", err)
	}
}

func (c *Console) setActive(t *domain.Tenant) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t == nil {
		c.active = nil
		return
	}
	cp := *t
	c.active = &cp
}

func (c *Console) activeTenant() *domain.Tenant {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return nil
	}
	cp := *c.active
	return &cp
}
