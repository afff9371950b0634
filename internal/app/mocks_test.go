package app_test

import (
	"context"
	"sync"
	"time"

	"github.com/neomorfeo/storeconsole/internal/domain"
)

// --- Credential store ---

type memStore struct {
	mu    sync.Mutex
	creds domain.Credentials
	saves int
	err   error

	// afterLoad runs once Load has read the bundle, before it is returned.
	afterLoad func()
}

func (m *memStore) Load(context.Context) (domain.Credentials, error) {
	m.mu.Lock()
	creds, err := m.creds, m.err
	m.mu.Unlock()
	if m.afterLoad != nil {
		m.afterLoad()
	}
	if err != nil {
		return domain.Credentials{}, err
	}
	return creds, nil
}

func (m *memStore) Save(_ context.Context, c domain.Credentials) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.creds = c
	m.saves++
	return nil
}

func (m *memStore) Update(_ context.Context, fn func(*domain.Credentials) bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	c := m.creds
	if fn(&c) {
		m.creds = c
		m.saves++
	}
	return nil
}

func (m *memStore) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creds = domain.Credentials{}
	return nil
}

func (m *memStore) snapshot() (domain.Credentials, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.creds, m.saves
}

// --- Token holder ---

type mockTokens struct {
	mu    sync.Mutex
	token string
}

func (m *mockTokens) Set(token string) {
	m.mu.Lock()
	m.token = token
	m.mu.Unlock()
}

func (m *mockTokens) Clear() { m.Set("") }

func (m *mockTokens) Token() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token
}

// --- Backend ---

// fakeBackend implements every backend port. Hooks are optional; unset
// hooks serve from the fields.
type fakeBackend struct {
	mu sync.Mutex

	profile   domain.Profile
	loginRes  domain.LoginResult
	tenants   []domain.Tenant
	themeByID map[string]string

	profileFn func(ctx context.Context) (domain.Profile, error)
	loginFn   func(ctx context.Context, email, password string) (domain.LoginResult, error)
	getByIDFn func(ctx context.Context, id string) (domain.Tenant, error)
	listFn    func(ctx context.Context) ([]domain.Tenant, error)
	bySlugFn  func(ctx context.Context, slug string) (domain.Tenant, error)
	applyFn   func(ctx context.Context, tenantSlug, themeSlug string) (domain.ApplyResult, error)

	profileCalls int
	getByIDCalls int
	listCalls    int
	bySlugCalls  int
	applyCalls   []string
	checkTimes   []time.Time
}

func (f *fakeBackend) Login(ctx context.Context, email, password string) (domain.LoginResult, error) {
	if f.loginFn != nil {
		return f.loginFn(ctx, email, password)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loginRes, nil
}

func (f *fakeBackend) Profile(ctx context.Context) (domain.Profile, error) {
	f.mu.Lock()
	f.profileCalls++
	fn, p := f.profileFn, f.profile
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx)
	}
	return p, nil
}

func (f *fakeBackend) GetByID(ctx context.Context, id string) (domain.Tenant, error) {
	f.mu.Lock()
	f.getByIDCalls++
	fn := f.getByIDFn
	tenants := append([]domain.Tenant(nil), f.tenants...)
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx, id)
	}
	if t, ok := domain.FindTenantByID(tenants, id); ok {
		return t, nil
	}
	return domain.Tenant{}, &domain.APIError{Op: "get store", Status: 404, Kind: domain.ErrNotFound}
}

func (f *fakeBackend) ListOwned(ctx context.Context) ([]domain.Tenant, error) {
	f.mu.Lock()
	f.listCalls++
	fn := f.listFn
	tenants := append([]domain.Tenant(nil), f.tenants...)
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx)
	}
	return tenants, nil
}

func (f *fakeBackend) GetBySlug(ctx context.Context, slug string) (domain.Tenant, error) {
	f.mu.Lock()
	f.bySlugCalls++
	f.checkTimes = append(f.checkTimes, time.Now())
	fn := f.bySlugFn
	tenants := append([]domain.Tenant(nil), f.tenants...)
	theme := f.themeByID[slug]
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx, slug)
	}
	t, ok := domain.FindTenantBySlug(tenants, slug)
	if !ok {
		return domain.Tenant{}, &domain.APIError{Op: "get store by slug", Status: 404, Kind: domain.ErrNotFound}
	}
	if theme != "" {
		t.ThemeID = theme
	}
	return t, nil
}

func (f *fakeBackend) ApplyTheme(ctx context.Context, tenantSlug, themeSlug string) (domain.ApplyResult, error) {
	f.mu.Lock()
	f.applyCalls = append(f.applyCalls, themeSlug)
	fn := f.applyFn
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx, tenantSlug, themeSlug)
	}
	return domain.ApplyResult{Status: domain.ApplyProcessing}, nil
}

func (f *fakeBackend) setTheme(slug, themeID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.themeByID == nil {
		f.themeByID = make(map[string]string)
	}
	f.themeByID[slug] = themeID
}

func (f *fakeBackend) counts() (profile, getByID, list, bySlug int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.profileCalls, f.getByIDCalls, f.listCalls, f.bySlugCalls
}

func (f *fakeBackend) applies() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.applyCalls...)
}

// --- Notifier ---

type recordingNotifier struct {
	mu   sync.Mutex
	jobs []domain.ActivationJob
}

func (r *recordingNotifier) Notify(_ context.Context, job domain.ActivationJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs = append(r.jobs, job)
	return nil
}

func (r *recordingNotifier) states(jobID string) []domain.JobState {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.JobState
	for _, j := range r.jobs {
		if j.ID == jobID {
			out = append(out, j.State)
		}
	}
	return out
}

// --- Fixtures ---

var (
	authExpired = &domain.APIError{Op: "test", Status: 401, Kind: domain.ErrAuthExpired}
	transient   = &domain.APIError{Op: "test", Status: 503, Kind: domain.ErrTransient}
)

func merchantProfile() domain.Profile {
	return domain.Profile{UserID: "u1", Email: "m@example.com", Role: domain.RoleMerchant, FirstName: "Mia"}
}

func ownedTenants() []domain.Tenant {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return []domain.Tenant{
		{ID: "s1", Slug: "acme", OwnerID: "u1", IsActive: true, SubscriptionStatus: domain.SubscriptionActive, ThemeID: "t0", CreatedAt: base},
		{ID: "s2", Slug: "globex", OwnerID: "u1", IsActive: false, SubscriptionStatus: domain.SubscriptionInactive, CreatedAt: base.Add(48 * time.Hour)},
		{ID: "s3", Slug: "initech", OwnerID: "u1", IsActive: true, SubscriptionStatus: domain.SubscriptionActive, CreatedAt: base.Add(24 * time.Hour)},
	}
}
