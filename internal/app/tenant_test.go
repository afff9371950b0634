package app_test

import (
	"context"
	"errors"
	"testing"

	"github.com/neomorfeo/storeconsole/internal/app"
	"github.com/neomorfeo/storeconsole/internal/domain"
)

func merchantSession(token string) *domain.Session {
	sess := domain.NewSession(token, merchantProfile(), domain.SourceCache)
	return &sess
}

func TestResolveActiveTenant_PersistedFastPath(t *testing.T) {
	tenants := ownedTenants()
	backend := &fakeBackend{tenants: tenants}
	store := &memStore{creds: domain.Credentials{Token: "tok", ActiveTenant: &tenants[2]}}
	r := app.NewTenantResolver(store, backend, nil)

	got, err := r.ResolveActiveTenant(context.Background(), merchantSession("tok"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != "s3" {
		t.Errorf("ID = %q, want s3", got.ID)
	}
	_, getByID, list, _ := backend.counts()
	if getByID != 1 || list != 0 {
		t.Errorf("GetByID=%d ListOwned=%d, want one direct lookup only", getByID, list)
	}
	if _, saves := store.snapshot(); saves != 0 {
		t.Errorf("unchanged selection was rewritten (%d saves)", saves)
	}
}

func TestResolveActiveTenant_ProfileEmbeddedID(t *testing.T) {
	backend := &fakeBackend{tenants: ownedTenants()}
	store := &memStore{creds: domain.Credentials{Token: "tok"}}
	r := app.NewTenantResolver(store, backend, nil)

	sess := merchantSession("tok")
	sess.Profile.TenantID = "s1"

	got, err := r.ResolveActiveTenant(context.Background(), sess)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != "s1" {
		t.Errorf("ID = %q, want s1", got.ID)
	}
	creds, saves := store.snapshot()
	if saves != 1 || creds.ActiveTenant == nil || creds.ActiveTenant.ID != "s1" {
		t.Errorf("selection not persisted: saves=%d active=%+v", saves, creds.ActiveTenant)
	}
}

func TestResolveActiveTenant_FallsBackToMostRecent(t *testing.T) {
	backend := &fakeBackend{tenants: ownedTenants()}
	store := &memStore{creds: domain.Credentials{Token: "tok"}}
	r := app.NewTenantResolver(store, backend, nil)

	got, err := r.ResolveActiveTenant(context.Background(), merchantSession("tok"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != "s2" {
		t.Errorf("ID = %q, want most recent s2", got.ID)
	}
}

func TestResolveActiveTenant_NotOwnedCandidateFallsBack(t *testing.T) {
	foreign := domain.Tenant{ID: "x9", Slug: "foreign", OwnerID: "someone-else"}
	backend := &fakeBackend{
		tenants: ownedTenants(),
		getByIDFn: func(context.Context, string) (domain.Tenant, error) {
			return foreign, nil
		},
	}
	store := &memStore{creds: domain.Credentials{Token: "tok", ActiveTenant: &foreign}}
	r := app.NewTenantResolver(store, backend, nil)

	got, err := r.ResolveActiveTenant(context.Background(), merchantSession("tok"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != "s2" {
		t.Errorf("ID = %q, want owned s2", got.ID)
	}
}

func TestResolveActiveTenant_OwnerlessCandidateConfirmedByList(t *testing.T) {
	tests := []struct {
		name      string
		candidate domain.Tenant
		wantID    string
	}{
		{"listed as owned", domain.Tenant{ID: "s1", Slug: "acme"}, "s1"},
		{"not in owned list", domain.Tenant{ID: "x9", Slug: "foreign"}, "s2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &fakeBackend{
				tenants: ownedTenants(),
				getByIDFn: func(context.Context, string) (domain.Tenant, error) {
					return tt.candidate, nil
				},
			}
			store := &memStore{creds: domain.Credentials{Token: "tok", ActiveTenant: &tt.candidate}}
			r := app.NewTenantResolver(store, backend, nil)

			got, err := r.ResolveActiveTenant(context.Background(), merchantSession("tok"))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.ID != tt.wantID {
				t.Errorf("ID = %q, want %q", got.ID, tt.wantID)
			}
			if got.OwnerID != "u1" {
				t.Errorf("OwnerID = %q, want the owned-list record", got.OwnerID)
			}
			if _, _, list, _ := backend.counts(); list != 1 {
				t.Errorf("ListOwned called %d times, want 1", list)
			}
		})
	}
}

func TestResolveActiveTenant_PersistedIDHonoredFromList(t *testing.T) {
	tenants := ownedTenants()
	backend := &fakeBackend{
		tenants: tenants,
		getByIDFn: func(context.Context, string) (domain.Tenant, error) {
			return domain.Tenant{}, transient
		},
	}
	store := &memStore{creds: domain.Credentials{Token: "tok", ActiveTenant: &tenants[0]}}
	r := app.NewTenantResolver(store, backend, nil)

	got, err := r.ResolveActiveTenant(context.Background(), merchantSession("tok"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != "s1" {
		t.Errorf("ID = %q, want persisted s1", got.ID)
	}
}

func TestResolveActiveTenant_Errors(t *testing.T) {
	tests := []struct {
		name    string
		backend *fakeBackend
		check   func(error) bool
	}{
		{
			name:    "no tenants",
			backend: &fakeBackend{},
			check:   func(err error) bool { return errors.Is(err, domain.ErrNoTenants) },
		},
		{
			name: "list transient",
			backend: &fakeBackend{listFn: func(context.Context) ([]domain.Tenant, error) {
				return nil, transient
			}},
			check: domain.IsTransient,
		},
		{
			name: "direct lookup auth expired",
			backend: &fakeBackend{getByIDFn: func(context.Context, string) (domain.Tenant, error) {
				return domain.Tenant{}, authExpired
			}},
			check: domain.IsAuthExpired,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &memStore{creds: domain.Credentials{Token: "tok", ActiveTenant: &domain.Tenant{ID: "s1"}}}
			r := app.NewTenantResolver(store, tt.backend, nil)

			_, err := r.ResolveActiveTenant(context.Background(), merchantSession("tok"))
			if !tt.check(err) {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestResolveActiveTenant_NoSession(t *testing.T) {
	r := app.NewTenantResolver(&memStore{}, &fakeBackend{}, nil)
	if _, err := r.ResolveActiveTenant(context.Background(), nil); !errors.Is(err, domain.ErrNoSession) {
		t.Errorf("expected ErrNoSession, got %v", err)
	}
}

func TestResolveActiveTenant_SkipsWriteForForeignBundle(t *testing.T) {
	backend := &fakeBackend{tenants: ownedTenants()}
	store := &memStore{creds: domain.Credentials{Token: "other-token"}}
	r := app.NewTenantResolver(store, backend, nil)

	if _, err := r.ResolveActiveTenant(context.Background(), merchantSession("tok")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, saves := store.snapshot(); saves != 0 {
		t.Errorf("bundle of another session was written")
	}
}

func TestSwitchActiveTenant(t *testing.T) {
	backend := &fakeBackend{tenants: ownedTenants()}
	store := &memStore{creds: domain.Credentials{Token: "tok"}}
	r := app.NewTenantResolver(store, backend, nil)
	ctx := context.Background()

	got, err := r.SwitchActiveTenant(ctx, merchantSession("tok"), "s3")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Slug != "initech" {
		t.Errorf("Slug = %q, want initech", got.Slug)
	}
	if creds, _ := store.snapshot(); creds.ActiveTenant == nil || creds.ActiveTenant.ID != "s3" {
		t.Errorf("switch not persisted: %+v", creds.ActiveTenant)
	}

	_, err = r.SwitchActiveTenant(ctx, merchantSession("tok"), "x9")
	var ownErr *domain.OwnershipError
	if !errors.As(err, &ownErr) {
		t.Fatalf("expected *OwnershipError, got %v", err)
	}
	if ownErr.TenantID != "x9" || ownErr.UserID != "u1" {
		t.Errorf("unexpected ownership error %+v", ownErr)
	}
}

func TestSwitchActiveTenant_OperatorBypassesOwnership(t *testing.T) {
	foreign := domain.Tenant{ID: "x9", Slug: "foreign", OwnerID: "someone-else"}
	backend := &fakeBackend{tenants: []domain.Tenant{foreign}}
	store := &memStore{creds: domain.Credentials{Token: "tok"}}
	r := app.NewTenantResolver(store, backend, nil)

	admin := domain.NewSession("tok", domain.Profile{UserID: "a1", Role: domain.RoleAdmin}, domain.SourceLogin)
	got, err := r.SwitchActiveTenant(context.Background(), &admin, "x9")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != "x9" {
		t.Errorf("ID = %q, want x9", got.ID)
	}
	if _, _, list, _ := backend.counts(); list != 0 {
		t.Errorf("operator switch listed owned tenants")
	}
}
