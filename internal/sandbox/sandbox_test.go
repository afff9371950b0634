package sandbox_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/neomorfeo/storeconsole/internal/domain"
	"github.com/neomorfeo/storeconsole/internal/sandbox"
)

var base = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	sb     *sandbox.Sandbox
	srv    *httptest.Server
	owner  sandbox.User
	stores []sandbox.Store
	theme  sandbox.Theme
}

func newFixture(t *testing.T, delay time.Duration) fixture {
	t.Helper()
	ctx := context.Background()

	sb, err := sandbox.Open(ctx, sandbox.Config{
		DatabasePath:      t.TempDir() + "/sandbox.db",
		Secret:            []byte("test-secret"),
		BuildDelay:        delay,
		FetchPollInterval: 20 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("opening sandbox: %v", err)
	}
	if err := sb.Start(ctx); err != nil {
		t.Fatalf("starting sandbox: %v", err)
	}
	t.Cleanup(func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := sb.Close(stopCtx); err != nil {
			t.Errorf("closing sandbox: %v", err)
		}
	})

	owner, stores, err := sb.Seed(ctx, sandbox.User{Email: "mia@example.com", FirstName: "Mia"}, "hunter2",
		sandbox.Store{Slug: "acme", Name: "Acme", IsActive: true, CreatedAt: base},
		sandbox.Store{Slug: "globex", Name: "Globex", IsActive: true, CreatedAt: base.Add(time.Hour)},
	)
	if err != nil {
		t.Fatalf("seeding owner: %v", err)
	}
	if _, _, err := sb.Seed(ctx, sandbox.User{Email: "other@example.com"}, "pw",
		sandbox.Store{Slug: "initech", IsActive: true, CreatedAt: base},
	); err != nil {
		t.Fatalf("seeding other: %v", err)
	}
	theme, err := sb.SeedTheme(ctx, "aurora", "Aurora")
	if err != nil {
		t.Fatalf("seeding theme: %v", err)
	}

	srv := httptest.NewServer(sb.Handler())
	t.Cleanup(srv.Close)

	return fixture{sb: sb, srv: srv, owner: owner, stores: stores, theme: theme}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Status  json.RawMessage `json:"status"`
	Detail  string          `json:"detail"`
}

func (f fixture) do(t *testing.T, method, path, token, body string) (int, envelope) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(context.Background(), method, f.srv.URL+path, reader)
	if err != nil {
		t.Fatalf("creating request: %v", err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, path, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decoding %s %s: %v", method, path, err)
	}
	return resp.StatusCode, env
}

func (f fixture) login(t *testing.T, email, password string) string {
	t.Helper()
	status, env := f.do(t, http.MethodPost, "/auth/login", "", `{"email":"`+email+`","password":"`+password+`"}`)
	if status != http.StatusOK {
		t.Fatalf("login status = %d, want 200 (%s)", status, env.Detail)
	}
	var data sandbox.LoginData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("decoding login data: %v", err)
	}
	return data.Token
}

func TestLogin_ReturnsTokenAndProfile(t *testing.T) {
	f := newFixture(t, 0)

	status, env := f.do(t, http.MethodPost, "/auth/login", "", `{"email":"MIA@example.com","password":"hunter2"}`)
	if status != http.StatusOK || !env.Success {
		t.Fatalf("status = %d success = %v, want 200 true", status, env.Success)
	}

	var data sandbox.LoginData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if data.Token == "" {
		t.Error("expected a token")
	}
	if data.User.ID != f.owner.ID || data.User.Role != "merchant" {
		t.Errorf("user = %+v, want id %s role merchant", data.User, f.owner.ID)
	}
	if len(data.User.Stores) != 2 || data.User.StoreID != f.stores[1].ID {
		t.Errorf("stores = %v storeId = %q, want 2 stores with newest %s first", data.User.Stores, data.User.StoreID, f.stores[1].ID)
	}
}

func TestLogin_RejectsBadCredentials(t *testing.T) {
	f := newFixture(t, 0)

	tests := []struct {
		name string
		body string
	}{
		{"wrong password", `{"email":"mia@example.com","password":"nope"}`},
		{"unknown email", `{"email":"ghost@example.com","password":"hunter2"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, env := f.do(t, http.MethodPost, "/auth/login", "", tt.body)
			if status != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", status)
			}
			if env.Detail != "invalid email or password" {
				t.Errorf("detail = %q", env.Detail)
			}
		})
	}
}

func TestProfile_RequiresValidToken(t *testing.T) {
	f := newFixture(t, 0)

	expired, err := sandbox.NewTokenIssuer([]byte("test-secret"), -time.Minute).Issue(f.owner.ID)
	if err != nil {
		t.Fatalf("issuing expired token: %v", err)
	}
	forged, err := sandbox.NewTokenIssuer([]byte("other-secret"), time.Hour).Issue(f.owner.ID)
	if err != nil {
		t.Fatalf("issuing forged token: %v", err)
	}

	tests := []struct {
		name  string
		token string
	}{
		{"missing", ""},
		{"garbage", "not-a-jwt"},
		{"expired", expired},
		{"wrong signature", forged},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, _ := f.do(t, http.MethodGet, "/auth/profile", tt.token, "")
			if status != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", status)
			}
		})
	}

	token := f.login(t, "mia@example.com", "hunter2")
	status, env := f.do(t, http.MethodGet, "/auth/profile", token, "")
	if status != http.StatusOK {
		t.Fatalf("valid token status = %d, want 200", status)
	}
	var data sandbox.ProfileData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if data.User.Email != "mia@example.com" {
		t.Errorf("email = %q", data.User.Email)
	}
}

func TestListStores_OwnedOnlyNewestFirst(t *testing.T) {
	f := newFixture(t, 0)
	token := f.login(t, "mia@example.com", "hunter2")

	status, env := f.do(t, http.MethodGet, "/store", token, "")
	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	var stores []sandbox.StoreJSON
	if err := json.Unmarshal(env.Data, &stores); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if len(stores) != 2 || stores[0].StoreSlug != "globex" || stores[1].StoreSlug != "acme" {
		t.Errorf("stores = %+v, want globex then acme", stores)
	}
	for _, s := range stores {
		if s.OwnerID != f.owner.ID {
			t.Errorf("store %s owned by %s, want %s", s.StoreSlug, s.OwnerID, f.owner.ID)
		}
	}
}

func TestListStores_OperatorSeesAll(t *testing.T) {
	f := newFixture(t, 0)
	if _, _, err := f.sb.Seed(context.Background(), sandbox.User{Email: "root@example.com", Role: "super_admin"}, "pw"); err != nil {
		t.Fatalf("seeding admin: %v", err)
	}
	token := f.login(t, "root@example.com", "pw")

	_, env := f.do(t, http.MethodGet, "/store", token, "")
	var stores []sandbox.StoreJSON
	if err := json.Unmarshal(env.Data, &stores); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if len(stores) != 3 {
		t.Errorf("operator sees %d stores, want 3", len(stores))
	}
}

func TestGetStore_ByIDAndSlug(t *testing.T) {
	f := newFixture(t, 0)
	token := f.login(t, "mia@example.com", "hunter2")

	for _, path := range []string{"/store/" + f.stores[0].ID, "/store/slug/acme"} {
		status, env := f.do(t, http.MethodGet, path, token, "")
		if status != http.StatusOK {
			t.Fatalf("GET %s status = %d, want 200", path, status)
		}
		var s sandbox.StoreJSON
		if err := json.Unmarshal(env.Data, &s); err != nil {
			t.Fatalf("decoding: %v", err)
		}
		if s.ID != f.stores[0].ID || s.StoreSlug != "acme" || !s.IsActive || s.SubscriptionStatus != "active" {
			t.Errorf("GET %s = %+v", path, s)
		}
		if s.CreatedAt != "2025-03-01T12:00:00Z" {
			t.Errorf("createdAt = %q", s.CreatedAt)
		}
	}

	status, env := f.do(t, http.MethodGet, "/store/slug/missing", token, "")
	if status != http.StatusNotFound || env.Detail != "Store not found" {
		t.Errorf("missing slug: status = %d detail = %q, want 404", status, env.Detail)
	}
}

func TestApplyTheme_ZeroDelayAppliesImmediately(t *testing.T) {
	f := newFixture(t, 0)
	token := f.login(t, "mia@example.com", "hunter2")

	status, env := f.do(t, http.MethodPost, "/platform/themes/apply", token, `{"store_slug":"acme","theme_slug":"aurora"}`)
	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200 (%s)", status, env.Detail)
	}
	if string(env.Status) != `"applied"` {
		t.Errorf("status field = %s, want applied", env.Status)
	}
	var data sandbox.ApplyData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if data.ThemeID != f.theme.ID {
		t.Errorf("themeId = %q, want %q", data.ThemeID, f.theme.ID)
	}

	store, err := f.sb.Repository().StoreBySlug(context.Background(), "acme")
	if err != nil {
		t.Fatalf("reading store: %v", err)
	}
	if store.ThemeID != f.theme.ID {
		t.Errorf("stored theme = %q, want %q", store.ThemeID, f.theme.ID)
	}
}

func TestApplyTheme_QueuedBuildConverges(t *testing.T) {
	f := newFixture(t, 100*time.Millisecond)
	token := f.login(t, "mia@example.com", "hunter2")

	status, env := f.do(t, http.MethodPost, "/platform/themes/apply", token, `{"store_slug":"acme","theme_slug":"aurora"}`)
	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200 (%s)", status, env.Detail)
	}
	if string(env.Status) != `"processing"` {
		t.Fatalf("status field = %s, want processing", env.Status)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		_, env := f.do(t, http.MethodGet, "/store/slug/acme", token, "")
		var s sandbox.StoreJSON
		if err := json.Unmarshal(env.Data, &s); err != nil {
			t.Fatalf("decoding: %v", err)
		}
		if s.ThemeID == f.theme.ID {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("theme never applied")
}

func TestApplyTheme_Refusals(t *testing.T) {
	f := newFixture(t, 0)
	token := f.login(t, "mia@example.com", "hunter2")

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"not owner", `{"store_slug":"initech","theme_slug":"aurora"}`, http.StatusNotFound},
		{"unknown store", `{"store_slug":"missing","theme_slug":"aurora"}`, http.StatusNotFound},
		{"unknown theme", `{"store_slug":"acme","theme_slug":"missing"}`, http.StatusNotFound},
		{"missing field", `{"store_slug":"acme"}`, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, _ := f.do(t, http.MethodPost, "/platform/themes/apply", token, tt.body)
			if status != tt.status {
				t.Errorf("status = %d, want %d", status, tt.status)
			}
		})
	}
}

func TestApplyTheme_ForeignStoreLooksMissing(t *testing.T) {
	f := newFixture(t, 0)
	token := f.login(t, "mia@example.com", "hunter2")

	status, _ := f.do(t, http.MethodPost, "/platform/themes/apply", token,
		`{"store_slug":"initech","theme_slug":"aurora"}`)
	if status != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", status)
	}

	st, err := f.sb.Repository().StoreBySlug(context.Background(), "initech")
	if err != nil {
		t.Fatalf("StoreBySlug: %v", err)
	}
	if st.ThemeID != "" {
		t.Errorf("foreign store theme changed to %q", st.ThemeID)
	}
}

func TestSeed_SlugConflict(t *testing.T) {
	f := newFixture(t, 0)

	_, _, err := f.sb.Seed(context.Background(), sandbox.User{Email: "dup@example.com"}, "pw",
		sandbox.Store{Slug: "acme"})
	var conflict *domain.SlugConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("error = %v, want *SlugConflictError", err)
	}
	if conflict.Slug != "acme" {
		t.Errorf("conflict slug = %q, want acme", conflict.Slug)
	}
}

func TestStandingChangesAreVisible(t *testing.T) {
	f := newFixture(t, 0)
	token := f.login(t, "mia@example.com", "hunter2")

	if err := f.sb.Repository().SetStoreStanding(context.Background(), f.stores[0].ID, true, "cancelled"); err != nil {
		t.Fatalf("SetStoreStanding: %v", err)
	}
	_, env := f.do(t, http.MethodGet, "/store/slug/acme", token, "")
	var s sandbox.StoreJSON
	if err := json.Unmarshal(env.Data, &s); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if s.SubscriptionStatus != "cancelled" {
		t.Errorf("subscription = %q, want cancelled", s.SubscriptionStatus)
	}

	if err := f.sb.Repository().SetStoreStanding(context.Background(), "missing", true, "active"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("missing store error = %v, want ErrNotFound", err)
	}
}

func TestOpen_RejectsMemoryDatabase(t *testing.T) {
	_, err := sandbox.Open(context.Background(), sandbox.Config{DatabasePath: ":memory:", Secret: []byte("s")})
	if err == nil {
		t.Fatal("expected an error for :memory:")
	}
}

func TestSeedDemo_Idempotent(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	for i := range 2 {
		if err := f.sb.SeedDemo(ctx); err != nil {
			t.Fatalf("SeedDemo run %d: %v", i+1, err)
		}
	}

	token := f.login(t, sandbox.DemoEmail, sandbox.DemoPassword)
	_, env := f.do(t, http.MethodGet, "/store", token, "")
	var stores []sandbox.StoreJSON
	if err := json.Unmarshal(env.Data, &stores); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if len(stores) != 2 || stores[0].StoreSlug != "demo-bakery" {
		t.Errorf("demo stores = %+v, want demo-bakery first of 2", stores)
	}
}
