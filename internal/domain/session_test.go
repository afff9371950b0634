package domain_test

import (
	"testing"

	"github.com/neomorfeo/storeconsole/internal/domain"
)

func TestParseRole(t *testing.T) {
	cases := []struct {
		in   string
		want domain.Role
	}{
		{"admin", domain.RoleAdmin},
		{"ADMIN", domain.RoleAdmin},
		{" super_admin ", domain.RoleAdmin},
		{"SuperAdmin", domain.RoleAdmin},
		{"MERCHANT", domain.RoleMerchant},
		{"manager", domain.RoleManager},
		{"user", domain.RoleUser},
		{"", domain.RoleUser},
		{"something-else", domain.RoleUser},
	}

	for _, tc := range cases {
		if got := domain.ParseRole(tc.in); got != tc.want {
			t.Errorf("ParseRole(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestRole_Predicates(t *testing.T) {
	if !domain.RoleAdmin.IsOperator() {
		t.Error("admin should be an operator")
	}
	if domain.RoleMerchant.IsOperator() {
		t.Error("merchant should not be an operator")
	}
	if !domain.RoleMerchant.OwnsTenants() {
		t.Error("merchant should own tenants")
	}
	if domain.RoleManager.OwnsTenants() || domain.RoleUser.OwnsTenants() {
		t.Error("manager and user should not own tenants")
	}
}

func TestProfile_EmbeddedTenantID(t *testing.T) {
	cases := []struct {
		name    string
		profile domain.Profile
		want    string
	}{
		{"primary id wins", domain.Profile{TenantID: "s-1", TenantIDs: []string{"s-2"}}, "s-1"},
		{"first referenced store", domain.Profile{TenantIDs: []string{"s-2", "s-3"}}, "s-2"},
		{"none", domain.Profile{}, ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.profile.EmbeddedTenantID(); got != tc.want {
				t.Errorf("EmbeddedTenantID() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestProfile_Equal(t *testing.T) {
	a := domain.Profile{UserID: "u-1", Email: "a@example.com", Role: domain.RoleMerchant, TenantIDs: []string{"s-1"}}
	b := a
	b.TenantIDs = []string{"s-1"}
	if !a.Equal(b) {
		t.Error("identical profiles should be equal")
	}

	b.Role = domain.RoleAdmin
	if a.Equal(b) {
		t.Error("profiles with different roles should differ")
	}
}

func TestNewSession(t *testing.T) {
	p := domain.Profile{UserID: "u-1", Email: "a@example.com", Role: domain.RoleMerchant}
	s := domain.NewSession("tok", p, domain.SourceCache)

	if s.UserID != "u-1" || s.Email != "a@example.com" || s.Role != domain.RoleMerchant {
		t.Errorf("identity not copied from profile: %+v", s)
	}
	if s.Token != "tok" {
		t.Errorf("Token = %q, want %q", s.Token, "tok")
	}
	if s.Source != domain.SourceCache {
		t.Errorf("Source = %q, want %q", s.Source, domain.SourceCache)
	}
	if s.ResolvedAt.IsZero() {
		t.Error("ResolvedAt should be set")
	}
}

func TestCredentials_IsZero(t *testing.T) {
	if !(domain.Credentials{}).IsZero() {
		t.Error("empty credentials should be zero")
	}
	if (domain.Credentials{Token: "x"}).IsZero() {
		t.Error("credentials with a token should not be zero")
	}
}
