package domain

import "context"

// CredentialStore persists the credential bundle across restarts.
type CredentialStore interface {
	Load(ctx context.Context) (Credentials, error)
	Save(ctx context.Context, creds Credentials) error
	// Update applies fn to the stored bundle atomically. Nothing is written
	// when fn returns false.
	Update(ctx context.Context, fn func(*Credentials) bool) error
	Clear(ctx context.Context) error
}

// TokenHolder is the process-wide live bearer token.
type TokenHolder interface {
	Set(token string)
	Clear()
	Token() string
}

// LoginResult is what a successful login returns.
type LoginResult struct {
	Token   string
	Profile Profile
}

// AuthAPI is the authentication side of the backend.
type AuthAPI interface {
	Login(ctx context.Context, email, password string) (LoginResult, error)
	Profile(ctx context.Context) (Profile, error)
}

// TenantDirectory looks up tenants on the backend. ListOwned returns the
// tenants of the user the live token belongs to.
type TenantDirectory interface {
	GetByID(ctx context.Context, id string) (Tenant, error)
	GetBySlug(ctx context.Context, slug string) (Tenant, error)
	ListOwned(ctx context.Context) ([]Tenant, error)
}

// ApplyStatus is the synchronous answer of a theme apply command.
type ApplyStatus string

const (
	ApplyProcessing ApplyStatus = "processing"
	ApplyApplied    ApplyStatus = "applied"
)

// ApplyResult is the backend's answer to a theme apply command.
type ApplyResult struct {
	Status  ApplyStatus
	ThemeID string
	Message string
}

// ThemeAPI issues theme changes.
type ThemeAPI interface {
	ApplyTheme(ctx context.Context, tenantSlug, themeSlug string) (ApplyResult, error)
}

// TransitionValidator checks activation job transitions.
type TransitionValidator interface {
	Apply(ctx context.Context, current JobState, event JobEvent) (JobState, error)
}

// ActivationNotifier is told about every activation job state change.
type ActivationNotifier interface {
	Notify(ctx context.Context, job ActivationJob) error
}
