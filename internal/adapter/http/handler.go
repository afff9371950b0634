package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/neomorfeo/storeconsole/internal/app"
	"github.com/neomorfeo/storeconsole/internal/domain"
)

const timeLayout = "2006-01-02T15:04:05Z"

// UserResponse is the API representation of the signed-in user.
type UserResponse struct {
	ID        string `json:"id" doc:"User ID"`
	Email     string `json:"email" doc:"Email address"`
	Role      string `json:"role" doc:"Normalised role" enum:"user,merchant,admin,manager"`
	FirstName string `json:"firstName,omitempty" doc:"Given name"`
	LastName  string `json:"lastName,omitempty" doc:"Family name"`
}

// TenantResponse is the API representation of a tenant.
type TenantResponse struct {
	ID                 string `json:"id" doc:"Tenant ID"`
	Slug               string `json:"slug" doc:"URL-friendly identifier"`
	Name               string `json:"name,omitempty" doc:"Display name"`
	OwnerID            string `json:"ownerId,omitempty" doc:"Owning user"`
	IsActive           bool   `json:"isActive" doc:"Whether the tenant is active"`
	SubscriptionStatus string `json:"subscriptionStatus,omitempty" doc:"Billing standing"`
	InGoodStanding     bool   `json:"inGoodStanding" doc:"Whether the tenant may be operated on"`
	PlanID             string `json:"planId,omitempty" doc:"Subscription plan"`
	ThemeID            string `json:"themeId,omitempty" doc:"Applied theme"`
	CreatedAt          string `json:"createdAt,omitempty" doc:"Creation timestamp (ISO 8601)"`
}

// SessionResponse describes the console state.
type SessionResponse struct {
	Authenticated   bool            `json:"authenticated" doc:"Whether a session is active"`
	User            *UserResponse   `json:"user,omitempty" doc:"Signed-in user"`
	Source          string          `json:"source,omitempty" doc:"Where the session came from" enum:"cache,profile,login"`
	ActiveTenant    *TenantResponse `json:"activeTenant,omitempty" doc:"Tenant the console operates against"`
	NeedsOnboarding bool            `json:"needsOnboarding,omitempty" doc:"The user owns no tenant yet"`
	Stale           bool            `json:"stale,omitempty" doc:"The backend could not be reached; data is the last known state"`
}

// DecisionResponse is the API representation of an access decision.
type DecisionResponse struct {
	Decision   string `json:"decision" doc:"Decision kind" enum:"allow,redirect_login,redirect_onboarding,redirect_plan_purchase,redirect_owned_tenant,deny"`
	Allowed    bool   `json:"allowed" doc:"Whether the route may render"`
	TenantSlug string `json:"tenantSlug,omitempty" doc:"Tenant the redirect targets"`
	Notice     string `json:"notice,omitempty" doc:"User-visible notice"`
}

// JobResponse is the API representation of an activation job.
type JobResponse struct {
	ID         string `json:"id" doc:"Job ID"`
	TenantID   string `json:"tenantId" doc:"Tenant ID"`
	TenantSlug string `json:"tenantSlug" doc:"Tenant slug"`
	ThemeID    string `json:"themeId" doc:"Requested theme ID"`
	ThemeSlug  string `json:"themeSlug" doc:"Requested theme slug"`
	State      string `json:"state" doc:"Job state" enum:"pending,polling,succeeded,timed_out,failed"`
	Attempts   int    `json:"attempts" doc:"Convergence checks made"`
	Outcome    string `json:"outcome,omitempty" doc:"Terminal outcome" enum:"applied_immediately,converged,timed_out,failed"`
	Reason     string `json:"reason,omitempty" doc:"Failure reason"`
	StartedAt  string `json:"startedAt" doc:"Start timestamp (ISO 8601)"`
	FinishedAt string `json:"finishedAt,omitempty" doc:"End timestamp (ISO 8601)"`
}

func toUserResponse(p domain.Profile) *UserResponse {
	return &UserResponse{
		ID:        p.UserID,
		Email:     p.Email,
		Role:      string(p.Role),
		FirstName: p.FirstName,
		LastName:  p.LastName,
	}
}

func toTenantResponse(t domain.Tenant) TenantResponse {
	return TenantResponse{
		ID:                 t.ID,
		Slug:               t.Slug,
		Name:               t.Name,
		OwnerID:            t.OwnerID,
		IsActive:           t.IsActive,
		SubscriptionStatus: string(t.SubscriptionStatus),
		InGoodStanding:     t.InGoodStanding(),
		PlanID:             t.PlanID,
		ThemeID:            t.ThemeID,
		CreatedAt:          formatTime(t.CreatedAt),
	}
}

func toSessionResponse(state app.State) SessionResponse {
	if state.Session == nil {
		return SessionResponse{}
	}
	resp := SessionResponse{
		Authenticated:   true,
		User:            toUserResponse(state.Session.Profile),
		Source:          string(state.Session.Source),
		NeedsOnboarding: state.NeedsOnboarding,
	}
	if state.ActiveTenant != nil {
		t := toTenantResponse(*state.ActiveTenant)
		resp.ActiveTenant = &t
	}
	return resp
}

func toDecisionResponse(d domain.Decision) DecisionResponse {
	return DecisionResponse{
		Decision:   string(d.Kind),
		Allowed:    d.Allowed(),
		TenantSlug: d.TenantSlug,
		Notice:     d.Notice,
	}
}

func toJobResponse(job domain.ActivationJob) JobResponse {
	resp := JobResponse{
		ID:         job.ID,
		TenantID:   job.Request.TenantID,
		TenantSlug: job.Request.TenantSlug,
		ThemeID:    job.Request.ThemeID,
		ThemeSlug:  job.Request.ThemeSlug,
		State:      string(job.State),
		Attempts:   job.Attempts,
		StartedAt:  formatTime(job.StartedAt),
		FinishedAt: formatTime(job.FinishedAt),
	}
	if job.Outcome != nil {
		resp.Outcome = string(job.Outcome.Kind)
		resp.Reason = job.Outcome.Reason
	}
	return resp
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

// --- Session ---

type LoginInput struct {
	Body struct {
		Email    string `json:"email" minLength:"1" maxLength:"320" doc:"Account email"`
		Password string `json:"password" minLength:"1" doc:"Account password"`
	}
}

type SessionOutput struct {
	Body SessionResponse
}

// --- Tenants ---

type TenantOutput struct {
	Body TenantResponse
}

type SwitchTenantInput struct {
	Body struct {
		TenantID string `json:"tenantId" minLength:"1" doc:"Tenant to make active"`
	}
}

// --- Access ---

type AccessInput struct {
	Slug string `path:"slug" doc:"Tenant slug from the route"`
}

type DecisionOutput struct {
	Body DecisionResponse
}

// --- Theme activation ---

type TenantSlugInput struct {
	Slug string `path:"slug" doc:"Tenant slug"`
}

type ApplyThemeInput struct {
	Slug string `path:"slug" doc:"Tenant slug"`
	Body struct {
		ThemeID   string `json:"themeId" minLength:"1" doc:"Theme ID the tenant should report once applied"`
		ThemeSlug string `json:"themeSlug" minLength:"1" doc:"Theme slug sent to the backend"`
	}
}

type JobOutput struct {
	Body JobResponse
}

type CancelOutput struct {
	Body struct {
		Cancelled bool `json:"cancelled" doc:"Whether a running activation was stopped"`
	}
}

type RecheckOutput struct {
	Body struct {
		Applied bool `json:"applied" doc:"Whether the backend now reports the requested theme"`
	}
}

// Register adds all console API routes to the Huma API.
func Register(api huma.API, console *app.Console) {
	huma.Register(api, huma.Operation{
		OperationID: "login",
		Method:      http.MethodPost,
		Path:        "/api/v1/session",
		Summary:     "Sign in",
		Tags:        []string{"Session"},
	}, func(ctx context.Context, input *LoginInput) (*SessionOutput, error) {
		state, err := console.Login(ctx, input.Body.Email, input.Body.Password)
		if err != nil && state.Session == nil {
			return nil, toHumaError(err)
		}
		resp := toSessionResponse(state)
		resp.Stale = err != nil
		return &SessionOutput{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-session",
		Method:      http.MethodGet,
		Path:        "/api/v1/session",
		Summary:     "Get the current session and active tenant",
		Tags:        []string{"Session"},
	}, func(ctx context.Context, _ *struct{}) (*SessionOutput, error) {
		state, err := console.Load(ctx)
		if err != nil && state.Session == nil {
			return nil, toHumaError(err)
		}
		resp := toSessionResponse(state)
		resp.Stale = err != nil
		return &SessionOutput{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "logout",
		Method:      http.MethodDelete,
		Path:        "/api/v1/session",
		Summary:     "Sign out",
		Tags:        []string{"Session"},
	}, func(ctx context.Context, _ *struct{}) (*struct{}, error) {
		if err := console.Logout(ctx); err != nil {
			return nil, toHumaError(err)
		}
		return nil, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-active-tenant",
		Method:      http.MethodGet,
		Path:        "/api/v1/tenants/active",
		Summary:     "Get the active tenant",
		Tags:        []string{"Tenants"},
	}, func(ctx context.Context, _ *struct{}) (*TenantOutput, error) {
		state, err := console.Load(ctx)
		switch {
		case state.Session == nil && err == nil:
			return nil, toHumaError(domain.ErrNoSession)
		case state.ActiveTenant != nil:
			return &TenantOutput{Body: toTenantResponse(*state.ActiveTenant)}, nil
		case err != nil:
			return nil, toHumaError(err)
		default:
			return nil, toHumaError(domain.ErrNoTenants)
		}
	})

	huma.Register(api, huma.Operation{
		OperationID: "switch-active-tenant",
		Method:      http.MethodPut,
		Path:        "/api/v1/tenants/active",
		Summary:     "Switch the active tenant",
		Tags:        []string{"Tenants"},
	}, func(ctx context.Context, input *SwitchTenantInput) (*TenantOutput, error) {
		tenant, err := console.SwitchTenant(ctx, input.Body.TenantID)
		if err != nil {
			return nil, toHumaError(err)
		}
		return &TenantOutput{Body: toTenantResponse(tenant)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "check-access",
		Method:      http.MethodGet,
		Path:        "/api/v1/access/{slug}",
		Summary:     "Decide whether the session may enter a tenant route",
		Tags:        []string{"Access"},
	}, func(ctx context.Context, input *AccessInput) (*DecisionOutput, error) {
		decision, err := console.Authorize(ctx, input.Slug)
		if err != nil {
			return nil, toHumaError(err)
		}
		return &DecisionOutput{Body: toDecisionResponse(decision)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "apply-theme",
		Method:        http.MethodPost,
		Path:          "/api/v1/tenants/{slug}/theme",
		Summary:       "Start a theme activation",
		Description:   "Issues the theme change and polls the backend until the tenant reports the theme. Returns immediately with the job.",
		Tags:          []string{"Themes"},
		DefaultStatus: http.StatusAccepted,
	}, func(ctx context.Context, input *ApplyThemeInput) (*JobOutput, error) {
		job, err := console.StartTheme(ctx, input.Slug, input.Body.ThemeID, input.Body.ThemeSlug)
		if err != nil {
			return nil, toHumaError(err)
		}
		return &JobOutput{Body: toJobResponse(job)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-theme-activation",
		Method:      http.MethodGet,
		Path:        "/api/v1/tenants/{slug}/theme",
		Summary:     "Get the running or last theme activation",
		Tags:        []string{"Themes"},
	}, func(ctx context.Context, input *TenantSlugInput) (*JobOutput, error) {
		job, err := console.LastActivation(ctx, input.Slug)
		if err != nil {
			return nil, toHumaError(err)
		}
		return &JobOutput{Body: toJobResponse(job)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "cancel-theme-activation",
		Method:      http.MethodDelete,
		Path:        "/api/v1/tenants/{slug}/theme",
		Summary:     "Cancel the running theme activation",
		Tags:        []string{"Themes"},
	}, func(ctx context.Context, input *TenantSlugInput) (*CancelOutput, error) {
		cancelled, err := console.CancelActivation(ctx, input.Slug)
		if err != nil {
			return nil, toHumaError(err)
		}
		out := &CancelOutput{}
		out.Body.Cancelled = cancelled
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "recheck-theme",
		Method:      http.MethodPost,
		Path:        "/api/v1/tenants/{slug}/theme/recheck",
		Summary:     "Check once whether the last requested theme is applied",
		Tags:        []string{"Themes"},
	}, func(ctx context.Context, input *TenantSlugInput) (*RecheckOutput, error) {
		applied, err := console.Recheck(ctx, input.Slug)
		if err != nil {
			return nil, toHumaError(err)
		}
		out := &RecheckOutput{}
		out.Body.Applied = applied
		return out, nil
	})
}

// toHumaError translates domain errors to Huma HTTP errors.
func toHumaError(err error) error {
	if errors.Is(err, domain.ErrNoSession) {
		return huma.Error401Unauthorized("no active session")
	}

	var apiErr *domain.APIError
	hasAPIErr := errors.As(err, &apiErr)

	if domain.IsAuthExpired(err) {
		msg := "authentication expired"
		if hasAPIErr && apiErr.Message != "" {
			msg = apiErr.Message
		}
		return huma.Error401Unauthorized(msg)
	}

	var ownErr *domain.OwnershipError
	if errors.As(err, &ownErr) {
		return huma.Error403Forbidden(ownErr.Error())
	}

	var accessErr *domain.AccessError
	if errors.As(err, &accessErr) {
		msg := accessErr.Error()
		if accessErr.Decision.Notice != "" {
			msg = accessErr.Decision.Notice
		}
		return huma.Error403Forbidden(msg)
	}

	if errors.Is(err, domain.ErrNoTenants) {
		return huma.Error404NotFound("no tenant found for your account")
	}
	if errors.Is(err, domain.ErrNotFound) {
		return huma.Error404NotFound(err.Error())
	}

	if domain.IsTransient(err) {
		return huma.Error503ServiceUnavailable("backend unavailable, try again")
	}

	var trErr *domain.TransitionError
	if errors.As(err, &trErr) {
		return huma.Error422UnprocessableEntity(trErr.Error())
	}

	if hasAPIErr && apiErr.Kind == nil && apiErr.Message != "" {
		return huma.Error400BadRequest(apiErr.Message)
	}

	return huma.Error500InternalServerError("internal server error")
}
