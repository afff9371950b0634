package restapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/neomorfeo/storeconsole/internal/domain"
)

// Compile-time checks: Client implements the backend ports.
var (
	_ domain.AuthAPI         = (*Client)(nil)
	_ domain.TenantDirectory = (*Client)(nil)
	_ domain.ThemeAPI        = (*Client)(nil)
)

const maxBodyBytes = 1 << 20

// Client talks to the store platform backend. Every request carries the
// token held by the shared AuthContext at dispatch time.
type Client struct {
	baseURL string
	http    *http.Client
	auth    *AuthContext
	timeout time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout bounds each request. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// New creates a Client for baseURL.
func New(baseURL string, auth *AuthContext, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    http.DefaultClient,
		auth:    auth,
		timeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Login(ctx context.Context, email, password string) (domain.LoginResult, error) {
	var data loginData
	if _, err := c.do(ctx, "login", http.MethodPost, "/auth/login", loginRequest{Email: email, Password: password}, &data); err != nil {
		return domain.LoginResult{}, err
	}
	if data.Token == "" {
		return domain.LoginResult{}, &domain.APIError{Op: "login", Message: "response carries no token"}
	}
	return domain.LoginResult{Token: data.Token, Profile: data.User.toDomain()}, nil
}

func (c *Client) Profile(ctx context.Context) (domain.Profile, error) {
	var data profileData
	if _, err := c.do(ctx, "get profile", http.MethodGet, "/auth/profile", nil, &data); err != nil {
		return domain.Profile{}, err
	}
	return data.User.toDomain(), nil
}

func (c *Client) GetByID(ctx context.Context, id string) (domain.Tenant, error) {
	var data storeDTO
	if _, err := c.do(ctx, "get store", http.MethodGet, "/store/"+url.PathEscape(id), nil, &data); err != nil {
		return domain.Tenant{}, err
	}
	return data.toDomain(), nil
}

func (c *Client) GetBySlug(ctx context.Context, slug string) (domain.Tenant, error) {
	var data storeDTO
	if _, err := c.do(ctx, "get store by slug", http.MethodGet, "/store/slug/"+url.PathEscape(slug), nil, &data); err != nil {
		return domain.Tenant{}, err
	}
	return data.toDomain(), nil
}

func (c *Client) ListOwned(ctx context.Context) ([]domain.Tenant, error) {
	var data []storeDTO
	if _, err := c.do(ctx, "list stores", http.MethodGet, "/store", nil, &data); err != nil {
		return nil, err
	}
	tenants := make([]domain.Tenant, 0, len(data))
	for _, s := range data {
		tenants = append(tenants, s.toDomain())
	}
	return tenants, nil
}

func (c *Client) ApplyTheme(ctx context.Context, tenantSlug, themeSlug string) (domain.ApplyResult, error) {
	var data applyData
	env, err := c.do(ctx, "apply theme", http.MethodPost, "/platform/themes/apply",
		applyRequest{StoreSlug: tenantSlug, ThemeSlug: themeSlug}, &data)
	if err != nil {
		return domain.ApplyResult{}, err
	}

	result := domain.ApplyResult{Status: domain.ApplyApplied, ThemeID: string(data.ThemeID), Message: env.Message}
	if domain.ApplyStatus(env.Status) == domain.ApplyProcessing {
		result.Status = domain.ApplyProcessing
	}
	return result, nil
}

// do sends one request and decodes the envelope's data into out. Failures
// are returned as *domain.APIError classified by status.
func (c *Client) do(ctx context.Context, op, method, path string, body, out any) (envelope, error) {
	parent := ctx
	ctx, token, release := c.auth.Bind(ctx)
	defer release()

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return envelope{}, fmt.Errorf("%s: encode request: %w", op, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return envelope{}, fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return envelope{}, c.transportError(op, parent, ctx, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return envelope{}, c.transportError(op, parent, ctx, err)
	}

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)

	if resp.StatusCode >= http.StatusBadRequest {
		return env, &domain.APIError{
			Op:      op,
			Status:  resp.StatusCode,
			Message: env.errorMessage(),
			Kind:    domain.KindForStatus(resp.StatusCode),
		}
	}
	if decodeErr != nil {
		return env, &domain.APIError{Op: op, Status: resp.StatusCode, Message: "malformed response body", Cause: decodeErr}
	}
	if env.Success != nil && !*env.Success {
		return env, &domain.APIError{Op: op, Status: resp.StatusCode, Message: env.errorMessage()}
	}

	if out != nil && len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return env, &domain.APIError{Op: op, Status: resp.StatusCode, Message: "malformed response data", Cause: err}
		}
	}
	return env, nil
}

// transportError classifies a failure that produced no HTTP status. Caller
// cancellation and token rotation are not transient; anything else is.
func (c *Client) transportError(op string, parent, ctx context.Context, err error) error {
	switch {
	case parent.Err() != nil:
		return &domain.APIError{Op: op, Cause: parent.Err()}
	case errors.Is(context.Cause(ctx), ErrTokenRotated):
		return &domain.APIError{Op: op, Cause: ErrTokenRotated}
	default:
		return &domain.APIError{Op: op, Kind: domain.ErrTransient, Cause: err}
	}
}
