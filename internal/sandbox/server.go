package sandbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"

	riveradapter "github.com/neomorfeo/storeconsole/internal/adapter/river"
	"github.com/neomorfeo/storeconsole/internal/domain"
)

// Enqueuer schedules theme builds.
type Enqueuer interface {
	Enqueue(ctx context.Context, args riveradapter.ThemeBuildArgs) (int64, error)
}

// Envelope is the backend's response wrapper.
type Envelope[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
	Status  string `json:"status,omitempty"`
}

// UserJSON is the wire shape of a user.
type UserJSON struct {
	ID        string   `json:"_id"`
	Email     string   `json:"email"`
	Role      string   `json:"role"`
	FirstName string   `json:"firstName,omitempty"`
	LastName  string   `json:"lastName,omitempty"`
	Status    string   `json:"status,omitempty"`
	StoreID   string   `json:"storeId,omitempty"`
	Stores    []string `json:"stores"`
}

// StoreJSON is the wire shape of a store.
type StoreJSON struct {
	ID                 string `json:"_id"`
	StoreSlug          string `json:"storeSlug"`
	StoreName          string `json:"storeName,omitempty"`
	OwnerID            string `json:"ownerId"`
	IsActive           bool   `json:"isActive"`
	SubscriptionStatus string `json:"subscriptionStatus"`
	PlanID             string `json:"planId,omitempty"`
	ThemeID            string `json:"themeId,omitempty"`
	CreatedAt          string `json:"createdAt"`
}

type LoginData struct {
	User  UserJSON `json:"user"`
	Token string   `json:"token"`
}

type ProfileData struct {
	User UserJSON `json:"user"`
}

type ApplyData struct {
	ThemeID string `json:"themeId,omitempty"`
	JobID   int64  `json:"jobId,omitempty"`
}

type (
	LoginInput struct {
		Body struct {
			Email    string `json:"email" minLength:"1" doc:"Account email"`
			Password string `json:"password" minLength:"1" doc:"Account password"`
		}
	}
	authInput struct {
		Authorization string `header:"Authorization" doc:"Bearer token"`
	}
	StoreIDInput struct {
		Authorization string `header:"Authorization" doc:"Bearer token"`
		ID            string `path:"id" doc:"Store ID"`
	}
	StoreSlugInput struct {
		Authorization string `header:"Authorization" doc:"Bearer token"`
		Slug          string `path:"slug" doc:"Store slug"`
	}
	ApplyInput struct {
		Authorization string `header:"Authorization" doc:"Bearer token"`
		Body          struct {
			StoreSlug string `json:"store_slug" minLength:"1" doc:"Target store"`
			ThemeSlug string `json:"theme_slug" minLength:"1" doc:"Theme to apply"`
		}
	}
)

type envelopeOutput[T any] struct {
	Body Envelope[T]
}

func ok[T any](data T) *envelopeOutput[T] {
	return &envelopeOutput[T]{Body: Envelope[T]{Success: true, Data: data}}
}

// Server implements the backend endpoints the console talks to.
type Server struct {
	repo       *Repository
	tokens     *TokenIssuer
	queue      Enqueuer
	buildDelay time.Duration
	logger     *slog.Logger
}

// NewServer returns a server. With a zero build delay themes are applied
// during the apply request instead of through the queue.
func NewServer(repo *Repository, tokens *TokenIssuer, queue Enqueuer, buildDelay time.Duration, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{repo: repo, tokens: tokens, queue: queue, buildDelay: buildDelay, logger: logger}
}

// Register adds the backend routes to the Huma API.
func (s *Server) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "auth-login",
		Method:      http.MethodPost,
		Path:        "/auth/login",
		Summary:     "Exchange credentials for a token",
		Tags:        []string{"Auth"},
	}, s.login)

	huma.Register(api, huma.Operation{
		OperationID: "auth-profile",
		Method:      http.MethodGet,
		Path:        "/auth/profile",
		Summary:     "Get the caller's profile",
		Tags:        []string{"Auth"},
	}, s.profile)

	huma.Register(api, huma.Operation{
		OperationID: "list-stores",
		Method:      http.MethodGet,
		Path:        "/store",
		Summary:     "List the caller's stores",
		Tags:        []string{"Stores"},
	}, s.listStores)

	huma.Register(api, huma.Operation{
		OperationID: "get-store-by-slug",
		Method:      http.MethodGet,
		Path:        "/store/slug/{slug}",
		Summary:     "Get a store by slug",
		Tags:        []string{"Stores"},
	}, s.storeBySlug)

	huma.Register(api, huma.Operation{
		OperationID: "get-store",
		Method:      http.MethodGet,
		Path:        "/store/{id}",
		Summary:     "Get a store by ID",
		Tags:        []string{"Stores"},
	}, s.storeByID)

	huma.Register(api, huma.Operation{
		OperationID: "apply-theme",
		Method:      http.MethodPost,
		Path:        "/platform/themes/apply",
		Summary:     "Apply a theme to a store",
		Tags:        []string{"Themes"},
	}, s.applyTheme)
}

func (s *Server) login(ctx context.Context, input *LoginInput) (*envelopeOutput[LoginData], error) {
	user, hash, err := s.repo.UserByEmail(ctx, input.Body.Email)
	if errors.Is(err, domain.ErrNotFound) || (err == nil && !checkPassword(hash, input.Body.Password)) {
		return nil, huma.Error401Unauthorized("invalid email or password")
	}
	if err != nil {
		return nil, s.internal(ctx, "login", err)
	}

	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, s.internal(ctx, "login", err)
	}
	u, err := s.userJSON(ctx, user)
	if err != nil {
		return nil, s.internal(ctx, "login", err)
	}

	s.logger.InfoContext(ctx, "user signed in", "user_id", user.ID, "role", user.Role)
	return ok(LoginData{User: u, Token: token}), nil
}

func (s *Server) profile(ctx context.Context, input *authInput) (*envelopeOutput[ProfileData], error) {
	user, err := s.authenticate(ctx, input.Authorization)
	if err != nil {
		return nil, err
	}
	u, err := s.userJSON(ctx, user)
	if err != nil {
		return nil, s.internal(ctx, "profile", err)
	}
	return ok(ProfileData{User: u}), nil
}

func (s *Server) listStores(ctx context.Context, input *authInput) (*envelopeOutput[[]StoreJSON], error) {
	user, err := s.authenticate(ctx, input.Authorization)
	if err != nil {
		return nil, err
	}

	owner := user.ID
	if domain.ParseRole(user.Role).IsOperator() {
		owner = ""
	}
	stores, err := s.repo.ListStores(ctx, owner)
	if err != nil {
		return nil, s.internal(ctx, "list stores", err)
	}

	out := make([]StoreJSON, 0, len(stores))
	for _, st := range stores {
		out = append(out, toStoreJSON(st))
	}
	return ok(out), nil
}

func (s *Server) storeByID(ctx context.Context, input *StoreIDInput) (*envelopeOutput[StoreJSON], error) {
	if _, err := s.authenticate(ctx, input.Authorization); err != nil {
		return nil, err
	}
	st, err := s.repo.StoreByID(ctx, input.ID)
	return s.storeResponse(ctx, st, err)
}

func (s *Server) storeBySlug(ctx context.Context, input *StoreSlugInput) (*envelopeOutput[StoreJSON], error) {
	if _, err := s.authenticate(ctx, input.Authorization); err != nil {
		return nil, err
	}
	st, err := s.repo.StoreBySlug(ctx, input.Slug)
	return s.storeResponse(ctx, st, err)
}

func (s *Server) storeResponse(ctx context.Context, st Store, err error) (*envelopeOutput[StoreJSON], error) {
	if errors.Is(err, domain.ErrNotFound) {
		return nil, huma.Error404NotFound("Store not found")
	}
	if err != nil {
		return nil, s.internal(ctx, "get store", err)
	}
	return ok(toStoreJSON(st)), nil
}

func (s *Server) applyTheme(ctx context.Context, input *ApplyInput) (*envelopeOutput[ApplyData], error) {
	user, err := s.authenticate(ctx, input.Authorization)
	if err != nil {
		return nil, err
	}

	store, err := s.repo.StoreBySlug(ctx, input.Body.StoreSlug)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, huma.Error404NotFound("Store not found")
	}
	if err != nil {
		return nil, s.internal(ctx, "apply theme", err)
	}
	// Stores owned by someone else are hidden, so 403 stays reserved for
	// rejected credentials.
	if store.OwnerID != user.ID && !domain.ParseRole(user.Role).IsOperator() {
		return nil, huma.Error404NotFound("Store not found")
	}

	theme, err := s.repo.ThemeBySlug(ctx, input.Body.ThemeSlug)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, huma.Error404NotFound("Theme not found")
	}
	if err != nil {
		return nil, s.internal(ctx, "apply theme", err)
	}

	if s.buildDelay <= 0 {
		if err := s.repo.SetStoreTheme(ctx, store.ID, theme.ID); err != nil {
			return nil, s.internal(ctx, "apply theme", err)
		}
		out := ok(ApplyData{ThemeID: theme.ID})
		out.Body.Status = "applied"
		out.Body.Message = fmt.Sprintf("Theme %s applied", theme.Slug)
		return out, nil
	}

	jobID, err := s.queue.Enqueue(ctx, riveradapter.ThemeBuildArgs{
		StoreID:   store.ID,
		StoreSlug: store.Slug,
		ThemeID:   theme.ID,
		ThemeSlug: theme.Slug,
	})
	if err != nil {
		return nil, s.internal(ctx, "apply theme", err)
	}

	s.logger.InfoContext(ctx, "theme build queued",
		"store_id", store.ID, "theme_slug", theme.Slug, "job_id", jobID)

	out := ok(ApplyData{JobID: jobID})
	out.Body.Status = "processing"
	out.Body.Message = fmt.Sprintf("Processing started for %s. Your store will be ready in a moment!", theme.Slug)
	return out, nil
}

// authenticate resolves the bearer token to a user.
func (s *Server) authenticate(ctx context.Context, header string) (User, error) {
	token, found := strings.CutPrefix(header, "Bearer ")
	if !found || token == "" {
		return User{}, huma.Error401Unauthorized("missing bearer token")
	}

	userID, err := s.tokens.Verify(token)
	if err != nil {
		return User{}, huma.Error401Unauthorized(err.Error())
	}

	user, err := s.repo.UserByID(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return User{}, huma.Error401Unauthorized("account no longer exists")
	}
	if err != nil {
		return User{}, s.internal(ctx, "authenticate", err)
	}
	if user.Status == "suspended" {
		return User{}, huma.Error403Forbidden("account suspended")
	}
	return user, nil
}

func (s *Server) userJSON(ctx context.Context, u User) (UserJSON, error) {
	stores, err := s.repo.ListStores(ctx, u.ID)
	if err != nil {
		return UserJSON{}, err
	}

	out := UserJSON{
		ID:        u.ID,
		Email:     u.Email,
		Role:      u.Role,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Status:    u.Status,
		Stores:    make([]string, 0, len(stores)),
	}
	for _, st := range stores {
		out.Stores = append(out.Stores, st.ID)
	}
	if len(out.Stores) > 0 {
		out.StoreID = out.Stores[0]
	}
	return out, nil
}

func (s *Server) internal(ctx context.Context, op string, err error) error {
	s.logger.ErrorContext(ctx, "request failed", "op", op, "error", err)
	return huma.Error500InternalServerError("internal server error")
}

func toStoreJSON(s Store) StoreJSON {
	return StoreJSON{
		ID:                 s.ID,
		StoreSlug:          s.Slug,
		StoreName:          s.Name,
		OwnerID:            s.OwnerID,
		IsActive:           s.IsActive,
		SubscriptionStatus: s.SubscriptionStatus,
		PlanID:             s.PlanID,
		ThemeID:            s.ThemeID,
		CreatedAt:          s.CreatedAt.UTC().Format(timeFormat),
	}
}
