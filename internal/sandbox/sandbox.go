// Package sandbox is a local stand-in for the storefront backend. It speaks
// the backend's wire contract over SQLite and builds themes asynchronously
// on a River queue.
package sandbox

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/neomorfeo/storeconsole/internal/adapter/otel"
	riveradapter "github.com/neomorfeo/storeconsole/internal/adapter/river"
)

// Config configures a sandbox.
type Config struct {
	// DatabasePath is the SQLite file. River needs a file; ":memory:" is
	// rejected.
	DatabasePath string
	// Secret signs tokens.
	Secret []byte
	// TokenTTL bounds token lifetime. Zero means 24h.
	TokenTTL time.Duration
	// BuildDelay is how long a theme build takes. Zero applies themes
	// synchronously.
	BuildDelay time.Duration
	// FetchPollInterval is passed to River. Zero keeps River's default.
	FetchPollInterval time.Duration
	Logger            *slog.Logger
}

// Sandbox owns the database, the River client and the HTTP routes.
type Sandbox struct {
	db     *sql.DB
	repo   *Repository
	tokens *TokenIssuer
	river  *riveradapter.Client
	router *chi.Mux
}

// Open prepares the schema, River and the routes. Call Start to begin
// processing theme builds and Close when done.
func Open(ctx context.Context, cfg Config) (*Sandbox, error) {
	if cfg.DatabasePath == "" || cfg.DatabasePath == ":memory:" {
		return nil, errors.New("sandbox needs a database file")
	}
	if len(cfg.Secret) == 0 {
		return nil, errors.New("sandbox needs a token secret")
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 24 * time.Hour
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	db, err := otel.OpenDB(cfg.DatabasePath)
	if err != nil {
		return nil, err
	}

	repo, err := NewRepository(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}

	client, err := riveradapter.Setup(ctx, db, repo, riveradapter.Config{
		BuildDelay:        cfg.BuildDelay,
		FetchPollInterval: cfg.FetchPollInterval,
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	tokens := NewTokenIssuer(cfg.Secret, cfg.TokenTTL)
	server := NewServer(repo, tokens, riveradapter.NewQueue(client), cfg.BuildDelay, cfg.Logger)

	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	api := humachi.New(router, huma.DefaultConfig("storeconsole sandbox", "0.1.0"))
	server.Register(api)

	return &Sandbox{db: db, repo: repo, tokens: tokens, river: client, router: router}, nil
}

// Start begins processing queued theme builds.
func (s *Sandbox) Start(ctx context.Context) error {
	if err := s.river.Start(ctx); err != nil {
		return fmt.Errorf("starting river: %w", err)
	}
	return nil
}

// Close cancels builds in progress, stops the queue and closes the database.
func (s *Sandbox) Close(ctx context.Context) error {
	var errs []error
	if err := s.river.StopAndCancel(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stopping river: %w", err))
	}
	if err := s.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing database: %w", err))
	}
	return errors.Join(errs...)
}

// Handler serves the backend routes.
func (s *Sandbox) Handler() http.Handler { return s.router }

// Repository exposes the store for tests and tooling.
func (s *Sandbox) Repository() *Repository { return s.repo }

// Tokens exposes the issuer for tests and tooling.
func (s *Sandbox) Tokens() *TokenIssuer { return s.tokens }

// Seed creates a user with password and the given stores owned by it.
// Missing ids, statuses and timestamps are filled in.
func (s *Sandbox) Seed(ctx context.Context, user User, password string, stores ...Store) (User, []Store, error) {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.Role == "" {
		user.Role = "merchant"
	}
	if user.Status == "" {
		user.Status = "active"
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	hash, err := hashPassword(password)
	if err != nil {
		return User{}, nil, err
	}
	if err := s.repo.CreateUser(ctx, user, hash); err != nil {
		return User{}, nil, fmt.Errorf("seeding user %s: %w", user.Email, err)
	}

	created := make([]Store, 0, len(stores))
	for _, st := range stores {
		if st.ID == "" {
			st.ID = uuid.NewString()
		}
		if st.SubscriptionStatus == "" {
			st.SubscriptionStatus = "active"
		}
		if st.CreatedAt.IsZero() {
			st.CreatedAt = time.Now().UTC()
		}
		st.OwnerID = user.ID
		if err := s.repo.CreateStore(ctx, st); err != nil {
			return User{}, nil, fmt.Errorf("seeding store %s: %w", st.Slug, err)
		}
		created = append(created, st)
	}
	return user, created, nil
}

// SeedTheme adds a theme to the catalogue.
func (s *Sandbox) SeedTheme(ctx context.Context, slug, name string) (Theme, error) {
	t := Theme{ID: uuid.NewString(), Slug: slug, Name: name}
	if err := s.repo.CreateTheme(ctx, t); err != nil {
		return Theme{}, fmt.Errorf("seeding theme %s: %w", slug, err)
	}
	return t, nil
}
