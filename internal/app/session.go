package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"

	"github.com/neomorfeo/storeconsole/internal/domain"
)

// Flight keys. Background revalidation, Refresh and the token-only path all
// share flightProfile, so at most one profile fetch is in flight.
const (
	flightResolve = "resolve"
	flightProfile = "profile"
)

// SessionResolver reconstructs the authenticated session from persisted
// credentials and keeps it in sync with the backend profile.
type SessionResolver struct {
	store  domain.CredentialStore
	auth   domain.AuthAPI
	tokens domain.TokenHolder
	logger *slog.Logger
	now    func() time.Time

	flights singleflight.Group
	bg      sync.WaitGroup

	// mu guards the fields below. Credential writes happen under mu so a
	// write can never land after a logout that started later.
	mu       sync.Mutex
	session  *domain.Session
	resolved bool
	gen      uint64
	bgCancel context.CancelFunc
}

// SessionOption configures a SessionResolver.
type SessionOption func(*SessionResolver)

// WithSessionLogger sets the logger. Defaults to slog.Default().
func WithSessionLogger(l *slog.Logger) SessionOption {
	return func(s *SessionResolver) { s.logger = l }
}

// WithClock overrides the clock used for token expiry checks.
func WithClock(now func() time.Time) SessionOption {
	return func(s *SessionResolver) { s.now = now }
}

// NewSessionResolver creates a resolver over the given adapters.
func NewSessionResolver(store domain.CredentialStore, auth domain.AuthAPI, tokens domain.TokenHolder, opts ...SessionOption) *SessionResolver {
	s := &SessionResolver{
		store:  store,
		auth:   auth,
		tokens: tokens,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// sessionSource is one entry of the priority-ordered source list. The first
// source whose applies returns true resolves the session.
type sessionSource struct {
	name    domain.SessionSource
	applies func(domain.Credentials) bool
	resolve func(ctx context.Context, creds domain.Credentials, gen uint64) *domain.Session
}

func (s *SessionResolver) sources() []sessionSource {
	return []sessionSource{
		{name: domain.SourceCache, applies: s.hasUsableBundle, resolve: s.fromBundle},
		{name: domain.SourceProfile, applies: hasToken, resolve: s.fromToken},
	}
}

// Resolve returns the current session, resolving it on first use. It never
// fails: unauthenticated and irrecoverable states both yield nil.
func (s *SessionResolver) Resolve(ctx context.Context) *domain.Session {
	if sess, ok := s.memoized(); ok {
		return sess
	}

	v, _, _ := s.flights.Do(flightResolve, func() (any, error) {
		if sess, ok := s.memoized(); ok {
			return sess, nil
		}
		return s.resolve(context.WithoutCancel(ctx)), nil
	})
	sess, _ := v.(*domain.Session)
	return cloneSession(sess)
}

func (s *SessionResolver) resolve(ctx context.Context) *domain.Session {
	gen := s.generation()

	creds, err := s.store.Load(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "loading credentials", "error", err)
		return nil
	}

	for _, src := range s.sources() {
		if src.applies(creds) {
			s.logger.DebugContext(ctx, "resolving session", "source", src.name)
			return src.resolve(ctx, creds, gen)
		}
	}

	s.mu.Lock()
	if gen == s.gen {
		s.resolved = true
	}
	s.mu.Unlock()
	return nil
}

// hasUsableBundle reports whether the session can be rebuilt without a
// network call: token and profile are present and the token is not known to
// be expired.
func (s *SessionResolver) hasUsableBundle(creds domain.Credentials) bool {
	return creds.Token != "" && creds.Profile != nil && !tokenExpired(creds.Token, s.now())
}

func hasToken(creds domain.Credentials) bool {
	return creds.Token != ""
}

// fromBundle publishes the cached session, then revalidates it in the
// background.
func (s *SessionResolver) fromBundle(ctx context.Context, creds domain.Credentials, gen uint64) *domain.Session {
	sess := domain.NewSession(creds.Token, *creds.Profile, domain.SourceCache)

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return cloneSession(s.session)
	}

	s.tokens.Set(creds.Token)
	s.session = &sess
	s.resolved = true
	s.startRevalidationLocked(ctx, gen, creds.Token)

	return cloneSession(&sess)
}

// fromToken fetches the profile before returning.
func (s *SessionResolver) fromToken(ctx context.Context, creds domain.Credentials, gen uint64) *domain.Session {
	if !s.adoptToken(gen, creds.Token) {
		return s.Current()
	}
	profile, err := s.fetchProfile(ctx)
	return s.reconcile(ctx, gen, creds.Token, profile, err)
}

// adoptToken makes token live unless a login or logout started a newer
// generation after the token was read.
func (s *SessionResolver) adoptToken(gen uint64, token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return false
	}
	s.tokens.Set(token)
	return true
}

func (s *SessionResolver) startRevalidationLocked(parent context.Context, gen uint64, token string) {
	ctx, cancel := context.WithCancel(context.WithoutCancel(parent))
	s.bgCancel = cancel

	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		defer cancel()

		profile, err := s.fetchProfile(ctx)
		if err != nil && ctx.Err() != nil {
			return
		}
		s.reconcile(ctx, gen, token, profile, err)
	}()
}

func (s *SessionResolver) fetchProfile(ctx context.Context) (domain.Profile, error) {
	v, err, _ := s.flights.Do(flightProfile, func() (any, error) {
		return s.auth.Profile(ctx)
	})
	if err != nil {
		return domain.Profile{}, err
	}
	return v.(domain.Profile), nil
}

// reconcile folds one profile fetch into the session state. A fresh profile
// always wins, 401/403 tears everything down, and any other failure keeps the
// last known good session. Results from an older generation are discarded.
func (s *SessionResolver) reconcile(ctx context.Context, gen uint64, token string, profile domain.Profile, fetchErr error) *domain.Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.gen {
		s.logger.DebugContext(ctx, "discarding stale profile result")
		return cloneSession(s.session)
	}

	switch {
	case fetchErr == nil:
		sess := domain.NewSession(token, profile, domain.SourceProfile)
		s.session = &sess
		s.resolved = true
		s.persistProfileLocked(ctx, token, profile)

	case domain.IsAuthExpired(fetchErr):
		s.logger.WarnContext(ctx, "session rejected by backend", "error", fetchErr)
		if err := s.teardownLocked(ctx); err != nil {
			s.logger.ErrorContext(ctx, "tearing down session", "error", err)
		}

	default:
		s.logger.WarnContext(ctx, "profile fetch failed, keeping last known session",
			"error", fetchErr,
			"has_session", s.session != nil,
		)
		// Without a known good session the next Resolve retries; the token
		// stays live so Refresh can succeed.
		s.resolved = s.session != nil
	}

	return cloneSession(s.session)
}

// persistProfileLocked rewrites the bundle with a fresh profile, keeping the
// active tenant and pending purchase.
func (s *SessionResolver) persistProfileLocked(ctx context.Context, token string, profile domain.Profile) {
	err := s.store.Update(ctx, func(c *domain.Credentials) bool {
		if c.Token != token {
			c.ActiveTenant = nil
			c.PendingPurchase = ""
		}
		c.Token = token
		c.Profile = &profile
		return true
	})
	if err != nil {
		s.logger.WarnContext(ctx, "persisting refreshed profile", "error", err)
	}
}

// Login authenticates with email and password and persists the new bundle.
// The active tenant survives only when the same user logs in again.
func (s *SessionResolver) Login(ctx context.Context, email, password string) (*domain.Session, error) {
	s.mu.Lock()
	s.invalidateLocked()
	s.tokens.Clear()
	s.mu.Unlock()

	res, err := s.auth.Login(ctx, email, password)
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err = s.store.Update(ctx, func(c *domain.Credentials) bool {
		sameUser := c.Profile != nil && c.Profile.UserID == res.Profile.UserID
		next := domain.Credentials{Token: res.Token, Profile: &res.Profile}
		if sameUser {
			next.ActiveTenant = c.ActiveTenant
			next.PendingPurchase = c.PendingPurchase
		}
		*c = next
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("persisting credentials: %w", err)
	}

	sess := domain.NewSession(res.Token, res.Profile, domain.SourceLogin)
	s.tokens.Set(res.Token)
	s.session = &sess
	s.resolved = true

	s.logger.InfoContext(ctx, "logged in", "user_id", sess.UserID, "role", sess.Role)
	return cloneSession(&sess), nil
}

// Logout cancels background revalidation, aborts authenticated requests in
// flight and clears the persisted bundle.
func (s *SessionResolver) Logout(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	userID := ""
	if s.session != nil {
		userID = s.session.UserID
	}
	if err := s.teardownLocked(ctx); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "logged out", "user_id", userID)
	return nil
}

func (s *SessionResolver) teardownLocked(ctx context.Context) error {
	s.invalidateLocked()
	s.tokens.Clear()
	s.session = nil
	s.resolved = true
	if err := s.store.Clear(ctx); err != nil {
		return fmt.Errorf("clearing credentials: %w", err)
	}
	return nil
}

// invalidateLocked starts a new generation: results of work started before
// it are discarded and background revalidation is cancelled.
func (s *SessionResolver) invalidateLocked() {
	s.gen++
	if s.bgCancel != nil {
		s.bgCancel()
		s.bgCancel = nil
	}
}

// Refresh forces a profile fetch with the same failure semantics as Resolve.
func (s *SessionResolver) Refresh(ctx context.Context) *domain.Session {
	gen := s.generation()

	token := s.tokens.Token()
	if token == "" {
		creds, err := s.store.Load(ctx)
		if err != nil {
			s.logger.ErrorContext(ctx, "loading credentials", "error", err)
			return s.Current()
		}
		if creds.Token == "" {
			return nil
		}
		token = creds.Token
		if !s.adoptToken(gen, token) {
			return s.Current()
		}
	}

	profile, err := s.fetchProfile(ctx)
	return s.reconcile(ctx, gen, token, profile, err)
}

// Current returns the published session without resolving.
func (s *SessionResolver) Current() *domain.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneSession(s.session)
}

// Wait blocks until background revalidation has finished.
func (s *SessionResolver) Wait() {
	s.bg.Wait()
}

func (s *SessionResolver) memoized() (*domain.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneSession(s.session), s.resolved
}

func (s *SessionResolver) generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}

func cloneSession(sess *domain.Session) *domain.Session {
	if sess == nil {
		return nil
	}
	c := *sess
	c.Profile.TenantIDs = append([]string(nil), sess.Profile.TenantIDs...)
	return &c
}

// tokenExpired reports whether token is a JWT whose exp claim lies in the
// past. Opaque tokens are never known to be expired.
func tokenExpired(token string, now time.Time) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return !exp.After(now)
}
