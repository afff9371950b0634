package restapi

import (
	"context"
	"errors"
	"sync"

	"github.com/neomorfeo/storeconsole/internal/domain"
)

// ErrTokenRotated is the cause of a request aborted because the live token
// changed or was cleared while it was in flight.
var ErrTokenRotated = errors.New("bearer token changed during request")

// Compile-time check: AuthContext implements domain.TokenHolder.
var _ domain.TokenHolder = (*AuthContext)(nil)

// AuthContext holds the one live bearer token of the process. Every token
// change opens a new generation and cancels requests bound to the previous
// one, so nothing is dispatched or still running with a stale token.
type AuthContext struct {
	mu     sync.RWMutex
	token  string
	gen    context.Context
	cancel context.CancelFunc
}

// NewAuthContext returns an AuthContext with no token.
func NewAuthContext() *AuthContext {
	a := &AuthContext{}
	a.gen, a.cancel = context.WithCancel(context.Background())
	return a
}

// Set makes token the live token. Setting the current token is a no-op.
func (a *AuthContext) Set(token string) {
	a.rotate(token)
}

// Clear drops the live token and aborts authenticated requests in flight.
func (a *AuthContext) Clear() {
	a.rotate("")
}

// Token returns the live token, or "" when logged out.
func (a *AuthContext) Token() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.token
}

func (a *AuthContext) rotate(token string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if token == a.token {
		return
	}
	a.cancel()
	a.gen, a.cancel = context.WithCancel(context.Background())
	a.token = token
}

// Bind derives a request context from ctx that is cancelled with
// ErrTokenRotated as soon as the token changes, and returns the token the
// request must carry. release must be called when the request is done.
func (a *AuthContext) Bind(ctx context.Context) (context.Context, string, func()) {
	a.mu.RLock()
	token, gen := a.token, a.gen
	a.mu.RUnlock()

	ctx, cancel := context.WithCancelCause(ctx)
	stop := context.AfterFunc(gen, func() { cancel(ErrTokenRotated) })

	return ctx, token, func() {
		stop()
		cancel(nil)
	}
}
