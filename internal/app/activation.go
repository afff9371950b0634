package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/neomorfeo/storeconsole/internal/domain"
)

// errCancelled is the cancellation cause of an explicitly cancelled job.
var errCancelled = errors.New("activation cancelled")

// PollerConfig sets the convergence polling cadence.
type PollerConfig struct {
	Interval    time.Duration
	MaxAttempts int
}

// DefaultPollerConfig polls every 3 seconds, 30 times.
func DefaultPollerConfig() PollerConfig {
	return PollerConfig{Interval: 3 * time.Second, MaxAttempts: 30}
}

// ActivationPoller issues theme changes and polls the backend until the
// tenant reports the requested theme. At most one job runs per tenant.
type ActivationPoller struct {
	themes        domain.ThemeAPI
	dir           domain.TenantDirectory
	validator     domain.TransitionValidator
	notifier      domain.ActivationNotifier
	cfg           PollerConfig
	logger        *slog.Logger
	onAuthExpired func(context.Context)

	mu   sync.Mutex
	jobs map[string]*activation
	last map[string]domain.ActivationJob
}

// activation is a running job. job is guarded by the poller's mutex;
// outcome is written once before done is closed.
type activation struct {
	job     domain.ActivationJob
	cancel  context.CancelCauseFunc
	done    chan struct{}
	outcome domain.Outcome
}

// PollerOption configures an ActivationPoller.
type PollerOption func(*ActivationPoller)

// WithPollerLogger sets the logger. Defaults to slog.Default().
func WithPollerLogger(l *slog.Logger) PollerOption {
	return func(p *ActivationPoller) { p.logger = l }
}

// WithNotifier publishes every job state change to n.
func WithNotifier(n domain.ActivationNotifier) PollerOption {
	return func(p *ActivationPoller) { p.notifier = n }
}

// OnAuthExpired registers fn to run after a job failed because the backend
// rejected the token. fn runs on its own goroutine once the job has ended.
func OnAuthExpired(fn func(context.Context)) PollerOption {
	return func(p *ActivationPoller) { p.onAuthExpired = fn }
}

// NewActivationPoller creates a poller. Non-positive config fields fall back
// to DefaultPollerConfig.
func NewActivationPoller(themes domain.ThemeAPI, dir domain.TenantDirectory, validator domain.TransitionValidator, cfg PollerConfig, opts ...PollerOption) *ActivationPoller {
	def := DefaultPollerConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}

	p := &ActivationPoller{
		themes:    themes,
		dir:       dir,
		validator: validator,
		cfg:       cfg,
		logger:    slog.Default(),
		jobs:      make(map[string]*activation),
		last:      make(map[string]domain.ActivationJob),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ApplyTheme runs the activation and waits for its outcome. A request for the
// theme already being activated joins that job. Cancelling ctx stops waiting;
// it also cancels the job when this call started it.
func (p *ActivationPoller) ApplyTheme(ctx context.Context, req domain.ActivationRequest) (domain.Outcome, error) {
	a, owner, err := p.start(ctx, req)
	if err != nil {
		return domain.Outcome{}, err
	}

	select {
	case <-a.done:
		return a.outcome, nil
	case <-ctx.Done():
		if owner {
			a.cancel(errCancelled)
		}
		return domain.Outcome{}, ctx.Err()
	}
}

// Start begins or joins an activation and returns its snapshot without
// waiting. The job runs until it ends or is cancelled through Cancel or
// CancelAll.
func (p *ActivationPoller) Start(ctx context.Context, req domain.ActivationRequest) (domain.ActivationJob, error) {
	a, _, err := p.start(ctx, req)
	if err != nil {
		return domain.ActivationJob{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return cloneJob(a.job), nil
}

func (p *ActivationPoller) start(ctx context.Context, req domain.ActivationRequest) (*activation, bool, error) {
	if req.TenantID == "" || req.TenantSlug == "" || req.ThemeID == "" || req.ThemeSlug == "" {
		return nil, false, fmt.Errorf("invalid activation request: tenant id, tenant slug, theme id and theme slug are required")
	}

	p.mu.Lock()
	for {
		cur, ok := p.jobs[req.TenantID]
		if !ok {
			break
		}
		if cur.job.Request == req {
			p.mu.Unlock()
			p.logger.InfoContext(ctx, "joining running activation",
				"tenant_id", req.TenantID, "job_id", cur.job.ID)
			return cur, false, nil
		}

		// A different theme supersedes the running job. Its loop must be
		// gone before the new one issues its apply command.
		p.logger.InfoContext(ctx, "superseding running activation",
			"tenant_id", req.TenantID, "job_id", cur.job.ID, "theme_id", req.ThemeID)
		cur.cancel(domain.ErrSuperseded)
		p.mu.Unlock()
		<-cur.done
		p.mu.Lock()
	}

	jobCtx, cancel := context.WithCancelCause(context.WithoutCancel(ctx))
	a := &activation{
		job: domain.ActivationJob{
			ID:        newJobID(),
			Request:   req,
			State:     domain.JobPending,
			StartedAt: time.Now().UTC(),
		},
		cancel: cancel,
		done:   make(chan struct{}),
	}
	p.jobs[req.TenantID] = a
	snapshot := cloneJob(a.job)
	p.mu.Unlock()

	p.notify(jobCtx, snapshot)

	go func() {
		authExpired := p.run(jobCtx, a)
		if authExpired && p.onAuthExpired != nil {
			p.onAuthExpired(context.WithoutCancel(jobCtx))
		}
	}()
	return a, true, nil
}

// run drives one job to a terminal state and reports whether it ended on an
// auth-expired failure.
func (p *ActivationPoller) run(ctx context.Context, a *activation) (authExpired bool) {
	defer close(a.done)
	defer a.cancel(nil)

	req := a.job.Request
	log := p.logger.With("tenant_id", req.TenantID, "job_id", a.job.ID, "theme_id", req.ThemeID)

	res, err := p.themes.ApplyTheme(ctx, req.TenantSlug, req.ThemeSlug)
	if err != nil {
		log.WarnContext(ctx, "theme apply command failed", "error", err)
		p.finish(ctx, a, domain.EventFail, failedOutcome(ctx, err, 0))
		return domain.IsAuthExpired(err)
	}
	if res.Status == domain.ApplyApplied {
		p.finish(ctx, a, domain.EventApplied, domain.Outcome{Kind: domain.OutcomeAppliedImmediately})
		return false
	}
	if !p.transition(ctx, a, domain.EventProcessing) {
		return false
	}

	for attempt := 1; attempt <= p.cfg.MaxAttempts; attempt++ {
		if err := sleepContext(ctx, p.cfg.Interval); err != nil {
			p.finish(ctx, a, domain.EventFail, failedOutcome(ctx, err, attempt-1))
			return false
		}

		tenant, err := p.dir.GetBySlug(ctx, req.TenantSlug)
		p.recordAttempt(a, attempt)

		switch {
		case err == nil && tenant.ThemeID == req.ThemeID:
			log.InfoContext(ctx, "theme converged", "attempt", attempt)
			p.finish(ctx, a, domain.EventConverged, domain.Outcome{Kind: domain.OutcomeConverged, Attempts: attempt})
			return false
		case err != nil && ctx.Err() != nil:
			p.finish(ctx, a, domain.EventFail, failedOutcome(ctx, err, attempt))
			return false
		case domain.IsAuthExpired(err):
			log.WarnContext(ctx, "convergence check rejected", "attempt", attempt, "error", err)
			p.finish(ctx, a, domain.EventFail, failedOutcome(ctx, err, attempt))
			return true
		case err != nil:
			log.WarnContext(ctx, "convergence check failed", "attempt", attempt, "error", err)
		default:
			log.DebugContext(ctx, "theme not yet applied", "attempt", attempt, "current_theme_id", tenant.ThemeID)
		}
	}

	log.WarnContext(ctx, "theme did not converge", "attempts", p.cfg.MaxAttempts)
	p.finish(ctx, a, domain.EventExhausted, domain.Outcome{Kind: domain.OutcomeTimedOut, Attempts: p.cfg.MaxAttempts})
	return false
}

// transition moves a running job to a non-terminal state. An invalid
// transition fails the job and returns false.
func (p *ActivationPoller) transition(ctx context.Context, a *activation, event domain.JobEvent) bool {
	p.mu.Lock()
	next, err := p.validator.Apply(ctx, a.job.State, event)
	if err != nil {
		p.mu.Unlock()
		p.finish(ctx, a, domain.EventFail, domain.Outcome{Kind: domain.OutcomeFailed, Reason: err.Error()})
		return false
	}
	a.job.State = next
	snapshot := cloneJob(a.job)
	p.mu.Unlock()

	p.notify(ctx, snapshot)
	return true
}

// finish moves the job to its terminal state, records the snapshot as the
// tenant's last job and releases the tenant slot.
func (p *ActivationPoller) finish(ctx context.Context, a *activation, event domain.JobEvent, outcome domain.Outcome) {
	p.mu.Lock()
	next, err := p.validator.Apply(ctx, a.job.State, event)
	if err != nil {
		p.logger.ErrorContext(ctx, "invalid activation transition", "job_id", a.job.ID, "error", err)
		next = domain.JobFailed
		outcome = domain.Outcome{Kind: domain.OutcomeFailed, Reason: err.Error(), Attempts: a.job.Attempts}
	}
	a.job.State = next
	a.job.Outcome = &outcome
	a.job.FinishedAt = time.Now().UTC()
	a.outcome = outcome

	tenantID := a.job.Request.TenantID
	if p.jobs[tenantID] == a {
		delete(p.jobs, tenantID)
	}
	snapshot := cloneJob(a.job)
	p.last[tenantID] = snapshot
	p.mu.Unlock()

	p.logger.InfoContext(ctx, "activation finished",
		"tenant_id", tenantID,
		"job_id", snapshot.ID,
		"outcome", outcome.String(),
		"attempts", snapshot.Attempts,
	)
	p.notify(ctx, snapshot)
}

func (p *ActivationPoller) recordAttempt(a *activation, attempt int) {
	p.mu.Lock()
	a.job.Attempts = attempt
	p.mu.Unlock()
}

func (p *ActivationPoller) notify(ctx context.Context, job domain.ActivationJob) {
	if p.notifier == nil {
		return
	}
	if err := p.notifier.Notify(context.WithoutCancel(ctx), job); err != nil {
		p.logger.WarnContext(ctx, "activation notification failed", "job_id", job.ID, "error", err)
	}
}

// Cancel stops the running job of tenantID and waits for its loop to exit.
// It reports whether a job was running.
func (p *ActivationPoller) Cancel(tenantID string) bool {
	p.mu.Lock()
	a, ok := p.jobs[tenantID]
	p.mu.Unlock()
	if !ok {
		return false
	}
	a.cancel(errCancelled)
	<-a.done
	return true
}

// CancelAll stops every running job and waits for their loops to exit.
func (p *ActivationPoller) CancelAll() {
	p.mu.Lock()
	running := make([]*activation, 0, len(p.jobs))
	for _, a := range p.jobs {
		running = append(running, a)
	}
	p.mu.Unlock()

	for _, a := range running {
		a.cancel(errCancelled)
	}
	for _, a := range running {
		<-a.done
	}
}

// Recheck asks the backend once whether tenantSlug now reports themeID.
func (p *ActivationPoller) Recheck(ctx context.Context, tenantSlug, themeID string) (bool, error) {
	tenant, err := p.dir.GetBySlug(ctx, tenantSlug)
	if err != nil {
		return false, fmt.Errorf("rechecking theme of %q: %w", tenantSlug, err)
	}
	return tenant.ThemeID == themeID, nil
}

// Last returns the running job of tenantID, or its most recent finished job.
func (p *ActivationPoller) Last(tenantID string) (domain.ActivationJob, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if a, ok := p.jobs[tenantID]; ok {
		return cloneJob(a.job), true
	}
	job, ok := p.last[tenantID]
	return cloneJob(job), ok
}

// failedOutcome names why a job failed: cancellation causes win over the
// error they produced.
func failedOutcome(ctx context.Context, err error, attempts int) domain.Outcome {
	reason := err.Error()
	if cause := context.Cause(ctx); cause != nil {
		switch {
		case errors.Is(cause, domain.ErrSuperseded):
			reason = "superseded"
		default:
			reason = "cancelled"
		}
	} else if domain.IsAuthExpired(err) {
		reason = "authentication expired"
	}
	return domain.Outcome{Kind: domain.OutcomeFailed, Reason: reason, Attempts: attempts}
}

// sleepContext waits for d or until ctx is done, whichever comes first.
func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return context.Cause(ctx)
	case <-t.C:
		return nil
	}
}

func cloneJob(job domain.ActivationJob) domain.ActivationJob {
	if job.Outcome != nil {
		o := *job.Outcome
		job.Outcome = &o
	}
	return job
}
