package app

import (
	"context"
	"log/slog"

	"github.com/neomorfeo/storeconsole/internal/domain"
)

// LogNotifier writes activation state changes to a structured logger.
type LogNotifier struct {
	logger *slog.Logger
}

// Compile-time check: LogNotifier implements domain.ActivationNotifier.
var _ domain.ActivationNotifier = (*LogNotifier)(nil)

// NewLogNotifier creates a notifier. A nil logger means slog.Default().
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(ctx context.Context, job domain.ActivationJob) error {
	attrs := []any{
		"job_id", job.ID,
		"tenant_id", job.Request.TenantID,
		"theme_id", job.Request.ThemeID,
		"state", job.State,
		"attempts", job.Attempts,
	}
	if job.Outcome != nil {
		attrs = append(attrs, "outcome", job.Outcome.String())
	}

	level := slog.LevelInfo
	if job.State == domain.JobFailed || job.State == domain.JobTimedOut {
		level = slog.LevelWarn
	}
	n.logger.Log(ctx, level, "activation state changed", attrs...)
	return nil
}
