package river

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/riverqueue/river"
)

// ThemeApplier records that a store now runs a theme.
type ThemeApplier interface {
	SetStoreTheme(ctx context.Context, storeID, themeID string) error
}

// ThemeWorker simulates a theme build: it waits the build delay and then
// applies the theme to the store.
type ThemeWorker struct {
	river.WorkerDefaults[ThemeBuildArgs]

	applier ThemeApplier
	delay   time.Duration
	logger  *slog.Logger
}

// NewThemeWorker returns a worker. A nil logger means slog.Default().
func NewThemeWorker(applier ThemeApplier, delay time.Duration, logger *slog.Logger) *ThemeWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &ThemeWorker{applier: applier, delay: delay, logger: logger}
}

// Work processes a single theme build job.
func (w *ThemeWorker) Work(ctx context.Context, job *river.Job[ThemeBuildArgs]) error {
	w.logger.InfoContext(ctx, "building theme",
		"store_id", job.Args.StoreID,
		"store_slug", job.Args.StoreSlug,
		"theme_slug", job.Args.ThemeSlug,
		"job_id", job.ID,
		"attempt", job.Attempt,
	)

	if w.delay > 0 {
		timer := time.NewTimer(w.delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	if err := w.applier.SetStoreTheme(ctx, job.Args.StoreID, job.Args.ThemeID); err != nil {
		return fmt.Errorf("applying theme %s to store %s: %w", job.Args.ThemeID, job.Args.StoreID, err)
	}

	w.logger.InfoContext(ctx, "theme applied",
		"store_id", job.Args.StoreID,
		"theme_id", job.Args.ThemeID,
		"job_id", job.ID,
	)
	return nil
}
