package river

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riversqlite"
	"github.com/riverqueue/river/rivermigrate"
)

// Config tunes the theme build client.
type Config struct {
	// BuildDelay is how long a build takes before the theme is applied.
	BuildDelay time.Duration
	// MaxWorkers bounds concurrent builds. Zero means 2.
	MaxWorkers int
	// FetchPollInterval is how often idle workers look for new jobs. SQLite
	// has no LISTEN/NOTIFY so this bounds pickup latency. Zero keeps River's
	// default.
	FetchPollInterval time.Duration
}

// Setup creates a River client with the theme worker registered and runs
// River's internal migrations. The caller must call client.Start() to begin
// processing jobs and client.Stop() for graceful shutdown.
func Setup(ctx context.Context, db *sql.DB, applier ThemeApplier, cfg Config) (*Client, error) {
	driver := riversqlite.New(db)

	// River's own tables (river_job, river_leader, ...) are separate from
	// the goose-managed schema.
	migrator, err := rivermigrate.New(driver, nil)
	if err != nil {
		return nil, fmt.Errorf("creating river migrator: %w", err)
	}
	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
		return nil, fmt.Errorf("running river migrations: %w", err)
	}

	workers := river.NewWorkers()
	river.AddWorker(workers, NewThemeWorker(applier, cfg.BuildDelay, nil))

	maxWorkers := cfg.MaxWorkers
	if maxWorkers <= 0 {
		maxWorkers = 2
	}
	riverCfg := &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: maxWorkers},
		},
		Workers: workers,
	}
	if cfg.FetchPollInterval > 0 {
		riverCfg.FetchPollInterval = cfg.FetchPollInterval
		riverCfg.FetchCooldown = min(cfg.FetchPollInterval, 100*time.Millisecond)
	}

	client, err := river.NewClient(driver, riverCfg)
	if err != nil {
		return nil, fmt.Errorf("creating river client: %w", err)
	}

	return client, nil
}
