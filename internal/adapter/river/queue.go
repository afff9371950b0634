package river

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/riverqueue/river"
)

// ThemeBuildArgs carries one theme build. River serializes it as JSON into
// its job table, so the worker needs no lookup to know what to apply.
type ThemeBuildArgs struct {
	StoreID   string `json:"store_id"`
	StoreSlug string `json:"store_slug"`
	ThemeID   string `json:"theme_id"`
	ThemeSlug string `json:"theme_slug"`
}

// Kind returns the unique job type identifier used by River's job routing.
func (ThemeBuildArgs) Kind() string { return "theme.activate" }

// Client is the River client type parameterized for SQLite (*sql.Tx).
type Client = river.Client[*sql.Tx]

// Queue enqueues theme builds.
type Queue struct {
	client *Client
}

// NewQueue creates a queue backed by the given River client.
func NewQueue(client *Client) *Queue {
	return &Queue{client: client}
}

// Enqueue schedules a build and returns the River job id.
func (q *Queue) Enqueue(ctx context.Context, args ThemeBuildArgs) (int64, error) {
	res, err := q.client.Insert(ctx, args, nil)
	if err != nil {
		return 0, fmt.Errorf("enqueuing theme build: %w", err)
	}
	return res.Job.ID, nil
}
