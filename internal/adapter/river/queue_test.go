package river_test

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	goriver "github.com/riverqueue/river"

	_ "modernc.org/sqlite"

	riveradapter "github.com/neomorfeo/storeconsole/internal/adapter/river"
)

type applied struct {
	storeID string
	themeID string
}

type recordingApplier struct {
	mu    sync.Mutex
	calls []applied
	err   error
}

func (r *recordingApplier) SetStoreTheme(_ context.Context, storeID, themeID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, applied{storeID: storeID, themeID: themeID})
	return r.err
}

func (r *recordingApplier) applied() []applied {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]applied(nil), r.calls...)
}

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	dbPath := t.TempDir() + "/river_test.db"
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		t.Fatalf("setting WAL: %v", err)
	}

	return db
}

func startClient(t *testing.T, applier riveradapter.ThemeApplier, cfg riveradapter.Config) (*riveradapter.Client, <-chan *goriver.Event) {
	t.Helper()
	ctx := context.Background()

	client, err := riveradapter.Setup(ctx, setupTestDB(t), applier, cfg)
	if err != nil {
		t.Fatalf("river setup: %v", err)
	}

	// Subscribe before starting so no completion is missed.
	events, cancel := client.Subscribe(goriver.EventKindJobCompleted, goriver.EventKindJobFailed)
	t.Cleanup(cancel)

	if err := client.Start(ctx); err != nil {
		t.Fatalf("river start: %v", err)
	}
	t.Cleanup(func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Stop(stopCtx); err != nil {
			t.Errorf("river stop: %v", err)
		}
	})

	return client, events
}

func waitEvent(t *testing.T, events <-chan *goriver.Event) *goriver.Event {
	t.Helper()
	select {
	case event := <-events:
		return event
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for job event")
		return nil
	}
}

func TestQueue_Enqueue_AppliesTheme(t *testing.T) {
	applier := &recordingApplier{}
	client, events := startClient(t, applier, riveradapter.Config{FetchPollInterval: 20 * time.Millisecond})

	queue := riveradapter.NewQueue(client)
	id, err := queue.Enqueue(context.Background(), riveradapter.ThemeBuildArgs{
		StoreID: "s-1", StoreSlug: "acme", ThemeID: "t-9", ThemeSlug: "aurora",
	})
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if id == 0 {
		t.Error("expected a non-zero job id")
	}

	event := waitEvent(t, events)
	if event.Kind != goriver.EventKindJobCompleted {
		t.Fatalf("event kind = %q, want %q", event.Kind, goriver.EventKindJobCompleted)
	}
	if event.Job.Kind != "theme.activate" {
		t.Errorf("job kind = %q, want %q", event.Job.Kind, "theme.activate")
	}

	calls := applier.applied()
	if len(calls) != 1 || calls[0] != (applied{storeID: "s-1", themeID: "t-9"}) {
		t.Errorf("applier calls = %+v, want one call for s-1/t-9", calls)
	}
}

func TestQueue_Enqueue_PreservesArgs(t *testing.T) {
	client, events := startClient(t, &recordingApplier{}, riveradapter.Config{FetchPollInterval: 20 * time.Millisecond})

	queue := riveradapter.NewQueue(client)
	if _, err := queue.Enqueue(context.Background(), riveradapter.ThemeBuildArgs{
		StoreID: "s-42", StoreSlug: "test-corp", ThemeID: "t-1", ThemeSlug: "minimal",
	}); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	event := waitEvent(t, events)
	args := string(event.Job.EncodedArgs)
	for _, want := range []string{`"store_id":"s-42"`, `"store_slug":"test-corp"`, `"theme_id":"t-1"`, `"theme_slug":"minimal"`} {
		if !strings.Contains(args, want) {
			t.Errorf("encoded args missing %s, got: %s", want, args)
		}
	}
}

func TestThemeWorker_WaitsBuildDelay(t *testing.T) {
	const delay = 150 * time.Millisecond
	applier := &recordingApplier{}
	client, events := startClient(t, applier, riveradapter.Config{
		BuildDelay:        delay,
		FetchPollInterval: 20 * time.Millisecond,
	})

	start := time.Now()
	if _, err := riveradapter.NewQueue(client).Enqueue(context.Background(), riveradapter.ThemeBuildArgs{
		StoreID: "s-1", ThemeID: "t-2",
	}); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	waitEvent(t, events)
	if elapsed := time.Since(start); elapsed < delay {
		t.Errorf("build finished after %v, want at least %v", elapsed, delay)
	}
	if got := len(applier.applied()); got != 1 {
		t.Errorf("applier calls = %d, want 1", got)
	}
}

func TestThemeWorker_ApplierErrorFailsAttempt(t *testing.T) {
	applier := &recordingApplier{err: errors.New("disk full")}
	client, events := startClient(t, applier, riveradapter.Config{FetchPollInterval: 20 * time.Millisecond})

	if _, err := riveradapter.NewQueue(client).Enqueue(context.Background(), riveradapter.ThemeBuildArgs{
		StoreID: "s-1", ThemeID: "t-2",
	}); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	event := waitEvent(t, events)
	if event.Kind != goriver.EventKindJobFailed {
		t.Errorf("event kind = %q, want %q", event.Kind, goriver.EventKindJobFailed)
	}
	if len(event.Job.Errors) == 0 || !strings.Contains(event.Job.Errors[0].Error, "disk full") {
		t.Errorf("job errors = %+v, want the applier error recorded", event.Job.Errors)
	}
}
