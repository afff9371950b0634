package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/neomorfeo/storeconsole/internal/adapter/fsm"
	"github.com/neomorfeo/storeconsole/internal/adapter/otel"
	"github.com/neomorfeo/storeconsole/internal/adapter/restapi"
	"github.com/neomorfeo/storeconsole/internal/adapter/sqlite"
	"github.com/neomorfeo/storeconsole/internal/app"
	"github.com/neomorfeo/storeconsole/internal/config"
	"github.com/neomorfeo/storeconsole/internal/domain"

	handler "github.com/neomorfeo/storeconsole/internal/adapter/http"
)

func main() {
	if err := run(); err != nil {
		slog.Error("storeconsole failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.ConsoleFromEnv()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	logger, err := cfg.Log.NewLogger(os.Stderr)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	slog.SetDefault(logger)

	ctx := context.Background()

	// --- Telemetry ---
	otelCfg := otel.ConfigFromEnv()
	providers, err := otel.Setup(ctx, otelCfg)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown", "error", err)
		}
	}()

	// --- Adapters (out) ---
	db, err := otel.OpenDB(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer db.Close()

	store, err := sqlite.NewFromDB(db)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}

	// --- Application ---
	console := newConsole(cfg, otel.NewTracingCredentialStore(store), logger)
	defer console.Close()

	// --- Adapters (in) ---
	router := handler.NewRouter(otelCfg.ServiceName, otelCfg.ServiceVersion, console)

	// --- Server ---
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("storeconsole listening", "addr", srv.Addr, "backend", cfg.BackendURL)
		logger.Info("API docs", "url", "http://localhost:"+cfg.Port+"/docs")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	case <-sigCtx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	logger.Info("stopped")
	return nil
}

// newConsole wires the backend client, services and telemetry decorators.
func newConsole(cfg config.Console, store domain.CredentialStore, logger *slog.Logger) *app.Console {
	auth := restapi.NewAuthContext()
	backend := otel.NewTracingBackend(restapi.New(cfg.BackendURL, auth, restapi.WithTimeout(cfg.RequestTimeout)))

	sessions := app.NewSessionResolver(store, backend, auth, app.WithSessionLogger(logger))
	tenants := app.NewTenantResolver(store, backend, logger)
	guard := app.NewAccessGuard(store, backend, logger)
	poller := app.NewActivationPoller(backend, backend, fsm.New(),
		app.PollerConfig{Interval: cfg.PollInterval, MaxAttempts: cfg.PollMaxAttempts},
		app.WithPollerLogger(logger),
		app.WithNotifier(otel.NewTracingNotifier(app.NewLogNotifier(logger))),
	)

	return app.NewConsole(sessions, tenants, guard, poller, backend, logger)
}
