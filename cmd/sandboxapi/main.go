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

	"github.com/neomorfeo/storeconsole/internal/adapter/otel"
	"github.com/neomorfeo/storeconsole/internal/config"
	"github.com/neomorfeo/storeconsole/internal/sandbox"
)

func main() {
	if err := run(); err != nil {
		slog.Error("sandboxapi failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.SandboxFromEnv()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	logger, err := cfg.Log.NewLogger(os.Stderr)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	slog.SetDefault(logger)

	ctx := context.Background()

	otelCfg := otel.ConfigFromEnv()
	if os.Getenv("OTEL_SERVICE_NAME") == "" {
		otelCfg.ServiceName = "storeconsole-sandbox"
	}
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

	sb, err := sandbox.Open(ctx, sandbox.Config{
		DatabasePath: cfg.DatabasePath,
		Secret:       []byte(cfg.Secret),
		TokenTTL:     cfg.TokenTTL,
		BuildDelay:   cfg.BuildDelay,
		Logger:       logger,
	})
	if err != nil {
		return fmt.Errorf("sandbox: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := sb.Close(closeCtx); err != nil {
			logger.Warn("sandbox close", "error", err)
		}
	}()

	if cfg.SeedDemo {
		if err := sb.SeedDemo(ctx); err != nil {
			return fmt.Errorf("seeding demo data: %w", err)
		}
		logger.Info("demo account ready", "email", sandbox.DemoEmail, "password", sandbox.DemoPassword)
	}

	if err := sb.Start(ctx); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           sb.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("sandbox backend listening", "addr", srv.Addr, "build_delay", cfg.BuildDelay)
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
