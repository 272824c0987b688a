package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"chainguard/internal/api"
	"chainguard/internal/config"
	"chainguard/internal/logging"
	"chainguard/internal/startup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the dashboard engine behind the HTTP API",
	Long: `Run the simulation engine headless and expose its state and intents
over the HTTP JSON API, together with /health and Prometheus /metrics.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := logging.New(os.Stdout, logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	resolved, _ := config.ResolvePath(configPath)
	diag := startup.NewDiagnostics(cfg, resolved, logger)
	diag.RunAll(ctx)
	if diag.HasErrors() {
		failed := diag.Errors()
		return fmt.Errorf("startup diagnostics failed: %s: %s", failed[0].Name, failed[0].Message)
	}

	// The engine outlives the signal context so in-flight requests can
	// finish against it during shutdown.
	engineCtx, cancelEngine := context.WithCancel(context.Background())
	defer cancelEngine()

	a, err := newApp(engineCtx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	server := api.NewServer(a.engine, api.Options{
		Server:   cfg.Server,
		Gatherer: a.registry,
		Logger:   logger,
		Version:  Version,
	})

	errCh := make(chan error, 2)
	go func() {
		errCh <- a.engine.Run(engineCtx)
	}()
	go func() {
		errCh <- server.ListenAndServe()
	}()

	logger.Info("chainguard started",
		"version", Version,
		"addr", server.Addr(),
		"feed_enabled", cfg.Feed.Enabled,
	)

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case runErr = <-errCh:
		if runErr != nil {
			logger.Error("component failed", "error", runErr)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	cancelEngine()
	<-a.engine.Done()

	logger.Info("chainguard stopped")
	if runErr != nil {
		return fmt.Errorf("serve: %w", runErr)
	}
	return nil
}
