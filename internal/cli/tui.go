package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"chainguard/internal/logging"
	"chainguard/internal/tui"
	tuiapi "chainguard/internal/tui/api"
)

var (
	serverURL    string
	pollInterval time.Duration
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Open the terminal dashboard",
	Long: `Open the terminal dashboard. By default the simulation runs in-process;
with --server the dashboard attaches to a running 'chainguard serve'.`,
	RunE: runTUI,
}

func runTUI(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if serverURL != "" {
		client := tuiapi.NewClient(serverURL)
		return tui.Run(ctx, client,
			tui.WithLabel("remote "+client.BaseURL()),
			tui.WithPollInterval(pollInterval),
		)
	}

	// Logs must not reach the terminal while the alternate screen is up.
	logger, closer, err := logging.NewFile(cfg.Logging.File, logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		return err
	}
	defer closer.Close()

	engineCtx, cancelEngine := context.WithCancel(ctx)
	defer cancelEngine()

	a, err := newApp(engineCtx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	go func() {
		if err := a.engine.Run(engineCtx); err != nil {
			logger.Error("dashboard engine failed", "error", err)
		}
	}()

	runErr := tui.Run(ctx, a.engine, tui.WithLabel("local"))

	cancelEngine()
	<-a.engine.Done()

	if runErr != nil {
		return fmt.Errorf("tui: %w", runErr)
	}
	return nil
}
