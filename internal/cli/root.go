// Package cli wires configuration, logging and the dashboard engine into
// the chainguard commands.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"chainguard/internal/config"
	"chainguard/internal/tui"
)

// Version is the current version of chainguard (injected via ldflags at build time)
var Version = "dev"

var (
	// Global flags
	configPath string

	// Loaded config
	cfg *config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "chainguard",
	Short: "ChainGuard - simulated blockchain firewall dashboard",
	Long: `chainguard simulates a stream of network packets processed by a
"smart contract" firewall, shows them in a live dashboard and asks an AI
auditor to assess individual packets.

Examples:
  chainguard                              # Local terminal dashboard (same as 'chainguard tui')
  chainguard serve                        # Run the engine behind the HTTP API
  chainguard tui --server http://host:8080 # Attach the terminal dashboard to a server
  chainguard version                      # Print the version
`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	// When called without subcommand, run the tui command
	RunE: func(cmd *cobra.Command, args []string) error {
		return tuiCmd.RunE(cmd, args)
	},
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == versionCmd.Name() {
			return nil
		}
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		return nil
	},
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"Config file (default $CHAINGUARD_CONFIG_PATH or "+config.DefaultPath+")")

	rootCmd.AddCommand(tuiCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)

	tuiCmd.Flags().StringVar(&serverURL, "server", "", "Attach to a remote API (e.g. http://localhost:8080)")
	tuiCmd.Flags().DurationVar(&pollInterval, "poll", tui.DefaultPollInterval, "Refresh period when attached to a remote API")
	// The bare root command accepts the tui flags too.
	rootCmd.Flags().AddFlagSet(tuiCmd.Flags())
}
