package cli

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"chainguard/internal/config"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewApp_Defaults(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := newApp(ctx, config.DefaultConfig(), quietLogger())
	if err != nil {
		t.Fatalf("newApp() error = %v", err)
	}
	defer a.close()

	if a.engine == nil {
		t.Fatal("engine not built")
	}
	if a.feed != nil {
		t.Error("feed should be nil when disabled")
	}

	families, err := a.registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, want := range []string{"chainguard_block_height", "go_goroutines"} {
		if !names[want] {
			t.Errorf("metric %s not registered", want)
		}
	}
}

func TestNewApp_EngineRuns(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Simulation.SynthesisInterval = 5 * time.Millisecond
	cfg.Simulation.Seed = 3

	ctx, cancel := context.WithCancel(context.Background())
	a, err := newApp(ctx, cfg, quietLogger())
	if err != nil {
		t.Fatalf("newApp() error = %v", err)
	}
	defer a.close()

	go a.engine.Run(ctx)
	defer func() {
		cancel()
		<-a.engine.Done()
	}()

	deadline := time.Now().Add(2 * time.Second)
	for {
		snap, err := a.engine.Snapshot(context.Background())
		if err != nil {
			t.Fatalf("Snapshot() error = %v", err)
		}
		if len(snap.Records) > 0 {
			if snap.AnalysisAvailable {
				t.Error("analysis should be unavailable without an api key")
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("no records synthesized")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestNewApp_FeedEnabled(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Feed.Enabled = true
	cfg.Feed.Brokers = []string{"127.0.0.1:1"}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := newApp(ctx, cfg, quietLogger())
	if err != nil {
		t.Fatalf("newApp() error = %v", err)
	}
	if a.feed == nil {
		t.Fatal("feed should be built when enabled")
	}
	a.close()
	a.close()
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version"})
	defer rootCmd.SetArgs(nil)

	if err := Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !strings.HasPrefix(out.String(), "chainguard "+Version) {
		t.Errorf("output = %q", out.String())
	}
}

func TestMissingConfigFails(t *testing.T) {
	rootCmd.SetArgs([]string{"serve", "--config", filepath.Join(t.TempDir(), "absent.yaml")})
	defer func() {
		rootCmd.SetArgs(nil)
		configPath = ""
	}()

	err := Execute()
	if err == nil || !strings.Contains(err.Error(), "failed to load config") {
		t.Errorf("Execute() error = %v, want config load failure", err)
	}
}

func TestCommandsRegistered(t *testing.T) {
	want := map[string]bool{"tui": false, "serve": false, "version": false}
	for _, c := range rootCmd.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("subcommand %s not registered", name)
		}
	}
	if rootCmd.Flags().Lookup("server") == nil {
		t.Error("root command should accept the tui flags")
	}
}
