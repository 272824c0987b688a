package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"chainguard/internal/analysis"
	"chainguard/internal/config"
	"chainguard/internal/dashboard"
	"chainguard/internal/feed"
	"chainguard/internal/logging"
	"chainguard/internal/metrics"
	"chainguard/internal/traffic"
)

// app is the assembled runtime shared by the serve and tui commands.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	engine   *dashboard.Engine
	feed     *feed.Publisher
}

// newApp builds the engine and its collaborators from cfg. The feed, when
// enabled, is started on ctx.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	var gen analysis.Generator
	if cfg.Analysis.APIKey != "" {
		g, err := analysis.NewGeminiGenerator(ctx, cfg.Analysis.APIKey, cfg.Analysis.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to create analysis client: %w", err)
		}
		gen = g
		logger.Info("analysis configured",
			"model", cfg.Analysis.Model,
			"api_key", logging.MaskAPIKey(cfg.Analysis.APIKey),
		)
	} else {
		logger.Warn("no analysis api key configured, AI audit disabled")
	}

	requester, err := analysis.NewRequester(analysis.Config{
		APIKey:    cfg.Analysis.APIKey,
		Model:     cfg.Analysis.Model,
		Timeout:   cfg.Analysis.Timeout,
		CacheSize: cfg.Analysis.CacheSize,
	}, gen, logger)
	if err != nil {
		return nil, err
	}
	requester.WithObserver(m.ObserveAnalysis)

	a := &app{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		metrics:  m,
	}

	opts := []dashboard.Option{
		dashboard.WithAnalyzer(requester),
		dashboard.WithRecorder(m),
		dashboard.WithLogger(logger),
	}

	if cfg.Feed.Enabled {
		pub, err := feed.NewPublisher(feed.Config{
			Brokers:      cfg.Feed.Brokers,
			Topic:        cfg.Feed.Topic,
			BufferSize:   cfg.Feed.BufferSize,
			BatchSize:    cfg.Feed.BatchSize,
			BatchTimeout: cfg.Feed.BatchTimeout,
			WriteTimeout: cfg.Feed.WriteTimeout,
			Compression:  cfg.Feed.Compression,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create record feed: %w", err)
		}
		pub.WithCounters(m)
		if err := pub.Start(ctx); err != nil {
			return nil, err
		}
		a.feed = pub
		opts = append(opts, dashboard.WithSink(pub))
	}

	sim := cfg.Simulation
	engine, err := dashboard.New(dashboard.Config{
		SynthesisInterval: sim.SynthesisInterval,
		BlockInterval:     sim.BlockInterval,
		RecordLimit:       sim.RecordLimit,
		BucketLimit:       sim.BucketLimit,
		StartHeight:       sim.StartHeight,
		Synthesizer: traffic.SynthesizerConfig{
			Sources:     sim.Sources,
			Destination: sim.Destination,
			Seed:        sim.Seed,
		},
	}, opts...)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to create dashboard engine: %w", err)
	}
	a.engine = engine

	return a, nil
}

// close releases the feed. The engine stops with its Run context.
func (a *app) close() {
	if a.feed == nil {
		return
	}
	if err := a.feed.Close(); err != nil {
		a.logger.Error("failed to close record feed", "error", err)
	}
}
