// Package dashboard owns the simulation state and applies every mutation on
// a single goroutine.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"chainguard/internal/analysis"
	"chainguard/internal/chain"
	"chainguard/internal/history"
	"chainguard/internal/rules"
	"chainguard/internal/traffic"
)

var (
	// ErrRecordNotFound is returned when an intent names a record that is
	// no longer, or never was, in the history.
	ErrRecordNotFound = errors.New("record not found")
	// ErrStopped is returned by intents issued after Run has returned.
	ErrStopped = errors.New("dashboard engine stopped")
	// ErrAlreadyRunning is returned when Run is called twice.
	ErrAlreadyRunning = errors.New("dashboard engine already running")
)

// Default tick intervals.
const (
	DefaultSynthesisInterval = 2000 * time.Millisecond
	DefaultBlockInterval     = 12000 * time.Millisecond
)

// Analyzer assesses a single record. Implementations must not fail; they
// return a fallback result instead.
type Analyzer interface {
	Analyze(ctx context.Context, rec traffic.Record) analysis.Result
	Available() bool
}

// Sink receives every synthesized record. Offer must not block.
type Sink interface {
	Offer(rec traffic.Record)
}

// Recorder observes engine activity.
type Recorder interface {
	ObserveRecord(status string)
	SetBlockHeight(h uint64)
	IncrementStale()
	IncrementRuleToggles()
}

type noopRecorder struct{}

func (noopRecorder) ObserveRecord(string)  {}
func (noopRecorder) SetBlockHeight(uint64) {}
func (noopRecorder) IncrementStale()       {}
func (noopRecorder) IncrementRuleToggles() {}

// Config holds engine settings.
type Config struct {
	SynthesisInterval time.Duration
	BlockInterval     time.Duration
	RecordLimit       int
	BucketLimit       int
	Synthesizer       traffic.SynthesizerConfig
	StartHeight       uint64
}

// DefaultConfig returns the stock intervals and limits.
func DefaultConfig() Config {
	return Config{
		SynthesisInterval: DefaultSynthesisInterval,
		BlockInterval:     DefaultBlockInterval,
		RecordLimit:       history.DefaultRecordLimit,
		BucketLimit:       history.DefaultBucketLimit,
		StartHeight:       chain.GenesisHeight,
	}
}

// Option customizes an Engine.
type Option func(*Engine)

// WithSynthesizer replaces the record synthesizer.
func WithSynthesizer(s *traffic.Synthesizer) Option {
	return func(e *Engine) { e.synth = s }
}

// WithRules replaces the seeded rule registry.
func WithRules(r *rules.Registry) Option {
	return func(e *Engine) { e.rules = r }
}

// WithAnalyzer sets the analysis backend.
func WithAnalyzer(a Analyzer) Option {
	return func(e *Engine) { e.analyzer = a }
}

// WithSink adds a record sink.
func WithSink(s Sink) Option {
	return func(e *Engine) {
		if s != nil {
			e.sinks = append(e.sinks, s)
		}
	}
}

// WithRecorder sets the activity recorder.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) {
		if r != nil {
			e.recorder = r
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

type op func()

// Engine is the single owner of the dashboard state. All fields below the
// channel block are touched only by the Run goroutine.
type Engine struct {
	cfg     Config
	ops     chan op
	stopped chan struct{}
	running sync.Once

	subMu sync.Mutex
	subs  map[int]chan struct{}
	subID int

	analyses sync.WaitGroup
	runCtx   context.Context

	synth    *traffic.Synthesizer
	store    *history.Store
	rules    *rules.Registry
	height   *chain.Height
	analyzer Analyzer
	sinks    []Sink
	recorder Recorder
	logger   *slog.Logger

	selected *traffic.Record
	result   *analysis.Result
	inflight map[uuid.UUID]struct{}
	wallet   bool
	totals   Totals
}

// New creates an engine. Run must be started before intents are issued.
func New(cfg Config, opts ...Option) (*Engine, error) {
	def := DefaultConfig()
	if cfg.SynthesisInterval <= 0 {
		cfg.SynthesisInterval = def.SynthesisInterval
	}
	if cfg.BlockInterval <= 0 {
		cfg.BlockInterval = def.BlockInterval
	}

	e := &Engine{
		cfg:      cfg,
		ops:      make(chan op),
		stopped:  make(chan struct{}),
		subs:     make(map[int]chan struct{}),
		store:    history.NewStore(cfg.RecordLimit, cfg.BucketLimit),
		height:   chain.NewHeight(cfg.StartHeight),
		recorder: noopRecorder{},
		logger:   slog.Default(),
		inflight: make(map[uuid.UUID]struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("component", "dashboard")

	if e.synth == nil {
		e.synth = traffic.NewSynthesizer(cfg.Synthesizer)
	}
	if e.rules == nil {
		reg, err := rules.NewRegistry(rules.DefaultRules())
		if err != nil {
			return nil, fmt.Errorf("failed to seed rules: %w", err)
		}
		e.rules = reg
	}
	if e.analyzer == nil {
		req, err := analysis.NewRequester(analysis.Config{}, nil, e.logger)
		if err != nil {
			return nil, err
		}
		e.analyzer = req
	}
	e.recorder.SetBlockHeight(e.height.Current())

	return e, nil
}

// Run drives the tickers and applies operations until ctx is done. Outstanding
// analysis calls are cancelled and awaited before it returns.
func (e *Engine) Run(ctx context.Context) error {
	err := ErrAlreadyRunning
	e.running.Do(func() { err = nil })
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	e.runCtx = ctx
	defer func() {
		cancel()
		e.analyses.Wait()
		close(e.stopped)
	}()

	synthTicker := time.NewTicker(e.cfg.SynthesisInterval)
	defer synthTicker.Stop()
	blockTicker := time.NewTicker(e.cfg.BlockInterval)
	defer blockTicker.Stop()

	e.logger.Info("dashboard engine started",
		"synthesis_interval", e.cfg.SynthesisInterval,
		"block_interval", e.cfg.BlockInterval,
		"block_height", e.height.Current(),
		"analysis_available", e.analyzer.Available(),
	)

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("dashboard engine stopped", "synthesized", e.totals.Synthesized)
			return nil
		case <-synthTicker.C:
			e.synthesize()
		case <-blockTicker.C:
			e.advanceBlock()
		case fn := <-e.ops:
			fn()
		}
	}
}

// Done is closed once Run has returned.
func (e *Engine) Done() <-chan struct{} {
	return e.stopped
}

// do executes fn on the loop goroutine and waits for it to finish.
func (e *Engine) do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	wrapped := func() {
		defer close(done)
		fn()
	}

	select {
	case e.ops <- wrapped:
	case <-e.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	<-done
	return nil
}

// post queues fn from a background goroutine. It gives up once Run is
// shutting down.
func (e *Engine) post(fn func()) {
	select {
	case e.ops <- fn:
	case <-e.runCtx.Done():
	}
}

// Synthesize produces one record immediately, as a synthesis tick would.
func (e *Engine) Synthesize(ctx context.Context) error {
	return e.do(ctx, e.synthesize)
}

// AdvanceBlock increments the block height immediately, as a block tick would.
func (e *Engine) AdvanceBlock(ctx context.Context) error {
	return e.do(ctx, e.advanceBlock)
}

// Snapshot returns a copy of the current state.
func (e *Engine) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := e.do(ctx, func() { snap = e.snapshot() })
	return snap, err
}

// Select marks a record as selected. Selecting a different record clears
// the displayed analysis.
func (e *Engine) Select(ctx context.Context, id uuid.UUID) error {
	var opErr error
	err := e.do(ctx, func() {
		rec, ok := e.lookup(id)
		if !ok {
			opErr = fmt.Errorf("%w: %s", ErrRecordNotFound, id)
			return
		}
		e.selectRecord(rec)
		e.notify()
	})
	if err != nil {
		return err
	}
	return opErr
}

// Analyze selects a record and requests its analysis. A request for a
// record that already has one in flight is ignored.
func (e *Engine) Analyze(ctx context.Context, id uuid.UUID) error {
	var opErr error
	err := e.do(ctx, func() {
		rec, ok := e.lookup(id)
		if !ok {
			opErr = fmt.Errorf("%w: %s", ErrRecordNotFound, id)
			return
		}
		e.selectRecord(rec)
		if _, busy := e.inflight[id]; busy {
			e.logger.Debug("analysis already in flight", "record_id", id)
			e.notify()
			return
		}
		e.result = nil
		e.inflight[id] = struct{}{}
		e.analyses.Add(1)
		go e.runAnalysis(rec)
		e.notify()
	})
	if err != nil {
		return err
	}
	return opErr
}

// ToggleRule flips a rule's active flag and returns the updated rule.
func (e *Engine) ToggleRule(ctx context.Context, id string) (rules.Rule, error) {
	var (
		rule  rules.Rule
		opErr error
	)
	err := e.do(ctx, func() {
		rule, opErr = e.rules.Toggle(id)
		if opErr != nil {
			return
		}
		e.recorder.IncrementRuleToggles()
		e.logger.Info("rule toggled", "rule_id", rule.ID, "active", rule.Active)
		e.notify()
	})
	if err != nil {
		return rules.Rule{}, err
	}
	return rule, opErr
}

// ToggleWallet flips the cosmetic wallet connection and returns the new value.
func (e *Engine) ToggleWallet(ctx context.Context) (bool, error) {
	var connected bool
	err := e.do(ctx, func() {
		e.wallet = !e.wallet
		connected = e.wallet
		e.notify()
	})
	return connected, err
}

// Subscribe returns a channel that receives a value after each state change
// and a function that cancels the subscription. Notifications coalesce when
// the reader falls behind.
func (e *Engine) Subscribe() (<-chan struct{}, func()) {
	e.subMu.Lock()
	defer e.subMu.Unlock()

	id := e.subID
	e.subID++
	ch := make(chan struct{}, 1)
	e.subs[id] = ch

	return ch, func() {
		e.subMu.Lock()
		defer e.subMu.Unlock()
		delete(e.subs, id)
	}
}

func (e *Engine) notify() {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	for _, ch := range e.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (e *Engine) synthesize() {
	rec := e.synth.Next(e.height.Current())
	e.store.Append(rec)

	allowed, blocked := 0, 0
	e.totals.Synthesized++
	switch rec.Status {
	case traffic.StatusBlocked:
		blocked = 1
		e.totals.Blocked++
	case traffic.StatusSuspicious:
		blocked = 1
		e.totals.Suspicious++
	default:
		allowed = 1
		e.totals.Allowed++
	}
	e.store.AppendBucket(allowed, blocked, rec.Timestamp.Format("15:04:05"))

	e.recorder.ObserveRecord(string(rec.Status))
	for _, s := range e.sinks {
		s.Offer(rec)
	}
	e.logger.Debug("record synthesized",
		"record_id", rec.ID,
		"source_ip", rec.SourceIP,
		"status", rec.Status,
	)
	e.notify()
}

func (e *Engine) advanceBlock() {
	h := e.height.Advance()
	e.recorder.SetBlockHeight(h)
	e.logger.Debug("block advanced", "block_height", h)
	e.notify()
}

// lookup finds a record in history, falling back to the selected copy so
// an evicted selection can still be analyzed.
func (e *Engine) lookup(id uuid.UUID) (traffic.Record, bool) {
	if rec, ok := e.store.Find(id); ok {
		return rec, true
	}
	if e.selected != nil && e.selected.ID == id {
		return *e.selected, true
	}
	return traffic.Record{}, false
}

func (e *Engine) selectRecord(rec traffic.Record) {
	if e.selected != nil && e.selected.ID == rec.ID {
		return
	}
	e.selected = &rec
	e.result = nil
}

func (e *Engine) runAnalysis(rec traffic.Record) {
	defer e.analyses.Done()
	res := e.analyzer.Analyze(e.runCtx, rec)
	e.post(func() { e.completeAnalysis(rec.ID, res) })
}

func (e *Engine) completeAnalysis(id uuid.UUID, res analysis.Result) {
	delete(e.inflight, id)
	if e.selected == nil || e.selected.ID != id {
		e.totals.StaleAnalyses++
		e.recorder.IncrementStale()
		e.logger.Debug("discarding stale analysis", "record_id", id)
		return
	}
	e.result = &res
	e.logger.Info("analysis complete",
		"record_id", id,
		"risk_score", res.RiskScore,
		"threat_type", res.ThreatType,
	)
	e.notify()
}

func (e *Engine) snapshot() Snapshot {
	snap := Snapshot{
		Records:           e.store.Records(),
		Buckets:           e.store.Buckets(),
		Rules:             e.rules.List(),
		BlockHeight:       e.height.Current(),
		WalletConnected:   e.wallet,
		Totals:            e.totals,
		AnalysisAvailable: e.analyzer.Available(),
	}
	if e.wallet {
		snap.WalletAddress = WalletAddress
	}
	if e.selected != nil {
		sel := *e.selected
		snap.Selected = &sel
		_, snap.Pending = e.inflight[sel.ID]
	}
	if e.result != nil {
		res := *e.result
		snap.Analysis = &res
	}
	return snap
}
