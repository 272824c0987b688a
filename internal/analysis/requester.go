package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/google/uuid"
	"google.golang.org/genai"

	"chainguard/internal/traffic"
)

// DefaultModel is the generation model used when none is configured.
const DefaultModel = "gemini-3-flash-preview"

// Outcome labels reported to the observer.
const (
	OutcomeUnconfigured = "unconfigured"
	OutcomeCached       = "cached"
	OutcomeSuccess      = "success"
	OutcomeFailure      = "failure"
)

// Request is a single structured generation call.
type Request struct {
	Model  string
	Prompt string
	Schema *genai.Schema
}

// Generator submits a prompt to a generation service and returns the raw
// response text.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// Config holds requester settings.
type Config struct {
	APIKey    string
	Model     string
	Timeout   time.Duration
	CacheSize int
}

// Requester builds prompts, calls the generator and normalizes the reply.
// It is safe for concurrent use.
type Requester struct {
	apiKey  string
	model   string
	timeout time.Duration
	gen     Generator
	cache   *lru.Cache[uuid.UUID, Result]
	logger  *slog.Logger
	observe func(outcome string, elapsed time.Duration)
}

// NewRequester creates a requester. gen may be nil when no credential is
// configured; Analyze then never reaches the network.
func NewRequester(cfg Config, gen Generator, logger *slog.Logger) (*Requester, error) {
	if logger == nil {
		logger = slog.Default()
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}

	r := &Requester{
		apiKey:  cfg.APIKey,
		model:   model,
		timeout: cfg.Timeout,
		gen:     gen,
		logger:  logger.With("component", "analysis"),
		observe: func(string, time.Duration) {},
	}

	if cfg.CacheSize > 0 {
		cache, err := lru.New[uuid.UUID, Result](cfg.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("failed to create analysis cache: %w", err)
		}
		r.cache = cache
	}

	if r.apiKey != "" && r.gen == nil {
		return nil, errors.New("analysis generator is required when an api key is set")
	}

	return r, nil
}

// WithObserver registers a callback invoked once per Analyze call.
func (r *Requester) WithObserver(fn func(outcome string, elapsed time.Duration)) *Requester {
	if fn != nil {
		r.observe = fn
	}
	return r
}

// Available reports whether a credential is configured.
func (r *Requester) Available() bool {
	return r.apiKey != ""
}

// Analyze assesses a record. It never fails: a missing credential or any
// transport or parse error yields a fixed fallback result.
func (r *Requester) Analyze(ctx context.Context, rec traffic.Record) Result {
	start := time.Now()

	if !r.Available() {
		r.observe(OutcomeUnconfigured, time.Since(start))
		return UnconfiguredResult()
	}

	if r.cache != nil {
		if res, ok := r.cache.Get(rec.ID); ok {
			r.observe(OutcomeCached, time.Since(start))
			return res
		}
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	text, err := r.gen.Generate(ctx, Request{
		Model:  r.model,
		Prompt: BuildPrompt(rec),
		Schema: ResponseSchema(),
	})
	if err != nil {
		r.logger.Error("analysis request failed", "record_id", rec.ID, "error", err)
		r.observe(OutcomeFailure, time.Since(start))
		return DegradedResult()
	}

	res, err := ParseResult(text)
	if err != nil {
		r.logger.Error("analysis response rejected", "record_id", rec.ID, "error", err)
		r.observe(OutcomeFailure, time.Since(start))
		return DegradedResult()
	}

	if r.cache != nil {
		r.cache.Add(rec.ID, res)
	}

	r.logger.Debug("analysis complete",
		"record_id", rec.ID,
		"risk_score", res.RiskScore,
		"threat_type", res.ThreatType,
	)
	r.observe(OutcomeSuccess, time.Since(start))
	return res
}

// BuildPrompt describes a record for the analyst model.
func BuildPrompt(rec traffic.Record) string {
	var b strings.Builder
	b.WriteString("You are an AI cybersecurity analyst embedded in a blockchain firewall.\n")
	b.WriteString("Assess the following network packet metadata for potential threats.\n\n")
	b.WriteString("Packet details:\n")
	fmt.Fprintf(&b, "- Source IP: %s\n", rec.SourceIP)
	fmt.Fprintf(&b, "- Destination IP: %s\n", rec.DestIP)
	fmt.Fprintf(&b, "- Protocol: %s\n", rec.Protocol)
	fmt.Fprintf(&b, "- Port: %d\n", rec.Port)
	fmt.Fprintf(&b, "- Size: %d bytes\n", rec.Size)
	fmt.Fprintf(&b, "- Status: %s\n", rec.Status)
	fmt.Fprintf(&b, "- Payload Hash: %s\n\n", rec.PayloadHash)
	b.WriteString("Give a risk score from 0 to 100, name the likely threat type ")
	b.WriteString("(for example DDoS, SQL Injection, Port Scanning, Benign), ")
	b.WriteString("write a brief technical analysis and recommend an action.")
	return b.String()
}

// ResponseSchema is the structured output the generator is asked for.
func ResponseSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"riskScore":      {Type: genai.TypeNumber},
			"analysis":       {Type: genai.TypeString},
			"recommendation": {Type: genai.TypeString},
			"threatType":     {Type: genai.TypeString},
		},
		Required: []string{"riskScore", "analysis", "recommendation", "threatType"},
	}
}

// wireResult mirrors the response schema. Pointers distinguish absent
// fields from zero values.
type wireResult struct {
	RiskScore      *float64 `json:"riskScore" validate:"required,min=0,max=100"`
	Analysis       *string  `json:"analysis" validate:"required"`
	Recommendation *string  `json:"recommendation" validate:"required"`
	ThreatType     string   `json:"threatType"`
}

var wireValidator = validator.New()

// ParseResult decodes a generator reply as the four-field result object.
// Unknown fields, missing required fields, trailing data and out-of-range
// scores are rejected.
func ParseResult(text string) (Result, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(strings.TrimSpace(text))))
	dec.DisallowUnknownFields()

	var w wireResult
	if err := dec.Decode(&w); err != nil {
		return Result{}, fmt.Errorf("failed to decode analysis: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return Result{}, errors.New("unexpected data after analysis object")
	}
	if err := wireValidator.Struct(&w); err != nil {
		return Result{}, fmt.Errorf("invalid analysis: %w", err)
	}

	return Result{
		RiskScore:      int(math.Round(*w.RiskScore)),
		Analysis:       *w.Analysis,
		Recommendation: *w.Recommendation,
		ThreatType:     w.ThreatType,
	}, nil
}
