package traffic

import (
	"fmt"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
)

// Draw thresholds. A uniform draw above BlockedThreshold blocks the record
// (p=0.2); a second draw above SuspiciousThreshold flags an unblocked one
// (p=0.1).
const (
	BlockedThreshold    = 0.8
	SuspiciousThreshold = 0.9
)

// DefaultDestination is the simulated protected host.
const DefaultDestination = "10.0.0.1"

// DefaultSources is the candidate set source addresses are drawn from.
var DefaultSources = []string{
	"192.168.1.105",
	"10.0.0.55",
	"172.16.0.23",
	"45.22.19.112",
	"89.102.44.11",
	"203.0.113.5",
}

// Source supplies the random draws the synthesizer consumes.
// *gofakeit.Faker satisfies it.
type Source interface {
	Float64Range(min, max float64) float64
	IntRange(min, max int) int
	Uint64() uint64
}

// SynthesizerConfig holds synthesizer settings.
type SynthesizerConfig struct {
	Sources     []string
	Destination string
	// Seed makes the draw sequence reproducible; 0 picks a random seed.
	Seed uint64
}

// Synthesizer produces simulated records. It is not safe for concurrent
// use; the dashboard loop is its only caller.
type Synthesizer struct {
	rand        Source
	sources     []string
	destination string
	now         func() time.Time
}

// NewSynthesizer creates a synthesizer backed by a seeded gofakeit faker.
func NewSynthesizer(cfg SynthesizerConfig) *Synthesizer {
	return NewSynthesizerWithSource(cfg, gofakeit.New(cfg.Seed))
}

// NewSynthesizerWithSource creates a synthesizer drawing from src.
func NewSynthesizerWithSource(cfg SynthesizerConfig, src Source) *Synthesizer {
	sources := cfg.Sources
	if len(sources) == 0 {
		sources = DefaultSources
	}
	dest := cfg.Destination
	if dest == "" {
		dest = DefaultDestination
	}

	return &Synthesizer{
		rand:        src,
		sources:     append([]string(nil), sources...),
		destination: dest,
		now:         time.Now,
	}
}

// WithClock overrides the timestamp source.
func (s *Synthesizer) WithClock(now func() time.Time) *Synthesizer {
	s.now = now
	return s
}

// Next produces one record stamped with the given block height.
//
// Draw order: block verdict, suspicious verdict (only if not blocked),
// source index, protocol, port, size, then the cosmetic hex fields.
func (s *Synthesizer) Next(height uint64) Record {
	status := StatusAllowed
	if s.unit() > BlockedThreshold {
		status = StatusBlocked
	} else if s.unit() > SuspiciousThreshold {
		status = StatusSuspicious
	}

	source := s.sources[s.rand.IntRange(0, len(s.sources)-1)]

	protocol := ProtocolUDP
	if s.unit() < 0.5 {
		protocol = ProtocolTCP
	}

	block := height
	return Record{
		ID:          uuid.New(),
		Timestamp:   s.now(),
		SourceIP:    source,
		DestIP:      s.destination,
		Protocol:    protocol,
		Port:        s.rand.IntRange(0, MaxPort),
		Size:        s.rand.IntRange(0, MaxSize),
		Status:      status,
		PayloadHash: "0x" + s.hex(40),
		Signature:   "0x" + s.hex(64),
		BlockNumber: &block,
	}
}

// unit returns a uniform draw in [0, 1).
func (s *Synthesizer) unit() float64 {
	return s.rand.Float64Range(0, 1)
}

// hex returns n random lowercase hex digits.
func (s *Synthesizer) hex(n int) string {
	var b strings.Builder
	b.Grow(n + 16)
	for b.Len() < n {
		fmt.Fprintf(&b, "%016x", s.rand.Uint64())
	}
	return b.String()[:n]
}
