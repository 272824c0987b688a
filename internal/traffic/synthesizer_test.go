package traffic

import (
	"strings"
	"testing"
)

// scriptedSource replays fixed float draws and returns the low bound for
// integer ranges unless told otherwise.
type scriptedSource struct {
	floats []float64
	pos    int
	ints   []int
	ipos   int
}

func (s *scriptedSource) Float64Range(min, max float64) float64 {
	f := s.floats[s.pos%len(s.floats)]
	s.pos++
	return f
}

func (s *scriptedSource) IntRange(min, max int) int {
	if len(s.ints) == 0 {
		return min
	}
	v := s.ints[s.ipos%len(s.ints)]
	s.ipos++
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func (s *scriptedSource) Uint64() uint64 { return 0xdeadbeefcafef00d }

func TestSynthesizer_Bounds(t *testing.T) {
	s := NewSynthesizer(SynthesizerConfig{Seed: 42})

	for i := 0; i < 5000; i++ {
		r := s.Next(100)
		if r.Port < 0 || r.Port > MaxPort {
			t.Fatalf("port %d out of range", r.Port)
		}
		if r.Size < 0 || r.Size > MaxSize {
			t.Fatalf("size %d out of range", r.Size)
		}
		if !r.Status.IsValid() {
			t.Fatalf("invalid status %q", r.Status)
		}
		if r.Protocol != ProtocolTCP && r.Protocol != ProtocolUDP {
			t.Fatalf("unexpected protocol %q", r.Protocol)
		}
		if r.DestIP != DefaultDestination {
			t.Fatalf("DestIP = %s, want %s", r.DestIP, DefaultDestination)
		}
		if err := r.Validate(); err != nil {
			t.Fatalf("Validate() error = %v", err)
		}
	}
}

func TestSynthesizer_StatusDraws(t *testing.T) {
	tests := []struct {
		name   string
		floats []float64
		want   Status
	}{
		{"blocked skips suspicious draw", []float64{0.95, 0.99, 0.1}, StatusBlocked},
		{"suspicious when not blocked", []float64{0.5, 0.95, 0.1}, StatusSuspicious},
		{"allowed otherwise", []float64{0.5, 0.5, 0.1}, StatusAllowed},
		{"threshold is exclusive", []float64{0.8, 0.9, 0.1}, StatusAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &scriptedSource{floats: tt.floats}
			r := NewSynthesizerWithSource(SynthesizerConfig{}, src).Next(1)
			if r.Status != tt.want {
				t.Errorf("Status = %s, want %s", r.Status, tt.want)
			}
		})
	}
}

func TestSynthesizer_BlockedNeverSuspicious(t *testing.T) {
	s := NewSynthesizer(SynthesizerConfig{Seed: 7})
	counts := map[Status]int{}
	for i := 0; i < 20000; i++ {
		counts[s.Next(1).Status]++
	}

	// Loose bounds around p=0.2 blocked and p=0.08 suspicious.
	if b := counts[StatusBlocked]; b < 3400 || b > 4600 {
		t.Errorf("blocked count = %d, want about 4000", b)
	}
	if s := counts[StatusSuspicious]; s < 1200 || s > 2000 {
		t.Errorf("suspicious count = %d, want about 1600", s)
	}
}

func TestSynthesizer_Fields(t *testing.T) {
	src := &scriptedSource{floats: []float64{0.1, 0.1, 0.2}, ints: []int{3, 23, 512}}
	r := NewSynthesizerWithSource(SynthesizerConfig{}, src).Next(18244921)

	if r.SourceIP != DefaultSources[3] {
		t.Errorf("SourceIP = %s, want %s", r.SourceIP, DefaultSources[3])
	}
	if r.Protocol != ProtocolTCP {
		t.Errorf("Protocol = %s, want TCP", r.Protocol)
	}
	if r.Port != 23 || r.Size != 512 {
		t.Errorf("Port/Size = %d/%d, want 23/512", r.Port, r.Size)
	}
	if r.BlockNumber == nil || *r.BlockNumber != 18244921 {
		t.Errorf("BlockNumber = %v, want 18244921", r.BlockNumber)
	}
	if len(r.PayloadHash) != 42 || !strings.HasPrefix(r.PayloadHash, "0x") {
		t.Errorf("PayloadHash = %q, want 0x + 40 hex", r.PayloadHash)
	}
	if len(r.Signature) != 66 {
		t.Errorf("Signature length = %d, want 66", len(r.Signature))
	}
}

func TestSynthesizer_SeedIsReproducible(t *testing.T) {
	a := NewSynthesizer(SynthesizerConfig{Seed: 99})
	b := NewSynthesizer(SynthesizerConfig{Seed: 99})

	for i := 0; i < 100; i++ {
		ra, rb := a.Next(1), b.Next(1)
		if ra.Status != rb.Status || ra.Port != rb.Port || ra.SourceIP != rb.SourceIP {
			t.Fatalf("record %d differs between equally seeded synthesizers", i)
		}
		if ra.ID == rb.ID {
			t.Fatalf("record %d shares an id", i)
		}
	}
}

func TestSynthesizer_CustomSources(t *testing.T) {
	s := NewSynthesizer(SynthesizerConfig{Sources: []string{"1.2.3.4"}, Destination: "10.9.9.9", Seed: 1})
	r := s.Next(1)
	if r.SourceIP != "1.2.3.4" || r.DestIP != "10.9.9.9" {
		t.Errorf("got %s -> %s", r.SourceIP, r.DestIP)
	}
}
