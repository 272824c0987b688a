package chain

import "testing"

func TestNewHeight(t *testing.T) {
	if got := NewHeight(0).Current(); got != GenesisHeight {
		t.Errorf("NewHeight(0).Current() = %d, want %d", got, GenesisHeight)
	}
	if got := NewHeight(7).Current(); got != 7 {
		t.Errorf("NewHeight(7).Current() = %d, want 7", got)
	}
}

func TestHeight_StrictlyIncreasing(t *testing.T) {
	h := NewHeight(0)
	prev := h.Current()

	for i := 0; i < 100000; i++ {
		next := h.Advance()
		if next != prev+1 {
			t.Fatalf("firing %d: height %d after %d, want +1", i, next, prev)
		}
		if h.Current() != next {
			t.Fatalf("Current() = %d, want %d", h.Current(), next)
		}
		prev = next
	}
}
