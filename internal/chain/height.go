// Package chain simulates block production for stamping records.
package chain

// GenesisHeight is the block height a fresh session starts from.
const GenesisHeight uint64 = 18244921

// Height is a monotonic simulated block counter. The zero value starts at
// zero; use NewHeight for the session default.
type Height struct {
	value uint64
}

// NewHeight creates a counter starting at start. A zero start uses
// GenesisHeight.
func NewHeight(start uint64) *Height {
	if start == 0 {
		start = GenesisHeight
	}
	return &Height{value: start}
}

// Current returns the current block height.
func (h *Height) Current() uint64 {
	return h.value
}

// Advance produces the next block and returns its height.
func (h *Height) Advance() uint64 {
	h.value++
	return h.value
}
