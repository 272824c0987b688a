package dashboard

import (
	"chainguard/internal/analysis"
	"chainguard/internal/history"
	"chainguard/internal/rules"
	"chainguard/internal/traffic"
)

// WalletAddress is the display address shown while the wallet is connected.
const WalletAddress = "0x8F...3A21"

// Totals are running counters since the engine started.
type Totals struct {
	Synthesized   uint64 `json:"synthesized"`
	Allowed       uint64 `json:"allowed"`
	Blocked       uint64 `json:"blocked"`
	Suspicious    uint64 `json:"suspicious"`
	StaleAnalyses uint64 `json:"stale_analyses"`
}

// Threats is the number of records that were not allowed.
func (t Totals) Threats() uint64 {
	return t.Blocked + t.Suspicious
}

// Snapshot is a read-only copy of the engine state.
type Snapshot struct {
	Records           []traffic.Record `json:"records"`
	Buckets           []history.Bucket `json:"buckets"`
	Rules             []rules.Rule     `json:"rules"`
	Selected          *traffic.Record  `json:"selected,omitempty"`
	Analysis          *analysis.Result `json:"analysis,omitempty"`
	Pending           bool             `json:"pending"`
	BlockHeight       uint64           `json:"block_height"`
	WalletConnected   bool             `json:"wallet_connected"`
	WalletAddress     string           `json:"wallet_address,omitempty"`
	Totals            Totals           `json:"totals"`
	AnalysisAvailable bool             `json:"analysis_available"`
}

// ActiveRules counts the active rules in the snapshot.
func (s Snapshot) ActiveRules() int {
	n := 0
	for _, r := range s.Rules {
		if r.Active {
			n++
		}
	}
	return n
}

// IsSelected reports whether rec is the selected record.
func (s Snapshot) IsSelected(rec traffic.Record) bool {
	return s.Selected != nil && s.Selected.ID == rec.ID
}
