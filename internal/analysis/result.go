// Package analysis turns a traffic record into an AI threat assessment.
package analysis

// Result is the normalized outcome of one analysis request.
type Result struct {
	RiskScore      int    `json:"risk_score"`
	Analysis       string `json:"analysis"`
	Recommendation string `json:"recommendation"`
	ThreatType     string `json:"threat_type,omitempty"`
}

// Level is a coarse risk band used for display.
type Level string

const (
	LevelLow    Level = "LOW"
	LevelMedium Level = "MEDIUM"
	LevelHigh   Level = "HIGH"
)

// Level bands the risk score: above 70 is high, above 30 medium.
func (r Result) Level() Level {
	switch {
	case r.RiskScore > 70:
		return LevelHigh
	case r.RiskScore > 30:
		return LevelMedium
	default:
		return LevelLow
	}
}

// BanRecommended reports whether the dashboard should offer the
// contract ban action for this result.
func (r Result) BanRecommended() bool {
	return r.RiskScore > 50
}

// UnconfiguredResult is returned when no API credential is set.
func UnconfiguredResult() Result {
	return Result{
		RiskScore:      0,
		Analysis:       "API Key missing. Cannot perform AI audit.",
		Recommendation: "Please configure your environment variables.",
	}
}

// DegradedResult is returned when the generation call or its parsing fails.
func DegradedResult() Result {
	return Result{
		RiskScore:      50,
		Analysis:       "AI Analysis unavailable due to an error.",
		Recommendation: "Manual inspection required.",
		ThreatType:     "Unknown",
	}
}
