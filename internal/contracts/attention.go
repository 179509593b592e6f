package contracts

import "time"

// AttentionBucket classifies overall market stability.
type AttentionBucket string

const (
	BucketStable   AttentionBucket = "STABLE"   // stability score >= 70
	BucketUnstable AttentionBucket = "UNSTABLE" // 40..69
	BucketChaotic  AttentionBucket = "CHAOTIC"  // < 40
)

// RiskState is the coarse risk-appetite read.
type RiskState string

const (
	RiskOn      RiskState = "RISK_ON"
	RiskOff     RiskState = "RISK_OFF"
	RiskNeutral RiskState = "NEUTRAL"
)

// SectorReturn is one sector proxy's recent move, ranked by magnitude.
type SectorReturn struct {
	Symbol string  `json:"symbol"`
	Return float64 `json:"return"` // percent
	Rank   int     `json:"rank"`   // 1-based
}

// AttentionComponents is the stability score breakdown.
type AttentionComponents struct {
	Leadership  float64 `json:"leadership_score"`
	Dispersion  float64 `json:"dispersion_score"`
	Volatility  float64 `json:"volatility_score"`
	Correlation float64 `json:"correlation_score"`
}

// AttentionState measures how stable the market's attention is. The ranker
// reads it to gate long horizons in unstable tape and to pick calibration
// buckets.
type AttentionState struct {
	StabilityScore    float64             `json:"stability_score"` // 0-100
	Bucket            AttentionBucket     `json:"bucket"`
	RiskState         RiskState           `json:"risk_state"`
	DominantSectors   []SectorReturn      `json:"dominant_sectors"`
	Concentration     float64             `json:"concentration"` // 0 broad .. 100 concentrated
	Components        AttentionComponents `json:"components"`
	CorrelationRegime string              `json:"correlation_regime"`
	Degraded          bool                `json:"degraded,omitempty"`
	DegradedReason    string              `json:"degraded_reason,omitempty"`
	Timestamp         time.Time           `json:"timestamp"`
}

// AllowsHorizon applies the stability gate: chaotic tape ranks only the
// shortest horizon, unstable tape drops the weekly horizon, stable tape
// ranks everything.
func (a AttentionState) AllowsHorizon(h Horizon) bool {
	switch a.Bucket {
	case BucketChaotic:
		return h == Horizon30
	case BucketUnstable:
		return h != HorizonWeek
	default:
		return true
	}
}

// CalibrationBucketKey builds the shrink-map key for a horizon under a
// permission state and attention bucket.
func CalibrationBucketKey(h Horizon, s State, b AttentionBucket) string {
	return string(h) + "_" + string(s) + "_" + string(b)
}

// FallbackAttention is the neutral stand-in used when the attention state
// is missing from the bus or cannot be computed: middling stability, no
// risk read, degraded flag set.
func FallbackAttention(reason string, at time.Time) AttentionState {
	return AttentionState{
		StabilityScore:    50,
		Bucket:            BucketUnstable,
		RiskState:         RiskNeutral,
		CorrelationRegime: "UNKNOWN",
		Degraded:          true,
		DegradedReason:    reason,
		Timestamp:         at,
	}
}
