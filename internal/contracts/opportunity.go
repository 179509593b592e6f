package contracts

import "time"

// Confidence is a bounded heuristic stand-in for probability, always capped
// strictly below 1.0. It is deliberately a distinct type from Probability:
// when a calibrated feed lands, every call site must acknowledge the swap
// instead of silently reinterpreting the same float.
type Confidence float64

// Bounded reports whether c lies in [0, cap].
func (c Confidence) Bounded(cap float64) bool {
	return c >= 0 && float64(c) <= cap
}

// Probability is a calibrated likelihood. Nothing in the pipeline produces
// one today; the type exists so the calibration swap is explicit.
type Probability float64

// ComponentScores holds the four factor scores, each in [0,100].
type ComponentScores struct {
	Momentum   float64 `json:"momentum"`
	Volatility float64 `json:"volatility"`
	Liquidity  float64 `json:"liquidity"`
	Stability  float64 `json:"stability"`
}

// CalibrationInfo records the shrink applied to an opportunity, if any.
type CalibrationInfo struct {
	Bucket string  `json:"bucket"`
	Shrink float64 `json:"shrink"`
}

// Opportunity is one ranked output unit. Immutable once created; a new
// cycle supersedes the whole list rather than mutating records.
// ⭐ SSOT: ranker output unit
type Opportunity struct {
	Ticker            string           `json:"ticker"`
	Horizon           Horizon          `json:"horizon"`
	Scores            ComponentScores  `json:"component_scores"`
	Composite         float64          `json:"composite_score"`
	Confidence        Confidence       `json:"confidence"`
	TargetATR         float64          `json:"target_atr"`
	StopATR           float64          `json:"stop_atr"`
	MarketStateAtRank MarketState      `json:"market_state_at_rank"`
	Calibration       *CalibrationInfo `json:"calibration,omitempty"`
	Explanation       []string         `json:"explanation"`
}

// OpportunityRank is one horizon's ordered ranking cycle output.
type OpportunityRank struct {
	Horizon         Horizon       `json:"horizon"`
	Opportunities   []Opportunity `json:"opportunities"`
	RankTime        time.Time     `json:"rank_time"`
	TotalCandidates int           `json:"total_candidates"`
	CycleID         string        `json:"cycle_id"`
	Outcome         CycleOutcome  `json:"outcome"`
}

// Top returns the first n opportunities (or fewer).
func (r *OpportunityRank) Top(n int) []Opportunity {
	if n > len(r.Opportunities) {
		n = len(r.Opportunities)
	}
	return r.Opportunities[:n]
}

// Contains reports whether ticker is in the ranked list.
func (r *OpportunityRank) Contains(ticker string) bool {
	for _, o := range r.Opportunities {
		if o.Ticker == ticker {
			return true
		}
	}
	return false
}

// CalibrationState is the external shrink feed document. Buckets are keyed
// by CalibrationBucketKey; factors multiply confidence down, never up, and
// the reader clamps them to at most 1.0.
type CalibrationState struct {
	Buckets     map[string]CalibrationBucket `json:"buckets"`
	GlobalStats CalibrationGlobals           `json:"global_stats"`
	UpdatedAt   time.Time                    `json:"updated_at"`
}

// CalibrationBucket is one (horizon, state, attention) cell of the feed.
type CalibrationBucket struct {
	ShrinkFactor float64 `json:"shrink_factor"`
	WinRate      float64 `json:"win_rate,omitempty"`
	TotalSignals int     `json:"total_signals,omitempty"`
}

// CalibrationGlobals is the cross-bucket fallback.
type CalibrationGlobals struct {
	GlobalShrink float64 `json:"global_shrink"`
}
