package bus

import (
	"time"

	"github.com/zerotrading/zero/internal/contracts"
)

// Key ownership. Exactly one service writes each key; everyone else reads.
// Pub/sub channels are notification-only: the keyed value is the source of
// truth, a missed message costs at most one cycle of staleness.
//
//	key:market_state               regime
//	key:event_risk                 regime
//	chan:market_state_changed      regime
//	key:active_candidates:{h}      scanner      TTL 300s
//	chan:active_candidates         scanner
//	key:last_scan_time             scanner
//	key:scan_universe              universe     TTL 86400s
//	key:opportunity_rank:{h}       ranker       TTL 60s
//	chan:opportunity_rank          ranker
//	key:attention_state            attention
//	chan:attention_state_changed   attention
//	key:calibration_state          external calibration feed (read-only here)
//	key:health:{service}           each service writes its own entry only
const (
	KeyMarketState      = "key:market_state"
	KeyEventRisk        = "key:event_risk"
	KeyLastScanTime     = "key:last_scan_time"
	KeyScanUniverse     = "key:scan_universe"
	KeyAttentionState   = "key:attention_state"
	KeyCalibrationState = "key:calibration_state"

	ChanMarketStateChanged = "chan:market_state_changed"
	ChanActiveCandidates   = "chan:active_candidates"
	ChanOpportunityRank    = "chan:opportunity_rank"
	ChanAttentionChanged   = "chan:attention_state_changed"
)

// TTLs. Candidate and rank keys expire so a dead producer cannot leave a
// stale green light behind; state keys persist and carry their own
// timestamps instead.
const (
	CandidatesTTL = 300 * time.Second
	UniverseTTL   = 86400 * time.Second
	RankTTL       = 60 * time.Second
	NoTTL         = time.Duration(0)
)

// CandidatesKey returns the per-horizon candidate list key.
func CandidatesKey(h contracts.Horizon) string {
	return "key:active_candidates:" + string(h)
}

// RankKey returns the per-horizon opportunity rank key.
func RankKey(h contracts.Horizon) string {
	return "key:opportunity_rank:" + string(h)
}

// HealthKey returns the per-service health key.
func HealthKey(service string) string {
	return "key:health:" + service
}

// Services lists every health-reporting service, in pipeline order. The
// aggregate health endpoint and the status CLI treat a missing entry as
// a degraded pipeline.
var Services = []string{"regime", "scanner", "ranker", "attention", "ingest", "universe"}
