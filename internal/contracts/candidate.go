package contracts

import "time"

// Candidate is one ticker that cleared every scanner filter for a horizon.
// It deliberately carries no score or probability: ranking is strictly a
// downstream concern.
// ⭐ SSOT: scanner -> ranker handoff unit
type Candidate struct {
	Ticker      string   `json:"ticker"`
	Horizon     Horizon  `json:"horizon"`
	PassReasons []string `json:"pass_reasons"`
	FailReasons []string `json:"fail_reasons,omitempty"`
}

// FilterStats counts scan outcomes for one horizon's cycle.
type FilterStats struct {
	Evaluated int `json:"evaluated"`
	Passed    int `json:"passed"`
	Failed    int `json:"failed"`
	Errored   int `json:"errored"`
}

// CandidateList is one horizon's scan output. The whole list is replaced
// each cycle and its bus copy is TTL-bounded; it must not be trusted beyond
// one cycle.
type CandidateList struct {
	Horizon    Horizon           `json:"horizon"`
	Candidates []Candidate       `json:"candidates"`
	Excluded   map[string]string `json:"excluded,omitempty"` // ticker -> first failing reason
	ScanTime   time.Time         `json:"scan_time"`
	CycleID    string            `json:"cycle_id"`
	Outcome    CycleOutcome      `json:"outcome"`
	Stats      FilterStats       `json:"filter_stats"`
}

// Tickers returns the candidate symbols in list order.
func (cl *CandidateList) Tickers() []string {
	out := make([]string, 0, len(cl.Candidates))
	for _, c := range cl.Candidates {
		out = append(out, c.Ticker)
	}
	return out
}

// Contains reports whether ticker passed this scan.
func (cl *CandidateList) Contains(ticker string) bool {
	for _, c := range cl.Candidates {
		if c.Ticker == ticker {
			return true
		}
	}
	return false
}

// IsExcluded reports whether ticker was evaluated and rejected, with reason.
func (cl *CandidateList) IsExcluded(ticker string) (bool, string) {
	reason, exists := cl.Excluded[ticker]
	return exists, reason
}

// DiffAction classifies a candidate's edge versus the previous cycle.
type DiffAction string

const (
	ActionAdded      DiffAction = "ADDED"
	ActionRemoved    DiffAction = "REMOVED"
	ActionMaintained DiffAction = "MAINTAINED"
)

// ScanDiffEntry is the minimal durable record of one candidate edge:
// ticker + horizon + action + time, never scores.
type ScanDiffEntry struct {
	Ticker  string     `json:"ticker"`
	Horizon Horizon    `json:"horizon"`
	Action  DiffAction `json:"action"`
	At      time.Time  `json:"at"`
	CycleID string     `json:"cycle_id"`
}
