package contracts

import "time"

// Status is a service health level.
type Status string

const (
	StatusOK       Status = "ok"
	StatusDegraded Status = "degraded"
	StatusError    Status = "error"
)

// CycleOutcome distinguishes why a cycle produced what it produced. An empty
// result because of a RED veto, because nothing passed, and because of an
// error are three different facts and must never collapse into one.
type CycleOutcome string

const (
	OutcomeCompleted        CycleOutcome = "completed"
	OutcomeSkippedRed       CycleOutcome = "skipped_red"
	OutcomeSkippedAttention CycleOutcome = "skipped_attention"
	OutcomeAborted          CycleOutcome = "aborted"
)

// Health is one service's observable status snapshot, written to the bus
// each tick and aggregated by the query API.
type Health struct {
	Service       string                 `json:"service"`
	Status        Status                 `json:"status"`
	UptimeSeconds float64                `json:"uptime_seconds"`
	LastCycle     time.Time              `json:"last_cycle"`
	LastOutcome   CycleOutcome           `json:"last_outcome,omitempty"`
	LastError     string                 `json:"last_error,omitempty"`
	Details       map[string]interface{} `json:"details,omitempty"`
}

// Healthy reports whether the service is fully operational.
func (h Health) Healthy() bool {
	return h.Status == StatusOK
}
