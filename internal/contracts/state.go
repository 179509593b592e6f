package contracts

import "time"

// State is the market permission level. RED overrides YELLOW overrides GREEN.
type State string

const (
	StateGreen  State = "GREEN"
	StateYellow State = "YELLOW"
	StateRed    State = "RED"
)

// Valid reports whether s is one of the three permission levels.
func (s State) Valid() bool {
	return s == StateGreen || s == StateYellow || s == StateRed
}

// Severity maps the state to a numeric level for metrics and comparisons
// (GREEN=0, YELLOW=1, RED=2).
func (s State) Severity() int {
	switch s {
	case StateYellow:
		return 1
	case StateRed:
		return 2
	default:
		return 0
	}
}

// TimeWindow is the session band the current wall-clock time falls into.
type TimeWindow string

const (
	WindowOpening  TimeWindow = "OPENING"
	WindowLunch    TimeWindow = "LUNCH"
	WindowPrime    TimeWindow = "PRIME"
	WindowClosing  TimeWindow = "CLOSING"
	WindowOffHours TimeWindow = "OFF_HOURS"
)

// Reason vocabulary. One string per regime branch; tests assert on these
// directly, so they are constants rather than free text.
const (
	ReasonWeekendHalt        = "Weekend Halt"
	ReasonHolidayHalt        = "Market Holiday Halt"
	ReasonOffHoursHalt       = "Off Hours Halt"
	ReasonEventRiskHalt      = "Event Risk Halt"
	ReasonVolatilityHalt     = "Volatility Halt"
	ReasonVolatilityDataHalt = "Volatility Data Halt"
	ReasonElevatedVolatility = "Elevated Volatility"
	ReasonOpeningVolatility  = "Opening Volatility"
	ReasonLunchChop          = "Lunch Chop"
	ReasonPrimeWindow        = "Prime Window"
	ReasonClosingWindow      = "Closing Window"
)

// MarketState is the authoritative permission snapshot produced by the
// regime engine each tick.
// ⭐ SSOT: regime -> scanner/ranker permission signal
type MarketState struct {
	State           State      `json:"state"`
	Reason          string     `json:"reason"`
	VolatilityLevel float64    `json:"volatility_level"`
	TimeWindow      TimeWindow `json:"time_window"`
	Timestamp       time.Time  `json:"timestamp"`
}

// IsRed reports whether all downstream output is vetoed.
func (m MarketState) IsRed() bool {
	return m.State == StateRed
}

// Tradable reports whether downstream components may produce output.
func (m MarketState) Tradable() bool {
	return m.State == StateGreen || m.State == StateYellow
}

// SameSignal reports whether two snapshots carry the same permission signal.
// Timestamp and the raw proxy level are excluded: the level wiggles every
// tick without changing the decision, and persistence is value-change only.
func (m MarketState) SameSignal(other MarketState) bool {
	return m.State == other.State &&
		m.Reason == other.Reason &&
		m.TimeWindow == other.TimeWindow
}

// StateChange is the lightweight notification published when the permission
// signal changes. Consumers re-read the full snapshot from StateKey; this
// payload never carries it.
type StateChange struct {
	From      State     `json:"from"`
	To        State     `json:"to"`
	Reason    string    `json:"reason"`
	StateKey  string    `json:"state_key"`
	ChangedAt time.Time `json:"changed_at"`
}

// Favorable reports whether the change opens the market up (toward GREEN).
// The scanner uses this to trigger an immediate rescan.
func (c StateChange) Favorable() bool {
	return c.To.Severity() < c.From.Severity()
}

// EventRisk is the regime engine's published event-risk flag. Active means a
// high-impact macro event sits inside the lookahead window. CheckedAt is the
// last calendar consultation, so readers can tell a quiet calendar from a
// stalled source.
type EventRisk struct {
	Active    bool      `json:"active"`
	CheckedAt time.Time `json:"checked_at"`
}
