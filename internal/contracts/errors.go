package contracts

import "errors"

// Error taxonomy. Matched with errors.Is at each recovery boundary:
//
//   - ErrDataUnavailable / ErrNoData / ErrUnknownTicker: per-ticker, skip
//     the ticker and continue the cycle.
//   - ErrUpstreamUnavailable: cycle-level, abort the cycle, degrade health,
//     retry next tick. Never crashes the process.
//   - ErrInvariantViolation: the cycle's output is dropped and logged at
//     error level; ticking continues.
//
// Configuration errors are not sentinels here: they are fatal at startup
// and surface as plain wrapped errors from constructors.
var (
	ErrDataUnavailable     = errors.New("candle data unavailable")
	ErrNoData              = errors.New("no candle data yet")
	ErrUnknownTicker       = errors.New("unknown ticker")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrInvariantViolation  = errors.New("invariant violation")
)

// TickerSkippable reports whether err only disqualifies a single ticker
// rather than the whole cycle.
func TickerSkippable(err error) bool {
	return errors.Is(err, ErrDataUnavailable) ||
		errors.Is(err, ErrNoData) ||
		errors.Is(err, ErrUnknownTicker)
}
