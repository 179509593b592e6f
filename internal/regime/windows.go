package regime

import (
	"github.com/zerotrading/zero/internal/contracts"
	"github.com/zerotrading/zero/internal/strategyconfig"
)

// classifyWindow maps a minute-of-day to its session band. Cut points are
// validated strictly increasing at startup, so every in-session minute lands
// in exactly one band; CLOSING includes the closing minute itself.
func classifyWindow(minute int, cuts strategyconfig.CutPoints) contracts.TimeWindow {
	switch {
	case minute < cuts.Open:
		return contracts.WindowOffHours
	case minute < cuts.OpeningEnd:
		return contracts.WindowOpening
	case minute < cuts.LunchEnd:
		return contracts.WindowLunch
	case minute < cuts.PrimeEnd:
		return contracts.WindowPrime
	case minute <= cuts.Close:
		return contracts.WindowClosing
	default:
		return contracts.WindowOffHours
	}
}
