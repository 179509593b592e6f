// Package regime computes the market permission state: the level-0 veto
// that can halt every downstream engine but never approves anything alone.
package regime

import (
	"time"

	"github.com/zerotrading/zero/internal/contracts"
	"github.com/zerotrading/zero/internal/strategyconfig"
)

// Calculator derives MarketState from the clock, the volatility proxy, and
// the event-risk flag. Compute is pure; every side effect lives in Service.
// ⭐ SSOT: the GREEN/YELLOW/RED decision is made only here
type Calculator struct {
	calendar *Calendar
	bands    strategyconfig.VolatilityProxy
}

// NewCalculator builds a calculator. Band ordering (high > elevated) is
// enforced by strategyconfig validation before anything reaches here.
func NewCalculator(cal *Calendar, bands strategyconfig.VolatilityProxy) *Calculator {
	return &Calculator{calendar: cal, bands: bands}
}

// Compute evaluates the permission branches strictly RED, then YELLOW, then
// GREEN, and assigns the reason of the exact branch taken. volOK=false means
// the proxy is unknown this tick; the state then fails toward RED, never
// open.
func (c *Calculator) Compute(now time.Time, vol float64, volOK bool, eventRisk bool) contracts.MarketState {
	state := contracts.MarketState{
		TimeWindow: c.calendar.Window(now),
		Timestamp:  now,
	}
	if volOK {
		state.VolatilityLevel = vol
	}

	// RED: calendar halts, then event risk, then volatility
	switch {
	case c.calendar.DayKind(now) == Weekend:
		state.State, state.Reason = contracts.StateRed, contracts.ReasonWeekendHalt
		return state
	case c.calendar.DayKind(now) == Holiday:
		state.State, state.Reason = contracts.StateRed, contracts.ReasonHolidayHalt
		return state
	case state.TimeWindow == contracts.WindowOffHours:
		state.State, state.Reason = contracts.StateRed, contracts.ReasonOffHoursHalt
		return state
	case eventRisk:
		state.State, state.Reason = contracts.StateRed, contracts.ReasonEventRiskHalt
		return state
	case !volOK:
		state.State, state.Reason = contracts.StateRed, contracts.ReasonVolatilityDataHalt
		return state
	case vol >= c.bands.High:
		state.State, state.Reason = contracts.StateRed, contracts.ReasonVolatilityHalt
		return state
	}

	// YELLOW: caution windows outrank elevated volatility for the reason
	switch {
	case state.TimeWindow == contracts.WindowOpening:
		state.State, state.Reason = contracts.StateYellow, contracts.ReasonOpeningVolatility
		return state
	case state.TimeWindow == contracts.WindowLunch:
		state.State, state.Reason = contracts.StateYellow, contracts.ReasonLunchChop
		return state
	case vol >= c.bands.Elevated:
		state.State, state.Reason = contracts.StateYellow, contracts.ReasonElevatedVolatility
		return state
	}

	// GREEN: only PRIME and CLOSING remain
	if state.TimeWindow == contracts.WindowClosing {
		state.State, state.Reason = contracts.StateGreen, contracts.ReasonClosingWindow
		return state
	}
	state.State, state.Reason = contracts.StateGreen, contracts.ReasonPrimeWindow
	return state
}
