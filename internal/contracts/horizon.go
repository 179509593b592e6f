package contracts

import "fmt"

// Horizon is a named forward-looking window for an opportunity.
type Horizon string

const (
	Horizon30   Horizon = "H30"   // next ~30 minutes
	Horizon2H   Horizon = "H2H"   // next ~2 hours
	HorizonDay  Horizon = "HDAY"  // rest of day / next day
	HorizonWeek Horizon = "HWEEK" // swing, up to a week
)

// AllHorizons returns the horizons in scan order.
func AllHorizons() []Horizon {
	return []Horizon{Horizon30, Horizon2H, HorizonDay, HorizonWeek}
}

// ParseHorizon validates and converts a horizon string.
func ParseHorizon(s string) (Horizon, error) {
	h := Horizon(s)
	if !h.Valid() {
		return "", fmt.Errorf("unknown horizon %q", s)
	}
	return h, nil
}

// Valid reports whether h is a known horizon.
func (h Horizon) Valid() bool {
	switch h {
	case Horizon30, Horizon2H, HorizonDay, HorizonWeek:
		return true
	}
	return false
}

// Intraday reports whether the horizon closes within the session.
func (h Horizon) Intraday() bool {
	return h == Horizon30 || h == Horizon2H
}

// ScanTimeframe returns the candle resolution the scanner evaluates this
// horizon on: fine bars intraday, coarse bars for swing horizons.
func (h Horizon) ScanTimeframe() Timeframe {
	if h.Intraday() {
		return Timeframe1m
	}
	return Timeframe5m
}
