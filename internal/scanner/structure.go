package scanner

import (
	"fmt"

	"github.com/zerotrading/zero/internal/contracts"
	"github.com/zerotrading/zero/internal/strategyconfig"
)

// StructureStrategy judges whether recent price action shows a directional
// bias worth handing to the ranker. Implementations must be pure over the
// given bars. The stage is a deliberate seam: richer pattern detectors
// (flags, hammers) plug in here without touching scan control flow.
// ⭐ SSOT: the structure stage is replaceable only through this interface
type StructureStrategy interface {
	Name() string
	Evaluate(bars []contracts.Candle) (pass bool, reason string)
}

// NewStructureStrategy resolves the configured strategy name. An unknown
// name is a configuration error and fatal at startup.
func NewStructureStrategy(cfg strategyconfig.Structure) (StructureStrategy, error) {
	switch cfg.Strategy {
	case "", "trend_alignment":
		return &TrendAlignment{cfg: cfg}, nil
	}
	return nil, fmt.Errorf("unknown structure strategy %q", cfg.Strategy)
}

// TrendAlignment is the default structure stage: close above the fast SMA
// above the slow SMA reads as an uptrend, the strict inverse as a
// downtrend, anything else as chop. Either trend direction passes.
type TrendAlignment struct {
	cfg strategyconfig.Structure
}

func (t *TrendAlignment) Name() string { return "trend_alignment" }

func (t *TrendAlignment) Evaluate(bars []contracts.Candle) (bool, string) {
	if len(bars) < t.cfg.MinBars {
		return false, fmt.Sprintf("structure: %d bars, need %d", len(bars), t.cfg.MinBars)
	}

	fast := sma(bars, t.cfg.FastSMA)
	slow := sma(bars, t.cfg.SlowSMA)
	price := bars[len(bars)-1].Close

	switch {
	case price > fast && fast > slow:
		return true, fmt.Sprintf("structure: trend UP, close %.2f > SMA%d %.2f > SMA%d %.2f",
			price, t.cfg.FastSMA, fast, t.cfg.SlowSMA, slow)
	case price < fast && fast < slow:
		return true, fmt.Sprintf("structure: trend DOWN, close %.2f < SMA%d %.2f < SMA%d %.2f",
			price, t.cfg.FastSMA, fast, t.cfg.SlowSMA, slow)
	}
	return false, "structure: no directional bias (chop)"
}

// sma averages the last period closes. A window longer than the history
// truncates to the history, so the slow SMA still reads on minimum-length
// inputs.
func sma(bars []contracts.Candle, period int) float64 {
	if period <= 0 || len(bars) == 0 {
		return 0
	}
	if period > len(bars) {
		period = len(bars)
	}
	var sum float64
	for _, b := range bars[len(bars)-period:] {
		sum += b.Close
	}
	return sum / float64(period)
}
