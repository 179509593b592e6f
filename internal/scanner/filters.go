package scanner

import (
	"fmt"

	"github.com/zerotrading/zero/internal/contracts"
	"github.com/zerotrading/zero/internal/strategyconfig"
)

// Filters runs the liquidity and volatility stages. Every stage answers
// pass/fail plus a reason string; the reasons ride the candidate (or the
// exclusion map) so the why-not surface can answer without re-running math.
type Filters struct {
	cfg strategyconfig.ScanFilters
}

func NewFilters(cfg strategyconfig.ScanFilters) *Filters {
	return &Filters{cfg: cfg}
}

// Liquidity requires a healthy trailing average volume and unusually high
// recent activity on top of it. Historically busy but currently quiet
// tickers fail the relative leg on purpose.
func (f *Filters) Liquidity(bars []contracts.Candle) (bool, string) {
	if len(bars) < f.cfg.MinVolumeBars {
		return false, fmt.Sprintf("liquidity: %d bars, need %d", len(bars), f.cfg.MinVolumeBars)
	}

	var total float64
	for _, b := range bars {
		total += float64(b.Volume)
	}
	avg := total / float64(len(bars))
	if avg < float64(f.cfg.MinAvgVolume) {
		return false, fmt.Sprintf("liquidity: avg volume %.0f below %d", avg, f.cfg.MinAvgVolume)
	}

	rel := relativeVolume(bars, f.cfg.RecentBars)
	if rel < f.cfg.MinVolumeRatio {
		return false, fmt.Sprintf("liquidity: relative volume %.2fx below %.1fx", rel, f.cfg.MinVolumeRatio)
	}

	return true, fmt.Sprintf("liquidity: avg volume %.0f, relative %.2fx", avg, rel)
}

// Volatility wants a tradable range: the bar-range ATR as a fraction of
// price above the floor, with the price itself inside the sane band that
// keeps downstream position sizing meaningful.
func (f *Filters) Volatility(bars []contracts.Candle) (bool, string) {
	if len(bars) < f.cfg.ATRPeriod {
		return false, fmt.Sprintf("volatility: %d bars, need %d for ATR", len(bars), f.cfg.ATRPeriod)
	}

	atr := rangeATR(bars, f.cfg.ATRPeriod)
	price := bars[len(bars)-1].Close

	if price < f.cfg.PriceMin || price > f.cfg.PriceMax {
		return false, fmt.Sprintf("volatility: price $%.2f outside [$%.0f, $%.0f]",
			price, f.cfg.PriceMin, f.cfg.PriceMax)
	}

	atrPct := 0.0
	if price > 0 {
		atrPct = atr / price
	}
	if atrPct < f.cfg.MinATRPct {
		return false, fmt.Sprintf("volatility: ATR %.4f of price below %.4f", atrPct, f.cfg.MinATRPct)
	}

	return true, fmt.Sprintf("volatility: ATR %.4f of price at $%.2f", atrPct, price)
}

// relativeVolume is the mean of the last recent bars' volume over the mean
// of the whole window.
func relativeVolume(bars []contracts.Candle, recent int) float64 {
	if len(bars) == 0 {
		return 0
	}
	if recent <= 0 || recent > len(bars) {
		recent = len(bars)
	}

	var total float64
	for _, b := range bars {
		total += float64(b.Volume)
	}
	avg := total / float64(len(bars))
	if avg <= 0 {
		return 0
	}

	var tail float64
	for _, b := range bars[len(bars)-recent:] {
		tail += float64(b.Volume)
	}
	return (tail / float64(recent)) / avg
}

// rangeATR is the high-low proxy ATR: the mean bar range over the last
// period bars. True range with gap handling is deliberately not used here;
// scan windows are contiguous intraday bars.
func rangeATR(bars []contracts.Candle, period int) float64 {
	if len(bars) == 0 {
		return 0
	}
	if period <= 0 || period > len(bars) {
		period = len(bars)
	}
	var sum float64
	for _, b := range bars[len(bars)-period:] {
		sum += b.Range()
	}
	return sum / float64(period)
}
