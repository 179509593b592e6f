package ranker

import (
	"math"

	"github.com/zerotrading/zero/internal/contracts"
)

// ema returns the exponential moving average of values with the standard
// 2/(period+1) smoothing, seeded on the first value.
func ema(values []float64, period int) []float64 {
	if len(values) == 0 {
		return nil
	}
	alpha := 2.0 / (float64(period) + 1.0)
	out := make([]float64, len(values))
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = alpha*values[i] + (1-alpha)*out[i-1]
	}
	return out
}

// slopePct is the percent change across the last window points of series,
// or 0 when history is short.
func slopePct(series []float64, window int) float64 {
	if window < 2 || len(series) < window+1 {
		return 0
	}
	first := series[len(series)-window]
	if first == 0 {
		return 0
	}
	return (series[len(series)-1] - first) / first * 100
}

// atrSeries is the smoothed true range: TR fed through the same EMA the
// momentum indicators use. The first bar's TR is its plain range.
func atrSeries(bars []contracts.Candle, period int) []float64 {
	if len(bars) == 0 {
		return nil
	}
	tr := make([]float64, len(bars))
	tr[0] = bars[0].Range()
	for i := 1; i < len(bars); i++ {
		hc := math.Abs(bars[i].High - bars[i-1].Close)
		lc := math.Abs(bars[i].Low - bars[i-1].Close)
		tr[i] = math.Max(bars[i].Range(), math.Max(hc, lc))
	}
	return ema(tr, period)
}

// expansionPct compares the newest value against the value lag steps back,
// as a percent of the older one.
func expansionPct(series []float64, lag int) float64 {
	if len(series) < lag+1 {
		return 0
	}
	base := series[len(series)-1-lag]
	if base == 0 {
		return 0
	}
	return (series[len(series)-1] - base) / base * 100
}

// relVolume is the newest bar's volume against the mean of the last
// lookback bars, newest included. Defaults to 1.0: an instrument with no
// usable volume history reads as ordinary, not dead.
func relVolume(bars []contracts.Candle, lookback int) float64 {
	if lookback <= 0 || len(bars) < lookback {
		return 1.0
	}
	var sum float64
	for _, b := range bars[len(bars)-lookback:] {
		sum += float64(b.Volume)
	}
	avg := sum / float64(lookback)
	if avg <= 0 {
		return 1.0
	}
	return float64(bars[len(bars)-1].Volume) / avg
}

func closes(bars []contracts.Candle) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}
