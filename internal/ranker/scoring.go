package ranker

import (
	"fmt"
	"math"

	"github.com/zerotrading/zero/internal/contracts"
	"github.com/zerotrading/zero/internal/strategyconfig"
)

const (
	// atrPeriod is the standard 14-bar smoothing window.
	atrPeriod = 14
	// slopeWindow and expansionLag are measured in bars of the respective
	// series: slopes span the last 5 EMA points, ATR expansion compares
	// against 5 bars back.
	slopeWindow  = 5
	expansionLag = 5
)

// featureSet is every scoring input for one candidate, extracted once from
// the 1m and 5m series.
type featureSet struct {
	aligned1m bool
	aligned5m bool

	separation1m float64 // fast-vs-slow EMA gap, percent of slow
	separation5m float64
	slope1m      float64 // fast EMA slope, percent
	slope5m      float64

	relVol1m float64
	relVol5m float64

	atr          float64 // newest smoothed 5m true range
	atrExpansion float64 // percent vs expansionLag bars back

	divergence float64 // |slope1m - slope5m|
	price      float64 // newest 1m close
}

// extractFeatures computes the scoring inputs. Both series must already
// carry at least cfg.MinBars bars; shorter candidates are excluded before
// this runs.
func extractFeatures(bars1m, bars5m []contracts.Candle, cfg strategyconfig.Ranking) featureSet {
	close1m := closes(bars1m)
	close5m := closes(bars5m)

	fast1m := ema(close1m, cfg.Momentum.FastEMA)
	slow1m := ema(close1m, cfg.Momentum.SlowEMA)
	fast5m := ema(close5m, cfg.Momentum.FastEMA)
	slow5m := ema(close5m, cfg.Momentum.SlowEMA)

	atr := atrSeries(bars5m, atrPeriod)

	f := featureSet{
		price:        close1m[len(close1m)-1],
		slope1m:      slopePct(fast1m, slopeWindow),
		slope5m:      slopePct(fast5m, slopeWindow),
		relVol1m:     relVolume(bars1m, cfg.MinBars),
		relVol5m:     relVolume(bars5m, cfg.MinBars),
		atr:          atr[len(atr)-1],
		atrExpansion: expansionPct(atr, expansionLag),
	}
	f.divergence = math.Abs(f.slope1m - f.slope5m)

	f.aligned1m, f.separation1m = alignment(f.price, fast1m, slow1m)
	f.aligned5m, f.separation5m = alignment(close5m[len(close5m)-1], fast5m, slow5m)
	return f
}

// alignment reports whether price > fast EMA > slow EMA holds, and the
// fast-vs-slow separation in percent.
func alignment(price float64, fast, slow []float64) (bool, float64) {
	f := fast[len(fast)-1]
	s := slow[len(slow)-1]
	aligned := price > f && f > s
	if s <= 0 {
		return aligned, 0
	}
	return aligned, (f - s) / s * 100
}

// Scorer turns features into the four component scores and the penalized
// composite. Thresholds come from configuration; the shapes (the momentum
// gate, the ladders, penalties-only for non-GREEN) are fixed.
type Scorer struct {
	cfg strategyconfig.Ranking
}

func NewScorer(cfg strategyconfig.Ranking) *Scorer {
	return &Scorer{cfg: cfg}
}

// Score computes the component scores, the weighted composite after any
// state penalty, and one explanation line per contributing factor.
func (s *Scorer) Score(f featureSet, state contracts.State) (contracts.ComponentScores, float64, []string) {
	scores := contracts.ComponentScores{
		Momentum:   s.momentum(f),
		Volatility: s.volatility(f),
		Liquidity:  s.liquidity(f),
		Stability:  s.stability(f),
	}

	w := s.cfg.Weights
	composite := scores.Momentum*w.Momentum +
		scores.Volatility*w.Volatility +
		scores.Liquidity*w.Liquidity +
		scores.Stability*w.Stability

	why := make([]string, 0, 5)
	if scores.Momentum > 0 {
		why = append(why, fmt.Sprintf("momentum %.1f: close > EMA%d > EMA%d on 1m and 5m",
			scores.Momentum, s.cfg.Momentum.FastEMA, s.cfg.Momentum.SlowEMA))
	}
	if scores.Volatility > 0 {
		why = append(why, fmt.Sprintf("volatility %.1f: ATR %.2f%% of price",
			scores.Volatility, f.atr/f.price*100))
	}
	if scores.Liquidity > 0 {
		why = append(why, fmt.Sprintf("liquidity %.1f: relative volume %.2fx",
			scores.Liquidity, (f.relVol1m+f.relVol5m)/2))
	}
	if scores.Stability > 0 {
		why = append(why, fmt.Sprintf("stability %.1f: 1m/5m slope divergence %.2f",
			scores.Stability, f.divergence))
	}

	// Penalties only, never bonuses: GREEN is the unadjusted baseline.
	if state == contracts.StateYellow {
		composite = math.Max(0, composite-s.cfg.YellowPenalty)
		why = append(why, fmt.Sprintf("YELLOW penalty: composite -%.0f", s.cfg.YellowPenalty))
	}

	return scores, composite, why
}

// momentum applies the dual-timeframe alignment gate: without close > fast
// EMA > slow EMA on BOTH resolutions the score is zero. No partial credit.
// Separation and positive-slope bonuses refine the base once the gate holds.
func (s *Scorer) momentum(f featureSet) float64 {
	m := s.cfg.Momentum
	if !f.aligned1m || !f.aligned5m {
		return 0
	}
	score := m.BaseFast + m.BaseSlow
	if f.separation1m > m.SeparationMinPct {
		score += math.Min(m.BonusCap, f.separation1m*m.SeparationScale)
	}
	if f.separation5m > m.SeparationMinPct {
		score += math.Min(m.BonusCap, f.separation5m*m.SeparationScale)
	}
	if f.slope1m > 0 {
		score += math.Min(m.BonusCap, f.slope1m*m.SlopeScale)
	}
	if f.slope5m > 0 {
		score += math.Min(m.BonusCap, f.slope5m*m.SlopeScale)
	}
	return math.Min(100, score)
}

// volatility scores ATR as a percent of price on the rising ladder, with
// the expansion bonus when the range is widening.
func (s *Scorer) volatility(f featureSet) float64 {
	if f.price <= 0 || f.atr <= 0 {
		return 0
	}
	score := s.cfg.Volatility.Ladder.Rung(f.atr / f.price * 100)
	if f.atrExpansion > s.cfg.Volatility.ExpansionMinPct {
		score = math.Min(100, score+s.cfg.Volatility.ExpansionBonus)
	}
	return score
}

// liquidity scores the cross-timeframe average relative volume.
func (s *Scorer) liquidity(f featureSet) float64 {
	return s.cfg.Liquidity.Ladder.Rung((f.relVol1m + f.relVol5m) / 2)
}

// stability scores the slope divergence on the falling ladder: the less the
// two resolutions disagree, the higher the score.
func (s *Scorer) stability(f featureSet) float64 {
	return s.cfg.Stability.Ladder.RungBelow(f.divergence)
}
