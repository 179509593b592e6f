// Package attention measures how stable the market's attention is: which
// sectors lead, how concentrated the leadership is, whether the index
// complex moves together, and how much volatility pressure sits under it.
// The output gates the ranker's longer horizons and keys calibration
// buckets; it never gates permission itself, that is the regime engine's
// job.
package attention

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/zerotrading/zero/internal/contracts"
	"github.com/zerotrading/zero/internal/strategyconfig"
)

const (
	// returnWindow is the component lookback in 5m bars: the last hour
	// defines "recent" attention.
	returnWindow = 12
	// volTrendWindow is the vol-proxy trend lookback, 30 minutes.
	volTrendWindow = 6
	// churnHistoryCap bounds the rolling top-3 overlap history to about
	// an hour of samples.
	churnHistoryCap = 12
	// minCorrReturns is the fewest bar-to-bar returns a pair needs
	// before its correlation counts.
	minCorrReturns = 5
	// maxDispersion is the index-return spread that reads as fully
	// divergent: 2%.
	maxDispersion = 0.02
)

// Calculator computes AttentionState from proxy candles. It carries the
// rolling leadership history between ticks; everything else is pure.
type Calculator struct {
	cfg strategyconfig.Attention

	mu       sync.Mutex
	overlaps []int
	lastTop3 []string
}

func NewCalculator(cfg strategyconfig.Attention) *Calculator {
	return &Calculator{cfg: cfg}
}

// Compute builds the full attention read at time at. Fewer than two live
// index proxies means the market cannot be measured: the neutral degraded
// state comes back instead, never an error.
func (c *Calculator) Compute(series map[string][]contracts.Candle, market contracts.MarketState, at time.Time) contracts.AttentionState {
	live := 0
	for _, sym := range c.cfg.IndexProxies {
		if len(series[sym]) > 0 {
			live++
		}
	}
	if live < 2 {
		return contracts.FallbackAttention("insufficient index data", at)
	}

	dominant := c.dominantSectors(series)
	concentration := c.concentration(series)
	churn := c.leadershipChurn(dominant)
	dispersion := c.indexDispersion(series)
	volPressure := c.volatilityPressure(series[c.cfg.VolProxy], market.State)
	corrScore, regime := c.correlation(series)
	risk := c.riskState(series, corrScore)

	w := c.cfg.Weights
	score := w.Leadership*churn +
		w.Dispersion*dispersion +
		w.VolPressure*volPressure +
		w.Correlation*corrScore
	score = round2(math.Min(100, math.Max(0, score)))

	return contracts.AttentionState{
		StabilityScore:  score,
		Bucket:          c.bucket(score),
		RiskState:       risk,
		DominantSectors: dominant,
		Concentration:   concentration,
		Components: contracts.AttentionComponents{
			Leadership:  churn,
			Dispersion:  dispersion,
			Volatility:  volPressure,
			Correlation: corrScore,
		},
		CorrelationRegime: regime,
		Timestamp:         at,
	}
}

func (c *Calculator) bucket(score float64) contracts.AttentionBucket {
	switch {
	case score >= c.cfg.Buckets.Stable:
		return contracts.BucketStable
	case score >= c.cfg.Buckets.Unstable:
		return contracts.BucketUnstable
	default:
		return contracts.BucketChaotic
	}
}

// dominantSectors ranks the sector proxies by absolute hourly move and
// returns the top three. Leadership means moving, in either direction.
func (c *Calculator) dominantSectors(series map[string][]contracts.Candle) []contracts.SectorReturn {
	type move struct {
		symbol string
		ret    float64
	}
	moves := make([]move, 0, len(c.cfg.SectorETFs))
	for _, sym := range c.cfg.SectorETFs {
		if ret, ok := returnOver(series[sym], returnWindow); ok {
			moves = append(moves, move{symbol: sym, ret: ret})
		}
	}

	sort.Slice(moves, func(i, j int) bool {
		ai, aj := math.Abs(moves[i].ret), math.Abs(moves[j].ret)
		if ai != aj {
			return ai > aj
		}
		return moves[i].symbol < moves[j].symbol
	})

	if len(moves) > 3 {
		moves = moves[:3]
	}
	out := make([]contracts.SectorReturn, 0, len(moves))
	for i, m := range moves {
		out = append(out, contracts.SectorReturn{
			Symbol: m.symbol,
			Return: round4(m.ret * 100),
			Rank:   i + 1,
		})
	}
	return out
}

// concentration is a normalized Herfindahl index over absolute sector
// returns: 0 when attention spreads evenly, 100 when one sector takes it
// all. No usable sector data reads as the neutral 50.
func (c *Calculator) concentration(series map[string][]contracts.Candle) float64 {
	var abs []float64
	var total float64
	for _, sym := range c.cfg.SectorETFs {
		if ret, ok := returnOver(series[sym], returnWindow); ok {
			a := math.Abs(ret)
			abs = append(abs, a)
			total += a
		}
	}
	if len(abs) == 0 || total == 0 {
		return 50.0
	}

	var hhi float64
	for _, a := range abs {
		share := a / total
		hhi += share * share
	}
	minHHI := 1.0 / float64(len(abs))
	if hhi <= minHHI {
		return 0.0
	}
	conc := (hhi - minHHI) / (1 - minHHI) * 100
	return round2(math.Min(100, math.Max(0, conc)))
}

// leadershipChurn scores how much the top-3 set holds still across ticks:
// 100 is unchanged leadership, 0 is full rotation every tick. The first
// tick has nothing to compare against and reads as a calm 80.
func (c *Calculator) leadershipChurn(dominant []contracts.SectorReturn) float64 {
	current := make([]string, 0, len(dominant))
	for _, d := range dominant {
		current = append(current, d.Symbol)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.lastTop3) == 0 {
		c.lastTop3 = current
		return 80.0
	}

	overlap := 0
	for _, sym := range current {
		for _, prev := range c.lastTop3 {
			if sym == prev {
				overlap++
				break
			}
		}
	}

	c.overlaps = append(c.overlaps, overlap)
	if len(c.overlaps) > churnHistoryCap {
		c.overlaps = c.overlaps[len(c.overlaps)-churnHistoryCap:]
	}
	c.lastTop3 = current

	sum := 0
	for _, o := range c.overlaps {
		sum += o
	}
	avg := float64(sum) / float64(len(c.overlaps))
	return round2(avg / 3 * 100)
}

// indexDispersion scores how tightly the index proxies move together:
// the standard deviation of their hourly returns scaled inversely, so 100
// is lockstep and 0 is a 2%+ spread.
func (c *Calculator) indexDispersion(series map[string][]contracts.Candle) float64 {
	var returns []float64
	for _, sym := range c.cfg.IndexProxies {
		if ret, ok := returnOver(series[sym], returnWindow); ok {
			returns = append(returns, ret)
		}
	}
	if len(returns) < 2 {
		return 50.0
	}

	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		d := r - mean
		variance += d * d
	}
	std := math.Sqrt(variance / float64(len(returns)))

	ratio := math.Min(std/maxDispersion, 1.0)
	return round2((1 - ratio) * 100)
}

// volatilityPressure starts from a calm 70 and subtracts for the
// permission state and a rising vol proxy; a falling proxy adds a little
// back. 100 is dead calm, 0 is full pressure.
func (c *Calculator) volatilityPressure(volBars []contracts.Candle, state contracts.State) float64 {
	score := 70.0
	switch state {
	case contracts.StateRed:
		score -= 40
	case contracts.StateYellow:
		score -= 20
	}

	if ret, ok := returnOver(volBars, volTrendWindow); ok {
		switch {
		case ret > 0.02:
			score -= 30
		case ret > 0.01:
			score -= 15
		case ret < -0.01:
			score += 10
		}
	}

	return round2(math.Min(100, math.Max(0, score)))
}

// correlation averages pairwise index-return correlations and names the
// regime. Very high correlation usually means one macro driver and reads
// as risk-off; moderate correlation is healthy tape.
func (c *Calculator) correlation(series map[string][]contracts.Candle) (float64, string) {
	returns := make(map[string][]float64, len(c.cfg.IndexProxies))
	for _, sym := range c.cfg.IndexProxies {
		if rets := barReturns(series[sym]); len(rets) > 0 {
			returns[sym] = rets
		}
	}
	if len(returns) < 2 {
		return 50.0, "Insufficient Data"
	}

	var corrs []float64
	for i := 0; i < len(c.cfg.IndexProxies); i++ {
		for j := i + 1; j < len(c.cfg.IndexProxies); j++ {
			a, okA := returns[c.cfg.IndexProxies[i]]
			b, okB := returns[c.cfg.IndexProxies[j]]
			if !okA || !okB {
				continue
			}
			n := len(a)
			if len(b) < n {
				n = len(b)
			}
			if n < minCorrReturns {
				continue
			}
			if corr, ok := pearson(a[:n], b[:n]); ok {
				corrs = append(corrs, corr)
			}
		}
	}
	if len(corrs) == 0 {
		return 50.0, "Normal Correlation"
	}

	avg := 0.0
	for _, corr := range corrs {
		avg += corr
	}
	avg /= float64(len(corrs))

	switch {
	case avg > 0.9:
		return 40.0, "High Correlation / Risk-Off"
	case avg > 0.7:
		return 60.0, "Elevated Correlation"
	case avg > 0.4:
		return 80.0, "Normal Correlation"
	case avg > 0.1:
		return 60.0, "Fragmented Leadership"
	default:
		return 50.0, "Decorrelated / Rotation"
	}
}

// riskState reads risk appetite off the small-cap proxy's performance
// against the broad one plus the vol-proxy trend. The proxy list is
// ordered broad to narrow: the first entry is the benchmark, the last is
// the risk read.
func (c *Calculator) riskState(series map[string][]contracts.Candle, corrScore float64) contracts.RiskState {
	if len(c.cfg.IndexProxies) < 2 {
		return contracts.RiskNeutral
	}
	broad := c.cfg.IndexProxies[0]
	narrow := c.cfg.IndexProxies[len(c.cfg.IndexProxies)-1]

	broadRet, okBroad := returnOver(series[broad], returnWindow)
	narrowRet, okNarrow := returnOver(series[narrow], returnWindow)
	if !okBroad || !okNarrow {
		return contracts.RiskNeutral
	}

	volRet, volOK := returnOver(series[c.cfg.VolProxy], volTrendWindow)
	relative := narrowRet - broadRet

	if relative < -0.005 && corrScore < 50 && volOK && volRet > 0.01 {
		return contracts.RiskOff
	}
	if relative > 0.003 && (!volOK || volRet < 0) {
		return contracts.RiskOn
	}
	return contracts.RiskNeutral
}

// returnOver is the fractional move across the last periods bars, needing
// at least two bars and a positive starting close.
func returnOver(bars []contracts.Candle, periods int) (float64, bool) {
	if len(bars) > periods {
		bars = bars[len(bars)-periods:]
	}
	if len(bars) < 2 {
		return 0, false
	}
	start := bars[0].Close
	if start <= 0 {
		return 0, false
	}
	return (bars[len(bars)-1].Close - start) / start, true
}

// barReturns is the bar-to-bar fractional return series.
func barReturns(bars []contracts.Candle) []float64 {
	if len(bars) < 2 {
		return nil
	}
	out := make([]float64, 0, len(bars)-1)
	for i := 1; i < len(bars); i++ {
		prev := bars[i-1].Close
		if prev <= 0 {
			return nil
		}
		out = append(out, (bars[i].Close-prev)/prev)
	}
	return out
}

// pearson is the sample correlation of two equal-length series; flat
// series have no defined correlation and report ok=false.
func pearson(a, b []float64) (float64, bool) {
	n := len(a)
	if n == 0 {
		return 0, false
	}
	var meanA, meanB float64
	for i := range a {
		meanA += a[i]
		meanB += b[i]
	}
	meanA /= float64(n)
	meanB /= float64(n)

	var cov, varA, varB float64
	for i := range a {
		da, db := a[i]-meanA, b[i]-meanB
		cov += da * db
		varA += da * da
		varB += db * db
	}
	if varA == 0 || varB == 0 {
		return 0, false
	}
	return cov / math.Sqrt(varA*varB), true
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
