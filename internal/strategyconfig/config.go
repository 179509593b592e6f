package strategyconfig

import "time"

// Config is the complete strategy parameter set for the scan/rank pipeline.
// Every tunable number (thresholds, weights, ladders, bands) lives here;
// engine code never hard-codes a strategy value.
type Config struct {
	Meta      Meta      `yaml:"meta" json:"meta"`
	Session   Session   `yaml:"session" json:"session"`
	Regime    Regime    `yaml:"regime" json:"regime"`
	Universe  Universe  `yaml:"universe" json:"universe"`
	Horizons  Horizons  `yaml:"horizons" json:"horizons"`
	Scanner   Scanner   `yaml:"scanner" json:"scanner"`
	Ranking   Ranking   `yaml:"ranking" json:"ranking"`
	Attention Attention `yaml:"attention" json:"attention"`
}

// Meta identifies the strategy file.
type Meta struct {
	StrategyID  string `yaml:"strategy_id" json:"strategy_id"`
	Version     string `yaml:"version" json:"version"`
	Description string `yaml:"description" json:"description"`
}

// Session describes the exchange session and the intraday window cut points.
// All clocks are HH:MM in the session timezone. The cut points partition the
// session completely: [open, open+opening_minutes) is OPENING, then LUNCH
// until lunch_end, PRIME until prime_end, CLOSING until close.
type Session struct {
	Timezone       string `yaml:"timezone" json:"timezone"`
	Open           string `yaml:"open" json:"open"`   // HH:MM
	Close          string `yaml:"close" json:"close"` // HH:MM
	OpeningMinutes int    `yaml:"opening_minutes" json:"opening_minutes"`
	LunchEnd       string `yaml:"lunch_end" json:"lunch_end"` // HH:MM
	PrimeEnd       string `yaml:"prime_end" json:"prime_end"` // HH:MM
}

// CutPoints are the session window boundaries in minutes since midnight.
type CutPoints struct {
	Open       int
	OpeningEnd int
	LunchEnd   int
	PrimeEnd   int
	Close      int
}

// CutPoints converts the session clocks. Valid only after Validate accepted
// the config; unparseable clocks come back as zero.
func (s Session) CutPoints() CutPoints {
	open := clockMinutes(s.Open)
	return CutPoints{
		Open:       open,
		OpeningEnd: open + s.OpeningMinutes,
		LunchEnd:   clockMinutes(s.LunchEnd),
		PrimeEnd:   clockMinutes(s.PrimeEnd),
		Close:      clockMinutes(s.Close),
	}
}

func clockMinutes(s string) int {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0
	}
	return t.Hour()*60 + t.Minute()
}

// Regime holds the permission-state inputs.
type Regime struct {
	Volatility VolatilityProxy `yaml:"volatility" json:"volatility"`
}

// VolatilityProxy maps the proxy symbol's latest close to a volatility level
// (close * scale) and sets the elevated/high bands on that level.
type VolatilityProxy struct {
	ProxySymbol string  `yaml:"proxy_symbol" json:"proxy_symbol"`
	Scale       float64 `yaml:"scale" json:"scale"`
	Elevated    float64 `yaml:"elevated" json:"elevated"`
	High        float64 `yaml:"high" json:"high"` // must be > elevated
}

// Universe is the static scan universe.
type Universe struct {
	Tickers []string `yaml:"tickers" json:"tickers"`
}

// Horizons carries per-horizon lookbacks and exit multiples.
// Struct, not map, so the config hash stays reproducible.
type Horizons struct {
	H30   HorizonParams `yaml:"h30" json:"h30"`
	H2H   HorizonParams `yaml:"h2h" json:"h2h"`
	HDay  HorizonParams `yaml:"hday" json:"hday"`
	HWeek HorizonParams `yaml:"hweek" json:"hweek"`
}

type HorizonParams struct {
	LookbackMinutes int     `yaml:"lookback_minutes" json:"lookback_minutes"`
	TargetATR       float64 `yaml:"target_atr" json:"target_atr"` // exit target, ATR multiples
	StopATR         float64 `yaml:"stop_atr" json:"stop_atr"`     // exit stop, ATR multiples
}

// ByCode returns the parameter block for a horizon code (H30, H2H, HDAY, HWEEK).
func (h Horizons) ByCode(code string) (HorizonParams, bool) {
	switch code {
	case "H30":
		return h.H30, true
	case "H2H":
		return h.H2H, true
	case "HDAY":
		return h.HDay, true
	case "HWEEK":
		return h.HWeek, true
	}
	return HorizonParams{}, false
}

// Scanner holds the three-stage candidate filter parameters.
type Scanner struct {
	Filters   ScanFilters `yaml:"filters" json:"filters"`
	Structure Structure   `yaml:"structure" json:"structure"`
}

// ScanFilters covers the liquidity and volatility stages. Relative volume is
// the mean of the last recent_bars bars over the mean of the whole window.
type ScanFilters struct {
	MinAvgVolume   int64   `yaml:"min_avg_volume" json:"min_avg_volume"` // shares per bar
	MinVolumeRatio float64 `yaml:"min_volume_ratio" json:"min_volume_ratio"`
	RecentBars     int     `yaml:"recent_bars" json:"recent_bars"`
	MinVolumeBars  int     `yaml:"min_volume_bars" json:"min_volume_bars"`
	ATRPeriod      int     `yaml:"atr_period" json:"atr_period"`
	MinATRPct      float64 `yaml:"min_atr_pct" json:"min_atr_pct"` // fraction of price
	PriceMin       float64 `yaml:"price_min" json:"price_min"`
	PriceMax       float64 `yaml:"price_max" json:"price_max"`
}

// Structure configures the pluggable structure stage. Strategy names the
// implementation; trend_alignment is the default.
type Structure struct {
	Strategy string `yaml:"strategy" json:"strategy"`
	FastSMA  int    `yaml:"fast_sma" json:"fast_sma"`
	SlowSMA  int    `yaml:"slow_sma" json:"slow_sma"`
	MinBars  int    `yaml:"min_bars" json:"min_bars"`
}

// Ranking holds the scoring weights, component ladders, the YELLOW penalty,
// and the confidence curve.
type Ranking struct {
	Weights       RankWeights     `yaml:"weights" json:"weights"`
	Momentum      MomentumScoring `yaml:"momentum" json:"momentum"`
	Volatility    VolScoring      `yaml:"volatility" json:"volatility"`
	Liquidity     LiqScoring      `yaml:"liquidity" json:"liquidity"`
	Stability     StabScoring     `yaml:"stability" json:"stability"`
	YellowPenalty float64         `yaml:"yellow_penalty" json:"yellow_penalty"` // flat points off the composite
	Confidence    ConfidenceCurve `yaml:"confidence" json:"confidence"`
	MinBars       int             `yaml:"min_bars" json:"min_bars"` // per timeframe
	TopK          int             `yaml:"top_k" json:"top_k"`
	TopKJournal   int             `yaml:"top_k_journal" json:"top_k_journal"`
}

// RankWeights must sum to 1.0 (checked with epsilon 1e-9).
type RankWeights struct {
	Momentum   float64 `yaml:"momentum" json:"momentum"`
	Volatility float64 `yaml:"volatility" json:"volatility"`
	Liquidity  float64 `yaml:"liquidity" json:"liquidity"`
	Stability  float64 `yaml:"stability" json:"stability"`
}

func (w RankWeights) Sum() float64 {
	return w.Momentum + w.Volatility + w.Liquidity + w.Stability
}

func (w RankWeights) Slice() []float64 {
	return []float64{w.Momentum, w.Volatility, w.Liquidity, w.Stability}
}

// MomentumScoring: alignment is all-or-nothing across both timeframes; the
// bases apply only when both are aligned, and the separation/slope bonuses
// refine the base rather than substitute for alignment.
type MomentumScoring struct {
	FastEMA          int     `yaml:"fast_ema" json:"fast_ema"`
	SlowEMA          int     `yaml:"slow_ema" json:"slow_ema"`
	BaseFast         float64 `yaml:"base_1m" json:"base_1m"`
	BaseSlow         float64 `yaml:"base_5m" json:"base_5m"`
	SeparationMinPct float64 `yaml:"separation_min_pct" json:"separation_min_pct"`
	SeparationScale  float64 `yaml:"separation_scale" json:"separation_scale"`
	SlopeScale       float64 `yaml:"slope_scale" json:"slope_scale"`
	BonusCap         float64 `yaml:"bonus_cap" json:"bonus_cap"` // cap per individual bonus
}

// VolScoring scores ATR as a percentage of price on a rising ladder, with a
// bonus when recent ATR expands past trailing ATR.
type VolScoring struct {
	Ladder          Ladder  `yaml:"ladder" json:"ladder"`
	ExpansionMinPct float64 `yaml:"expansion_min_pct" json:"expansion_min_pct"`
	ExpansionBonus  float64 `yaml:"expansion_bonus" json:"expansion_bonus"`
}

// LiqScoring scores relative volume, averaged across timeframes, on a rising
// ladder.
type LiqScoring struct {
	Ladder Ladder `yaml:"ladder" json:"ladder"`
}

// StabScoring scores 1m-vs-5m EMA slope divergence on a falling ladder:
// lower divergence scores higher.
type StabScoring struct {
	Ladder Ladder `yaml:"ladder" json:"ladder"`
}

// LadderStep maps a threshold to a score.
type LadderStep struct {
	Threshold float64 `yaml:"threshold" json:"threshold"`
	Score     float64 `yaml:"score" json:"score"`
}

// Ladder is an ordered list of steps. Thresholds must be strictly increasing.
type Ladder struct {
	Steps []LadderStep `yaml:"steps" json:"steps"`
}

// Rung returns the score of the highest step whose threshold is <= v, or 0.
func (l Ladder) Rung(v float64) float64 {
	score := 0.0
	for _, s := range l.Steps {
		if v >= s.Threshold {
			score = s.Score
		}
	}
	return score
}

// RungBelow returns the score of the first step whose threshold is > v, or 0.
// For metrics where smaller is better.
func (l Ladder) RungBelow(v float64) float64 {
	for _, s := range l.Steps {
		if v < s.Threshold {
			return s.Score
		}
	}
	return 0
}

// ConfidenceCurve maps a penalized composite score to bounded confidence.
// At or below the breakpoint the map is linear (score/100); above it the
// convex branch breakpoint/100 + slope*((score-breakpoint)/(100-breakpoint))^exponent
// takes over. YELLOW multiplies the result; the cap is a hard ceiling.
type ConfidenceCurve struct {
	Breakpoint       float64 `yaml:"breakpoint" json:"breakpoint"`
	Slope            float64 `yaml:"slope" json:"slope"`
	Exponent         float64 `yaml:"exponent" json:"exponent"`
	Cap              float64 `yaml:"cap" json:"cap"` // must stay < 1.0
	YellowMultiplier float64 `yaml:"yellow_multiplier" json:"yellow_multiplier"`
}

// Attention holds the market-attention stability weights, bucket bands, and
// the proxy symbols the engine watches.
type Attention struct {
	Weights      AttentionWeights `yaml:"weights" json:"weights"`
	Buckets      AttentionBuckets `yaml:"buckets" json:"buckets"`
	IndexProxies []string         `yaml:"index_proxies" json:"index_proxies"`
	SectorETFs   []string         `yaml:"sector_etfs" json:"sector_etfs"`
	VolProxy     string           `yaml:"vol_proxy" json:"vol_proxy"`
}

// AttentionWeights must sum to 1.0.
type AttentionWeights struct {
	Leadership  float64 `yaml:"leadership" json:"leadership"`
	Dispersion  float64 `yaml:"dispersion" json:"dispersion"`
	VolPressure float64 `yaml:"vol_pressure" json:"vol_pressure"`
	Correlation float64 `yaml:"correlation" json:"correlation"`
}

func (w AttentionWeights) Sum() float64 {
	return w.Leadership + w.Dispersion + w.VolPressure + w.Correlation
}

func (w AttentionWeights) Slice() []float64 {
	return []float64{w.Leadership, w.Dispersion, w.VolPressure, w.Correlation}
}

// AttentionBuckets: score >= stable is STABLE, >= unstable is UNSTABLE,
// everything below is CHAOTIC.
type AttentionBuckets struct {
	Stable   float64 `yaml:"stable" json:"stable"`
	Unstable float64 `yaml:"unstable" json:"unstable"`
}

// DecisionSnapshot pins the exact parameter set a cycle ran with, for audit.
type DecisionSnapshot struct {
	ConfigHash string    `json:"config_hash"`
	ConfigYAML string    `json:"config_yaml"`
	StrategyID string    `json:"strategy_id"`
	GitCommit  string    `json:"git_commit"`
	CreatedAt  time.Time `json:"created_at"`
}
