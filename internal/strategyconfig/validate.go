package strategyconfig

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"time"
)

// ValidationError is a fatal config violation (startup abort).
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Warning is a recommended-constraint violation (logged, not fatal).
type Warning struct {
	Code    string
	Message string
}

// Validate checks all required constraints. Any error here must abort
// startup; a half-validated strategy file never reaches an engine.
func Validate(cfg *Config) error {
	// === Meta ===
	if cfg.Meta.StrategyID == "" {
		return ValidationError{"meta.strategy_id", "required"}
	}

	// === Session ===
	if cfg.Session.Timezone == "" {
		return ValidationError{"session.timezone", "required"}
	}
	if _, err := time.LoadLocation(cfg.Session.Timezone); err != nil {
		return ValidationError{"session.timezone", fmt.Sprintf("unknown timezone %q", cfg.Session.Timezone)}
	}
	if err := validateHHMM(cfg.Session.Open); err != nil {
		return ValidationError{"session.open", err.Error()}
	}
	if err := validateHHMM(cfg.Session.Close); err != nil {
		return ValidationError{"session.close", err.Error()}
	}
	if err := validateHHMM(cfg.Session.LunchEnd); err != nil {
		return ValidationError{"session.lunch_end", err.Error()}
	}
	if err := validateHHMM(cfg.Session.PrimeEnd); err != nil {
		return ValidationError{"session.prime_end", err.Error()}
	}
	if cfg.Session.OpeningMinutes <= 0 {
		return ValidationError{"session.opening_minutes", "must be > 0"}
	}

	// Cut points must be strictly increasing inside the session so the
	// window classification is total: no minute can fall through a gap.
	cp := cfg.Session.CutPoints()
	if cp.Open >= cp.OpeningEnd || cp.OpeningEnd >= cp.LunchEnd || cp.LunchEnd >= cp.PrimeEnd || cp.PrimeEnd >= cp.Close {
		return ValidationError{
			Field: "session",
			Message: fmt.Sprintf("cut points must be strictly increasing: open=%d opening_end=%d lunch_end=%d prime_end=%d close=%d",
				cp.Open, cp.OpeningEnd, cp.LunchEnd, cp.PrimeEnd, cp.Close),
		}
	}

	// === Regime ===
	if cfg.Regime.Volatility.ProxySymbol == "" {
		return ValidationError{"regime.volatility.proxy_symbol", "required"}
	}
	if cfg.Regime.Volatility.Scale <= 0 {
		return ValidationError{"regime.volatility.scale", "must be > 0"}
	}
	if cfg.Regime.Volatility.Elevated <= 0 {
		return ValidationError{"regime.volatility.elevated", "must be > 0"}
	}
	if cfg.Regime.Volatility.High <= cfg.Regime.Volatility.Elevated {
		return ValidationError{
			Field:   "regime.volatility.high",
			Message: fmt.Sprintf("must be > elevated (%.1f), got %.1f", cfg.Regime.Volatility.Elevated, cfg.Regime.Volatility.High),
		}
	}

	// === Universe ===
	if len(cfg.Universe.Tickers) == 0 {
		return ValidationError{"universe.tickers", "required"}
	}

	// === Horizons ===
	for _, hz := range []struct {
		name string
		p    HorizonParams
	}{
		{"h30", cfg.Horizons.H30},
		{"h2h", cfg.Horizons.H2H},
		{"hday", cfg.Horizons.HDay},
		{"hweek", cfg.Horizons.HWeek},
	} {
		if hz.p.LookbackMinutes <= 0 {
			return ValidationError{fmt.Sprintf("horizons.%s.lookback_minutes", hz.name), "must be > 0"}
		}
		if hz.p.StopATR <= 0 {
			return ValidationError{fmt.Sprintf("horizons.%s.stop_atr", hz.name), "must be > 0"}
		}
		if hz.p.TargetATR <= hz.p.StopATR {
			return ValidationError{
				Field:   fmt.Sprintf("horizons.%s.target_atr", hz.name),
				Message: fmt.Sprintf("must be > stop_atr (%.2f), got %.2f", hz.p.StopATR, hz.p.TargetATR),
			}
		}
	}

	// === Scanner ===
	f := cfg.Scanner.Filters
	if f.MinAvgVolume <= 0 {
		return ValidationError{"scanner.filters.min_avg_volume", "must be > 0"}
	}
	if f.MinVolumeRatio <= 0 {
		return ValidationError{"scanner.filters.min_volume_ratio", "must be > 0"}
	}
	if f.RecentBars < 1 {
		return ValidationError{"scanner.filters.recent_bars", "must be >= 1"}
	}
	if f.MinVolumeBars < f.RecentBars {
		return ValidationError{"scanner.filters.min_volume_bars", fmt.Sprintf("must be >= recent_bars (%d)", f.RecentBars)}
	}
	if f.ATRPeriod < 1 {
		return ValidationError{"scanner.filters.atr_period", "must be >= 1"}
	}
	if err := validatePctRange(f.MinATRPct, "scanner.filters.min_atr_pct"); err != nil {
		return err
	}
	if f.PriceMin <= 0 {
		return ValidationError{"scanner.filters.price_min", "must be > 0"}
	}
	if f.PriceMax <= f.PriceMin {
		return ValidationError{"scanner.filters.price_max", fmt.Sprintf("must be > price_min (%.2f)", f.PriceMin)}
	}
	if cfg.Scanner.Structure.Strategy == "" {
		return ValidationError{"scanner.structure.strategy", "required"}
	}
	if cfg.Scanner.Structure.FastSMA < 1 {
		return ValidationError{"scanner.structure.fast_sma", "must be >= 1"}
	}
	if cfg.Scanner.Structure.SlowSMA <= cfg.Scanner.Structure.FastSMA {
		return ValidationError{"scanner.structure.slow_sma", fmt.Sprintf("must be > fast_sma (%d)", cfg.Scanner.Structure.FastSMA)}
	}
	if cfg.Scanner.Structure.MinBars < cfg.Scanner.Structure.FastSMA {
		return ValidationError{"scanner.structure.min_bars", fmt.Sprintf("must be >= fast_sma (%d)", cfg.Scanner.Structure.FastSMA)}
	}

	// === Ranking ===
	if err := validateWeightsSum(cfg.Ranking.Weights.Slice(), 1.0, 1e-9); err != nil {
		return ValidationError{"ranking.weights", err.Error()}
	}
	m := cfg.Ranking.Momentum
	if m.FastEMA < 1 {
		return ValidationError{"ranking.momentum.fast_ema", "must be >= 1"}
	}
	if m.SlowEMA <= m.FastEMA {
		return ValidationError{"ranking.momentum.slow_ema", fmt.Sprintf("must be > fast_ema (%d)", m.FastEMA)}
	}
	if m.BaseFast < 0 || m.BaseSlow < 0 {
		return ValidationError{"ranking.momentum", "base scores must be >= 0"}
	}
	if m.BaseFast+m.BaseSlow > 100 {
		return ValidationError{"ranking.momentum", fmt.Sprintf("base_1m + base_5m must be <= 100, got %.1f", m.BaseFast+m.BaseSlow)}
	}
	if m.SeparationScale < 0 || m.SlopeScale < 0 || m.BonusCap < 0 {
		return ValidationError{"ranking.momentum", "bonus scales and cap must be >= 0"}
	}
	if err := validateLadder(cfg.Ranking.Volatility.Ladder, "ranking.volatility.ladder"); err != nil {
		return err
	}
	if cfg.Ranking.Volatility.ExpansionBonus < 0 {
		return ValidationError{"ranking.volatility.expansion_bonus", "must be >= 0"}
	}
	if err := validateLadder(cfg.Ranking.Liquidity.Ladder, "ranking.liquidity.ladder"); err != nil {
		return err
	}
	if err := validateLadder(cfg.Ranking.Stability.Ladder, "ranking.stability.ladder"); err != nil {
		return err
	}
	if cfg.Ranking.YellowPenalty < 0 {
		return ValidationError{"ranking.yellow_penalty", "must be >= 0"}
	}

	c := cfg.Ranking.Confidence
	if c.Breakpoint <= 0 || c.Breakpoint >= 100 {
		return ValidationError{"ranking.confidence.breakpoint", "must be in range (0, 100)"}
	}
	if c.Slope <= 0 {
		return ValidationError{"ranking.confidence.slope", "must be > 0"}
	}
	if c.Exponent <= 0 {
		return ValidationError{"ranking.confidence.exponent", "must be > 0"}
	}
	if c.Cap <= 0 || c.Cap >= 1 {
		return ValidationError{"ranking.confidence.cap", "must be in range (0, 1)"}
	}
	if c.YellowMultiplier <= 0 || c.YellowMultiplier > 1 {
		return ValidationError{"ranking.confidence.yellow_multiplier", "must be in range (0, 1]"}
	}

	if cfg.Ranking.MinBars < 1 {
		return ValidationError{"ranking.min_bars", "must be >= 1"}
	}
	if cfg.Ranking.TopK < 1 {
		return ValidationError{"ranking.top_k", "must be >= 1"}
	}
	if cfg.Ranking.TopKJournal < 1 || cfg.Ranking.TopKJournal > cfg.Ranking.TopK {
		return ValidationError{"ranking.top_k_journal", fmt.Sprintf("must be in [1, top_k=%d]", cfg.Ranking.TopK)}
	}

	// === Attention ===
	if err := validateWeightsSum(cfg.Attention.Weights.Slice(), 1.0, 1e-9); err != nil {
		return ValidationError{"attention.weights", err.Error()}
	}
	b := cfg.Attention.Buckets
	if b.Unstable <= 0 || b.Stable <= b.Unstable || b.Stable > 100 {
		return ValidationError{"attention.buckets", fmt.Sprintf("must satisfy 0 < unstable < stable <= 100, got unstable=%.1f stable=%.1f", b.Unstable, b.Stable)}
	}
	if len(cfg.Attention.IndexProxies) < 2 {
		return ValidationError{"attention.index_proxies", "need at least 2 index proxies"}
	}
	if len(cfg.Attention.SectorETFs) < 3 {
		return ValidationError{"attention.sector_etfs", "need at least 3 sector ETFs"}
	}
	if cfg.Attention.VolProxy == "" {
		return ValidationError{"attention.vol_proxy", "must name the volatility proxy symbol"}
	}

	return nil
}

// Warn checks recommended constraints (non-fatal).
func Warn(cfg *Config) []Warning {
	var warnings []Warning

	if cfg.Scanner.Filters.MinVolumeRatio < 1.2 {
		warnings = append(warnings, Warning{
			Code:    "LOW_REL_VOLUME",
			Message: "relative volume floor < 1.2x: quiet tape will pass the scan",
		})
	}

	if cfg.Ranking.Confidence.Cap > 0.95 {
		warnings = append(warnings, Warning{
			Code:    "HIGH_CONFIDENCE_CAP",
			Message: "confidence cap > 0.95: output will read as near-certainty",
		})
	}

	if cfg.Session.OpeningMinutes < 30 {
		warnings = append(warnings, Warning{
			Code:    "SHORT_OPENING",
			Message: "opening window < 30 minutes: early chop is treated as tradable",
		})
	}

	if len(cfg.Universe.Tickers) > 500 {
		warnings = append(warnings, Warning{
			Code:    "LARGE_UNIVERSE",
			Message: "universe > 500 tickers: scan cycles may overrun the tick interval",
		})
	}

	return warnings
}

// === Helper Functions ===

func validateHHMM(s string) error {
	re := regexp.MustCompile(`^\d{2}:\d{2}$`)
	if !re.MatchString(s) {
		return errors.New("must be HH:MM format")
	}
	_, err := time.Parse("15:04", s)
	return err
}

func validateWeightsSum(weights []float64, target float64, epsilon float64) error {
	if len(weights) == 0 {
		return errors.New("must not be empty")
	}
	sum := 0.0
	for _, w := range weights {
		sum += w
	}
	if math.Abs(sum-target) > epsilon {
		return fmt.Errorf("must sum to %.2f, got %.4f", target, sum)
	}
	return nil
}

// validatePctRange checks a fraction is within [0, 1].
func validatePctRange(pct float64, field string) error {
	if pct < 0 || pct > 1 {
		return ValidationError{field, "must be in range [0, 1]"}
	}
	return nil
}

func validateLadder(l Ladder, field string) error {
	if len(l.Steps) == 0 {
		return ValidationError{field + ".steps", "required"}
	}
	for i, s := range l.Steps {
		if s.Score < 0 || s.Score > 100 {
			return ValidationError{fmt.Sprintf("%s.steps[%d].score", field, i), "must be in range [0, 100]"}
		}
		if i > 0 && s.Threshold <= l.Steps[i-1].Threshold {
			return ValidationError{fmt.Sprintf("%s.steps[%d].threshold", field, i), "must be strictly increasing"}
		}
	}
	return nil
}
