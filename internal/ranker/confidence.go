package ranker

import (
	"math"

	"github.com/zerotrading/zero/internal/contracts"
	"github.com/zerotrading/zero/internal/strategyconfig"
)

// Curve maps a penalized composite score to bounded confidence: linear up
// to the breakpoint, convex above it, capped strictly below certainty. The
// mapping is heuristic until the calibration feed says otherwise; swapping
// in a calibrated map touches this type and nothing else.
type Curve struct {
	cfg strategyconfig.ConfidenceCurve
}

func NewCurve(cfg strategyconfig.ConfidenceCurve) Curve {
	return Curve{cfg: cfg}
}

// Confidence converts score under the given permission state. YELLOW
// multiplies the mapped value down before the cap; the result is rounded
// to four decimals.
func (c Curve) Confidence(score float64, state contracts.State) contracts.Confidence {
	score = math.Max(0, math.Min(100, score))

	bp := c.cfg.Breakpoint
	var v float64
	if score <= bp {
		v = score / 100
	} else {
		normalized := (score - bp) / (100 - bp)
		v = bp/100 + c.cfg.Slope*math.Pow(normalized, c.cfg.Exponent)
	}

	if state == contracts.StateYellow {
		v *= c.cfg.YellowMultiplier
	}

	v = math.Min(c.cfg.Cap, v)
	return contracts.Confidence(math.Round(v*10000) / 10000)
}
