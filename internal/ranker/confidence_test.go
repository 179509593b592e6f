package ranker

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/zerotrading/zero/internal/contracts"
)

func testCurve() Curve {
	return NewCurve(testRankingCfg().Confidence)
}

func TestConfidenceLinearBelowBreakpoint(t *testing.T) {
	c := testCurve()

	assert.InDelta(t, 0.30, float64(c.Confidence(30, contracts.StateGreen)), 1e-9)
	assert.InDelta(t, 0.50, float64(c.Confidence(50, contracts.StateGreen)), 1e-9)
}

func TestConfidenceConvexAboveBreakpoint(t *testing.T) {
	c := testCurve()

	// 0.5 + 0.45 * ((75-50)/50)^1.5 = 0.6591 after rounding.
	assert.InDelta(t, 0.6591, float64(c.Confidence(75, contracts.StateGreen)), 1e-9)
	assert.InDelta(t, 0.95, float64(c.Confidence(100, contracts.StateGreen)), 1e-9)
}

func TestConfidenceYellowMultiplier(t *testing.T) {
	c := testCurve()

	assert.InDelta(t, 0.5602, float64(c.Confidence(75, contracts.StateYellow)), 1e-9)
	assert.InDelta(t, 0.8075, float64(c.Confidence(100, contracts.StateYellow)), 1e-9)
}

func TestConfidenceClampsScore(t *testing.T) {
	c := testCurve()

	assert.Zero(t, float64(c.Confidence(-10, contracts.StateGreen)))
	assert.InDelta(t, 0.95, float64(c.Confidence(150, contracts.StateGreen)), 1e-9)
}

func TestConfidenceMonotoneAndBounded(t *testing.T) {
	c := testCurve()
	cap := testRankingCfg().Confidence.Cap

	for _, state := range []contracts.State{contracts.StateGreen, contracts.StateYellow} {
		prev := contracts.Confidence(-1)
		for score := 0.0; score <= 100; score++ {
			got := c.Confidence(score, state)
			assert.True(t, got.Bounded(cap), "state %s score %.0f: %v", state, score, got)
			assert.GreaterOrEqual(t, float64(got), float64(prev),
				"confidence must not fall as score rises (state %s, score %.0f)", state, score)
			prev = got
		}
	}
}
