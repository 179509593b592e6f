package ranker

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zerotrading/zero/internal/contracts"
	"github.com/zerotrading/zero/internal/metrics"
	"github.com/zerotrading/zero/internal/strategyconfig"
)

type candleCall struct {
	ticker   string
	tf       contracts.Timeframe
	lookback int
}

// fakeCandles serves canned series keyed by ticker and timeframe and
// records every request.
type fakeCandles struct {
	mu    sync.Mutex
	bars  map[string][]contracts.Candle
	errs  map[string]error
	calls []candleCall
}

func newFakeCandles() *fakeCandles {
	return &fakeCandles{
		bars: make(map[string][]contracts.Candle),
		errs: make(map[string]error),
	}
}

func (f *fakeCandles) put(ticker string, tf contracts.Timeframe, bars []contracts.Candle) {
	f.bars[ticker+"|"+string(tf)] = bars
}

func (f *fakeCandles) Candles(_ context.Context, ticker string, tf contracts.Timeframe, lookback int) ([]contracts.Candle, error) {
	f.mu.Lock()
	f.calls = append(f.calls, candleCall{ticker: ticker, tf: tf, lookback: lookback})
	f.mu.Unlock()

	if err := f.errs[ticker]; err != nil {
		return nil, err
	}
	bars, ok := f.bars[ticker+"|"+string(tf)]
	if !ok {
		return nil, contracts.ErrNoData
	}
	if lookback < len(bars) {
		bars = bars[len(bars)-lookback:]
	}
	return bars, nil
}

func (f *fakeCandles) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// fixedShrink is a canned calibration feed that counts consultations.
type fixedShrink struct {
	factor float64
	ok     bool
	calls  int
}

func (s *fixedShrink) Shrink(context.Context, contracts.Horizon, contracts.State, contracts.AttentionBucket) (float64, bool) {
	s.calls++
	return s.factor, s.ok
}

func testHorizons() strategyconfig.Horizons {
	return strategyconfig.Horizons{
		H30:   strategyconfig.HorizonParams{LookbackMinutes: 60, TargetATR: 1.5, StopATR: 0.75},
		H2H:   strategyconfig.HorizonParams{LookbackMinutes: 240, TargetATR: 2.0, StopATR: 1.0},
		HDay:  strategyconfig.HorizonParams{LookbackMinutes: 1440, TargetATR: 3.0, StopATR: 1.5},
		HWeek: strategyconfig.HorizonParams{LookbackMinutes: 10080, TargetATR: 5.0, StopATR: 2.5},
	}
}

func testRankEngine(t *testing.T, src contracts.CandleSource, cal contracts.CalibrationSource, cfg strategyconfig.Ranking) *Engine {
	t.Helper()
	return NewEngine(src, cfg, testHorizons(), cal, 4,
		metrics.NewWith(prometheus.NewRegistry()), testLogger())
}

// seedAligned loads both resolutions with a rising, aligned series whose
// final-bar volume sets the liquidity tier.
func seedAligned(src *fakeCandles, ticker string, lastVol int64) {
	src.put(ticker, contracts.Timeframe1m, risingBars(100, 100, 0.5, 100000, lastVol))
	src.put(ticker, contracts.Timeframe5m, risingBars(20, 100, 0.5, 100000, lastVol))
}

func greenState() contracts.MarketState {
	return contracts.MarketState{
		State:      contracts.StateGreen,
		Reason:     contracts.ReasonPrimeWindow,
		TimeWindow: contracts.WindowPrime,
		Timestamp:  time.Date(2025, 6, 3, 18, 0, 0, 0, time.UTC),
	}
}

func yellowState() contracts.MarketState {
	s := greenState()
	s.State = contracts.StateYellow
	s.Reason = contracts.ReasonElevatedVolatility
	return s
}

func redState() contracts.MarketState {
	s := greenState()
	s.State = contracts.StateRed
	s.Reason = contracts.ReasonVolatilityHalt
	return s
}

func stableAttention() contracts.AttentionState {
	return contracts.AttentionState{
		StabilityScore: 80,
		Bucket:         contracts.BucketStable,
		RiskState:      contracts.RiskOn,
		Timestamp:      time.Date(2025, 6, 3, 18, 0, 0, 0, time.UTC),
	}
}

func attentionWith(b contracts.AttentionBucket) contracts.AttentionState {
	a := stableAttention()
	a.Bucket = b
	return a
}

func candidateList(h contracts.Horizon, tickers ...string) *contracts.CandidateList {
	list := &contracts.CandidateList{
		Horizon:  h,
		ScanTime: time.Date(2025, 6, 3, 18, 0, 0, 0, time.UTC),
		CycleID:  "cycle-0601",
		Outcome:  contracts.OutcomeCompleted,
	}
	for _, ticker := range tickers {
		list.Candidates = append(list.Candidates, contracts.Candidate{
			Ticker:      ticker,
			Horizon:     h,
			PassReasons: []string{"all stages passed"},
		})
	}
	return list
}

func TestRankRedVetoSkipsWithoutFetching(t *testing.T) {
	src := newFakeCandles()
	seedAligned(src, "ZGOOD", 300000)
	eng := testRankEngine(t, src, nil, testRankingCfg())

	rank, err := eng.Rank(context.Background(), candidateList(contracts.Horizon2H, "ZGOOD"), redState(), stableAttention())
	require.NoError(t, err)

	assert.Equal(t, contracts.OutcomeSkippedRed, rank.Outcome)
	assert.Empty(t, rank.Opportunities)
	assert.Equal(t, 1, rank.TotalCandidates)
	assert.Zero(t, src.callCount(), "RED must veto before any data leaves the store")
}

func TestRankAttentionGatesHorizons(t *testing.T) {
	cases := []struct {
		name    string
		bucket  contracts.AttentionBucket
		horizon contracts.Horizon
		gated   bool
	}{
		{"chaotic blocks 2h", contracts.BucketChaotic, contracts.Horizon2H, true},
		{"chaotic allows 30m", contracts.BucketChaotic, contracts.Horizon30, false},
		{"unstable blocks weekly", contracts.BucketUnstable, contracts.HorizonWeek, true},
		{"unstable allows daily", contracts.BucketUnstable, contracts.HorizonDay, false},
		{"stable allows weekly", contracts.BucketStable, contracts.HorizonWeek, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			src := newFakeCandles()
			seedAligned(src, "ZGOOD", 300000)
			eng := testRankEngine(t, src, nil, testRankingCfg())

			rank, err := eng.Rank(context.Background(), candidateList(tc.horizon, "ZGOOD"), greenState(), attentionWith(tc.bucket))
			require.NoError(t, err)

			if tc.gated {
				assert.Equal(t, contracts.OutcomeSkippedAttention, rank.Outcome)
				assert.Empty(t, rank.Opportunities)
				assert.Zero(t, src.callCount(), "gated horizons must not fetch")
			} else {
				assert.Equal(t, contracts.OutcomeCompleted, rank.Outcome)
				assert.Len(t, rank.Opportunities, 1)
			}
		})
	}
}

func TestRankScoresSortsAndFillsFields(t *testing.T) {
	src := newFakeCandles()
	seedAligned(src, "ZMID", 120000) // ordinary volume, lower liquidity tier
	seedAligned(src, "ZTOP", 300000) // 2.7x surge
	eng := testRankEngine(t, src, nil, testRankingCfg())

	state := greenState()
	rank, err := eng.Rank(context.Background(), candidateList(contracts.Horizon2H, "ZMID", "ZTOP"), state, stableAttention())
	require.NoError(t, err)

	assert.Equal(t, contracts.OutcomeCompleted, rank.Outcome)
	assert.Equal(t, "cycle-0601", rank.CycleID)
	assert.Equal(t, 2, rank.TotalCandidates)
	require.Len(t, rank.Opportunities, 2)

	assert.Equal(t, "ZTOP", rank.Opportunities[0].Ticker, "higher liquidity must rank first")
	assert.Equal(t, "ZMID", rank.Opportunities[1].Ticker)
	assert.Greater(t, float64(rank.Opportunities[0].Confidence), float64(rank.Opportunities[1].Confidence))

	for _, o := range rank.Opportunities {
		assert.Equal(t, contracts.Horizon2H, o.Horizon)
		assert.Equal(t, 2.0, o.TargetATR)
		assert.Equal(t, 1.0, o.StopATR)
		assert.Equal(t, state, o.MarketStateAtRank)
		assert.NotEmpty(t, o.Explanation, "every opportunity must say why")
		assert.True(t, o.Confidence.Bounded(0.95))
		assert.Greater(t, o.Composite, 0.0)
		assert.Nil(t, o.Calibration, "no calibration source, no calibration stamp")
	}
}

func TestRankExcludesGapsInsteadOfZeroScoring(t *testing.T) {
	src := newFakeCandles()
	seedAligned(src, "ZGOOD", 300000)
	src.put("ZSHORT", contracts.Timeframe1m, risingBars(10, 100, 0.5, 100000, 100000))
	src.put("ZSHORT", contracts.Timeframe5m, risingBars(10, 100, 0.5, 100000, 100000))
	// ZGHOST has no data at all.
	eng := testRankEngine(t, src, nil, testRankingCfg())

	rank, err := eng.Rank(context.Background(), candidateList(contracts.Horizon2H, "ZGOOD", "ZSHORT", "ZGHOST"), greenState(), stableAttention())
	require.NoError(t, err, "per-ticker gaps must not abort the cycle")

	assert.Equal(t, contracts.OutcomeCompleted, rank.Outcome)
	assert.Equal(t, 3, rank.TotalCandidates)
	require.Len(t, rank.Opportunities, 1)
	assert.Equal(t, "ZGOOD", rank.Opportunities[0].Ticker)
}

func TestRankAbortsOnUpstreamFailure(t *testing.T) {
	src := newFakeCandles()
	seedAligned(src, "ZGOOD", 300000)
	src.errs["ZBAD"] = fmt.Errorf("snapshot read: %w", contracts.ErrUpstreamUnavailable)
	eng := testRankEngine(t, src, nil, testRankingCfg())

	rank, err := eng.Rank(context.Background(), candidateList(contracts.Horizon2H, "ZGOOD", "ZBAD"), greenState(), stableAttention())
	require.Error(t, err)
	assert.ErrorIs(t, err, contracts.ErrUpstreamUnavailable)
	assert.ErrorContains(t, err, "rank")
	assert.Empty(t, rank.Opportunities, "an aborted rank publishes nothing")
}

func TestRankEmptyCandidateList(t *testing.T) {
	src := newFakeCandles()
	eng := testRankEngine(t, src, nil, testRankingCfg())

	rank, err := eng.Rank(context.Background(), candidateList(contracts.Horizon30), greenState(), stableAttention())
	require.NoError(t, err)

	assert.Equal(t, contracts.OutcomeCompleted, rank.Outcome)
	assert.Empty(t, rank.Opportunities)
	assert.Zero(t, rank.TotalCandidates)
	assert.Zero(t, src.callCount())
}

func TestRankAppliesCalibrationShrink(t *testing.T) {
	src := newFakeCandles()
	seedAligned(src, "ZGOOD", 300000)

	baseline, err := testRankEngine(t, src, nil, testRankingCfg()).
		Rank(context.Background(), candidateList(contracts.Horizon2H, "ZGOOD"), greenState(), stableAttention())
	require.NoError(t, err)
	require.Len(t, baseline.Opportunities, 1)

	cal := &fixedShrink{factor: 0.8, ok: true}
	shrunk, err := testRankEngine(t, src, cal, testRankingCfg()).
		Rank(context.Background(), candidateList(contracts.Horizon2H, "ZGOOD"), greenState(), stableAttention())
	require.NoError(t, err)
	require.Len(t, shrunk.Opportunities, 1)

	base := baseline.Opportunities[0]
	got := shrunk.Opportunities[0]

	want := math.Round(float64(base.Confidence)*0.8*10000) / 10000
	assert.InDelta(t, want, float64(got.Confidence), 1e-9)
	require.NotNil(t, got.Calibration)
	assert.Equal(t, "H2H_GREEN_STABLE", got.Calibration.Bucket)
	assert.InDelta(t, 0.8, got.Calibration.Shrink, 1e-9)
	assert.Contains(t, got.Explanation[len(got.Explanation)-1], "calibration shrink 0.80")
	assert.Equal(t, 1, cal.calls, "one bucket per rank, one lookup per rank")
}

func TestRankIgnoresNeutralShrink(t *testing.T) {
	src := newFakeCandles()
	seedAligned(src, "ZGOOD", 300000)
	cal := &fixedShrink{factor: 1.0, ok: true}
	eng := testRankEngine(t, src, cal, testRankingCfg())

	rank, err := eng.Rank(context.Background(), candidateList(contracts.Horizon2H, "ZGOOD"), greenState(), stableAttention())
	require.NoError(t, err)
	require.Len(t, rank.Opportunities, 1)

	assert.Nil(t, rank.Opportunities[0].Calibration, "a factor of 1.0 changes nothing and stamps nothing")
}

func TestRankTopKKeepsTheBest(t *testing.T) {
	src := newFakeCandles()
	seedAligned(src, "ZTOP", 300000) // liquidity 100
	seedAligned(src, "ZMID", 150000) // liquidity mid-tier
	seedAligned(src, "ZLOW", 100000) // flat volume
	cfg := testRankingCfg()
	cfg.TopK = 2
	eng := testRankEngine(t, src, nil, cfg)

	rank, err := eng.Rank(context.Background(), candidateList(contracts.Horizon2H, "ZLOW", "ZMID", "ZTOP"), greenState(), stableAttention())
	require.NoError(t, err)

	require.Len(t, rank.Opportunities, 2)
	assert.Equal(t, "ZTOP", rank.Opportunities[0].Ticker)
	assert.Equal(t, "ZMID", rank.Opportunities[1].Ticker)
	assert.Equal(t, 3, rank.TotalCandidates, "the count reflects evaluation, not truncation")
}

func TestRankTieBreaksOnTicker(t *testing.T) {
	src := newFakeCandles()
	seedAligned(src, "ZB", 300000)
	seedAligned(src, "ZA", 300000) // identical series, identical confidence
	eng := testRankEngine(t, src, nil, testRankingCfg())

	rank, err := eng.Rank(context.Background(), candidateList(contracts.Horizon2H, "ZB", "ZA"), greenState(), stableAttention())
	require.NoError(t, err)

	require.Len(t, rank.Opportunities, 2)
	assert.Equal(t, "ZA", rank.Opportunities[0].Ticker)
	assert.Equal(t, "ZB", rank.Opportunities[1].Ticker)
}

func TestRankYellowLowersConfidence(t *testing.T) {
	src := newFakeCandles()
	seedAligned(src, "ZGOOD", 300000)
	eng := testRankEngine(t, src, nil, testRankingCfg())

	green, err := eng.Rank(context.Background(), candidateList(contracts.Horizon2H, "ZGOOD"), greenState(), stableAttention())
	require.NoError(t, err)
	yellow, err := eng.Rank(context.Background(), candidateList(contracts.Horizon2H, "ZGOOD"), yellowState(), stableAttention())
	require.NoError(t, err)

	require.Len(t, green.Opportunities, 1)
	require.Len(t, yellow.Opportunities, 1)

	g, y := green.Opportunities[0], yellow.Opportunities[0]
	assert.Less(t, float64(y.Confidence), float64(g.Confidence))
	assert.Less(t, y.Composite, g.Composite)
	assert.Equal(t, contracts.StateYellow, y.MarketStateAtRank.State)

	var penalized bool
	for _, line := range y.Explanation {
		if strings.Contains(line, "YELLOW penalty") {
			penalized = true
		}
	}
	assert.True(t, penalized, "the YELLOW haircut must be explained")
}

func TestRankFetchesMatchingSpans(t *testing.T) {
	src := newFakeCandles()
	seedAligned(src, "ZGOOD", 300000)
	eng := testRankEngine(t, src, nil, testRankingCfg())

	_, err := eng.Rank(context.Background(), candidateList(contracts.Horizon2H, "ZGOOD"), greenState(), stableAttention())
	require.NoError(t, err)

	require.Len(t, src.calls, 2)
	assert.Equal(t, candleCall{ticker: "ZGOOD", tf: contracts.Timeframe1m, lookback: 100}, src.calls[0])
	assert.Equal(t, candleCall{ticker: "ZGOOD", tf: contracts.Timeframe5m, lookback: 20}, src.calls[1])
}

func TestRankRejectsUnknownHorizon(t *testing.T) {
	eng := testRankEngine(t, newFakeCandles(), nil, testRankingCfg())

	_, err := eng.Rank(context.Background(), candidateList(contracts.Horizon("H99"), "ZGOOD"), greenState(), stableAttention())
	require.Error(t, err)
	assert.ErrorIs(t, err, contracts.ErrInvariantViolation)
}
