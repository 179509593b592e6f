// Package ranker converts active candidates into explainable, bounded,
// regime-conditioned opportunities. Scores say how good the setup looks;
// confidence says how much that claim may be trusted, and it is always
// capped strictly below certainty.
package ranker

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/zerotrading/zero/internal/contracts"
	"github.com/zerotrading/zero/internal/metrics"
	"github.com/zerotrading/zero/internal/strategyconfig"
	"github.com/zerotrading/zero/pkg/logger"
)

// Engine scores one candidate list: fan the candidates out over a bounded
// worker pool, extract features per ticker, score, convert to confidence,
// shrink by calibration, and order deterministically.
type Engine struct {
	candles     contracts.CandleSource
	scorer      *Scorer
	curve       Curve
	calibration contracts.CalibrationSource
	horizons    strategyconfig.Horizons
	cfg         strategyconfig.Ranking
	workers     int
	metrics     *metrics.Recorder
	logger      *logger.Logger
}

// rankResult is one candidate's outcome inside a rank fan-out.
type rankResult struct {
	ticker      string
	opportunity *contracts.Opportunity
	reason      string // exclusion reason when opportunity is nil
	errored     bool   // skippable fetch failure
	err         error  // cycle-level failure, aborts the rank
}

// NewEngine builds the rank engine. calibration may be nil; the pipeline
// then runs uncalibrated, which is the expected initial state.
func NewEngine(candles contracts.CandleSource, cfg strategyconfig.Ranking, horizons strategyconfig.Horizons, calibration contracts.CalibrationSource, workers int, rec *metrics.Recorder, log *logger.Logger) *Engine {
	if workers < 1 {
		workers = 1
	}
	return &Engine{
		candles:     candles,
		scorer:      NewScorer(cfg),
		curve:       NewCurve(cfg.Confidence),
		calibration: calibration,
		horizons:    horizons,
		cfg:         cfg,
		workers:     workers,
		metrics:     rec,
		logger:      log,
	}
}

// Rank scores every candidate in the list under the given market and
// attention state. The RED veto is defended here regardless of what
// upstream already checked: no opportunity may exist under RED. Chaotic
// attention gates everything but the shortest horizon; unstable attention
// gates the weekly one. Candidates with insufficient or missing history
// are excluded, never zero-scored; a cycle-level store failure aborts with
// an error so the caller keeps the previous rank instead of a false empty.
func (e *Engine) Rank(ctx context.Context, candidates *contracts.CandidateList, state contracts.MarketState, attention contracts.AttentionState) (contracts.OpportunityRank, error) {
	rank := contracts.OpportunityRank{
		Horizon:         candidates.Horizon,
		RankTime:        time.Now().UTC(),
		TotalCandidates: len(candidates.Candidates),
		CycleID:         candidates.CycleID,
		Outcome:         contracts.OutcomeCompleted,
	}

	params, ok := e.horizons.ByCode(string(candidates.Horizon))
	if !ok {
		return rank, fmt.Errorf("rank: %w: horizon %q", contracts.ErrInvariantViolation, candidates.Horizon)
	}

	if state.IsRed() {
		rank.Outcome = contracts.OutcomeSkippedRed
		return rank, nil
	}
	if !attention.AllowsHorizon(candidates.Horizon) {
		rank.Outcome = contracts.OutcomeSkippedAttention
		return rank, nil
	}

	tickers := candidates.Tickers()

	rankCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	tickerCh := make(chan string, len(tickers))
	resultCh := make(chan rankResult, len(tickers))

	var wg sync.WaitGroup
	for i := 0; i < e.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.scoreWorker(rankCtx, tickerCh, resultCh, candidates.Horizon, params, state)
		}()
	}

	for _, ticker := range tickers {
		tickerCh <- ticker
	}
	close(tickerCh)

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	var abort error
	for res := range resultCh {
		switch {
		case res.err != nil:
			// First cycle-level failure cancels the fan-out; keep
			// draining so the workers can exit.
			if abort == nil {
				abort = res.err
				cancel()
			}
		case res.opportunity != nil:
			rank.Opportunities = append(rank.Opportunities, *res.opportunity)
		default:
			// Exclusion, not a zero score: partial data never ranks.
			e.logger.WithFields(map[string]interface{}{
				"ticker": res.ticker,
				"reason": res.reason,
			}).Debug("Candidate excluded from ranking")
			if res.errored {
				e.metrics.RecordTickerSkipped(ServiceName, "history_unavailable")
			}
		}
	}

	if abort != nil {
		return contracts.OpportunityRank{}, fmt.Errorf("rank %s: %w", candidates.Horizon, abort)
	}

	e.applyCalibration(ctx, &rank, state, attention)

	// Confidence descending, ticker ascending on ties: workers finish in
	// arbitrary order, the published order must not.
	sort.Slice(rank.Opportunities, func(i, j int) bool {
		a, b := rank.Opportunities[i], rank.Opportunities[j]
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		return a.Ticker < b.Ticker
	})

	if e.cfg.TopK > 0 && len(rank.Opportunities) > e.cfg.TopK {
		rank.Opportunities = rank.Opportunities[:e.cfg.TopK]
	}

	return rank, nil
}

func (e *Engine) scoreWorker(ctx context.Context, tickers <-chan string, results chan<- rankResult, h contracts.Horizon, params strategyconfig.HorizonParams, state contracts.MarketState) {
	for ticker := range tickers {
		select {
		case <-ctx.Done():
			results <- rankResult{ticker: ticker, err: ctx.Err()}
			return
		default:
		}
		results <- e.score(ctx, ticker, h, params, state)
	}
}

// score evaluates one candidate end to end: fetch both resolutions,
// extract features, score, map to confidence.
func (e *Engine) score(ctx context.Context, ticker string, h contracts.Horizon, params strategyconfig.HorizonParams, state contracts.MarketState) rankResult {
	bars1m, err := e.candles.Candles(ctx, ticker, contracts.Timeframe1m, rankLookback(contracts.Timeframe1m, e.cfg.MinBars))
	if err != nil {
		return e.fetchFailure(ticker, err)
	}
	bars5m, err := e.candles.Candles(ctx, ticker, contracts.Timeframe5m, rankLookback(contracts.Timeframe5m, e.cfg.MinBars))
	if err != nil {
		return e.fetchFailure(ticker, err)
	}

	if len(bars1m) < e.cfg.MinBars || len(bars5m) < e.cfg.MinBars {
		return rankResult{ticker: ticker, reason: fmt.Sprintf(
			"insufficient history: %d 1m / %d 5m bars, need %d", len(bars1m), len(bars5m), e.cfg.MinBars)}
	}

	f := extractFeatures(bars1m, bars5m, e.cfg)
	if f.price <= 0 || f.atr <= 0 {
		return rankResult{ticker: ticker, reason: fmt.Sprintf(
			"unusable price/ATR: price %.2f, ATR %.4f", f.price, f.atr)}
	}

	scores, composite, why := e.scorer.Score(f, state.State)
	conf := e.curve.Confidence(composite, state.State)

	return rankResult{ticker: ticker, opportunity: &contracts.Opportunity{
		Ticker:            ticker,
		Horizon:           h,
		Scores:            scores,
		Composite:         composite,
		Confidence:        conf,
		TargetATR:         params.TargetATR,
		StopATR:           params.StopATR,
		MarketStateAtRank: state,
		Explanation:       why,
	}}
}

func (e *Engine) fetchFailure(ticker string, err error) rankResult {
	if contracts.TickerSkippable(err) {
		e.logger.WithError(err).WithField("ticker", ticker).Debug("Ticker skipped, no usable history")
		return rankResult{ticker: ticker, errored: true, reason: "history unavailable"}
	}
	return rankResult{ticker: ticker, err: err}
}

// applyCalibration shrinks every confidence by the feed's factor. The
// bucket is constant across one rank (one horizon, one state, one
// attention bucket), so the feed is consulted once per call.
func (e *Engine) applyCalibration(ctx context.Context, rank *contracts.OpportunityRank, state contracts.MarketState, attention contracts.AttentionState) {
	if e.calibration == nil || len(rank.Opportunities) == 0 {
		return
	}
	factor, ok := e.calibration.Shrink(ctx, rank.Horizon, state.State, attention.Bucket)
	if !ok || factor >= 1 {
		return
	}
	bucket := contracts.CalibrationBucketKey(rank.Horizon, state.State, attention.Bucket)
	for i := range rank.Opportunities {
		o := &rank.Opportunities[i]
		o.Confidence = contracts.Confidence(math.Round(float64(o.Confidence)*factor*10000) / 10000)
		o.Calibration = &contracts.CalibrationInfo{Bucket: bucket, Shrink: factor}
		o.Explanation = append(o.Explanation, fmt.Sprintf("calibration shrink %.2f (%s)", factor, bucket))
	}
}

// rankLookback sizes the fetch so both resolutions cover the same
// wall-clock span: minBars bars at 5m and the matching count at 1m.
func rankLookback(tf contracts.Timeframe, minBars int) int {
	span := time.Duration(minBars) * 5 * time.Minute
	return int(span / tf.Duration())
}
