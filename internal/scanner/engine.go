// Package scanner reduces the configured ticker universe to per-horizon
// active candidates using objective, replayable filters. No scoring happens
// here: a candidate is a fact about liquidity, volatility, and structure,
// never an opinion about how good the trade is.
package scanner

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/zerotrading/zero/internal/contracts"
	"github.com/zerotrading/zero/internal/metrics"
	"github.com/zerotrading/zero/internal/strategyconfig"
	"github.com/zerotrading/zero/pkg/logger"
)

// Engine runs one horizon's scan: fan the universe out over a bounded
// worker pool, evaluate the three stages per ticker, collect the passers
// deterministically.
type Engine struct {
	candles   contracts.CandleSource
	filters   *Filters
	structure StructureStrategy
	horizons  strategyconfig.Horizons
	workers   int
	metrics   *metrics.Recorder
	logger    *logger.Logger
}

// evalResult is one ticker's outcome inside a scan fan-out.
type evalResult struct {
	ticker    string
	candidate *contracts.Candidate
	reason    string // first failing reason when candidate is nil
	errored   bool   // skippable fetch failure, counted separately from filter fails
	err       error  // cycle-level failure, aborts the scan
}

// NewEngine builds the scan engine. The structure stage is resolved from
// configuration here so an unknown strategy name fails at startup.
func NewEngine(candles contracts.CandleSource, cfg strategyconfig.Scanner, horizons strategyconfig.Horizons, workers int, rec *metrics.Recorder, log *logger.Logger) (*Engine, error) {
	structure, err := NewStructureStrategy(cfg.Structure)
	if err != nil {
		return nil, err
	}
	if workers < 1 {
		workers = 1
	}
	return &Engine{
		candles:   candles,
		filters:   NewFilters(cfg.Filters),
		structure: structure,
		horizons:  horizons,
		workers:   workers,
		metrics:   rec,
		logger:    log,
	}, nil
}

// Scan evaluates the universe for one horizon. A RED market state returns
// an empty list with outcome skipped_red without touching the candle store;
// that is a different answer from "ran and nothing passed". A cycle-level
// candle store failure aborts with an error so the caller retries next tick
// instead of publishing a misleadingly empty list.
func (e *Engine) Scan(ctx context.Context, universe []string, h contracts.Horizon, state contracts.MarketState) (contracts.CandidateList, error) {
	list := contracts.CandidateList{
		Horizon:  h,
		ScanTime: time.Now().UTC(),
		Excluded: make(map[string]string),
		Outcome:  contracts.OutcomeCompleted,
	}

	if _, ok := e.horizons.ByCode(string(h)); !ok {
		return list, fmt.Errorf("scan: %w: horizon %q", contracts.ErrInvariantViolation, h)
	}

	if state.State == contracts.StateRed {
		list.Outcome = contracts.OutcomeSkippedRed
		return list, nil
	}

	list.Stats.Evaluated = len(universe)

	scanCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	tickerCh := make(chan string, len(universe))
	resultCh := make(chan evalResult, len(universe))

	var wg sync.WaitGroup
	for i := 0; i < e.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.evalWorker(scanCtx, tickerCh, resultCh, h)
		}()
	}

	for _, ticker := range universe {
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
		case res.candidate != nil:
			list.Candidates = append(list.Candidates, *res.candidate)
			list.Stats.Passed++
		case res.errored:
			list.Excluded[res.ticker] = res.reason
			list.Stats.Errored++
			e.metrics.RecordTickerSkipped(ServiceName, "history_unavailable")
		default:
			list.Excluded[res.ticker] = res.reason
			list.Stats.Failed++
		}
	}

	if abort != nil {
		return contracts.CandidateList{}, fmt.Errorf("scan %s: %w", h, abort)
	}

	// Workers finish in arbitrary order; the published order must not.
	sort.Slice(list.Candidates, func(i, j int) bool {
		return list.Candidates[i].Ticker < list.Candidates[j].Ticker
	})

	return list, nil
}

func (e *Engine) evalWorker(ctx context.Context, tickers <-chan string, results chan<- evalResult, h contracts.Horizon) {
	for ticker := range tickers {
		select {
		case <-ctx.Done():
			results <- evalResult{ticker: ticker, err: ctx.Err()}
			return
		default:
		}
		results <- e.evaluate(ctx, ticker, h)
	}
}

// evaluate runs the three stages in order and stops at the first failure.
// Pass reasons accumulate so a full passer carries one line per stage.
func (e *Engine) evaluate(ctx context.Context, ticker string, h contracts.Horizon) evalResult {
	params, _ := e.horizons.ByCode(string(h))
	tf := h.ScanTimeframe()

	bars, err := e.candles.Candles(ctx, ticker, tf, lookbackBars(params.LookbackMinutes, tf))
	if err != nil {
		if contracts.TickerSkippable(err) {
			e.logger.WithError(err).WithField("ticker", ticker).Debug("Ticker skipped, no usable history")
			return evalResult{ticker: ticker, errored: true, reason: "history unavailable"}
		}
		return evalResult{ticker: ticker, err: err}
	}

	passReasons := make([]string, 0, 3)

	ok, reason := e.filters.Liquidity(bars)
	if !ok {
		return evalResult{ticker: ticker, reason: reason}
	}
	passReasons = append(passReasons, reason)

	ok, reason = e.filters.Volatility(bars)
	if !ok {
		return evalResult{ticker: ticker, reason: reason}
	}
	passReasons = append(passReasons, reason)

	ok, reason = e.structure.Evaluate(bars)
	if !ok {
		return evalResult{ticker: ticker, reason: reason}
	}
	passReasons = append(passReasons, reason)

	return evalResult{ticker: ticker, candidate: &contracts.Candidate{
		Ticker:      ticker,
		Horizon:     h,
		PassReasons: passReasons,
	}}
}

// lookbackBars converts a lookback in minutes to a bar count at the scan
// resolution.
func lookbackBars(minutes int, tf contracts.Timeframe) int {
	return minutes / int(tf.Duration().Minutes())
}
