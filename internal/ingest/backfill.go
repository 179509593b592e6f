package ingest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/zerotrading/zero/internal/contracts"
	"github.com/zerotrading/zero/internal/metrics"
	"github.com/zerotrading/zero/pkg/logger"
)

// Sweep depths per resolution. The 1m window must cover the ranker's
// 100-bar lookback across a weekend; the daily window feeds the scanner's
// liquidity baselines.
const (
	depth1m = 3 * 24 * time.Hour
	depth5m = 7 * 24 * time.Hour
	depth1d = 120 * 24 * time.Hour
)

var sweepFrames = []struct {
	tf    contracts.Timeframe
	depth time.Duration
}{
	{contracts.Timeframe1m, depth1m},
	{contracts.Timeframe5m, depth5m},
	{contracts.Timeframe1d, depth1d},
}

// Backfiller sweeps historical bars for a symbol set into the candle
// store over a bounded worker pool.
type Backfiller struct {
	fetcher BarFetcher
	store   BarWriter
	workers int
	metrics *metrics.Recorder
	logger  *logger.Logger
	now     func() time.Time
}

func NewBackfiller(fetcher BarFetcher, store BarWriter, workers int, rec *metrics.Recorder, log *logger.Logger) *Backfiller {
	if workers < 1 {
		workers = 1
	}
	return &Backfiller{
		fetcher: fetcher,
		store:   store,
		workers: workers,
		metrics: rec,
		logger:  log,
		now:     time.Now,
	}
}

// Result summarizes one sweep.
type Result struct {
	Symbols int
	Failed  int
	Bars    int
	ByFrame map[contracts.Timeframe]int
}

type sweepResult struct {
	symbol string
	bars   map[contracts.Timeframe]int
	failed bool
}

// Run sweeps every symbol's 1m/5m/1d history into the store. A symbol
// that fails on any resolution is logged and counted, not fatal; the
// sweep errors only when it lands no bars at all while seeing failures,
// which reads as the upstream being down.
func (b *Backfiller) Run(ctx context.Context, symbols []string) (Result, error) {
	res := Result{ByFrame: make(map[contracts.Timeframe]int)}
	if len(symbols) == 0 {
		return res, nil
	}
	end := b.now().UTC()

	symbolCh := make(chan string, len(symbols))
	resultCh := make(chan sweepResult, len(symbols))

	var wg sync.WaitGroup
	for i := 0; i < b.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for sym := range symbolCh {
				resultCh <- b.sweepSymbol(ctx, sym, end)
			}
		}()
	}

	for _, sym := range symbols {
		symbolCh <- sym
	}
	close(symbolCh)

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	for sr := range resultCh {
		res.Symbols++
		if sr.failed {
			res.Failed++
		}
		for tf, n := range sr.bars {
			res.Bars += n
			res.ByFrame[tf] += n
		}
	}

	if err := ctx.Err(); err != nil {
		return res, err
	}
	if res.Bars == 0 && res.Failed > 0 {
		return res, fmt.Errorf("backfill: %d of %d symbols failed, nothing landed: %w",
			res.Failed, res.Symbols, contracts.ErrUpstreamUnavailable)
	}
	return res, nil
}

// sweepSymbol fetches and upserts every resolution for one symbol.
func (b *Backfiller) sweepSymbol(ctx context.Context, symbol string, end time.Time) sweepResult {
	sr := sweepResult{symbol: symbol, bars: make(map[contracts.Timeframe]int)}
	for _, frame := range sweepFrames {
		if ctx.Err() != nil {
			sr.failed = true
			return sr
		}

		bars, err := b.fetcher.Bars(ctx, symbol, frame.tf, end.Add(-frame.depth), end)
		if err != nil {
			b.logger.WithError(err).WithFields(map[string]interface{}{
				"symbol":    symbol,
				"timeframe": string(frame.tf),
			}).Warn("Backfill fetch failed")
			b.metrics.RecordError("alpaca")
			sr.failed = true
			continue
		}
		if len(bars) == 0 {
			continue
		}

		if err := b.store.Upsert(ctx, symbol, frame.tf, bars); err != nil {
			b.logger.WithError(err).WithFields(map[string]interface{}{
				"symbol":    symbol,
				"timeframe": string(frame.tf),
			}).Warn("Backfill write failed")
			b.metrics.RecordError("store")
			sr.failed = true
			continue
		}

		sr.bars[frame.tf] = len(bars)
		b.metrics.RecordBarsIngested(frame.tf, len(bars))
	}
	return sr
}
