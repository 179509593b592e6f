// Package ingest owns candle acquisition: scheduled REST catch-up sweeps
// and the live minute-bar stream, both writing through the candle store.
// Nothing else in the pipeline writes bars.
package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"golang.org/x/time/rate"

	"github.com/zerotrading/zero/internal/contracts"
	"github.com/zerotrading/zero/pkg/config"
	"github.com/zerotrading/zero/pkg/redis"
)

// BarFetcher is the historical bar source the backfiller sweeps from.
type BarFetcher interface {
	Bars(ctx context.Context, symbol string, tf contracts.Timeframe, start, end time.Time) ([]contracts.Candle, error)
}

// BarWriter is the candle store surface ingest writes through.
type BarWriter interface {
	Upsert(ctx context.Context, ticker string, tf contracts.Timeframe, bars []contracts.Candle) error
}

// AlpacaBars fetches historical bars from the Alpaca market-data REST API.
// A client-side limiter meters requests so a full catch-up sweep stays
// inside the account's rate budget.
type AlpacaBars struct {
	client  *marketdata.Client
	limiter *rate.Limiter

	shared       *redis.RateLimiter
	sharedBudget *redis.RateLimitConfig
}

var _ BarFetcher = (*AlpacaBars)(nil)

// NewAlpacaBars validates credentials up front: a missing key is a
// configuration error and should stop the process at startup, not
// surface as a mid-sweep 401.
func NewAlpacaBars(cfg config.AlpacaConfig) (*AlpacaBars, error) {
	if cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, fmt.Errorf("alpaca credentials missing: set ALPACA_API_KEY and ALPACA_API_SECRET")
	}
	rps := cfg.RateRPS
	if rps < 1 {
		rps = 1
	}
	return &AlpacaBars{
		client: marketdata.NewClient(marketdata.ClientOpts{
			APIKey:    cfg.APIKey,
			APISecret: cfg.APISecret,
			BaseURL:   cfg.BaseURL,
			Feed:      marketdata.Feed(cfg.Feed),
		}),
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
	}, nil
}

// WithSharedLimit adds a cross-process request budget on top of the local
// pacer: the pipeline and a manual backfill then draw from one account
// budget instead of each assuming it is alone.
func (a *AlpacaBars) WithSharedLimit(limiter *redis.RateLimiter, budget redis.RateLimitConfig) *AlpacaBars {
	a.shared = limiter
	a.sharedBudget = &budget
	return a
}

// Bars fetches one symbol's bars over [start, end], split-adjusted,
// ascending by time.
func (a *AlpacaBars) Bars(ctx context.Context, symbol string, tf contracts.Timeframe, start, end time.Time) ([]contracts.Candle, error) {
	frame, err := alpacaTimeframe(tf)
	if err != nil {
		return nil, err
	}
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	if a.shared != nil && a.sharedBudget != nil {
		if err := a.shared.Wait(ctx, *a.sharedBudget); err != nil {
			return nil, err
		}
	}

	bars, err := a.client.GetBars(symbol, marketdata.GetBarsRequest{
		TimeFrame:  frame,
		Adjustment: marketdata.Split,
		Start:      start,
		End:        end,
	})
	if err != nil {
		return nil, fmt.Errorf("alpaca bars %s/%s: %w: %v", symbol, tf, contracts.ErrUpstreamUnavailable, err)
	}

	out := make([]contracts.Candle, 0, len(bars))
	for _, b := range bars {
		out = append(out, contracts.Candle{
			Time:   b.Timestamp.UTC(),
			Open:   b.Open,
			High:   b.High,
			Low:    b.Low,
			Close:  b.Close,
			Volume: int64(b.Volume),
		})
	}
	return out, nil
}

func alpacaTimeframe(tf contracts.Timeframe) (marketdata.TimeFrame, error) {
	switch tf {
	case contracts.Timeframe1m:
		return marketdata.OneMin, nil
	case contracts.Timeframe5m:
		return marketdata.NewTimeFrame(5, marketdata.Min), nil
	case contracts.Timeframe1d:
		return marketdata.OneDay, nil
	}
	return marketdata.TimeFrame{}, fmt.Errorf("alpaca bars: %w: timeframe %q", contracts.ErrInvariantViolation, tf)
}
