package contracts

import (
	"context"
	"time"
)

// CandleSource supplies ordered OHLCV history.
// ⭐ SSOT: the candle read interface for scanner/ranker/attention/regime
//
// Implementations distinguish three empty-ish answers: ErrNoData (ticker is
// known but has no bars yet), ErrUnknownTicker, and transport failure
// (wrapping ErrUpstreamUnavailable).
type CandleSource interface {
	// Candles returns up to lookback bars for ticker at the given
	// resolution, ordered ascending by time.
	Candles(ctx context.Context, ticker string, tf Timeframe, lookback int) ([]Candle, error)
}

// KV is the bus key-value surface. Last write wins; a missing key is a
// distinguishable state (found=false), never an error.
type KV interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// Message is one pub/sub delivery.
type Message struct {
	Channel string
	Payload []byte
}

// Publisher emits change notifications. Delivery is at-most-once:
// consumers must be able to reconstruct correctness from KV reads alone.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload interface{}) error
}

// Subscriber receives pub/sub notifications until ctx is done.
type Subscriber interface {
	Subscribe(ctx context.Context, channels ...string) (<-chan Message, error)
}

// Bus is the full state-bus surface.
type Bus interface {
	KV
	Publisher
	Subscriber
}

// Journal is the append-only durable log sink. No updates, no deletes.
type Journal interface {
	AppendRegime(ctx context.Context, state MarketState, previous State) error
	AppendScanDiff(ctx context.Context, entries []ScanDiffEntry) error
	AppendOpportunities(ctx context.Context, rank *OpportunityRank, topN int) error
	AppendAttention(ctx context.Context, state AttentionState) error
}

// VolatilitySource supplies the current volatility proxy level. The proxy's
// derivation is its own correctness contract; the regime engine only sees a
// number with configured thresholds.
type VolatilitySource interface {
	Level(ctx context.Context) (float64, error)
}

// EventRiskSource reports whether a high-impact macro event is imminent.
// Source failure means "unknown", which callers treat as false.
type EventRiskSource interface {
	Active(ctx context.Context) (bool, error)
}

// CalibrationSource is the optional external shrink feed. Factors are
// multiplicative and clamped to at most 1.0 before use; a missing bucket
// (ok=false) leaves confidence untouched.
type CalibrationSource interface {
	Shrink(ctx context.Context, h Horizon, s State, b AttentionBucket) (factor float64, ok bool)
}
