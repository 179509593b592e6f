// Package candlestore owns OHLCV bar persistence.
//
// The ingest service is the only writer; every engine reads through the
// contracts.CandleSource view. Recent windows are cached in redis so four
// horizon scans over the same universe do not repeat the same postgres
// reads.
package candlestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zerotrading/zero/internal/contracts"
	"github.com/zerotrading/zero/pkg/logger"
	"github.com/zerotrading/zero/pkg/redis"
)

// latestCloseTTL keeps the volatility proxy read cheap without letting it
// go stale across a regime tick.
const latestCloseTTL = 30 * time.Second

// Store reads and writes candle history.
// ⭐ SSOT: the candles table is touched only from this package
type Store struct {
	pool  *pgxpool.Pool
	cache *redis.Cache
	log   *logger.Logger
}

var _ contracts.CandleSource = (*Store)(nil)

// NewStore creates a candle store on top of an existing pool. The cache may
// sit on a disabled redis client; reads then always hit postgres.
func NewStore(pool *pgxpool.Pool, cache *redis.Cache, log *logger.Logger) *Store {
	return &Store{pool: pool, cache: cache, log: log}
}

// cachedWindow is the unit parked in redis per (ticker, timeframe): the
// widest lookback fetched recently plus its bars. Narrower requests are
// served from the tail.
type cachedWindow struct {
	Lookback int                `json:"lookback"`
	Candles  []contracts.Candle `json:"candles"`
}

// Candles returns up to lookback bars ordered ascending by time.
func (s *Store) Candles(ctx context.Context, ticker string, tf contracts.Timeframe, lookback int) ([]contracts.Candle, error) {
	if lookback <= 0 {
		return nil, fmt.Errorf("candles %s/%s: %w: lookback %d", ticker, tf, contracts.ErrInvariantViolation, lookback)
	}
	if !tf.Valid() {
		return nil, fmt.Errorf("candles %s: %w: timeframe %q", ticker, contracts.ErrInvariantViolation, tf)
	}

	key := redis.CandleWindowKey(ticker, string(tf))
	var win cachedWindow
	found, err := s.cache.Get(ctx, key, &win)
	if err != nil {
		s.log.WithError(err).WithField("ticker", ticker).Warn("candle cache read failed")
	}
	if found && win.Lookback >= lookback {
		bars := win.Candles
		if len(bars) > lookback {
			bars = bars[len(bars)-lookback:]
		}
		return bars, nil
	}

	bars, err := s.queryCandles(ctx, ticker, tf, lookback)
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, s.classifyEmpty(ctx, ticker, tf)
	}

	if err := s.cache.Set(ctx, key, cachedWindow{Lookback: lookback, Candles: bars}, redis.TTLShort); err != nil {
		s.log.WithError(err).WithField("ticker", ticker).Warn("candle cache write failed")
	}
	return bars, nil
}

// queryCandles reads the newest lookback bars and reverses them into
// ascending order.
func (s *Store) queryCandles(ctx context.Context, ticker string, tf contracts.Timeframe, lookback int) ([]contracts.Candle, error) {
	query := `
		SELECT ts, open, high, low, close, volume
		FROM candles
		WHERE ticker = $1 AND timeframe = $2
		ORDER BY ts DESC
		LIMIT $3`

	rows, err := s.pool.Query(ctx, query, ticker, string(tf), lookback)
	if err != nil {
		return nil, fmt.Errorf("query candles %s/%s: %w: %v", ticker, tf, contracts.ErrUpstreamUnavailable, err)
	}
	defer rows.Close()

	var bars []contracts.Candle
	for rows.Next() {
		var c contracts.Candle
		if err := rows.Scan(&c.Time, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("scan candle %s/%s: %w: %v", ticker, tf, contracts.ErrUpstreamUnavailable, err)
		}
		bars = append(bars, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read candles %s/%s: %w: %v", ticker, tf, contracts.ErrUpstreamUnavailable, err)
	}

	// newest-first from the index, ascending for consumers
	for i, j := 0, len(bars)-1; i < j; i, j = i+1, j-1 {
		bars[i], bars[j] = bars[j], bars[i]
	}
	return bars, nil
}

// classifyEmpty distinguishes "ticker we have never stored" from "known
// ticker without bars at this resolution yet".
func (s *Store) classifyEmpty(ctx context.Context, ticker string, tf contracts.Timeframe) error {
	var known bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM candles WHERE ticker = $1)`, ticker,
	).Scan(&known)
	if err != nil {
		return fmt.Errorf("probe ticker %s: %w: %v", ticker, contracts.ErrUpstreamUnavailable, err)
	}
	if !known {
		return fmt.Errorf("candles %s/%s: %w", ticker, tf, contracts.ErrUnknownTicker)
	}
	return fmt.Errorf("candles %s/%s: %w", ticker, tf, contracts.ErrNoData)
}

// LatestClose returns the close of the newest 1m bar for ticker. The regime
// engine reads the volatility proxy through this.
func (s *Store) LatestClose(ctx context.Context, ticker string) (float64, error) {
	key := redis.LatestPriceKey(ticker)
	var closePrice float64
	if found, err := s.cache.Get(ctx, key, &closePrice); err == nil && found {
		return closePrice, nil
	}

	err := s.pool.QueryRow(ctx, `
		SELECT close
		FROM candles
		WHERE ticker = $1 AND timeframe = $2
		ORDER BY ts DESC
		LIMIT 1`, ticker, string(contracts.Timeframe1m),
	).Scan(&closePrice)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("latest close %s: %w", ticker, contracts.ErrNoData)
	}
	if err != nil {
		return 0, fmt.Errorf("latest close %s: %w: %v", ticker, contracts.ErrUpstreamUnavailable, err)
	}

	if err := s.cache.Set(ctx, key, closePrice, latestCloseTTL); err != nil {
		s.log.WithError(err).WithField("ticker", ticker).Warn("latest close cache write failed")
	}
	return closePrice, nil
}

// Upsert writes a batch of bars for one (ticker, timeframe) and invalidates
// the cached window so the next read observes them.
func (s *Store) Upsert(ctx context.Context, ticker string, tf contracts.Timeframe, bars []contracts.Candle) error {
	if len(bars) == 0 {
		return nil
	}
	if !tf.Valid() {
		return fmt.Errorf("upsert %s: %w: timeframe %q", ticker, contracts.ErrInvariantViolation, tf)
	}

	batch := &pgx.Batch{}
	query := `
		INSERT INTO candles (ticker, timeframe, ts, open, high, low, close, volume)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (ticker, timeframe, ts) DO UPDATE SET
			open = EXCLUDED.open,
			high = EXCLUDED.high,
			low = EXCLUDED.low,
			close = EXCLUDED.close,
			volume = EXCLUDED.volume`

	for _, c := range bars {
		batch.Queue(query, ticker, string(tf), c.Time, c.Open, c.High, c.Low, c.Close, c.Volume)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range bars {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("upsert candles %s/%s: %w: %v", ticker, tf, contracts.ErrUpstreamUnavailable, err)
		}
	}

	if err := s.cache.Delete(ctx, redis.CandleWindowKey(ticker, string(tf))); err != nil {
		s.log.WithError(err).WithField("ticker", ticker).Warn("candle cache invalidation failed")
	}
	if tf == contracts.Timeframe1m {
		if err := s.cache.Delete(ctx, redis.LatestPriceKey(ticker)); err != nil {
			s.log.WithError(err).WithField("ticker", ticker).Warn("price cache invalidation failed")
		}
	}
	return nil
}
