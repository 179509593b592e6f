package candlestore

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Candle history lives in one wide table. The (ticker, timeframe, ts)
// primary key makes ingest idempotent: a replayed bar upserts in place
// instead of duplicating.
const schema = `
CREATE TABLE IF NOT EXISTS candles (
    ticker    TEXT             NOT NULL,
    timeframe TEXT             NOT NULL,
    ts        TIMESTAMPTZ      NOT NULL,
    open      DOUBLE PRECISION NOT NULL,
    high      DOUBLE PRECISION NOT NULL,
    low       DOUBLE PRECISION NOT NULL,
    close     DOUBLE PRECISION NOT NULL,
    volume    BIGINT           NOT NULL,
    PRIMARY KEY (ticker, timeframe, ts)
);
`

// EnsureSchema creates the candle table when it does not exist yet.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure candle schema: %w", err)
	}
	return nil
}
