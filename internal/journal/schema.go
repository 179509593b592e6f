package journal

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Journal tables. Append-only: nothing in the system updates or deletes a
// row once written. Plain Postgres with time indexes is enough at this
// scale; no timeseries extension is assumed.
const schema = `
CREATE TABLE IF NOT EXISTS regime_log (
	id BIGSERIAL PRIMARY KEY,
	ts TIMESTAMPTZ NOT NULL,
	state TEXT NOT NULL,
	previous_state TEXT NOT NULL,
	reason TEXT NOT NULL,
	volatility_level DOUBLE PRECISION NOT NULL,
	time_window TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_regime_log_ts ON regime_log (ts DESC);

CREATE TABLE IF NOT EXISTS scanner_log (
	id BIGSERIAL PRIMARY KEY,
	ts TIMESTAMPTZ NOT NULL,
	cycle_id TEXT NOT NULL,
	ticker TEXT NOT NULL,
	horizon TEXT NOT NULL,
	action TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_scanner_log_ts ON scanner_log (ts DESC);
CREATE INDEX IF NOT EXISTS idx_scanner_log_ticker ON scanner_log (ticker, horizon);

CREATE TABLE IF NOT EXISTS opportunity_log (
	id BIGSERIAL PRIMARY KEY,
	ts TIMESTAMPTZ NOT NULL,
	cycle_id TEXT NOT NULL,
	horizon TEXT NOT NULL,
	ticker TEXT NOT NULL,
	rank INT NOT NULL,
	composite_score DOUBLE PRECISION NOT NULL,
	confidence DOUBLE PRECISION NOT NULL,
	component_scores JSONB NOT NULL,
	market_state TEXT NOT NULL,
	target_atr DOUBLE PRECISION NOT NULL,
	stop_atr DOUBLE PRECISION NOT NULL,
	calibration JSONB,
	explanation JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_opportunity_log_ts ON opportunity_log (ts DESC);
CREATE INDEX IF NOT EXISTS idx_opportunity_log_ticker ON opportunity_log (ticker, horizon);

CREATE TABLE IF NOT EXISTS attention_log (
	id BIGSERIAL PRIMARY KEY,
	ts TIMESTAMPTZ NOT NULL,
	stability_score DOUBLE PRECISION NOT NULL,
	bucket TEXT NOT NULL,
	risk_state TEXT NOT NULL,
	concentration DOUBLE PRECISION NOT NULL,
	dominant_sectors JSONB NOT NULL,
	components JSONB NOT NULL,
	degraded BOOLEAN NOT NULL DEFAULT FALSE,
	degraded_reason TEXT
);
CREATE INDEX IF NOT EXISTS idx_attention_log_ts ON attention_log (ts DESC);
`

// EnsureSchema creates the journal tables if they do not exist. Idempotent;
// runs at service startup before the first tick.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to ensure journal schema: %w", err)
	}
	return nil
}
