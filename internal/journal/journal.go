// Package journal persists the append-only decision trail: regime flips,
// candidate edges, published rankings, and attention bucket changes. The
// bus answers "what is true now"; the journal answers "what did we decide
// and when".
package journal

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zerotrading/zero/internal/contracts"
)

// Repository handles journal persistence.
// ⭐ SSOT: journal rows are written only from this package
type Repository struct {
	pool *pgxpool.Pool
}

var _ contracts.Journal = (*Repository)(nil)

// NewRepository creates a new journal repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// AppendRegime records a permission-state change. Called on value-change
// only; steady-state ticks do not journal.
func (r *Repository) AppendRegime(ctx context.Context, state contracts.MarketState, previous contracts.State) error {
	query := `
		INSERT INTO regime_log (
			ts, state, previous_state, reason, volatility_level, time_window
		) VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.pool.Exec(ctx, query,
		state.Timestamp, string(state.State), string(previous), state.Reason,
		state.VolatilityLevel, string(state.TimeWindow),
	)
	if err != nil {
		return fmt.Errorf("failed to append regime log: %w", err)
	}

	return nil
}

// AppendScanDiff records candidate edges versus the previous cycle
// (ADDED / REMOVED / MAINTAINED). Ticker, horizon, action, time; never
// scores.
func (r *Repository) AppendScanDiff(ctx context.Context, entries []contracts.ScanDiffEntry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO scanner_log (
			ts, cycle_id, ticker, horizon, action
		) VALUES ($1, $2, $3, $4, $5)
	`

	for _, e := range entries {
		_, err := tx.Exec(ctx, query,
			e.At, e.CycleID, e.Ticker, string(e.Horizon), string(e.Action),
		)
		if err != nil {
			return fmt.Errorf("failed to insert scan diff: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// AppendOpportunities records the top-N rows of a published ranking cycle.
func (r *Repository) AppendOpportunities(ctx context.Context, rank *contracts.OpportunityRank, topN int) error {
	top := rank.Top(topN)
	if len(top) == 0 {
		return nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO opportunity_log (
			ts, cycle_id, horizon, ticker, rank,
			composite_score, confidence, component_scores,
			market_state, target_atr, stop_atr, calibration, explanation
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	for i, o := range top {
		scoresJSON, err := json.Marshal(o.Scores)
		if err != nil {
			return fmt.Errorf("failed to marshal component scores: %w", err)
		}
		explanationJSON, err := json.Marshal(o.Explanation)
		if err != nil {
			return fmt.Errorf("failed to marshal explanation: %w", err)
		}

		var calibrationJSON []byte // NULL when no shrink was applied
		if o.Calibration != nil {
			calibrationJSON, err = json.Marshal(o.Calibration)
			if err != nil {
				return fmt.Errorf("failed to marshal calibration: %w", err)
			}
		}

		_, err = tx.Exec(ctx, query,
			rank.RankTime, rank.CycleID, string(rank.Horizon), o.Ticker, i+1,
			o.Composite, float64(o.Confidence), scoresJSON,
			string(o.MarketStateAtRank.State), o.TargetATR, o.StopATR,
			calibrationJSON, explanationJSON,
		)
		if err != nil {
			return fmt.Errorf("failed to insert opportunity: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// AppendAttention records an attention snapshot. Called on bucket change,
// not every tick.
func (r *Repository) AppendAttention(ctx context.Context, state contracts.AttentionState) error {
	sectorsJSON, err := json.Marshal(state.DominantSectors)
	if err != nil {
		return fmt.Errorf("failed to marshal dominant sectors: %w", err)
	}
	componentsJSON, err := json.Marshal(state.Components)
	if err != nil {
		return fmt.Errorf("failed to marshal components: %w", err)
	}

	query := `
		INSERT INTO attention_log (
			ts, stability_score, bucket, risk_state, concentration,
			dominant_sectors, components, degraded, degraded_reason
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err = r.pool.Exec(ctx, query,
		state.Timestamp, state.StabilityScore, string(state.Bucket),
		string(state.RiskState), state.Concentration,
		sectorsJSON, componentsJSON, state.Degraded, state.DegradedReason,
	)
	if err != nil {
		return fmt.Errorf("failed to append attention log: %w", err)
	}

	return nil
}
