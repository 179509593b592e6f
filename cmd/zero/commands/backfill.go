package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/zerotrading/zero/internal/ingest"
	"github.com/zerotrading/zero/pkg/redis"
)

// backfillCmd represents the backfill command
var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Run one catch-up sweep and exit",
	Long: `Sweeps the full watchlist's candle history into the store once:
1m, 5m, and 1d bars for every universe ticker plus the regime and
attention proxies. Useful after downtime or on a fresh database.

With REDIS_ENABLED=false the sweep uses the configured universe
instead of the published one.

Example:
  go run ./cmd/zero backfill
  go run ./cmd/zero backfill --timeout 30m`,
	RunE: runBackfill,
}

var backfillTimeout time.Duration

func init() {
	rootCmd.AddCommand(backfillCmd)

	backfillCmd.Flags().DurationVar(&backfillTimeout, "timeout", 15*time.Minute, "abort the sweep after this long")
}

func runBackfill(cmd *cobra.Command, args []string) error {
	fmt.Println("=== Zero Backfill ===")

	// 1. Shared infrastructure
	d, cleanup, err := initDeps(true)
	if err != nil {
		return err
	}
	defer cleanup()
	log := d.log

	// 2. Build the sweep: fetcher, backfiller, sweep-only service
	fetcher, err := ingest.NewAlpacaBars(d.cfg.Alpaca)
	if err != nil {
		return err
	}
	fetcher.WithSharedLimit(redis.NewRateLimiter(d.rdb, "zero"), redis.AlpacaRateLimit)
	backfiller := ingest.NewBackfiller(fetcher, d.store, d.cfg.Pipeline.Workers, d.rec, log)
	svc := ingest.NewService(backfiller, nil, d.bus, d.strat, d.rec, log)

	// 3. Sweep
	ctx, cancel := context.WithTimeout(context.Background(), backfillTimeout)
	defer cancel()

	start := time.Now()
	if err := svc.CatchUp(ctx); err != nil {
		return fmt.Errorf("catch-up sweep: %w", err)
	}

	fmt.Printf("\n✅ Sweep complete in %s\n", time.Since(start).Round(time.Second))
	return nil
}
