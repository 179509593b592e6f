package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/zerotrading/zero/internal/ingest"
	"github.com/zerotrading/zero/internal/scheduler"
	"github.com/zerotrading/zero/internal/scheduler/jobs"
	"github.com/zerotrading/zero/pkg/redis"
)

// ingestCmd represents the ingest command
var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Run the ingest service standalone",
	Long: `Runs candle ingest on its own: an immediate catch-up sweep, the
live minute-bar stream, and the nightly backfill sweep.

Requires Redis (for the shared watchlist) and Alpaca credentials.

Example:
  go run ./cmd/zero ingest`,
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	fmt.Println("=== Zero Ingest Service ===")

	// 1. Shared infrastructure
	d, cleanup, err := initDeps(false)
	if err != nil {
		return err
	}
	defer cleanup()
	log := d.log

	// 2. Build the service: fetcher, backfiller, stream
	fetcher, err := ingest.NewAlpacaBars(d.cfg.Alpaca)
	if err != nil {
		return err
	}
	fetcher.WithSharedLimit(redis.NewRateLimiter(d.rdb, "zero"), redis.AlpacaRateLimit)
	backfiller := ingest.NewBackfiller(fetcher, d.store, d.cfg.Pipeline.Workers, d.rec, log)
	stream := ingest.NewStream(d.cfg.Alpaca, d.store, ingest.Watchlist(nil, d.strat), d.rec, log)
	svc := ingest.NewService(backfiller, stream, d.bus, d.strat, d.rec, log)

	// 3. Initial sweep plus live stream
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("start ingest: %w", err)
	}

	// 4. Schedule the nightly backfill
	sched := scheduler.New(log)
	if err := sched.AddJob(jobs.NewBackfill(d.cfg.Pipeline.BackfillSchedule, svc.CatchUp)); err != nil {
		return fmt.Errorf("register job: %w", err)
	}
	sched.Start()

	fmt.Printf("\n✅ Ingest service running (backfill schedule %s)\n", d.cfg.Pipeline.BackfillSchedule)
	fmt.Println("Press Ctrl+C to stop")

	// 5. Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down ingest service...")
	sched.Stop()
	svc.Stop()
	return nil
}
