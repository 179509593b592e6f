package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/zerotrading/zero/internal/ranker"
)

// rankerCmd represents the ranker command
var rankerCmd = &cobra.Command{
	Use:   "ranker",
	Short: "Run the ranker service standalone",
	Long: `Runs the opportunity ranker on its own.

The ranker is event-driven, not cron-driven: it subscribes to candidate
and market-state changes on the bus and re-ranks on every notification,
with a periodic safety tick covering missed deliveries. Requires Redis.

Example:
  go run ./cmd/zero ranker`,
	RunE: runRanker,
}

func init() {
	rootCmd.AddCommand(rankerCmd)
}

func runRanker(cmd *cobra.Command, args []string) error {
	fmt.Println("=== Zero Ranker Service ===")

	// 1. Shared infrastructure
	d, cleanup, err := initDeps(false)
	if err != nil {
		return err
	}
	defer cleanup()
	log := d.log

	// 2. Build the rank engine and service
	engine := ranker.NewEngine(
		d.store, d.strat.Ranking, d.strat.Horizons,
		ranker.NewBusCalibration(d.bus, log),
		d.cfg.Pipeline.Workers, d.rec, log,
	)
	svc := ranker.NewService(engine, d.bus, d.journal, d.strat, d.cfg.Pipeline.RankSafetyTick, d.rec, log)

	// 3. Run the subscribe loop until interrupted
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- svc.Run(ctx)
	}()

	fmt.Printf("\n✅ Ranker service running (safety tick %s)\n", d.cfg.Pipeline.RankSafetyTick)
	fmt.Println("Press Ctrl+C to stop")

	// 4. Wait for interrupt signal or loop failure
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case <-quit:
		log.Info("Shutting down ranker service...")
		cancel()
		<-errCh
		return nil
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ranker loop: %w", err)
		}
		return nil
	}
}
