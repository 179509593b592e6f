package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/zerotrading/zero/internal/scheduler"
	"github.com/zerotrading/zero/internal/scheduler/jobs"
	"github.com/zerotrading/zero/internal/universe"
)

// universeCmd represents the universe command
var universeCmd = &cobra.Command{
	Use:   "universe",
	Short: "Run the universe service standalone",
	Long: `Publishes the scan universe to the bus, immediately and then on
the daily schedule. With --once it publishes and exits.

Requires Redis.

Example:
  go run ./cmd/zero universe
  go run ./cmd/zero universe --once`,
	RunE: runUniverse,
}

var universeOnce bool

func init() {
	rootCmd.AddCommand(universeCmd)

	universeCmd.Flags().BoolVar(&universeOnce, "once", false, "publish once and exit")
}

func runUniverse(cmd *cobra.Command, args []string) error {
	fmt.Println("=== Zero Universe Service ===")

	// 1. Shared infrastructure
	d, cleanup, err := initDeps(false)
	if err != nil {
		return err
	}
	defer cleanup()
	log := d.log

	// 2. Build and publish
	svc := universe.NewService(
		universe.NewBuilder(d.strat.Universe.Tickers, d.cfg.Pipeline.UniverseFile),
		d.bus, d.rec, log,
	)
	if err := svc.Publish(context.Background()); err != nil {
		return fmt.Errorf("publish universe: %w", err)
	}
	fmt.Println("✅ Scan universe published")

	if universeOnce {
		return nil
	}

	// 3. Schedule the daily rebuild
	sched := scheduler.New(log)
	if err := sched.AddJob(jobs.NewTick(jobs.NameUniverse, d.cfg.Pipeline.UniverseSchedule, svc.Publish)); err != nil {
		return fmt.Errorf("register job: %w", err)
	}
	sched.Start()

	fmt.Printf("\nRepublishing on schedule %s\n", d.cfg.Pipeline.UniverseSchedule)
	fmt.Println("Press Ctrl+C to stop")

	// 4. Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down universe service...")
	sched.Stop()
	return nil
}
