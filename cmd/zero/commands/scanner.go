package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/zerotrading/zero/internal/scanner"
	"github.com/zerotrading/zero/internal/scheduler"
	"github.com/zerotrading/zero/internal/scheduler/jobs"
)

// scannerCmd represents the scanner command
var scannerCmd = &cobra.Command{
	Use:   "scanner",
	Short: "Run the scanner service standalone",
	Long: `Runs the candidate scanner on its own.

Every tick reads the market state and scan universe from the bus,
filters the universe per horizon, and publishes candidate lists.
Requires Redis.

Example:
  go run ./cmd/zero scanner`,
	RunE: runScanner,
}

func init() {
	rootCmd.AddCommand(scannerCmd)
}

func runScanner(cmd *cobra.Command, args []string) error {
	fmt.Println("=== Zero Scanner Service ===")

	// 1. Shared infrastructure
	d, cleanup, err := initDeps(false)
	if err != nil {
		return err
	}
	defer cleanup()
	log := d.log

	// 2. Build the scan engine and service
	engine, err := scanner.NewEngine(d.store, d.strat.Scanner, d.strat.Horizons, d.cfg.Pipeline.Workers, d.rec, log)
	if err != nil {
		return fmt.Errorf("build scan engine: %w", err)
	}
	svc := scanner.NewService(engine, d.bus, d.journal, d.strat, d.rec, log)

	// 3. Schedule the tick
	sched := scheduler.New(log)
	if err := sched.AddJob(jobs.NewTick(jobs.NameScan, d.cfg.Pipeline.ScanSchedule, svc.Tick)); err != nil {
		return fmt.Errorf("register job: %w", err)
	}
	sched.Start()

	fmt.Printf("\n✅ Scanner service running (schedule %s)\n", d.cfg.Pipeline.ScanSchedule)
	fmt.Println("Press Ctrl+C to stop")

	// 4. Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down scanner service...")
	sched.Stop()
	return nil
}
