package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/zerotrading/zero/internal/attention"
	"github.com/zerotrading/zero/internal/scheduler"
	"github.com/zerotrading/zero/internal/scheduler/jobs"
)

// attentionCmd represents the attention command
var attentionCmd = &cobra.Command{
	Use:   "attention",
	Short: "Run the attention service standalone",
	Long: `Runs the attention monitor on its own.

Every tick scores index, sector, and volatility proxies into an
attention bucket and publishes it to the bus. Requires Redis.

Example:
  go run ./cmd/zero attention`,
	RunE: runAttention,
}

func init() {
	rootCmd.AddCommand(attentionCmd)
}

func runAttention(cmd *cobra.Command, args []string) error {
	fmt.Println("=== Zero Attention Service ===")

	// 1. Shared infrastructure
	d, cleanup, err := initDeps(false)
	if err != nil {
		return err
	}
	defer cleanup()
	log := d.log

	// 2. Build the service
	svc := attention.NewService(
		attention.NewCalculator(d.strat.Attention),
		d.store, d.bus, d.journal, d.strat.Attention, d.cfg.Pipeline.Workers, d.rec, log,
	)

	// 3. Schedule the tick
	sched := scheduler.New(log)
	if err := sched.AddJob(jobs.NewTick(jobs.NameAttention, d.cfg.Pipeline.AttentionSchedule, svc.Tick)); err != nil {
		return fmt.Errorf("register job: %w", err)
	}
	sched.Start()

	fmt.Printf("\n✅ Attention service running (schedule %s)\n", d.cfg.Pipeline.AttentionSchedule)
	fmt.Println("Press Ctrl+C to stop")

	// 4. Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down attention service...")
	sched.Stop()
	return nil
}
