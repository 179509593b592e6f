package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/zerotrading/zero/internal/regime"
	"github.com/zerotrading/zero/internal/scheduler"
	"github.com/zerotrading/zero/internal/scheduler/jobs"
	"github.com/zerotrading/zero/pkg/httputil"
	"github.com/zerotrading/zero/pkg/redis"
)

// regimeCmd represents the regime command
var regimeCmd = &cobra.Command{
	Use:   "regime",
	Short: "Run the regime service standalone",
	Long: `Runs the market-permission regime engine on its own.

Every tick evaluates session windows, the volatility proxy, and event
risk, then publishes GREEN/YELLOW/RED to the bus. Requires Redis so the
other services can see the state.

Example:
  go run ./cmd/zero regime`,
	RunE: runRegime,
}

func init() {
	rootCmd.AddCommand(regimeCmd)
}

func runRegime(cmd *cobra.Command, args []string) error {
	fmt.Println("=== Zero Regime Service ===")

	// 1. Shared infrastructure
	d, cleanup, err := initDeps(false)
	if err != nil {
		return err
	}
	defer cleanup()
	log := d.log

	// 2. Build the engine: calendar, calculator, volatility proxy, event risk
	cal, err := regime.NewCalendar(d.strat.Session)
	if err != nil {
		return fmt.Errorf("build trading calendar: %w", err)
	}
	calendarHTTP := httputil.New(d.cfg, log).
		WithRateLimiter(redis.NewRateLimiter(d.rdb, "zero"), redis.CalendarRateLimit)
	svc := regime.NewService(
		regime.NewCalculator(cal, d.strat.Regime.Volatility),
		regime.NewProxySource(d.store, d.strat.Regime.Volatility),
		regime.NewEventCalendar(calendarHTTP, d.cfg.EventCalendar, cal.Location(), log),
		d.bus, d.journal, d.rec, log,
	)

	// 3. Schedule the tick
	sched := scheduler.New(log)
	if err := sched.AddJob(jobs.NewTick(jobs.NameRegime, d.cfg.Pipeline.RegimeSchedule, svc.Tick)); err != nil {
		return fmt.Errorf("register job: %w", err)
	}
	sched.Start()

	fmt.Printf("\n✅ Regime service running (schedule %s)\n", d.cfg.Pipeline.RegimeSchedule)
	fmt.Println("Press Ctrl+C to stop")

	// 4. Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down regime service...")
	sched.Stop()
	return nil
}
