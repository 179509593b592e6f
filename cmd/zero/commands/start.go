package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/zerotrading/zero/internal/api"
	"github.com/zerotrading/zero/internal/attention"
	"github.com/zerotrading/zero/internal/ingest"
	"github.com/zerotrading/zero/internal/ranker"
	"github.com/zerotrading/zero/internal/regime"
	"github.com/zerotrading/zero/internal/scanner"
	"github.com/zerotrading/zero/internal/scheduler"
	"github.com/zerotrading/zero/internal/scheduler/jobs"
	"github.com/zerotrading/zero/internal/universe"
	"github.com/zerotrading/zero/pkg/httputil"
	"github.com/zerotrading/zero/pkg/redis"
)

// startCmd represents the start command
var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Run the full pipeline in one process",
	Long: `Starts every pipeline service in a single process.

This command:
- Publishes the scan universe
- Schedules regime, scan, attention, and backfill ticks
- Runs the event-driven ranker
- Brings up the live candle stream (when Alpaca is enabled)
- Serves the REST API and metrics

Services still communicate only through the bus, so the process is
behaviorally identical to running each service standalone. With
REDIS_ENABLED=false an in-process bus is used instead.

Example:
  go run ./cmd/zero start
  go run ./cmd/zero start --port 8090`,
	RunE: runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)

	startCmd.Flags().StringVar(&apiPort, "port", "", "API server port (default from PORT)")
}

func runStart(cmd *cobra.Command, args []string) error {
	fmt.Println("=== Zero Pipeline ===")

	// 1. Shared infrastructure: config, logger, strategy, postgres, redis, bus
	d, cleanup, err := initDeps(true)
	if err != nil {
		return err
	}
	defer cleanup()
	log := d.log

	if apiPort != "" {
		d.cfg.Port = apiPort
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Request budgets counted in Redis, shared with any standalone process
	limiter := redis.NewRateLimiter(d.rdb, "zero")

	// 2. Universe service, published immediately so the first scan sees it
	uniSvc := universe.NewService(
		universe.NewBuilder(d.strat.Universe.Tickers, d.cfg.Pipeline.UniverseFile),
		d.bus, d.rec, log,
	)
	if err := uniSvc.Publish(ctx); err != nil {
		return fmt.Errorf("publish universe: %w", err)
	}

	// 3. Regime service
	cal, err := regime.NewCalendar(d.strat.Session)
	if err != nil {
		return fmt.Errorf("build trading calendar: %w", err)
	}
	calendarHTTP := httputil.New(d.cfg, log).WithRateLimiter(limiter, redis.CalendarRateLimit)
	regimeSvc := regime.NewService(
		regime.NewCalculator(cal, d.strat.Regime.Volatility),
		regime.NewProxySource(d.store, d.strat.Regime.Volatility),
		regime.NewEventCalendar(calendarHTTP, d.cfg.EventCalendar, cal.Location(), log),
		d.bus, d.journal, d.rec, log,
	)

	// 4. Scanner service
	scanEngine, err := scanner.NewEngine(d.store, d.strat.Scanner, d.strat.Horizons, d.cfg.Pipeline.Workers, d.rec, log)
	if err != nil {
		return fmt.Errorf("build scan engine: %w", err)
	}
	scannerSvc := scanner.NewService(scanEngine, d.bus, d.journal, d.strat, d.rec, log)

	// 5. Attention service
	attnSvc := attention.NewService(
		attention.NewCalculator(d.strat.Attention),
		d.store, d.bus, d.journal, d.strat.Attention, d.cfg.Pipeline.Workers, d.rec, log,
	)

	// 6. Ranker service: event-driven, runs its own subscribe loop
	rankEngine := ranker.NewEngine(
		d.store, d.strat.Ranking, d.strat.Horizons,
		ranker.NewBusCalibration(d.bus, log),
		d.cfg.Pipeline.Workers, d.rec, log,
	)
	rankerSvc := ranker.NewService(rankEngine, d.bus, d.journal, d.strat, d.cfg.Pipeline.RankSafetyTick, d.rec, log)
	go func() {
		if err := rankerSvc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.WithError(err).Error("Ranker stopped")
		}
	}()

	// 7. Ingest service: catch-up sweep plus live stream
	var ingestSvc *ingest.Service
	if d.cfg.Alpaca.Enabled {
		fetcher, err := ingest.NewAlpacaBars(d.cfg.Alpaca)
		if err != nil {
			return err
		}
		fetcher.WithSharedLimit(limiter, redis.AlpacaRateLimit)
		backfiller := ingest.NewBackfiller(fetcher, d.store, d.cfg.Pipeline.Workers, d.rec, log)
		stream := ingest.NewStream(d.cfg.Alpaca, d.store, ingest.Watchlist(nil, d.strat), d.rec, log)
		ingestSvc = ingest.NewService(backfiller, stream, d.bus, d.strat, d.rec, log)
		if err := ingestSvc.Start(ctx); err != nil {
			return fmt.Errorf("start ingest: %w", err)
		}
	} else {
		log.Warn("Alpaca disabled, running without candle ingest")
	}

	// 8. Scheduler: cron-driven ticks
	sched := scheduler.New(log)
	pipelineJobs := []scheduler.Job{
		jobs.NewTick(jobs.NameRegime, d.cfg.Pipeline.RegimeSchedule, regimeSvc.Tick),
		jobs.NewTick(jobs.NameScan, d.cfg.Pipeline.ScanSchedule, scannerSvc.Tick),
		jobs.NewTick(jobs.NameAttention, d.cfg.Pipeline.AttentionSchedule, attnSvc.Tick),
		jobs.NewTick(jobs.NameUniverse, d.cfg.Pipeline.UniverseSchedule, uniSvc.Publish),
	}
	if ingestSvc != nil {
		pipelineJobs = append(pipelineJobs, jobs.NewBackfill(d.cfg.Pipeline.BackfillSchedule, ingestSvc.CatchUp))
	}
	for _, job := range pipelineJobs {
		if err := sched.AddJob(job); err != nil {
			return fmt.Errorf("register job %s: %w", job.Name(), err)
		}
	}
	sched.Start()

	// 9. API server
	server := api.New(d.cfg, log, api.NewRouter(api.NewHandler(d.bus, log), limiter, log))
	go func() {
		if err := server.Start(); err != nil {
			log.WithError(err).Fatal("Failed to start server")
		}
	}()

	fmt.Printf("\n✅ Pipeline running, API on http://localhost:%s\n", d.cfg.Port)
	fmt.Println("\nScheduled jobs:")
	for _, jobName := range sched.GetAllJobs() {
		fmt.Printf("  - %s\n", jobName)
	}
	fmt.Println("\nEndpoints:")
	fmt.Println("  GET  /health")
	fmt.Println("  GET  /metrics")
	fmt.Println("  GET  /api/v1/regime")
	fmt.Println("  GET  /api/v1/attention")
	fmt.Println("  GET  /api/v1/candidates/{horizon}")
	fmt.Println("  GET  /api/v1/opportunities/{horizon}")
	fmt.Println("  GET  /api/v1/whynot/{horizon}/{ticker}")
	fmt.Println("\nPress Ctrl+C to stop")

	// 10. Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down pipeline...")

	sched.Stop()
	if ingestSvc != nil {
		ingestSvc.Stop()
	}
	cancel()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Info("Pipeline stopped")
	return nil
}
