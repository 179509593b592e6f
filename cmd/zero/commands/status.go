package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/zerotrading/zero/internal/bus"
	"github.com/zerotrading/zero/internal/contracts"
	"github.com/zerotrading/zero/pkg/config"
	"github.com/zerotrading/zero/pkg/logger"
	"github.com/zerotrading/zero/pkg/redis"
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show pipeline health",
	Long: `Shows every service's health entry from the bus.

Displayed per service:
- Status: ok / degraded / error
- Last cycle outcome and age
- Uptime
- Last error, if any

A service that has never written its health entry shows as missing.
Requires Redis.

Example:
  go run ./cmd/zero status
  go run ./cmd/zero status --watch
  go run ./cmd/zero status --watch --refresh 5s`,
	RunE: runStatus,
}

var (
	// Status flags
	statusWatch   bool
	statusRefresh time.Duration
)

func init() {
	rootCmd.AddCommand(statusCmd)

	// Flags
	statusCmd.Flags().BoolVarP(&statusWatch, "watch", "w", false, "refresh continuously")
	statusCmd.Flags().DurationVar(&statusRefresh, "refresh", 3*time.Second, "refresh interval with --watch")
}

func runStatus(cmd *cobra.Command, args []string) error {
	// 1. Load config, with logging quieted so the table stays readable
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg.LogLevel = "error"
	log := logger.New(cfg)

	// 2. Connect to redis and wire the bus
	rdb, err := redis.New(cfg)
	if err != nil {
		return fmt.Errorf("connect to redis: %w", err)
	}
	defer rdb.Close()

	b, err := bus.New(rdb, log)
	if err != nil {
		return fmt.Errorf("wire bus: %w", err)
	}

	ctx := context.Background()
	if !statusWatch {
		return displayStatus(ctx, b)
	}

	// 3. Watch loop: redraw on every tick until interrupted
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	ticker := time.NewTicker(statusRefresh)
	defer ticker.Stop()

	for {
		fmt.Print("\033[H\033[2J")
		if err := displayStatus(ctx, b); err != nil {
			return err
		}
		fmt.Println("\nPress Ctrl+C to stop")

		select {
		case <-quit:
			return nil
		case <-ticker.C:
		}
	}
}

func displayStatus(ctx context.Context, b contracts.Bus) error {
	fmt.Printf("Zero Pipeline Status  %s\n\n", time.Now().Format("2006-01-02 15:04:05"))
	fmt.Printf("%-11s %-12s %-19s %-13s %-9s %s\n",
		"SERVICE", "STATUS", "OUTCOME", "LAST CYCLE", "UPTIME", "ERROR")
	fmt.Println(strings.Repeat("━", 90))

	for _, svc := range bus.Services {
		var h contracts.Health
		found, err := b.Get(ctx, bus.HealthKey(svc), &h)
		if err != nil {
			return fmt.Errorf("read health %s: %w", svc, err)
		}
		if !found {
			fmt.Printf("%-11s %-12s\n", svc, "❓ missing")
			continue
		}

		fmt.Printf("%-11s %-12s %-19s %-13s %-9s %s\n",
			svc,
			statusIcon(h.Status),
			orDash(string(h.LastOutcome)),
			cycleAge(h.LastCycle),
			(time.Duration(h.UptimeSeconds) * time.Second).Round(time.Second),
			orDash(truncate(h.LastError, 40)),
		)
	}
	return nil
}

func statusIcon(s contracts.Status) string {
	switch s {
	case contracts.StatusOK:
		return "✅ ok"
	case contracts.StatusDegraded:
		return "⚠️ degraded"
	default:
		return "❌ " + string(s)
	}
}

func cycleAge(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return time.Since(t).Round(time.Second).String() + " ago"
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
