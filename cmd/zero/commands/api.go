package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/zerotrading/zero/internal/api"
	"github.com/zerotrading/zero/internal/bus"
	"github.com/zerotrading/zero/pkg/config"
	"github.com/zerotrading/zero/pkg/logger"
	"github.com/zerotrading/zero/pkg/redis"
)

// apiCmd represents the api command
var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Start the REST API server",
	Long: `Starts the read-only REST API server.

The API answers entirely from the state bus: it holds no engine logic
and opens no database connection. Requires Redis.

Endpoints:
  GET  /health                           - Aggregated service health
  GET  /metrics                          - Prometheus metrics
  GET  /api/v1/regime                    - Current market state
  GET  /api/v1/attention                 - Current attention state
  GET  /api/v1/candidates/{horizon}      - Last scan per horizon
  GET  /api/v1/opportunities/{horizon}   - Last ranking per horizon
  GET  /api/v1/whynot/{horizon}/{ticker} - Why a ticker is not ranked

Example:
  go run ./cmd/zero api
  go run ./cmd/zero api --port 8090`,
	RunE: runAPIServer,
}

var (
	apiPort string
)

func init() {
	rootCmd.AddCommand(apiCmd)

	// Flags
	apiCmd.Flags().StringVar(&apiPort, "port", "", "API server port (default from PORT)")
}

func runAPIServer(cmd *cobra.Command, args []string) error {
	fmt.Println("=== Zero API Server ===")

	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Override port if flag is set
	if apiPort != "" {
		cfg.Port = apiPort
	}

	// 2. Initialize logger
	log := logger.New(cfg)

	log.WithFields(map[string]interface{}{
		"port": cfg.Port,
		"env":  cfg.Env,
	}).Info("Initializing API server")

	// 3. Connect to redis and wire the bus
	rdb, err := redis.New(cfg)
	if err != nil {
		return fmt.Errorf("connect to redis: %w", err)
	}
	defer rdb.Close()

	b, err := bus.New(rdb, log)
	if err != nil {
		return fmt.Errorf("wire bus: %w", err)
	}

	// 4. Create handler and router with a per-client request budget
	limiter := redis.NewRateLimiter(rdb, "zero")
	router := api.NewRouter(api.NewHandler(b, log), limiter, log)

	// 5. Create server
	server := api.New(cfg, log, router)

	// 6. Start server with graceful shutdown
	go func() {
		if err := server.Start(); err != nil {
			log.WithError(err).Fatal("Failed to start server")
		}
	}()

	log.Info("API server started successfully")
	fmt.Printf("\n✅ Server running on http://localhost:%s\n", cfg.Port)
	fmt.Println("\nAvailable endpoints:")
	fmt.Println("  GET  /health")
	fmt.Println("  GET  /metrics")
	fmt.Println("  GET  /api/v1/regime")
	fmt.Println("  GET  /api/v1/attention")
	fmt.Println("  GET  /api/v1/candidates/{horizon}")
	fmt.Println("  GET  /api/v1/opportunities/{horizon}")
	fmt.Println("  GET  /api/v1/whynot/{horizon}/{ticker}")
	fmt.Println("\nPress Ctrl+C to stop")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Info("Server stopped")
	return nil
}
