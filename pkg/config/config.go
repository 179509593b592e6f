package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
// ⭐ SSOT: every environment variable is read here and nowhere else
type Config struct {
	// Server
	Port string
	Env  string // development, staging, production

	// Database
	Database DatabaseConfig

	// Redis
	Redis RedisConfig

	// External data
	Alpaca        AlpacaConfig
	EventCalendar EventCalendarConfig

	// Pipeline
	Pipeline PipelineConfig

	// Strategy parameters (YAML, loaded separately by strategyconfig)
	StrategyPath string

	// Logging
	LogLevel  string
	LogFormat string

	// Monitoring
	MetricsEnabled bool
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	Name     string
	User     string
	Password string
	URL      string

	// Connection Pool
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// AlpacaConfig holds the Alpaca market-data API configuration
type AlpacaConfig struct {
	APIKey    string
	APISecret string
	BaseURL   string // market data REST
	StreamURL string // market data websocket
	Feed      string // iex or sip
	RateRPS   int    // REST request budget per second
	Enabled   bool
}

// EventCalendarConfig holds the economic-calendar fetcher configuration.
// High-impact events inside the window raise the regime event-risk flag.
type EventCalendarConfig struct {
	URL     string
	Window  time.Duration
	Enabled bool
}

// PipelineConfig holds service tick schedules and fan-out limits
type PipelineConfig struct {
	Workers           int
	RegimeSchedule    string // cron spec with seconds field
	ScanSchedule      string
	AttentionSchedule string
	BackfillSchedule  string
	UniverseSchedule  string
	RankSafetyTick    time.Duration // periodic re-rank when no channel traffic
	UniverseFile      string        // optional newline-separated ticker overlay
}

// Load reads configuration from environment variables
// ⭐ SSOT: only this function calls os.Getenv()
func Load() (*Config, error) {
	// Try multiple paths for .env file
	loadEnvFile()

	cfg := &Config{
		// Server
		Port: getEnv("PORT", "8090"),
		Env:  getEnv("ENV", "development"),

		// Database
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			Name:            getEnv("DB_NAME", "zero"),
			User:            getEnv("DB_USER", "zero"),
			Password:        getEnv("DB_PASSWORD", ""),
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 25),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 5),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "30m"),
		},

		// Redis
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", true),
		},

		// External data
		Alpaca: AlpacaConfig{
			APIKey:    getEnv("ALPACA_API_KEY", ""),
			APISecret: getEnv("ALPACA_API_SECRET", ""),
			BaseURL:   getEnv("ALPACA_DATA_URL", "https://data.alpaca.markets"),
			StreamURL: getEnv("ALPACA_STREAM_URL", "wss://stream.data.alpaca.markets/v2/iex"),
			Feed:      getEnv("ALPACA_FEED", "iex"),
			RateRPS:   getEnvAsInt("ALPACA_RATE_RPS", 3),
			Enabled:   getEnvAsBool("ALPACA_ENABLED", true),
		},

		EventCalendar: EventCalendarConfig{
			URL:     getEnv("EVENT_CALENDAR_URL", ""),
			Window:  getEnvAsDuration("EVENT_CALENDAR_WINDOW", "30m"),
			Enabled: getEnvAsBool("EVENT_CALENDAR_ENABLED", false),
		},

		// Pipeline
		Pipeline: PipelineConfig{
			Workers:           getEnvAsInt("PIPELINE_WORKERS", 8),
			RegimeSchedule:    getEnv("REGIME_SCHEDULE", "0 * * * * *"),
			ScanSchedule:      getEnv("SCAN_SCHEDULE", "10 */5 * * * *"),
			AttentionSchedule: getEnv("ATTENTION_SCHEDULE", "30 */5 * * * *"),
			BackfillSchedule:  getEnv("BACKFILL_SCHEDULE", "0 1 * * * *"),
			UniverseSchedule:  getEnv("UNIVERSE_SCHEDULE", "0 0 0 * * *"),
			RankSafetyTick:    getEnvAsDuration("RANK_SAFETY_TICK", "60s"),
			UniverseFile:      getEnv("UNIVERSE_FILE", ""),
		},

		// Strategy parameters
		StrategyPath: getEnv("STRATEGY_PATH", "configs/strategy.yaml"),

		// Logging
		LogLevel:  getEnv("LOG_LEVEL", "debug"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		// Monitoring
		MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
	}

	// Validate configuration
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks if required configuration values are set
func (c *Config) validate() error {
	// Database URL is required
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	// Validate environment
	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}

	if c.Pipeline.Workers < 1 {
		return fmt.Errorf("PIPELINE_WORKERS must be >= 1")
	}

	// Alpaca credentials are checked by the ingest service at construction,
	// not here: regime/scanner/ranker run without them.
	if c.Alpaca.RateRPS < 1 {
		return fmt.Errorf("ALPACA_RATE_RPS must be >= 1")
	}

	if c.EventCalendar.Enabled && c.EventCalendar.URL == "" {
		return fmt.Errorf("EVENT_CALENDAR_URL is required when EVENT_CALENDAR_ENABLED=true")
	}

	return nil
}

// Helper functions (private, only used within this file)

// loadEnvFile tries to load .env from multiple locations
func loadEnvFile() {
	// Try paths in order of priority
	paths := []string{
		".env", // Current directory
	}

	// Also try relative to executable
	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
			filepath.Join(exeDir, "..", "..", ".env"),
		)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		// Fallback to default
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}
