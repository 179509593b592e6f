package commands

import (
	"fmt"

	"github.com/zerotrading/zero/internal/bus"
	"github.com/zerotrading/zero/internal/candlestore"
	"github.com/zerotrading/zero/internal/contracts"
	"github.com/zerotrading/zero/internal/journal"
	"github.com/zerotrading/zero/internal/metrics"
	"github.com/zerotrading/zero/internal/strategyconfig"
	"github.com/zerotrading/zero/pkg/config"
	"github.com/zerotrading/zero/pkg/database"
	"github.com/zerotrading/zero/pkg/logger"
	"github.com/zerotrading/zero/pkg/redis"
)

// deps is the wiring every pipeline service command shares: config,
// logger, strategy parameters, postgres, redis, the state bus, and the
// candle store on top.
type deps struct {
	cfg     *config.Config
	strat   *strategyconfig.Config
	log     *logger.Logger
	db      *database.DB
	rdb     *redis.Client
	bus     contracts.Bus
	store   *candlestore.Store
	journal *journal.Repository
	rec     *metrics.Recorder
}

// initDeps connects the shared infrastructure. Standalone service
// commands require Redis (a private in-memory bus would make the service
// invisible to the rest of the pipeline); `start` and `backfill` pass
// allowMemoryBus to stay usable in single-process development setups.
func initDeps(allowMemoryBus bool) (*deps, func(), error) {
	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	// 2. Initialize logger
	log := logger.New(cfg)

	// 3. Load strategy parameters
	strat, _, err := strategyconfig.Load(cfg.StrategyPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load strategy config %s: %w", cfg.StrategyPath, err)
	}
	hash, err := strategyconfig.Hash(strat)
	if err != nil {
		return nil, nil, fmt.Errorf("hash strategy config: %w", err)
	}
	log.WithFields(map[string]interface{}{
		"path": cfg.StrategyPath,
		"hash": hash[:12],
	}).Info("Strategy config loaded")

	// 4. Connect to database
	db, err := database.New(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}

	// 5. Connect to redis
	rdb, err := redis.New(cfg)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("connect to redis: %w", err)
	}

	// 6. Wire the state bus
	var b contracts.Bus
	if cfg.Redis.Enabled {
		b, err = bus.New(rdb, log)
		if err != nil {
			db.Close()
			rdb.Close()
			return nil, nil, fmt.Errorf("wire bus: %w", err)
		}
	} else if allowMemoryBus {
		log.Warn("Redis disabled, using in-process bus")
		b = bus.NewMemory()
	} else {
		db.Close()
		rdb.Close()
		return nil, nil, fmt.Errorf("this command requires the shared bus: set REDIS_ENABLED=true")
	}

	// 7. Candle store and journal
	store := candlestore.NewStore(db.Pool, redis.NewCache(rdb, "zero"), log)
	jnl := journal.NewRepository(db.Pool)

	d := &deps{
		cfg:     cfg,
		strat:   strat,
		log:     log,
		db:      db,
		rdb:     rdb,
		bus:     b,
		store:   store,
		journal: jnl,
		rec:     metrics.New(),
	}
	cleanup := func() {
		db.Close()
		if err := rdb.Close(); err != nil {
			log.WithError(err).Warn("Redis close failed")
		}
	}
	return d, cleanup, nil
}
