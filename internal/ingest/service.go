package ingest

import (
	"context"
	"sync"
	"time"

	"github.com/zerotrading/zero/internal/bus"
	"github.com/zerotrading/zero/internal/contracts"
	"github.com/zerotrading/zero/internal/metrics"
	"github.com/zerotrading/zero/internal/strategyconfig"
	"github.com/zerotrading/zero/pkg/logger"
)

// ServiceName is the health and bus identity of the ingest service.
const ServiceName = "ingest"

// Service owns candle acquisition: the scheduled REST catch-up sweep plus
// the live stream. Stream may be nil for sweep-only runs.
type Service struct {
	backfiller *Backfiller
	stream     *Stream
	bus        contracts.Bus
	strat      *strategyconfig.Config
	metrics    *metrics.Recorder
	logger     *logger.Logger
	now        func() time.Time

	mu          sync.Mutex
	lastSweep   time.Time
	lastResult  Result
	lastOutcome contracts.CycleOutcome
	lastErr     string
	started     time.Time
}

func NewService(backfiller *Backfiller, stream *Stream, b contracts.Bus, strat *strategyconfig.Config, rec *metrics.Recorder, log *logger.Logger) *Service {
	return &Service{
		backfiller: backfiller,
		stream:     stream,
		bus:        b,
		strat:      strat,
		metrics:    rec,
		logger:     log,
		now:        time.Now,
		started:    time.Now(),
	}
}

// Start runs one catch-up sweep and brings the live stream up. A failed
// sweep does not block the stream: live bars start covering the gap while
// the next scheduled sweep retries.
func (s *Service) Start(ctx context.Context) error {
	if err := s.CatchUp(ctx); err != nil {
		s.logger.WithError(err).Warn("Initial catch-up failed, starting stream anyway")
	}
	if s.stream == nil {
		return nil
	}
	return s.stream.Start(ctx)
}

func (s *Service) Stop() {
	if s.stream != nil {
		s.stream.Stop()
	}
}

// CatchUp sweeps the full watchlist's history into the store.
func (s *Service) CatchUp(ctx context.Context) error {
	start := time.Now()
	symbols := s.watchlist(ctx)

	res, err := s.backfiller.Run(ctx, symbols)

	outcome := contracts.OutcomeCompleted
	s.mu.Lock()
	s.lastSweep = s.now()
	s.lastResult = res
	if err != nil {
		outcome = contracts.OutcomeAborted
		s.lastErr = err.Error()
	}
	s.lastOutcome = outcome
	s.mu.Unlock()

	if err == nil {
		s.logger.WithFields(map[string]interface{}{
			"symbols": res.Symbols,
			"failed":  res.Failed,
			"bars":    res.Bars,
		}).Info("Catch-up sweep complete")
	}

	s.writeHealth(ctx)
	s.metrics.RecordCycle(ServiceName, outcome, time.Since(start))
	return err
}

// watchlist resolves the universe, preferring the bus copy over config.
func (s *Service) watchlist(ctx context.Context) []string {
	var universe []string
	if _, err := s.bus.Get(ctx, bus.KeyScanUniverse, &universe); err != nil {
		s.logger.WithError(err).Warn("Universe read failed, using configured universe")
	}
	return Watchlist(universe, s.strat)
}

// Watchlist merges a universe with every proxy the engines read: the
// regime volatility proxy and the attention index, sector, and vol
// symbols. An empty universe falls back to the configured tickers.
func Watchlist(universe []string, strat *strategyconfig.Config) []string {
	if len(universe) == 0 {
		universe = strat.Universe.Tickers
	}

	seen := make(map[string]struct{}, len(universe))
	var out []string
	add := func(sym string) {
		if sym == "" {
			return
		}
		if _, dup := seen[sym]; dup {
			return
		}
		seen[sym] = struct{}{}
		out = append(out, sym)
	}

	for _, sym := range universe {
		add(sym)
	}
	add(strat.Regime.Volatility.ProxySymbol)
	for _, sym := range strat.Attention.IndexProxies {
		add(sym)
	}
	for _, sym := range strat.Attention.SectorETFs {
		add(sym)
	}
	add(strat.Attention.VolProxy)

	return out
}

func (s *Service) writeHealth(ctx context.Context) {
	s.mu.Lock()
	h := contracts.Health{
		Service:       ServiceName,
		Status:        contracts.StatusOK,
		UptimeSeconds: time.Since(s.started).Seconds(),
		LastCycle:     s.lastSweep,
		LastOutcome:   s.lastOutcome,
		LastError:     s.lastErr,
		Details: map[string]interface{}{
			"symbols":    s.lastResult.Symbols,
			"failed":     s.lastResult.Failed,
			"bars_swept": s.lastResult.Bars,
			"streaming":  s.stream != nil,
		},
	}
	if s.lastOutcome == contracts.OutcomeAborted {
		h.Status = contracts.StatusDegraded
	}
	s.mu.Unlock()

	if err := s.bus.Set(ctx, bus.HealthKey(ServiceName), h, bus.NoTTL); err != nil {
		s.logger.WithError(err).Warn("Health write failed")
	}
}
