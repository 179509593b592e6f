package scanner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zerotrading/zero/internal/bus"
	"github.com/zerotrading/zero/internal/contracts"
	"github.com/zerotrading/zero/internal/metrics"
	"github.com/zerotrading/zero/internal/strategyconfig"
	"github.com/zerotrading/zero/pkg/logger"
)

// ServiceName is the health and bus identity of the scanner.
const ServiceName = "scanner"

// Service runs the scan tick: read the market state, scan every horizon,
// publish the lists, journal the membership diff.
type Service struct {
	engine  *Engine
	bus     contracts.Bus
	journal contracts.Journal
	cfg     *strategyconfig.Config
	metrics *metrics.Recorder
	logger  *logger.Logger
	now     func() time.Time

	mu            sync.Mutex
	previous      map[contracts.Horizon][]string
	counts        map[contracts.Horizon]int
	universeSize  int
	lastScan      time.Time
	lastOutcome   contracts.CycleOutcome
	lastErr       string
	warnedMissing bool
	started       time.Time
}

// NewService wires the scanner.
func NewService(engine *Engine, b contracts.Bus, j contracts.Journal, cfg *strategyconfig.Config, rec *metrics.Recorder, log *logger.Logger) *Service {
	return &Service{
		engine:   engine,
		bus:      b,
		journal:  j,
		cfg:      cfg,
		metrics:  rec,
		logger:   log,
		now:      time.Now,
		previous: make(map[contracts.Horizon][]string),
		counts:   make(map[contracts.Horizon]int),
		started:  time.Now(),
	}
}

// Tick runs one scan cycle across all horizons.
func (s *Service) Tick(ctx context.Context) error {
	start := time.Now()

	outcome, tickErr := s.runCycle(ctx)

	s.mu.Lock()
	s.lastOutcome = outcome
	if tickErr != nil {
		s.lastErr = tickErr.Error()
	}
	s.mu.Unlock()

	s.writeHealth(ctx)
	s.metrics.RecordCycle(ServiceName, outcome, time.Since(start))
	return tickErr
}

func (s *Service) runCycle(ctx context.Context) (contracts.CycleOutcome, error) {
	state, found, err := s.loadMarketState(ctx)
	if err != nil {
		s.metrics.RecordError("bus")
		return contracts.OutcomeAborted, err
	}
	if !found {
		// No regime on the bus reads as RED: scanning without a
		// permission state would bypass the level-0 veto.
		state.State = contracts.StateRed
	}

	universe := s.loadUniverse(ctx)
	scanTime := s.now().UTC()
	cycleID := uuid.New().String()

	outcome := contracts.OutcomeCompleted
	if state.State == contracts.StateRed {
		outcome = contracts.OutcomeSkippedRed
	}

	var diffs []contracts.ScanDiffEntry
	counts := make(map[contracts.Horizon]int)

	for _, h := range contracts.AllHorizons() {
		list, err := s.engine.Scan(ctx, universe, h, state)
		if err != nil {
			s.metrics.RecordError("scanner")
			return contracts.OutcomeAborted, err
		}
		list.CycleID = cycleID
		list.ScanTime = scanTime

		// The TTL-bounded KV copy is the product; failing to write it
		// aborts the cycle.
		if err := s.bus.Set(ctx, bus.CandidatesKey(h), list, bus.CandidatesTTL); err != nil {
			s.metrics.RecordError("bus")
			return contracts.OutcomeAborted, fmt.Errorf("publish candidates %s: %w", h, err)
		}

		counts[h] = len(list.Candidates)
		s.metrics.SetCandidates(h, len(list.Candidates))

		if list.Outcome != contracts.OutcomeCompleted {
			// Skipped lists land on the bus for the outcome field alone:
			// no notification, no diff, previous membership untouched.
			continue
		}

		if err := s.bus.Publish(ctx, bus.ChanActiveCandidates, list); err != nil {
			s.logger.WithError(err).Warn("Candidate publish failed")
			s.metrics.RecordError("bus")
		}

		s.mu.Lock()
		prev := s.previous[h]
		s.previous[h] = list.Tickers()
		s.mu.Unlock()

		diffs = append(diffs, Diff(&list, prev, scanTime, cycleID)...)

		s.logger.WithFields(map[string]interface{}{
			"horizon":   string(h),
			"evaluated": list.Stats.Evaluated,
			"passed":    list.Stats.Passed,
			"failed":    list.Stats.Failed,
			"errored":   list.Stats.Errored,
		}).Info("Scan completed")
	}

	if outcome == contracts.OutcomeCompleted {
		if err := s.bus.Set(ctx, bus.KeyLastScanTime, scanTime, bus.NoTTL); err != nil {
			s.logger.WithError(err).Warn("Last scan time write failed")
		}
	}

	if len(diffs) > 0 {
		if err := s.journal.AppendScanDiff(ctx, diffs); err != nil {
			s.logger.WithError(err).Error("Scan diff journal write failed")
			s.metrics.RecordError("journal")
		}
	}

	s.mu.Lock()
	s.counts = counts
	s.universeSize = len(universe)
	s.lastScan = scanTime
	s.mu.Unlock()

	return outcome, nil
}

// loadMarketState reads the regime's bus slot. Missing is not an error;
// the caller treats it as RED. Transport failure aborts the cycle.
func (s *Service) loadMarketState(ctx context.Context) (contracts.MarketState, bool, error) {
	var state contracts.MarketState
	found, err := s.bus.Get(ctx, bus.KeyMarketState, &state)
	if err != nil {
		return state, false, fmt.Errorf("market state read: %w", err)
	}

	s.mu.Lock()
	warned := s.warnedMissing
	s.warnedMissing = !found
	s.mu.Unlock()

	if !found && !warned {
		s.logger.Warn("Market state missing from bus, assuming RED")
	}
	return state, found, nil
}

// loadUniverse prefers the universe service's bus copy and falls back to
// the configured static universe.
func (s *Service) loadUniverse(ctx context.Context) []string {
	var tickers []string
	found, err := s.bus.Get(ctx, bus.KeyScanUniverse, &tickers)
	if err != nil {
		s.logger.WithError(err).Warn("Universe read failed, using configured universe")
	}
	if !found || len(tickers) == 0 {
		return s.cfg.Universe.Tickers
	}
	return tickers
}

func (s *Service) writeHealth(ctx context.Context) {
	s.mu.Lock()
	counts := make(map[string]interface{}, len(s.counts))
	for h, n := range s.counts {
		counts[string(h)] = n
	}
	h := contracts.Health{
		Service:       ServiceName,
		Status:        contracts.StatusOK,
		UptimeSeconds: time.Since(s.started).Seconds(),
		LastCycle:     s.now(),
		LastOutcome:   s.lastOutcome,
		LastError:     s.lastErr,
		Details: map[string]interface{}{
			"universe_size": s.universeSize,
			"candidates":    counts,
			"last_scan":     s.lastScan,
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
