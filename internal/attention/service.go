package attention

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/zerotrading/zero/internal/bus"
	"github.com/zerotrading/zero/internal/contracts"
	"github.com/zerotrading/zero/internal/metrics"
	"github.com/zerotrading/zero/internal/strategyconfig"
	"github.com/zerotrading/zero/pkg/logger"
)

// ServiceName is the health and bus identity of the attention engine.
const ServiceName = "attention"

// proxyLookback is the 5m fetch depth: 90 minutes, a buffer over the
// one-hour component window.
const proxyLookback = 18

// Service runs the attention tick: fetch the proxy series, compute the
// state, publish it, journal bucket moves.
type Service struct {
	calc    *Calculator
	candles contracts.CandleSource
	bus     contracts.Bus
	journal contracts.Journal
	cfg     strategyconfig.Attention
	workers int
	metrics *metrics.Recorder
	logger  *logger.Logger
	now     func() time.Time

	mu          sync.Mutex
	lastBucket  contracts.AttentionBucket
	lastScore   float64
	lastTick    time.Time
	degraded    bool
	lastOutcome contracts.CycleOutcome
	lastErr     string
	started     time.Time
}

// NewService wires the attention engine.
func NewService(calc *Calculator, candles contracts.CandleSource, b contracts.Bus, j contracts.Journal, cfg strategyconfig.Attention, workers int, rec *metrics.Recorder, log *logger.Logger) *Service {
	if workers < 1 {
		workers = 1
	}
	return &Service{
		calc:    calc,
		candles: candles,
		bus:     b,
		journal: j,
		cfg:     cfg,
		workers: workers,
		metrics: rec,
		logger:  log,
		now:     time.Now,
		started: time.Now(),
	}
}

// Tick runs one attention cycle.
func (s *Service) Tick(ctx context.Context) error {
	start := time.Now()

	outcome, tickErr := s.runCycle(ctx)

	s.mu.Lock()
	s.lastOutcome = outcome
	s.lastTick = s.now()
	if tickErr != nil {
		s.lastErr = tickErr.Error()
	}
	s.mu.Unlock()

	s.writeHealth(ctx)
	s.metrics.RecordCycle(ServiceName, outcome, time.Since(start))
	return tickErr
}

func (s *Service) runCycle(ctx context.Context) (contracts.CycleOutcome, error) {
	// The permission state only shades the vol-pressure component; a
	// missing regime must not manufacture instability here. Halting is
	// the regime engine's job.
	var market contracts.MarketState
	if _, err := s.bus.Get(ctx, bus.KeyMarketState, &market); err != nil {
		s.logger.WithError(err).Warn("Market state read failed, computing without it")
		s.metrics.RecordError("bus")
	}

	series := s.collect(ctx, s.watchlist())
	state := s.calc.Compute(series, market, s.now().UTC())

	// The keyed copy is the product; failing to write it aborts the tick.
	if err := s.bus.Set(ctx, bus.KeyAttentionState, state, bus.NoTTL); err != nil {
		s.metrics.RecordError("bus")
		return contracts.OutcomeAborted, fmt.Errorf("publish attention: %w", err)
	}
	s.metrics.SetAttentionScore(state.StabilityScore)

	if err := s.bus.Publish(ctx, bus.ChanAttentionChanged, state); err != nil {
		s.logger.WithError(err).Warn("Attention publish failed")
		s.metrics.RecordError("bus")
	}

	s.mu.Lock()
	prevBucket := s.lastBucket
	s.lastBucket = state.Bucket
	s.lastScore = state.StabilityScore
	s.degraded = state.Degraded
	s.mu.Unlock()

	if prevBucket != state.Bucket {
		if err := s.journal.AppendAttention(ctx, state); err != nil {
			s.logger.WithError(err).Error("Attention journal write failed")
			s.metrics.RecordError("journal")
		}
		s.logger.WithFields(map[string]interface{}{
			"from": string(prevBucket),
			"to":   string(state.Bucket),
		}).Info("Attention bucket moved")
	}

	if state.Degraded {
		s.logger.WithField("reason", state.DegradedReason).Warn("Attention degraded, neutral state published")
	} else {
		s.logger.WithFields(map[string]interface{}{
			"score":  state.StabilityScore,
			"bucket": string(state.Bucket),
			"risk":   string(state.RiskState),
		}).Info("Attention computed")
	}

	return contracts.OutcomeCompleted, nil
}

// watchlist is every proxy the engine needs, deduplicated in config order.
func (s *Service) watchlist() []string {
	seen := make(map[string]struct{})
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
	for _, sym := range s.cfg.IndexProxies {
		add(sym)
	}
	for _, sym := range s.cfg.SectorETFs {
		add(sym)
	}
	add(s.cfg.VolProxy)
	return out
}

// collect fetches every proxy's 5m series over a bounded fan-out. Fetch
// failures drop the symbol rather than abort: the calculator degrades
// gracefully when too little arrives, and a neutral published state beats
// a missing one.
func (s *Service) collect(ctx context.Context, symbols []string) map[string][]contracts.Candle {
	sem := make(chan struct{}, s.workers)
	var wg sync.WaitGroup

	var mu sync.Mutex
	series := make(map[string][]contracts.Candle, len(symbols))

	for _, sym := range symbols {
		wg.Add(1)
		go func(sym string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			bars, err := s.candles.Candles(ctx, sym, contracts.Timeframe5m, proxyLookback)
			if err != nil {
				if contracts.TickerSkippable(err) {
					s.logger.WithError(err).WithField("symbol", sym).Debug("Proxy has no usable history")
					s.metrics.RecordTickerSkipped(ServiceName, "history_unavailable")
				} else {
					s.logger.WithError(err).WithField("symbol", sym).Warn("Proxy fetch failed")
					s.metrics.RecordError("store")
				}
				return
			}
			mu.Lock()
			series[sym] = bars
			mu.Unlock()
		}(sym)
	}
	wg.Wait()
	return series
}

func (s *Service) writeHealth(ctx context.Context) {
	s.mu.Lock()
	h := contracts.Health{
		Service:       ServiceName,
		Status:        contracts.StatusOK,
		UptimeSeconds: time.Since(s.started).Seconds(),
		LastCycle:     s.lastTick,
		LastOutcome:   s.lastOutcome,
		LastError:     s.lastErr,
		Details: map[string]interface{}{
			"score":    s.lastScore,
			"bucket":   string(s.lastBucket),
			"degraded": s.degraded,
		},
	}
	if s.lastOutcome == contracts.OutcomeAborted || s.degraded {
		h.Status = contracts.StatusDegraded
	}
	s.mu.Unlock()

	if err := s.bus.Set(ctx, bus.HealthKey(ServiceName), h, bus.NoTTL); err != nil {
		s.logger.WithError(err).Warn("Health write failed")
	}
}
