package regime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/zerotrading/zero/internal/bus"
	"github.com/zerotrading/zero/internal/contracts"
	"github.com/zerotrading/zero/internal/metrics"
	"github.com/zerotrading/zero/pkg/logger"
)

// ServiceName is the health and bus identity of the regime engine.
const ServiceName = "regime"

// maxPendingJournal bounds the retry queue for failed journal writes.
const maxPendingJournal = 32

// pendingRegime is a journal row that failed to write, retried next tick so
// a database blip never loses a state flip from the durable trail.
type pendingRegime struct {
	state contracts.MarketState
	prev  contracts.State
}

// Service runs the regime tick: gather inputs, compute, persist on change.
// No-change ticks only refresh health.
type Service struct {
	calc    *Calculator
	vol     contracts.VolatilitySource
	events  contracts.EventRiskSource
	bus     contracts.Bus
	journal contracts.Journal
	metrics *metrics.Recorder
	logger  *logger.Logger
	now     func() time.Time

	mu      sync.Mutex
	current *contracts.MarketState
	pending []pendingRegime
	lastErr string
	started time.Time
}

// NewService wires the regime engine.
func NewService(calc *Calculator, vol contracts.VolatilitySource, events contracts.EventRiskSource, b contracts.Bus, j contracts.Journal, rec *metrics.Recorder, log *logger.Logger) *Service {
	return &Service{
		calc:    calc,
		vol:     vol,
		events:  events,
		bus:     b,
		journal: j,
		metrics: rec,
		logger:  log,
		now:     time.Now,
		started: time.Now(),
	}
}

// Current returns the most recent snapshot, or false before the first tick.
func (s *Service) Current() (contracts.MarketState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return contracts.MarketState{}, false
	}
	return *s.current, true
}

// Tick computes the state once and persists it when the signal changed.
func (s *Service) Tick(ctx context.Context) error {
	start := time.Now()
	s.flushPendingJournal(ctx)

	vol, volErr := s.vol.Level(ctx)
	volOK := volErr == nil
	if volErr != nil {
		s.logger.WithError(volErr).Warn("Volatility proxy unavailable, failing toward RED")
		s.metrics.RecordError("volatility_source")
	}

	eventRisk := false
	if s.events != nil {
		active, err := s.events.Active(ctx)
		if err != nil {
			s.logger.WithError(err).Warn("Event risk source failed, treating as no event")
			s.metrics.RecordError("event_risk_source")
		} else {
			eventRisk = active
		}
	}
	s.publishEventRisk(ctx, eventRisk)

	next := s.calc.Compute(s.now(), vol, volOK, eventRisk)

	s.mu.Lock()
	var prev contracts.State
	changed := s.current == nil || !s.current.SameSignal(next)
	if s.current != nil {
		prev = s.current.State
	}
	s.mu.Unlock()

	s.metrics.SetRegimeState(next.State)
	if volOK {
		s.metrics.SetVolatilityLevel(vol)
	}

	var tickErr error
	if changed {
		tickErr = s.persist(ctx, next, prev)
	}
	if tickErr == nil {
		// Commit only after the bus write landed: a failed persist keeps
		// the old snapshot, so the next tick still sees a change and
		// retries instead of leaving the bus stale forever.
		s.mu.Lock()
		s.current = &next
		s.mu.Unlock()
	}

	s.writeHealth(ctx, tickErr)

	outcome := contracts.OutcomeCompleted
	if tickErr != nil {
		outcome = contracts.OutcomeAborted
	}
	s.metrics.RecordCycle(ServiceName, outcome, time.Since(start))
	return tickErr
}

// persist is the value-change side effect: bus SET, change PUBLISH, journal.
// The KV write is the one that matters; a lost publish only delays consumers
// until their next KV read, and a failed journal row is queued for retry.
func (s *Service) persist(ctx context.Context, next contracts.MarketState, prev contracts.State) error {
	if err := s.bus.Set(ctx, bus.KeyMarketState, next, bus.NoTTL); err != nil {
		s.metrics.RecordError("bus")
		return fmt.Errorf("persist market state: %w", err)
	}

	change := contracts.StateChange{
		From:      prev,
		To:        next.State,
		Reason:    next.Reason,
		StateKey:  bus.KeyMarketState,
		ChangedAt: next.Timestamp,
	}
	if err := s.bus.Publish(ctx, bus.ChanMarketStateChanged, change); err != nil {
		s.logger.WithError(err).Warn("State change publish failed")
		s.metrics.RecordError("bus")
	}

	if err := s.journal.AppendRegime(ctx, next, prev); err != nil {
		s.logger.WithError(err).Error("Regime journal write failed, queued for retry")
		s.metrics.RecordError("journal")
		s.queueJournal(next, prev)
	}

	s.logger.WithFields(map[string]interface{}{
		"from":   string(prev),
		"to":     string(next.State),
		"reason": next.Reason,
		"window": string(next.TimeWindow),
	}).Info("Market state changed")

	return nil
}

// publishEventRisk refreshes key:event_risk every tick. Best effort: the
// authoritative veto rides in MarketState, this key only lets readers see
// the flag and its freshness directly.
func (s *Service) publishEventRisk(ctx context.Context, active bool) {
	risk := contracts.EventRisk{Active: active, CheckedAt: s.now()}
	if err := s.bus.Set(ctx, bus.KeyEventRisk, risk, bus.NoTTL); err != nil {
		s.logger.WithError(err).Warn("Event risk write failed")
		s.metrics.RecordError("bus")
	}
}

func (s *Service) queueJournal(state contracts.MarketState, prev contracts.State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) >= maxPendingJournal {
		s.pending = s.pending[1:]
		s.logger.Warn("Pending regime journal overflow, dropping oldest row")
	}
	s.pending = append(s.pending, pendingRegime{state: state, prev: prev})
}

// flushPendingJournal retries queued rows in order, stopping at the first
// failure so the append order of the durable trail is preserved.
func (s *Service) flushPendingJournal(ctx context.Context) {
	s.mu.Lock()
	queued := s.pending
	s.pending = nil
	s.mu.Unlock()

	if len(queued) == 0 {
		return
	}

	for i, p := range queued {
		if err := s.journal.AppendRegime(ctx, p.state, p.prev); err != nil {
			s.mu.Lock()
			s.pending = append(queued[i:], s.pending...)
			s.mu.Unlock()
			return
		}
	}
	s.logger.WithField("count", len(queued)).Info("Flushed pending regime journal rows")
}

func (s *Service) writeHealth(ctx context.Context, tickErr error) {
	s.mu.Lock()
	cur := s.current
	if tickErr != nil {
		s.lastErr = tickErr.Error()
	}
	lastErr := s.lastErr
	s.mu.Unlock()

	h := contracts.Health{
		Service:       ServiceName,
		Status:        contracts.StatusOK,
		UptimeSeconds: time.Since(s.started).Seconds(),
		LastCycle:     s.now(),
		LastOutcome:   contracts.OutcomeCompleted,
		LastError:     lastErr,
	}
	if tickErr != nil {
		h.Status = contracts.StatusDegraded
		h.LastOutcome = contracts.OutcomeAborted
	}
	if cur != nil {
		h.Details = map[string]interface{}{
			"state":  string(cur.State),
			"reason": cur.Reason,
			"window": string(cur.TimeWindow),
		}
	}

	if err := s.bus.Set(ctx, bus.HealthKey(ServiceName), h, bus.NoTTL); err != nil {
		s.logger.WithError(err).Warn("Health write failed")
	}
}
