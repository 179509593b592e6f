package ranker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/zerotrading/zero/internal/bus"
	"github.com/zerotrading/zero/internal/contracts"
	"github.com/zerotrading/zero/internal/metrics"
	"github.com/zerotrading/zero/internal/strategyconfig"
	"github.com/zerotrading/zero/pkg/logger"
)

// ServiceName is the health and bus identity of the ranker.
const ServiceName = "ranker"

// Service turns candidate lists into published opportunity ranks. It is
// trigger-driven rather than scheduled: candidate publications and
// favorable state changes rank immediately, and a safety tick re-ranks
// whatever lists sit on the bus so a dropped notification only delays a
// rank instead of losing it.
type Service struct {
	engine  *Engine
	bus     contracts.Bus
	journal contracts.Journal
	cfg     *strategyconfig.Config
	safety  time.Duration
	metrics *metrics.Recorder
	logger  *logger.Logger
	now     func() time.Time

	mu            sync.Mutex
	counts        map[contracts.Horizon]int
	lastRank      time.Time
	lastOutcome   contracts.CycleOutcome
	lastErr       string
	warnedMissing bool
	started       time.Time
}

// NewService wires the ranker. safety is the re-rank interval when no
// channel traffic arrives.
func NewService(engine *Engine, b contracts.Bus, j contracts.Journal, cfg *strategyconfig.Config, safety time.Duration, rec *metrics.Recorder, log *logger.Logger) *Service {
	if safety <= 0 {
		safety = time.Minute
	}
	return &Service{
		engine:  engine,
		bus:     b,
		journal: j,
		cfg:     cfg,
		safety:  safety,
		metrics: rec,
		logger:  log,
		now:     time.Now,
		counts:  make(map[contracts.Horizon]int),
		started: time.Now(),
	}
}

// Run consumes triggers until ctx is done. Messages are handled serially:
// a slow rank makes the next trigger wait rather than overlap it.
func (s *Service) Run(ctx context.Context) error {
	msgs, err := s.bus.Subscribe(ctx, bus.ChanActiveCandidates, bus.ChanMarketStateChanged)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	ticker := time.NewTicker(s.safety)
	defer ticker.Stop()

	s.logger.WithField("safety_tick", s.safety.String()).Info("Ranker running")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				return ctx.Err()
			}
			s.handleMessage(ctx, msg)
		case <-ticker.C:
			s.RankAll(ctx)
		}
	}
}

func (s *Service) handleMessage(ctx context.Context, msg contracts.Message) {
	switch msg.Channel {
	case bus.ChanActiveCandidates:
		var list contracts.CandidateList
		if err := json.Unmarshal(msg.Payload, &list); err != nil {
			s.logger.WithError(err).Warn("Undecodable candidate message")
			s.metrics.RecordError("bus")
			return
		}
		s.RankList(ctx, &list)
	case bus.ChanMarketStateChanged:
		var change contracts.StateChange
		if err := json.Unmarshal(msg.Payload, &change); err != nil {
			s.logger.WithError(err).Warn("Undecodable state change message")
			s.metrics.RecordError("bus")
			return
		}
		if change.To == contracts.StateRed {
			// RED ranks itself out: the existing ranks expire by TTL
			// and the scanner's next lists are skip markers.
			return
		}
		s.logger.WithFields(map[string]interface{}{
			"from": string(change.From),
			"to":   string(change.To),
		}).Info("Permission state moved, re-ranking")
		s.RankAll(ctx)
	}
}

// RankAll re-ranks every completed candidate list currently on the bus.
func (s *Service) RankAll(ctx context.Context) {
	for _, h := range contracts.AllHorizons() {
		var list contracts.CandidateList
		found, err := s.bus.Get(ctx, bus.CandidatesKey(h), &list)
		if err != nil {
			s.logger.WithError(err).Warn("Candidate list read failed")
			s.metrics.RecordError("bus")
			continue
		}
		if !found || list.Outcome != contracts.OutcomeCompleted {
			// Nothing to rank: no scan yet, or the scan was skipped
			// and the list carries no members.
			continue
		}
		s.RankList(ctx, &list)
	}
}

// RankList runs one rank cycle for one candidate list.
func (s *Service) RankList(ctx context.Context, list *contracts.CandidateList) {
	start := time.Now()

	outcome, err := s.rankCycle(ctx, list)
	if err != nil {
		s.logger.WithError(err).WithField("horizon", string(list.Horizon)).Error("Rank cycle failed")
	}

	s.mu.Lock()
	s.lastOutcome = outcome
	s.lastRank = s.now()
	if err != nil {
		s.lastErr = err.Error()
	}
	s.mu.Unlock()

	s.writeHealth(ctx)
	s.metrics.RecordCycle(ServiceName, outcome, time.Since(start))
}

func (s *Service) rankCycle(ctx context.Context, list *contracts.CandidateList) (contracts.CycleOutcome, error) {
	state, found, err := s.loadMarketState(ctx)
	if err != nil {
		s.metrics.RecordError("bus")
		return contracts.OutcomeAborted, err
	}
	if !found {
		// Same conservatism as the scanner: no permission state on the
		// bus reads as RED.
		state.State = contracts.StateRed
	}

	attention := s.loadAttention(ctx)

	rank, err := s.engine.Rank(ctx, list, state, attention)
	if err != nil {
		s.metrics.RecordError("ranker")
		return contracts.OutcomeAborted, err
	}

	// Final invariant stop: nothing ranked under RED ever reaches the
	// bus, whatever produced it.
	if state.IsRed() && len(rank.Opportunities) > 0 {
		s.metrics.RecordError("invariant")
		s.logger.WithField("horizon", string(rank.Horizon)).Error("Dropped opportunities produced under RED")
		rank.Opportunities = nil
		rank.Outcome = contracts.OutcomeSkippedRed
	}

	rank.RankTime = s.now().UTC()

	// The TTL-bounded KV copy is the product; failing to write it aborts
	// the cycle.
	if err := s.bus.Set(ctx, bus.RankKey(rank.Horizon), rank, bus.RankTTL); err != nil {
		s.metrics.RecordError("bus")
		return contracts.OutcomeAborted, fmt.Errorf("publish rank %s: %w", rank.Horizon, err)
	}

	s.mu.Lock()
	s.counts[rank.Horizon] = len(rank.Opportunities)
	s.mu.Unlock()
	s.metrics.SetOpportunities(rank.Horizon, len(rank.Opportunities))

	if rank.Outcome != contracts.OutcomeCompleted {
		return rank.Outcome, nil
	}

	if err := s.bus.Publish(ctx, bus.ChanOpportunityRank, rank); err != nil {
		s.logger.WithError(err).Warn("Rank publish failed")
		s.metrics.RecordError("bus")
	}

	if len(rank.Opportunities) > 0 {
		if err := s.journal.AppendOpportunities(ctx, &rank, s.cfg.Ranking.TopKJournal); err != nil {
			s.logger.WithError(err).Error("Opportunity journal write failed")
			s.metrics.RecordError("journal")
		}
	}

	s.logger.WithFields(map[string]interface{}{
		"horizon":       string(rank.Horizon),
		"candidates":    rank.TotalCandidates,
		"opportunities": len(rank.Opportunities),
	}).Info("Rank completed")

	return contracts.OutcomeCompleted, nil
}

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

// loadAttention reads the attention engine's slot, falling back to the
// neutral degraded state when missing or unreadable.
func (s *Service) loadAttention(ctx context.Context) contracts.AttentionState {
	var att contracts.AttentionState
	found, err := s.bus.Get(ctx, bus.KeyAttentionState, &att)
	if err != nil {
		s.logger.WithError(err).Warn("Attention read failed, using fallback")
		return contracts.FallbackAttention("bus read failed", s.now().UTC())
	}
	if !found {
		return contracts.FallbackAttention("attention state missing", s.now().UTC())
	}
	return att
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
			"opportunities": counts,
			"last_rank":     s.lastRank,
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
