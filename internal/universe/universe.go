// Package universe owns key:scan_universe: the configured ticker list,
// normalized and validated, published for the scanner to read.
package universe

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/zerotrading/zero/internal/bus"
	"github.com/zerotrading/zero/internal/contracts"
	"github.com/zerotrading/zero/internal/metrics"
	"github.com/zerotrading/zero/pkg/logger"
)

// ServiceName is the health and bus identity of the universe service.
const ServiceName = "universe"

// symbolPattern accepts US equity symbols: 1-5 letters with an optional
// class suffix (BRK.B, BF-B).
var symbolPattern = regexp.MustCompile(`^[A-Z]{1,5}([.-][A-Z]{1,2})?$`)

// Universe is one build of the scan universe.
type Universe struct {
	Tickers  []string
	Excluded map[string]string
	BuiltAt  time.Time
}

// Builder assembles the universe from the configured list plus an
// optional overlay file of one symbol per line.
type Builder struct {
	configured []string
	filePath   string
}

func NewBuilder(configured []string, filePath string) *Builder {
	return &Builder{configured: configured, filePath: filePath}
}

// Build normalizes, validates, and dedupes. Order is preserved: the
// configured list first, then the overlay file.
func (b *Builder) Build() (*Universe, error) {
	raw := make([]string, 0, len(b.configured))
	raw = append(raw, b.configured...)

	if b.filePath != "" {
		overlay, err := readOverlay(b.filePath)
		if err != nil {
			return nil, fmt.Errorf("universe file %s: %w", b.filePath, err)
		}
		raw = append(raw, overlay...)
	}

	u := &Universe{
		Tickers:  make([]string, 0, len(raw)),
		Excluded: make(map[string]string),
		BuiltAt:  time.Now().UTC(),
	}

	seen := make(map[string]struct{}, len(raw))
	for _, sym := range raw {
		norm := strings.ToUpper(strings.TrimSpace(sym))
		if norm == "" {
			continue
		}
		if reason := checkExclusion(norm, seen); reason != "" {
			u.Excluded[norm] = reason
			continue
		}
		seen[norm] = struct{}{}
		u.Tickers = append(u.Tickers, norm)
	}

	if len(u.Tickers) == 0 {
		return nil, fmt.Errorf("universe: no valid symbols after filtering %d entries", len(raw))
	}
	return u, nil
}

// checkExclusion returns why a symbol is dropped, or "" for a keeper.
func checkExclusion(sym string, seen map[string]struct{}) string {
	if _, dup := seen[sym]; dup {
		return "duplicate"
	}
	if !symbolPattern.MatchString(sym) {
		return "invalid symbol"
	}
	return ""
}

// readOverlay reads one symbol per line, skipping blanks and # comments.
func readOverlay(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out, nil
}

// Service publishes the universe on boot and on schedule so the bus copy
// outlives its TTL. The TTL means a dead publisher leaves the scanner on
// its config fallback within a day.
type Service struct {
	builder *Builder
	bus     contracts.Bus
	metrics *metrics.Recorder
	logger  *logger.Logger

	mu          sync.Mutex
	last        *Universe
	lastCycle   time.Time
	lastOutcome contracts.CycleOutcome
	lastErr     string
	started     time.Time
}

func NewService(builder *Builder, b contracts.Bus, rec *metrics.Recorder, log *logger.Logger) *Service {
	return &Service{
		builder: builder,
		bus:     b,
		metrics: rec,
		logger:  log,
		started: time.Now(),
	}
}

// Publish builds the universe and SETs the bus copy.
func (s *Service) Publish(ctx context.Context) error {
	start := time.Now()
	outcome := contracts.OutcomeCompleted

	u, err := s.builder.Build()
	if err == nil {
		if setErr := s.bus.Set(ctx, bus.KeyScanUniverse, u.Tickers, bus.UniverseTTL); setErr != nil {
			err = fmt.Errorf("publish universe: %w", setErr)
		}
	}

	s.mu.Lock()
	s.lastCycle = time.Now()
	if err != nil {
		outcome = contracts.OutcomeAborted
		s.lastErr = err.Error()
	} else {
		s.last = u
	}
	s.lastOutcome = outcome
	s.mu.Unlock()

	if err == nil {
		s.logger.WithFields(map[string]interface{}{
			"tickers":  len(u.Tickers),
			"excluded": len(u.Excluded),
		}).Info("Scan universe published")
		for sym, reason := range u.Excluded {
			s.logger.WithFields(map[string]interface{}{
				"symbol": sym,
				"reason": reason,
			}).Debug("Universe symbol excluded")
		}
	}

	s.writeHealth(ctx)
	s.metrics.RecordCycle(ServiceName, outcome, time.Since(start))
	return err
}

func (s *Service) writeHealth(ctx context.Context) {
	s.mu.Lock()
	var tickers, excluded int
	if s.last != nil {
		tickers = len(s.last.Tickers)
		excluded = len(s.last.Excluded)
	}
	h := contracts.Health{
		Service:       ServiceName,
		Status:        contracts.StatusOK,
		UptimeSeconds: time.Since(s.started).Seconds(),
		LastCycle:     s.lastCycle,
		LastOutcome:   s.lastOutcome,
		LastError:     s.lastErr,
		Details: map[string]interface{}{
			"tickers":  tickers,
			"excluded": excluded,
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
