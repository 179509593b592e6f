package scanner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zerotrading/zero/internal/bus"
	"github.com/zerotrading/zero/internal/contracts"
	"github.com/zerotrading/zero/internal/metrics"
	"github.com/zerotrading/zero/internal/strategyconfig"
	"github.com/zerotrading/zero/pkg/config"
	"github.com/zerotrading/zero/pkg/logger"
)

type fakeJournal struct {
	mu      sync.Mutex
	fail    error
	batches [][]contracts.ScanDiffEntry
}

func (j *fakeJournal) AppendRegime(context.Context, contracts.MarketState, contracts.State) error {
	return nil
}

func (j *fakeJournal) AppendScanDiff(_ context.Context, entries []contracts.ScanDiffEntry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.fail != nil {
		return j.fail
	}
	cp := make([]contracts.ScanDiffEntry, len(entries))
	copy(cp, entries)
	j.batches = append(j.batches, cp)
	return nil
}

func (j *fakeJournal) AppendOpportunities(context.Context, *contracts.OpportunityRank, int) error {
	return nil
}

func (j *fakeJournal) AppendAttention(context.Context, contracts.AttentionState) error {
	return nil
}

type flakyBus struct {
	contracts.Bus
	failSet error
}

func (f *flakyBus) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if f.failSet != nil {
		return f.failSet
	}
	return f.Bus.Set(ctx, key, value, ttl)
}

func testScanService(t *testing.T, b contracts.Bus) (*Service, *fakeCandles, *fakeJournal) {
	t.Helper()
	cfg := &config.Config{Env: "test", LogLevel: "error"}
	log := logger.New(cfg)
	rec := metrics.NewWith(prometheus.NewRegistry())
	strat := &strategyconfig.Config{
		Universe: strategyconfig.Universe{Tickers: []string{"ZGOOD", "ZCHOP"}},
		Horizons: testHorizons(),
		Scanner:  strategyconfig.Scanner{Filters: testFilterCfg(), Structure: testStructureCfg()},
	}

	src := newFakeCandles()
	eng, err := NewEngine(src, strat.Scanner, strat.Horizons, 2, rec, log)
	require.NoError(t, err)

	j := &fakeJournal{}
	return NewService(eng, b, j, strat, rec, log), src, j
}

// seedPassing loads a ticker with series that survive every stage at both
// scan resolutions.
func seedPassing(src *fakeCandles, ticker string) {
	src.put(ticker, contracts.Timeframe1m, candidateBars(60))
	src.put(ticker, contracts.Timeframe5m, candidateBars(60))
}

func seedChop(src *fakeCandles, ticker string) {
	src.put(ticker, contracts.Timeframe1m, chopBars(60))
	src.put(ticker, contracts.Timeframe5m, chopBars(60))
}

func drainMessages(ch <-chan contracts.Message) []contracts.Message {
	var msgs []contracts.Message
	for {
		select {
		case m := <-ch:
			msgs = append(msgs, m)
		default:
			return msgs
		}
	}
}

func readScanHealth(t *testing.T, b contracts.Bus) contracts.Health {
	t.Helper()
	var h contracts.Health
	found, err := b.Get(context.Background(), bus.HealthKey(ServiceName), &h)
	require.NoError(t, err)
	require.True(t, found)
	return h
}

func TestTickGreenScansEveryHorizon(t *testing.T) {
	ctx := context.Background()
	b := bus.NewMemory()
	svc, src, j := testScanService(t, b)
	seedPassing(src, "ZGOOD")
	seedChop(src, "ZCHOP")
	require.NoError(t, b.Set(ctx, bus.KeyMarketState, greenState(), bus.NoTTL))

	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	msgs, err := b.Subscribe(subCtx, bus.ChanActiveCandidates)
	require.NoError(t, err)

	require.NoError(t, svc.Tick(ctx))

	var cycleID string
	for _, h := range contracts.AllHorizons() {
		var list contracts.CandidateList
		found, err := b.Get(ctx, bus.CandidatesKey(h), &list)
		require.NoError(t, err)
		require.True(t, found, "missing list for %s", h)

		assert.Equal(t, contracts.OutcomeCompleted, list.Outcome)
		assert.Equal(t, []string{"ZGOOD"}, list.Tickers())
		assert.Equal(t, contracts.FilterStats{Evaluated: 2, Passed: 1, Failed: 1}, list.Stats)
		require.NotEmpty(t, list.CycleID)
		if cycleID == "" {
			cycleID = list.CycleID
		}
		assert.Equal(t, cycleID, list.CycleID, "one cycle id per tick")
	}

	var lastScan time.Time
	found, err := b.Get(ctx, bus.KeyLastScanTime, &lastScan)
	require.NoError(t, err)
	assert.True(t, found)
	assert.False(t, lastScan.IsZero())

	published := drainMessages(msgs)
	require.Len(t, published, 4)
	seen := make(map[contracts.Horizon]bool)
	for _, m := range published {
		var list contracts.CandidateList
		require.NoError(t, json.Unmarshal(m.Payload, &list))
		seen[list.Horizon] = true
	}
	assert.Len(t, seen, 4)

	require.Len(t, j.batches, 1)
	require.Len(t, j.batches[0], 4)
	for _, entry := range j.batches[0] {
		assert.Equal(t, "ZGOOD", entry.Ticker)
		assert.Equal(t, contracts.ActionAdded, entry.Action)
		assert.Equal(t, cycleID, entry.CycleID)
	}

	h := readScanHealth(t, b)
	assert.Equal(t, contracts.StatusOK, h.Status)
	assert.Equal(t, contracts.OutcomeCompleted, h.LastOutcome)
	assert.EqualValues(t, 2, h.Details["universe_size"])
}

func TestTickSecondCycleJournalsMaintained(t *testing.T) {
	ctx := context.Background()
	b := bus.NewMemory()
	svc, src, j := testScanService(t, b)
	seedPassing(src, "ZGOOD")
	seedChop(src, "ZCHOP")
	require.NoError(t, b.Set(ctx, bus.KeyMarketState, greenState(), bus.NoTTL))

	require.NoError(t, svc.Tick(ctx))
	require.NoError(t, svc.Tick(ctx))

	require.Len(t, j.batches, 2)
	require.Len(t, j.batches[1], 4)
	for _, entry := range j.batches[1] {
		assert.Equal(t, contracts.ActionMaintained, entry.Action)
	}
	assert.NotEqual(t, j.batches[0][0].CycleID, j.batches[1][0].CycleID)
}

func TestTickRedPublishesSkipMarkerOnly(t *testing.T) {
	ctx := context.Background()
	b := bus.NewMemory()
	svc, src, j := testScanService(t, b)
	seedPassing(src, "ZGOOD")

	state := greenState()
	state.State = contracts.StateRed
	state.Reason = contracts.ReasonWeekendHalt
	require.NoError(t, b.Set(ctx, bus.KeyMarketState, state, bus.NoTTL))

	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	msgs, err := b.Subscribe(subCtx, bus.ChanActiveCandidates)
	require.NoError(t, err)

	require.NoError(t, svc.Tick(ctx))

	for _, h := range contracts.AllHorizons() {
		var list contracts.CandidateList
		found, err := b.Get(ctx, bus.CandidatesKey(h), &list)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, contracts.OutcomeSkippedRed, list.Outcome)
		assert.Empty(t, list.Candidates)
	}

	found, err := b.Get(ctx, bus.KeyLastScanTime, &time.Time{})
	require.NoError(t, err)
	assert.False(t, found, "skipped cycles must not advance the scan clock")

	assert.Empty(t, drainMessages(msgs))
	assert.Empty(t, j.batches)
	assert.Zero(t, src.callCount())

	h := readScanHealth(t, b)
	assert.Equal(t, contracts.StatusOK, h.Status)
	assert.Equal(t, contracts.OutcomeSkippedRed, h.LastOutcome)
}

func TestTickMissingStateAssumesRed(t *testing.T) {
	ctx := context.Background()
	b := bus.NewMemory()
	svc, src, j := testScanService(t, b)
	seedPassing(src, "ZGOOD")

	require.NoError(t, svc.Tick(ctx))

	var list contracts.CandidateList
	found, err := b.Get(ctx, bus.CandidatesKey(contracts.Horizon30), &list)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, contracts.OutcomeSkippedRed, list.Outcome)
	assert.Empty(t, j.batches)
	assert.Zero(t, src.callCount())
}

func TestTickPrefersBusUniverse(t *testing.T) {
	ctx := context.Background()
	b := bus.NewMemory()
	svc, src, _ := testScanService(t, b)
	seedPassing(src, "ZALT")
	require.NoError(t, b.Set(ctx, bus.KeyMarketState, greenState(), bus.NoTTL))
	require.NoError(t, b.Set(ctx, bus.KeyScanUniverse, []string{"ZALT"}, bus.UniverseTTL))

	require.NoError(t, svc.Tick(ctx))

	var list contracts.CandidateList
	found, err := b.Get(ctx, bus.CandidatesKey(contracts.Horizon30), &list)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []string{"ZALT"}, list.Tickers())
	assert.Equal(t, contracts.FilterStats{Evaluated: 1, Passed: 1}, list.Stats)
}

func TestTickAbortsWhenStoreUnavailable(t *testing.T) {
	ctx := context.Background()
	b := bus.NewMemory()
	svc, src, j := testScanService(t, b)
	seedPassing(src, "ZGOOD")
	src.errs["ZCHOP"] = fmt.Errorf("pool exhausted: %w", contracts.ErrUpstreamUnavailable)
	require.NoError(t, b.Set(ctx, bus.KeyMarketState, greenState(), bus.NoTTL))

	err := svc.Tick(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, contracts.ErrUpstreamUnavailable)

	var list contracts.CandidateList
	found, getErr := b.Get(ctx, bus.CandidatesKey(contracts.Horizon30), &list)
	require.NoError(t, getErr)
	assert.False(t, found, "aborted cycles publish nothing")
	assert.Empty(t, j.batches)

	h := readScanHealth(t, b)
	assert.Equal(t, contracts.StatusDegraded, h.Status)
	assert.Equal(t, contracts.OutcomeAborted, h.LastOutcome)
	assert.Contains(t, h.LastError, "scan")
}

func TestTickAbortsWhenCandidateWriteFails(t *testing.T) {
	ctx := context.Background()
	mem := bus.NewMemory()
	require.NoError(t, mem.Set(ctx, bus.KeyMarketState, greenState(), bus.NoTTL))
	fb := &flakyBus{Bus: mem, failSet: errors.New("redis down")}

	svc, src, j := testScanService(t, fb)
	seedPassing(src, "ZGOOD")
	seedChop(src, "ZCHOP")

	err := svc.Tick(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "publish candidates")
	assert.Empty(t, j.batches)
}

func TestTickJournalFailureDoesNotAbort(t *testing.T) {
	ctx := context.Background()
	b := bus.NewMemory()
	svc, src, j := testScanService(t, b)
	j.fail = errors.New("pg down")
	seedPassing(src, "ZGOOD")
	seedChop(src, "ZCHOP")
	require.NoError(t, b.Set(ctx, bus.KeyMarketState, greenState(), bus.NoTTL))

	require.NoError(t, svc.Tick(ctx), "diffs are observability, not the product")

	var list contracts.CandidateList
	found, err := b.Get(ctx, bus.CandidatesKey(contracts.Horizon30), &list)
	require.NoError(t, err)
	assert.True(t, found)

	h := readScanHealth(t, b)
	assert.Equal(t, contracts.StatusOK, h.Status)
	assert.Equal(t, contracts.OutcomeCompleted, h.LastOutcome)
}
