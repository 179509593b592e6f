package ingest

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zerotrading/zero/internal/contracts"
	"github.com/zerotrading/zero/internal/metrics"
	"github.com/zerotrading/zero/pkg/config"
	"github.com/zerotrading/zero/pkg/logger"
)

type fetchCall struct {
	symbol string
	tf     contracts.Timeframe
	start  time.Time
	end    time.Time
}

// fakeFetcher serves canned bars keyed by symbol and timeframe and
// records every window it was asked for.
type fakeFetcher struct {
	mu      sync.Mutex
	bars    map[string][]contracts.Candle
	errs    map[string]error
	failAll error
	calls   []fetchCall
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		bars: make(map[string][]contracts.Candle),
		errs: make(map[string]error),
	}
}

func (f *fakeFetcher) put(symbol string, tf contracts.Timeframe, bars []contracts.Candle) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bars[symbol+"|"+string(tf)] = bars
}

func (f *fakeFetcher) Bars(_ context.Context, symbol string, tf contracts.Timeframe, start, end time.Time) ([]contracts.Candle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fetchCall{symbol: symbol, tf: tf, start: start, end: end})
	if f.failAll != nil {
		return nil, f.failAll
	}
	if err := f.errs[symbol]; err != nil {
		return nil, err
	}
	return f.bars[symbol+"|"+string(tf)], nil
}

// fetched returns the distinct symbols seen, sorted.
func (f *fakeFetcher) fetched() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	seen := make(map[string]struct{})
	for _, c := range f.calls {
		seen[c.symbol] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for sym := range seen {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

func (f *fakeFetcher) callsFor(symbol string) []fetchCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []fetchCall
	for _, c := range f.calls {
		if c.symbol == symbol {
			out = append(out, c)
		}
	}
	return out
}

// fakeStore records upserted bars keyed by ticker and timeframe.
type fakeStore struct {
	mu   sync.Mutex
	fail map[string]error
	rows map[string][]contracts.Candle
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		fail: make(map[string]error),
		rows: make(map[string][]contracts.Candle),
	}
}

func (s *fakeStore) Upsert(_ context.Context, ticker string, tf contracts.Timeframe, bars []contracts.Candle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail[ticker]; err != nil {
		return err
	}
	key := ticker + "|" + string(tf)
	s.rows[key] = append(s.rows[key], bars...)
	return nil
}

func (s *fakeStore) barsFor(ticker string, tf contracts.Timeframe) []contracts.Candle {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := ticker + "|" + string(tf)
	out := make([]contracts.Candle, len(s.rows[key]))
	copy(out, s.rows[key])
	return out
}

func testLogger() *logger.Logger {
	return logger.New(&config.Config{Env: "test", LogLevel: "error"})
}

func barsOf(n int) []contracts.Candle {
	t0 := time.Date(2025, 6, 3, 14, 0, 0, 0, time.UTC)
	out := make([]contracts.Candle, n)
	for i := range out {
		out[i] = contracts.Candle{
			Time:   t0.Add(time.Duration(i) * time.Minute),
			Open:   100,
			High:   101,
			Low:    99,
			Close:  100.5,
			Volume: 50000,
		}
	}
	return out
}

func testBackfiller(f BarFetcher, s BarWriter) *Backfiller {
	return NewBackfiller(f, s, 2, metrics.NewWith(prometheus.NewRegistry()), testLogger())
}

func seedAllFrames(f *fakeFetcher, symbol string) {
	f.put(symbol, contracts.Timeframe1m, barsOf(5))
	f.put(symbol, contracts.Timeframe5m, barsOf(4))
	f.put(symbol, contracts.Timeframe1d, barsOf(3))
}

func TestBackfillSweepsAllResolutions(t *testing.T) {
	f := newFakeFetcher()
	store := newFakeStore()
	seedAllFrames(f, "ZA")
	seedAllFrames(f, "ZB")

	res, err := testBackfiller(f, store).Run(context.Background(), []string{"ZA", "ZB"})
	require.NoError(t, err)

	assert.Equal(t, 2, res.Symbols)
	assert.Equal(t, 0, res.Failed)
	assert.Equal(t, 24, res.Bars)
	assert.Equal(t, map[contracts.Timeframe]int{
		contracts.Timeframe1m: 10,
		contracts.Timeframe5m: 8,
		contracts.Timeframe1d: 6,
	}, res.ByFrame)

	assert.Len(t, store.barsFor("ZA", contracts.Timeframe1m), 5)
	assert.Len(t, store.barsFor("ZA", contracts.Timeframe1d), 3)
	assert.Len(t, store.barsFor("ZB", contracts.Timeframe5m), 4)
}

func TestBackfillWindowsMatchDepths(t *testing.T) {
	f := newFakeFetcher()
	store := newFakeStore()
	seedAllFrames(f, "ZA")

	b := testBackfiller(f, store)
	fixed := time.Date(2025, 6, 3, 18, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return fixed }

	_, err := b.Run(context.Background(), []string{"ZA"})
	require.NoError(t, err)

	calls := f.callsFor("ZA")
	require.Len(t, calls, 3)

	depths := map[contracts.Timeframe]time.Duration{
		contracts.Timeframe1m: depth1m,
		contracts.Timeframe5m: depth5m,
		contracts.Timeframe1d: depth1d,
	}
	for _, c := range calls {
		assert.Equal(t, fixed, c.end, "sweeps end at now")
		assert.Equal(t, depths[c.tf], c.end.Sub(c.start), "window depth for %s", c.tf)
	}
}

func TestBackfillPartialFailureContinues(t *testing.T) {
	f := newFakeFetcher()
	store := newFakeStore()
	seedAllFrames(f, "ZGOOD")
	f.errs["ZBAD"] = errors.New("429 too many requests")

	res, err := testBackfiller(f, store).Run(context.Background(), []string{"ZBAD", "ZGOOD"})
	require.NoError(t, err, "one bad symbol must not sink the sweep")

	assert.Equal(t, 2, res.Symbols)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 12, res.Bars)
	assert.Empty(t, store.barsFor("ZBAD", contracts.Timeframe1m))
	assert.Len(t, store.barsFor("ZGOOD", contracts.Timeframe1m), 5)
}

func TestBackfillAbortsWhenNothingLands(t *testing.T) {
	f := newFakeFetcher()
	f.failAll = errors.New("connection refused")

	res, err := testBackfiller(f, newFakeStore()).Run(context.Background(), []string{"ZA", "ZB"})

	require.Error(t, err)
	assert.ErrorIs(t, err, contracts.ErrUpstreamUnavailable)
	assert.Equal(t, 2, res.Failed)
	assert.Equal(t, 0, res.Bars)
}

func TestBackfillEmptyMarketIsNotAFailure(t *testing.T) {
	f := newFakeFetcher() // symbols known, no bars in the window
	store := newFakeStore()

	res, err := testBackfiller(f, store).Run(context.Background(), []string{"ZA", "ZB"})

	require.NoError(t, err, "a closed market sweeps nothing and that is fine")
	assert.Equal(t, 0, res.Failed)
	assert.Equal(t, 0, res.Bars)
}

func TestBackfillWriteFailureCounts(t *testing.T) {
	f := newFakeFetcher()
	store := newFakeStore()
	seedAllFrames(f, "ZA")
	seedAllFrames(f, "ZB")
	store.fail["ZA"] = errors.New("pool exhausted")

	res, err := testBackfiller(f, store).Run(context.Background(), []string{"ZA", "ZB"})
	require.NoError(t, err)

	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 12, res.Bars, "only the writable symbol counts")
	assert.Empty(t, store.barsFor("ZA", contracts.Timeframe1m))
}

func TestBackfillEmptyWatchlist(t *testing.T) {
	res, err := testBackfiller(newFakeFetcher(), newFakeStore()).Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, Result{ByFrame: map[contracts.Timeframe]int{}}, res)
}
