package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zerotrading/zero/internal/bus"
	"github.com/zerotrading/zero/internal/contracts"
	"github.com/zerotrading/zero/pkg/config"
	"github.com/zerotrading/zero/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New(&config.Config{Env: "test", LogLevel: "error"})
}

func newTestRouter(b contracts.Bus) http.Handler {
	return NewRouter(NewHandler(b, testLogger()), nil, testLogger())
}

func doGet(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dest interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dest))
}

func seedHealth(t *testing.T, b contracts.Bus, service string, status contracts.Status) {
	t.Helper()
	h := contracts.Health{Service: service, Status: status, LastOutcome: contracts.OutcomeCompleted}
	require.NoError(t, b.Set(context.Background(), bus.HealthKey(service), h, bus.NoTTL))
}

func TestHealthAggregatesAllServices(t *testing.T) {
	b := bus.NewMemory()
	for _, svc := range bus.Services {
		seedHealth(t, b, svc, contracts.StatusOK)
	}

	rec := doGet(t, newTestRouter(b), "/health")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp healthResponse
	decodeBody(t, rec, &resp)
	assert.Equal(t, contracts.StatusOK, resp.Status)
	assert.Len(t, resp.Services, len(bus.Services))
	assert.Empty(t, resp.Missing)
}

func TestHealthDegradedWhenAnyServiceDegrades(t *testing.T) {
	b := bus.NewMemory()
	for _, svc := range bus.Services {
		seedHealth(t, b, svc, contracts.StatusOK)
	}
	seedHealth(t, b, "scanner", contracts.StatusDegraded)

	rec := doGet(t, newTestRouter(b), "/health")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp healthResponse
	decodeBody(t, rec, &resp)
	assert.Equal(t, contracts.StatusDegraded, resp.Status)
	assert.Equal(t, contracts.StatusDegraded, resp.Services["scanner"].Status)
}

func TestHealthMissingServiceDegrades(t *testing.T) {
	b := bus.NewMemory()
	seedHealth(t, b, "regime", contracts.StatusOK) // everything else silent

	rec := doGet(t, newTestRouter(b), "/health")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp healthResponse
	decodeBody(t, rec, &resp)
	assert.Equal(t, contracts.StatusDegraded, resp.Status)
	assert.Contains(t, resp.Missing, "scanner")
	assert.NotContains(t, resp.Missing, "regime")
}

func TestRegimeEndpoint(t *testing.T) {
	b := bus.NewMemory()
	router := newTestRouter(b)

	rec := doGet(t, router, "/api/v1/regime")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	st := contracts.MarketState{State: contracts.StateGreen, Reason: contracts.ReasonPrimeWindow}
	require.NoError(t, b.Set(context.Background(), bus.KeyMarketState, st, bus.NoTTL))

	rec = doGet(t, router, "/api/v1/regime")
	require.Equal(t, http.StatusOK, rec.Code)

	var got contracts.MarketState
	decodeBody(t, rec, &got)
	assert.Equal(t, contracts.StateGreen, got.State)
}

func TestCandidatesEndpoint(t *testing.T) {
	b := bus.NewMemory()
	router := newTestRouter(b)

	rec := doGet(t, router, "/api/v1/candidates/H42")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doGet(t, router, "/api/v1/candidates/H30")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	list := contracts.CandidateList{
		Horizon:    contracts.Horizon30,
		Candidates: []contracts.Candidate{{Ticker: "AAPL", Horizon: contracts.Horizon30}},
		Outcome:    contracts.OutcomeCompleted,
	}
	require.NoError(t, b.Set(context.Background(), bus.CandidatesKey(contracts.Horizon30), list, bus.CandidatesTTL))

	rec = doGet(t, router, "/api/v1/candidates/h30") // horizon is case-insensitive
	require.Equal(t, http.StatusOK, rec.Code)

	var got contracts.CandidateList
	decodeBody(t, rec, &got)
	assert.Equal(t, contracts.OutcomeCompleted, got.Outcome)
	require.Len(t, got.Candidates, 1)
	assert.Equal(t, "AAPL", got.Candidates[0].Ticker)
}

func TestOpportunitiesEndpoint(t *testing.T) {
	b := bus.NewMemory()
	rank := contracts.OpportunityRank{
		Horizon:       contracts.HorizonDay,
		Opportunities: []contracts.Opportunity{{Ticker: "NVDA", Confidence: 0.61}},
		Outcome:       contracts.OutcomeCompleted,
	}
	require.NoError(t, b.Set(context.Background(), bus.RankKey(contracts.HorizonDay), rank, bus.RankTTL))

	rec := doGet(t, newTestRouter(b), "/api/v1/opportunities/HDAY")
	require.Equal(t, http.StatusOK, rec.Code)

	var got contracts.OpportunityRank
	decodeBody(t, rec, &got)
	require.Len(t, got.Opportunities, 1)
	assert.Equal(t, "NVDA", got.Opportunities[0].Ticker)
}

func TestWhyNotVerdicts(t *testing.T) {
	ctx := context.Background()
	h30 := contracts.Horizon30

	completedList := func(tickers []string, excluded map[string]string) contracts.CandidateList {
		list := contracts.CandidateList{Horizon: h30, Excluded: excluded, Outcome: contracts.OutcomeCompleted}
		for _, tk := range tickers {
			list.Candidates = append(list.Candidates, contracts.Candidate{Ticker: tk, Horizon: h30})
		}
		return list
	}

	tests := []struct {
		name    string
		seed    func(t *testing.T, b contracts.Bus)
		path    string
		verdict string
		rank    int
	}{
		{
			name: "ranked",
			seed: func(t *testing.T, b contracts.Bus) {
				rank := contracts.OpportunityRank{
					Horizon: h30,
					Opportunities: []contracts.Opportunity{
						{Ticker: "NVDA"}, {Ticker: "AAPL"},
					},
					Outcome: contracts.OutcomeCompleted,
				}
				require.NoError(t, b.Set(ctx, bus.RankKey(h30), rank, bus.RankTTL))
			},
			path:    "/api/v1/whynot/H30/AAPL",
			verdict: VerdictRanked,
			rank:    2,
		},
		{
			name: "vetoed red",
			seed: func(t *testing.T, b contracts.Bus) {
				list := contracts.CandidateList{Horizon: h30, Outcome: contracts.OutcomeSkippedRed}
				require.NoError(t, b.Set(ctx, bus.CandidatesKey(h30), list, bus.CandidatesTTL))
			},
			path:    "/api/v1/whynot/H30/AAPL",
			verdict: VerdictVetoedRed,
		},
		{
			name: "failed filter carries the reason",
			seed: func(t *testing.T, b contracts.Bus) {
				list := completedList(nil, map[string]string{"MSFT": "below liquidity floor"})
				require.NoError(t, b.Set(ctx, bus.CandidatesKey(h30), list, bus.CandidatesTTL))
			},
			path:    "/api/v1/whynot/H30/MSFT",
			verdict: VerdictFailedFilter,
		},
		{
			name: "vetoed attention",
			seed: func(t *testing.T, b contracts.Bus) {
				list := completedList([]string{"AAPL"}, nil)
				require.NoError(t, b.Set(ctx, bus.CandidatesKey(h30), list, bus.CandidatesTTL))
				rank := contracts.OpportunityRank{Horizon: h30, Outcome: contracts.OutcomeSkippedAttention}
				require.NoError(t, b.Set(ctx, bus.RankKey(h30), rank, bus.RankTTL))
			},
			path:    "/api/v1/whynot/H30/AAPL",
			verdict: VerdictVetoedAttention,
		},
		{
			name: "candidate dropped in ranking",
			seed: func(t *testing.T, b contracts.Bus) {
				list := completedList([]string{"AAPL", "NVDA"}, nil)
				require.NoError(t, b.Set(ctx, bus.CandidatesKey(h30), list, bus.CandidatesTTL))
				rank := contracts.OpportunityRank{
					Horizon:       h30,
					Opportunities: []contracts.Opportunity{{Ticker: "NVDA"}},
					Outcome:       contracts.OutcomeCompleted,
				}
				require.NoError(t, b.Set(ctx, bus.RankKey(h30), rank, bus.RankTTL))
			},
			path:    "/api/v1/whynot/H30/AAPL",
			verdict: VerdictUnranked,
		},
		{
			name: "not in universe",
			seed: func(t *testing.T, b contracts.Bus) {
				list := completedList([]string{"AAPL"}, nil)
				require.NoError(t, b.Set(ctx, bus.CandidatesKey(h30), list, bus.CandidatesTTL))
				require.NoError(t, b.Set(ctx, bus.KeyScanUniverse, []string{"AAPL"}, bus.UniverseTTL))
			},
			path:    "/api/v1/whynot/H30/TSLA",
			verdict: VerdictNotInUniverse,
		},
		{
			name: "no scan yet",
			seed: func(t *testing.T, b contracts.Bus) {
				require.NoError(t, b.Set(ctx, bus.KeyScanUniverse, []string{"AAPL"}, bus.UniverseTTL))
			},
			path:    "/api/v1/whynot/H30/AAPL",
			verdict: VerdictNotScanned,
		},
		{
			name:    "lowercase path params",
			seed:    func(t *testing.T, b contracts.Bus) {},
			path:    "/api/v1/whynot/h30/aapl",
			verdict: VerdictNotScanned,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := bus.NewMemory()
			tt.seed(t, b)

			rec := doGet(t, newTestRouter(b), tt.path)
			require.Equal(t, http.StatusOK, rec.Code)

			var resp whyNotResponse
			decodeBody(t, rec, &resp)
			assert.Equal(t, tt.verdict, resp.Verdict)
			if tt.rank > 0 {
				assert.Equal(t, tt.rank, resp.Rank)
			}
			assert.NotEmpty(t, resp.Reason)
		})
	}
}

func TestWhyNotBadHorizon(t *testing.T) {
	rec := doGet(t, newTestRouter(bus.NewMemory()), "/api/v1/whynot/H99/AAPL")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetricsEndpointServes(t *testing.T) {
	rec := doGet(t, newTestRouter(bus.NewMemory()), "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
}
