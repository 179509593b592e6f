package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/zerotrading/zero/internal/bus"
	"github.com/zerotrading/zero/internal/contracts"
	"github.com/zerotrading/zero/pkg/logger"
)

// Why-not verdicts. One per distinct fate a ticker can meet on its way
// from universe to ranking.
const (
	VerdictRanked          = "ranked"
	VerdictVetoedRed       = "vetoed_red"
	VerdictVetoedAttention = "vetoed_attention"
	VerdictFailedFilter    = "failed_filter"
	VerdictUnranked        = "unranked"
	VerdictNotInUniverse   = "not_in_universe"
	VerdictNotScanned      = "not_scanned"
)

// Handler answers every query endpoint from the bus alone. It holds no
// pipeline state and never writes a key.
type Handler struct {
	bus    contracts.Bus
	logger *logger.Logger
}

func NewHandler(b contracts.Bus, log *logger.Logger) *Handler {
	return &Handler{bus: b, logger: log}
}

type healthResponse struct {
	Status   contracts.Status            `json:"status"`
	Services map[string]contracts.Health `json:"services"`
	Missing  []string                    `json:"missing,omitempty"`
}

// GetHealth returns the aggregate plus per-service health.
// GET /health
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	resp := healthResponse{
		Services: make(map[string]contracts.Health, len(bus.Services)),
	}

	for _, svc := range bus.Services {
		var hs contracts.Health
		found, err := h.bus.Get(ctx, bus.HealthKey(svc), &hs)
		if err != nil {
			h.busError(w, err)
			return
		}
		if !found {
			resp.Missing = append(resp.Missing, svc)
			continue
		}
		resp.Services[svc] = hs
	}
	resp.Status = aggregateStatus(resp)

	status := http.StatusOK
	if resp.Status == contracts.StatusError {
		status = http.StatusServiceUnavailable
	}
	respondJSON(w, status, resp)
}

// aggregateStatus folds per-service health into one level: any error wins,
// any degraded or missing service degrades the whole.
func aggregateStatus(resp healthResponse) contracts.Status {
	agg := contracts.StatusOK
	if len(resp.Missing) > 0 {
		agg = contracts.StatusDegraded
	}
	for _, hs := range resp.Services {
		switch hs.Status {
		case contracts.StatusError:
			return contracts.StatusError
		case contracts.StatusDegraded:
			agg = contracts.StatusDegraded
		}
	}
	return agg
}

// GetRegime returns the current permission state.
// GET /api/v1/regime
func (h *Handler) GetRegime(w http.ResponseWriter, r *http.Request) {
	var st contracts.MarketState
	found, err := h.bus.Get(r.Context(), bus.KeyMarketState, &st)
	if err != nil {
		h.busError(w, err)
		return
	}
	if !found {
		respondError(w, http.StatusNotFound, "no market state published yet")
		return
	}
	respondJSON(w, http.StatusOK, st)
}

// GetAttention returns the current attention state.
// GET /api/v1/attention
func (h *Handler) GetAttention(w http.ResponseWriter, r *http.Request) {
	var st contracts.AttentionState
	found, err := h.bus.Get(r.Context(), bus.KeyAttentionState, &st)
	if err != nil {
		h.busError(w, err)
		return
	}
	if !found {
		respondError(w, http.StatusNotFound, "no attention state published yet")
		return
	}
	respondJSON(w, http.StatusOK, st)
}

// GetCandidates returns one horizon's scan output. The list carries its
// own outcome field, so an empty candidate set still says why it is empty.
// GET /api/v1/candidates/{horizon}
func (h *Handler) GetCandidates(w http.ResponseWriter, r *http.Request) {
	horizon, err := parseHorizonVar(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	var list contracts.CandidateList
	found, err := h.bus.Get(r.Context(), bus.CandidatesKey(horizon), &list)
	if err != nil {
		h.busError(w, err)
		return
	}
	if !found {
		respondError(w, http.StatusNotFound, fmt.Sprintf("no scan for %s yet", horizon))
		return
	}
	respondJSON(w, http.StatusOK, list)
}

// GetOpportunities returns one horizon's ranking output.
// GET /api/v1/opportunities/{horizon}
func (h *Handler) GetOpportunities(w http.ResponseWriter, r *http.Request) {
	horizon, err := parseHorizonVar(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	var rank contracts.OpportunityRank
	found, err := h.bus.Get(r.Context(), bus.RankKey(horizon), &rank)
	if err != nil {
		h.busError(w, err)
		return
	}
	if !found {
		respondError(w, http.StatusNotFound, fmt.Sprintf("no ranking for %s yet", horizon))
		return
	}
	respondJSON(w, http.StatusOK, rank)
}

type whyNotResponse struct {
	Ticker  string            `json:"ticker"`
	Horizon contracts.Horizon `json:"horizon"`
	Verdict string            `json:"verdict"`
	Reason  string            `json:"reason,omitempty"`
	Rank    int               `json:"rank,omitempty"`
}

// GetWhyNot explains why a ticker is or is not in a horizon's ranking,
// walking backwards through the last cycle: ranked, vetoed, failed a
// filter, or never in the universe to begin with.
// GET /api/v1/whynot/{horizon}/{ticker}
func (h *Handler) GetWhyNot(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	horizon, err := parseHorizonVar(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	ticker := strings.ToUpper(mux.Vars(r)["ticker"])
	resp := whyNotResponse{Ticker: ticker, Horizon: horizon}

	var rank contracts.OpportunityRank
	rankFound, err := h.bus.Get(ctx, bus.RankKey(horizon), &rank)
	if err != nil {
		h.busError(w, err)
		return
	}
	if rankFound {
		for i, o := range rank.Opportunities {
			if o.Ticker == ticker {
				resp.Verdict = VerdictRanked
				resp.Rank = i + 1
				resp.Reason = fmt.Sprintf("ranked %d of %d", i+1, len(rank.Opportunities))
				respondJSON(w, http.StatusOK, resp)
				return
			}
		}
	}

	var list contracts.CandidateList
	listFound, err := h.bus.Get(ctx, bus.CandidatesKey(horizon), &list)
	if err != nil {
		h.busError(w, err)
		return
	}
	if !listFound {
		if !h.inUniverse(ctx, ticker) {
			resp.Verdict = VerdictNotInUniverse
			resp.Reason = "ticker is not in the scan universe"
		} else {
			resp.Verdict = VerdictNotScanned
			resp.Reason = "no scan cycle on the bus for this horizon"
		}
		respondJSON(w, http.StatusOK, resp)
		return
	}

	switch {
	case list.Outcome == contracts.OutcomeSkippedRed:
		resp.Verdict = VerdictVetoedRed
		resp.Reason = "scanning is halted while the permission state is RED"
	case list.Contains(ticker):
		resp.Verdict, resp.Reason = candidateVerdict(rankFound, rank)
	default:
		if excluded, reason := list.IsExcluded(ticker); excluded {
			resp.Verdict = VerdictFailedFilter
			resp.Reason = reason
		} else if !h.inUniverse(ctx, ticker) {
			resp.Verdict = VerdictNotInUniverse
			resp.Reason = "ticker is not in the scan universe"
		} else {
			resp.Verdict = VerdictNotScanned
			resp.Reason = "in the universe but not in the last scan cycle"
		}
	}
	respondJSON(w, http.StatusOK, resp)
}

// candidateVerdict explains a ticker that passed the scan but is absent
// from the ranked list.
func candidateVerdict(rankFound bool, rank contracts.OpportunityRank) (string, string) {
	if !rankFound {
		return VerdictUnranked, "passed the scan; no ranking cycle on the bus yet"
	}
	switch rank.Outcome {
	case contracts.OutcomeSkippedRed:
		return VerdictVetoedRed, "ranking is halted while the permission state is RED"
	case contracts.OutcomeSkippedAttention:
		return VerdictVetoedAttention, "attention bucket disallows this horizon"
	}
	return VerdictUnranked, "passed the scan but was dropped during ranking"
}

// inUniverse reports membership in the published universe. Without a
// published list absence cannot be proven, so the answer defaults true.
func (h *Handler) inUniverse(ctx context.Context, ticker string) bool {
	var universe []string
	found, err := h.bus.Get(ctx, bus.KeyScanUniverse, &universe)
	if err != nil || !found {
		return true
	}
	for _, sym := range universe {
		if sym == ticker {
			return true
		}
	}
	return false
}

func (h *Handler) busError(w http.ResponseWriter, err error) {
	h.logger.WithError(err).Error("Bus read failed")
	respondError(w, http.StatusServiceUnavailable, "bus read failed")
}

func parseHorizonVar(r *http.Request) (contracts.Horizon, error) {
	return contracts.ParseHorizon(strings.ToUpper(mux.Vars(r)["horizon"]))
}

// Helper functions

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}
