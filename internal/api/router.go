package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zerotrading/zero/pkg/logger"
	"github.com/zerotrading/zero/pkg/redis"
)

// NewRouter creates and configures the HTTP router. A nil limiter skips
// request budgeting; /health and /metrics are never budgeted so probes and
// scrapers cannot starve themselves out.
// ⭐ SSOT: routing lives only in this function
func NewRouter(h *Handler, limiter *redis.RateLimiter, log *logger.Logger) http.Handler {
	r := mux.NewRouter()

	// Health and monitoring
	r.HandleFunc("/health", h.GetHealth).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// API v1
	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/regime", h.GetRegime).Methods("GET")
	api.HandleFunc("/attention", h.GetAttention).Methods("GET")
	api.HandleFunc("/candidates/{horizon}", h.GetCandidates).Methods("GET")
	api.HandleFunc("/opportunities/{horizon}", h.GetOpportunities).Methods("GET")
	api.HandleFunc("/whynot/{horizon}/{ticker}", h.GetWhyNot).Methods("GET")
	if limiter != nil {
		api.Use(rateLimitMiddleware(limiter, redis.APIRateLimit, log))
	}

	// Apply middleware
	r.Use(loggingMiddleware(log))
	r.Use(recoveryMiddleware(log))

	return r
}
