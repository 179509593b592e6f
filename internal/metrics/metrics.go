// Package metrics exposes the pipeline's Prometheus instrumentation.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/zerotrading/zero/internal/contracts"
)

// Recorder wraps every Prometheus series the pipeline emits.
// ⭐ SSOT: metric names are defined only here
type Recorder struct {
	cyclesTotal     *prometheus.CounterVec
	cycleDuration   *prometheus.HistogramVec
	regimeState     *prometheus.GaugeVec
	volatilityLevel prometheus.Gauge
	candidates      *prometheus.GaugeVec
	opportunities   *prometheus.GaugeVec
	attentionScore  prometheus.Gauge
	tickersSkipped  *prometheus.CounterVec
	errorsTotal     *prometheus.CounterVec
	barsIngested    *prometheus.CounterVec
}

// New registers the pipeline series on the default registry.
func New() *Recorder {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers on an explicit registry. Tests pass a fresh one per
// case; double registration on the default registry panics.
func NewWith(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		cyclesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "zero_cycles_total",
				Help: "Engine cycles by service and outcome",
			},
			[]string{"service", "outcome"},
		),
		cycleDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "zero_cycle_duration_seconds",
				Help:    "Engine cycle duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"service"},
		),
		regimeState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "zero_regime_state",
				Help: "Current permission state, one-hot by state label",
			},
			[]string{"state"},
		),
		volatilityLevel: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "zero_volatility_level",
				Help: "Scaled volatility proxy level from the last regime tick",
			},
		),
		candidates: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "zero_candidates",
				Help: "Candidates surviving the last scan by horizon",
			},
			[]string{"horizon"},
		),
		opportunities: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "zero_opportunities",
				Help: "Opportunities published by the last ranking cycle by horizon",
			},
			[]string{"horizon"},
		),
		attentionScore: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "zero_attention_score",
				Help: "Market stability score from the last attention cycle",
			},
		),
		tickersSkipped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "zero_tickers_skipped_total",
				Help: "Tickers skipped mid-cycle by service and reason",
			},
			[]string{"service", "reason"},
		),
		errorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "zero_errors_total",
				Help: "Component-level failures",
			},
			[]string{"component"},
		),
		barsIngested: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "zero_bars_ingested_total",
				Help: "Candle bars persisted by timeframe",
			},
			[]string{"timeframe"},
		),
	}
}

// RecordCycle counts one engine cycle and observes its duration.
func (r *Recorder) RecordCycle(service string, outcome contracts.CycleOutcome, elapsed time.Duration) {
	r.cyclesTotal.WithLabelValues(service, string(outcome)).Inc()
	r.cycleDuration.WithLabelValues(service).Observe(elapsed.Seconds())
}

// SetRegimeState flips the one-hot permission gauge.
func (r *Recorder) SetRegimeState(s contracts.State) {
	for _, st := range []contracts.State{contracts.StateGreen, contracts.StateYellow, contracts.StateRed} {
		v := 0.0
		if st == s {
			v = 1
		}
		r.regimeState.WithLabelValues(string(st)).Set(v)
	}
}

// SetVolatilityLevel records the scaled proxy level.
func (r *Recorder) SetVolatilityLevel(level float64) {
	r.volatilityLevel.Set(level)
}

// SetCandidates records a horizon's surviving candidate count.
func (r *Recorder) SetCandidates(h contracts.Horizon, n int) {
	r.candidates.WithLabelValues(string(h)).Set(float64(n))
}

// SetOpportunities records a horizon's published opportunity count.
func (r *Recorder) SetOpportunities(h contracts.Horizon, n int) {
	r.opportunities.WithLabelValues(string(h)).Set(float64(n))
}

// SetAttentionScore records the stability score.
func (r *Recorder) SetAttentionScore(score float64) {
	r.attentionScore.Set(score)
}

// RecordTickerSkipped counts one per-ticker skip.
func (r *Recorder) RecordTickerSkipped(service, reason string) {
	r.tickersSkipped.WithLabelValues(service, reason).Inc()
}

// RecordError counts a component-level failure.
func (r *Recorder) RecordError(component string) {
	r.errorsTotal.WithLabelValues(component).Inc()
}

// RecordBarsIngested counts persisted bars.
func (r *Recorder) RecordBarsIngested(tf contracts.Timeframe, n int) {
	r.barsIngested.WithLabelValues(string(tf)).Add(float64(n))
}
