// Package metrics exposes a Prometheus registry for the engine, adapted
// from the teacher's interfaces/http MetricsRegistry to this domain's
// pipeline phases, matcher tiers, and gate state.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every metric the engine exposes on /metrics.
type Registry struct {
	registerer prometheus.Registerer
	gatherer   prometheus.Gatherer

	PipelineDuration *prometheus.HistogramVec
	PipelineRuns     *prometheus.CounterVec
	PipelineErrors   *prometheus.CounterVec

	MatcherExact      prometheus.Counter
	MatcherNormalized prometheus.Counter
	MatcherNone       prometheus.Counter

	OpportunitiesCurrent prometheus.Gauge
	GateActive           *prometheus.GaugeVec

	MarketRequests *prometheus.CounterVec
	MarketRetries  *prometheus.CounterVec
}

// New creates and registers every metric against a fresh, process-local
// registry (not the global prometheus.DefaultRegisterer), so multiple
// engine instances — and tests — never collide on duplicate registration.
func New() *Registry {
	reg := prometheus.NewRegistry()
	r := &Registry{
		registerer: reg,
		gatherer:   reg,
		PipelineDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "skinmonitor_pipeline_duration_seconds",
				Help:    "Duration of each analysis pipeline run",
				Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
			[]string{"kind", "result"},
		),
		PipelineRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "skinmonitor_pipeline_runs_total",
				Help: "Total analysis pipeline runs by kind and result",
			},
			[]string{"kind", "result"},
		),
		PipelineErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "skinmonitor_pipeline_errors_total",
				Help: "Total pipeline errors by kind and error class",
			},
			[]string{"kind", "error_class"},
		),
		MatcherExact: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "skinmonitor_matcher_exact_total",
			Help: "Total exact-tier canonical-name matches",
		}),
		MatcherNormalized: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "skinmonitor_matcher_normalized_total",
			Help: "Total normalized-tier canonical-name matches",
		}),
		MatcherNone: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "skinmonitor_matcher_unmatched_total",
			Help: "Total Platform-A items with no cross-market match",
		}),
		OpportunitiesCurrent: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "skinmonitor_opportunities_current",
			Help: "Number of opportunities in the current list",
		}),
		GateActive: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "skinmonitor_gate_active",
				Help: "1 if the Analysis Gate is held by this kind, 0 otherwise",
			},
			[]string{"kind"},
		),
		MarketRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "skinmonitor_market_requests_total",
				Help: "Total Marketplace Client requests by platform and outcome",
			},
			[]string{"platform", "outcome"},
		),
		MarketRetries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "skinmonitor_market_retries_total",
				Help: "Total Marketplace Client retry attempts by platform",
			},
			[]string{"platform"},
		),
	}

	r.registerer.MustRegister(
		r.PipelineDuration, r.PipelineRuns, r.PipelineErrors,
		r.MatcherExact, r.MatcherNormalized, r.MatcherNone,
		r.OpportunitiesCurrent, r.GateActive,
		r.MarketRequests, r.MarketRetries,
	)
	return r
}

// Timer tracks one pipeline run's duration.
type Timer struct {
	registry *Registry
	kind     string
	start    time.Time
}

// StartTimer begins timing a pipeline run of the given kind.
func (r *Registry) StartTimer(kind string) *Timer {
	return &Timer{registry: r, kind: kind, start: time.Now()}
}

// Stop records the duration and result, and increments the run counter.
func (t *Timer) Stop(result string) {
	duration := time.Since(t.start)
	t.registry.PipelineDuration.WithLabelValues(t.kind, result).Observe(duration.Seconds())
	t.registry.PipelineRuns.WithLabelValues(t.kind, result).Inc()
}

// RecordPipelineError increments the error counter for kind/errorClass.
func (r *Registry) RecordPipelineError(kind, errorClass string) {
	r.PipelineErrors.WithLabelValues(kind, errorClass).Inc()
}

// RecordMatcherCounters folds matcher.Counters into the registry.
func (r *Registry) RecordMatcherCounters(exact, normalized, none int) {
	r.MatcherExact.Add(float64(exact))
	r.MatcherNormalized.Add(float64(normalized))
	r.MatcherNone.Add(float64(none))
}

// SetOpportunitiesCurrent updates the current opportunity-list gauge.
func (r *Registry) SetOpportunitiesCurrent(n int) {
	r.OpportunitiesCurrent.Set(float64(n))
}

// SetGateActive marks which kind currently holds the gate (all others 0).
func (r *Registry) SetGateActive(activeKind string) {
	for _, kind := range []string{"none", "full", "incremental", "streaming", "manual"} {
		value := 0.0
		if kind == activeKind {
			value = 1.0
		}
		r.GateActive.WithLabelValues(kind).Set(value)
	}
}

// RecordMarketRequest increments the request counter for platform/outcome.
func (r *Registry) RecordMarketRequest(platform, outcome string) {
	r.MarketRequests.WithLabelValues(platform, outcome).Inc()
}

// RecordMarketRetry increments the retry counter for platform.
func (r *Registry) RecordMarketRetry(platform string) {
	r.MarketRetries.WithLabelValues(platform).Inc()
}

// Handler returns the HTTP handler served at /metrics.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})
}
