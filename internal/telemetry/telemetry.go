// Package telemetry exports Prometheus metrics and an otel tracer for the
// crawl pipeline, grounded on the promauto + otel.Tracer pattern used by
// the pack's telemetry package rather than the teacher's hand-rolled
// mutex-guarded Metrics/CostTracker structs, which tracked per-request
// LLM dollar cost — a concern SPEC_FULL.md's Non-goals exclude.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const serviceName = "policywatch"

// Metrics holds the pipeline's Prometheus instruments: browser, LLM,
// item, phase-duration, scheduler, and task-status instruments.
type Metrics struct {
	PagesFetched      *prometheus.CounterVec
	FetchFailures     *prometheus.CounterVec
	LLMCalls          *prometheus.CounterVec
	LLMFailures       *prometheus.CounterVec
	ItemsDiscovered   *prometheus.CounterVec
	ItemsSaved        prometheus.Counter
	PhaseDuration     *prometheus.HistogramVec
	BatchesTriggered  *prometheus.CounterVec
	SourcesInFlight   prometheus.Gauge
	TasksByStatus     *prometheus.CounterVec
}

// Provider wraps the tracer and metrics so callers take one dependency.
type Provider struct {
	Tracer  trace.Tracer
	Metrics *Metrics
}

// NewProvider registers the pipeline's Prometheus instruments and returns
// a ready-to-use Provider. Call once at process startup.
func NewProvider() *Provider {
	return &Provider{
		Tracer:  otel.Tracer(serviceName),
		Metrics: initMetrics(),
	}
}

// Handler exposes the registered metrics for an HTTP /metrics route.
func (p *Provider) Handler() http.Handler {
	return promhttp.Handler()
}

func initMetrics() *Metrics {
	return &Metrics{
		PagesFetched: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "policywatch_pages_fetched_total",
			Help: "Total pages fetched via the browser tool, by host.",
		}, []string{"source"}),
		FetchFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "policywatch_fetch_failures_total",
			Help: "Total browser fetch failures, by host.",
		}, []string{"source"}),
		LLMCalls: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "policywatch_llm_calls_total",
			Help: "Total LLM calls, by call shape (complete_text, complete_with_tools).",
		}, []string{"phase"}),
		LLMFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "policywatch_llm_failures_total",
			Help: "Total LLM call failures, by phase.",
		}, []string{"phase"}),
		ItemsDiscovered: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "policywatch_items_discovered_total",
			Help: "Total article items discovered, by source.",
		}, []string{"source"}),
		ItemsSaved: promauto.NewCounter(prometheus.CounterOpts{
			Name: "policywatch_items_saved_total",
			Help: "Total article items persisted.",
		}),
		PhaseDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "policywatch_phase_duration_seconds",
			Help:    "Wall-clock duration of one pipeline phase for one source task.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"phase"}),
		BatchesTriggered: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "policywatch_batches_triggered_total",
			Help: "Total crawl batches triggered, by trigger kind.",
		}, []string{"kind"}),
		SourcesInFlight: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "policywatch_sources_in_flight",
			Help: "Number of source tasks currently running across all batches.",
		}),
		TasksByStatus: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "policywatch_tasks_total",
			Help: "Total crawl tasks, by terminal status.",
		}, []string{"status"}),
	}
}

// ObservePhase records how long a pipeline phase took for one task.
func (m *Metrics) ObservePhase(phase string, d time.Duration) {
	m.PhaseDuration.WithLabelValues(phase).Observe(d.Seconds())
}
