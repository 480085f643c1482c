package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for the analysis pipeline.
// Each Metrics value carries its own registry so tests can construct them
// freely without duplicate-registration panics.
type Metrics struct {
	registry *prometheus.Registry

	RulesLoaded   prometheus.Gauge
	ScansTotal    prometheus.Counter
	FindingsTotal prometheus.Counter
	CacheHits     prometheus.Counter
	CacheMisses   prometheus.Counter
	CacheEntries  prometheus.Gauge
	JobsTotal     *prometheus.CounterVec
	LLMErrors     prometheus.Counter
}

// NewMetrics creates the pipeline metrics on a fresh registry
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		RulesLoaded: factory.NewGauge(prometheus.GaugeOpts{
			Name: "aisuite_rules_loaded",
			Help: "Number of compiled detection rules in the current snapshot",
		}),
		ScansTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "aisuite_scans_total",
			Help: "Total number of log scans performed",
		}),
		FindingsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "aisuite_findings_total",
			Help: "Total number of threat findings produced by scans",
		}),
		CacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "aisuite_semantic_cache_hits_total",
			Help: "Semantic cache lookups that met the similarity threshold",
		}),
		CacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Name: "aisuite_semantic_cache_misses_total",
			Help: "Semantic cache lookups below the similarity threshold",
		}),
		CacheEntries: factory.NewGauge(prometheus.GaugeOpts{
			Name: "aisuite_semantic_cache_entries",
			Help: "Entries in the semantic cache index",
		}),
		JobsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "aisuite_jobs_total",
			Help: "Analysis jobs by terminal status",
		}, []string{"status"}),
		LLMErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "aisuite_llm_errors_total",
			Help: "Failed LLM provider calls",
		}),
	}
}

// Handler returns an HTTP handler exposing this registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
