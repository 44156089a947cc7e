// Package metrics exposes Prometheus instrumentation for the
// orchestration pipeline and the model gateway.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for AppForge.
type Metrics struct {
	ModelCallsTotal    *prometheus.CounterVec
	ModelCallDuration  *prometheus.HistogramVec
	ModelCallRetries   *prometheus.CounterVec
	ModelTokensUsed    *prometheus.CounterVec

	PipelineStagesTotal  *prometheus.CounterVec
	PipelineRunsTotal    *prometheus.CounterVec
	BuildAttemptsTotal   prometheus.Counter
	BuildCacheHitsTotal  prometheus.Counter
	BuildCacheMissTotal  prometheus.Counter

	KnowledgeEntriesTotal  *prometheus.CounterVec
	KnowledgeSearchFallbck prometheus.Counter
}

// New registers and returns all AppForge collectors on the given
// registerer. Pass prometheus.DefaultRegisterer in production and a
// fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		ModelCallsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "appforge_model_calls_total",
			Help: "Total model gateway calls by provider and outcome",
		}, []string{"provider", "outcome"}),

		ModelCallDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "appforge_model_call_duration_seconds",
			Help:    "Model call latency by provider",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{"provider"}),

		ModelCallRetries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "appforge_model_call_retries_total",
			Help: "Retried model calls by provider",
		}, []string{"provider"}),

		ModelTokensUsed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "appforge_model_tokens_total",
			Help: "Tokens consumed by provider",
		}, []string{"provider"}),

		PipelineStagesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "appforge_pipeline_stages_total",
			Help: "Pipeline stage executions by stage",
		}, []string{"stage"}),

		PipelineRunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "appforge_pipeline_runs_total",
			Help: "Completed orchestrations by outcome",
		}, []string{"outcome"}),

		BuildAttemptsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "appforge_build_attempts_total",
			Help: "Build-analyze-fix cycles executed",
		}),

		BuildCacheHitsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "appforge_build_cache_hits_total",
			Help: "Build result cache hits",
		}),

		BuildCacheMissTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "appforge_build_cache_misses_total",
			Help: "Build result cache misses",
		}),

		KnowledgeEntriesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "appforge_knowledge_entries_total",
			Help: "Knowledge entries persisted by entry type",
		}, []string{"entry_type"}),

		KnowledgeSearchFallbck: factory.NewCounter(prometheus.CounterOpts{
			Name: "appforge_knowledge_search_fallback_total",
			Help: "Similarity searches that fell back to text search",
		}),
	}
}

// NewNop returns metrics registered on a throwaway registry. Used by
// tests and by components constructed without a composition root.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}
