package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feedfilter_cache_lookups_total",
		Help: "Evaluation cache lookups by result (hit, miss)",
	}, []string{"result"})

	CacheEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feedfilter_cache_evictions_total",
		Help: "Entries evicted from the evaluation cache",
	})

	CacheResets = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feedfilter_cache_resets_total",
		Help: "Cache resets after a corrupted record was read",
	})

	EvaluationOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feedfilter_evaluations_total",
		Help: "Pipeline evaluations by outcome (show, hide, fail_open)",
	}, []string{"outcome"})

	EvaluationLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "feedfilter_evaluation_duration_seconds",
		Help:    "Pipeline evaluation latency",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	})

	ModelCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feedfilter_model_calls_total",
		Help: "Model prompt calls by kind (text, image)",
	}, []string{"kind"})

	QueueDrops = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feedfilter_queue_dropped_total",
		Help: "Queued evaluations dropped by a queue clear",
	})

	SessionInits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feedfilter_session_inits_total",
		Help: "Session initializations by result (reused, multimodal, text-only, failed, reinit)",
	}, []string{"result"})

	DocumentInitAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feedfilter_document_init_attempts_total",
		Help: "Init handshakes after offscreen document creation by result (success, failure)",
	}, []string{"result"})

	ClientRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feedfilter_client_requests_total",
		Help: "Cross-context requests by message type and outcome",
	}, []string{"type", "outcome"})
)

// MetricsHandler serves the default registry.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
