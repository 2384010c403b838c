// Package observability provides Prometheus metrics instrumentation for the
// stage pipeline.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// REQUEST METRICS
// =============================================================================

var (
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ocragent_requests_total",
			Help: "Total number of requests run through the orchestrator",
		},
		[]string{"terminal_stage", "status"}, // status: completed, failed, cancelled
	)

	requestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ocragent_request_duration_seconds",
			Help:    "End-to-end request duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"terminal_stage"},
	)
)

// =============================================================================
// STAGE METRICS
// =============================================================================

var (
	stageExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ocragent_stage_executions_total",
			Help: "Total number of stage executions",
		},
		[]string{"stage", "status"}, // status: success, error
	)

	stageDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ocragent_stage_duration_seconds",
			Help:    "Stage execution duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		},
		[]string{"stage"},
	)
)

// =============================================================================
// COLLABORATOR METRICS
// =============================================================================

var (
	collaboratorCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ocragent_collaborator_calls_total",
			Help: "Total number of external collaborator calls",
		},
		[]string{"collaborator", "status"}, // collaborator: ocr, generation, retrieval
	)

	collaboratorDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ocragent_collaborator_duration_seconds",
			Help:    "Collaborator call duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"collaborator"},
	)

	ocrCacheEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ocragent_ocr_cache_events_total",
			Help: "OCR result cache hits and misses",
		},
		[]string{"event"}, // event: hit, miss
	)
)

// =============================================================================
// PUBLIC API
// =============================================================================

// RecordRequest records end-to-end request metrics.
// This should be called once after the orchestrator loop returns.
func RecordRequest(terminalStage string, status string, durationMS int) {
	requestsTotal.WithLabelValues(terminalStage, status).Inc()
	requestDurationSeconds.WithLabelValues(terminalStage).Observe(float64(durationMS) / 1000.0)
}

// RecordStageExecution records stage execution metrics.
// This should be called after each stage completes.
func RecordStageExecution(stage string, status string, durationMS int) {
	stageExecutionsTotal.WithLabelValues(stage, status).Inc()
	stageDurationSeconds.WithLabelValues(stage).Observe(float64(durationMS) / 1000.0)
}

// RecordCollaboratorCall records external collaborator call metrics.
// This should be called by the collaborator clients after each call.
func RecordCollaboratorCall(collaborator string, status string, durationMS int) {
	collaboratorCallsTotal.WithLabelValues(collaborator, status).Inc()
	collaboratorDurationSeconds.WithLabelValues(collaborator).Observe(float64(durationMS) / 1000.0)
}

// RecordOCRCacheEvent records an OCR cache hit or miss.
func RecordOCRCacheEvent(event string) {
	ocrCacheEventsTotal.WithLabelValues(event).Inc()
}
