package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for MacroCam
type Metrics struct {
	// Analysis service metrics
	AnalyzeRequests    *prometheus.CounterVec
	AnalyzeDuration    prometheus.Histogram
	AnalyzerErrors     *prometheus.CounterVec
	AnalyzeCacheHits   prometheus.Counter
	AnalyzeRateLimited prometheus.Counter

	// Client workflow metrics
	Captures     *prometheus.CounterVec
	MealFetches  *prometheus.CounterVec
	AuthAttempts *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics registered
func NewMetrics(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		AnalyzeRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "macrocam_analyze_requests_total",
				Help: "Total number of /analyze requests by HTTP status",
			},
			[]string{"status"},
		),
		AnalyzeDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "macrocam_analyze_duration_seconds",
				Help:    "Duration of /analyze requests in seconds",
				Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
			},
		),
		AnalyzerErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "macrocam_analyzer_errors_total",
				Help: "Total number of model call failures by error type",
			},
			[]string{"error_type"},
		),
		AnalyzeCacheHits: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "macrocam_analyze_cache_hits_total",
				Help: "Total number of analyses served from the result cache",
			},
		),
		AnalyzeRateLimited: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "macrocam_analyze_rate_limited_total",
				Help: "Total number of /analyze requests rejected by the rate limiter",
			},
		),

		Captures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "macrocam_captures_total",
				Help: "Total number of capture attempts by outcome",
			},
			[]string{"outcome"},
		),
		MealFetches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "macrocam_meal_fetches_total",
				Help: "Total number of today's meal fetches by result (applied, stale, failed)",
			},
			[]string{"result"},
		),
		AuthAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "macrocam_auth_attempts_total",
				Help: "Total number of sign-in attempts by outcome (signin, signup, failed)",
			},
			[]string{"outcome"},
		),
	}
}

// Capture outcomes
const (
	CaptureSaved        = "saved"
	CaptureSaveFailed   = "save_failed"
	CaptureAnalysisFail = "analysis_failed"
	CaptureRejected     = "rejected"
)

// Meal fetch results
const (
	FetchApplied = "applied"
	FetchStale   = "stale"
	FetchFailed  = "failed"
)

// RecordCapture counts one capture outcome. Safe on a nil receiver.
func (m *Metrics) RecordCapture(outcome string) {
	if m == nil {
		return
	}
	m.Captures.WithLabelValues(outcome).Inc()
}

// RecordFetch counts one meal fetch result. Safe on a nil receiver.
func (m *Metrics) RecordFetch(result string) {
	if m == nil {
		return
	}
	m.MealFetches.WithLabelValues(result).Inc()
}

// RecordAuth counts one sign-in attempt. Safe on a nil receiver.
func (m *Metrics) RecordAuth(outcome string) {
	if m == nil {
		return
	}
	m.AuthAttempts.WithLabelValues(outcome).Inc()
}
