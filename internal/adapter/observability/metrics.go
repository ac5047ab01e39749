package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"route", "method"},
	)

	AIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_requests_total",
			Help: "Total number of AI requests by provider, operation and outcome",
		},
		[]string{"provider", "operation", "outcome"},
	)
	AIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ai_request_duration_seconds",
			Help:    "AI request duration in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"provider", "operation"},
	)
	AIRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_retries_total",
			Help: "Retries performed against the AI provider by reason",
		},
		[]string{"reason"},
	)
	// AICircuitState is 0 when closed and 1 when open.
	AICircuitState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ai_circuit_state",
			Help: "AI circuit breaker state (0 closed, 1 open)",
		},
		[]string{"provider"},
	)
	AIPromptTokens = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ai_prompt_tokens",
			Help:    "Estimated prompt tokens per AI request",
			Buckets: prometheus.ExponentialBuckets(64, 2, 10),
		},
		[]string{"model"},
	)

	FlashcardsGenerated = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "flashcards_generated",
			Help:    "Number of flashcards produced per generation",
			Buckets: []float64{1, 2, 3, 5, 8, 10, 15, 20, 30},
		},
	)
	FlashcardsFallbackTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flashcards_fallback_total",
			Help: "Generations that degraded to a fallback strategy",
		},
		[]string{"strategy"},
	)
)

var registerOnce sync.Once

// InitMetrics registers all collectors with the default registry. Safe to
// call more than once.
func InitMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			HTTPRequestsTotal,
			HTTPRequestDuration,
			AIRequestsTotal,
			AIRequestDuration,
			AIRetriesTotal,
			AICircuitState,
			AIPromptTokens,
			FlashcardsGenerated,
			FlashcardsFallbackTotal,
		)
	})
}

// HTTPMetricsMiddleware records Prometheus metrics for each request.
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		dur := time.Since(start).Seconds()
		// Route pattern may be unavailable outside chi router; guard nil
		var route string
		if rc := chi.RouteContext(r.Context()); rc != nil {
			route = rc.RoutePattern()
		}
		if route == "" {
			route = r.URL.Path
		}
		method := r.Method
		status := ww.Status()
		HTTPRequestsTotal.WithLabelValues(route, method, http.StatusText(status)).Inc()
		HTTPRequestDuration.WithLabelValues(route, method).Observe(dur)
	})
}

// ObserveAIRequest records one logical AI call.
func ObserveAIRequest(provider, operation, outcome string, d time.Duration) {
	AIRequestsTotal.WithLabelValues(provider, operation, outcome).Inc()
	AIRequestDuration.WithLabelValues(provider, operation).Observe(d.Seconds())
}

// RecordAIRetry counts one retry of an AI call.
func RecordAIRetry(reason string) {
	AIRetriesTotal.WithLabelValues(reason).Inc()
}

// SetCircuitOpen publishes the breaker state for a provider.
func SetCircuitOpen(provider string, open bool) {
	v := 0.0
	if open {
		v = 1
	}
	AICircuitState.WithLabelValues(provider).Set(v)
}

// ObservePromptTokens records the estimated prompt size for a model.
func ObservePromptTokens(model string, tokens int) {
	if tokens > 0 {
		AIPromptTokens.WithLabelValues(model).Observe(float64(tokens))
	}
}

// ObserveFlashcards records the size of a generated set and, when the set
// came from a degraded strategy, which one.
func ObserveFlashcards(count int, strategy string) {
	FlashcardsGenerated.Observe(float64(count))
	if strategy != "" && strategy != "json" {
		FlashcardsFallbackTotal.WithLabelValues(strategy).Inc()
	}
}
