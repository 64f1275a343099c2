package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/BradenHooton/scribe/internal/models"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "scribe"

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method", "path", "status"},
	)

	// Admin mutation metrics
	adminMutationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "admin",
			Name:      "mutations_total",
			Help:      "Admin mutations by audit action and outcome",
		},
		[]string{"action", "outcome"},
	)

	trialDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trial",
			Name:      "decisions_total",
			Help:      "Trial grant decisions by outcome and source",
		},
		[]string{"outcome", "source"},
	)

	phiScorerErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "phi_scorer_errors_total",
			Help:      "PHI scorer calls that failed and aborted an audit write",
		},
	)

	// Purge metrics
	accountsPurgedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "purge",
			Name:      "accounts_total",
			Help:      "Accounts processed by the purge job by outcome",
		},
		[]string{"outcome"},
	)

	purgeRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "purge",
			Name:      "run_duration_seconds",
			Help:      "Duration of a purge run in seconds",
			Buckets:   []float64{.1, .5, 1, 5, 15, 30, 60, 120},
		},
	)
)

// Outcome labels an operation result: "success", the domain error kind, or "error".
func Outcome(err error) string {
	if err == nil {
		return "success"
	}
	if kind := models.KindOf(err); kind != "" {
		return string(kind)
	}
	if errors.Is(err, models.ErrBadRequest) {
		return string(models.KindValidation)
	}
	return "error"
}

// RecordMutation counts one admin mutation attempt.
func RecordMutation(action string, err error) {
	adminMutationsTotal.WithLabelValues(action, Outcome(err)).Inc()
}

// RecordTrialDecision counts a trial grant decision.
func RecordTrialDecision(outcome models.TrialOutcome, source models.TrialSource) {
	label := string(source)
	if source.IsCampaign() {
		label = "campaign"
	}
	trialDecisionsTotal.WithLabelValues(string(outcome), label).Inc()
}

// RecordPHIScorerError counts a failed PHI scoring call.
func RecordPHIScorerError() {
	phiScorerErrorsTotal.Inc()
}

// RecordPurge counts one account handled by the purge job.
func RecordPurge(err error) {
	accountsPurgedTotal.WithLabelValues(Outcome(err)).Inc()
}

// ObservePurgeRun records how long a purge run took.
func ObservePurgeRun(d time.Duration) {
	purgeRunDuration.Observe(d.Seconds())
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Flush keeps streaming responses such as the CSV export working through the wrapper.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Middleware returns a middleware that records Prometheus metrics
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(wrapped, r)

		routePattern := "unknown"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			routePattern = rctx.RoutePattern()
		}

		status := strconv.Itoa(wrapped.statusCode)

		httpRequestsTotal.WithLabelValues(r.Method, routePattern, status).Inc()
		httpRequestDuration.WithLabelValues(r.Method, routePattern, status).Observe(time.Since(start).Seconds())
	})
}

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
