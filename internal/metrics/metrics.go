// Package metrics wires Prometheus instrumentation for every component,
// in the shape of information-broker's PrometheusMetrics: a struct of
// CounterVec/HistogramVec/GaugeVec fields built and registered once at
// startup, threaded into components by constructor injection, plus an
// HTTP middleware for request metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every Prometheus metric the process records.
type Metrics struct {
	// LLMClient
	llmRequestTotal   *prometheus.CounterVec
	llmRequestLatency *prometheus.HistogramVec
	llmRequestErrors  *prometheus.CounterVec
	llmTokensTotal    *prometheus.CounterVec
	llmCostEstimate   *prometheus.CounterVec

	// Cache
	cacheHits          *prometheus.CounterVec
	cacheMisses        *prometheus.CounterVec
	singleFlightJoins  prometheus.Counter

	// SummaryEngine
	summaryDuration *prometheus.HistogramVec
	summaryTotal    *prometheus.CounterVec

	// CommandHandler
	commandsTotal        *prometheus.CounterVec
	rateLimiterRejections *prometheus.CounterVec

	// Scheduler
	schedulerTickLag     prometheus.Histogram
	schedulerExecutions  *prometheus.CounterVec

	// RestAdapter / HTTP
	httpRequestDuration *prometheus.HistogramVec
	httpRequestsTotal   *prometheus.CounterVec

	// Store
	dbConnections *prometheus.GaugeVec

	// Circuit breaker
	circuitBreakerState *prometheus.GaugeVec
	circuitBreakerTrips *prometheus.CounterVec
}

// New creates and registers all metrics against the default registry.
func New() *Metrics {
	m := &Metrics{
		llmRequestTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "llm_requests_total", Help: "Total LLM completion requests."},
			[]string{"model", "status"},
		),
		llmRequestLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "llm_request_duration_seconds",
				Help:    "Time spent in LLMClient.Complete.",
				Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 180},
			},
			[]string{"model", "status"},
		),
		llmRequestErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "llm_request_errors_total", Help: "LLM request errors by kind."},
			[]string{"model", "error_type"},
		),
		llmTokensTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "llm_tokens_total", Help: "Prompt/completion tokens consumed."},
			[]string{"model", "kind"},
		),
		llmCostEstimate: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "llm_cost_estimate_total", Help: "Estimated USD cost of LLM calls."},
			[]string{"model"},
		),
		cacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "cache_hits_total", Help: "Cache hits by tier."},
			[]string{"tier"},
		),
		cacheMisses: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "cache_misses_total", Help: "Cache misses by tier."},
			[]string{"tier"},
		),
		singleFlightJoins: prometheus.NewCounter(
			prometheus.CounterOpts{Name: "single_flight_joins_total", Help: "Requests that joined an in-flight summarization instead of dispatching a new one."},
		),
		summaryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "summary_pipeline_duration_seconds",
				Help:    "End-to-end SummaryEngine.summarize duration.",
				Buckets: []float64{0.05, 0.25, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
			[]string{"status"},
		),
		summaryTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "summaries_total", Help: "Total summaries produced."},
			[]string{"status"},
		),
		commandsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "commands_total", Help: "Chat commands handled."},
			[]string{"command", "status"},
		),
		rateLimiterRejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "rate_limiter_rejections_total", Help: "Requests rejected by a sliding-window rate limiter."},
			[]string{"surface"},
		),
		schedulerTickLag: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "scheduler_tick_lag_seconds",
				Help:    "Delay between a task's nextRun and when the scheduler actually picked it up.",
				Buckets: []float64{0.5, 1, 5, 15, 30, 60, 300},
			},
		),
		schedulerExecutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "scheduler_executions_total", Help: "Scheduled task executions by terminal status."},
			[]string{"status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Time spent processing HTTP requests.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route", "status_code"},
		),
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
			[]string{"method", "route", "status_code"},
		),
		dbConnections: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Name: "database_connections", Help: "Current database connections by state."},
			[]string{"state"},
		),
		circuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Name: "circuit_breaker_state", Help: "Current circuit breaker state (1=active, 0=inactive) per name/state pair."},
			[]string{"name", "state"},
		),
		circuitBreakerTrips: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "circuit_breaker_trips_total", Help: "Total circuit breaker trips to open state."},
			[]string{"name"},
		),
	}

	prometheus.MustRegister(
		m.llmRequestTotal, m.llmRequestLatency, m.llmRequestErrors, m.llmTokensTotal, m.llmCostEstimate,
		m.cacheHits, m.cacheMisses, m.singleFlightJoins,
		m.summaryDuration, m.summaryTotal,
		m.commandsTotal, m.rateLimiterRejections,
		m.schedulerTickLag, m.schedulerExecutions,
		m.httpRequestDuration, m.httpRequestsTotal,
		m.dbConnections,
		m.circuitBreakerState, m.circuitBreakerTrips,
	)

	return m
}

func (m *Metrics) RecordLLMRequest(model, status string, d time.Duration) {
	m.llmRequestTotal.WithLabelValues(model, status).Inc()
	m.llmRequestLatency.WithLabelValues(model, status).Observe(d.Seconds())
}

func (m *Metrics) RecordLLMError(model, errorType string) {
	m.llmRequestErrors.WithLabelValues(model, errorType).Inc()
}

func (m *Metrics) RecordLLMTokens(model string, promptTokens, completionTokens int) {
	m.llmTokensTotal.WithLabelValues(model, "prompt").Add(float64(promptTokens))
	m.llmTokensTotal.WithLabelValues(model, "completion").Add(float64(completionTokens))
}

func (m *Metrics) RecordLLMCost(model string, cost float64) {
	m.llmCostEstimate.WithLabelValues(model).Add(cost)
}

func (m *Metrics) RecordCacheHit(tier string)  { m.cacheHits.WithLabelValues(tier).Inc() }
func (m *Metrics) RecordCacheMiss(tier string) { m.cacheMisses.WithLabelValues(tier).Inc() }
func (m *Metrics) RecordSingleFlightJoin()     { m.singleFlightJoins.Inc() }

func (m *Metrics) RecordSummary(status string, d time.Duration) {
	m.summaryTotal.WithLabelValues(status).Inc()
	m.summaryDuration.WithLabelValues(status).Observe(d.Seconds())
}

func (m *Metrics) RecordCommand(command, status string) {
	m.commandsTotal.WithLabelValues(command, status).Inc()
}

func (m *Metrics) RecordRateLimiterRejection(surface string) {
	m.rateLimiterRejections.WithLabelValues(surface).Inc()
}

func (m *Metrics) RecordSchedulerTickLag(d time.Duration) {
	m.schedulerTickLag.Observe(d.Seconds())
}

func (m *Metrics) RecordSchedulerExecution(status string) {
	m.schedulerExecutions.WithLabelValues(status).Inc()
}

func (m *Metrics) RecordHTTPRequest(method, route, statusCode string, d time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, route, statusCode).Inc()
	m.httpRequestDuration.WithLabelValues(method, route, statusCode).Observe(d.Seconds())
}

func (m *Metrics) UpdateDBConnections(open, inUse, idle int) {
	m.dbConnections.WithLabelValues("open").Set(float64(open))
	m.dbConnections.WithLabelValues("in_use").Set(float64(inUse))
	m.dbConnections.WithLabelValues("idle").Set(float64(idle))
}

// UpdateCircuitBreakerState resets the three state gauges for name and sets
// the current one to 1, the same "zero the others, set the current" shape
// as information-broker's metrics.go.
func (m *Metrics) UpdateCircuitBreakerState(name, state string) {
	for _, s := range []string{"closed", "half_open", "open"} {
		m.circuitBreakerState.WithLabelValues(name, s).Set(0)
	}
	m.circuitBreakerState.WithLabelValues(name, state).Set(1)
}

func (m *Metrics) RecordCircuitBreakerTrip(name string) {
	m.circuitBreakerTrips.WithLabelValues(name).Inc()
}

// HTTPMiddleware wraps an http.Handler to record request metrics, matching
// information-broker's HTTPMetricsMiddleware shape but as standard
// middleware (next http.Handler) so it composes with chi's Use().
func (m *Metrics) HTTPMiddleware(route string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(rw, r)
			m.RecordHTTPRequest(r.Method, route, http.StatusText(rw.statusCode), time.Since(start))
		})
	}
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
