package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Histogram bucket definitions.
var (
	httpDurationBuckets     = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	upstreamDurationBuckets = []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}
	bodySizeBuckets         = []float64{100, 1024, 10240, 102400, 1048576}
)

// Metrics holds all Prometheus metric instruments for the BFF.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal     *prometheus.CounterVec
	HTTPRequestDuration   *prometheus.HistogramVec
	HTTPRequestSizeBytes  *prometheus.HistogramVec
	HTTPResponseSizeBytes *prometheus.HistogramVec

	// Wizard metrics
	WizardTransitionsTotal     *prometheus.CounterVec
	WizardValidationFailures   *prometheus.CounterVec
	WizardActiveSessions       prometheus.Gauge
	ProposalFinalizationsTotal *prometheus.CounterVec

	// Draft / reset guard metrics
	DraftPurgesTotal prometheus.Counter
	DraftKeysPurged  prometheus.Counter

	// Notification metrics
	NotificationFetchesTotal *prometheus.CounterVec
	NotificationUnreadCount  *prometheus.GaugeVec
	DeepLinksDeliveredTotal  prometheus.Counter

	// Upstream metrics
	UpstreamRequestsTotal        *prometheus.CounterVec
	UpstreamRequestDuration      *prometheus.HistogramVec
	UpstreamRetriesTotal         prometheus.Counter
	UpstreamBreakerState         prometheus.Gauge
	ProposalsFallbackServedTotal prometheus.Counter

	// Cache metrics
	ActivityTypeCacheHitsTotal   prometheus.Counter
	ActivityTypeCacheMissesTotal prometheus.Counter
}

// InitMetrics creates and registers all Prometheus metric instruments.
func InitMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		// HTTP
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "proposta_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path_pattern", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "proposta_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: httpDurationBuckets,
		}, []string{"method", "path_pattern"}),
		HTTPRequestSizeBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "proposta_http_request_size_bytes",
			Help:    "HTTP request body size in bytes.",
			Buckets: bodySizeBuckets,
		}, []string{"method", "path_pattern"}),
		HTTPResponseSizeBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "proposta_http_response_size_bytes",
			Help:    "HTTP response body size in bytes.",
			Buckets: bodySizeBuckets,
		}, []string{"method", "path_pattern"}),

		// Wizard
		WizardTransitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "proposta_wizard_transitions_total",
			Help: "Total number of wizard step transitions.",
		}, []string{"from", "to", "event"}),
		WizardValidationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "proposta_wizard_validation_failures_total",
			Help: "Total number of rejected wizard confirmations.",
		}, []string{"step"}),
		WizardActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "proposta_wizard_active_sessions",
			Help: "Number of sessions with an in-progress wizard draft.",
		}),
		ProposalFinalizationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "proposta_finalizations_total",
			Help: "Total number of proposal finalization attempts.",
		}, []string{"result"}),

		// Draft / reset guard
		DraftPurgesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "proposta_draft_purges_total",
			Help: "Total number of orphaned-draft purges by the reset guard.",
		}),
		DraftKeysPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "proposta_draft_keys_purged_total",
			Help: "Total number of draft keys removed by the reset guard.",
		}),

		// Notifications
		NotificationFetchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "proposta_notification_fetches_total",
			Help: "Total number of notification list fetches.",
		}, []string{"result"}),
		NotificationUnreadCount: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "proposta_notification_unread_count",
			Help: "Unread notifications per employee, as of the last fetch.",
		}, []string{"employee_id"}),
		DeepLinksDeliveredTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "proposta_deep_links_delivered_total",
			Help: "Total number of navigation intents delivered from notification clicks.",
		}),

		// Upstream
		UpstreamRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "proposta_upstream_requests_total",
			Help: "Total number of upstream accounting API requests.",
		}, []string{"endpoint", "status"}),
		UpstreamRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "proposta_upstream_request_duration_seconds",
			Help:    "Upstream request duration in seconds.",
			Buckets: upstreamDurationBuckets,
		}, []string{"endpoint"}),
		UpstreamRetriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "proposta_upstream_retries_total",
			Help: "Total number of upstream request retries.",
		}),
		UpstreamBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "proposta_upstream_breaker_state",
			Help: "Upstream circuit breaker state (0=closed, 1=half-open, 2=open).",
		}),
		ProposalsFallbackServedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "proposta_listing_fallback_served_total",
			Help: "Total number of proposal listings served from fallback data.",
		}),

		// Cache
		ActivityTypeCacheHitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "proposta_activity_type_cache_hits_total",
			Help: "Total number of activity type cache hits.",
		}),
		ActivityTypeCacheMissesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "proposta_activity_type_cache_misses_total",
			Help: "Total number of activity type cache misses.",
		}),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestSizeBytes,
		m.HTTPResponseSizeBytes,
		m.WizardTransitionsTotal,
		m.WizardValidationFailures,
		m.WizardActiveSessions,
		m.ProposalFinalizationsTotal,
		m.DraftPurgesTotal,
		m.DraftKeysPurged,
		m.NotificationFetchesTotal,
		m.NotificationUnreadCount,
		m.DeepLinksDeliveredTotal,
		m.UpstreamRequestsTotal,
		m.UpstreamRequestDuration,
		m.UpstreamRetriesTotal,
		m.UpstreamBreakerState,
		m.ProposalsFallbackServedTotal,
		m.ActivityTypeCacheHitsTotal,
		m.ActivityTypeCacheMissesTotal,
	)

	return m
}

// RecordHTTPRequest records a completed HTTP request.
func (m *Metrics) RecordHTTPRequest(method, pathPattern string, status int, duration time.Duration, reqSize, respSize int) {
	m.HTTPRequestsTotal.WithLabelValues(method, pathPattern, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, pathPattern).Observe(duration.Seconds())
	if reqSize > 0 {
		m.HTTPRequestSizeBytes.WithLabelValues(method, pathPattern).Observe(float64(reqSize))
	}
	m.HTTPResponseSizeBytes.WithLabelValues(method, pathPattern).Observe(float64(respSize))
}

// RecordWizardTransition records a wizard step transition.
func (m *Metrics) RecordWizardTransition(from, to, event string) {
	m.WizardTransitionsTotal.WithLabelValues(from, to, event).Inc()
}

// RecordWizardValidationFailure records a rejected confirmation.
func (m *Metrics) RecordWizardValidationFailure(step string) {
	m.WizardValidationFailures.WithLabelValues(step).Inc()
}

// RecordFinalization records a proposal finalization attempt.
func (m *Metrics) RecordFinalization(result string) {
	m.ProposalFinalizationsTotal.WithLabelValues(result).Inc()
}

// RecordDraftPurge records a reset-guard purge and how many keys it removed.
func (m *Metrics) RecordDraftPurge(keys int) {
	m.DraftPurgesTotal.Inc()
	m.DraftKeysPurged.Add(float64(keys))
}

// RecordNotificationFetch records a notification fetch and the unread count
// it observed for the employee.
func (m *Metrics) RecordNotificationFetch(employeeID, result string, unread int) {
	m.NotificationFetchesTotal.WithLabelValues(result).Inc()
	if result == "ok" {
		m.NotificationUnreadCount.WithLabelValues(employeeID).Set(float64(unread))
	}
}

// RecordDeepLink records a delivered notification deep link.
func (m *Metrics) RecordDeepLink() {
	m.DeepLinksDeliveredTotal.Inc()
}

// RecordUpstreamRequest records an upstream accounting API request.
func (m *Metrics) RecordUpstreamRequest(endpoint string, status int, duration time.Duration) {
	m.UpstreamRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
	m.UpstreamRequestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// RecordUpstreamRetry records an upstream request retry.
func (m *Metrics) RecordUpstreamRetry() {
	m.UpstreamRetriesTotal.Inc()
}

// SetBreakerState sets the upstream circuit breaker state.
// State: 0=closed, 1=half-open, 2=open.
func (m *Metrics) SetBreakerState(state float64) {
	m.UpstreamBreakerState.Set(state)
}

// RecordFallbackListing records a proposals listing served from fallback data.
func (m *Metrics) RecordFallbackListing() {
	m.ProposalsFallbackServedTotal.Inc()
}

// RecordActivityTypeCacheHit records an activity type cache hit.
func (m *Metrics) RecordActivityTypeCacheHit() {
	m.ActivityTypeCacheHitsTotal.Inc()
}

// RecordActivityTypeCacheMiss records an activity type cache miss.
func (m *Metrics) RecordActivityTypeCacheMiss() {
	m.ActivityTypeCacheMissesTotal.Inc()
}

// --- HTTP Middleware ---

// MetricsMiddleware returns HTTP middleware that records request metrics using
// chi's route pattern (not the actual URL path) to avoid label cardinality
// explosion.
func (m *Metrics) MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &metricsResponseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		duration := time.Since(start)
		pathPattern := routePattern(r)
		reqSize := 0
		if r.ContentLength > 0 {
			reqSize = int(r.ContentLength)
		}

		m.RecordHTTPRequest(r.Method, pathPattern, sw.status, duration, reqSize, sw.bytes)
	})
}

// Handler returns the Prometheus HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// routePattern extracts chi's route pattern from the request context.
// Falls back to the raw URL path if no pattern is found.
func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return r.URL.Path
	}
	pattern := strings.Join(rctx.RoutePatterns, "")
	// chi route patterns have trailing /*, remove it.
	pattern = strings.TrimSuffix(pattern, "/*")
	if pattern == "" {
		return r.URL.Path
	}
	return pattern
}

// metricsResponseWriter wraps http.ResponseWriter to capture status and bytes.
type metricsResponseWriter struct {
	http.ResponseWriter
	status  int
	bytes   int
	written bool
}

func (w *metricsResponseWriter) WriteHeader(code int) {
	if !w.written {
		w.status = code
		w.written = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *metricsResponseWriter) Write(b []byte) (int, error) {
	if !w.written {
		w.written = true
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}
