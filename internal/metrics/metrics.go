package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pushlens_http_requests_total",
			Help: "Total HTTP requests by method, path, and status",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pushlens_http_request_duration_seconds",
			Help:    "HTTP request latency distribution",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	pushEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pushlens_push_events_total",
			Help: "Push events ingested by normalization branch",
		},
		[]string{"source"},
	)

	messagesStored = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pushlens_messages_stored",
			Help: "Messages currently held in the bounded history",
		},
	)

	messagesEvicted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pushlens_messages_evicted_total",
			Help: "Messages dropped from the history by reason (capacity, age)",
		},
		[]string{"reason"},
	)

	notificationsDisplayed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pushlens_notifications_displayed_total",
			Help: "Display attempts by outcome",
		},
		[]string{"outcome"},
	)

	broadcastsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pushlens_change_broadcasts_total",
			Help: "Change broadcasts by outcome",
		},
		[]string{"outcome"},
	)

	ingestDuplicates = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pushlens_ingest_duplicates_total",
			Help: "Push deliveries dropped as duplicates",
		},
	)

	rateLimitRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pushlens_rate_limit_rejections_total",
			Help: "Requests rejected by rate limiter",
		},
		[]string{"key"},
	)
)

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordRequest records HTTP request metrics
func RecordRequest(method, path string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordPushEvent records one ingested push event by normalization branch
func RecordPushEvent(source string) {
	pushEventsTotal.WithLabelValues(source).Inc()
}

// SetMessagesStored sets the current history size
func SetMessagesStored(count int) {
	messagesStored.Set(float64(count))
}

// RecordMessagesEvicted records messages dropped by capacity or age policy
func RecordMessagesEvicted(reason string, count int) {
	messagesEvicted.WithLabelValues(reason).Add(float64(count))
}

// RecordNotificationDisplayed records a display attempt outcome
func RecordNotificationDisplayed(outcome string) {
	notificationsDisplayed.WithLabelValues(outcome).Inc()
}

// RecordBroadcast records a change broadcast outcome
func RecordBroadcast(outcome string) {
	broadcastsTotal.WithLabelValues(outcome).Inc()
}

// RecordIngestDuplicate records a push delivery dropped as a duplicate
func RecordIngestDuplicate() {
	ingestDuplicates.Inc()
}

// RecordRateLimitRejection records a rate limit rejection
func RecordRateLimitRejection(key string) {
	rateLimitRejections.WithLabelValues(key).Inc()
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware returns HTTP middleware that records request metrics
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		RecordRequest(r.Method, r.URL.Path, wrapped.status, time.Since(start))
	})
}
