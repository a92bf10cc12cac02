// Package metrics provides Prometheus metrics for the live directory, its
// object stores and the event relay.
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
	// Path cache metrics
	pathLoadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livedir_path_loads_total",
			Help: "Total number of path listings issued to the object store",
		},
		[]string{"recursive", "status"},
	)

	pathLoadDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "livedir_path_load_duration_seconds",
			Help:    "Path listing duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"recursive"},
	)

	pathCacheEntries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "livedir_path_cache_entries",
			Help: "Number of cached path entries",
		},
		[]string{"root"},
	)

	pathCacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livedir_path_cache_lookups_total",
			Help: "Path cache lookups by outcome (hit, inherited, miss)",
		},
		[]string{"outcome"},
	)

	eventsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livedir_events_ingested_total",
			Help: "Total change events applied to the path cache",
		},
		[]string{"type", "origin"},
	)

	// Object store metrics
	storeOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "livedir_store_operation_duration_seconds",
			Help:    "Object store operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	storeOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livedir_store_operations_total",
			Help: "Total object store operations",
		},
		[]string{"operation", "status"},
	)

	storeBytesUploaded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "livedir_store_bytes_uploaded_total",
			Help: "Total bytes uploaded to the object store",
		},
	)

	// Event bus metrics
	busMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livedir_bus_messages_total",
			Help: "Event bus messages by direction (published, received, dropped)",
		},
		[]string{"direction"},
	)

	relaySubscribersActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "livedir_relay_subscribers_active",
			Help: "Number of active relay SSE subscribers",
		},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livedir_http_requests_total",
			Help: "Total number of relay HTTP requests",
		},
		[]string{"method", "status"},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordPathLoad records a completed path listing.
func RecordPathLoad(recursive bool, duration time.Duration, success bool) {
	r := strconv.FormatBool(recursive)
	pathLoadDuration.WithLabelValues(r).Observe(duration.Seconds())
	pathLoadsTotal.WithLabelValues(r, status(success)).Inc()
}

// SetPathCacheEntries sets the cached entry count for a directory root.
func SetPathCacheEntries(root string, count int) {
	pathCacheEntries.WithLabelValues(root).Set(float64(count))
}

// RecordCacheLookup records a path cache lookup outcome.
func RecordCacheLookup(outcome string) {
	pathCacheHits.WithLabelValues(outcome).Inc()
}

// RecordEventIngested records an applied change event. Origin is "local" for
// optimistic echoes and "bus" for events from peers.
func RecordEventIngested(eventType, origin string) {
	eventsIngested.WithLabelValues(eventType, origin).Inc()
}

// RecordStoreOperation records an object store operation.
func RecordStoreOperation(operation string, duration time.Duration, success bool) {
	storeOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
	storeOperationsTotal.WithLabelValues(operation, status(success)).Inc()
}

// RecordUpload records uploaded bytes.
func RecordUpload(bytes int64) {
	storeBytesUploaded.Add(float64(bytes))
}

// RecordBusMessage records event bus traffic.
func RecordBusMessage(direction string) {
	busMessagesTotal.WithLabelValues(direction).Inc()
}

// SetRelaySubscribers sets the number of active relay subscribers.
func SetRelaySubscribers(count int) {
	relaySubscribersActive.Set(float64(count))
}

func status(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Middleware counts relay HTTP requests.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		httpRequestsTotal.WithLabelValues(r.Method, strconv.Itoa(rw.status)).Inc()
	})
}
