package obs

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTP metrics
var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets, // [0.005..10]
		},
		[]string{"method", "path", "status"},
	)

	transitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "folio_transitions_total",
			Help: "Workflow transition attempts by edge and outcome.",
		},
		[]string{"from", "to", "outcome"},
	)

	initOnce sync.Once
	ready    atomic.Bool
)

// Init registers the metrics in the default registry.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(httpInFlight, httpRequestsTotal, httpRequestDuration, transitionsTotal)
	})
}

// Handler serves the Prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveTransition counts one transition attempt. An empty from means the
// document could not be read.
func ObserveTransition(from, to, outcome string) {
	if from == "" {
		from = "unknown"
	}
	transitionsTotal.WithLabelValues(from, to, outcome).Inc()
}

// SetReady flips the readiness check.
func SetReady(v bool) { ready.Store(v) }

// Ready reports the readiness check state.
func Ready() bool { return ready.Load() }

// Instrument measures rate, latency and in-flight requests.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

// collections whose second segment is an identifier, with the sub-resources
// allowed after it.
var idCollections = map[string]map[string]bool{
	"documents": {"history": true, "transitions": true, "revisions": true, "notes": true},
	"revisions": {"start": true},
	"notes":     {"resolve": true},
}

// CanonicalPath collapses identifiers so metric label cardinality stays bounded.
func CanonicalPath(raw string) string {
	if i := strings.IndexAny(raw, "?#"); i >= 0 {
		raw = raw[:i]
	}
	if raw == "" || raw == "/" {
		return "/"
	}
	parts := strings.Split(strings.Trim(raw, "/"), "/")
	if len(parts) < 3 || parts[0] != "v1" {
		return raw
	}
	subs, ok := idCollections[parts[1]]
	if !ok {
		return raw
	}
	switch len(parts) {
	case 3:
		return "/v1/" + parts[1] + "/:id"
	case 4:
		if subs[parts[3]] {
			return "/v1/" + parts[1] + "/:id/" + parts[3]
		}
	}
	return raw
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// Flush keeps server-sent events streaming through the wrapper.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
