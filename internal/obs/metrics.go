package obs

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

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
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	orderTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "order_transitions_total",
			Help: "Order workflow transition attempts by source, target and outcome.",
		},
		[]string{"from", "to", "outcome"},
	)

	gatewayRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backend_gateway_requests_total",
			Help: "Backend gateway requests by resource kind and result classification.",
		},
		[]string{"resource", "kind"},
	)

	sessionSignOutsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_forced_signouts_total",
			Help: "Forced sign-outs by cause (revoked, refresh_failure, conflict).",
		},
		[]string{"cause"},
	)
)

// Init registers all service metrics in the default registry.
func Init() {
	prometheus.MustRegister(
		httpInFlight,
		httpRequestsTotal,
		httpRequestDuration,
		orderTransitionsTotal,
		gatewayRequestsTotal,
		sessionSignOutsTotal,
	)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveOrderTransition records a workflow transition attempt.
func ObserveOrderTransition(from, to, outcome string) {
	orderTransitionsTotal.WithLabelValues(from, to, outcome).Inc()
}

// ObserveGatewayRequest records a backend gateway call result.
func ObserveGatewayRequest(resource, kind string) {
	gatewayRequestsTotal.WithLabelValues(resource, kind).Inc()
}

// ObserveForcedSignOut records a forced session termination.
func ObserveForcedSignOut(cause string) {
	sessionSignOutsTotal.WithLabelValues(cause).Inc()
}

// CanonicalPath collapses per-entity path segments so metric label
// cardinality stays bounded.
func CanonicalPath(p string) string {
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p = p[:i]
	}
	if p == "" {
		return "/"
	}
	if strings.HasPrefix(p, "/api/backend/") {
		return "/api/backend/*"
	}
	parts := strings.Split(p, "/")
	if len(parts) >= 4 && parts[1] == "v1" && parts[3] != "" {
		switch parts[2] {
		case "orders":
			if len(parts) == 4 || (len(parts) == 5 && (parts[4] == "history" || parts[4] == "transition")) {
				parts[3] = ":id"
				return strings.Join(parts, "/")
			}
		case "actors":
			if len(parts) == 4 {
				parts[3] = ":id"
				return strings.Join(parts, "/")
			}
		}
	}
	return p
}

// Instrument wraps a handler with RPS/latency/in-flight measurement.
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

// statusWriter captures the response code written by the inner handler.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
