package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "application_layer",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "application_layer",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "application_layer",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	lifecycleOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "application_layer",
			Subsystem: "lifecycle",
			Name:      "operations_total",
			Help:      "Total number of application lifecycle operations.",
		},
		[]string{"operation", "outcome"},
	)

	remoteCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "application_layer",
			Subsystem: "remote",
			Name:      "calls_total",
			Help:      "Total number of calls to peer services.",
		},
		[]string{"service", "outcome"},
	)

	cascadeDeletes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "application_layer",
			Subsystem: "lifecycle",
			Name:      "cascade_deletes_total",
			Help:      "Per-application outcomes of cascading delete fan-outs.",
		},
		[]string{"origin", "outcome"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		lifecycleOperations,
		remoteCalls,
		cascadeDeletes,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

// RecordOperation records the outcome of a lifecycle operation.
func RecordOperation(operation string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	lifecycleOperations.WithLabelValues(operation, outcome).Inc()
}

// RecordRemoteCall records the outcome of one call to a peer service.
func RecordRemoteCall(service string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	remoteCalls.WithLabelValues(service, outcome).Inc()
}

// RecordCascadeDelete records one per-application delete attempt within a
// cascade fan-out. Origin is "applicant" or "product".
func RecordCascadeDelete(origin string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	cascadeDeletes.WithLabelValues(origin, outcome).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

func canonicalPath(raw string) string {
	if raw == "" || raw == "/" {
		return "/"
	}
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	if parts[0] != "applications" {
		return "/" + parts[0]
	}
	if len(parts) == 1 {
		return "/applications"
	}
	if len(parts) == 2 {
		return "/applications/:id"
	}
	return "/applications/:id/" + parts[2]
}
