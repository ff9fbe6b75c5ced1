package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeGone    = "gone"
)

// Metrics owns a private registry so several instances can coexist in tests.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry      *prometheus.Registry
	requests      *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	lifecycle     *prometheus.CounterVec
	imports       *prometheus.CounterVec
	importedRooms prometheus.Counter
	notifications *prometheus.CounterVec
}

// New registers every collector under prefix.
func New(prefix string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: prefix + "_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    prefix + "_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		lifecycle: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: prefix + "_lifecycle_operations_total",
			Help: "Housing lifecycle operations by kind and outcome",
		}, []string{"operation", "outcome"}),
		imports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: prefix + "_catalog_imports_total",
			Help: "Catalogue import runs by outcome",
		}, []string{"outcome"}),
		importedRooms: prometheus.NewCounter(prometheus.CounterOpts{
			Name: prefix + "_catalog_rooms_written_total",
			Help: "Rooms created or updated by catalogue imports",
		}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: prefix + "_push_notifications_total",
			Help: "Web push deliveries by outcome",
		}, []string{"outcome"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests,
		m.duration,
		m.lifecycle,
		m.imports,
		m.importedRooms,
		m.notifications,
	)
	return m
}

// Middleware records request count and latency labelled by route template.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		m.requests.WithLabelValues(c.Request.Method, path, status).Inc()
		m.duration.WithLabelValues(c.Request.Method, path, status).Observe(time.Since(start).Seconds())
	}
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Gatherer exposes the private registry, mainly for tests in other packages.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

func outcome(err error) string {
	if err != nil {
		return OutcomeFailure
	}
	return OutcomeSuccess
}

// ObserveLifecycle counts an approve, evict, checkout or payment operation.
func (m *Metrics) ObserveLifecycle(operation string, err error) {
	if m == nil {
		return
	}
	m.lifecycle.WithLabelValues(operation, outcome(err)).Inc()
}

// ObserveImport counts one catalogue import run.
func (m *Metrics) ObserveImport(roomsWritten int, err error) {
	if m == nil {
		return
	}
	m.imports.WithLabelValues(outcome(err)).Inc()
	m.importedRooms.Add(float64(roomsWritten))
}

// ObserveNotification counts one push delivery attempt.
func (m *Metrics) ObserveNotification(result string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(result).Inc()
}
