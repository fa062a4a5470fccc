package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "hrdash"

// Collector groups every series the service exports. All collectors register
// with the default registry exactly once per process.
type Collector struct {
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	rateLimited     prometheus.Counter
	documentOps     *prometheus.CounterVec
	importedRows    *prometheus.CounterVec
	sweepDeactivate *prometheus.CounterVec
	jobRuns         *prometheus.CounterVec
}

var collectorSingleton = sync.OnceValue(func() *Collector {
	return &Collector{
		requests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		requestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Latency distribution of HTTP requests.",
			Buckets: []float64{
				0.005, 0.01, 0.02, 0.05,
				0.1, 0.2, 0.5,
				1, 2, 5, 10, 30,
			},
		}, []string{"route", "method"}),
		rateLimited: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "rate_limited_total",
			Help:      "Requests refused by the rate limiter.",
		}),
		documentOps: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "documents",
			Name:      "operations_total",
			Help:      "Document uploads, downloads and removals by result.",
		}, []string{"project", "op", "result"}),
		importedRows: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "import",
			Name:      "rows_total",
			Help:      "Bulk import rows by outcome.",
		}, []string{"project", "outcome"}),
		sweepDeactivate: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sweep",
			Name:      "deactivated_total",
			Help:      "Records marked EOC by the expiry sweep.",
		}, []string{"project"}),
		jobRuns: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "runs_total",
			Help:      "Background job runs by type and status.",
		}, []string{"project", "job_type", "status"}),
	}
})

func New() *Collector {
	return collectorSingleton()
}

func (c *Collector) Record(route, method string, status int, duration time.Duration) {
	if c == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	c.requests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	c.requestDuration.WithLabelValues(route, method).Observe(duration.Seconds())
	if status == 429 {
		c.rateLimited.Inc()
	}
}

func (c *Collector) DocumentOp(project, op string, err error) {
	if c == nil {
		return
	}
	c.documentOps.WithLabelValues(project, op, result(err)).Inc()
}

func (c *Collector) ImportedRows(project string, imported, failed int) {
	if c == nil {
		return
	}
	c.importedRows.WithLabelValues(project, "imported").Add(float64(imported))
	c.importedRows.WithLabelValues(project, "failed").Add(float64(failed))
}

func (c *Collector) SweepDeactivated(project string, n int) {
	if c == nil || n <= 0 {
		return
	}
	c.sweepDeactivate.WithLabelValues(project).Add(float64(n))
}

func (c *Collector) JobRun(project, jobType, status string) {
	if c == nil {
		return
	}
	c.jobRuns.WithLabelValues(project, jobType, status).Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
