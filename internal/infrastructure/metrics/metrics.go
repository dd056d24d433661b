// Package metrics exposes Prometheus instruments for HTTP traffic, filter
// evaluation, imports and tenant pools.
package metrics

import (
	"context"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"audience/internal/core/tenant"
	"audience/internal/domain"
	"audience/internal/domain/importer"
)

const namespace = "audience"

// Metrics holds every instrument. Create one per process with New.
type Metrics struct {
	httpRequests *prometheus.CounterVec
	httpLatency  *prometheus.HistogramVec

	evalLatency *prometheus.HistogramVec
	evalScanned *prometheus.CounterVec
	evalMatched *prometheus.CounterVec

	importRows *prometheus.CounterVec

	refreshRuns    *prometheus.CounterVec
	refreshLatency prometheus.Histogram
}

var _ domain.EvaluationObserver = (*Metrics)(nil)

// New registers the instruments on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status code",
		}, []string{"method", "route", "status"}),
		httpLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),

		evalLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "filter",
			Name:      "evaluation_seconds",
			Help:      "Time spent evaluating criteria over a profile set",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"scope"}),
		evalScanned: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "filter",
			Name:      "records_scanned_total",
			Help:      "Profiles scanned by filter evaluations",
		}, []string{"scope"}),
		evalMatched: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "filter",
			Name:      "records_matched_total",
			Help:      "Profiles matched by filter evaluations",
		}, []string{"scope"}),

		importRows: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "import",
			Name:      "rows_total",
			Help:      "Imported rows by outcome (inserted, updated, skipped)",
		}, []string{"outcome"}),

		refreshRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "segment",
			Name:      "refresh_runs_total",
			Help:      "Segment refresh runs by result",
		}, []string{"result"}),
		refreshLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "segment",
			Name:      "refresh_duration_seconds",
			Help:      "Duration of a full segment refresh for one tenant",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60},
		}),
	}
}

// ObserveEvaluation implements domain.EvaluationObserver.
func (m *Metrics) ObserveEvaluation(scope string, scanned, matched int, elapsed time.Duration) {
	m.evalLatency.WithLabelValues(scope).Observe(elapsed.Seconds())
	m.evalScanned.WithLabelValues(scope).Add(float64(scanned))
	m.evalMatched.WithLabelValues(scope).Add(float64(matched))
}

// ImportHook counts rows of a finished import. Register it as an AfterImport hook.
func (m *Metrics) ImportHook(_ context.Context, res *importer.Result) error {
	m.importRows.WithLabelValues("inserted").Add(float64(res.Inserted))
	m.importRows.WithLabelValues("updated").Add(float64(res.Updated))
	m.importRows.WithLabelValues("skipped").Add(float64(res.Skipped))
	return nil
}

// ObserveRefresh records one RefreshAll run.
func (m *Metrics) ObserveRefresh(elapsed time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.refreshRuns.WithLabelValues(result).Inc()
	m.refreshLatency.Observe(elapsed.Seconds())
}

// Middleware records request count and latency per matched route.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.httpRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.httpLatency.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

// PoolStatser is implemented by tenant.Manager.
type PoolStatser interface {
	Stats() tenant.ManagerStats
}

// RegisterPoolStats exposes tenant pool gauges read from src at scrape time.
func RegisterPoolStats(reg prometheus.Registerer, src PoolStatser) {
	f := promauto.With(reg)
	gauge := func(name, help string, read func(tenant.ManagerStats) int) {
		f.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "tenant",
			Name:      name,
			Help:      help,
		}, func() float64 { return float64(read(src.Stats())) })
	}
	gauge("pools", "Open tenant connection pools", func(s tenant.ManagerStats) int { return s.TotalPools })
	gauge("conns_total", "Connections across tenant pools", func(s tenant.ManagerStats) int { return s.TotalConns })
	gauge("conns_idle", "Idle connections across tenant pools", func(s tenant.ManagerStats) int { return s.IdleConns })
	gauge("conns_acquired", "Acquired connections across tenant pools", func(s tenant.ManagerStats) int { return s.AcquiredConns })
}
