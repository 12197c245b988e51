package monitoring

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.1, 0.5, 1, 2, 5},
		},
		[]string{"method", "endpoint"},
	)

	// WeeklySummaryOutcomes counts weekly summary attempts by outcome
	// (sent, already_sent, not_sunday, failed).
	WeeklySummaryOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weekly_summary_outcomes_total",
			Help: "Weekly summary generation outcomes",
		},
		[]string{"outcome"},
	)

	WeeklySweepDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "weekly_sweep_duration_seconds",
			Help:    "Duration of scheduled weekly summary sweeps",
			Buckets: []float64{1, 5, 15, 60, 300, 900},
		},
	)

	CleanupRecords = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cleanup_records_total",
			Help: "Records touched by user-deletion cleanup",
		},
		[]string{"collection", "action"},
	)

	ReportBuilds = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "effort_report_builds_total",
			Help: "Effort reports built, by selector kind and status",
		},
		[]string{"selector", "status"},
	)

	NotificationsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_sent_total",
			Help: "Notifications persisted, by type",
		},
		[]string{"type"},
	)
)

var registerOnce sync.Once

// Init registers all collectors with the default registry. Safe to call more than once.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			RequestCounter,
			RequestDuration,
			WeeklySummaryOutcomes,
			WeeklySweepDuration,
			CleanupRecords,
			ReportBuilds,
			NotificationsSent,
		)
	})
}

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := c.Writer.Status()
		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}

		RequestCounter.WithLabelValues(
			c.Request.Method,
			endpoint,
			strconv.Itoa(status),
		).Inc()

		RequestDuration.WithLabelValues(
			c.Request.Method,
			endpoint,
		).Observe(duration)
	}
}

func PrometheusHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
