// Package metrics holds the prometheus collectors of the library service.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// BorrowRequestsCreated counts pending requests successfully created.
	BorrowRequestsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "library_borrow_requests_created_total",
		Help: "Total number of borrow requests created",
	})

	// BorrowTransitions counts committed status changes.
	BorrowTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "library_borrow_transitions_total",
		Help: "Total number of borrow request status transitions by source and target status",
	}, []string{"from", "to"})

	// BorrowFailures counts rejected or failed borrow operations by error kind.
	BorrowFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "library_borrow_failures_total",
		Help: "Total number of failed borrow operations by operation and error kind",
	}, []string{"operation", "kind"})

	// OverdueLoans is the number of accepted loans past their due date at the last sweep.
	OverdueLoans = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "library_overdue_loans",
		Help: "Accepted loans past their due date at the last overdue sweep",
	})

	// OutstandingFines is the sum of accrued fines on overdue loans at the last sweep.
	OutstandingFines = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "library_outstanding_fines",
		Help: "Sum of fines accrued by overdue loans at the last overdue sweep",
	})

	// HTTPRequestDuration records handler latency.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "library_http_request_duration_seconds",
		Help:    "HTTP request latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
)

// Middleware records HTTPRequestDuration for every request, labelled by the
// matched route pattern rather than the raw path.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		HTTPRequestDuration.
			WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}

// Handler exposes the default registry.
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
