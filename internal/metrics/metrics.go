// Package metrics provides Prometheus instrumentation for the Chorebay escrow engine.
package metrics

import (
	"context"
	"database/sql"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chorebay",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "chorebay",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// OrdersCreatedTotal counts escrow orders opened with the processor.
	OrdersCreatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "chorebay",
		Name:      "orders_created_total",
		Help:      "Total escrow orders created with the payment processor.",
	})

	// OrderCreationFailuresTotal counts processor order-creation failures.
	OrderCreationFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "chorebay",
		Name:      "order_creation_failures_total",
		Help:      "Total processor order-creation failures (reservation reverted).",
	})

	// WebhookEventsTotal counts inbound processor webhook events by result.
	// Results: applied, duplicate, ignored, bad_signature, bad_payload.
	WebhookEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chorebay",
			Name:      "webhook_events_total",
			Help:      "Total inbound processor webhook events by processing result.",
		},
		[]string{"result"},
	)

	// PayoutsReleasedTotal counts successful transfer releases to workers.
	PayoutsReleasedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "chorebay",
		Name:      "payouts_released_total",
		Help:      "Total held transfers released to workers.",
	})

	// PayoutReleaseFailuresTotal counts release attempts that failed softly.
	PayoutReleaseFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "chorebay",
		Name:      "payout_release_failures_total",
		Help:      "Total payout release failures recorded for later retry.",
	})

	// DisputesResolvedTotal counts dispute resolutions by admin action.
	DisputesResolvedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chorebay",
			Name:      "disputes_resolved_total",
			Help:      "Total disputes resolved by action.",
		},
		[]string{"action"},
	)

	// ManualPaymentsTotal counts off-processor ledger entries by direction.
	ManualPaymentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chorebay",
			Name:      "manual_payments_total",
			Help:      "Total manual ledger entries recorded by direction.",
		},
		[]string{"direction"},
	)

	// PendingSweepExpiredTotal counts PENDING reservations expired by the sweep.
	PendingSweepExpiredTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "chorebay",
		Name:      "pending_sweep_expired_total",
		Help:      "Total stale PENDING escrow payments expired by the reconciliation sweep.",
	})

	// ActiveWebSocketClients tracks connected WebSocket clients.
	ActiveWebSocketClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "chorebay",
			Name:      "active_websocket_clients",
			Help:      "Number of currently connected WebSocket clients.",
		},
	)

	// DBOpenConnections tracks open database connections.
	DBOpenConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "chorebay", Name: "db_open_connections",
		Help: "Number of open database connections.",
	})
	// DBIdleConnections tracks idle database connections.
	DBIdleConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "chorebay", Name: "db_idle_connections",
		Help: "Number of idle database connections.",
	})
	// DBInUseConnections tracks in-use database connections.
	DBInUseConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "chorebay", Name: "db_in_use_connections",
		Help: "Number of in-use database connections.",
	})
	// GoroutineCount tracks the current number of goroutines.
	GoroutineCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "chorebay", Name: "goroutines",
		Help: "Current number of goroutines.",
	})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		OrdersCreatedTotal,
		OrderCreationFailuresTotal,
		WebhookEventsTotal,
		PayoutsReleasedTotal,
		PayoutReleaseFailuresTotal,
		DisputesResolvedTotal,
		ManualPaymentsTotal,
		PendingSweepExpiredTotal,
		ActiveWebSocketClients,
		DBOpenConnections,
		DBIdleConnections,
		DBInUseConnections,
		GoroutineCount,
	)
}

// StartDBStatsCollector periodically samples sql.DBStats and runtime goroutine
// count into Prometheus gauges. Call in a goroutine; exits when ctx is done.
func StartDBStatsCollector(ctx context.Context, db *sql.DB, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := db.Stats()
			DBOpenConnections.Set(float64(stats.OpenConnections))
			DBIdleConnections.Set(float64(stats.Idle))
			DBInUseConnections.Set(float64(stats.InUse))
			GoroutineCount.Set(float64(runtime.NumGoroutine()))
		}
	}
}

// Middleware returns a gin middleware that records request metrics.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		timer := prometheus.NewTimer(HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(), // Uses route pattern, not actual path (avoids cardinality explosion)
		))

		c.Next()

		timer.ObserveDuration()
		HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			statusBucket(c.Writer.Status()),
		).Inc()
	}
}

// Handler returns the Prometheus metrics HTTP handler for /metrics endpoint.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// statusBucket groups HTTP status codes into buckets (2xx, 3xx, 4xx, 5xx).
func statusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
