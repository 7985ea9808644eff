// Package metrics provides Prometheus instrumentation for the Mule-Hunter engine.
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
			Namespace: "mulehunter",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mulehunter",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// TransactionsSubmitted counts saga runs by outcome.
	TransactionsSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mulehunter",
			Name:      "transactions_submitted_total",
			Help:      "Total transaction submissions by result (scored, degraded, rejected).",
		},
		[]string{"result"},
	)

	// SuspectedFraudTotal counts transactions flagged by the scoring verdict.
	SuspectedFraudTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "mulehunter",
		Name:      "suspected_fraud_total",
		Help:      "Total transactions whose verdict marked them as suspected fraud.",
	})

	// UpstreamFailures counts swallowed collaborator failures by collaborator.
	UpstreamFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mulehunter",
			Name:      "upstream_failures_total",
			Help:      "Total upstream collaborator failures by collaborator name.",
		},
		[]string{"collaborator"},
	)

	// UpstreamCallDuration observes collaborator call latency.
	UpstreamCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mulehunter",
			Name:      "upstream_call_duration_seconds",
			Help:      "Upstream collaborator call duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"collaborator"},
	)

	// FraudLogsQueued counts fraud logs appended to the ledger's pending buffer.
	FraudLogsQueued = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "mulehunter",
		Name:      "fraud_logs_queued_total",
		Help:      "Total fraud logs appended to the ledger pending buffer.",
	})

	// BlocksSealed counts blocks sealed by trigger (batch, forced).
	BlocksSealed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mulehunter",
			Name:      "blocks_sealed_total",
			Help:      "Total ledger blocks sealed by trigger.",
		},
		[]string{"trigger"},
	)

	// PendingFraudLogs tracks the current ledger pending-buffer size.
	PendingFraudLogs = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "mulehunter",
		Name:      "pending_fraud_logs",
		Help:      "Current number of fraud logs awaiting block sealing.",
	})

	// BotsBlocked counts fingerprints crossing the bot threshold.
	BotsBlocked = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "mulehunter",
		Name:      "bots_blocked_total",
		Help:      "Total fingerprints permanently blocked by the bot detector.",
	})

	// JA3Evaluations counts fingerprint risk evaluations.
	JA3Evaluations = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "mulehunter",
		Name:      "ja3_evaluations_total",
		Help:      "Total JA3 fingerprint risk evaluations.",
	})

	// ActiveWebSocketClients tracks connected WebSocket clients.
	ActiveWebSocketClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "mulehunter",
		Name:      "active_websocket_clients",
		Help:      "Number of currently connected WebSocket clients.",
	})

	// DBOpenConnections tracks open database connections.
	DBOpenConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "mulehunter", Name: "db_open_connections",
		Help: "Number of open database connections.",
	})
	// DBIdleConnections tracks idle database connections.
	DBIdleConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "mulehunter", Name: "db_idle_connections",
		Help: "Number of idle database connections.",
	})
	// DBInUseConnections tracks in-use database connections.
	DBInUseConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "mulehunter", Name: "db_in_use_connections",
		Help: "Number of in-use database connections.",
	})
	// GoroutineCount tracks the current number of goroutines.
	GoroutineCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "mulehunter", Name: "goroutines",
		Help: "Current number of goroutines.",
	})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		TransactionsSubmitted,
		SuspectedFraudTotal,
		UpstreamFailures,
		UpstreamCallDuration,
		FraudLogsQueued,
		BlocksSealed,
		PendingFraudLogs,
		BotsBlocked,
		JA3Evaluations,
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
			c.FullPath(), // Route pattern, not actual path (avoids cardinality explosion)
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

// Handler returns the Prometheus metrics HTTP handler for the /metrics endpoint.
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
