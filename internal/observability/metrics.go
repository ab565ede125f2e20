package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "signalctl",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"app", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "signalctl",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"app", "method", "path", "status"},
	)
	transactions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "signalctl",
			Subsystem: "terminal",
			Name:      "transactions_total",
			Help:      "Transactions sent to or received from the host.",
		},
		[]string{"direction", "mti"},
	)
	connectionState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "signalctl",
			Subsystem: "terminal",
			Name:      "connection_state",
			Help:      "Host connection state: 0 disconnected, 1 connecting, 2 connected.",
		},
	)
	bridgeRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "signalctl",
			Subsystem: "bridge",
			Name:      "requests_total",
			Help:      "API requests completed by the protocol bridge.",
		},
		[]string{"type", "status"},
	)
	bridgePending = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "signalctl",
			Subsystem: "bridge",
			Name:      "pending",
			Help:      "API requests waiting for a terminal answer.",
		},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			httpDuration,
			transactions,
			connectionState,
			bridgeRequests,
			bridgePending,
		)
	})
}

func RecordHTTPRequest(app, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(app, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(app, method, path, statusLabel).Observe(duration.Seconds())
}

func RecordTransaction(direction, mti string) {
	RegisterMetrics()
	transactions.WithLabelValues(direction, mti).Inc()
}

func SetConnectionState(state int) {
	RegisterMetrics()
	connectionState.Set(float64(state))
}

func RecordBridgeRequest(requestType string, status int) {
	RegisterMetrics()
	bridgeRequests.WithLabelValues(requestType, strconv.Itoa(status)).Inc()
}

func SetBridgePending(n int) {
	RegisterMetrics()
	bridgePending.Set(float64(n))
}
