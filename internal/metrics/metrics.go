package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequests tracks API requests by route pattern and status class
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "glow_http_requests_total",
		Help: "Total number of HTTP requests handled",
	}, []string{"method", "route", "status"})

	// HTTPDuration tracks request latency
	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "glow_http_request_duration_seconds",
		Help:    "Histogram of HTTP request duration",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})

	// BudgetDecisions counts ledger outcomes: reserved, unbudgeted,
	// rejected_limit, rejected_budget, released, unavailable
	BudgetDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "glow_budget_decisions_total",
		Help: "Total number of budget ledger decisions",
	}, []string{"decision"})

	// Payments counts send outcomes
	Payments = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "glow_payments_total",
		Help: "Total number of outgoing payments by outcome",
	}, []string{"outcome"})

	// SendDuration tracks wallet execution time for outgoing payments
	SendDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "glow_send_duration_seconds",
		Help:    "Histogram of wallet send duration",
		Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"outcome"})

	// WalletConnected indicates whether the wallet capability is initialized
	WalletConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "glow_wallet_connected",
		Help: "Binary indicator of wallet connection state (1 = connected)",
	})

	// DBConnectionsOpen tracks established database connections
	DBConnectionsOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "glow_db_connections_open",
		Help: "Number of established database connections",
	})

	// DBConnectionsInUse tracks busy database connections
	DBConnectionsInUse = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "glow_db_connections_in_use",
		Help: "Number of database connections currently in use",
	})

	// NotificationsDropped counts events discarded because the queue was full
	NotificationsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "glow_notifications_dropped_total",
		Help: "Total number of notifications dropped on a full queue",
	})
)

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// SetBool sets a binary gauge.
func SetBool(g prometheus.Gauge, v bool) {
	if v {
		g.Set(1)
		return
	}
	g.Set(0)
}
