// Package metrics provides Prometheus metrics for the vault service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Session metrics
	SessionConnected prometheus.Gauge
	ConnectAttempts  *prometheus.CounterVec
	WalletEvents     *prometheus.CounterVec
	Reloads          prometheus.Counter

	// Gateway metrics
	RefreshTotal        *prometheus.CounterVec
	RefreshDuration     prometheus.Histogram
	StaleRefreshDropped prometheus.Counter
	DepositsTotal       *prometheus.CounterVec
	WithdrawalsTotal    *prometheus.CounterVec

	// Notification metrics
	NotificationsSent *prometheus.CounterVec
	WSClients         prometheus.Gauge

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastSuccessfulRefresh prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered on reg.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "cdsusd_vault"
	}
	factory := promauto.With(reg)

	return &Metrics{
		SessionConnected: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "connected",
			Help:      "1 while a wallet session is connected",
		}),
		ConnectAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "connect_attempts_total",
			Help:      "Wallet connect attempts by outcome",
		}, []string{"status"}),
		WalletEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "wallet_events_total",
			Help:      "Wallet notifications received by kind",
		}, []string{"kind"}),
		Reloads: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "reloads_total",
			Help:      "Full session reloads triggered by chain changes",
		}),

		RefreshTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "vault",
			Name:      "refresh_total",
			Help:      "Vault data refreshes by outcome",
		}, []string{"status"}),
		RefreshDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "vault",
			Name:      "refresh_duration_seconds",
			Help:      "Metadata plus user data refresh latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		StaleRefreshDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "vault",
			Name:      "stale_refresh_dropped_total",
			Help:      "Refresh results discarded because a newer refresh or session change superseded them",
		}),
		DepositsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "vault",
			Name:      "deposits_total",
			Help:      "Deposit submissions by final saga stage",
		}, []string{"stage"}),
		WithdrawalsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "vault",
			Name:      "withdrawals_total",
			Help:      "Withdraw submissions by outcome",
		}, []string{"status"}),

		NotificationsSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "notifications_total",
			Help:      "User-visible notifications by level",
		}, []string{"level"}),
		WSClients: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "ws_clients",
			Help:      "Connected notification stream clients",
		}),

		DBQueryDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		DBQueryErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      "query_errors_total",
			Help:      "Database query errors by operation",
		}, []string{"operation"}),

		LastSuccessfulRefresh: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "vault",
			Name:      "last_successful_refresh_timestamp",
			Help:      "Unix timestamp of the last applied refresh",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("", prometheus.DefaultRegisterer)

// SetConnected updates the session gauge.
func SetConnected(connected bool) {
	if connected {
		DefaultMetrics.SessionConnected.Set(1)
		return
	}
	DefaultMetrics.SessionConnected.Set(0)
}

// RecordConnect records a connect attempt outcome.
func RecordConnect(status string) {
	DefaultMetrics.ConnectAttempts.WithLabelValues(status).Inc()
}

// RecordWalletEvent records a wallet notification.
func RecordWalletEvent(kind string) {
	DefaultMetrics.WalletEvents.WithLabelValues(kind).Inc()
}

// RecordReload records a full session reload.
func RecordReload() {
	DefaultMetrics.Reloads.Inc()
}

// RecordRefresh records a refresh outcome and its latency.
func RecordRefresh(status string, seconds float64, unixNow int64) {
	DefaultMetrics.RefreshTotal.WithLabelValues(status).Inc()
	DefaultMetrics.RefreshDuration.Observe(seconds)
	if status == "success" {
		DefaultMetrics.LastSuccessfulRefresh.Set(float64(unixNow))
	}
}

// RecordStaleRefresh records a discarded out-of-order refresh result.
func RecordStaleRefresh() {
	DefaultMetrics.StaleRefreshDropped.Inc()
}

// RecordDeposit records the stage a deposit saga ended in.
func RecordDeposit(stage string) {
	DefaultMetrics.DepositsTotal.WithLabelValues(stage).Inc()
}

// RecordWithdraw records a withdraw outcome.
func RecordWithdraw(status string) {
	DefaultMetrics.WithdrawalsTotal.WithLabelValues(status).Inc()
}

// RecordNotification records a user-visible notification.
func RecordNotification(level string) {
	DefaultMetrics.NotificationsSent.WithLabelValues(level).Inc()
}

// AddWSClients adjusts the connected notification stream gauge.
func AddWSClients(delta int) {
	DefaultMetrics.WSClients.Add(float64(delta))
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(operation).Inc()
	}
}
