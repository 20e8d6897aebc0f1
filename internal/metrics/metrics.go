// Package metrics provides the centralized Prometheus metrics registry for
// the wagering service.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Global registry instance
var (
	registry *prometheus.Registry
	once     sync.Once
)

// Counter metrics
var (
	BetsPlacedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "sidepot",
		Name:      "bets_placed_total",
		Help:      "Total number of bets placed",
	})
	BetsRejectedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "sidepot",
		Name:      "bets_rejected_total",
		Help:      "Total number of bets rejected by validation or funds checks",
	})
	MarketsSettledTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "sidepot",
		Name:      "markets_settled_total",
		Help:      "Total number of markets settled with a winner",
	})
	MarketsVoidedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "sidepot",
		Name:      "markets_voided_total",
		Help:      "Total number of one-sided markets voided with refunds",
	})
	ConflictRetriesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "sidepot",
		Name:      "conflict_retries_total",
		Help:      "Total number of transaction conflicts retried by the engines",
	})
	LedgerEntriesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "sidepot",
		Name:      "ledger_entries_total",
		Help:      "Total number of outstanding balance entries created",
	})
	NotificationsFailedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "sidepot",
		Name:      "notifications_failed_total",
		Help:      "Total number of notification deliveries that failed",
	})
	OddsSnapshotsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "sidepot",
		Name:      "odds_snapshots_total",
		Help:      "Total number of odds history snapshots written",
	})
	OddsSnapshotsPrunedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "sidepot",
		Name:      "odds_snapshots_pruned_total",
		Help:      "Total number of odds history snapshots pruned past retention",
	})
)

// Gauge metrics
var (
	OpenMarkets = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "sidepot",
		Name:      "open_markets",
		Help:      "Number of markets currently open for wagering",
	})
	StreamClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "sidepot",
		Name:      "stream_clients",
		Help:      "Number of connected odds stream clients",
	})
)

// Histogram metrics
var (
	BetPlacementLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "sidepot",
		Name:      "bet_placement_latency_seconds",
		Help:      "Latency of bet placement operations in seconds",
		Buckets:   prometheus.DefBuckets,
	})
	SettlementDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "sidepot",
		Name:      "settlement_duration_seconds",
		Help:      "Duration of market settlement in seconds",
		Buckets:   prometheus.DefBuckets,
	})
)

// InitRegistry initializes the global Prometheus registry.
func InitRegistry() *prometheus.Registry {
	once.Do(func() {
		registry = prometheus.NewRegistry()

		registry.MustRegister(BetsPlacedTotal)
		registry.MustRegister(BetsRejectedTotal)
		registry.MustRegister(MarketsSettledTotal)
		registry.MustRegister(MarketsVoidedTotal)
		registry.MustRegister(ConflictRetriesTotal)
		registry.MustRegister(LedgerEntriesTotal)
		registry.MustRegister(NotificationsFailedTotal)
		registry.MustRegister(OddsSnapshotsTotal)
		registry.MustRegister(OddsSnapshotsPrunedTotal)

		registry.MustRegister(OpenMarkets)
		registry.MustRegister(StreamClients)

		registry.MustRegister(BetPlacementLatency)
		registry.MustRegister(SettlementDuration)
	})
	return registry
}

// GetRegistry returns the global Prometheus registry.
func GetRegistry() *prometheus.Registry {
	if registry == nil {
		return InitRegistry()
	}
	return registry
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.HandlerFor(GetRegistry(), promhttp.HandlerOpts{})
}
