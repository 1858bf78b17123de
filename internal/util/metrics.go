package util

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TransactionsReservedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "market_transactions_reserved_total",
		Help: "Total number of items reserved for a buyer",
	})

	TransactionsSoldTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "market_transactions_sold_total",
		Help: "Total number of items confirmed as sold",
	})

	TransactionsRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "market_transactions_rejected_total",
		Help: "Total number of rejected transaction transitions",
	}, []string{"transition", "reason"})

	MessagesSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "market_messages_sent_total",
		Help: "Total number of chat messages appended",
	}, []string{"kind"})

	MessagesRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "market_messages_rejected_total",
		Help: "Total number of chat messages rejected",
	}, []string{"reason"})

	ReviewsSubmittedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "market_reviews_submitted_total",
		Help: "Total number of reviews submitted",
	})

	EventsPublishFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "market_events_publish_failed_total",
		Help: "Total number of domain events that could not be published",
	}, []string{"event_type"})

	RealtimeConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "market_realtime_connections",
		Help: "Number of open websocket connections",
	})

	StoreLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "market_store_latency_seconds",
		Help:    "Latency of store round-trips made by services",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)

// ObserveStore records the latency of a store round-trip started at start
func ObserveStore(operation string, start time.Time) {
	StoreLatency.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
