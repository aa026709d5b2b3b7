package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_created_total",
		Help: "Total number of orders created by checkout",
	})

	CheckoutsFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkouts_failed_total",
		Help: "Total number of rejected checkouts",
	}, []string{"reason"})

	EscrowsReleasedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "escrows_released_total",
		Help: "Total number of escrows released to sellers",
	})

	EscrowsRefundedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "escrows_refunded_total",
		Help: "Total number of escrows refunded to buyers",
	})

	EscrowHeldAmount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "escrow_held_amount",
		Help: "Sum of amounts currently held in escrow, in minor units",
	})

	OrdersDisputedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_disputed_total",
		Help: "Total number of disputes opened",
	})

	TransitionConflictsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "order_transition_conflicts_total",
		Help: "Total number of terminal transitions rejected on precondition",
	})

	AutoReleasesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "escrow_auto_releases_total",
		Help: "Total number of escrows released by the deadline sweeper",
	})

	SweepLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "escrow_sweep_latency_seconds",
		Help:    "Latency of one auto-release sweep pass",
		Buckets: prometheus.DefBuckets,
	})

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
