package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersPlacedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_placed_total",
		Help: "Total number of orders placed with stock reserved",
	})

	OrdersFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_failed_total",
		Help: "Total number of rejected order placements",
	}, []string{"reason"})

	OrdersCancelledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_cancelled_total",
		Help: "Total number of cancelled orders",
	})

	OrderTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "order_status_transitions_total",
		Help: "Total number of order status transitions",
	}, []string{"to"})

	InventoryReserveLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "inventory_reserve_latency_seconds",
		Help:    "Latency of stock reservation and order recording",
		Buckets: prometheus.DefBuckets,
	})

	CompensationAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inventory_compensation_attempts_total",
		Help: "Total number of stock release attempts after a failed write",
	}, []string{"operation", "result"})

	CompensationFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inventory_compensation_failed_total",
		Help: "Total number of stock releases that exhausted their retries",
	}, []string{"operation"})

	ReconciliationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inventory_reconciliations_total",
		Help: "Total number of escalated compensations handled by the reconciler",
	}, []string{"result"})

	StockMirrorErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_mirror_errors_total",
		Help: "Total number of failed availability mirror operations",
	}, []string{"op"})

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
