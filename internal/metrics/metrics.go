// Package metrics declares the process-wide Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Label values shared by several collectors.
const (
	ResultOK       = "ok"
	ResultReplayed = "replayed"
	ResultError    = "error"
)

//nolint:gochecknoglobals
var (
	// LedgerOperations counts executions of ledger primitives. A retried
	// transaction counts once per attempt.
	LedgerOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_operations_total",
			Help: "Ledger primitive executions by operation and result",
		},
		[]string{"operation", "result"},
	)

	WebhookOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paytr_webhook_outcomes_total",
			Help: "PayTR callback outcomes",
		},
		[]string{"outcome"},
	)

	OrdersAutoReleased = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "orders_auto_released_total",
			Help: "Orders completed by the auto-release timeout",
		},
	)

	AutoReleaseErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "orders_auto_release_errors_total",
			Help: "Orders the auto-release job failed to complete",
		},
	)

	NotificationsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "notifications_dropped_total",
			Help: "Notifications dropped because the dispatch queue was full",
		},
	)

	NotificationsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_published_total",
			Help: "Notifications handed to the broker",
		},
		[]string{"result"},
	)

	NotificationsConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_consumed_total",
			Help: "Notifications delivered by the sink worker",
		},
		[]string{"result"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern",
			Buckets: []float64{.005, .01, .05, .1, .25, .5, 1, 2, 5},
		},
		[]string{"method", "route", "status"},
	)
)
