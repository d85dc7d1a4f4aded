package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	HTTPLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_requests_latency_seconds",
			Help:    "Latency of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	// State machine transitions
	TransactionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transactions_total",
			Help: "Total successful transaction transitions",
		},
		[]string{"operation"}, // initiate|pre_approve|request_approval|customer_decide|bank_update|confirm_payout
	)
	TransactionsFailed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "transactions_failed_total",
			Help: "Total failed transaction transitions",
		},
	)
	TransactionsExpired = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "transactions_expired_total",
			Help: "Total transactions expired by the scheduler",
		},
	)

	// Notification gateway
	NotificationsFailed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "notifications_failed_total",
			Help: "Total failed SMS/email deliveries",
		},
	)

	// Scheduler
	SchedulerQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "scheduler_queue_depth",
			Help: "Deferred tasks waiting to fire",
		},
	)
	SchedulerRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scheduler_retries_total",
			Help: "Scheduler task retries after store failures",
		},
	)
)

var Handler = promhttp.Handler

func Init() {
	prometheus.MustRegister(RequestsTotal)
	prometheus.MustRegister(HTTPLatency)
	prometheus.MustRegister(TransactionsTotal)
	prometheus.MustRegister(TransactionsFailed)
	prometheus.MustRegister(TransactionsExpired)
	prometheus.MustRegister(NotificationsFailed)
	prometheus.MustRegister(SchedulerQueueDepth)
	prometheus.MustRegister(SchedulerRetries)
}
