package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dispatch_orders_created_total",
		Help: "Total number of orders successfully created.",
	})

	OrderTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_order_transitions_total",
		Help: "Total number of applied order status transitions by target status.",
	},
		[]string{"status"},
	)

	ClaimsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_claims_total",
		Help: "Total number of courier claim attempts by result.",
	},
		[]string{"result"},
	)

	OTPFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dispatch_otp_failures_total",
		Help: "Total number of rejected delivery codes.",
	})

	CouriersNotifiedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_couriers_notified_total",
		Help: "Total number of couriers notified about available orders, by dispatch phase.",
	},
		[]string{"phase"},
	)

	NotificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_notifications_total",
		Help: "Total number of outbound notifications by channel and result.",
	},
		[]string{"channel", "result"},
	)

	OperationErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_operation_errors_total",
		Help: "Total number of errors encountered during specific operations.",
	},
		[]string{"operation"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dispatch_http_request_duration_seconds",
		Help:    "HTTP request latency by route and status code.",
		Buckets: prometheus.DefBuckets,
	},
		[]string{"method", "route", "status"},
	)
)
