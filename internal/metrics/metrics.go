package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP request latency (seconds)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "library_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"method", "path", "status"},
	)

	LoanTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "library_loan_transitions_total",
			Help: "Loan lifecycle operations by outcome",
		},
		[]string{"operation", "outcome"}, // outcome: ok, or the error kind
	)

	StoreBusyRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "library_store_busy_retries_total",
			Help: "Transactions retried after lock contention",
		},
		[]string{"operation"},
	)

	SweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "library_overdue_sweep_duration_seconds",
			Help:    "Overdue sweep duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
	)

	SweepLoans = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "library_overdue_sweep_loans_total",
			Help: "Loans processed by the overdue sweep",
		},
		[]string{"result"}, // scanned, updated, overdue
	)

	NotificationDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "library_notification_deliveries_total",
			Help: "Notification deliveries by channel and status",
		},
		[]string{"channel", "status"}, // status: success, failed, dropped
	)
)

// RecordHTTPRequest records one served request.
func RecordHTTPRequest(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

func RecordLoanTransition(operation, outcome string) {
	LoanTransitions.WithLabelValues(operation, outcome).Inc()
}

func RecordBusyRetry(operation string) {
	StoreBusyRetries.WithLabelValues(operation).Inc()
}

// RecordSweep records a completed sweep.
func RecordSweep(scanned, updated, overdue int, duration time.Duration) {
	SweepDuration.Observe(duration.Seconds())
	SweepLoans.WithLabelValues("scanned").Add(float64(scanned))
	SweepLoans.WithLabelValues("updated").Add(float64(updated))
	SweepLoans.WithLabelValues("overdue").Add(float64(overdue))
}

func RecordNotificationDelivery(channel string, err error) {
	status := "success"
	if err != nil {
		status = "failed"
	}
	NotificationDeliveries.WithLabelValues(channel, status).Inc()
}

// RecordNotificationDropped counts a delivery that never reached its channel.
func RecordNotificationDropped(channel string) {
	NotificationDeliveries.WithLabelValues(channel, "dropped").Inc()
}
