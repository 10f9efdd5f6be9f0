package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	paymentsReconciledTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_reconciled_total",
			Help: "Payment outcomes applied, by source and resulting status",
		},
		[]string{"source", "status", "changed"},
	)

	webhooksReceivedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_webhooks_received_total",
			Help: "Provider webhooks received, by event and result",
		},
		[]string{"event", "result"},
	)

	checkoutsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkouts_total",
			Help: "Checkout attempts by result",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(paymentsReconciledTotal)
	prometheus.MustRegister(webhooksReceivedTotal)
	prometheus.MustRegister(checkoutsTotal)
}

func RecordReconciled(source, status string, changed bool) {
	c := "false"
	if changed {
		c = "true"
	}
	paymentsReconciledTotal.WithLabelValues(source, status, c).Inc()
}

func RecordWebhook(event, result string) {
	webhooksReceivedTotal.WithLabelValues(event, result).Inc()
}

func RecordCheckout(result string) {
	checkoutsTotal.WithLabelValues(result).Inc()
}
