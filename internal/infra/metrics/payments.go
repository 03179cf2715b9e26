package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(paymentNotificationsTotal, tokensCreditedTotal)
}

var (
	paymentNotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_notifications_total",
			Help: "Gateway notifications received, labeled by outcome.",
		},
		[]string{"outcome"}, // 'accepted', 'duplicate', 'rejected', 'bad_signature', 'ignored'
	)

	tokensCreditedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "payment_tokens_credited_total",
			Help: "Total tokens credited from confirmed payments.",
		},
	)
)

func IncPaymentNotification(outcome string) {
	paymentNotificationsTotal.WithLabelValues(norm(outcome)).Inc()
}

func AddTokensCredited(tokens int64) {
	if tokens > 0 {
		tokensCreditedTotal.Add(float64(tokens))
	}
}
