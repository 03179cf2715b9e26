package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(ledgerRejectionsTotal)
}

var ledgerRejectionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "ledger_rejections_total",
		Help: "Ledger writes refused, labeled by cause.",
	},
	[]string{"cause"}, // 'insufficient_balance', 'conflict'
)

func IncLedgerRejection(cause string) {
	ledgerRejectionsTotal.WithLabelValues(norm(cause)).Inc()
}
