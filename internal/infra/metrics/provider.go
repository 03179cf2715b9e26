package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(providerCallsTotal, providerCallLatencyMs)
}

var (
	providerCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "image_provider_calls_total",
			Help: "Total image provider calls per provider/model and outcome.",
		},
		[]string{"provider", "model", "success"},
	)

	providerCallLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "image_provider_call_latency_ms",
			Help:    "Image provider call latency distribution in milliseconds.",
			Buckets: []float64{250, 500, 1000, 2500, 5000, 10000, 20000, 45000, 90000},
		},
		[]string{"provider", "model"},
	)
)

func ObserveProviderCall(provider, model string, latencyMs int, success bool) {
	p, m := norm(provider), norm(model)
	providerCallsTotal.WithLabelValues(p, m, strconv.FormatBool(success)).Inc()
	providerCallLatencyMs.WithLabelValues(p, m).Observe(float64(latencyMs))
}
