package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(queueDepth)
}

var queueDepth = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "image_job_queue_depth",
		Help: "Jobs currently waiting in the ready queue.",
	},
)

func SetQueueDepth(n int64) { queueDepth.Set(float64(n)) }
