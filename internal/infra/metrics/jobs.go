package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		jobsSubmittedTotal,
		jobsSettledTotal,
		jobsRetriedTotal,
		leasesReclaimedTotal,
	)
}

var (
	jobsSubmittedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "image_jobs_submitted_total",
			Help: "Total image jobs admitted, labeled by type.",
		},
		[]string{"type"}, // 'generate', 'edit'
	)

	jobsSettledTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "image_jobs_settled_total",
			Help: "Total image jobs settled, labeled by final status.",
		},
		[]string{"status"}, // 'succeeded', 'failed', 'refunded'
	)

	jobsRetriedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "image_jobs_retried_total",
			Help: "Total transient provider failures sent back for retry.",
		},
	)

	leasesReclaimedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "image_job_leases_reclaimed_total",
			Help: "Total expired leases returned to the queue by the sweep.",
		},
	)
)

func IncJobSubmitted(jobType string) {
	jobsSubmittedTotal.WithLabelValues(norm(jobType)).Inc()
}

func IncJobSettled(status string) {
	jobsSettledTotal.WithLabelValues(norm(status)).Inc()
}

func IncJobRetried() { jobsRetriedTotal.Inc() }

func IncLeaseReclaimed() { leasesReclaimedTotal.Inc() }
