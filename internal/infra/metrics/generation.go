package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		generationJobs,
		generationUnknownStatus,
		generationWaitSeconds,
		artifactDownloads,
	)
}

var (
	generationJobs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "generation_jobs_total",
			Help: "Video generation jobs by provider and outcome (succeeded/failed/timeout/rejected).",
		},
		[]string{"provider", "outcome"},
	)

	generationUnknownStatus = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "generation_unknown_status_total",
			Help: "Unrecognized terminal-looking provider statuses, by matched keyword.",
		},
		[]string{"provider", "status"},
	)

	generationWaitSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "generation_wait_seconds",
			Help:    "Time from submit to terminal status.",
			Buckets: []float64{5, 15, 30, 60, 120, 180, 300, 600},
		},
		[]string{"provider", "outcome"},
	)

	artifactDownloads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "artifact_downloads_total",
			Help: "Artifact downloads by provider and result.",
		},
		[]string{"provider", "result"},
	)
)

func IncGenerationJob(provider, outcome string) {
	generationJobs.WithLabelValues(norm(provider), norm(outcome)).Inc()
}

func IncUnknownStatus(provider, status string) {
	generationUnknownStatus.WithLabelValues(norm(provider), norm(status)).Inc()
}

func ObserveGenerationWait(provider, outcome string, seconds float64) {
	generationWaitSeconds.WithLabelValues(norm(provider), norm(outcome)).Observe(seconds)
}

func IncArtifactDownload(provider string, ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	artifactDownloads.WithLabelValues(norm(provider), result).Inc()
}
