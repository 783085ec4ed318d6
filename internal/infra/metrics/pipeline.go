package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(stageDuration, stageRuns, checkpointWrites)
}

var (
	stageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pipeline_stage_duration_seconds",
			Help:    "Wall time spent in each pipeline stage.",
			Buckets: []float64{1, 5, 15, 30, 60, 180, 600, 1800, 3600},
		},
		[]string{"stage"},
	)

	stageRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_stage_runs_total",
			Help: "Stage executions by final state (completed/failed/loaded).",
		},
		[]string{"stage", "state"},
	)

	checkpointWrites = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkpoint_writes_total",
			Help: "Checkpoint writes by backend and result (ok/exists/error).",
		},
		[]string{"backend", "result"},
	)
)

func ObserveStage(stage, state string, seconds float64) {
	stageRuns.WithLabelValues(norm(stage), norm(state)).Inc()
	if state != "loaded" {
		stageDuration.WithLabelValues(norm(stage)).Observe(seconds)
	}
}

func IncCheckpointWrite(backend, result string) {
	checkpointWrites.WithLabelValues(norm(backend), norm(result)).Inc()
}
