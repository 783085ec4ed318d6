package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(poolAcquire, poolExcluded) }

var (
	poolAcquire = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keypool_acquire_total",
			Help: "Credential acquisitions by pool and result (ok/exhausted).",
		},
		[]string{"pool", "result"},
	)

	poolExcluded = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "keypool_excluded_credentials",
			Help: "Credentials excluded after repeated failures.",
		},
		[]string{"pool"},
	)
)

func IncPoolAcquire(pool, result string) {
	poolAcquire.WithLabelValues(norm(pool), norm(result)).Inc()
}

func SetPoolExcluded(pool string, n int) {
	poolExcluded.WithLabelValues(norm(pool)).Set(float64(n))
}
