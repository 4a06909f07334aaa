package server

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the solve instrumentation exported at /metrics.
type Metrics struct {
	SolvesTotal   *prometheus.CounterVec
	SolveDuration *prometheus.HistogramVec
	StallsTotal   prometheus.Counter
	RunningJobs   prometheus.Gauge
}

// NewMetrics creates and registers the solve metrics on the given
// registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SolvesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "optlab_solves_total",
			Help: "Solve jobs by problem and terminal status.",
		}, []string{"problem", "status"}),
		SolveDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "optlab_solve_duration_seconds",
			Help:    "Wall-clock duration of solve jobs.",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
		}, []string{"problem"}),
		StallsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "optlab_stall_terminations_total",
			Help: "Solves cut short because the optimality gap stopped improving.",
		}),
		RunningJobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "optlab_running_jobs",
			Help: "Solve jobs currently running.",
		}),
	}
	reg.MustRegister(m.SolvesTotal, m.SolveDuration, m.StallsTotal, m.RunningJobs)
	return m
}
