package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes engine behavior to Prometheus, namespaced "sunmao_":
//
//   - jobs (gauge, by status): current store sizes.
//   - threads_in_use / processes_in_use (gauges): consumed worker slots.
//   - job_duration_seconds (histogram, by job_type and status): running
//     time until the terminal transition.
//   - jobs_submitted_total (counter).
//
// Create with a caller-owned registry and expose it however the
// application scrapes:
//
//	registry := prometheus.NewRegistry()
//	metrics := engine.NewMetrics(registry)
//	eng := engine.New(engine.DefaultSettings(), engine.WithMetrics(metrics))
//
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	jobs           *prometheus.GaugeVec
	threadsInUse   prometheus.Gauge
	processesInUse prometheus.Gauge
	duration       *prometheus.HistogramVec
	submitted      prometheus.Counter
}

// NewMetrics creates and registers the engine metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		jobs: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "sunmao",
			Name:      "jobs",
			Help:      "Jobs currently held in each status store.",
		}, []string{"status"}),
		threadsInUse: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "sunmao",
			Name:      "threads_in_use",
			Help:      "Thread worker slots currently consumed.",
		}),
		processesInUse: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "sunmao",
			Name:      "processes_in_use",
			Help:      "Process worker slots currently consumed.",
		}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "sunmao",
			Name:      "job_duration_seconds",
			Help:      "Job running time until the terminal transition.",
			Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 5, 10, 60},
		}, []string{"job_type", "status"}),
		submitted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "sunmao",
			Name:      "jobs_submitted_total",
			Help:      "Jobs ever submitted to the engine.",
		}),
	}
}

func (m *Metrics) incSubmitted() {
	if m == nil {
		return
	}
	m.submitted.Inc()
	m.jobs.WithLabelValues(string(StatusPending)).Inc()
}

func (m *Metrics) observeTransition(from, to Status) {
	if m == nil {
		return
	}
	m.jobs.WithLabelValues(string(from)).Dec()
	m.jobs.WithLabelValues(string(to)).Inc()
}

func (m *Metrics) observeDuration(kind JobType, status Status, d time.Duration) {
	if m == nil {
		return
	}
	m.duration.WithLabelValues(string(kind), string(status)).Observe(d.Seconds())
}

func (m *Metrics) setInUse(threads, processes int) {
	if m == nil {
		return
	}
	m.threadsInUse.Set(float64(threads))
	m.processesInUse.Set(float64(processes))
}
