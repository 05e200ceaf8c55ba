package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Job outcomes used as the "outcome" label.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeTimeout = "timeout"
	OutcomePanic   = "panic"
)

// JobMetrics records outcomes of the scheduled ledger jobs.
type JobMetrics struct {
	runs          *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	processed     *prometheus.CounterVec
	skippedCycles prometheus.Counter
}

// NewJobMetrics registers the job metrics. A nil registerer yields a recorder
// that drops every observation.
func NewJobMetrics(reg prometheus.Registerer) *JobMetrics {
	if reg == nil {
		return &JobMetrics{}
	}
	m := &JobMetrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cron_job_runs_total",
			Help: "Cron job executions by job and outcome.",
		}, []string{"job", "outcome"}),
		// Jobs touch at most a few hundred rows; anything past a minute is stuck.
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cron_job_duration_seconds",
			Help:    "Duration of cron jobs in seconds.",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 15, 30, 60, 240},
		}, []string{"job"}),
		processed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cron_job_items_processed_total",
			Help: "Rows handled by cron jobs, by job.",
		}, []string{"job"}),
		skippedCycles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cron_cycles_skipped_total",
			Help: "Cycles skipped because another worker held the lock.",
		}),
	}
	reg.MustRegister(m.runs, m.duration, m.processed, m.skippedCycles)
	return m
}

// ObserveRun records one execution of job.
func (m *JobMetrics) ObserveRun(job, outcome string, took time.Duration) {
	if m == nil || m.runs == nil {
		return
	}
	job = normalizeLabel(job)
	m.runs.WithLabelValues(job, normalizeLabel(outcome)).Inc()
	m.duration.WithLabelValues(job).Observe(took.Seconds())
}

// AddProcessed counts rows a job run touched.
func (m *JobMetrics) AddProcessed(job string, n int) {
	if m == nil || m.processed == nil || n <= 0 {
		return
	}
	m.processed.WithLabelValues(normalizeLabel(job)).Add(float64(n))
}

func (m *JobMetrics) IncSkippedCycle() {
	if m == nil || m.skippedCycles == nil {
		return
	}
	m.skippedCycles.Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
