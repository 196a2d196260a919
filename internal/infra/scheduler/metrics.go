package scheduler

import (
	"feedpipe/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides Prometheus metrics for the harbor scheduler. It embeds
// the standard ConfigMetrics for configuration monitoring and adds job
// execution metrics labelled by job name (check_feed, clean_feed_creation).
//
// Embedded metrics (from ConfigMetrics):
//   - scheduler_config_load_timestamp
//   - scheduler_config_validation_errors_total
//   - scheduler_config_fallbacks_total
//   - scheduler_config_fallback_active
//
// Scheduler metrics:
//   - scheduler_job_runs_total{job,status}
//   - scheduler_job_duration_seconds{job}
//   - scheduler_job_last_success_timestamp{job}
type Metrics struct {
	*config.ConfigMetrics

	// JobRunsTotal counts job runs by job name and status (success/failure).
	JobRunsTotal *prometheus.CounterVec

	// JobDurationSeconds measures job execution time. The jobs are a DB
	// query plus bus publishes, so the buckets top out well under a minute.
	JobDurationSeconds *prometheus.HistogramVec

	// JobLastSuccessTimestamp records when each job last completed
	// successfully. Alerting on staleness here catches a wedged scheduler.
	JobLastSuccessTimestamp *prometheus.GaugeVec
}

// NewMetrics creates the scheduler metrics, registered on the default
// registry via promauto.
func NewMetrics() *Metrics {
	return &Metrics{
		ConfigMetrics: config.NewConfigMetrics("scheduler"),

		JobRunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "scheduler_job_runs_total",
			Help: "Total number of scheduler job runs by job and status",
		}, []string{"job", "status"}),

		JobDurationSeconds: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "scheduler_job_duration_seconds",
			Help:    "Duration of scheduler job execution in seconds",
			Buckets: []float64{0.05, 0.25, 1, 5, 30, 120},
		}, []string{"job"}),

		JobLastSuccessTimestamp: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "scheduler_job_last_success_timestamp",
			Help: "Unix timestamp of the last successful run per job",
		}, []string{"job"}),
	}
}

// RecordJobRun increments the run counter for the given job and status.
// Status should be "success" or "failure".
func (m *Metrics) RecordJobRun(job, status string) {
	m.JobRunsTotal.WithLabelValues(job, status).Inc()
}

// RecordJobDuration observes one job execution duration in seconds.
func (m *Metrics) RecordJobDuration(job string, seconds float64) {
	m.JobDurationSeconds.WithLabelValues(job).Observe(seconds)
}

// RecordJobLastSuccess stamps the current time as the job's last success.
func (m *Metrics) RecordJobLastSuccess(job string) {
	m.JobLastSuccessTimestamp.WithLabelValues(job).SetToCurrentTime()
}
