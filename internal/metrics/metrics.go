// Package metrics holds the Prometheus collectors for the outreach pipeline.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	defaultMetrics *Metrics
	defaultOnce    sync.Once
)

// Metrics groups every collector the pipeline updates.
//
//   - crm_job_runs_total{job,result}
//   - crm_job_duration_seconds{job}
//   - crm_triggers_created_total{kind}
//   - crm_drafts_created_total
//   - crm_messages_delivered_total{result}
type Metrics struct {
	JobRuns         *prometheus.CounterVec
	JobDuration     *prometheus.HistogramVec
	TriggersCreated *prometheus.CounterVec
	DraftsCreated   prometheus.Counter
	Delivered       *prometheus.CounterVec
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		JobRuns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "crm_job_runs_total",
			Help: "Scheduled and manual job executions by result",
		}, []string{"job", "result"}),
		JobDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "crm_job_duration_seconds",
			Help:    "Job execution time in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"job"}),
		TriggersCreated: f.NewCounterVec(prometheus.CounterOpts{
			Name: "crm_triggers_created_total",
			Help: "Triggers inserted by the event scanner, by scan kind",
		}, []string{"kind"}),
		DraftsCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "crm_drafts_created_total",
			Help: "Draft messages created from triggers",
		}),
		Delivered: f.NewCounterVec(prometheus.CounterOpts{
			Name: "crm_messages_delivered_total",
			Help: "Mailer delivery attempts by result",
		}, []string{"result"}),
	}
}

// Default returns the process-wide collectors on the default registry.
func Default() *Metrics {
	defaultOnce.Do(func() {
		defaultMetrics = New(prometheus.DefaultRegisterer)
	})
	return defaultMetrics
}

// ObserveJob records one job execution.
func (m *Metrics) ObserveJob(job string, d time.Duration, err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	m.JobRuns.WithLabelValues(job, result).Inc()
	m.JobDuration.WithLabelValues(job).Observe(d.Seconds())
}

// TriggerCreated counts a trigger inserted by a scan of the given kind.
func (m *Metrics) TriggerCreated(kind string) {
	if m == nil {
		return
	}
	m.TriggersCreated.WithLabelValues(kind).Inc()
}

// DraftCreated counts a draft produced by the trigger processor.
func (m *Metrics) DraftCreated() {
	if m == nil {
		return
	}
	m.DraftsCreated.Inc()
}

// MessageDelivered counts a delivery attempt.
func (m *Metrics) MessageDelivered(ok bool) {
	if m == nil {
		return
	}
	result := "sent"
	if !ok {
		result = "failed"
	}
	m.Delivered.WithLabelValues(result).Inc()
}
