package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/tbourn/go-leadbot-backend/internal/services"
)

// Job label values.
const (
	JobWarmup   = "warmup"
	JobFollowUp = "followup"
	JobMailing  = "mailing"
)

// Metrics are the scheduler collectors. Labels:
//
//   - job:     warmup | followup | mailing
//   - result:  ok | error (runs)
//   - outcome: sent | failed | skipped (deliveries)
type Metrics struct {
	Runs       *prometheus.CounterVec
	Deliveries *prometheus.CounterVec
	Duration   *prometheus.HistogramVec
}

// NewMetrics builds the collectors and registers them on reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "leadbot_scheduler_runs_total",
			Help: "Scheduler job runs by job and result.",
		}, []string{"job", "result"}),
		Deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "leadbot_deliveries_total",
			Help: "Message deliveries by job and outcome.",
		}, []string{"job", "outcome"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "leadbot_scheduler_run_duration_seconds",
			Help:    "Duration of scheduler job runs in seconds.",
			Buckets: []float64{.01, .05, .1, .5, 1, 5, 15, 60, 300},
		}, []string{"job"}),
	}
	if reg != nil {
		reg.MustRegister(m.Runs, m.Deliveries, m.Duration)
	}
	return m
}

func (m *Metrics) observe(job string, seconds float64, rep services.DeliveryReport, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.Runs.WithLabelValues(job, result).Inc()
	m.Duration.WithLabelValues(job).Observe(seconds)
	m.Deliveries.WithLabelValues(job, "sent").Add(float64(rep.Sent))
	m.Deliveries.WithLabelValues(job, "failed").Add(float64(rep.Failed))
	m.Deliveries.WithLabelValues(job, "skipped").Add(float64(rep.Skipped))
}
