package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SweepJobMetrics records metadata for background cart sweeps.
type SweepJobMetrics struct {
	duration *prometheus.HistogramVec
	success  *prometheus.CounterVec
	failure  *prometheus.CounterVec
	repaired *prometheus.CounterVec
	evicted  *prometheus.CounterVec
}

// NewSweepJobMetrics registers the sweep metrics on the provided registerer.
func NewSweepJobMetrics(reg prometheus.Registerer) *SweepJobMetrics {
	if reg == nil {
		return &SweepJobMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sweep_duration_seconds",
		Help:    "Duration of cart sweep jobs in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	success := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sweep_success",
		Help: "Successful sweep job executions.",
	}, []string{"job"})
	failure := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sweep_failure",
		Help: "Failed sweep job executions.",
	}, []string{"job"})
	repaired := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sweep_items_repaired",
		Help: "Line items rewritten in place by a sweep.",
	}, []string{"job"})
	evicted := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sweep_items_evicted",
		Help: "Line items removed from the cart by a sweep.",
	}, []string{"job"})
	reg.MustRegister(duration, success, failure, repaired, evicted)
	return &SweepJobMetrics{
		duration: duration,
		success:  success,
		failure:  failure,
		repaired: repaired,
		evicted:  evicted,
	}
}

// ObserveDuration records the duration for the named job.
func (s *SweepJobMetrics) ObserveDuration(job string, duration time.Duration) {
	if s == nil || s.duration == nil {
		return
	}
	s.duration.WithLabelValues(normalizeLabel(job)).Observe(duration.Seconds())
}

// IncSuccess increments the success counter for the named job.
func (s *SweepJobMetrics) IncSuccess(job string) {
	if s == nil || s.success == nil {
		return
	}
	s.success.WithLabelValues(normalizeLabel(job)).Inc()
}

// IncFailure increments the failure counter for the named job.
func (s *SweepJobMetrics) IncFailure(job string) {
	if s == nil || s.failure == nil {
		return
	}
	s.failure.WithLabelValues(normalizeLabel(job)).Inc()
}

// AddRepaired records items rewritten in place by the named job.
func (s *SweepJobMetrics) AddRepaired(job string, n int) {
	if s == nil || s.repaired == nil || n <= 0 {
		return
	}
	s.repaired.WithLabelValues(normalizeLabel(job)).Add(float64(n))
}

// AddEvicted records items removed by the named job.
func (s *SweepJobMetrics) AddEvicted(job string, n int) {
	if s == nil || s.evicted == nil || n <= 0 {
		return
	}
	s.evicted.WithLabelValues(normalizeLabel(job)).Add(float64(n))
}

func normalizeLabel(job string) string {
	if job == "" {
		return "unknown"
	}
	return job
}
