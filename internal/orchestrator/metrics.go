package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the workflow loop.
//
// Metrics:
//   - devflow_iterations_total{outcome} - iterations by outcome
//   - devflow_iteration_duration_seconds{outcome} - iteration wall time
//   - devflow_state_transitions_total{state} - states entered
//   - devflow_tasks_completed_total - tasks committed and marked done
//   - devflow_expansions_total - tasks expanded into subtasks
//   - devflow_test_retries_total{result} - fix attempts after failing tests
//   - devflow_status_update_failures_total - set-status calls that failed
//   - devflow_complexity_analysis_failures_total - analyze-complexity calls that failed
type Metrics struct {
	IterationsTotal      *prometheus.CounterVec
	IterationDuration    *prometheus.HistogramVec
	TransitionsTotal     *prometheus.CounterVec
	TasksCompletedTotal  prometheus.Counter
	ExpansionsTotal      prometheus.Counter
	TestRetriesTotal     *prometheus.CounterVec
	StatusUpdateFailures prometheus.Counter
	ComplexityFailures   prometheus.Counter
}

// NewMetrics creates the workflow metrics and registers them with reg.
// A nil reg creates unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		IterationsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "devflow_iterations_total",
				Help: "Total workflow iterations by outcome",
			},
			[]string{"outcome"},
		),
		IterationDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "devflow_iteration_duration_seconds",
				Help:    "Wall time of one workflow iteration in seconds",
				Buckets: prometheus.ExponentialBuckets(1, 2, 13), // 1s to ~68m
			},
			[]string{"outcome"},
		),
		TransitionsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "devflow_state_transitions_total",
				Help: "Total state machine transitions by state entered",
			},
			[]string{"state"},
		),
		TasksCompletedTotal: f.NewCounter(
			prometheus.CounterOpts{
				Name: "devflow_tasks_completed_total",
				Help: "Total tasks verified, committed and marked done",
			},
		),
		ExpansionsTotal: f.NewCounter(
			prometheus.CounterOpts{
				Name: "devflow_expansions_total",
				Help: "Total tasks expanded into subtasks",
			},
		),
		TestRetriesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "devflow_test_retries_total",
				Help: "Total fix attempts after failing tests by result",
			},
			[]string{"result"}, // "passed" or "failed"
		),
		StatusUpdateFailures: f.NewCounter(
			prometheus.CounterOpts{
				Name: "devflow_status_update_failures_total",
				Help: "Total set-status calls that failed after a successful commit",
			},
		),
		ComplexityFailures: f.NewCounter(
			prometheus.CounterOpts{
				Name: "devflow_complexity_analysis_failures_total",
				Help: "Total analyze-complexity calls that failed",
			},
		),
	}
}

func (m *Metrics) recordTransition(s State) {
	m.TransitionsTotal.WithLabelValues(string(s)).Inc()
}

func (m *Metrics) recordIteration(res Result) {
	m.IterationsTotal.WithLabelValues(string(res.Outcome)).Inc()
	m.IterationDuration.WithLabelValues(string(res.Outcome)).Observe(res.Duration.Seconds())
}

func (m *Metrics) recordRetry(passed bool) {
	result := "failed"
	if passed {
		result = "passed"
	}
	m.TestRetriesTotal.WithLabelValues(result).Inc()
}
