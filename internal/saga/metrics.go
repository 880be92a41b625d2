package saga

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the prometheus instruments for saga execution.
type Metrics struct {
	executionsTotal    *prometheus.CounterVec
	stepRetriesTotal   *prometheus.CounterVec
	compensationsTotal *prometheus.CounterVec
	duration           *prometheus.HistogramVec
}

// NewMetrics creates and registers the saga metrics on the given registerer.
// Tests pass a throwaway registry; the app passes prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		executionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "saga_executions_total",
				Help: "Total number of workflow executions by final status",
			},
			[]string{"workflow_type", "status"},
		),
		stepRetriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "saga_step_retries_total",
				Help: "Total number of step action retries",
			},
			[]string{"workflow_type", "step"},
		),
		compensationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "saga_compensations_total",
				Help: "Total number of compensation passes by outcome",
			},
			[]string{"workflow_type", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "saga_workflow_duration_seconds",
				Help:    "Wall-clock duration of workflow executions",
				Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
			[]string{"workflow_type", "status"},
		),
	}

	reg.MustRegister(m.executionsTotal, m.stepRetriesTotal, m.compensationsTotal, m.duration)
	return m
}

// ObserveExecution records a finished workflow execution.
func (m *Metrics) ObserveExecution(workflowType, status string, d time.Duration) {
	m.executionsTotal.WithLabelValues(workflowType, status).Inc()
	m.duration.WithLabelValues(workflowType, status).Observe(d.Seconds())
}

// ObserveStepRetry records one retry of a step action.
func (m *Metrics) ObserveStepRetry(workflowType, step string) {
	m.stepRetriesTotal.WithLabelValues(workflowType, step).Inc()
}

// ObserveCompensation records a finished compensation pass.
func (m *Metrics) ObserveCompensation(workflowType, outcome string) {
	m.compensationsTotal.WithLabelValues(workflowType, outcome).Inc()
}
