package health

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	stageOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_stage_outcomes_total",
			Help: "Total stage collaborator outcomes",
		},
		[]string{"stage", "outcome"},
	)

	stageRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_stage_retries_total",
			Help: "Total stage retry attempts",
		},
		[]string{"stage"},
	)

	breakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pipeline_breaker_state",
			Help: "Circuit breaker position per stage (0=closed, 1=half-open, 2=open)",
		},
		[]string{"stage"},
	)

	workflowsStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pipeline_workflows_started_total",
			Help: "Total workflows started",
		},
	)

	workflowsFinished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_workflows_finished_total",
			Help: "Total workflows reaching a terminal status",
		},
		[]string{"status"},
	)
)

// Metrics exports stage and workflow counters. A nil *Metrics disables
// export everywhere it is accepted.
type Metrics struct{}

// NewMetrics returns the process-wide metrics handle. Collectors register
// with the default prometheus registry at package init.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// StageOutcome counts one collaborator call outcome
func (m *Metrics) StageOutcome(stage, outcome string) {
	stageOutcomes.WithLabelValues(stage, outcome).Inc()
}

// StageRetry counts one retry attempt
func (m *Metrics) StageRetry(stage string) {
	stageRetries.WithLabelValues(stage).Inc()
}

// BreakerState records the breaker position for a stage
func (m *Metrics) BreakerState(stage string, state string) {
	var v float64
	switch state {
	case "HALF_OPEN":
		v = 1
	case "OPEN":
		v = 2
	}
	breakerState.WithLabelValues(stage).Set(v)
}

// WorkflowStarted counts one started workflow
func (m *Metrics) WorkflowStarted() {
	workflowsStarted.Inc()
}

// WorkflowFinished counts one workflow reaching a terminal status
func (m *Metrics) WorkflowFinished(status string) {
	workflowsFinished.WithLabelValues(status).Inc()
}
