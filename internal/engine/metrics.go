package engine

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/seantiz/runbook/internal/model"
)

// Metric label values for execution outcomes.
const (
	outcomeTimeout  = "timeout"
	outcomeRejected = "rejected"
)

var (
	executionsRunning = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "runbook_executions_running",
			Help: "Number of currently running script executions.",
		},
	)

	executionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "runbook_executions_total",
			Help: "Total number of script executions by outcome.",
		},
		[]string{"outcome"},
	)

	executionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "runbook_execution_duration_seconds",
			Help:    "Script execution wall-clock duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(executionsRunning)
	prometheus.MustRegister(executionsTotal)
	prometheus.MustRegister(executionDuration)

	// Pre-initialize label combinations so they appear in /metrics at zero.
	for _, outcome := range []string{model.StateCompleted, model.StateFailed, outcomeTimeout, outcomeRejected} {
		executionsTotal.WithLabelValues(outcome)
	}
}
