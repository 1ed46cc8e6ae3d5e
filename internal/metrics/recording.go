// Package metrics provides Prometheus metrics for auto-record decisions.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Labels stay low-cardinality: no stream names.
var (
	// DecisionsTotal counts engine decisions by application, mode, phase and action.
	DecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "autorecord_decisions_total",
		Help: "Total number of auto-record decisions, by application, mode, phase and action.",
	}, []string{"application", "mode", "phase", "action"})

	// RecorderOpsTotal counts calls into the recording subsystem by operation and result.
	RecorderOpsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "autorecord_recorder_ops_total",
		Help: "Total number of recorder start/stop requests, by operation and result.",
	}, []string{"op", "result"})

	// PolicyWarningsTotal counts configuration warnings raised while resolving policies.
	PolicyWarningsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "autorecord_policy_warnings_total",
		Help: "Total number of policy configuration warnings, by application.",
	}, []string{"application"})

	// Recorders tracks recorders currently held by the registry, by state.
	Recorders = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "autorecord_recorders",
		Help: "Current number of recorders, by state.",
	}, []string{"state"})

	// EventsDropped counts stream events that could not be routed.
	EventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "autorecord_events_dropped_total",
		Help: "Total number of stream events dropped, by reason.",
	}, []string{"reason"})
)

// RecordDecision increments the decision counter.
func RecordDecision(application, mode, phase, action string) {
	DecisionsTotal.WithLabelValues(application, mode, phase, action).Inc()
}

// RecordRecorderOp increments the recorder operation counter.
// op: "start_application", "start_stream" or "stop_stream"
func RecordRecorderOp(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	RecorderOpsTotal.WithLabelValues(op, result).Inc()
}

// RecordPolicyWarnings adds n warnings for the application.
func RecordPolicyWarnings(application string, n int) {
	if n <= 0 {
		return
	}
	PolicyWarningsTotal.WithLabelValues(application).Add(float64(n))
}

// SetRecorders sets the recorder gauge for a state.
func SetRecorders(state string, count int) {
	Recorders.WithLabelValues(state).Set(float64(count))
}

// RecordDroppedEvent increments the dropped event counter.
func RecordDroppedEvent(reason string) {
	EventsDropped.WithLabelValues(reason).Inc()
}
