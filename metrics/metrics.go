// Package metrics holds the prometheus collectors for the coordination layer.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	framesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hyped_can_frames_received_total",
		Help: "Frames decoded from the bus by message kind",
	}, []string{"kind"})

	framesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hyped_can_frames_dropped_total",
		Help: "Inbound frames dropped by reason",
	}, []string{"reason"})

	framesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hyped_can_frames_sent_total",
		Help: "Frames handed to the transmitter by queue lane",
	}, []string{"lane"})

	queueDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hyped_can_queue_dropped_total",
		Help: "Outbound frames dropped by lane and reason",
	}, []string{"lane", "reason"})

	stateTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hyped_state_transitions_total",
		Help: "State transitions by target state and outcome",
	}, []string{"to", "outcome"})

	currentState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hyped_state_current",
		Help: "Code of the state this board currently believes the pod is in",
	})

	escalations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hyped_emergency_escalations_total",
		Help: "Emergency escalations by reason",
	}, []string{"reason"})

	heartbeatTimeouts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hyped_heartbeat_timeouts_total",
		Help: "Missed heartbeat windows by supervised peer",
	}, []string{"peer"})

	boundsViolations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hyped_measurement_limit_violations_total",
		Help: "Readings outside their configured limits by measurement and severity",
	}, []string{"measurement", "severity"})
)

func IncFrameReceived(kind string) {
	framesReceived.WithLabelValues(kind).Inc()
}

// IncFrameDropped records an inbound frame that never reached a consumer.
func IncFrameDropped(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	framesDropped.WithLabelValues(reason).Inc()
}

func IncFrameSent(lane string) {
	framesSent.WithLabelValues(lane).Inc()
}

func IncQueueDrop(lane, reason string) {
	queueDropped.WithLabelValues(lane, reason).Inc()
}

// RecordTransition counts an accepted or rejected transition and tracks the
// current state code on acceptance.
func RecordTransition(to string, code uint8, accepted bool) {
	outcome := "rejected"
	if accepted {
		outcome = "accepted"
		currentState.Set(float64(code))
	}
	stateTransitions.WithLabelValues(to, outcome).Inc()
}

func IncEscalation(reason string) {
	escalations.WithLabelValues(reason).Inc()
}

func IncHeartbeatTimeout(peer string) {
	heartbeatTimeouts.WithLabelValues(peer).Inc()
}

func IncLimitViolation(measurement, severity string) {
	boundsViolations.WithLabelValues(measurement, severity).Inc()
}
