// Package metrics provides Prometheus instrumentation for live sessions.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "geminilive"

var (
	// messagesTotal counts protocol envelopes by direction and type.
	messagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Total number of protocol envelopes by direction and type",
		},
		[]string{"direction", "type"}, // direction: sent, received
	)

	// audioBytesTotal counts PCM bytes crossing the wire.
	audioBytesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_bytes_total",
			Help:      "Total PCM bytes sent and received",
		},
		[]string{"direction"},
	)

	// framesSentTotal counts video frames sent to the model.
	framesSentTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_sent_total",
			Help:      "Total number of video frames sent",
		},
	)

	// malformedEnvelopesTotal counts inbound frames that failed to decode.
	malformedEnvelopesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "malformed_envelopes_total",
			Help:      "Total number of inbound frames dropped as malformed",
		},
	)

	// interruptionsTotal counts model turn interruptions.
	interruptionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "interruptions_total",
			Help:      "Total number of model turn interruptions",
		},
	)

	// toolCallsTotal counts tool invocations requested by the model.
	toolCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Total number of tool calls serviced",
		},
		[]string{"tool"},
	)

	// sessionsActive gauges currently connected sessions.
	sessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of currently connected sessions",
		},
	)

	// connectDuration is a histogram of connect-to-ready duration.
	connectDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "connect_duration_seconds",
			Help:      "Duration from dial to setup acknowledgement in seconds",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		},
	)

	// queuedIntents gauges outbound intents waiting for setup acknowledgement.
	queuedIntents = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queued_intents",
			Help:      "Outbound intents queued until the session becomes active",
		},
	)

	// allMetrics is a list of all metrics for registration.
	allMetrics = []prometheus.Collector{
		messagesTotal,
		audioBytesTotal,
		framesSentTotal,
		malformedEnvelopesTotal,
		interruptionsTotal,
		toolCallsTotal,
		sessionsActive,
		connectDuration,
		queuedIntents,
	}
)

// RecordMessage records one protocol envelope.
func RecordMessage(direction, msgType string) {
	messagesTotal.WithLabelValues(direction, msgType).Inc()
}

// RecordAudioBytes records PCM bytes crossing the wire.
func RecordAudioBytes(direction string, n int) {
	if n > 0 {
		audioBytesTotal.WithLabelValues(direction).Add(float64(n))
	}
}

// RecordFrameSent records one video frame sent.
func RecordFrameSent() {
	framesSentTotal.Inc()
}

// RecordMalformedEnvelope records one dropped inbound frame.
func RecordMalformedEnvelope() {
	malformedEnvelopesTotal.Inc()
}

// RecordInterruption records one model turn interruption.
func RecordInterruption() {
	interruptionsTotal.Inc()
}

// RecordToolCall records one serviced tool call.
func RecordToolCall(tool string) {
	toolCallsTotal.WithLabelValues(tool).Inc()
}

// RecordSessionStart marks a session as connected.
func RecordSessionStart() {
	sessionsActive.Inc()
}

// RecordSessionEnd marks a session as disconnected.
func RecordSessionEnd() {
	sessionsActive.Dec()
}

// RecordConnectDuration records time from dial to setup acknowledgement.
func RecordConnectDuration(seconds float64) {
	connectDuration.Observe(seconds)
}

// SetQueuedIntents records the current pre-activation queue depth.
func SetQueuedIntents(n int) {
	queuedIntents.Set(float64(n))
}
