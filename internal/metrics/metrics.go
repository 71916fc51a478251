package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// InvokesTotal counts boundary invocations by command and outcome.
	// Labels: command, status (ok/error)
	InvokesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meetingcore_invokes_total",
			Help: "Total number of invoke calls by command and status",
		},
		[]string{"command", "status"},
	)

	// InvokeDuration observes invoke latency by command.
	InvokeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "meetingcore_invoke_duration_seconds",
			Help:    "Invoke call duration in seconds by command",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		},
		[]string{"command"},
	)

	// EventsTotal counts events delivered to the host callback.
	EventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meetingcore_events_total",
			Help: "Total number of events emitted by event name",
		},
		[]string{"event"},
	)

	// AudioChunksTotal counts PCM chunks accepted into the session pipeline.
	// Labels: status (forwarded/dropped)
	AudioChunksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meetingcore_audio_chunks_total",
			Help: "Total number of audio chunks by pipeline outcome",
		},
		[]string{"status"},
	)

	// SessionsActive is 1 while a live session is running.
	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "meetingcore_sessions_active",
			Help: "Number of live sessions currently running (0 or 1 per runtime)",
		},
	)

	// SessionDuration observes completed session length in seconds.
	SessionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "meetingcore_session_duration_seconds",
			Help:    "Completed live session duration in seconds",
			Buckets: []float64{30, 60, 300, 600, 1800, 3600, 7200},
		},
	)
)

// RecordInvoke records one boundary invocation outcome.
func RecordInvoke(command string, ok bool, durationSeconds float64) {
	status := "ok"
	if !ok {
		status = "error"
	}
	InvokesTotal.WithLabelValues(command, status).Inc()
	InvokeDuration.WithLabelValues(command).Observe(durationSeconds)
}

// RecordEventEmitted records one event delivery.
func RecordEventEmitted(event string) {
	EventsTotal.WithLabelValues(event).Inc()
}

// RecordAudioChunk records a chunk entering (or falling out of) the pipeline.
func RecordAudioChunk(forwarded bool) {
	status := "forwarded"
	if !forwarded {
		status = "dropped"
	}
	AudioChunksTotal.WithLabelValues(status).Inc()
}
