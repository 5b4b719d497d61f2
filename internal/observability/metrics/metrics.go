// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "emergency_dispatch"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Session metrics
	SessionsTotal    prometheus.Counter
	SessionsActive   prometheus.Gauge
	SessionsRejected prometheus.Counter
	SessionsFailed   prometheus.Counter
	SessionDuration  prometheus.Histogram

	// Audio metrics
	AudioSamplesCaptured prometheus.Counter
	AudioFramesCaptured  prometheus.Counter
	AudioFramesDropped   prometheus.Counter

	// Segment metrics
	SegmentsEmitted  prometheus.Counter
	SegmentsRejected *prometheus.CounterVec
	SegmentDuration  prometheus.Histogram

	// Transcription metrics
	TranscriptionLatency *prometheus.HistogramVec
	TranscriptionErrors  *prometheus.CounterVec
	UtterancesTotal      prometheus.Counter

	// Dialogue metrics
	TurnsTotal      prometheus.Counter
	TurnLatency     prometheus.Histogram
	FallbackReplies *prometheus.CounterVec

	// Speech output metrics
	SpeechErrors *prometheus.CounterVec

	// Dashboard publish metrics
	PublishTotal   *prometheus.CounterVec
	PublishErrors  *prometheus.CounterVec
	PublishLatency *prometheus.HistogramVec

	// Cleanup metrics
	CleanupErrors prometheus.Counter

	// Serving metrics
	GRPCRequests     *prometheus.CounterVec
	GRPCLatency      *prometheus.HistogramVec
	HTTPRequests     *prometheus.CounterVec
	HTTPLatency      *prometheus.HistogramVec
	DashboardsActive prometheus.Gauge
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics(prometheus.DefaultRegisterer)

// NewMetrics creates all Prometheus metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		// Session metrics
		SessionsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Total number of call sessions started",
		}),
		SessionsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of currently active call sessions",
		}),
		SessionsRejected: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_rejected_total",
			Help:      "Total number of session starts rejected because a session was already active",
		}),
		SessionsFailed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_failed_total",
			Help:      "Total number of sessions ended by a capture failure",
		}),
		SessionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Duration of call sessions in seconds",
			Buckets:   []float64{5, 15, 30, 60, 120, 300, 600, 1800},
		}),

		// Audio metrics
		AudioSamplesCaptured: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_samples_captured_total",
			Help:      "Total audio samples captured",
		}),
		AudioFramesCaptured: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_frames_captured_total",
			Help:      "Total audio frames delivered to the segmenter",
		}),
		AudioFramesDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_frames_dropped_total",
			Help:      "Total audio frames dropped because the frame queue was full",
		}),

		// Segment metrics
		SegmentsEmitted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segments_emitted_total",
			Help:      "Total number of speech segments finalized by the segmenter",
		}),
		SegmentsRejected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segments_rejected_total",
			Help:      "Total number of segments not turned into an utterance",
		}, []string{"reason"}),
		SegmentDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "segment_duration_seconds",
			Help:      "Duration of finalized speech segments in seconds",
			Buckets:   []float64{0.05, 0.25, 0.5, 1, 2, 3, 5, 10, 30, 60},
		}),

		// Transcription metrics
		TranscriptionLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transcription_latency_seconds",
			Help:      "Speech-to-text request latency in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
		}, []string{"provider"}),
		TranscriptionErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcription_errors_total",
			Help:      "Total number of transcription failures",
		}, []string{"provider"}),
		UtterancesTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "utterances_total",
			Help:      "Total number of non-empty caller utterances",
		}),

		// Dialogue metrics
		TurnsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dialogue_turns_total",
			Help:      "Total number of dialogue turns taken",
		}),
		TurnLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dialogue_turn_latency_seconds",
			Help:      "Time from caller utterance to dispatcher reply",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30},
		}),
		FallbackReplies: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dialogue_fallback_replies_total",
			Help:      "Total number of turns answered with the fallback reply",
		}, []string{"cause"}),

		// Speech output metrics
		SpeechErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "speech_output_errors_total",
			Help:      "Total number of text-to-speech failures",
		}, []string{"provider"}),

		// Dashboard publish metrics
		PublishTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dashboard_publish_total",
			Help:      "Total number of transcript updates published",
		}, []string{"sink", "role"}),
		PublishErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dashboard_publish_errors_total",
			Help:      "Total number of transcript update publish errors",
		}, []string{"sink", "role"}),
		PublishLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dashboard_publish_latency_seconds",
			Help:      "Transcript update publish latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"sink"}),

		CleanupErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cleanup_errors_total",
			Help:      "Total number of ephemeral storage cleanup errors",
		}),

		// Serving metrics
		GRPCRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "grpc_requests_total",
			Help:      "Total number of gRPC calls",
		}, []string{"method", "code"}),
		GRPCLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "grpc_request_duration_seconds",
			Help:      "gRPC call duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"route", "status"}),
		HTTPLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		DashboardsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dashboards_connected",
			Help:      "Number of connected dashboard websockets",
		}),
	}
}

// RecordSessionStart records a new session starting.
func (m *Metrics) RecordSessionStart() {
	m.SessionsTotal.Inc()
	m.SessionsActive.Inc()
}

// RecordSessionEnd records a session ending.
func (m *Metrics) RecordSessionEnd(failed bool, durationSeconds float64) {
	m.SessionsActive.Dec()
	m.SessionDuration.Observe(durationSeconds)
	if failed {
		m.SessionsFailed.Inc()
	}
}

// RecordSessionRejected records a start rejected by the registry.
func (m *Metrics) RecordSessionRejected() {
	m.SessionsRejected.Inc()
}

// RecordFrameCaptured records one frame handed to the segmenter.
func (m *Metrics) RecordFrameCaptured(samples int) {
	m.AudioSamplesCaptured.Add(float64(samples))
	m.AudioFramesCaptured.Inc()
}

// RecordFrameDropped records a frame dropped on a full queue.
func (m *Metrics) RecordFrameDropped() {
	m.AudioFramesDropped.Inc()
}

// RecordSegmentEmitted records a finalized segment.
func (m *Metrics) RecordSegmentEmitted(durationSeconds float64) {
	m.SegmentsEmitted.Inc()
	m.SegmentDuration.Observe(durationSeconds)
}

// RecordSegmentRejected records a segment that produced no utterance.
func (m *Metrics) RecordSegmentRejected(reason string) {
	m.SegmentsRejected.WithLabelValues(reason).Inc()
}

// RecordTranscription records a transcription attempt.
func (m *Metrics) RecordTranscription(provider string, err error, latencySeconds float64) {
	m.TranscriptionLatency.WithLabelValues(provider).Observe(latencySeconds)
	if err != nil {
		m.TranscriptionErrors.WithLabelValues(provider).Inc()
	}
}

// RecordUtterance records a non-empty caller utterance.
func (m *Metrics) RecordUtterance() {
	m.UtterancesTotal.Inc()
}

// RecordTurn records a completed dialogue turn. cause is empty for a real
// reply and names the failure for a fallback reply.
func (m *Metrics) RecordTurn(latencySeconds float64, fallback bool, cause string) {
	m.TurnsTotal.Inc()
	m.TurnLatency.Observe(latencySeconds)
	if fallback {
		m.FallbackReplies.WithLabelValues(cause).Inc()
	}
}

// RecordSpeechError records a text-to-speech failure.
func (m *Metrics) RecordSpeechError(provider string) {
	m.SpeechErrors.WithLabelValues(provider).Inc()
}

// RecordPublish records a dashboard publish attempt.
func (m *Metrics) RecordPublish(sink, role string, err error, latencySeconds float64) {
	m.PublishTotal.WithLabelValues(sink, role).Inc()
	m.PublishLatency.WithLabelValues(sink).Observe(latencySeconds)
	if err != nil {
		m.PublishErrors.WithLabelValues(sink, role).Inc()
	}
}

// RecordCleanupError records a failed ephemeral storage removal.
func (m *Metrics) RecordCleanupError() {
	m.CleanupErrors.Inc()
}

// RecordGRPCCall records a finished gRPC call.
func (m *Metrics) RecordGRPCCall(method, code string, durationSeconds float64) {
	m.GRPCRequests.WithLabelValues(method, code).Inc()
	m.GRPCLatency.WithLabelValues(method).Observe(durationSeconds)
}

// RecordHTTPRequest records a served HTTP request.
func (m *Metrics) RecordHTTPRequest(route string, status int, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.HTTPLatency.WithLabelValues(route).Observe(durationSeconds)
}

// RecordDashboards sets the number of connected dashboards.
func (m *Metrics) RecordDashboards(n int) {
	m.DashboardsActive.Set(float64(n))
}
