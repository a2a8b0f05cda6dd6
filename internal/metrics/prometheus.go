package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics contains all Prometheus metrics for the audio AI service
type Metrics struct {
	registry *prometheus.Registry

	// Pipeline metrics
	RunsStarted     prometheus.Counter
	RunsFailed      *prometheus.CounterVec
	SourceDuration  prometheus.Histogram
	SegmentsTotal   *prometheus.CounterVec
	SegmentDuration prometheus.Histogram
	PayloadSize     prometheus.Histogram

	// Transcription metrics
	TranscriptionRequests  prometheus.Counter
	TranscriptionSuccesses prometheus.Counter
	TranscriptionFailures  prometheus.Counter
	TranscriptionDuration  prometheus.Histogram
	TranscriptionRetries   prometheus.Counter
	DeltasReceived         prometheus.Counter

	// Chat and speech metrics
	ChatRequests   *prometheus.CounterVec
	SpeechRequests *prometheus.CounterVec
	SpeechBytes    prometheus.Counter

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates all metrics on a private registry
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		RunsStarted: f.NewCounter(prometheus.CounterOpts{
			Name: "audioai_pipeline_runs_total",
			Help: "Total number of transcription pipeline runs started",
		}),
		RunsFailed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "audioai_pipeline_runs_failed_total",
			Help: "Total number of pipeline runs that produced no transcript",
		}, []string{"reason"}),
		SourceDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "audioai_source_duration_seconds",
			Help:    "Duration of loaded audio sources",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~1 hour
		}),
		SegmentsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "audioai_segments_total",
			Help: "Total number of audio segments processed by outcome",
		}, []string{"outcome"}),
		SegmentDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "audioai_segment_duration_seconds",
			Help:    "Duration of audio segments sent for transcription",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 8), // 0.5s to ~2 minutes
		}),
		PayloadSize: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "audioai_payload_size_bytes",
			Help:    "Size of encoded WAV payloads in bytes",
			Buckets: prometheus.ExponentialBuckets(1024, 2, 14), // 1KB to ~16MB
		}),

		TranscriptionRequests: f.NewCounter(prometheus.CounterOpts{
			Name: "audioai_transcription_requests_total",
			Help: "Total number of streaming transcription requests sent",
		}),
		TranscriptionSuccesses: f.NewCounter(prometheus.CounterOpts{
			Name: "audioai_transcription_successes_total",
			Help: "Total number of completed transcription streams",
		}),
		TranscriptionFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "audioai_transcription_failures_total",
			Help: "Total number of failed transcription streams",
		}),
		TranscriptionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "audioai_transcription_duration_seconds",
			Help:    "Duration of transcription streams",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~2 minutes
		}),
		TranscriptionRetries: f.NewCounter(prometheus.CounterOpts{
			Name: "audioai_transcription_retries_total",
			Help: "Total number of transcription request retries",
		}),
		DeltasReceived: f.NewCounter(prometheus.CounterOpts{
			Name: "audioai_transcription_deltas_total",
			Help: "Total number of text deltas received from transcription streams",
		}),

		ChatRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "audioai_chat_requests_total",
			Help: "Total number of chat completion requests by outcome",
		}, []string{"outcome"}),
		SpeechRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "audioai_speech_requests_total",
			Help: "Total number of speech synthesis requests by outcome",
		}, []string{"outcome"}),
		SpeechBytes: f.NewCounter(prometheus.CounterOpts{
			Name: "audioai_speech_bytes_total",
			Help: "Total number of synthesized audio bytes written",
		}),

		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "audioai_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "audioai_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "audioai_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// Registry returns the registry holding every metric
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// WriteTextfile writes the registry to path in the node_exporter textfile format
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}

// RecordRunStarted increments the runs counter
func (m *Metrics) RecordRunStarted() {
	m.RunsStarted.Inc()
}

// RecordRunFailed records a run that ended without a transcript
func (m *Metrics) RecordRunFailed(reason string) {
	m.RunsFailed.WithLabelValues(reason).Inc()
}

// RecordSource records the duration of a loaded source
func (m *Metrics) RecordSource(durationSeconds float64) {
	m.SourceDuration.Observe(durationSeconds)
}

// RecordPayload records an encoded segment
func (m *Metrics) RecordPayload(durationSeconds float64, sizeBytes int) {
	m.SegmentDuration.Observe(durationSeconds)
	m.PayloadSize.Observe(float64(sizeBytes))
}

// RecordSegment counts a finished segment by outcome ("succeeded" or "failed")
func (m *Metrics) RecordSegment(outcome string) {
	m.SegmentsTotal.WithLabelValues(outcome).Inc()
}

// RecordTranscriptionRequest increments transcription requests counter
func (m *Metrics) RecordTranscriptionRequest() {
	m.TranscriptionRequests.Inc()
}

// RecordTranscriptionSuccess records a successful transcription
func (m *Metrics) RecordTranscriptionSuccess(durationSeconds float64) {
	m.TranscriptionSuccesses.Inc()
	m.TranscriptionDuration.Observe(durationSeconds)
}

// RecordTranscriptionFailure records a failed transcription
func (m *Metrics) RecordTranscriptionFailure(durationSeconds float64) {
	m.TranscriptionFailures.Inc()
	m.TranscriptionDuration.Observe(durationSeconds)
}

// RecordTranscriptionRetry increments the retry counter
func (m *Metrics) RecordTranscriptionRetry() {
	m.TranscriptionRetries.Inc()
}

// RecordDelta increments the received deltas counter
func (m *Metrics) RecordDelta() {
	m.DeltasReceived.Inc()
}

// RecordChat counts a chat completion by outcome
func (m *Metrics) RecordChat(outcome string) {
	m.ChatRequests.WithLabelValues(outcome).Inc()
}

// RecordSpeech counts a speech request by outcome and the bytes it produced
func (m *Metrics) RecordSpeech(outcome string, bytes int64) {
	m.SpeechRequests.WithLabelValues(outcome).Inc()
	if bytes > 0 {
		m.SpeechBytes.Add(float64(bytes))
	}
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
