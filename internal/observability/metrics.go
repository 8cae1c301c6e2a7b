package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Voice session metrics
	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "loansight_voice_active_sessions",
		Help: "Number of open voice sessions",
	})

	totalSessions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "loansight_voice_sessions_total",
		Help: "Total number of voice sessions started",
	})

	sessionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "loansight_voice_session_duration_seconds",
		Help:    "Duration of voice sessions in seconds",
		Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1800},
	})

	phaseTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "loansight_voice_phase_transitions_total",
		Help: "Voice session phase transitions",
	}, []string{"phase"})

	captureFrames = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "loansight_voice_capture_frames_total",
		Help: "Captured microphone frames by outcome",
	}, []string{"outcome"}) // outcome: "sent", "muted", "dropped"

	audioBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "loansight_voice_audio_bytes_total",
		Help: "Total audio bytes moved",
	}, []string{"direction"}) // direction: "in" or "out"

	turnsCommitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "loansight_transcript_messages_total",
		Help: "Transcript messages committed",
	}, []string{"role", "mode"})

	// Inference metrics
	inferenceRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "loansight_inference_requests_total",
		Help: "Total number of text inference requests",
	}, []string{"kind", "status"})

	inferenceLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "loansight_inference_latency_seconds",
		Help:    "Text inference latency in seconds",
		Buckets: []float64{0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0},
	}, []string{"kind"})

	// Ingestion metrics
	ingestionRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "loansight_ingestion_requests_total",
		Help: "Total number of document ingestion requests",
	}, []string{"status"})

	ingestionLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "loansight_ingestion_latency_seconds",
		Help:    "Document ingestion latency in seconds",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
	})

	// Read-aloud metrics
	synthesisRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "loansight_tts_requests_total",
		Help: "Total number of speech synthesis requests",
	}, []string{"status"})

	synthesisCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "loansight_tts_cache_hits_total",
		Help: "Read-aloud requests served from the audio cache",
	})

	// Error metrics
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "loansight_errors_total",
		Help: "Total number of errors",
	}, []string{"type", "component"})

	// Circuit breaker metrics
	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "loansight_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"service"})

	// UI stream
	streamClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "loansight_stream_clients",
		Help: "Connected websocket clients",
	})
)

// SessionMetrics tracks metrics for a single voice session
type SessionMetrics struct {
	sessionID string
	startTime time.Time
	open      bool
	mu        sync.Mutex
}

// NewSessionMetrics creates a new metrics tracker for a session
func NewSessionMetrics(sessionID string) *SessionMetrics {
	return &SessionMetrics{
		sessionID: sessionID,
		startTime: time.Now(),
	}
}

// RecordOpen records that the session reached the open phase
func (m *SessionMetrics) RecordOpen() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.open {
		return
	}
	m.open = true
	m.startTime = time.Now()
	activeSessions.Inc()
	totalSessions.Inc()
}

// RecordClose records the end of an open session; calls after the first are ignored
func (m *SessionMetrics) RecordClose() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.open {
		return
	}
	m.open = false
	activeSessions.Dec()
	sessionDuration.Observe(time.Since(m.startTime).Seconds())
}

// RecordFrame records one captured frame outcome
func (m *SessionMetrics) RecordFrame(outcome string) {
	captureFrames.WithLabelValues(outcome).Inc()
}

// RecordAudioBytes records audio bytes moved in a direction
func (m *SessionMetrics) RecordAudioBytes(direction string, bytes int) {
	audioBytes.WithLabelValues(direction).Add(float64(bytes))
}

// RecordError records a session error
func (m *SessionMetrics) RecordError(errorType string) {
	errorsTotal.WithLabelValues(errorType, "voice").Inc()
}

// RecordPhase records a session phase transition
func RecordPhase(phase string) {
	phaseTransitions.WithLabelValues(phase).Inc()
}

// RecordMessage records a committed transcript message
func RecordMessage(role, mode string) {
	turnsCommitted.WithLabelValues(role, mode).Inc()
}

// RecordInference records one text inference request
func RecordInference(kind string, started time.Time, err error) {
	inferenceLatency.WithLabelValues(kind).Observe(time.Since(started).Seconds())
	inferenceRequests.WithLabelValues(kind, status(err)).Inc()
}

// RecordIngestion records one ingestion request
func RecordIngestion(started time.Time, err error) {
	ingestionLatency.Observe(time.Since(started).Seconds())
	ingestionRequests.WithLabelValues(status(err)).Inc()
}

// RecordSynthesis records one speech synthesis request
func RecordSynthesis(err error) {
	synthesisRequests.WithLabelValues(status(err)).Inc()
}

// RecordSynthesisCacheHit records a read-aloud served from cache
func RecordSynthesisCacheHit() {
	synthesisCacheHits.Inc()
}

// RecordError records an error outside a voice session
func RecordError(errorType, component string) {
	errorsTotal.WithLabelValues(errorType, component).Inc()
}

// UpdateCircuitBreakerState updates circuit breaker state metric
func UpdateCircuitBreakerState(service string, state int) {
	circuitBreakerState.WithLabelValues(service).Set(float64(state))
}

// StreamClientConnected adjusts the websocket client gauge
func StreamClientConnected(connected bool) {
	if connected {
		streamClients.Inc()
	} else {
		streamClients.Dec()
	}
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
