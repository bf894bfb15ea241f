package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Session metrics
	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "interview_gateway_active_sessions",
		Help: "Number of connected interview sessions",
	})

	totalSessions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "interview_gateway_sessions_total",
		Help: "Total number of interview sessions started",
	})

	sessionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "interview_gateway_session_duration_seconds",
		Help:    "Duration of interview sessions in seconds",
		Buckets: []float64{30, 60, 300, 600, 1200, 1800, 3600},
	})

	sessionOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "interview_gateway_session_outcomes_total",
		Help: "How sessions ended",
	}, []string{"outcome"}) // completed, finished, disconnected

	// Question flow metrics
	questionsLoaded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "interview_gateway_questions_loaded_total",
		Help: "Questions loaded from the question service",
	}, []string{"type", "difficulty"})

	answersSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "interview_gateway_answers_submitted_total",
		Help: "Answer submissions by trigger and result",
	}, []string{"trigger", "status"}) // trigger: user, timeout; status: success, error, rejected

	answerDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "interview_gateway_answer_duration_seconds",
		Help:    "Time candidates spent on an answer",
		Buckets: []float64{10, 30, 60, 90, 120, 180, 300},
	})

	scoringLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "interview_gateway_scoring_latency_seconds",
		Help:    "Time from submitting an answer to its scoring result",
		Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30},
	})

	questionsSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "interview_gateway_questions_skipped_total",
		Help: "Questions skipped without scoring",
	})

	// Question service metrics
	questionServiceRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "interview_gateway_question_service_requests_total",
		Help: "Total number of question service requests",
	}, []string{"operation", "status"})

	questionServiceLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "interview_gateway_question_service_latency_seconds",
		Help:    "Question service latency in seconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0},
	}, []string{"operation"})

	// Speech capture metrics
	captureRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "interview_gateway_capture_runs_total",
		Help: "Speech capture runs by outcome",
	}, []string{"outcome"}) // stopped, ended, error

	captureErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "interview_gateway_capture_errors_total",
		Help: "Speech capture errors by kind",
	}, []string{"kind"})

	// Error metrics
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "interview_gateway_errors_total",
		Help: "Total number of errors",
	}, []string{"type", "component"})

	// Circuit breaker metrics
	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "interview_gateway_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"service"})

	circuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "interview_gateway_circuit_breaker_failures_total",
		Help: "Total circuit breaker failures",
	}, []string{"service"})

	// Audio metrics
	audioBytesProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "interview_gateway_audio_bytes_total",
		Help: "Total microphone audio bytes received from browsers",
	})
)

// Metrics tracks metrics for a single interview session
type Metrics struct {
	sessionID string
	startTime time.Time

	mu          sync.Mutex
	ended       bool
	submitStart time.Time
}

// NewSessionMetrics creates a new metrics tracker for a session
func NewSessionMetrics(sessionID string) *Metrics {
	return &Metrics{
		sessionID: sessionID,
		startTime: time.Now(),
	}
}

// RecordSessionStart records the start of a session
func (m *Metrics) RecordSessionStart() {
	activeSessions.Inc()
	totalSessions.Inc()
}

// RecordSessionEnd records the end of a session. Only the first call counts.
func (m *Metrics) RecordSessionEnd(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ended {
		return
	}
	m.ended = true

	activeSessions.Dec()
	sessionDuration.Observe(time.Since(m.startTime).Seconds())
	sessionOutcomes.WithLabelValues(outcome).Inc()
}

// RecordQuestionLoaded counts a question shown to the candidate
func (m *Metrics) RecordQuestionLoaded(questionType, difficulty string) {
	questionsLoaded.WithLabelValues(questionType, difficulty).Inc()
}

// RecordSubmitStart marks the moment an answer left for scoring
func (m *Metrics) RecordSubmitStart() {
	m.mu.Lock()
	m.submitStart = time.Now()
	m.mu.Unlock()
}

// RecordSubmitEnd records the outcome of an answer submission
func (m *Metrics) RecordSubmitEnd(trigger, status string, answerSeconds int) {
	m.mu.Lock()
	start := m.submitStart
	m.submitStart = time.Time{}
	m.mu.Unlock()

	// rejected submissions never reach the service
	if !start.IsZero() {
		scoringLatency.Observe(time.Since(start).Seconds())
	}

	answersSubmitted.WithLabelValues(trigger, status).Inc()
	if status == "success" {
		answerDuration.Observe(float64(answerSeconds))
	}
}

// RecordSkip counts a skipped question
func (m *Metrics) RecordSkip() {
	questionsSkipped.Inc()
}

// RecordCaptureEnd records how a speech capture run ended
func (m *Metrics) RecordCaptureEnd(outcome string) {
	captureRuns.WithLabelValues(outcome).Inc()
}

// RecordCaptureError records a capture error by kind
func (m *Metrics) RecordCaptureError(kind string) {
	captureErrors.WithLabelValues(kind).Inc()
}

// RecordError records an error
func (m *Metrics) RecordError(errorType, component string) {
	errorsTotal.WithLabelValues(errorType, component).Inc()
}

// RecordAudioBytes records microphone audio received
func (m *Metrics) RecordAudioBytes(bytes int64) {
	audioBytesProcessed.Add(float64(bytes))
}

// ObserveQuestionService records one question service call
func ObserveQuestionService(operation string, start time.Time, err error) {
	questionServiceLatency.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	status := "success"
	if err != nil {
		status = "error"
	}
	questionServiceRequests.WithLabelValues(operation, status).Inc()
}

// UpdateCircuitBreakerState updates circuit breaker state metric
func UpdateCircuitBreakerState(service string, state int) {
	circuitBreakerState.WithLabelValues(service).Set(float64(state))
}

// IncrementCircuitBreakerFailures increments circuit breaker failure counter
func IncrementCircuitBreakerFailures(service string) {
	circuitBreakerFailures.WithLabelValues(service).Inc()
}
