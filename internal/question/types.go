// Package question talks to the remote question service that hands out
// interview questions and scores answers.
package question

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// DefaultAllocatedSeconds applies when a question carries no time allocation
const DefaultAllocatedSeconds = 120

// Type is the kind of interview question
type Type string

const (
	TypeTechnical   Type = "technical"
	TypeBehavioral  Type = "behavioral"
	TypeSituational Type = "situational"
	TypeOther       Type = "other"
)

// Difficulty of a question
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Question is immutable once fetched
type Question struct {
	ID               string
	Text             string
	Type             Type
	Difficulty       Difficulty
	Category         string
	AllocatedSeconds int
}

// Progress locates a question in the interview
type Progress struct {
	Index int // zero-based
	Total int // 0 when the service does not say
}

// NextResult is either a question or the end of the question list
type NextResult struct {
	Question  *Question
	Progress  Progress
	Completed bool
}

// AnswerSubmission is built fresh for every submit
type AnswerSubmission struct {
	QuestionID      string
	AnswerText      string
	TranscriptText  string
	DurationSeconds int
}

// Feedback is the scoring of one answer
type Feedback struct {
	GrammarScore     float64
	RelevanceScore   float64
	ConfidenceScore  float64
	StarScore        float64
	FillerWordCount  int
	FeedbackText     string
	SuggestedAnswer  string // optional
	FollowUpQuestion string // optional
	HasNextQuestion  bool
}

// Service is the remote question service as one interview session sees it
type Service interface {
	// NextQuestion advances the session to its next question
	NextQuestion(ctx context.Context) (*NextResult, error)

	// AnalyzeAnswer scores an answer to the current question
	AnalyzeAnswer(ctx context.Context, submission AnswerSubmission) (*Feedback, error)

	// ReportSpeechStatus is best-effort telemetry
	ReportSpeechStatus(ctx context.Context, active bool) error
}

// Connector holds the shared connection to the question service and
// hands out per-session clients.
type Connector interface {
	// Session returns a client bound to one interview session. Cookies from
	// the browser's upgrade request identify the session to the backend.
	Session(sessionID string, cookies []*http.Cookie) Service

	HealthCheck(ctx context.Context) (bool, error)

	Close() error
}

// ErrTransport is matched by every TransportError
var ErrTransport = errors.New("question service unavailable")

// TransportError is a recoverable failure talking to the question service
type TransportError struct {
	Op         string
	StatusCode int    // HTTP status, when there was a response
	Message    string // service-provided message, when there was one
	Err        error
}

func (e *TransportError) Error() string {
	msg := "question service " + e.Op
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(": HTTP %d", e.StatusCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}
