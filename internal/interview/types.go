// Package interview runs one interview practice session: question
// sequencing, the per-question countdown, answer submission and feedback.
package interview

import (
	"errors"
	"fmt"
)

// State of a session
type State int

const (
	StateIdle State = iota
	StateLoading
	StateAwaitingAnswer
	StateSubmitting
	StateShowingFeedback
	StateCompleted
	StateFinished
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateAwaitingAnswer:
		return "awaiting_answer"
	case StateSubmitting:
		return "submitting"
	case StateShowingFeedback:
		return "showing_feedback"
	case StateCompleted:
		return "completed"
	case StateFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// Terminal reports whether the session is over
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFinished
}

// Stage is a program stage the browser navigates to
type Stage string

const (
	StageNext    Stage = "next_stage" // coding test
	StageSummary Stage = "summary"    // interview feedback
)

// Action is a user action that needs a yes/no confirmation
type Action string

const (
	ActionSkip   Action = "skip"
	ActionFinish Action = "finish"
)

// NotificationKind classifies a user-visible notification
type NotificationKind string

const (
	NotifyInfo       NotificationKind = "info"
	NotifyValidation NotificationKind = "validation"
	NotifyTransport  NotificationKind = "transport"
	NotifyDevice     NotificationKind = "device"
	NotifyCapture    NotificationKind = "capture"
)

// Notification is what every error becomes at the session boundary
type Notification struct {
	Kind      NotificationKind
	Message   string
	Retryable bool
}

// ErrEmptyAnswer is matched by a ValidationError for a blank submission
var ErrEmptyAnswer = errors.New("empty answer")

// ValidationError rejects a submission locally
type ValidationError struct {
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Countdown is the display model of the question timer
type Countdown struct {
	Remaining int
	Allocated int
	Display   string  // MM:SS
	Fraction  float64 // remaining / allocated
	ArcOffset float64 // stroke offset of the progress ring
	Running   bool
}

// ProgressCircumference is the circumference of the countdown ring
const ProgressCircumference = 326.56

// FormatClock renders whole seconds as zero-padded MM:SS
func FormatClock(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}

func newCountdown(remaining, allocated int, running bool) Countdown {
	fraction := 0.0
	if allocated > 0 {
		fraction = float64(remaining) / float64(allocated)
	}
	return Countdown{
		Remaining: remaining,
		Allocated: allocated,
		Display:   FormatClock(remaining),
		Fraction:  fraction,
		ArcOffset: ProgressCircumference - fraction*ProgressCircumference,
		Running:   running,
	}
}
