package interview

import (
	"github.com/lexiqai/interview-gateway/internal/device"
	"github.com/lexiqai/interview-gateway/internal/question"
	"github.com/lexiqai/interview-gateway/internal/stt"
	"github.com/lexiqai/interview-gateway/internal/transcript"
)

// Event is anything the session loop reacts to
type Event interface {
	event()
}

// User actions

// AnswerChanged carries the typed answer after every edit
type AnswerChanged struct{ Text string }

// Submit asks for the current answer to be scored
type Submit struct{}

// Skip asks to move on without scoring; it is confirmed first
type Skip struct{}

// Finish asks to end the interview; it is confirmed first
type Finish struct{}

// Next moves on from the feedback of an answer
type Next struct{}

// Confirm answers a RequestConfirmation
type Confirm struct {
	Action   Action
	Accepted bool
}

// StartSpeech begins speech capture
type StartSpeech struct{}

// StopSpeech ends speech capture
type StopSpeech struct{}

// ClearTranscript discards captured speech and keeps capturing
type ClearTranscript struct{}

// StartTimer resumes the countdown
type StartTimer struct{}

// StopTimer pauses the countdown
type StopTimer struct{}

// DeviceStatus reports the browser's microphone permission
type DeviceStatus struct{ Permission device.PermissionState }

func (AnswerChanged) event()   {}
func (Submit) event()          {}
func (Skip) event()            {}
func (Finish) event()          {}
func (Next) event()            {}
func (Confirm) event()         {}
func (StartSpeech) event()     {}
func (StopSpeech) event()      {}
func (ClearTranscript) event() {}
func (StartTimer) event()      {}
func (StopTimer) event()       {}
func (DeviceStatus) event()    {}

// Internal events

type questionLoaded struct {
	seq    uint64
	result *question.NextResult
	err    error
}

type submissionResult struct {
	seq      uint64
	trigger  string
	duration int
	feedback *question.Feedback
	err      error
}

type timerTick struct{}

type captureEvent struct{ ev stt.Event }

type captureStarted struct{ result transcript.StartResult }

type snapshotRequest struct{ reply chan Snapshot }

func (questionLoaded) event()   {}
func (submissionResult) event() {}
func (timerTick) event()        {}
func (captureEvent) event()     {}
func (captureStarted) event()   {}
func (snapshotRequest) event()  {}
