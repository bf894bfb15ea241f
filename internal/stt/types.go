package stt

import (
	"context"
	"errors"
)

var (
	// ErrNoSpeech ends a capture run in which nothing was said
	ErrNoSpeech = errors.New("no speech detected")

	// ErrAudioCapture means the audio path to the recognizer broke
	ErrAudioCapture = errors.New("audio capture failed")

	// ErrNotActive is returned when audio arrives outside a capture run
	ErrNotActive = errors.New("recognizer is not active")
)

// TranscriptionResult is one item of an incremental recognition event
type TranscriptionResult struct {
	// Text is the transcribed text
	Text string

	// IsFinal marks a settled segment; interim items are revisable guesses
	// about the utterance currently being spoken
	IsFinal bool

	// Confidence is the confidence score (0.0 to 1.0) if available
	Confidence float64

	// StartTime is the start time of the utterance in seconds
	StartTime float64

	// Duration is the duration of the utterance in seconds
	Duration float64
}

// EventType distinguishes recognizer events
type EventType int

const (
	EventResults EventType = iota // incremental recognition results
	EventEnd                      // engine-initiated end of the capture run
	EventError                    // the run failed; the recognizer is stopped
)

// Event is what a recognizer reports while capturing
type Event struct {
	Type    EventType
	Results []TranscriptionResult
	Err     error
}

// Recognizer is a continuous speech-to-text engine. One Start/Stop pair is
// a capture run; Events stays open across runs until Close.
type Recognizer interface {
	// Start begins a capture run
	Start(ctx context.Context) error

	// SendAudio forwards one frame of microphone audio
	SendAudio(audioData []byte) error

	// Events delivers results, natural end and errors
	Events() <-chan Event

	// Stop ends the current run; no-op when already stopped
	Stop() error

	// Close releases the recognizer for good
	Close() error
}
