package transcript

import (
	"errors"

	"github.com/lexiqai/interview-gateway/internal/device"
)

var (
	// ErrNotSupported means no recognizer is available for this session
	ErrNotSupported = errors.New("speech recognition not supported")

	// ErrNoSpeechDetected ends a run in which nothing was said
	ErrNoSpeechDetected = errors.New("no speech detected")

	// ErrAudioCaptureUnavailable covers a missing microphone and a broken
	// audio path to the recognizer
	ErrAudioCaptureUnavailable = errors.New("audio capture unavailable")

	// ErrPermissionDenied means the browser refused microphone access
	ErrPermissionDenied = errors.New("microphone permission denied")
)

// UserMessage returns the text shown to the candidate for a capture error
func UserMessage(err error) string {
	switch {
	case errors.Is(err, ErrNotSupported):
		return "Speech recognition is not supported in your browser. Please use Chrome, Edge, or Safari."
	case errors.Is(err, ErrNoSpeechDetected):
		return "No speech detected. Please speak clearly into the microphone."
	case errors.Is(err, ErrPermissionDenied):
		return "Microphone access was denied. Please allow microphone access in your browser settings."
	case errors.Is(err, ErrAudioCaptureUnavailable):
		return "No microphone found. Please ensure a microphone is connected and permissions are granted."
	}

	var devErr *device.DeviceError
	if errors.As(err, &devErr) {
		return devErr.Guidance()
	}
	return "Failed to start speech recognition. Please try again."
}

// Kind names the error for notifications and metrics
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrNotSupported):
		return "not_supported"
	case errors.Is(err, ErrNoSpeechDetected):
		return "no_speech"
	case errors.Is(err, ErrPermissionDenied):
		return "permission_denied"
	case errors.Is(err, ErrAudioCaptureUnavailable):
		return "audio_capture"
	case device.IsReason(err, device.ReasonAlreadyInUse):
		return "device_busy"
	default:
		return "capture"
	}
}
