// Package transcript turns a continuous speech recognizer into the answer
// transcript of one interview question.
package transcript

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/lexiqai/interview-gateway/internal/device"
	"github.com/lexiqai/interview-gateway/internal/observability"
	"github.com/lexiqai/interview-gateway/internal/stt"
)

// State of a Source
type State int

const (
	StateStopped State = iota
	StateStarting
	StateCapturing
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateCapturing:
		return "capturing"
	default:
		return "unknown"
	}
}

const leaseOwner = "speech"

// AnswerDraft is the typed answer that finalized speech is appended to
type AnswerDraft interface {
	Answer() string
	SetAnswer(text string)
}

// Display shows the live transcript and capture state
type Display interface {
	TranscriptChanged(finalized, interim string)
	CaptureStateChanged(capturing bool)
}

// StatusReporter is told about every transition into and out of capture.
// It must not block.
type StatusReporter func(active bool)

// StartResult is the outcome of starting the recognizer for one run
type StartResult struct {
	run uint64
	err error
}

// Async runs a recognizer start off the session loop and hands the result
// back to Started on the loop.
type Async func(start func() StartResult)

// Source accumulates recognized speech for the current question. It is
// owned by the session loop: every method, Handle included, must be called
// from that one goroutine.
type Source struct {
	recognizer stt.Recognizer // nil when speech is disabled
	mic        *device.Microphone
	draft      AnswerDraft
	display    Display
	report     StatusReporter
	async      Async
	metrics    *observability.Metrics
	logger     zerolog.Logger

	state     State
	run       uint64
	inflight  bool            // a recognizer start has not resolved yet
	queued    context.Context // start waiting for the in-flight one
	lease     *device.Lease
	finalized strings.Builder
	interim   string
}

// Options wires a Source to its collaborators
type Options struct {
	Recognizer stt.Recognizer
	Microphone *device.Microphone
	Draft      AnswerDraft
	Display    Display
	Report     StatusReporter
	Async      Async // nil starts the recognizer inline
	Metrics    *observability.Metrics
	Logger     zerolog.Logger
}

// NewSource creates a stopped Source
func NewSource(opts Options) *Source {
	mic := opts.Microphone
	if mic == nil {
		mic = device.NewMicrophone()
	}
	report := opts.Report
	if report == nil {
		report = func(bool) {}
	}
	return &Source{
		recognizer: opts.Recognizer,
		mic:        mic,
		draft:      opts.Draft,
		display:    opts.Display,
		report:     report,
		async:      opts.Async,
		metrics:    opts.Metrics,
		logger:     opts.Logger.With().Str("component", "transcript").Logger(),
	}
}

// Supported reports whether a recognizer is available
func (s *Source) Supported() bool {
	return s.recognizer != nil
}

// State returns the current capture state
func (s *Source) State() State {
	return s.state
}

// IsCapturing reports whether speech is being captured
func (s *Source) IsCapturing() bool {
	return s.state == StateCapturing
}

// Start begins a capture run. Device checks happen here; the recognizer
// itself starts through Async and the run enters Capturing in Started. On
// failure the source is stopped and the microphone lease is not held.
func (s *Source) Start(ctx context.Context) error {
	if s.recognizer == nil {
		return ErrNotSupported
	}
	if s.state != StateStopped {
		return nil
	}

	lease, err := s.mic.Acquire(leaseOwner)
	if err != nil {
		return s.startFailed(err)
	}

	if err := s.mic.Probe(ctx); err != nil {
		lease.Release()
		switch {
		case device.IsReason(err, device.ReasonPermissionDenied):
			return s.startFailed(fmt.Errorf("%w: %w", ErrPermissionDenied, err))
		case device.IsReason(err, device.ReasonNotFound):
			return s.startFailed(fmt.Errorf("%w: %w", ErrAudioCaptureUnavailable, err))
		default:
			return s.startFailed(err)
		}
	}

	s.lease = lease
	s.state = StateStarting
	s.resetText()
	s.drain()
	s.refresh()

	s.run++
	if s.inflight {
		// the recognizer allows one run; wait for the abandoned start
		s.queued = ctx
		return nil
	}
	return s.launch(ctx)
}

func (s *Source) launch(ctx context.Context) error {
	run := s.run
	recognizer := s.recognizer
	start := func() StartResult {
		return StartResult{run: run, err: recognizer.Start(ctx)}
	}

	s.inflight = true
	if s.async == nil {
		return s.Started(start())
	}
	s.async(start)
	return nil
}

// Started completes a Start. Results for a run that was stopped or
// replaced meanwhile are discarded.
func (s *Source) Started(res StartResult) error {
	s.inflight = false
	if res.run != s.run || s.state != StateStarting {
		if res.err == nil {
			if err := s.recognizer.Stop(); err != nil {
				s.logger.Warn().Err(err).Msg("Failed to stop abandoned recognizer run")
			}
		}
		if ctx := s.queued; ctx != nil {
			s.queued = nil
			if s.state == StateStarting {
				return s.launch(ctx)
			}
		}
		return nil
	}

	if res.err != nil {
		s.releaseLease()
		s.state = StateStopped
		return s.startFailed(fmt.Errorf("%w: %w", ErrAudioCaptureUnavailable, res.err))
	}

	s.state = StateCapturing
	s.logger.Debug().Uint64("run", s.run).Msg("Speech capture started")

	if s.display != nil {
		s.display.CaptureStateChanged(true)
	}
	s.report(true)
	return nil
}

// Stop ends capture and appends the finalized transcript to the answer.
// No-op when already stopped.
func (s *Source) Stop() {
	switch s.state {
	case StateStopped:
		return
	case StateStarting:
		s.abortStart()
		return
	}
	if err := s.recognizer.Stop(); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to stop recognizer")
	}
	s.finalize("stopped")
}

// Handle applies one recognizer event. Events outside a capture run are
// ignored. A returned error is a capture failure; the source has already
// stopped and finalized.
func (s *Source) Handle(ev stt.Event) error {
	if s.state != StateCapturing {
		return nil
	}

	switch ev.Type {
	case stt.EventResults:
		var interim strings.Builder
		for _, r := range ev.Results {
			if r.IsFinal {
				s.finalized.WriteString(r.Text)
				s.finalized.WriteString(" ")
			} else {
				interim.WriteString(r.Text)
			}
		}
		s.interim = interim.String()
		s.refresh()
		return nil

	case stt.EventEnd:
		s.finalize("ended")
		return nil

	case stt.EventError:
		err := captureError(ev.Err)
		s.logger.Warn().Err(ev.Err).Msg("Speech capture failed")
		if s.metrics != nil {
			s.metrics.RecordCaptureError(Kind(err))
		}
		s.finalize("error")
		return err
	}
	return nil
}

// Transcript returns the trimmed finalized text. Interim text is never included.
func (s *Source) Transcript() string {
	return strings.TrimSpace(s.finalized.String())
}

// Interim returns the current interim guess
func (s *Source) Interim() string {
	return s.interim
}

// Clear resets both texts and keeps capturing
func (s *Source) Clear() {
	s.resetText()
	s.refresh()
}

// Close stops capture without touching the answer and releases the recognizer
func (s *Source) Close() {
	switch s.state {
	case StateStarting:
		s.abortStart()
	case StateCapturing:
		s.recognizer.Stop()
		s.state = StateStopped
		s.releaseLease()
		s.report(false)
	}
	if s.recognizer != nil {
		s.recognizer.Close()
	}
}

func (s *Source) startFailed(err error) error {
	s.logger.Warn().Err(err).Msg("Speech capture could not start")
	if s.metrics != nil {
		s.metrics.RecordCaptureError(Kind(err))
	}
	return err
}

// abortStart abandons a run whose recognizer start is still in flight
func (s *Source) abortStart() {
	s.run++
	s.state = StateStopped
	s.queued = nil
	s.releaseLease()
}

func (s *Source) releaseLease() {
	s.lease.Release()
	s.lease = nil
}

func (s *Source) finalize(outcome string) {
	s.state = StateStopped
	s.interim = ""
	s.releaseLease()

	if speech := s.Transcript(); speech != "" && s.draft != nil {
		if current := s.draft.Answer(); current != "" {
			s.draft.SetAnswer(current + " " + speech)
		} else {
			s.draft.SetAnswer(speech)
		}
	}

	if s.metrics != nil {
		s.metrics.RecordCaptureEnd(outcome)
	}
	s.logger.Debug().Str("outcome", outcome).Msg("Speech capture ended")

	s.refresh()
	if s.display != nil {
		s.display.CaptureStateChanged(false)
	}
	s.report(false)
}

func (s *Source) resetText() {
	s.finalized.Reset()
	s.interim = ""
}

func (s *Source) refresh() {
	if s.display != nil {
		s.display.TranscriptChanged(s.finalized.String(), s.interim)
	}
}

// drain discards events left over from an earlier run
func (s *Source) drain() {
	for {
		select {
		case <-s.recognizer.Events():
		default:
			return
		}
	}
}

func captureError(err error) error {
	switch {
	case errors.Is(err, stt.ErrNoSpeech):
		return fmt.Errorf("%w: %w", ErrNoSpeechDetected, err)
	case err == nil:
		return ErrAudioCaptureUnavailable
	default:
		return fmt.Errorf("%w: %w", ErrAudioCaptureUnavailable, err)
	}
}
