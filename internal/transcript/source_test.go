package transcript

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/lexiqai/interview-gateway/internal/device"
	"github.com/lexiqai/interview-gateway/internal/stt"
)

type fakeRecognizer struct {
	events   chan stt.Event
	startErr error
	starts   int
	stops    int
	closed   bool
}

func newFakeRecognizer() *fakeRecognizer {
	return &fakeRecognizer{events: make(chan stt.Event, 10)}
}

func (f *fakeRecognizer) Start(ctx context.Context) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.starts++
	return nil
}
func (f *fakeRecognizer) SendAudio([]byte) error   { return nil }
func (f *fakeRecognizer) Events() <-chan stt.Event { return f.events }
func (f *fakeRecognizer) Stop() error              { f.stops++; return nil }
func (f *fakeRecognizer) Close() error             { f.closed = true; return nil }

type draft struct{ text string }

func (d *draft) Answer() string        { return d.text }
func (d *draft) SetAnswer(text string) { d.text = text }

type display struct {
	finalized, interim string
	capturing          []bool
}

func (d *display) TranscriptChanged(finalized, interim string) {
	d.finalized, d.interim = finalized, interim
}
func (d *display) CaptureStateChanged(capturing bool) {
	d.capturing = append(d.capturing, capturing)
}

type fixture struct {
	src     *Source
	rec     *fakeRecognizer
	mic     *device.Microphone
	draft   *draft
	display *display
	reports []bool
}

func newFixture() *fixture {
	f := &fixture{
		rec:     newFakeRecognizer(),
		mic:     device.NewMicrophone(),
		draft:   &draft{},
		display: &display{},
	}
	f.src = NewSource(Options{
		Recognizer: f.rec,
		Microphone: f.mic,
		Draft:      f.draft,
		Display:    f.display,
		Report:     func(active bool) { f.reports = append(f.reports, active) },
		Logger:     zerolog.Nop(),
	})
	return f
}

func results(items ...stt.TranscriptionResult) stt.Event {
	return stt.Event{Type: stt.EventResults, Results: items}
}

func final(text string) stt.TranscriptionResult {
	return stt.TranscriptionResult{Text: text, IsFinal: true}
}

func interim(text string) stt.TranscriptionResult {
	return stt.TranscriptionResult{Text: text}
}

func TestSource_FinalItemsConcatenate(t *testing.T) {
	f := newFixture()
	if err := f.src.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	f.src.Handle(results(final("I led"), interim("the mig")))
	if f.display.interim != "the mig" {
		t.Errorf("Expected interim text to be displayed, got %q", f.display.interim)
	}
	f.src.Handle(results(final("the migration")))
	if f.display.interim != "" {
		t.Errorf("Expected interim text replaced by event without interim items, got %q", f.display.interim)
	}
	f.src.Handle(results(interim("to Postgres")))

	if got := f.src.Transcript(); got != "I led the migration" {
		t.Errorf("Expected trimmed final text without interim, got %q", got)
	}
	if f.display.finalized != "I led the migration " {
		t.Errorf("Expected one separator per final item, got %q", f.display.finalized)
	}
}

func TestSource_StopAppendsToAnswer(t *testing.T) {
	tests := []struct {
		name     string
		existing string
		want     string
	}{
		{"empty answer", "", "spoken words"},
		{"typed answer", "typed", "typed spoken words"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.draft.text = tt.existing
			f.src.Start(context.Background())
			f.src.Handle(results(final("spoken"), final("words")))
			f.src.Stop()

			if f.draft.text != tt.want {
				t.Errorf("Expected answer %q, got %q", tt.want, f.draft.text)
			}
			if f.src.State() != StateStopped {
				t.Errorf("Expected stopped, got %s", f.src.State())
			}
		})
	}
}

func TestSource_StartStopWithoutResultsLeavesAnswer(t *testing.T) {
	f := newFixture()
	f.draft.text = "typed only"

	f.src.Start(context.Background())
	f.src.Stop()

	if f.draft.text != "typed only" {
		t.Errorf("Expected answer untouched, got %q", f.draft.text)
	}
	if len(f.reports) != 2 || !f.reports[0] || f.reports[1] {
		t.Errorf("Expected speech status reports [true false], got %v", f.reports)
	}
}

func TestSource_NaturalEndFinalizesOnce(t *testing.T) {
	f := newFixture()
	f.src.Start(context.Background())
	f.src.Handle(results(final("hello")))

	f.src.Handle(stt.Event{Type: stt.EventEnd})
	f.src.Stop()
	f.src.Handle(stt.Event{Type: stt.EventEnd})

	if f.draft.text != "hello" {
		t.Errorf("Expected a single append, got %q", f.draft.text)
	}
	if f.rec.stops != 0 {
		t.Errorf("Expected no recognizer stop after natural end, got %d", f.rec.stops)
	}
	if f.mic.Holder() != "" {
		t.Errorf("Expected microphone lease released, held by %q", f.mic.Holder())
	}
}

func TestSource_ResultsAfterStopIgnored(t *testing.T) {
	f := newFixture()
	f.src.Start(context.Background())
	f.src.Stop()

	f.src.Handle(results(final("late")))
	if f.src.Transcript() != "" {
		t.Errorf("Expected late results to be ignored, got %q", f.src.Transcript())
	}
}

func TestSource_StartFailures(t *testing.T) {
	t.Run("not supported", func(t *testing.T) {
		src := NewSource(Options{Logger: zerolog.Nop()})
		if err := src.Start(context.Background()); !errors.Is(err, ErrNotSupported) {
			t.Errorf("Expected ErrNotSupported, got %v", err)
		}
	})

	t.Run("microphone busy", func(t *testing.T) {
		f := newFixture()
		lease, _ := f.mic.Acquire("camera")
		defer lease.Release()

		err := f.src.Start(context.Background())
		if !device.IsReason(err, device.ReasonAlreadyInUse) {
			t.Errorf("Expected AlreadyInUse, got %v", err)
		}
		if f.src.State() != StateStopped || f.rec.starts != 0 {
			t.Error("Expected source to stay stopped without starting the recognizer")
		}
	})

	t.Run("permission denied", func(t *testing.T) {
		f := newFixture()
		f.mic.SetPermission(device.PermissionDenied)

		err := f.src.Start(context.Background())
		if !errors.Is(err, ErrPermissionDenied) {
			t.Errorf("Expected ErrPermissionDenied, got %v", err)
		}
		if f.mic.Holder() != "" {
			t.Error("Expected lease released after failed start")
		}
	})

	t.Run("no microphone", func(t *testing.T) {
		f := newFixture()
		f.mic.SetPermission(device.PermissionMissing)
		if err := f.src.Start(context.Background()); !errors.Is(err, ErrAudioCaptureUnavailable) {
			t.Errorf("Expected ErrAudioCaptureUnavailable, got %v", err)
		}
	})

	t.Run("recognizer unavailable", func(t *testing.T) {
		f := newFixture()
		f.rec.startErr = errors.New("dial failed")
		if err := f.src.Start(context.Background()); !errors.Is(err, ErrAudioCaptureUnavailable) {
			t.Errorf("Expected ErrAudioCaptureUnavailable, got %v", err)
		}
		if f.src.IsCapturing() || len(f.reports) != 0 {
			t.Error("Expected no capture and no status report")
		}
	})
}

func TestSource_StartClearsPreviousRun(t *testing.T) {
	f := newFixture()
	f.src.Start(context.Background())
	f.src.Handle(results(final("first")))
	f.src.Stop()

	f.rec.events <- results(final("stale"))
	f.src.Start(context.Background())

	if f.src.Transcript() != "" {
		t.Errorf("Expected empty transcript on new run, got %q", f.src.Transcript())
	}
	if len(f.rec.events) != 0 {
		t.Error("Expected leftover events to be drained")
	}
}

func TestSource_ErrorEvents(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"no speech", stt.ErrNoSpeech, ErrNoSpeechDetected},
		{"audio capture", stt.ErrAudioCapture, ErrAudioCaptureUnavailable},
		{"unknown", errors.New("socket closed"), ErrAudioCaptureUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.src.Start(context.Background())
			f.src.Handle(results(final("partial")))

			err := f.src.Handle(stt.Event{Type: stt.EventError, Err: tt.err})
			if !errors.Is(err, tt.want) {
				t.Fatalf("Expected %v, got %v", tt.want, err)
			}
			if f.src.IsCapturing() {
				t.Error("Expected capture to stop on error")
			}
			if f.draft.text != "partial" {
				t.Errorf("Expected text gathered before the error to be kept, got %q", f.draft.text)
			}
			if UserMessage(err) == "" {
				t.Error("Expected a user message")
			}
		})
	}
}

func TestSource_ClearKeepsCapturing(t *testing.T) {
	f := newFixture()
	f.src.Start(context.Background())
	f.src.Handle(results(final("scratch that"), interim("um")))

	f.src.Clear()

	if !f.src.IsCapturing() {
		t.Error("Expected capture to continue")
	}
	if f.src.Transcript() != "" || f.src.Interim() != "" {
		t.Error("Expected both texts cleared")
	}
	if f.display.finalized != "" || f.display.interim != "" {
		t.Error("Expected display refreshed")
	}
}

func TestUserMessage_Distinct(t *testing.T) {
	seen := map[string]error{}
	for _, err := range []error{ErrNotSupported, ErrNoSpeechDetected, ErrAudioCaptureUnavailable, ErrPermissionDenied} {
		msg := UserMessage(err)
		if prev, ok := seen[msg]; ok {
			t.Errorf("%v and %v share message %q", prev, err, msg)
		}
		seen[msg] = err
	}
}

func TestSource_AsyncStart(t *testing.T) {
	var pending []func() StartResult
	f := newFixture()
	f.src.async = func(start func() StartResult) { pending = append(pending, start) }

	if err := f.src.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if f.src.State() != StateStarting {
		t.Fatalf("Expected starting, got %s", f.src.State())
	}
	if f.mic.Holder() != leaseOwner {
		t.Error("Expected lease held while starting")
	}
	f.src.Handle(results(final("too early")))

	if err := f.src.Started(pending[0]()); err != nil {
		t.Fatalf("Started failed: %v", err)
	}
	if !f.src.IsCapturing() {
		t.Fatalf("Expected capturing, got %s", f.src.State())
	}
	if f.src.Transcript() != "" {
		t.Errorf("Expected results before capture to be ignored, got %q", f.src.Transcript())
	}
}

func TestSource_StopWhileStarting(t *testing.T) {
	var pending []func() StartResult
	f := newFixture()
	f.draft.text = "typed"
	f.src.async = func(start func() StartResult) { pending = append(pending, start) }

	f.src.Start(context.Background())
	f.src.Stop()

	if f.src.State() != StateStopped || f.mic.Holder() != "" {
		t.Fatal("Expected stop to abandon the start and release the lease")
	}

	f.src.Started(pending[0]())
	if f.src.IsCapturing() {
		t.Error("Expected late start result to be discarded")
	}
	if f.rec.stops != 1 {
		t.Errorf("Expected the late-started recognizer to be stopped, got %d stops", f.rec.stops)
	}
	if f.draft.text != "typed" || len(f.reports) != 0 {
		t.Error("Expected no finalize and no status report for an abandoned start")
	}
}

// singleRunRecognizer refuses a second run while one is active, as
// Deepgram does
type singleRunRecognizer struct {
	*fakeRecognizer
	active bool
}

func (r *singleRunRecognizer) Start(ctx context.Context) error {
	if r.active {
		return errors.New("recognizer is already active")
	}
	r.active = true
	return r.fakeRecognizer.Start(ctx)
}

func (r *singleRunRecognizer) Stop() error {
	r.active = false
	return r.fakeRecognizer.Stop()
}

func TestSource_RestartWhileAbandonedStartInFlight(t *testing.T) {
	var pending []func() StartResult
	f := newFixture()
	rec := &singleRunRecognizer{fakeRecognizer: f.rec}
	f.src.recognizer = rec
	f.src.async = func(start func() StartResult) { pending = append(pending, start) }

	f.src.Start(context.Background())
	f.src.Stop()
	if err := f.src.Start(context.Background()); err != nil {
		t.Fatalf("Restart failed: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("Expected the restart to wait for the abandoned start, got %d starts in flight", len(pending))
	}
	if f.src.State() != StateStarting {
		t.Fatalf("Expected starting, got %s", f.src.State())
	}

	// the abandoned start succeeds: it is stopped and the queued run launches
	if err := f.src.Started(pending[0]()); err != nil {
		t.Fatalf("Stale Started failed: %v", err)
	}
	if f.rec.stops != 1 {
		t.Errorf("Expected the abandoned run to be stopped, got %d stops", f.rec.stops)
	}
	if len(pending) != 2 {
		t.Fatalf("Expected the queued start to launch, got %d", len(pending))
	}

	if err := f.src.Started(pending[1]()); err != nil {
		t.Fatalf("Started failed: %v", err)
	}
	if !f.src.IsCapturing() || !rec.active {
		t.Fatalf("Expected capture to resume, state %s", f.src.State())
	}

	f.src.Handle(results(final("second try")))
	f.src.Stop()
	if f.draft.text != "second try" {
		t.Errorf("Expected speech in answer, got %q", f.draft.text)
	}

	// and capture can be started again afterwards
	f.src.Start(context.Background())
	f.src.Started(pending[2]())
	if !f.src.IsCapturing() {
		t.Errorf("Expected a later start to capture, got %s", f.src.State())
	}
}

func TestSource_StaleStartStoppedWhileStarting(t *testing.T) {
	var pending []func() StartResult
	f := newFixture()
	f.src.async = func(start func() StartResult) { pending = append(pending, start) }

	f.src.Start(context.Background())
	f.src.Stop()
	f.src.Start(context.Background())
	f.src.Stop()

	f.src.Started(pending[0]())
	if f.rec.stops != 1 {
		t.Errorf("Expected the abandoned run stopped, got %d stops", f.rec.stops)
	}
	if len(pending) != 1 {
		t.Errorf("Expected no start after both runs were abandoned, got %d", len(pending))
	}
	if f.src.State() != StateStopped || f.mic.Holder() != "" {
		t.Error("Expected the source stopped with the lease free")
	}
}
