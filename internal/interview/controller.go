package interview

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/interview-gateway/internal/device"
	"github.com/lexiqai/interview-gateway/internal/observability"
	"github.com/lexiqai/interview-gateway/internal/question"
	"github.com/lexiqai/interview-gateway/internal/stt"
	"github.com/lexiqai/interview-gateway/internal/transcript"
)

// ErrSessionEnded is returned to callers once the session loop has exited
var ErrSessionEnded = errors.New("interview session ended")

const (
	triggerUser    = "user"
	triggerTimeout = "timeout"

	promptSkip   = "Skip this question?"
	promptFinish = "Are you sure you want to finish the interview? This will end the session."

	msgEmptyAnswer  = "Please provide an answer before submitting."
	msgSubmitFailed = "Error submitting answer. Please try again."
	msgLoadFailed   = "Could not load the next question. Please try again."
	msgCompleted    = "All questions completed! Moving to coding test..."
)

// Options wires a Controller to its collaborators
type Options struct {
	SessionID  string
	Service    question.Service
	Recognizer stt.Recognizer // nil disables speech capture
	Microphone *device.Microphone
	View       View
	Clock      Clock
	Metrics    *observability.Metrics
	Logger     zerolog.Logger

	RequestTimeout         time.Duration
	DefaultQuestionSeconds int
}

// Snapshot is a copy of the session state
type Snapshot struct {
	State      State
	QuestionID string
	Allocated  int
	Remaining  int
	Running    bool
	Answer     string
	Transcript string
	Interim    string
	Capture    transcript.State
	Capturing  bool
	Answered   []string
}

// Controller runs one interview session. All session state is owned by
// the goroutine in Run; everything else talks to it through Dispatch.
type Controller struct {
	sessionID      string
	service        question.Service
	recognizer     stt.Recognizer
	mic            *device.Microphone
	view           View
	clock          Clock
	metrics        *observability.Metrics
	logger         zerolog.Logger
	requestTimeout time.Duration
	defaultSeconds int

	source *transcript.Source
	events chan Event
	done   chan struct{}
	ctx    context.Context

	state       State
	resumeState State // restored when a load fails
	question    *question.Question
	progress    question.Progress
	feedback    *question.Feedback
	answered    []string
	answer      string
	allocated   int
	remaining   int
	ticker      Ticker
	tickC       <-chan time.Time
	loadSeq     uint64
	submitSeq   uint64
	pending     map[Action]bool
}

// NewController creates an idle session
func NewController(opts Options) *Controller {
	c := &Controller{
		sessionID:      opts.SessionID,
		service:        opts.Service,
		recognizer:     opts.Recognizer,
		mic:            opts.Microphone,
		view:           opts.View,
		clock:          opts.Clock,
		metrics:        opts.Metrics,
		logger:         opts.Logger.With().Str("component", "session").Logger(),
		requestTimeout: opts.RequestTimeout,
		defaultSeconds: opts.DefaultQuestionSeconds,
		events:         make(chan Event, 64),
		done:           make(chan struct{}),
		ctx:            context.Background(),
		state:          StateIdle,
		pending:        make(map[Action]bool),
	}
	if c.mic == nil {
		c.mic = device.NewMicrophone()
	}
	if c.clock == nil {
		c.clock = SystemClock{}
	}
	if c.metrics == nil {
		c.metrics = observability.NewSessionMetrics(opts.SessionID)
	}
	if c.requestTimeout <= 0 {
		c.requestTimeout = 30 * time.Second
	}
	if c.defaultSeconds <= 0 {
		c.defaultSeconds = question.DefaultAllocatedSeconds
	}

	c.source = transcript.NewSource(transcript.Options{
		Recognizer: opts.Recognizer,
		Microphone: c.mic,
		Draft:      answerDraft{c},
		Display:    captureDisplay{c},
		Report:     c.reportSpeechStatus,
		Async:      c.startAsync,
		Metrics:    c.metrics,
		Logger:     c.logger,
	})
	return c
}

// Dispatch hands an event to the session loop. It returns false once the
// session has ended.
func (c *Controller) Dispatch(ev Event) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.events <- ev:
		return true
	case <-c.done:
		return false
	}
}

// Done is closed when Run returns
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// Snapshot returns a copy of the session state
func (c *Controller) Snapshot(ctx context.Context) (Snapshot, error) {
	req := snapshotRequest{reply: make(chan Snapshot, 1)}
	if !c.Dispatch(req) {
		return Snapshot{}, ErrSessionEnded
	}
	select {
	case snap := <-req.reply:
		return snap, nil
	case <-c.done:
		return Snapshot{}, ErrSessionEnded
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
}

// Run loads the first question and processes events until the session is
// completed or finished, or ctx is cancelled.
func (c *Controller) Run(ctx context.Context) error {
	c.ctx = ctx
	defer close(c.done)
	defer c.shutdown()

	c.metrics.RecordSessionStart()
	c.logger.Info().Msg("Interview session started")

	c.view.SetCaptureState(false, c.source.Supported())
	c.loadNextQuestion()

	var captureEvents <-chan stt.Event
	if c.recognizer != nil {
		captureEvents = c.recognizer.Events()
	}

	for {
		select {
		case <-ctx.Done():
			c.metrics.RecordSessionEnd("disconnected")
			c.logger.Info().Str("state", c.state.String()).Msg("Interview session disconnected")
			return ctx.Err()
		case ev := <-c.events:
			c.handle(ev)
		case <-c.tickC:
			c.handle(timerTick{})
		case ev := <-captureEvents:
			c.handle(captureEvent{ev})
		}

		if c.state.Terminal() {
			return nil
		}
	}
}

func (c *Controller) handle(ev Event) {
	switch e := ev.(type) {
	case questionLoaded:
		c.onQuestionLoaded(e)
	case submissionResult:
		c.onSubmissionResult(e)
	case timerTick:
		c.onTick()
	case captureEvent:
		c.captureFailed(c.source.Handle(e.ev))
	case captureStarted:
		c.captureFailed(c.source.Started(e.result))
	case snapshotRequest:
		e.reply <- c.snapshot()

	case AnswerChanged:
		c.answer = e.Text
	case Submit:
		c.submitAnswer(triggerUser)
	case Skip:
		c.requestConfirmation(ActionSkip, promptSkip)
	case Finish:
		c.requestConfirmation(ActionFinish, promptFinish)
	case Next:
		c.next()
	case Confirm:
		c.confirm(e)
	case StartSpeech:
		c.captureFailed(c.source.Start(c.ctx))
	case StopSpeech:
		c.source.Stop()
	case ClearTranscript:
		c.source.Clear()
	case StartTimer:
		if c.state == StateAwaitingAnswer {
			c.startCountdown()
		}
	case StopTimer:
		c.stopCountdown()
	case DeviceStatus:
		c.onDeviceStatus(e.Permission)
	default:
		c.logger.Warn().Msgf("Unhandled session event %T", ev)
	}
}

// loadNextQuestion asks the question service for the next question. The
// current state is restored if the request fails.
func (c *Controller) loadNextQuestion() {
	c.stopCountdown()
	c.resumeState = c.state
	c.state = StateLoading
	c.view.SetSubmitEnabled(false)

	c.loadSeq++
	seq := c.loadSeq
	c.goCall(func(ctx context.Context) Event {
		result, err := c.service.NextQuestion(ctx)
		return questionLoaded{seq: seq, result: result, err: err}
	})
}

func (c *Controller) onQuestionLoaded(e questionLoaded) {
	if e.seq != c.loadSeq || c.state != StateLoading {
		return
	}

	if e.err != nil {
		c.logger.Warn().Err(e.err).Msg("Failed to load next question")
		c.metrics.RecordError("transport", "next_question")
		c.state = c.resumeState
		c.view.Notify(Notification{Kind: NotifyTransport, Message: msgLoadFailed, Retryable: true})
		if c.state == StateAwaitingAnswer {
			c.view.SetSubmitEnabled(true)
			c.startCountdown()
		}
		return
	}

	if e.result.Completed || e.result.Question == nil {
		c.view.Notify(Notification{Kind: NotifyInfo, Message: msgCompleted})
		c.complete()
		return
	}

	q := e.result.Question
	allocated := q.AllocatedSeconds
	if allocated <= 0 {
		allocated = c.defaultSeconds
	}

	c.question = q
	c.progress = e.result.Progress
	c.feedback = nil
	c.allocated = allocated
	c.remaining = allocated
	c.state = StateAwaitingAnswer

	answerDraft{c}.SetAnswer("")
	c.source.Clear()
	c.view.HideFeedback()
	c.view.ShowQuestion(q, c.progress)
	c.view.SetSubmitEnabled(true)
	c.metrics.RecordQuestionLoaded(string(q.Type), string(q.Difficulty))

	c.logger.Info().
		Str("question_id", q.ID).
		Str("type", string(q.Type)).
		Int("allocated_seconds", allocated).
		Msg("Question loaded")

	c.startCountdown()
}

// startCountdown resumes the countdown from the current remaining time.
// No-op when running or already at zero.
func (c *Controller) startCountdown() {
	if c.ticker != nil || c.remaining <= 0 {
		c.showCountdown()
		return
	}
	c.ticker = c.clock.NewTicker(time.Second)
	c.tickC = c.ticker.C()
	c.showCountdown()
}

// stopCountdown is a no-op when the countdown is not running. Ticks of a
// stopped ticker are never read.
func (c *Controller) stopCountdown() {
	if c.ticker == nil {
		return
	}
	c.ticker.Stop()
	c.ticker = nil
	c.tickC = nil
	c.showCountdown()
}

func (c *Controller) onTick() {
	if c.ticker == nil || c.state != StateAwaitingAnswer {
		return
	}

	c.remaining--
	if c.remaining <= 0 {
		c.remaining = 0
		c.stopCountdown()
		c.submitAnswer(triggerTimeout)
		return
	}
	c.showCountdown()
}

func (c *Controller) showCountdown() {
	if c.question == nil {
		return
	}
	c.view.ShowCountdown(newCountdown(c.remaining, c.allocated, c.ticker != nil))
}

// submitAnswer sends the answer for scoring. Only one submission can be in
// flight; calls outside AwaitingAnswer are ignored.
func (c *Controller) submitAnswer(trigger string) {
	if c.state != StateAwaitingAnswer {
		c.logger.Debug().Str("trigger", trigger).Str("state", c.state.String()).Msg("Ignoring submit")
		return
	}

	c.view.SetSubmitEnabled(false)
	c.stopCountdown()

	answer := c.answer
	spoken := c.source.Transcript()
	if strings.TrimSpace(answer) == "" && strings.TrimSpace(spoken) == "" {
		c.metrics.RecordSubmitEnd(trigger, "rejected", 0)
		c.notifyError(&ValidationError{Message: msgEmptyAnswer, Err: ErrEmptyAnswer})
		c.view.SetSubmitEnabled(true)
		return
	}

	submission := question.AnswerSubmission{
		QuestionID:      c.question.ID,
		AnswerText:      answer,
		TranscriptText:  spoken,
		DurationSeconds: c.allocated - c.remaining,
	}

	c.state = StateSubmitting
	c.submitSeq++
	seq := c.submitSeq
	c.metrics.RecordSubmitStart()

	c.logger.Info().
		Str("question_id", submission.QuestionID).
		Str("trigger", trigger).
		Int("duration_seconds", submission.DurationSeconds).
		Msg("Submitting answer")

	c.goCall(func(ctx context.Context) Event {
		feedback, err := c.service.AnalyzeAnswer(ctx, submission)
		return submissionResult{
			seq:      seq,
			trigger:  trigger,
			duration: submission.DurationSeconds,
			feedback: feedback,
			err:      err,
		}
	})
}

func (c *Controller) onSubmissionResult(e submissionResult) {
	if e.seq != c.submitSeq || c.state != StateSubmitting {
		return
	}

	if e.err != nil {
		c.logger.Warn().Err(e.err).Msg("Answer submission failed")
		c.metrics.RecordSubmitEnd(e.trigger, "error", e.duration)
		c.metrics.RecordError("transport", "analyze_answer")
		c.state = StateAwaitingAnswer
		c.view.Notify(Notification{Kind: NotifyTransport, Message: msgSubmitFailed, Retryable: true})
		c.view.SetSubmitEnabled(true)
		return
	}

	c.metrics.RecordSubmitEnd(e.trigger, "success", e.duration)
	c.answered = append(c.answered, c.question.ID)
	c.feedback = e.feedback
	c.state = StateShowingFeedback
	c.view.ShowFeedback(RenderFeedback(e.feedback))
}

// next moves on from feedback. When the service said no question remains,
// it routes to the next program stage instead.
func (c *Controller) next() {
	switch c.state {
	case StateShowingFeedback:
		if c.feedback != nil && !c.feedback.HasNextQuestion {
			c.complete()
			return
		}
		c.loadNextQuestion()
	case StateIdle:
		c.loadNextQuestion()
	}
}

func (c *Controller) canConfirm(action Action) bool {
	switch action {
	case ActionSkip:
		return c.state == StateAwaitingAnswer || c.state == StateShowingFeedback
	case ActionFinish:
		return !c.state.Terminal()
	default:
		return false
	}
}

func (c *Controller) requestConfirmation(action Action, prompt string) {
	if !c.canConfirm(action) {
		return
	}
	c.pending[action] = true
	c.view.RequestConfirmation(action, prompt)
}

func (c *Controller) confirm(e Confirm) {
	if !c.pending[e.Action] {
		return
	}
	delete(c.pending, e.Action)
	if !e.Accepted || !c.canConfirm(e.Action) {
		return
	}

	switch e.Action {
	case ActionSkip:
		c.metrics.RecordSkip()
		c.logger.Info().Str("question_id", c.currentQuestionID()).Msg("Question skipped")
		c.loadNextQuestion()
	case ActionFinish:
		c.stopCountdown()
		c.source.Stop()
		c.state = StateFinished
		c.metrics.RecordSessionEnd("finished")
		c.logger.Info().Int("answered", len(c.answered)).Msg("Interview finished by candidate")
		c.view.Navigate(StageSummary)
	}
}

// complete ends the question phase and routes to the next program stage
func (c *Controller) complete() {
	c.stopCountdown()
	c.source.Stop()
	c.state = StateCompleted
	c.metrics.RecordSessionEnd("completed")
	c.logger.Info().Int("answered", len(c.answered)).Msg("All questions completed")
	c.view.Navigate(StageNext)
}

func (c *Controller) onDeviceStatus(permission device.PermissionState) {
	c.mic.SetPermission(permission)
	if permission != device.PermissionDenied && permission != device.PermissionMissing {
		return
	}
	if c.source.State() == transcript.StateStopped {
		return
	}
	c.source.Stop()
	c.notifyError(c.mic.Probe(c.ctx))
}

func (c *Controller) captureFailed(err error) {
	if err == nil {
		return
	}
	if errors.Is(err, transcript.ErrNotSupported) {
		c.view.SetCaptureState(false, false)
	}
	c.notifyError(err)
}

// notifyError turns an error into a notification
func (c *Controller) notifyError(err error) {
	if err == nil {
		return
	}

	var validation *ValidationError
	var devErr *device.DeviceError
	switch {
	case errors.As(err, &validation):
		c.view.Notify(Notification{Kind: NotifyValidation, Message: validation.Message, Retryable: true})
	case errors.Is(err, question.ErrTransport):
		c.view.Notify(Notification{Kind: NotifyTransport, Message: err.Error(), Retryable: true})
	case errors.Is(err, transcript.ErrNotSupported):
		c.view.Notify(Notification{Kind: NotifyCapture, Message: transcript.UserMessage(err)})
	case errors.Is(err, transcript.ErrPermissionDenied), errors.As(err, &devErr):
		c.view.Notify(Notification{Kind: NotifyDevice, Message: transcript.UserMessage(err), Retryable: true})
	default:
		c.view.Notify(Notification{Kind: NotifyCapture, Message: transcript.UserMessage(err), Retryable: true})
	}
}

// goCall runs a service call off the loop with the request timeout and
// posts its result back as an event.
func (c *Controller) goCall(call func(ctx context.Context) Event) {
	ctx, cancel := context.WithTimeout(c.ctx, c.requestTimeout)
	go func() {
		defer cancel()
		c.post(call(ctx))
	}()
}

func (c *Controller) post(ev Event) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

func (c *Controller) startAsync(start func() transcript.StartResult) {
	go func() {
		c.post(captureStarted{result: start()})
	}()
}

func (c *Controller) reportSpeechStatus(active bool) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.ctx), c.requestTimeout)
	go func() {
		defer cancel()
		if err := c.service.ReportSpeechStatus(ctx, active); err != nil {
			c.logger.Debug().Err(err).Bool("active", active).Msg("Speech status report failed")
		}
	}()
}

func (c *Controller) shutdown() {
	c.stopCountdown()
	c.source.Close()
}

func (c *Controller) snapshot() Snapshot {
	return Snapshot{
		State:      c.state,
		QuestionID: c.currentQuestionID(),
		Allocated:  c.allocated,
		Remaining:  c.remaining,
		Running:    c.ticker != nil,
		Answer:     c.answer,
		Transcript: c.source.Transcript(),
		Interim:    c.source.Interim(),
		Capture:    c.source.State(),
		Capturing:  c.source.IsCapturing(),
		Answered:   append([]string(nil), c.answered...),
	}
}

func (c *Controller) currentQuestionID() string {
	if c.question == nil {
		return ""
	}
	return c.question.ID
}

// answerDraft lets captured speech land in the typed answer
type answerDraft struct{ c *Controller }

func (d answerDraft) Answer() string { return d.c.answer }

func (d answerDraft) SetAnswer(text string) {
	d.c.answer = text
	d.c.view.SetAnswer(text)
}

type captureDisplay struct{ c *Controller }

func (d captureDisplay) TranscriptChanged(finalized, interim string) {
	d.c.view.ShowTranscript(finalized, interim)
}

func (d captureDisplay) CaptureStateChanged(capturing bool) {
	d.c.view.SetCaptureState(capturing, true)
}
