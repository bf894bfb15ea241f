package stt

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	websocketv1api "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket"
	msginterfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	listenClient "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"
	"github.com/rs/zerolog"

	"github.com/lexiqai/interview-gateway/internal/audio"
	"github.com/lexiqai/interview-gateway/internal/config"
	"github.com/lexiqai/interview-gateway/internal/observability"
	"github.com/lexiqai/interview-gateway/internal/resilience"
)

// messageCallbackHandler implements the LiveMessageCallback interface
// It embeds the default handler and overrides only the methods we need to customize
type messageCallbackHandler struct {
	*websocketv1api.DefaultCallbackHandler
	handler      func(*msginterfaces.MessageResponse)
	errorHandler func(*msginterfaces.ErrorResponse) error
}

// Message forwards transcription messages to the recognizer
func (m *messageCallbackHandler) Message(message *msginterfaces.MessageResponse) error {
	m.handler(message)
	return nil
}

// Error overrides the default handler to use our custom error handling
func (m *messageCallbackHandler) Error(errorResponse *msginterfaces.ErrorResponse) error {
	if m.errorHandler != nil {
		return m.errorHandler(errorResponse)
	}
	return m.DefaultCallbackHandler.Error(errorResponse)
}

// liveConnection is the part of the Deepgram websocket client we use
type liveConnection interface {
	Write(p []byte) (int, error)
	Finish()
}

// dialFunc opens one Deepgram live connection; replaced in tests
type dialFunc func(ctx context.Context, callback *messageCallbackHandler) (liveConnection, error)

// DeepgramRecognizer implements Recognizer using Deepgram's streaming API.
// Browser audio is analysed by an energy VAD on the way through so that a
// run ends the way browser recognition does: an error when nothing is said,
// a natural end once the speaker falls silent.
type DeepgramRecognizer struct {
	config         *config.Config
	logger         zerolog.Logger
	dial           dialFunc
	circuitBreaker *resilience.CircuitBreaker

	events chan Event
	ctx    context.Context
	cancel context.CancelFunc

	mu           sync.Mutex
	client       liveConnection
	isActive     bool
	reconnecting bool
	runID        uint64
	vad          *audio.VADDetector
	pending      *audio.RingBuffer // audio held while (re)connecting
}

// NewDeepgramRecognizer creates a recognizer for one interview session
func NewDeepgramRecognizer(cfg *config.Config, logger zerolog.Logger) *DeepgramRecognizer {
	ctx, cancel := context.WithCancel(context.Background())

	circuitBreaker := resilience.NewCircuitBreaker(
		"deepgram",
		cfg.CircuitBreakerMaxFailures,
		time.Duration(cfg.CircuitBreakerResetTimeout)*time.Second,
	)
	circuitBreaker.OnStateChange = func(name string, _, to resilience.CircuitState) {
		observability.UpdateCircuitBreakerState(name, int(to))
	}

	d := &DeepgramRecognizer{
		config:         cfg,
		logger:         logger.With().Str("component", "deepgram").Logger(),
		circuitBreaker: circuitBreaker,
		events:         make(chan Event, 100),
		ctx:            ctx,
		cancel:         cancel,
		vad: audio.NewVADDetector(&audio.VADConfig{
			EnergyThreshold: cfg.VADEnergyThreshold,
			SampleRate:      cfg.AudioSampleRate,
			NoSpeechTimeout: time.Duration(cfg.NoSpeechTimeout) * time.Second,
			SilenceTimeout:  time.Duration(cfg.SilenceTimeout) * time.Second,
		}),
		pending: audio.NewRingBuffer(cfg.AudioBufferSize),
	}
	d.dial = d.dialDeepgram
	return d
}

// Start opens a Deepgram live connection for a new capture run
func (d *DeepgramRecognizer) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.isActive {
		return fmt.Errorf("deepgram recognizer is already active")
	}

	d.runID++
	d.vad.Reset()
	d.pending.Clear()

	if err := d.connectLocked(); err != nil {
		return err
	}

	d.logger.Info().
		Str("model", d.config.DeepgramModel).
		Str("language", d.config.DeepgramLanguage).
		Uint64("run", d.runID).
		Msg("Deepgram capture run started")
	return nil
}

// connectLocked dials Deepgram for the current run. Caller holds d.mu.
func (d *DeepgramRecognizer) connectLocked() error {
	runID := d.runID
	callback := &messageCallbackHandler{
		DefaultCallbackHandler: websocketv1api.NewDefaultCallbackHandler(),
		handler: func(msg *msginterfaces.MessageResponse) {
			d.handleDeepgramMessage(runID, msg)
		},
		errorHandler: func(errorResponse *msginterfaces.ErrorResponse) error {
			d.handleDeepgramError(runID, errorResponse)
			return nil
		},
	}

	var client liveConnection
	err := d.circuitBreaker.Call(func() error {
		var dialErr error
		client, dialErr = d.dial(d.ctx, callback)
		return dialErr
	})
	if err != nil {
		observability.IncrementCircuitBreakerFailures("deepgram")
		return fmt.Errorf("failed to connect to Deepgram: %w", err)
	}

	d.client = client
	d.isActive = true
	return nil
}

// dialDeepgram creates and connects a Deepgram WebSocket client (v3 API)
func (d *DeepgramRecognizer) dialDeepgram(ctx context.Context, callback *messageCallbackHandler) (liveConnection, error) {
	tOptions := &interfaces.LiveTranscriptionOptions{
		Model:          d.config.DeepgramModel,
		Language:       d.config.DeepgramLanguage,
		Punctuate:      true,
		SmartFormat:    true,
		InterimResults: true,
		UtteranceEndMs: "1000",
		VadEvents:      true,
		Encoding:       strings.ToLower(d.config.AudioEncoding),
		Channels:       1,
		SampleRate:     d.config.AudioSampleRate,
	}

	client, err := listenClient.NewWSUsingCallback(ctx, d.config.DeepgramAPIKey, nil, tOptions, callback)
	if err != nil {
		return nil, fmt.Errorf("failed to create Deepgram client: %w", err)
	}
	if !client.Connect() {
		return nil, fmt.Errorf("deepgram websocket connect failed")
	}
	return client, nil
}

// handleDeepgramMessage turns a Deepgram transcript into a result event
func (d *DeepgramRecognizer) handleDeepgramMessage(runID uint64, msg *msginterfaces.MessageResponse) {
	if msg == nil || !d.isCurrentRun(runID) {
		return
	}

	switch msg.Type {
	case "Results", "Message":
		if len(msg.Channel.Alternatives) == 0 {
			return
		}

		alt := msg.Channel.Alternatives[0]
		if alt.Transcript == "" {
			return
		}

		startTime := msg.Start
		duration := msg.Duration
		if len(alt.Words) > 0 && duration == 0 {
			startTime = alt.Words[0].Start
			duration = alt.Words[len(alt.Words)-1].End - startTime
		}

		d.logger.Debug().
			Bool("final", msg.IsFinal).
			Float64("confidence", alt.Confidence).
			Msg("Deepgram transcript")

		d.emit(Event{Type: EventResults, Results: []TranscriptionResult{{
			Text:       alt.Transcript,
			IsFinal:    msg.IsFinal,
			Confidence: alt.Confidence,
			StartTime:  startTime,
			Duration:   duration,
		}}})

	default:
		d.logger.Debug().Str("type", msg.Type).Msg("Deepgram message ignored")
	}
}

// handleDeepgramError records the failure and tries to resume the run
func (d *DeepgramRecognizer) handleDeepgramError(runID uint64, errorResponse *msginterfaces.ErrorResponse) {
	d.logger.Error().Interface("error", errorResponse).Msg("Deepgram error")

	d.circuitBreaker.RecordResult(false)
	observability.IncrementCircuitBreakerFailures("deepgram")

	if d.ctx.Err() != nil {
		return
	}

	d.mu.Lock()
	if runID != d.runID || !d.isActive || d.reconnecting {
		d.mu.Unlock()
		return
	}
	d.isActive = false
	d.reconnecting = true
	d.client = nil
	d.mu.Unlock()

	go d.attemptReconnect(runID)
}

// attemptReconnect reconnects the current run, buffering audio meanwhile.
// Giving up ends the run with ErrAudioCapture.
func (d *DeepgramRecognizer) attemptReconnect(runID uint64) {
	reconnectConfig := &resilience.ReconnectConfig{
		MaxAttempts: d.config.ReconnectMaxAttempts,
		Backoff:     time.Duration(d.config.ReconnectBackoff) * time.Millisecond,
		Multiplier:  2.0,
		MaxBackoff:  30 * time.Second,
	}

	err := resilience.Reconnect(d.ctx, func() error {
		d.mu.Lock()
		defer d.mu.Unlock()
		if runID != d.runID {
			return nil // run was stopped; nothing to resume
		}
		return d.connectLocked()
	}, reconnectConfig, d.logger)

	d.mu.Lock()
	current := runID == d.runID
	if current {
		d.reconnecting = false
	}
	var backlog []byte
	client := d.client
	if err == nil && current && client != nil {
		backlog = d.pending.Drain()
	}
	d.mu.Unlock()

	if !current {
		return
	}
	if err != nil {
		d.logger.Error().Err(err).Msg("Failed to reconnect Deepgram")
		d.emit(Event{Type: EventError, Err: fmt.Errorf("%w: %v", ErrAudioCapture, err)})
		return
	}
	if len(backlog) > 0 {
		if _, werr := client.Write(backlog); werr != nil {
			d.logger.Warn().Err(werr).Msg("Failed to flush buffered audio")
		}
	}
}

// SendAudio analyses one frame and forwards it to Deepgram
func (d *DeepgramRecognizer) SendAudio(audioData []byte) error {
	samples, err := audio.DecodeSamples(d.config.AudioEncoding, audioData)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAudioCapture, err)
	}

	d.mu.Lock()
	if !d.isActive && !d.reconnecting {
		d.mu.Unlock()
		return ErrNotActive
	}
	signal := d.vad.ProcessFrame(samples)
	client := d.client
	if client == nil {
		d.pending.Write(audioData)
	}
	d.mu.Unlock()

	if client != nil {
		if _, err := client.Write(audioData); err != nil {
			d.circuitBreaker.RecordResult(false)
			return fmt.Errorf("failed to send audio to Deepgram: %w", err)
		}
	}

	switch signal {
	case audio.SignalNoSpeech:
		d.logger.Info().Msg("No speech detected, ending capture run")
		d.finish()
		d.emit(Event{Type: EventError, Err: ErrNoSpeech})
	case audio.SignalSilenceEnd:
		d.logger.Info().Msg("Silence after speech, ending capture run")
		d.finish()
		d.emit(Event{Type: EventEnd})
	}
	return nil
}

// Events returns the recognizer's event stream
func (d *DeepgramRecognizer) Events() <-chan Event {
	return d.events
}

// Stop ends the current capture run
func (d *DeepgramRecognizer) Stop() error {
	d.finish()
	return nil
}

// finish closes the Deepgram connection and invalidates the run so late
// messages and reconnects are dropped.
func (d *DeepgramRecognizer) finish() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.isActive && !d.reconnecting {
		return
	}
	if d.client != nil {
		d.client.Finish()
	}
	d.client = nil
	d.isActive = false
	d.reconnecting = false
	d.runID++
	d.pending.Clear()
	d.logger.Info().Msg("Deepgram capture run stopped")
}

// Close stops any run and cancels pending reconnects
func (d *DeepgramRecognizer) Close() error {
	d.cancel()
	d.finish()
	return nil
}

// active reports whether a capture run is in progress
func (d *DeepgramRecognizer) active() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.isActive || d.reconnecting
}

func (d *DeepgramRecognizer) isCurrentRun(runID uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return runID == d.runID && d.isActive
}

// emit delivers an event unless the recognizer is closed
func (d *DeepgramRecognizer) emit(ev Event) {
	select {
	case d.events <- ev:
	case <-d.ctx.Done():
	}
}

// HealthCheck validates the Deepgram configuration without opening a
// paid streaming connection
func HealthCheck(cfg *config.Config) func(ctx context.Context) (bool, error) {
	return func(ctx context.Context) (bool, error) {
		if cfg.DeepgramAPIKey == "" {
			return false, fmt.Errorf("deepgram API key not configured")
		}
		return true, nil
	}
}
