// Package gateway serves interview sessions to the browser over WebSocket.
package gateway

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/lexiqai/interview-gateway/internal/config"
	"github.com/lexiqai/interview-gateway/internal/device"
	"github.com/lexiqai/interview-gateway/internal/interview"
	"github.com/lexiqai/interview-gateway/internal/observability"
	"github.com/lexiqai/interview-gateway/internal/question"
	"github.com/lexiqai/interview-gateway/internal/stt"
)

const (
	writeWait     = 10 * time.Second
	sendQueueSize = 256
)

// RecognizerFactory creates the speech recognizer of one session; nil
// disables speech capture
type RecognizerFactory func(logger zerolog.Logger) stt.Recognizer

// DeepgramRecognizers returns a factory backed by Deepgram, or one that
// disables capture when speech is switched off
func DeepgramRecognizers(cfg *config.Config) RecognizerFactory {
	return func(logger zerolog.Logger) stt.Recognizer {
		if !cfg.SpeechEnabled || cfg.DeepgramAPIKey == "" {
			return nil
		}
		return stt.NewDeepgramRecognizer(cfg, logger)
	}
}

// Handler upgrades browser connections and runs one interview session per
// connection
type Handler struct {
	config        *config.Config
	connector     question.Connector
	newRecognizer RecognizerFactory
	clock         interview.Clock
	upgrader      websocket.Upgrader
}

// NewHandler creates the session WebSocket handler
func NewHandler(cfg *config.Config, connector question.Connector, recognizers RecognizerFactory) *Handler {
	if recognizers == nil {
		recognizers = DeepgramRecognizers(cfg)
	}
	return &Handler{
		config:        cfg,
		connector:     connector,
		newRecognizer: recognizers,
		clock:         interview.SystemClock{},
		upgrader: websocket.Upgrader{
			// Sessions ride on the browser's cookies; same-origin is enforced
			// by the default origin check.
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
}

// ServeHTTP is the entry point for browser session connections
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger := observability.GetLogger()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error
		logger.Warn().Err(err).Msg("Failed to upgrade connection to WebSocket")
		return
	}
	defer conn.Close()

	sessionID := uuid.NewString()
	correlationID := observability.NewCorrelationID()
	logger = observability.SessionLogger(correlationID, sessionID)
	metrics := observability.NewSessionMetrics(sessionID)

	recognizer := h.newRecognizer(logger)
	if recognizer != nil {
		defer func() {
			if err := recognizer.Close(); err != nil {
				logger.Warn().Err(err).Msg("Error closing recognizer")
			}
		}()
	}

	session := newClientSession(conn, logger, sendQueueSize)
	controller := interview.NewController(interview.Options{
		SessionID:              sessionID,
		Service:                h.connector.Session(sessionID, r.Cookies()),
		Recognizer:             recognizer,
		Microphone:             device.NewMicrophone(),
		View:                   session,
		Clock:                  h.clock,
		Metrics:                metrics,
		Logger:                 logger,
		RequestTimeout:         time.Duration(h.config.RequestTimeout) * time.Second,
		DefaultQuestionSeconds: h.config.DefaultQuestionSeconds,
	})

	logger.Info().Str("remote_addr", r.RemoteAddr).Msg("Interview session connected")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go session.writeLoop()
	go session.readLoop(controller, recognizer, metrics, cancel)

	err = controller.Run(ctx)
	switch {
	case err == nil:
		logger.Info().Msg("Interview session ended")
	case errors.Is(err, context.Canceled):
		logger.Info().Msg("Browser disconnected")
	default:
		logger.Error().Err(err).Msg("Interview session failed")
	}

	session.close()
}

// ClientSession is the browser end of one interview session. It implements
// interview.View by queueing JSON messages for a single writer goroutine.
type ClientSession struct {
	conn   *websocket.Conn
	logger zerolog.Logger

	send     chan ServerMessage
	done     chan struct{}
	written  chan struct{}
	once     sync.Once
	overflow sync.Once
}

// supersededTypes are updates the next message of the same type replaces
var supersededTypes = map[string]bool{
	"countdown":  true,
	"transcript": true,
}

func newClientSession(conn *websocket.Conn, logger zerolog.Logger, queueSize int) *ClientSession {
	return &ClientSession{
		conn:    conn,
		logger:  logger,
		send:    make(chan ServerMessage, queueSize),
		done:    make(chan struct{}),
		written: make(chan struct{}),
	}
}

// readLoop turns browser frames into session events until the connection
// drops
func (s *ClientSession) readLoop(controller *interview.Controller, recognizer stt.Recognizer, metrics *observability.Metrics, disconnected context.CancelFunc) {
	defer disconnected()

	for {
		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn().Err(err).Msg("WebSocket read error")
			}
			return
		}

		switch messageType {
		case websocket.BinaryMessage:
			if recognizer == nil {
				continue
			}
			metrics.RecordAudioBytes(int64(len(data)))
			if err := recognizer.SendAudio(data); err != nil && !errors.Is(err, stt.ErrNotActive) {
				s.logger.Debug().Err(err).Msg("Dropped audio frame")
			}

		case websocket.TextMessage:
			ev, err := parseClientMessage(data)
			if err != nil {
				s.logger.Warn().Err(err).Msg("Ignoring client message")
				continue
			}
			if !controller.Dispatch(ev) {
				return
			}
		}
	}
}

// writeLoop is the only writer on the connection
func (s *ClientSession) writeLoop() {
	defer close(s.written)

	for {
		select {
		case msg := <-s.send:
			if err := s.write(msg); err != nil {
				s.logger.Warn().Err(err).Str("type", msg.Type).Msg("WebSocket write error")
				return
			}
		case <-s.done:
			// flush what the session queued before it ended
			for {
				select {
				case msg := <-s.send:
					if err := s.write(msg); err != nil {
						return
					}
				default:
					s.conn.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended"),
						time.Now().Add(writeWait))
					return
				}
			}
		}
	}
}

func (s *ClientSession) write(msg ServerMessage) error {
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(msg)
}

// close stops the writer once the queue is flushed
func (s *ClientSession) close() {
	s.once.Do(func() { close(s.done) })
	<-s.written
}

// enqueue never blocks the session loop. With the queue full, superseded
// updates are dropped and any other message closes the connection.
func (s *ClientSession) enqueue(msgType string, payload interface{}) {
	select {
	case s.send <- ServerMessage{Type: msgType, Payload: payload}:
		return
	default:
	}

	if supersededTypes[msgType] {
		s.logger.Warn().Str("type", msgType).Msg("Send queue full, dropping update")
		return
	}
	s.overflow.Do(func() {
		s.logger.Error().Str("type", msgType).Msg("Send queue full, closing session")
		s.conn.Close()
	})
}

func (s *ClientSession) ShowQuestion(q *question.Question, progress question.Progress) {
	s.enqueue("question", newQuestionPayload(q, progress))
}

func (s *ClientSession) ShowCountdown(c interview.Countdown) {
	s.enqueue("countdown", countdownPayload{
		Remaining: c.Remaining,
		Allocated: c.Allocated,
		Display:   c.Display,
		Fraction:  c.Fraction,
		ArcOffset: c.ArcOffset,
		Running:   c.Running,
	})
}

func (s *ClientSession) ShowFeedback(f interview.FeedbackView) {
	s.enqueue("feedback", newFeedbackPayload(f))
}

func (s *ClientSession) HideFeedback() {
	s.enqueue("feedback_hidden", nil)
}

func (s *ClientSession) ShowTranscript(finalized, interim string) {
	s.enqueue("transcript", transcriptPayload{Finalized: finalized, Interim: interim})
}

func (s *ClientSession) SetAnswer(text string) {
	s.enqueue("answer", textPayload{Text: text})
}

func (s *ClientSession) SetSubmitEnabled(enabled bool) {
	s.enqueue("submit_enabled", enabledPayload{Enabled: enabled})
}

func (s *ClientSession) SetCaptureState(capturing, supported bool) {
	s.enqueue("speech_state", speechStatePayload{Capturing: capturing, Supported: supported})
}

func (s *ClientSession) Notify(n interview.Notification) {
	s.enqueue("notification", notificationPayload{
		Kind:      string(n.Kind),
		Message:   n.Message,
		Retryable: n.Retryable,
	})
}

func (s *ClientSession) RequestConfirmation(action interview.Action, prompt string) {
	s.enqueue("confirm_request", confirmPayload{Action: string(action), Prompt: prompt})
}

func (s *ClientSession) Navigate(stage interview.Stage) {
	s.enqueue("navigate", navigatePayload{Stage: string(stage)})
}
