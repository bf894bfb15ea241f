package question

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/interview-gateway/internal/config"
	"github.com/lexiqai/interview-gateway/internal/resilience"
)

const (
	pathNextQuestion  = "/api/next-question"
	pathAnalyzeAnswer = "/api/analyze-answer"
	pathSpeechStatus  = "/api/speech-status"
	pathHealth        = "/health"

	sessionHeader   = "X-Interview-Session"
	maxResponseSize = 1 << 20
)

// HTTPConnector talks JSON over HTTP to the interview backend. All sessions
// share one transport; each session keeps its own cookie jar so the
// backend's server-side question index follows the browser's session.
type HTTPConnector struct {
	baseURL   *url.URL
	transport http.RoundTripper
	guard     *guard
	logger    zerolog.Logger
}

// NewHTTPConnector creates an HTTP connector for QUESTION_SERVICE_URL
func NewHTTPConnector(cfg *config.Config, logger zerolog.Logger) (*HTTPConnector, error) {
	baseURL, err := url.Parse(strings.TrimRight(cfg.QuestionServiceURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid question service URL: %w", err)
	}
	if baseURL.Scheme != "http" && baseURL.Scheme != "https" {
		return nil, fmt.Errorf("question service URL must be http or https, got %q", cfg.QuestionServiceURL)
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 20,
		IdleConnTimeout:     90 * time.Second,
	}

	return &HTTPConnector{
		baseURL:   baseURL,
		transport: transport,
		guard:     newGuard(cfg),
		logger:    logger.With().Str("component", "question_http").Logger(),
	}, nil
}

// Session returns a client whose cookie jar starts with the browser's cookies
func (c *HTTPConnector) Session(sessionID string, cookies []*http.Cookie) Service {
	jar, _ := cookiejar.New(nil)
	if len(cookies) > 0 {
		jar.SetCookies(c.baseURL, cookies)
	}
	return &httpSession{
		connector: c,
		sessionID: sessionID,
		client: &http.Client{
			Transport: c.transport,
			Jar:       jar,
		},
	}
}

// HealthCheck probes the backend's /health endpoint
func (c *HTTPConnector) HealthCheck(ctx context.Context) (bool, error) {
	if err := c.guard.breakerHealth(); err != nil {
		return false, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(pathHealth), nil)
	if err != nil {
		return false, err
	}
	resp, err := (&http.Client{Transport: c.transport}).Do(req)
	if err != nil {
		return false, fmt.Errorf("question service health check failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseSize))

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("question service health returned status %d", resp.StatusCode)
	}
	return true, nil
}

// Close releases idle connections
func (c *HTTPConnector) Close() error {
	if t, ok := c.transport.(*http.Transport); ok {
		t.CloseIdleConnections()
	}
	return nil
}

func (c *HTTPConnector) endpoint(path string) string {
	return c.baseURL.String() + path
}

type httpSession struct {
	connector *HTTPConnector
	sessionID string
	client    *http.Client
}

func (s *httpSession) NextQuestion(ctx context.Context) (*NextResult, error) {
	var result *NextResult
	err := s.connector.guard.do(ctx, "next-question", resilience.IsDialError, func(ctx context.Context) error {
		body, err := s.post(ctx, "next-question", pathNextQuestion, struct{}{})
		if err != nil {
			return err
		}
		result, err = decodeNext(body)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *httpSession) AnalyzeAnswer(ctx context.Context, submission AnswerSubmission) (*Feedback, error) {
	var feedback *Feedback
	err := s.connector.guard.do(ctx, "analyze-answer", resilience.IsDialError, func(ctx context.Context) error {
		body, err := s.post(ctx, "analyze-answer", pathAnalyzeAnswer, newAnalyzeRequest(submission))
		if err != nil {
			return err
		}
		feedback, err = decodeAnalysis(body)
		return err
	})
	if err != nil {
		return nil, err
	}
	return feedback, nil
}

func (s *httpSession) ReportSpeechStatus(ctx context.Context, active bool) error {
	return s.connector.guard.report(ctx, "speech-status", func(ctx context.Context) error {
		body, err := s.post(ctx, "speech-status", pathSpeechStatus, speechStatusRequest{Active: active})
		if err != nil {
			return err
		}
		return decodeStatus("speech-status", body)
	})
}

// post sends a JSON body and returns the raw response body. Transport
// failures are returned unwrapped so the retry policy can inspect them.
func (s *httpSession) post(ctx context.Context, op, path string, payload any) ([]byte, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.connector.endpoint(path), bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(sessionHeader, s.sessionID)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, &TransportError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		te := &TransportError{Op: op, StatusCode: resp.StatusCode}
		var status statusResponse
		if json.Unmarshal(body, &status) == nil {
			te.Message = status.Message
		}
		s.connector.logger.Warn().
			Str("session_id", s.sessionID).
			Str("op", op).
			Int("status", resp.StatusCode).
			Msg("Question service returned error status")
		switch resp.StatusCode {
		case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return nil, resilience.NewRetryableError(te)
		}
		return nil, te
	}

	return body, nil
}
