package question

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/interview-gateway/internal/config"
	"github.com/lexiqai/interview-gateway/internal/observability"
	"github.com/lexiqai/interview-gateway/internal/resilience"
)

// NewConnector picks the transport named by QUESTION_SERVICE_TRANSPORT
func NewConnector(cfg *config.Config, logger zerolog.Logger) (Connector, error) {
	switch strings.ToLower(cfg.QuestionServiceTransport) {
	case "", "http":
		return NewHTTPConnector(cfg, logger)
	case "grpc":
		return NewGRPCConnector(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown question service transport %q", cfg.QuestionServiceTransport)
	}
}

// guard wraps every question service call with the shared circuit breaker,
// a per-call timeout and dial-only retries.
type guard struct {
	circuitBreaker *resilience.CircuitBreaker
	retry          *resilience.RetryConfig
	timeout        time.Duration
}

func newGuard(cfg *config.Config) *guard {
	circuitBreaker := resilience.NewCircuitBreaker(
		"question_service",
		cfg.CircuitBreakerMaxFailures,
		time.Duration(cfg.CircuitBreakerResetTimeout)*time.Second,
	)
	circuitBreaker.OnStateChange = func(name string, _, to resilience.CircuitState) {
		observability.UpdateCircuitBreakerState(name, int(to))
	}

	timeout := time.Duration(cfg.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &guard{
		circuitBreaker: circuitBreaker,
		retry: &resilience.RetryConfig{
			MaxAttempts:       cfg.RetryMaxAttempts,
			InitialBackoff:    time.Duration(cfg.RetryInitialBackoff) * time.Millisecond,
			MaxBackoff:        5 * time.Second,
			BackoffMultiplier: 2.0,
			Jitter:            true,
		},
		timeout: timeout,
	}
}

// breakerHealth fails readiness while the question service breaker is open
func (g *guard) breakerHealth() error {
	state, requests, failures, rate := g.circuitBreaker.GetStats()
	if state == resilience.StateOpen {
		return fmt.Errorf("%s circuit breaker is open: %d of %d requests failed (%.1f%%)",
			g.circuitBreaker.Name(), failures, requests, rate)
	}
	return nil
}

// retryIdempotent decides retries for calls that are safe to repeat
func retryIdempotent(err error) bool {
	return resilience.IsRetryable(err) || resilience.IsRetryableNetworkError(err)
}

// do runs fn under the guard, retrying the failures isRetryable accepts.
// next-question and analyze-answer change backend state and pass
// resilience.IsDialError so that only requests that never arrived repeat.
func (g *guard) do(ctx context.Context, op string, isRetryable resilience.IsRetryableError, fn func(ctx context.Context) error) error {
	return g.run(ctx, op, g.circuitBreaker, isRetryable, fn)
}

// report runs best-effort telemetry. It bypasses the circuit breaker: its
// failures must not stop questions from loading in any session.
func (g *guard) report(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	return g.run(ctx, op, nil, retryIdempotent, fn)
}

func (g *guard) run(ctx context.Context, op string, cb *resilience.CircuitBreaker, isRetryable resilience.IsRetryableError, fn func(ctx context.Context) error) error {
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	call := func() error {
		return resilience.Retry(ctx, fn, g.retry, isRetryable)
	}
	var err error
	if cb != nil {
		err = cb.Call(call)
	} else {
		err = call()
	}
	observability.ObserveQuestionService(op, start, err)
	if err == nil {
		return nil
	}

	if errors.Is(err, resilience.ErrCircuitOpen) {
		return &TransportError{Op: op, Message: "temporarily unavailable", Err: err}
	}
	if cb != nil {
		observability.IncrementCircuitBreakerFailures(cb.Name())
	}

	var te *TransportError
	if errors.As(err, &te) {
		return te
	}
	return &TransportError{Op: op, Err: err}
}
