package question

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/lexiqai/interview-gateway/internal/config"
	"github.com/lexiqai/interview-gateway/internal/resilience"
)

const (
	grpcServiceName = "interview.v1.QuestionService"

	methodNextQuestion       = "/" + grpcServiceName + "/NextQuestion"
	methodAnalyzeAnswer      = "/" + grpcServiceName + "/AnalyzeAnswer"
	methodReportSpeechStatus = "/" + grpcServiceName + "/ReportSpeechStatus"

	metadataSession = "x-interview-session"
	metadataCookie  = "cookie"
)

// GRPCConnector manages the gRPC connection to the question service.
// Payloads are google.protobuf.Struct values mirroring the JSON API, so
// no generated stubs are needed.
type GRPCConnector struct {
	config *config.Config
	guard  *guard
	logger zerolog.Logger

	mu          sync.RWMutex
	conn        *grpc.ClientConn
	health      healthpb.HealthClient
	isConnected bool
}

// NewGRPCConnector dials the question service
func NewGRPCConnector(cfg *config.Config, logger zerolog.Logger) (*GRPCConnector, error) {
	c := &GRPCConnector{
		config: cfg,
		guard:  newGuard(cfg),
		logger: logger.With().Str("component", "question_grpc").Logger(),
	}

	if err := c.connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to question service: %w", err)
	}

	return c, nil
}

func (c *GRPCConnector) connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.isConnected && c.conn != nil {
		return nil
	}

	var opts []grpc.DialOption

	if c.config.QuestionServiceTLS {
		opts = append(opts, grpc.WithTransportCredentials(credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})))
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}

	// Keepalive settings for long-lived connections
	opts = append(opts, grpc.WithKeepaliveParams(keepalive.ClientParameters{
		Time:                10 * time.Second,
		Timeout:             3 * time.Second,
		PermitWithoutStream: true,
	}))

	ctx, cancel := context.WithTimeout(context.Background(), c.guard.timeout)
	defer cancel()

	target := strings.TrimPrefix(c.config.QuestionServiceURL, "grpc://")
	conn, err := grpc.DialContext(ctx, target, opts...)
	if err != nil {
		return fmt.Errorf("failed to dial question service at %s: %w", target, err)
	}

	c.conn = conn
	c.health = healthpb.NewHealthClient(conn)
	c.isConnected = true

	c.logger.Info().Str("target", target).Msg("Connected to question service")
	return nil
}

// Session returns a client that tags every call with the session id and
// the browser's cookies
func (c *GRPCConnector) Session(sessionID string, cookies []*http.Cookie) Service {
	pairs := []string{metadataSession, sessionID}
	if header := cookieHeader(cookies); header != "" {
		pairs = append(pairs, metadataCookie, header)
	}
	return &grpcSession{connector: c, metadata: metadata.Pairs(pairs...)}
}

// HealthCheck asks the standard gRPC health service about the question service
func (c *GRPCConnector) HealthCheck(ctx context.Context) (bool, error) {
	if err := c.guard.breakerHealth(); err != nil {
		return false, err
	}
	c.mu.RLock()
	if !c.isConnected || c.health == nil {
		c.mu.RUnlock()
		return false, fmt.Errorf("question service client is not connected")
	}
	health := c.health
	c.mu.RUnlock()

	resp, err := health.Check(ctx, &healthpb.HealthCheckRequest{Service: grpcServiceName})
	if err != nil {
		return false, fmt.Errorf("health check failed: %w", err)
	}

	return resp.GetStatus() == healthpb.HealthCheckResponse_SERVING, nil
}

// Close closes the gRPC connection
func (c *GRPCConnector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		err := c.conn.Close()
		c.isConnected = false
		c.conn = nil
		c.health = nil
		return err
	}

	return nil
}

// invoke makes one unary Struct-in, Struct-out call
func (c *GRPCConnector) invoke(ctx context.Context, op, method string, payload any) ([]byte, error) {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return nil, &TransportError{Op: op, Message: "client is not connected"}
	}

	req, err := toStruct(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	resp := &structpb.Struct{}
	if err := conn.Invoke(ctx, method, req, resp); err != nil {
		if st, ok := status.FromError(err); ok && st.Message() != "" {
			te := &TransportError{Op: op, Message: st.Code().String() + ": " + st.Message(), Err: err}
			if st.Code() == codes.Unavailable {
				return nil, resilience.NewRetryableError(te)
			}
			return nil, te
		}
		return nil, err
	}

	body, err := json.Marshal(resp.AsMap())
	if err != nil {
		return nil, &TransportError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return body, nil
}

type grpcSession struct {
	connector *GRPCConnector
	metadata  metadata.MD
}

func (s *grpcSession) outgoing(ctx context.Context) context.Context {
	return metadata.NewOutgoingContext(ctx, s.metadata)
}

func (s *grpcSession) NextQuestion(ctx context.Context) (*NextResult, error) {
	var result *NextResult
	err := s.connector.guard.do(ctx, "next-question", resilience.IsDialError, func(ctx context.Context) error {
		body, err := s.connector.invoke(s.outgoing(ctx), "next-question", methodNextQuestion, struct{}{})
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

func (s *grpcSession) AnalyzeAnswer(ctx context.Context, submission AnswerSubmission) (*Feedback, error) {
	var feedback *Feedback
	err := s.connector.guard.do(ctx, "analyze-answer", resilience.IsDialError, func(ctx context.Context) error {
		body, err := s.connector.invoke(s.outgoing(ctx), "analyze-answer", methodAnalyzeAnswer, newAnalyzeRequest(submission))
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

func (s *grpcSession) ReportSpeechStatus(ctx context.Context, active bool) error {
	return s.connector.guard.report(ctx, "speech-status", func(ctx context.Context) error {
		body, err := s.connector.invoke(s.outgoing(ctx), "speech-status", methodReportSpeechStatus, speechStatusRequest{Active: active})
		if err != nil {
			return err
		}
		return decodeStatus("speech-status", body)
	})
}

// toStruct converts a JSON-tagged request into a protobuf Struct
func toStruct(payload any) (*structpb.Struct, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	fields := map[string]any{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	return structpb.NewStruct(fields)
}

func cookieHeader(cookies []*http.Cookie) string {
	parts := make([]string, 0, len(cookies))
	for _, ck := range cookies {
		if ck == nil || ck.Name == "" {
			continue
		}
		parts = append(parts, ck.Name+"="+ck.Value)
	}
	return strings.Join(parts, "; ")
}
