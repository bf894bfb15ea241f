package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration for the interview gateway service
type Config struct {
	// Server configuration
	Port string `envconfig:"PORT" default:"8080"`

	// Public base URL for this service, used only when logging the WebSocket endpoint.
	// Optional; if unset, logs ws://localhost:PORT/sessions/ws.
	PublicURL string `envconfig:"PUBLIC_URL" default:""`

	// Question service (next-question / analyze-answer backend)
	QuestionServiceURL       string `envconfig:"QUESTION_SERVICE_URL" required:"true"`
	QuestionServiceTransport string `envconfig:"QUESTION_SERVICE_TRANSPORT" default:"http"` // http, grpc
	QuestionServiceTLS       bool   `envconfig:"QUESTION_SERVICE_TLS" default:"false"`      // gRPC only
	RequestTimeout           int    `envconfig:"REQUEST_TIMEOUT" default:"30"`              // seconds, per call

	// Interview defaults
	DefaultQuestionSeconds int `envconfig:"DEFAULT_QUESTION_SECONDS" default:"120"`

	// Speech recognition
	SpeechEnabled    bool   `envconfig:"SPEECH_ENABLED" default:"true"` // false disables capture for every session
	DeepgramAPIKey   string `envconfig:"DEEPGRAM_API_KEY" default:""`
	DeepgramModel    string `envconfig:"DEEPGRAM_MODEL" default:"nova-2"`
	DeepgramLanguage string `envconfig:"DEEPGRAM_LANGUAGE" default:"en-US"`

	// Browser audio format
	AudioEncoding      string  `envconfig:"AUDIO_ENCODING" default:"linear16"` // linear16, mulaw
	AudioSampleRate    int     `envconfig:"AUDIO_SAMPLE_RATE" default:"16000"`
	AudioBufferSize    int     `envconfig:"AUDIO_BUFFER_SIZE" default:"32768"` // Ring buffer size in bytes
	VADEnergyThreshold float64 `envconfig:"VAD_ENERGY_THRESHOLD" default:"500.0"`
	NoSpeechTimeout    int     `envconfig:"NO_SPEECH_TIMEOUT" default:"8"`    // seconds without speech before no-speech error
	SilenceTimeout     int     `envconfig:"SILENCE_TIMEOUT" default:"5"`      // seconds of silence after speech that end capture

	// Resilience configuration
	CircuitBreakerMaxFailures  int `envconfig:"CIRCUIT_BREAKER_MAX_FAILURES" default:"5"`
	CircuitBreakerResetTimeout int `envconfig:"CIRCUIT_BREAKER_RESET_TIMEOUT" default:"30"` // seconds
	RetryMaxAttempts           int `envconfig:"RETRY_MAX_ATTEMPTS" default:"3"`
	RetryInitialBackoff        int `envconfig:"RETRY_INITIAL_BACKOFF" default:"100"` // milliseconds
	ReconnectMaxAttempts       int `envconfig:"RECONNECT_MAX_ATTEMPTS" default:"5"`
	ReconnectBackoff           int `envconfig:"RECONNECT_BACKOFF" default:"1000"` // milliseconds

	// Observability configuration
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"`
}

// Load reads configuration from environment variables
// It first attempts to load from .env file if it exists, then from environment
func Load() (*Config, error) {
	// Missing .env is fine
	_ = godotenv.Load()
	return LoadFromEnv()
}

// LoadFromEnv loads configuration directly from environment variables
// without attempting to load .env file (useful for containerized deployments)
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints envconfig cannot express
func (c *Config) Validate() error {
	if c.QuestionServiceURL == "" {
		return fmt.Errorf("QUESTION_SERVICE_URL is required")
	}

	switch strings.ToLower(c.QuestionServiceTransport) {
	case "http", "grpc":
	default:
		return fmt.Errorf("QUESTION_SERVICE_TRANSPORT must be http or grpc, got %q", c.QuestionServiceTransport)
	}

	switch strings.ToLower(c.AudioEncoding) {
	case "linear16", "mulaw":
	default:
		return fmt.Errorf("AUDIO_ENCODING must be linear16 or mulaw, got %q", c.AudioEncoding)
	}

	if c.SpeechEnabled && c.DeepgramAPIKey == "" {
		return fmt.Errorf("DEEPGRAM_API_KEY is required when SPEECH_ENABLED is true")
	}
	if c.DefaultQuestionSeconds <= 0 {
		return fmt.Errorf("DEFAULT_QUESTION_SECONDS must be positive")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive")
	}
	return nil
}
