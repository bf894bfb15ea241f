package config

import (
	"os"
	"testing"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("QUESTION_SERVICE_URL", "http://localhost:5000")
	t.Setenv("DEEPGRAM_API_KEY", "test-deepgram-key")
}

func TestLoad(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.QuestionServiceURL != "http://localhost:5000" {
		t.Errorf("Expected QuestionServiceURL 'http://localhost:5000', got '%s'", cfg.QuestionServiceURL)
	}
	if cfg.DeepgramAPIKey != "test-deepgram-key" {
		t.Errorf("Expected DeepgramAPIKey 'test-deepgram-key', got '%s'", cfg.DeepgramAPIKey)
	}
}

func TestLoad_MissingQuestionService(t *testing.T) {
	os.Unsetenv("QUESTION_SERVICE_URL")
	t.Setenv("DEEPGRAM_API_KEY", "test-deepgram-key")

	if _, err := Load(); err == nil {
		t.Error("Expected error when QUESTION_SERVICE_URL is missing")
	}
}

func TestLoad_SpeechRequiresDeepgramKey(t *testing.T) {
	t.Setenv("QUESTION_SERVICE_URL", "http://localhost:5000")
	os.Unsetenv("DEEPGRAM_API_KEY")

	if _, err := Load(); err == nil {
		t.Error("Expected error when speech is enabled without DEEPGRAM_API_KEY")
	}

	t.Setenv("SPEECH_ENABLED", "false")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() with speech disabled failed: %v", err)
	}
	if cfg.SpeechEnabled {
		t.Error("Expected SpeechEnabled false")
	}
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("Expected default Port '8080', got '%s'", cfg.Port)
	}
	if cfg.QuestionServiceTransport != "http" {
		t.Errorf("Expected default transport 'http', got '%s'", cfg.QuestionServiceTransport)
	}
	if cfg.DefaultQuestionSeconds != 120 {
		t.Errorf("Expected default DefaultQuestionSeconds 120, got %d", cfg.DefaultQuestionSeconds)
	}
	if cfg.RequestTimeout != 30 {
		t.Errorf("Expected default RequestTimeout 30, got %d", cfg.RequestTimeout)
	}
	if cfg.DeepgramModel != "nova-2" {
		t.Errorf("Expected default DeepgramModel 'nova-2', got '%s'", cfg.DeepgramModel)
	}
	if cfg.DeepgramLanguage != "en-US" {
		t.Errorf("Expected default DeepgramLanguage 'en-US', got '%s'", cfg.DeepgramLanguage)
	}
	if cfg.AudioEncoding != "linear16" {
		t.Errorf("Expected default AudioEncoding 'linear16', got '%s'", cfg.AudioEncoding)
	}
	if cfg.AudioSampleRate != 16000 {
		t.Errorf("Expected default AudioSampleRate 16000, got %d", cfg.AudioSampleRate)
	}
	if cfg.VADEnergyThreshold != 500.0 {
		t.Errorf("Expected default VADEnergyThreshold 500.0, got %f", cfg.VADEnergyThreshold)
	}
	if cfg.NoSpeechTimeout != 8 || cfg.SilenceTimeout != 5 {
		t.Errorf("Expected default speech timeouts 8/5, got %d/%d", cfg.NoSpeechTimeout, cfg.SilenceTimeout)
	}
}

func TestLoad_InvalidTransport(t *testing.T) {
	setRequired(t)
	t.Setenv("QUESTION_SERVICE_TRANSPORT", "carrier-pigeon")

	if _, err := Load(); err == nil {
		t.Error("Expected error for unknown transport")
	}
}

func TestLoad_InvalidEncoding(t *testing.T) {
	setRequired(t)
	t.Setenv("AUDIO_ENCODING", "opus")

	if _, err := Load(); err == nil {
		t.Error("Expected error for unsupported audio encoding")
	}
}

func TestLoadFromEnv(t *testing.T) {
	setRequired(t)
	t.Setenv("QUESTION_SERVICE_TRANSPORT", "grpc")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() failed: %v", err)
	}
	if cfg.QuestionServiceTransport != "grpc" {
		t.Errorf("Expected transport 'grpc', got '%s'", cfg.QuestionServiceTransport)
	}
}

func TestConfig_ResilienceDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.CircuitBreakerMaxFailures != 5 {
		t.Errorf("Expected default CircuitBreakerMaxFailures 5, got %d", cfg.CircuitBreakerMaxFailures)
	}
	if cfg.CircuitBreakerResetTimeout != 30 {
		t.Errorf("Expected default CircuitBreakerResetTimeout 30, got %d", cfg.CircuitBreakerResetTimeout)
	}
	if cfg.RetryMaxAttempts != 3 {
		t.Errorf("Expected default RetryMaxAttempts 3, got %d", cfg.RetryMaxAttempts)
	}
	if cfg.RetryInitialBackoff != 100 {
		t.Errorf("Expected default RetryInitialBackoff 100, got %d", cfg.RetryInitialBackoff)
	}
	if cfg.ReconnectMaxAttempts != 5 {
		t.Errorf("Expected default ReconnectMaxAttempts 5, got %d", cfg.ReconnectMaxAttempts)
	}
	if cfg.ReconnectBackoff != 1000 {
		t.Errorf("Expected default ReconnectBackoff 1000, got %d", cfg.ReconnectBackoff)
	}
}

func TestConfig_ObservabilityDefaults(t *testing.T) {
	setRequired(t)
	os.Unsetenv("LOG_LEVEL")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.LogLevel != "info" {
		t.Errorf("Expected default LogLevel 'info', got '%s'", cfg.LogLevel)
	}
	if cfg.LogPretty {
		t.Error("Expected default LogPretty false, got true")
	}
	if !cfg.MetricsEnabled {
		t.Error("Expected default MetricsEnabled true, got false")
	}
}
