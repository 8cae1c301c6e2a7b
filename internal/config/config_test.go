package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	// Set required environment variables
	os.Setenv("GEMINI_API_KEY", "test-gemini-key")
	defer os.Unsetenv("GEMINI_API_KEY")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.GeminiAPIKey != "test-gemini-key" {
		t.Errorf("Expected GeminiAPIKey 'test-gemini-key', got '%s'", cfg.GeminiAPIKey)
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	// Clear environment variables
	os.Unsetenv("GEMINI_API_KEY")

	_, err := Load()
	if err == nil {
		t.Error("Expected error when required keys are missing")
	}
}

func TestLoad_Defaults(t *testing.T) {
	os.Setenv("GEMINI_API_KEY", "test-gemini-key")
	defer os.Unsetenv("GEMINI_API_KEY")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	// Check defaults
	if cfg.Port != "8090" {
		t.Errorf("Expected default Port '8090', got '%s'", cfg.Port)
	}

	if cfg.LiveModel != "gemini-2.5-flash-native-audio-preview-09-2025" {
		t.Errorf("Expected default LiveModel, got '%s'", cfg.LiveModel)
	}

	if cfg.TextModel != "gemini-2.5-flash" {
		t.Errorf("Expected default TextModel 'gemini-2.5-flash', got '%s'", cfg.TextModel)
	}

	if cfg.VoiceName != "Kore" {
		t.Errorf("Expected default VoiceName 'Kore', got '%s'", cfg.VoiceName)
	}

	if cfg.InputSampleRate != 16000 {
		t.Errorf("Expected default InputSampleRate 16000, got %d", cfg.InputSampleRate)
	}

	if cfg.OutputSampleRate != 24000 {
		t.Errorf("Expected default OutputSampleRate 24000, got %d", cfg.OutputSampleRate)
	}

	if cfg.CaptureFrameSize != 4096 {
		t.Errorf("Expected default CaptureFrameSize 4096, got %d", cfg.CaptureFrameSize)
	}

	if cfg.IngestionURL != "http://localhost:8000" {
		t.Errorf("Expected default IngestionURL 'http://localhost:8000', got '%s'", cfg.IngestionURL)
	}

	if cfg.VADEnergyThreshold != 500.0 {
		t.Errorf("Expected default VADEnergyThreshold 500.0, got %f", cfg.VADEnergyThreshold)
	}

	if !cfg.SummarizeOnStop {
		t.Error("Expected default SummarizeOnStop true, got false")
	}
}

func TestLoad_InvalidAudio(t *testing.T) {
	os.Setenv("GEMINI_API_KEY", "test-gemini-key")
	os.Setenv("AUDIO_BUFFER_SIZE", "1024")
	defer os.Unsetenv("GEMINI_API_KEY")
	defer os.Unsetenv("AUDIO_BUFFER_SIZE")

	_, err := Load()
	if err == nil {
		t.Error("Expected error when the capture buffer cannot hold two frames")
	}
}

func TestLoadFromEnv(t *testing.T) {
	os.Setenv("GEMINI_API_KEY", "test-gemini-key")
	defer os.Unsetenv("GEMINI_API_KEY")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() failed: %v", err)
	}

	if cfg.GeminiAPIKey != "test-gemini-key" {
		t.Errorf("Expected GeminiAPIKey 'test-gemini-key', got '%s'", cfg.GeminiAPIKey)
	}
}

func TestGetEnv(t *testing.T) {
	os.Setenv("TEST_KEY", "test-value")
	defer os.Unsetenv("TEST_KEY")

	value := GetEnv("TEST_KEY", "default")
	if value != "test-value" {
		t.Errorf("Expected 'test-value', got '%s'", value)
	}

	value = GetEnv("NON_EXISTENT_KEY", "default")
	if value != "default" {
		t.Errorf("Expected 'default', got '%s'", value)
	}
}

func TestConfig_ReadAloud(t *testing.T) {
	os.Setenv("GEMINI_API_KEY", "test-gemini-key")
	os.Unsetenv("DEEPGRAM_API_KEY")
	defer os.Unsetenv("GEMINI_API_KEY")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.ReadAloudEnabled() {
		t.Error("Expected read-aloud disabled without a Deepgram key")
	}

	os.Setenv("DEEPGRAM_API_KEY", "dg-key")
	defer os.Unsetenv("DEEPGRAM_API_KEY")

	cfg, err = Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if !cfg.ReadAloudEnabled() {
		t.Error("Expected read-aloud enabled with a Deepgram key")
	}
	if cfg.DeepgramTTSModel != "aura-asteria-en" {
		t.Errorf("Expected default DeepgramTTSModel 'aura-asteria-en', got '%s'", cfg.DeepgramTTSModel)
	}
}

func TestConfig_ResilienceDefaults(t *testing.T) {
	os.Setenv("GEMINI_API_KEY", "test-gemini-key")
	defer os.Unsetenv("GEMINI_API_KEY")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	// Check resilience defaults
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

	if cfg.InferenceTimeoutDuration() != 60*time.Second {
		t.Errorf("Expected default inference timeout 60s, got %v", cfg.InferenceTimeoutDuration())
	}

	if cfg.IngestionTimeoutDuration() != 120*time.Second {
		t.Errorf("Expected default ingestion timeout 120s, got %v", cfg.IngestionTimeoutDuration())
	}
}

func TestConfig_ObservabilityDefaults(t *testing.T) {
	os.Setenv("GEMINI_API_KEY", "test-gemini-key")
	// Clear LOG_LEVEL to ensure we get the default
	os.Unsetenv("LOG_LEVEL")
	defer os.Unsetenv("GEMINI_API_KEY")

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
