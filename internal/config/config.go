package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration for the assistant service
type Config struct {
	// Server configuration
	Port string `envconfig:"PORT" default:"8090"`

	// Optional gRPC health endpoint port; empty disables it
	GRPCHealthPort string `envconfig:"GRPC_HEALTH_PORT" default:""`

	// Gemini API configuration
	GeminiAPIKey string `envconfig:"GEMINI_API_KEY" required:"true"`
	LiveModel    string `envconfig:"LIVE_MODEL" default:"gemini-2.5-flash-native-audio-preview-09-2025"`
	TextModel    string `envconfig:"TEXT_MODEL" default:"gemini-2.5-flash"`
	VoiceName    string `envconfig:"VOICE_NAME" default:"Kore"` // Prebuilt voice profile for live output

	// Audio device configuration. Capture and playback rates are fixed independently:
	// the microphone is opened at the rate the live endpoint accepts, the speaker at the
	// rate it produces.
	InputSampleRate  int `envconfig:"INPUT_SAMPLE_RATE" default:"16000"`
	OutputSampleRate int `envconfig:"OUTPUT_SAMPLE_RATE" default:"24000"`
	CaptureFrameSize int `envconfig:"CAPTURE_FRAME_SIZE" default:"4096"` // Samples per transmitted frame
	AudioBufferSize  int `envconfig:"AUDIO_BUFFER_SIZE" default:"65536"` // Capture ring buffer size in bytes

	// Speech activity meter
	VADEnergyThreshold float64 `envconfig:"VAD_ENERGY_THRESHOLD" default:"500.0"`
	VADSilenceFrames   int     `envconfig:"VAD_SILENCE_FRAMES" default:"3"`

	// Document ingestion backend
	IngestionURL     string `envconfig:"INGESTION_URL" default:"http://localhost:8000"`
	IngestionTimeout int    `envconfig:"INGESTION_TIMEOUT" default:"120"` // seconds

	// Text inference
	InferenceTimeout   int  `envconfig:"INFERENCE_TIMEOUT" default:"60"`   // seconds
	InferenceRateLimit int  `envconfig:"INFERENCE_RATE_LIMIT" default:"5"` // requests per second
	ActionCacheTTL     int  `envconfig:"ACTION_CACHE_TTL" default:"600"`   // seconds to keep synthesized read-aloud audio
	SummarizeOnStop    bool `envconfig:"SUMMARIZE_ON_STOP" default:"true"` // Summarize the conversation when a voice session stops

	// Read-aloud (Deepgram Aura). Optional; read-aloud is disabled without a key.
	DeepgramAPIKey   string `envconfig:"DEEPGRAM_API_KEY" default:""`
	DeepgramTTSModel string `envconfig:"DEEPGRAM_TTS_MODEL" default:"aura-asteria-en"`

	// Resilience configuration
	CircuitBreakerMaxFailures  int `envconfig:"CIRCUIT_BREAKER_MAX_FAILURES" default:"5"`   // Failures before opening circuit
	CircuitBreakerResetTimeout int `envconfig:"CIRCUIT_BREAKER_RESET_TIMEOUT" default:"30"` // Seconds before attempting recovery
	RetryMaxAttempts           int `envconfig:"RETRY_MAX_ATTEMPTS" default:"3"`             // Maximum retry attempts
	RetryInitialBackoff        int `envconfig:"RETRY_INITIAL_BACKOFF" default:"100"`        // Initial backoff in milliseconds

	// Observability configuration
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`       // Log level: debug, info, warn, error
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`     // Pretty print logs (for development)
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"` // Enable Prometheus metrics
}

// Load reads configuration from environment variables
// It first attempts to load from .env file if it exists, then from environment
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
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

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if c.GeminiAPIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is required")
	}
	if c.InputSampleRate <= 0 || c.OutputSampleRate <= 0 {
		return fmt.Errorf("sample rates must be positive (input=%d, output=%d)", c.InputSampleRate, c.OutputSampleRate)
	}
	if c.CaptureFrameSize <= 0 {
		return fmt.Errorf("CAPTURE_FRAME_SIZE must be positive")
	}
	// The capture ring must hold at least two frames of 16-bit samples
	if c.AudioBufferSize < c.CaptureFrameSize*4 {
		return fmt.Errorf("AUDIO_BUFFER_SIZE (%d) must hold at least two capture frames (%d bytes)", c.AudioBufferSize, c.CaptureFrameSize*4)
	}
	return nil
}

// ReadAloudEnabled reports whether a TTS provider is configured
func (c *Config) ReadAloudEnabled() bool {
	return c.DeepgramAPIKey != ""
}

// InferenceTimeoutDuration returns the text inference timeout
func (c *Config) InferenceTimeoutDuration() time.Duration {
	return time.Duration(c.InferenceTimeout) * time.Second
}

// IngestionTimeoutDuration returns the ingestion request timeout
func (c *Config) IngestionTimeoutDuration() time.Duration {
	return time.Duration(c.IngestionTimeout) * time.Second
}

// GetEnv returns the value of an environment variable or a default value
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
