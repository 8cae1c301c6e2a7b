package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/loansight/assistant/internal/assistant"
	"github.com/loansight/assistant/internal/audio"
	"github.com/loansight/assistant/internal/config"
	"github.com/loansight/assistant/internal/conversation"
	"github.com/loansight/assistant/internal/device"
	"github.com/loansight/assistant/internal/document"
	"github.com/loansight/assistant/internal/inference"
	"github.com/loansight/assistant/internal/observability"
	"github.com/loansight/assistant/internal/resilience"
	"github.com/loansight/assistant/internal/server"
	"github.com/loansight/assistant/internal/tts"
	"github.com/loansight/assistant/internal/voice"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Use fmt for fatal errors before logger is initialized
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize structured logger
	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := observability.GetLogger()

	logger.Info().
		Str("port", cfg.Port).
		Str("live_model", cfg.LiveModel).
		Str("text_model", cfg.TextModel).
		Str("ingestion_url", cfg.IngestionURL).
		Str("log_level", cfg.LogLevel).
		Bool("metrics_enabled", cfg.MetricsEnabled).
		Bool("read_aloud", cfg.ReadAloudEnabled()).
		Msg("LoanSight assistant starting")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	resetTimeout := time.Duration(cfg.CircuitBreakerResetTimeout) * time.Second
	retry := resilience.NewRetryConfig(cfg.RetryMaxAttempts, time.Duration(cfg.RetryInitialBackoff)*time.Millisecond)

	// Model clients
	genaiClient, err := inference.NewClient(ctx, cfg.GeminiAPIKey)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create Gemini client")
	}
	textClient := inference.NewTextClient(genaiClient, inference.TextConfig{
		Model:     cfg.TextModel,
		Timeout:   cfg.InferenceTimeoutDuration(),
		RateLimit: cfg.InferenceRateLimit,
		Retry:     retry,
	}, resilience.NewCircuitBreaker("inference", cfg.CircuitBreakerMaxFailures, resetTimeout))
	live := inference.NewGeminiLive(genaiClient, cfg.LiveModel, cfg.VoiceName, cfg.InputSampleRate)

	// Documents
	store := document.NewStore()
	ingestion := document.NewIngestionClient(cfg.IngestionURL, cfg.IngestionTimeoutDuration(),
		resilience.NewCircuitBreaker("ingestion", cfg.CircuitBreakerMaxFailures, resetTimeout), retry)
	uploader := document.NewUploader(store, ingestion, 0)

	// Conversation
	history := conversation.NewHistory()
	history.Subscribe(func(m conversation.Message) {
		observability.RecordMessage(string(m.Role), string(m.Mode))
	})

	devices := device.NewLocal(cfg.AudioBufferSize)
	orchestrator := voice.New(voice.Config{
		InputSampleRate:  cfg.InputSampleRate,
		OutputSampleRate: cfg.OutputSampleRate,
		FrameSize:        cfg.CaptureFrameSize,
		Meter: &audio.MeterConfig{
			EnergyThreshold: cfg.VADEnergyThreshold,
			SilenceFrames:   cfg.VADSilenceFrames,
		},
		SummarizeOnStop: cfg.SummarizeOnStop,
	}, devices, live, textClient, history)

	checks := []observability.DependencyCheck{
		{Name: "inference", Check: textClient.HealthCheck},
		{Name: "ingestion", Check: ingestion.HealthCheck},
	}

	// Read aloud is optional
	var reader assistant.Reader
	var narrator *tts.Narrator
	if cfg.ReadAloudEnabled() {
		speech := tts.NewDeepgramClient(cfg.DeepgramAPIKey, cfg.DeepgramTTSModel, cfg.OutputSampleRate,
			resilience.NewCircuitBreaker("tts", cfg.CircuitBreakerMaxFailures, resetTimeout))
		cached := tts.NewCachedSynthesizer(speech, time.Duration(cfg.ActionCacheTTL)*time.Second)
		narrator = tts.NewNarrator(devices, cached)
		reader = narrator
		checks = append(checks, observability.DependencyCheck{Name: "tts", Check: speech.HealthCheck})
	}

	helper := assistant.New(store, orchestrator, history, reader)

	api := server.New(server.Deps{
		Store:         store,
		Uploads:       uploader,
		History:       history,
		Assistant:     helper,
		Voice:         orchestrator,
		Checks:        checks,
		LevelInterval: 100 * time.Millisecond,
	})

	// Create HTTP server
	mux := http.NewServeMux()
	mux.Handle("/", api.Handler())

	// Metrics endpoint (Prometheus)
	if cfg.MetricsEnabled {
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info().Msg("Prometheus metrics enabled at /metrics")
	}

	// Create HTTP server with timeouts. Chat and summary requests wait on the
	// text model, so the write timeout follows the inference timeout.
	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      mux,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: cfg.InferenceTimeoutDuration() + 15*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("stream", fmt.Sprintf("ws://localhost:%s/ws", cfg.Port)).
			Msg("Server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Optional gRPC health endpoint
	var healthServer *server.HealthServer
	if cfg.GRPCHealthPort != "" {
		lis, err := net.Listen("tcp", fmt.Sprintf(":%s", cfg.GRPCHealthPort))
		if err != nil {
			logger.Fatal().Err(err).Str("port", cfg.GRPCHealthPort).Msg("Failed to listen for gRPC health")
		}
		healthServer = server.NewHealthServer(checks, 15*time.Second)
		go func() {
			if err := healthServer.Serve(ctx, lis); err != nil {
				logger.Error().Err(err).Msg("gRPC health server stopped")
			}
		}()
	}

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Shutting down server...")

	// Release the microphone and speaker before anything else
	orchestrator.Close()
	if narrator != nil {
		narrator.Close()
	}

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if healthServer != nil {
		healthServer.Stop()
	}
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server forced to shutdown")
	}
	uploader.Close()
	cancel()

	logger.Info().Msg("Server exited gracefully")
}
