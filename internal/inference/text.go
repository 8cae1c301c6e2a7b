package inference

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/loansight/assistant/internal/observability"
	"github.com/loansight/assistant/internal/resilience"
)

// ErrEmptyPrompt is returned for a request without a prompt
var ErrEmptyPrompt = errors.New("prompt cannot be empty")

// Kinds label requests in logs and metrics
const (
	KindChat      = "chat"
	KindSummary   = "summary"
	KindExplain   = "explain"
	KindTranslate = "translate"
)

// Request is one non-streaming completion
type Request struct {
	Kind   string
	System string
	Prompt string
}

// Completer produces a text reply for a prompt
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// generator is the subset of *genai.Models used for completions
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// TextConfig configures a TextClient
type TextConfig struct {
	Model     string
	Timeout   time.Duration
	RateLimit int // requests per second, 0 disables throttling
	Retry     *resilience.RetryConfig
}

// TextClient completes prompts with a Gemini text model
type TextClient struct {
	models  generator
	config  TextConfig
	limiter *rate.Limiter
	breaker *resilience.CircuitBreaker
	logger  zerolog.Logger
}

// NewClient creates the shared genai client for the Gemini API
func NewClient(ctx context.Context, apiKey string) (*genai.Client, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize genai client: %w", err)
	}
	return client, nil
}

// NewTextClient wraps a genai client's models service
func NewTextClient(client *genai.Client, cfg TextConfig, breaker *resilience.CircuitBreaker) *TextClient {
	return newTextClient(client.Models, cfg, breaker)
}

func newTextClient(models generator, cfg TextConfig, breaker *resilience.CircuitBreaker) *TextClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	if breaker == nil {
		breaker = resilience.NewCircuitBreaker("inference", 5, 30*time.Second)
	}
	breaker.OnStateChange(func(name string, state resilience.CircuitState) {
		observability.UpdateCircuitBreakerState(name, int(state))
	})

	return &TextClient{
		models:  models,
		config:  cfg,
		limiter: rate.NewLimiter(limit, max(cfg.RateLimit, 1)),
		breaker: breaker,
		logger:  observability.WithComponent("inference"),
	}
}

// Complete sends the prompt, throttled and guarded by the circuit breaker
func (c *TextClient) Complete(ctx context.Context, req Request) (string, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return "", ErrEmptyPrompt
	}
	kind := req.Kind
	if kind == "" {
		kind = KindChat
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	var config *genai.GenerateContentConfig
	if req.System != "" {
		config = &genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(req.System, genai.RoleUser),
		}
	}

	started := time.Now()
	var reply string
	err := c.breaker.Call(func() error {
		return resilience.Retry(ctx, func(ctx context.Context) error {
			resp, err := c.models.GenerateContent(ctx, c.config.Model, genai.Text(req.Prompt), config)
			if err != nil {
				return classify(err)
			}
			reply = resp.Text()
			return nil
		}, c.config.Retry, resilience.IsRetryableNetworkError)
	})
	observability.RecordInference(kind, started, err)

	if err != nil {
		c.logger.Error().Err(err).Str("kind", kind).Str("model", c.config.Model).Msg("Completion failed")
		return "", fmt.Errorf("%s completion failed: %w", kind, err)
	}

	c.logger.Debug().
		Str("kind", kind).
		Int("prompt_chars", len(req.Prompt)).
		Int("reply_chars", len(reply)).
		Dur("took", time.Since(started)).
		Msg("Completion finished")
	return reply, nil
}

// HealthCheck reports whether the circuit to the model is closed or probing
func (c *TextClient) HealthCheck(ctx context.Context) (bool, error) {
	if state := c.breaker.GetState(); state == resilience.StateOpen {
		return false, fmt.Errorf("inference circuit is %s", state)
	}
	return true, nil
}

// classify marks provider errors worth retrying
func classify(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Code >= http.StatusInternalServerError || apiErr.Code == http.StatusTooManyRequests {
			return resilience.NewRetryableError(err)
		}
	}
	return err
}
