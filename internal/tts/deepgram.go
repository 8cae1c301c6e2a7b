package tts

import (
	"context"
	"fmt"
	"strings"

	api "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/speak/v1/rest"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	speak "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/speak"

	"github.com/loansight/assistant/internal/observability"
	"github.com/loansight/assistant/internal/resilience"
)

// DeepgramClient synthesizes speech with Deepgram Aura over the REST speak API
type DeepgramClient struct {
	client         *api.Client
	model          string
	sampleRate     int
	circuitBreaker *resilience.CircuitBreaker
}

// NewDeepgramClient creates a speak client producing raw linear16 PCM at sampleRate
func NewDeepgramClient(apiKey, model string, sampleRate int, breaker *resilience.CircuitBreaker) *DeepgramClient {
	c := speak.NewREST(apiKey, &interfaces.ClientOptions{})

	breaker.OnStateChange(func(name string, state resilience.CircuitState) {
		observability.UpdateCircuitBreakerState(name, int(state))
	})

	return &DeepgramClient{
		client:         api.New(c),
		model:          model,
		sampleRate:     sampleRate,
		circuitBreaker: breaker,
	}
}

// SampleRate returns the rate of the synthesized PCM
func (d *DeepgramClient) SampleRate() int {
	return d.sampleRate
}

// Synthesize converts text to 16-bit little-endian mono PCM
func (d *DeepgramClient) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}

	options := &interfaces.SpeakOptions{
		Model:      d.model,
		Encoding:   "linear16",
		SampleRate: d.sampleRate,
		Container:  "none",
	}

	var buf interfaces.RawResponse
	err := d.circuitBreaker.Call(func() error {
		if _, err := d.client.ToStream(ctx, text, options, &buf); err != nil {
			return fmt.Errorf("deepgram speak request failed: %w", err)
		}
		return nil
	})
	observability.RecordSynthesis(err)
	if err != nil {
		observability.RecordError("synthesis_failed", "tts")
		return nil, err
	}

	pcm := buf.Bytes()
	if len(pcm) == 0 {
		return nil, fmt.Errorf("deepgram returned empty audio")
	}
	return pcm, nil
}

// HealthCheck reports whether synthesis is currently allowed
func (d *DeepgramClient) HealthCheck(ctx context.Context) (bool, error) {
	if d.circuitBreaker.GetState() == resilience.StateOpen {
		return false, resilience.ErrCircuitOpen
	}
	return true, nil
}
