// Package tts speaks document selections aloud through the local speaker.
package tts

import (
	"context"
	"errors"
)

// ErrEmptyText is returned when there is nothing to speak
var ErrEmptyText = errors.New("no text to speak")

// Synthesizer converts text to 16-bit little-endian mono PCM
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
	// SampleRate returns the rate of the produced PCM
	SampleRate() int
}
