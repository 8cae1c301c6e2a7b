package tts

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/loansight/assistant/internal/audio"
	"github.com/loansight/assistant/internal/observability"
)

// ErrNarratorClosed is returned by Speak after Close
var ErrNarratorClosed = errors.New("narrator closed")

// Narrator plays synthesized speech on its own speaker. Only one narration
// plays at a time; starting another cancels the current one.
type Narrator struct {
	devices audio.Devices
	synth   Synthesizer
	logger  zerolog.Logger

	// Tail keeps the speaker open past the audio length so the device buffer drains
	Tail time.Duration

	mu      sync.Mutex
	current *narration
	closed  bool
}

type narration struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// NewNarrator creates a narrator speaking through devices
func NewNarrator(devices audio.Devices, synth Synthesizer) *Narrator {
	return &Narrator{
		devices: devices,
		synth:   synth,
		logger:  observability.WithComponent("narrator"),
		Tail:    200 * time.Millisecond,
	}
}

// Speak synthesizes text and starts playing it. It returns once playback has
// been scheduled, with the length of the audio.
func (n *Narrator) Speak(ctx context.Context, text string) (time.Duration, error) {
	pcm, err := n.synth.Synthesize(ctx, text)
	if err != nil {
		return 0, err
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return 0, ErrNarratorClosed
	}
	n.stopLocked()

	rate := n.synth.SampleRate()
	speaker, err := n.devices.OpenSpeaker(rate)
	if err != nil {
		return 0, fmt.Errorf("failed to open speaker: %w", err)
	}

	scheduler := audio.NewScheduler(speaker, rate)
	if _, err := scheduler.Enqueue(pcm); err != nil {
		_ = speaker.Close()
		return 0, err
	}
	length := audio.Duration(len(pcm)/2, rate)

	pctx, cancel := context.WithCancel(context.Background())
	nar := &narration{cancel: cancel, done: make(chan struct{})}
	n.current = nar

	go func() {
		defer close(nar.done)

		timer := time.NewTimer(length + n.Tail)
		defer timer.Stop()

		select {
		case <-timer.C:
		case <-pctx.Done():
			speaker.Flush()
		}
		if err := speaker.Close(); err != nil {
			n.logger.Warn().Err(err).Msg("Failed to close narration speaker")
		}
	}()

	n.logger.Debug().
		Int("chars", len(text)).
		Dur("length", length).
		Msg("Reading aloud")
	return length, nil
}

// Speaking reports whether a narration is playing
func (n *Narrator) Speaking() bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.current == nil {
		return false
	}
	select {
	case <-n.current.done:
		return false
	default:
		return true
	}
}

// Stop cancels the current narration and waits for its speaker to close
func (n *Narrator) Stop() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.stopLocked()
}

func (n *Narrator) stopLocked() {
	if n.current == nil {
		return
	}
	n.current.cancel()
	<-n.current.done
	n.current = nil
}

// Close stops playback; later Speak calls fail
func (n *Narrator) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.stopLocked()
	n.closed = true
}
