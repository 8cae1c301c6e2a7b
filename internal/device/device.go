// Package device binds the audio interfaces to the machine's default
// microphone (malgo) and speaker (oto).
package device

import (
	"context"
	"time"

	"github.com/loansight/assistant/internal/audio"
)

// Local opens the default input and output devices
type Local struct {
	// CaptureBufferSize is the capture ring capacity in bytes
	CaptureBufferSize int
	// PlaybackLatency is the buffer size of the shared output device
	PlaybackLatency time.Duration
}

// NewLocal creates a device opener
func NewLocal(captureBufferSize int) *Local {
	return &Local{
		CaptureBufferSize: captureBufferSize,
		PlaybackLatency:   100 * time.Millisecond,
	}
}

// OpenMicrophone starts capture on the default input device
func (l *Local) OpenMicrophone(ctx context.Context, sampleRate, frameSize int, onFrame func(audio.Frame)) (audio.Microphone, error) {
	mic, err := openMicrophone(ctx, sampleRate, frameSize, l.CaptureBufferSize, onFrame)
	if err != nil {
		return nil, err
	}
	return mic, nil
}

// OpenSpeaker starts a player on the default output device
func (l *Local) OpenSpeaker(sampleRate int) (audio.Speaker, error) {
	speaker, err := openSpeaker(sampleRate, l.PlaybackLatency)
	if err != nil {
		return nil, err
	}
	return speaker, nil
}

var _ audio.Devices = (*Local)(nil)
