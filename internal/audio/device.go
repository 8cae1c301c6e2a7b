package audio

import (
	"context"
	"time"
)

// Frame is one fixed-size block of captured mono PCM. Enabled is false while
// the capture track is muted; such frames are still delivered but must not
// be transmitted.
type Frame struct {
	Samples []int16
	Enabled bool
}

// Microphone delivers captured frames until closed
type Microphone interface {
	// SetEnabled toggles the capture track without stopping the device
	SetEnabled(enabled bool)
	Close() error
}

// Speaker plays PCM at explicit offsets on its own monotonic clock
type Speaker interface {
	// Now returns the current position of the device clock
	Now() time.Duration
	// Schedule queues samples to start playing at the given clock position
	Schedule(at time.Duration, samples []int16) error
	// Flush drops everything scheduled but not yet played
	Flush()
	Close() error
}

// Devices opens capture and playback endpoints
type Devices interface {
	// OpenMicrophone starts capture at sampleRate and calls onFrame for every
	// frameSize samples. onFrame runs on the capture thread and must not block.
	OpenMicrophone(ctx context.Context, sampleRate, frameSize int, onFrame func(Frame)) (Microphone, error)
	OpenSpeaker(sampleRate int) (Speaker, error)
}
