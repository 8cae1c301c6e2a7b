package device

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"
	"github.com/loansight/assistant/internal/audio"
	"github.com/loansight/assistant/internal/observability"
	"github.com/rs/zerolog"
)

// capture turns raw device callbacks into fixed-size frames stamped with the
// current enabled flag. It runs on the capture thread only.
type capture struct {
	assembler *audio.FrameAssembler
	enabled   atomic.Bool
	onFrame   func(audio.Frame)
}

func newCapture(frameSize, bufferSize int, onFrame func(audio.Frame)) *capture {
	c := &capture{
		assembler: audio.NewFrameAssembler(frameSize, bufferSize),
		onFrame:   onFrame,
	}
	c.enabled.Store(true)
	return c
}

func (c *capture) push(pcm []byte) {
	c.assembler.Push(pcm, func(samples []int16) {
		c.onFrame(audio.Frame{Samples: samples, Enabled: c.enabled.Load()})
	})
}

// Microphone captures mono 16-bit PCM from the default input device
type Microphone struct {
	capture *capture
	mctx    *malgo.AllocatedContext
	device  *malgo.Device
	logger  zerolog.Logger

	closeOnce sync.Once
}

func openMicrophone(ctx context.Context, sampleRate, frameSize, bufferSize int, onFrame func(audio.Frame)) (*Microphone, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{ThreadPriority: malgo.ThreadPriorityRealtime}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to init audio context: %w", err)
	}

	m := &Microphone{
		capture: newCapture(frameSize, bufferSize, onFrame),
		mctx:    mctx,
		logger:  observability.WithComponent("microphone"),
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatS16
	cfg.Capture.Channels = 1
	cfg.SampleRate = uint32(sampleRate)
	cfg.PeriodSizeInMilliseconds = 20

	device, err := malgo.InitDevice(mctx.Context, cfg, malgo.DeviceCallbacks{
		Data: func(_, in []byte, _ uint32) {
			m.capture.push(in)
		},
	})
	if err != nil {
		m.releaseContext()
		return nil, fmt.Errorf("failed to open microphone: %w", err)
	}
	m.device = device

	if err := device.Start(); err != nil {
		device.Uninit()
		m.releaseContext()
		return nil, fmt.Errorf("failed to start microphone: %w", err)
	}

	m.logger.Debug().
		Int("sample_rate", sampleRate).
		Int("frame_size", frameSize).
		Msg("Microphone started")
	return m, nil
}

// SetEnabled toggles whether delivered frames are marked for transmission
func (m *Microphone) SetEnabled(enabled bool) {
	m.capture.enabled.Store(enabled)
}

// Close stops capture and releases the device. Safe to call more than once.
func (m *Microphone) Close() error {
	var err error
	m.closeOnce.Do(func() {
		if m.device != nil {
			if stopErr := m.device.Stop(); stopErr != nil {
				err = fmt.Errorf("failed to stop microphone: %w", stopErr)
			}
			m.device.Uninit()
		}
		m.releaseContext()

		if dropped := m.capture.assembler.Dropped(); dropped > 0 {
			m.logger.Warn().Int("dropped_bytes", dropped).Msg("Capture ring overflowed")
		}
		m.logger.Debug().Msg("Microphone closed")
	})
	return err
}

func (m *Microphone) releaseContext() {
	if m.mctx == nil {
		return
	}
	_ = m.mctx.Uninit()
	m.mctx.Free()
	m.mctx = nil
}
