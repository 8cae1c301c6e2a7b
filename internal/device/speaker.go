package device

import (
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/loansight/assistant/internal/audio"
)

// timeline is a pull-model PCM source whose clock is the number of samples
// handed to the device. Scheduled samples are placed at absolute offsets on
// that clock; gaps play as silence.
type timeline struct {
	mu         sync.Mutex
	sampleRate int
	pos        int64   // samples consumed so far
	pending    []int16 // pending[0] plays at pos
	closed     bool
}

func newTimeline(sampleRate int) *timeline {
	return &timeline{sampleRate: sampleRate}
}

func (t *timeline) now() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return audio.Duration(int(t.pos), t.sampleRate)
}

func (t *timeline) schedule(at time.Duration, samples []int16) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return fmt.Errorf("speaker closed")
	}

	off := audio.SampleOffset(at, t.sampleRate) - t.pos
	if off < 0 {
		// the head of a late chunk is already in the past
		if -off >= int64(len(samples)) {
			return nil
		}
		samples = samples[-off:]
		off = 0
	}

	end := int(off) + len(samples)
	if end > len(t.pending) {
		t.pending = append(t.pending, make([]int16, end-len(t.pending))...)
	}
	copy(t.pending[off:], samples)
	return nil
}

func (t *timeline) flush() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending = nil
}

func (t *timeline) close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	t.pending = nil
}

// Read implements io.Reader for oto.Player. It always fills p, padding with
// silence, so the clock keeps moving while nothing is scheduled.
func (t *timeline) Read(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := len(p) / 2
	k := min(n, len(t.pending))
	copy(p, audio.EncodePCM16(t.pending[:k]))
	clear(p[k*2 : n*2])
	t.pending = t.pending[k:]
	t.pos += int64(n)
	return n * 2, nil
}

var (
	otoOnce sync.Once
	otoCtx  *oto.Context
	otoRate int
	otoErr  error
)

// sharedContext returns the process-wide playback context. oto allows only one
// per process, so its rate is fixed by the first caller.
func sharedContext(sampleRate int, latency time.Duration) (*oto.Context, int, error) {
	otoOnce.Do(func() {
		ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
			SampleRate:   sampleRate,
			ChannelCount: 1,
			Format:       oto.FormatSignedInt16LE,
			BufferSize:   latency,
		})
		if err != nil {
			otoErr = fmt.Errorf("failed to init speaker: %w", err)
			return
		}
		<-ready
		otoCtx, otoRate = ctx, sampleRate
	})
	return otoCtx, otoRate, otoErr
}

// Speaker plays scheduled PCM through the default output device
type Speaker struct {
	timeline   *timeline
	player     *oto.Player
	sampleRate int // rate of the samples handed to Schedule

	closeOnce sync.Once
}

func openSpeaker(sampleRate int, latency time.Duration) (*Speaker, error) {
	ctx, deviceRate, err := sharedContext(sampleRate, latency)
	if err != nil {
		return nil, err
	}

	tl := newTimeline(deviceRate)
	player := ctx.NewPlayer(tl)
	player.Play()

	return &Speaker{
		timeline:   tl,
		player:     player,
		sampleRate: sampleRate,
	}, nil
}

// Now returns the playback clock
func (s *Speaker) Now() time.Duration {
	return s.timeline.now()
}

// Schedule queues samples at the given clock position, resampling when the
// shared device runs at a different rate
func (s *Speaker) Schedule(at time.Duration, samples []int16) error {
	if s.sampleRate != s.timeline.sampleRate {
		samples = audio.Resample(samples, s.sampleRate, s.timeline.sampleRate)
	}
	return s.timeline.schedule(at, samples)
}

// Flush drops everything not yet handed to the device
func (s *Speaker) Flush() {
	s.timeline.flush()
}

// Close stops playback. Safe to call more than once.
func (s *Speaker) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.timeline.close()
		s.player.Pause()
		if closeErr := s.player.Close(); closeErr != nil {
			err = fmt.Errorf("failed to close speaker: %w", closeErr)
		}
	})
	return err
}
