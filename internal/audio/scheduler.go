package audio

import (
	"fmt"
	"time"
)

// Scheduler places decoded chunks back to back on a speaker clock.
// Each chunk starts at max(now, next) and advances next by its duration,
// so chunks never overlap and gaps only occur when the stream underruns.
// The cursor is kept in samples; durations are only used at the speaker boundary.
// Not safe for concurrent use.
type Scheduler struct {
	speaker    Speaker
	sampleRate int
	next       int64 // samples
}

// NewScheduler creates a scheduler for a speaker running at sampleRate
func NewScheduler(speaker Speaker, sampleRate int) *Scheduler {
	return &Scheduler{
		speaker:    speaker,
		sampleRate: sampleRate,
	}
}

// Enqueue decodes a 16-bit little-endian PCM chunk and schedules it.
// It returns the start offset used.
func (s *Scheduler) Enqueue(pcm []byte) (time.Duration, error) {
	return s.EnqueueSamples(DecodePCM16(pcm))
}

// EnqueueSamples schedules already decoded samples
func (s *Scheduler) EnqueueSamples(samples []int16) (time.Duration, error) {
	if len(samples) == 0 {
		return s.Next(), nil
	}

	start := max(s.clock(), s.next)
	at := Duration(int(start), s.sampleRate)
	if err := s.speaker.Schedule(at, samples); err != nil {
		return 0, fmt.Errorf("failed to schedule playback: %w", err)
	}
	s.next = start + int64(len(samples))
	return at, nil
}

// Interrupt drops pending playback and resets the cursor to the speaker clock
func (s *Scheduler) Interrupt() {
	s.speaker.Flush()
	s.next = s.clock()
}

// Next returns the offset at which the next chunk would start at the earliest
func (s *Scheduler) Next() time.Duration {
	return Duration(int(s.next), s.sampleRate)
}

func (s *Scheduler) clock() int64 {
	return SampleOffset(s.speaker.Now(), s.sampleRate)
}
