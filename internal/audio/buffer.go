package audio

import (
	"sync"
)

// RingBuffer is a thread-safe byte ring used to collect captured PCM
// between device callbacks and frame emission
type RingBuffer struct {
	buffer []byte
	size   int
	read   int
	write  int
	mu     sync.RWMutex
}

// NewRingBuffer creates a new ring buffer with the specified size
func NewRingBuffer(size int) *RingBuffer {
	return &RingBuffer{
		buffer: make([]byte, size),
		size:   size,
	}
}

// Write copies as much of data as fits and returns the number of bytes written
func (rb *RingBuffer) Write(data []byte) int {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	n := min(len(data), rb.space())
	for written := 0; written < n; {
		end := rb.size
		if rb.read > rb.write {
			end = rb.read - 1
		} else if rb.read == 0 {
			end = rb.size - 1
		}
		c := copy(rb.buffer[rb.write:end], data[written:n])
		written += c
		rb.write = (rb.write + c) % rb.size
	}
	return n
}

// Read copies up to len(data) buffered bytes into data and returns the count
func (rb *RingBuffer) Read(data []byte) int {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	n := min(len(data), rb.available())
	for read := 0; read < n; {
		end := rb.size
		if rb.write > rb.read {
			end = rb.write
		}
		c := copy(data[read:n], rb.buffer[rb.read:end])
		read += c
		rb.read = (rb.read + c) % rb.size
	}
	return n
}

// Available returns the number of bytes available to read
func (rb *RingBuffer) Available() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.available()
}

// Space returns the number of bytes available to write
func (rb *RingBuffer) Space() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.space()
}

func (rb *RingBuffer) available() int {
	if rb.write >= rb.read {
		return rb.write - rb.read
	}
	return rb.size - rb.read + rb.write
}

// one slot stays empty to tell full from empty
func (rb *RingBuffer) space() int {
	return rb.size - rb.available() - 1
}

// Clear drops all buffered bytes
func (rb *RingBuffer) Clear() {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.read = 0
	rb.write = 0
}

// IsEmpty returns true if the buffer is empty
func (rb *RingBuffer) IsEmpty() bool {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.read == rb.write
}

// IsFull returns true if the buffer is full
func (rb *RingBuffer) IsFull() bool {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return (rb.write+1)%rb.size == rb.read
}

// FrameAssembler turns arbitrarily sized capture callbacks into fixed-size
// frames of 16-bit samples
type FrameAssembler struct {
	ring      *RingBuffer
	frameSize int
	scratch   []byte
	dropped   int
}

// NewFrameAssembler creates an assembler emitting frames of frameSize samples.
// bufferSize is the ring capacity in bytes.
func NewFrameAssembler(frameSize, bufferSize int) *FrameAssembler {
	if bufferSize < frameSize*4 {
		bufferSize = frameSize * 4
	}
	return &FrameAssembler{
		ring:      NewRingBuffer(bufferSize),
		frameSize: frameSize,
		scratch:   make([]byte, frameSize*2),
	}
}

// Push appends raw little-endian PCM and calls emit once per complete frame.
// Bytes that do not fit are dropped and counted.
func (f *FrameAssembler) Push(pcm []byte, emit func(samples []int16)) {
	for len(pcm) > 0 {
		n := f.ring.Write(pcm)
		pcm = pcm[n:]
		f.drain(emit)
		if n == 0 {
			f.dropped += len(pcm)
			return
		}
	}
}

func (f *FrameAssembler) drain(emit func(samples []int16)) {
	for f.ring.Available() >= len(f.scratch) {
		f.ring.Read(f.scratch)
		emit(DecodePCM16(f.scratch))
	}
}

// Dropped returns the number of bytes discarded because the ring was full
func (f *FrameAssembler) Dropped() int {
	return f.dropped
}

// Reset discards any partial frame
func (f *FrameAssembler) Reset() {
	f.ring.Clear()
}
