package audio

import (
	"testing"
)

func TestRingBuffer_WriteRead(t *testing.T) {
	rb := NewRingBuffer(10)

	written := rb.Write([]byte{1, 2, 3, 4, 5})
	if written != 5 {
		t.Errorf("Expected to write 5 bytes, got %d", written)
	}
	if rb.Available() != 5 {
		t.Errorf("Expected available 5, got %d", rb.Available())
	}
	if rb.Space() != 4 {
		t.Errorf("Expected space 4, got %d", rb.Space())
	}

	readBuf := make([]byte, 3)
	read := rb.Read(readBuf)
	if read != 3 {
		t.Errorf("Expected to read 3 bytes, got %d", read)
	}
	if readBuf[0] != 1 || readBuf[1] != 2 || readBuf[2] != 3 {
		t.Errorf("Read incorrect data: %v", readBuf)
	}
	if rb.Available() != 2 {
		t.Errorf("Expected available 2 after read, got %d", rb.Available())
	}
}

func TestRingBuffer_Overflow(t *testing.T) {
	rb := NewRingBuffer(5)

	// Capacity is size-1
	written := rb.Write([]byte{1, 2, 3, 4, 5, 6})
	if written != 4 {
		t.Errorf("Expected to write 4 bytes, got %d", written)
	}
	if !rb.IsFull() {
		t.Error("Expected buffer to be full")
	}
	if n := rb.Write([]byte{7}); n != 0 {
		t.Errorf("Expected to write 0 bytes into a full buffer, got %d", n)
	}
}

func TestRingBuffer_ReadEmpty(t *testing.T) {
	rb := NewRingBuffer(10)

	if !rb.IsEmpty() {
		t.Error("Expected buffer to be empty initially")
	}
	if read := rb.Read(make([]byte, 5)); read != 0 {
		t.Errorf("Expected to read 0 bytes from empty buffer, got %d", read)
	}
}

func TestRingBuffer_Clear(t *testing.T) {
	rb := NewRingBuffer(10)
	rb.Write([]byte{1, 2, 3, 4, 5})

	rb.Clear()
	if rb.Available() != 0 {
		t.Errorf("Expected available 0 after clear, got %d", rb.Available())
	}
	if !rb.IsEmpty() {
		t.Error("Expected buffer to be empty after clear")
	}
}

func TestRingBuffer_WrapAround(t *testing.T) {
	rb := NewRingBuffer(5)

	rb.Write([]byte{1, 2, 3, 4})
	rb.Read(make([]byte, 2))

	// Wraps past the end of the backing slice
	if n := rb.Write([]byte{5, 6}); n != 2 {
		t.Fatalf("Expected to write 2 bytes, got %d", n)
	}
	if rb.Available() != 4 {
		t.Errorf("Expected available 4, got %d", rb.Available())
	}

	readBuf := make([]byte, 4)
	if read := rb.Read(readBuf); read != 4 {
		t.Errorf("Expected to read 4 bytes, got %d", read)
	}
	expected := []byte{3, 4, 5, 6}
	for i := range expected {
		if readBuf[i] != expected[i] {
			t.Errorf("Expected %d at position %d, got %d", expected[i], i, readBuf[i])
		}
	}
}

func TestFrameAssembler_EmitsFixedFrames(t *testing.T) {
	fa := NewFrameAssembler(4, 64)

	var frames [][]int16
	emit := func(samples []int16) { frames = append(frames, samples) }

	// 3 samples, not yet a frame
	fa.Push(EncodePCM16([]int16{1, 2, 3}), emit)
	if len(frames) != 0 {
		t.Fatalf("Expected no frames yet, got %d", len(frames))
	}

	// 7 more samples: two complete frames, two samples left over
	fa.Push(EncodePCM16([]int16{4, 5, 6, 7, 8, 9, 10}), emit)
	if len(frames) != 2 {
		t.Fatalf("Expected 2 frames, got %d", len(frames))
	}

	want := [][]int16{{1, 2, 3, 4}, {5, 6, 7, 8}}
	for i, frame := range frames {
		if len(frame) != 4 {
			t.Errorf("Frame %d: expected 4 samples, got %d", i, len(frame))
			continue
		}
		for j := range frame {
			if frame[j] != want[i][j] {
				t.Errorf("Frame %d sample %d: expected %d, got %d", i, j, want[i][j], frame[j])
			}
		}
	}
	if fa.Dropped() != 0 {
		t.Errorf("Expected nothing dropped, got %d", fa.Dropped())
	}
}

func TestFrameAssembler_LargePush(t *testing.T) {
	// Minimum ring is two frames; a push larger than the ring must still be framed
	fa := NewFrameAssembler(4, 1)

	samples := make([]int16, 40)
	for i := range samples {
		samples[i] = int16(i)
	}

	count := 0
	fa.Push(EncodePCM16(samples), func(frame []int16) {
		if frame[0] != int16(count*4) {
			t.Errorf("Frame %d: expected first sample %d, got %d", count, count*4, frame[0])
		}
		count++
	})
	if count != 10 {
		t.Errorf("Expected 10 frames, got %d", count)
	}
}

func TestFrameAssembler_Reset(t *testing.T) {
	fa := NewFrameAssembler(4, 64)
	count := 0
	emit := func([]int16) { count++ }

	fa.Push(EncodePCM16([]int16{1, 2, 3}), emit)
	fa.Reset()
	fa.Push(EncodePCM16([]int16{4, 5, 6}), emit)
	if count != 0 {
		t.Errorf("Expected partial frame to be discarded on reset, got %d frames", count)
	}
}
