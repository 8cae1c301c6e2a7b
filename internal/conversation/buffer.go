package conversation

import (
	"strings"
)

// StreamingBuffer accumulates partial transcript fragments for the current,
// uncommitted turn. Not safe for concurrent use.
type StreamingBuffer struct {
	sb strings.Builder
}

// Append adds a fragment and returns the accumulated text.
// Fragments are concatenated verbatim in arrival order.
func (b *StreamingBuffer) Append(fragment string) string {
	b.sb.WriteString(fragment)
	return b.sb.String()
}

// String returns the accumulated text
func (b *StreamingBuffer) String() string {
	return b.sb.String()
}

// Blank reports whether the buffer holds only whitespace
func (b *StreamingBuffer) Blank() bool {
	return strings.TrimSpace(b.sb.String()) == ""
}

// Len returns the accumulated length in bytes
func (b *StreamingBuffer) Len() int {
	return b.sb.Len()
}

// Reset empties the buffer
func (b *StreamingBuffer) Reset() {
	b.sb.Reset()
}
