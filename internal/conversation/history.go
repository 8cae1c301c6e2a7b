package conversation

import (
	"sync"
)

// History is the append-only, ordered message log shared by the voice and
// text channels
type History struct {
	mu        sync.RWMutex
	messages  []Message
	listeners []func(Message)
}

// NewHistory creates an empty history
func NewHistory() *History {
	return &History{}
}

// Subscribe registers fn to be called after every commit, in commit order.
// fn must not call back into the history.
func (h *History) Subscribe(fn func(Message)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.listeners = append(h.listeners, fn)
}

// Commit appends a new message and notifies listeners
func (h *History) Commit(role Role, text string, mode Mode) Message {
	return h.Append(NewMessage(role, text, mode))
}

// Append appends msg as-is and notifies listeners
func (h *History) Append(msg Message) Message {
	h.mu.Lock()
	h.messages = append(h.messages, msg)
	// under the lock: observers see commits in order
	for _, fn := range h.listeners {
		fn(msg)
	}
	h.mu.Unlock()
	return msg
}

// Messages returns a copy of all messages
func (h *History) Messages() []Message {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]Message, len(h.messages))
	copy(out, h.messages)
	return out
}

// Recent returns a copy of the last n messages
func (h *History) Recent(n int) []Message {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if n <= 0 {
		return nil
	}
	start := max(len(h.messages)-n, 0)
	out := make([]Message, len(h.messages)-start)
	copy(out, h.messages[start:])
	return out
}

// Since returns a copy of the messages committed after the first n
func (h *History) Since(n int) []Message {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if n >= len(h.messages) {
		return nil
	}
	n = max(n, 0)
	out := make([]Message, len(h.messages)-n)
	copy(out, h.messages[n:])
	return out
}

// Len returns the number of committed messages
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.messages)
}
