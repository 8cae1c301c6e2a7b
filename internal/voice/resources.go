package voice

import (
	"context"
	"fmt"
	"sync"

	"github.com/loansight/assistant/internal/audio"
	"github.com/loansight/assistant/internal/inference"
)

// outbound is one message for the live session: an audio frame or a typed turn
type outbound struct {
	audio []byte
	text  string
}

// outboundQueue holds messages for the send pump. push never blocks, so a
// stalled transport delays frames instead of stalling the session goroutine.
type outboundQueue struct {
	mu    sync.Mutex
	items []outbound
	ready chan struct{}
}

func newOutboundQueue() *outboundQueue {
	return &outboundQueue{ready: make(chan struct{}, 1)}
}

func (q *outboundQueue) push(m outbound) {
	q.mu.Lock()
	q.items = append(q.items, m)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// take removes and returns everything queued so far
func (q *outboundQueue) take() []outbound {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	return items
}

// resources is everything one session owns. It is built by the connection
// attempt and released exactly once by release; every handle is nil after release.
type resources struct {
	gen    uint64
	ctx    context.Context
	cancel context.CancelFunc

	mic       audio.Microphone
	speaker   audio.Speaker
	scheduler *audio.Scheduler
	session   inference.LiveSession
	out       *outboundQueue

	// first terminal error from either pump
	fault chan any

	// receive and send pumps
	wg sync.WaitGroup
}

// report records why a pump ended. Only the first report is kept.
func (r *resources) report(ev any) {
	select {
	case r.fault <- ev:
	default:
	}
}

// release stops capture, closes the live session, waits for the pumps and
// closes playback, in that order
func (r *resources) release() []error {
	var errs []error
	if r.cancel != nil {
		r.cancel()
	}

	if r.mic != nil {
		if err := r.mic.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close microphone: %w", err))
		}
		r.mic = nil
	}

	if r.session != nil {
		if err := r.session.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close live session: %w", err))
		}
		r.session = nil
	}

	r.wg.Wait()

	if r.speaker != nil {
		if err := r.speaker.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close speaker: %w", err))
		}
		r.speaker = nil
	}
	r.scheduler = nil
	return errs
}

// attempt is an in-flight connection. done is closed once res and err are final.
type attempt struct {
	gen    uint64
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	res *resources
	err error
}
