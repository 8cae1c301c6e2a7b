package voice

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/loansight/assistant/internal/audio"
	"github.com/loansight/assistant/internal/inference"
)

var errClosedConn = errors.New("use of closed network connection")

type fakeMic struct {
	mu      sync.Mutex
	onFrame func(audio.Frame)
	enabled bool
	closes  int
}

// emit delivers a frame the way the capture thread would
func (m *fakeMic) emit(samples []int16) {
	m.mu.Lock()
	fn, enabled := m.onFrame, m.enabled
	m.mu.Unlock()
	fn(audio.Frame{Samples: samples, Enabled: enabled})
}

func (m *fakeMic) SetEnabled(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = enabled
}

func (m *fakeMic) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closes++
	return nil
}

func (m *fakeMic) closeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closes
}

type scheduled struct {
	at      time.Duration
	samples int
}

type fakeSpeaker struct {
	mu        sync.Mutex
	now       time.Duration
	scheduled []scheduled
	flushes   int
	closes    int
}

func (s *fakeSpeaker) Now() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

func (s *fakeSpeaker) Schedule(at time.Duration, samples []int16) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scheduled = append(s.scheduled, scheduled{at: at, samples: len(samples)})
	return nil
}

func (s *fakeSpeaker) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushes++
}

func (s *fakeSpeaker) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	return nil
}

func (s *fakeSpeaker) setNow(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = d
}

func (s *fakeSpeaker) snapshot() ([]scheduled, int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]scheduled(nil), s.scheduled...), s.flushes, s.closes
}

type fakeDevices struct {
	mu         sync.Mutex
	micErr     error
	speakerErr error
	mics       []*fakeMic
	speakers   []*fakeSpeaker
}

func (d *fakeDevices) OpenMicrophone(ctx context.Context, sampleRate, frameSize int, onFrame func(audio.Frame)) (audio.Microphone, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.micErr != nil {
		return nil, d.micErr
	}
	m := &fakeMic{onFrame: onFrame, enabled: true}
	d.mics = append(d.mics, m)
	return m, nil
}

func (d *fakeDevices) OpenSpeaker(sampleRate int) (audio.Speaker, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.speakerErr != nil {
		return nil, d.speakerErr
	}
	s := &fakeSpeaker{}
	d.speakers = append(d.speakers, s)
	return s, nil
}

func (d *fakeDevices) mic(i int) *fakeMic {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mics[i]
}

func (d *fakeDevices) speaker(i int) *fakeSpeaker {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.speakers[i]
}

func (d *fakeDevices) counts() (mics, speakers int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.mics), len(d.speakers)
}

type fakeSession struct {
	events chan *inference.ServerEvent
	errs   chan error
	closed chan struct{}

	// stall, when set, holds every send until it is closed; sendErr is
	// returned once it opens
	stall   chan struct{}
	sendErr error

	mu        sync.Mutex
	audio     [][]byte
	texts     []string
	closes    int
	closeOnce sync.Once
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		events: make(chan *inference.ServerEvent, 16),
		errs:   make(chan error, 1),
		closed: make(chan struct{}),
	}
}

func (s *fakeSession) wait() error {
	if s.stall != nil {
		<-s.stall
	}
	return s.sendErr
}

func (s *fakeSession) SendAudio(pcm []byte) error {
	if err := s.wait(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audio = append(s.audio, pcm)
	return nil
}

func (s *fakeSession) SendText(text string) error {
	if err := s.wait(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.texts = append(s.texts, text)
	return nil
}

func (s *fakeSession) Receive() (*inference.ServerEvent, error) {
	select {
	case ev := <-s.events:
		return ev, nil
	case err := <-s.errs:
		return nil, err
	case <-s.closed:
		return nil, errClosedConn
	}
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	s.closes++
	s.mu.Unlock()
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

func (s *fakeSession) sent() (audio [][]byte, texts []string, closes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.audio...), append([]string(nil), s.texts...), s.closes
}

type fakeConnector struct {
	mu       sync.Mutex
	err      error
	block    bool // wait for ctx cancellation
	stall    chan struct{}
	sendErr  error
	sessions []*fakeSession
	configs  []inference.LiveConfig
}

func (c *fakeConnector) Connect(ctx context.Context, cfg inference.LiveConfig) (inference.LiveSession, error) {
	c.mu.Lock()
	c.configs = append(c.configs, cfg)
	block, err, stall, sendErr := c.block, c.err, c.stall, c.sendErr
	c.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}

	s := newFakeSession()
	s.stall, s.sendErr = stall, sendErr
	c.mu.Lock()
	c.sessions = append(c.sessions, s)
	c.mu.Unlock()
	return s, nil
}

func (c *fakeConnector) lastSession() *fakeSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessions[len(c.sessions)-1]
}

func (c *fakeConnector) lastConfig() inference.LiveConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.configs[len(c.configs)-1]
}

type fakeCompleter struct {
	mu       sync.Mutex
	reply    string
	err      error
	requests []inference.Request
}

func (c *fakeCompleter) Complete(ctx context.Context, req inference.Request) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, req)
	return c.reply, c.err
}

func (c *fakeCompleter) calls() []inference.Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]inference.Request(nil), c.requests...)
}
