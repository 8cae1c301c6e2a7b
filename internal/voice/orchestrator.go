package voice

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/loansight/assistant/internal/audio"
	"github.com/loansight/assistant/internal/conversation"
	"github.com/loansight/assistant/internal/document"
	"github.com/loansight/assistant/internal/inference"
	"github.com/loansight/assistant/internal/observability"
)

// eventBufferSize bounds frames and server events waiting for the session
// goroutine. Frames are only dropped when it falls this far behind.
const eventBufferSize = 64

// Config holds the session parameters
type Config struct {
	InputSampleRate  int
	OutputSampleRate int
	FrameSize        int // samples per captured frame
	Meter            *audio.MeterConfig
	SummarizeOnStop  bool
}

// Commands handled by the session goroutine
type (
	startCmd struct {
		doc   document.Document
		reply chan error
	}
	stopCmd struct {
		reply chan struct{}
	}
	muteCmd struct {
		reply chan bool
	}
	sendTextCmd struct {
		text  string
		reply chan bool
	}
	summaryResult struct {
		text string
		err  error
	}
)

// Events posted by the capture thread and the live session pumps.
// gen identifies the session that produced them.
type (
	frameEvent struct {
		gen   uint64
		frame audio.Frame
	}
	serverEvent struct {
		gen uint64
		ev  *inference.ServerEvent
	}
	transportError struct {
		gen uint64
		err error
	}
	remoteClosed struct {
		gen uint64
	}
)

// Orchestrator runs at most one real-time voice session over the machine's
// microphone and speaker. All session state is owned by a single goroutine;
// the exported methods post commands to it.
type Orchestrator struct {
	config    Config
	devices   audio.Devices
	connector inference.LiveConnector
	completer inference.Completer
	history   *conversation.History
	logger    zerolog.Logger

	ctx       context.Context
	cancel    context.CancelFunc
	commands  chan any
	events    chan any
	quit      chan struct{}
	loopDone  chan struct{}
	closeOnce sync.Once
	summaries sync.WaitGroup

	mu        sync.RWMutex
	state     State
	listeners []func(Update)

	// Owned by the session goroutine
	gen       uint64
	phase     Phase
	muted     bool
	attempt   *attempt
	res       *resources
	doc       document.Document
	mark      int // history length when the session opened
	input     conversation.StreamingBuffer
	output    conversation.StreamingBuffer
	meter     *audio.ActivityMeter
	metrics   *observability.SessionMetrics
	slog      zerolog.Logger
	lastErr   error
	sessionID string
}

// New creates an orchestrator and starts its session goroutine
func New(cfg Config, devices audio.Devices, connector inference.LiveConnector, completer inference.Completer, history *conversation.History) *Orchestrator {
	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		config:    cfg,
		devices:   devices,
		connector: connector,
		completer: completer,
		history:   history,
		logger:    observability.WithComponent("voice"),
		ctx:       ctx,
		cancel:    cancel,
		commands:  make(chan any),
		events:    make(chan any, eventBufferSize),
		quit:      make(chan struct{}),
		loopDone:  make(chan struct{}),
		phase:     PhaseIdle,
		meter:     audio.NewActivityMeter(cfg.Meter),
	}
	o.slog = o.logger
	o.state = State{Phase: PhaseIdle}

	go o.run()
	return o
}

// Subscribe registers fn for state, transcript and level updates.
// fn runs on the session goroutine and must not block or call back into the orchestrator.
func (o *Orchestrator) Subscribe(fn func(Update)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.listeners = append(o.listeners, fn)
}

// State returns the latest session snapshot
func (o *Orchestrator) State() State {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state
}

// Start begins connecting a session grounded in doc and returns without
// waiting for the connection. It fails with ErrSessionActive while a session
// is connecting or open.
func (o *Orchestrator) Start(doc document.Document) error {
	reply := make(chan error, 1)
	if err := o.send(startCmd{doc: doc, reply: reply}); err != nil {
		return err
	}
	return <-reply
}

// Stop ends the current session, cancelling a pending connection and
// waiting for it. It is a no-op when idle.
func (o *Orchestrator) Stop() {
	reply := make(chan struct{})
	if o.send(stopCmd{reply: reply}) != nil {
		return
	}
	<-reply
}

// ToggleMute flips the microphone track while a session is open and returns
// the resulting muted state. Outside an open session it does nothing and returns false.
func (o *Orchestrator) ToggleMute() bool {
	reply := make(chan bool, 1)
	if o.send(muteCmd{reply: reply}) != nil {
		return false
	}
	return <-reply
}

// SendTextAsTurn answers a typed message. With an open session the text is
// injected into it and the reply arrives as voice; otherwise the text model
// answers from doc and the last ChatHistoryWindow messages.
func (o *Orchestrator) SendTextAsTurn(ctx context.Context, doc document.Document, text string) (Channel, error) {
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyText
	}

	reply := make(chan bool, 1)
	if err := o.send(sendTextCmd{text: text, reply: reply}); err != nil {
		return "", err
	}
	if <-reply {
		return ChannelLive, nil
	}

	recent := o.history.Recent(inference.ChatHistoryWindow)
	o.history.Commit(conversation.RoleUser, text, conversation.ModeText)

	answer, err := o.completer.Complete(ctx, inference.Request{
		Kind:   inference.KindChat,
		Prompt: inference.ChatPrompt(doc.Content, recent, text),
	})
	if err == nil && strings.TrimSpace(answer) == "" {
		err = errors.New("empty reply")
	}
	if err != nil {
		o.logger.Error().Err(err).Str("document_id", doc.ID).Msg("Text turn failed")
		o.history.Commit(conversation.RoleSystem, "Error generating response. Please try again.", "")
		return ChannelText, fmt.Errorf("%w: %w", ErrInferenceRequestFailed, err)
	}

	o.history.Commit(conversation.RoleModel, answer, conversation.ModeText)
	return ChannelText, nil
}

// Close stops any session and the session goroutine, and waits for pending summaries
func (o *Orchestrator) Close() {
	o.closeOnce.Do(func() {
		close(o.quit)
		<-o.loopDone
		o.cancel()
		o.summaries.Wait()
	})
}

func (o *Orchestrator) send(cmd any) error {
	select {
	case o.commands <- cmd:
		return nil
	case <-o.loopDone:
		return ErrClosed
	}
}

func (o *Orchestrator) run() {
	defer close(o.loopDone)
	for {
		select {
		case <-o.quit:
			o.stop(false)
			return
		case cmd := <-o.commands:
			o.handleCommand(cmd)
		case ev := <-o.events:
			o.handleEvent(ev)
		case ev := <-o.faults():
			o.handleEvent(ev)
		case <-o.attemptDone():
			o.handleConnected()
		}
	}
}

func (o *Orchestrator) attemptDone() <-chan struct{} {
	if o.attempt == nil {
		return nil
	}
	return o.attempt.done
}

func (o *Orchestrator) faults() <-chan any {
	if o.res == nil {
		return nil
	}
	return o.res.fault
}

func (o *Orchestrator) handleCommand(cmd any) {
	switch c := cmd.(type) {
	case startCmd:
		c.reply <- o.start(c.doc)

	case stopCmd:
		o.stop(true)
		close(c.reply)

	case muteCmd:
		c.reply <- o.toggleMute()

	case sendTextCmd:
		c.reply <- o.sendText(c.text)

	case summaryResult:
		if c.err != nil {
			o.logger.Error().Err(c.err).Msg("Session summary failed")
			return
		}
		o.commitSummary(c.text)
	}
}

func (o *Orchestrator) handleEvent(ev any) {
	switch e := ev.(type) {
	case frameEvent:
		if o.current(e.gen) {
			o.handleFrame(e.frame)
		}

	case serverEvent:
		if o.current(e.gen) {
			o.handleServerEvent(e.ev)
		}

	case transportError:
		if o.current(e.gen) {
			o.slog.Error().Err(e.err).Msg("Live session transport error")
			o.metrics.RecordError("transport")
			o.finish(PhaseError, fmt.Errorf("%w: %w", ErrTransport, e.err), true)
		}

	case remoteClosed:
		if o.current(e.gen) {
			o.slog.Info().Msg("Live session closed by remote")
			o.finish(PhaseClosed, nil, true)
		}
	}
}

// current reports whether an event belongs to the open session
func (o *Orchestrator) current(gen uint64) bool {
	return o.phase == PhaseOpen && o.res != nil && o.res.gen == gen
}

func (o *Orchestrator) start(doc document.Document) error {
	if o.phase.Active() {
		return ErrSessionActive
	}

	o.gen++
	o.doc = doc
	o.muted = false
	o.sessionID = uuid.NewString()
	o.slog = observability.SessionLogger(o.sessionID, doc.ID)
	o.metrics = observability.NewSessionMetrics(o.sessionID)

	ctx, cancel := context.WithCancel(o.ctx)
	a := &attempt{gen: o.gen, ctx: ctx, cancel: cancel, done: make(chan struct{})}
	o.attempt = a
	o.setPhase(PhaseConnecting, nil)

	o.slog.Info().Str("document", doc.Name).Int("content_chars", len(doc.Content)).Msg("Starting voice session")
	go o.connect(a, doc, o.metrics)
	return nil
}

// connect acquires the devices and the live session for one attempt.
// It never touches loop state; the result is read after done is closed.
func (o *Orchestrator) connect(a *attempt, doc document.Document, metrics *observability.SessionMetrics) {
	defer close(a.done)

	r := &resources{gen: a.gen, ctx: a.ctx, cancel: a.cancel}
	a.res = r

	mic, err := o.devices.OpenMicrophone(a.ctx, o.config.InputSampleRate, o.config.FrameSize, func(f audio.Frame) {
		o.postFrame(a.gen, metrics, f)
	})
	if err != nil {
		a.err = fmt.Errorf("%w: %w", ErrPermissionDenied, err)
		return
	}
	r.mic = mic

	speaker, err := o.devices.OpenSpeaker(o.config.OutputSampleRate)
	if err != nil {
		a.err = fmt.Errorf("%w: %w", ErrPermissionDenied, err)
		return
	}
	r.speaker = speaker
	r.scheduler = audio.NewScheduler(speaker, o.config.OutputSampleRate)

	session, err := o.connector.Connect(a.ctx, inference.LiveConfig{
		SystemInstruction: inference.GroundingInstruction(doc.Content),
	})
	if err != nil {
		a.err = fmt.Errorf("%w: %w", ErrConnectionFailed, err)
		return
	}
	r.session = session
}

func (o *Orchestrator) handleConnected() {
	a := o.attempt
	o.attempt = nil
	o.res = a.res

	if a.err != nil {
		o.slog.Error().Err(a.err).Msg("Voice session failed to start")
		switch {
		case errors.Is(a.err, ErrPermissionDenied):
			o.metrics.RecordError("permission_denied")
		default:
			o.metrics.RecordError("connection_failed")
		}
		o.finish(PhaseError, a.err, false)
		return
	}

	r := o.res
	r.out = newOutboundQueue()
	r.fault = make(chan any, 1)
	r.wg.Add(2)
	go o.receive(r)
	go o.transmit(r)

	o.mark = o.history.Len()
	o.metrics.RecordOpen()
	o.setPhase(PhaseOpen, nil)
	o.slog.Info().Msg("Voice session open")
}

// stop releases whatever the current phase holds and returns to idle
func (o *Orchestrator) stop(summarize bool) {
	switch o.phase {
	case PhaseConnecting:
		a := o.attempt
		o.attempt = nil
		a.cancel()
		<-a.done
		o.res = a.res
		o.finish(PhaseIdle, nil, false)

	case PhaseOpen:
		o.finish(PhaseIdle, nil, summarize)

	case PhaseError, PhaseClosed:
		o.setPhase(PhaseIdle, nil)
	}
}

// finish is the single teardown path for a session. summarize requests a
// post-call summary when enabled in Config.
func (o *Orchestrator) finish(phase Phase, cause error, summarize bool) {
	r := o.res
	o.res = nil
	if r != nil {
		for _, err := range r.release() {
			o.slog.Warn().Err(err).Msg("Error releasing session resources")
		}
	}

	o.input.Reset()
	o.output.Reset()
	o.meter.Reset()
	o.muted = false
	if o.metrics != nil {
		o.metrics.RecordClose()
	}

	o.setPhase(phase, cause)
	o.slog.Info().Str("phase", string(phase)).Msg("Voice session ended")

	if summarize && o.config.SummarizeOnStop {
		o.summarizeSession()
	}
}

func (o *Orchestrator) toggleMute() bool {
	if o.phase != PhaseOpen {
		return false
	}
	o.muted = !o.muted
	o.res.mic.SetEnabled(!o.muted)
	o.publishState()
	return o.muted
}

func (o *Orchestrator) sendText(text string) bool {
	if o.phase != PhaseOpen {
		return false
	}
	o.res.out.push(outbound{text: text})
	o.history.Commit(conversation.RoleUser, text, conversation.ModeText)
	return true
}

func (o *Orchestrator) handleFrame(f audio.Frame) {
	level := o.meter.Observe(f.Samples)
	o.publish(Update{Kind: UpdateLevel, Level: &level})

	if !f.Enabled || o.muted {
		o.metrics.RecordFrame("muted")
		return
	}

	pcm := audio.EncodePCM16(f.Samples)
	o.res.out.push(outbound{audio: pcm})
	o.metrics.RecordFrame("sent")
	o.metrics.RecordAudioBytes("out", len(pcm))
}

func (o *Orchestrator) handleServerEvent(ev *inference.ServerEvent) {
	if ev.InputTranscript != "" {
		o.publishTranscript(DirectionInput, o.input.Append(ev.InputTranscript))
	}
	if ev.OutputTranscript != "" {
		o.publishTranscript(DirectionOutput, o.output.Append(ev.OutputTranscript))
	}
	if ev.TurnComplete {
		o.commitTurn()
	}
	if ev.Interrupted {
		o.slog.Debug().Msg("Model turn interrupted, flushing playback")
		o.res.scheduler.Interrupt()
	}
	for _, chunk := range ev.Audio {
		o.metrics.RecordAudioBytes("in", len(chunk))
		if _, err := o.res.scheduler.Enqueue(chunk); err != nil {
			o.slog.Warn().Err(err).Msg("Dropping audio chunk")
		}
	}
}

// commitTurn commits the user's text before the model's; blank buffers are discarded
func (o *Orchestrator) commitTurn() {
	if !o.input.Blank() {
		o.history.Commit(conversation.RoleUser, o.input.String(), conversation.ModeVoice)
	}
	if o.input.Len() > 0 {
		o.input.Reset()
		o.publishTranscript(DirectionInput, "")
	}

	if !o.output.Blank() {
		o.history.Commit(conversation.RoleModel, o.output.String(), conversation.ModeVoice)
	}
	if o.output.Len() > 0 {
		o.output.Reset()
		o.publishTranscript(DirectionOutput, "")
	}
}

// postFrame runs on the capture thread and never blocks it
func (o *Orchestrator) postFrame(gen uint64, metrics *observability.SessionMetrics, f audio.Frame) {
	select {
	case o.events <- frameEvent{gen: gen, frame: f}:
	default:
		metrics.RecordFrame("dropped")
	}
}

func (o *Orchestrator) post(ctx context.Context, ev any) bool {
	select {
	case o.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func (o *Orchestrator) receive(r *resources) {
	defer r.wg.Done()
	for {
		ev, err := r.session.Receive()
		if err != nil {
			if errors.Is(err, inference.ErrRemoteClosed) {
				r.report(remoteClosed{gen: r.gen})
			} else {
				r.report(transportError{gen: r.gen, err: err})
			}
			return
		}
		if !o.post(r.ctx, serverEvent{gen: r.gen, ev: ev}) {
			return
		}
	}
}

func (o *Orchestrator) transmit(r *resources) {
	defer r.wg.Done()
	for {
		select {
		case <-r.ctx.Done():
			return
		case <-r.out.ready:
			for _, msg := range r.out.take() {
				if r.ctx.Err() != nil {
					return
				}
				var err error
				if msg.text != "" {
					err = r.session.SendText(msg.text)
				} else {
					err = r.session.SendAudio(msg.audio)
				}
				if err != nil {
					r.report(transportError{gen: r.gen, err: err})
					return
				}
			}
		}
	}
}

func (o *Orchestrator) setPhase(phase Phase, cause error) {
	o.phase = phase
	o.lastErr = cause
	observability.RecordPhase(string(phase))
	o.publishState()
}

func (o *Orchestrator) publishState() {
	st := State{
		Phase: o.phase,
		Muted: o.muted,
		Err:   o.lastErr,
	}
	if o.lastErr != nil {
		st.Error = o.lastErr.Error()
	}
	if o.phase != PhaseIdle {
		st.SessionID = o.sessionID
		st.DocumentID = o.doc.ID
	}

	o.mu.Lock()
	o.state = st
	o.mu.Unlock()

	o.publish(Update{Kind: UpdateState, State: &st})
}

func (o *Orchestrator) publishTranscript(dir Direction, text string) {
	o.publish(Update{Kind: UpdateTranscript, Transcript: &Transcript{Direction: dir, Text: text}})
}

func (o *Orchestrator) publish(u Update) {
	o.mu.RLock()
	listeners := o.listeners
	o.mu.RUnlock()

	for _, fn := range listeners {
		fn(u)
	}
}
