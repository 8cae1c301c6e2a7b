package inference

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
	"google.golang.org/genai"

	"github.com/loansight/assistant/internal/audio"
)

// ErrRemoteClosed is returned by Receive after the provider closed the session normally
var ErrRemoteClosed = errors.New("live session closed by remote")

// ServerEvent is the part of one live server message the voice session acts on.
// Any combination of fields may be set.
type ServerEvent struct {
	InputTranscript  string   // partial transcript of the user's speech
	OutputTranscript string   // partial transcript of the model's speech
	Audio            [][]byte // 16-bit LE PCM chunks at the output rate, in order
	Interrupted      bool
	TurnComplete     bool
}

// Empty reports whether the event carries nothing to act on
func (e *ServerEvent) Empty() bool {
	return e.InputTranscript == "" && e.OutputTranscript == "" && len(e.Audio) == 0 && !e.Interrupted && !e.TurnComplete
}

// LiveSession is an open duplex connection to the live model
type LiveSession interface {
	// SendAudio transmits one captured PCM frame
	SendAudio(pcm []byte) error
	// SendText injects a typed turn
	SendText(text string) error
	// Receive blocks for the next server event. It returns ErrRemoteClosed
	// when the provider ends the session normally.
	Receive() (*ServerEvent, error)
	Close() error
}

// LiveConfig is the per-session configuration
type LiveConfig struct {
	SystemInstruction string
}

// LiveConnector opens live sessions
type LiveConnector interface {
	Connect(ctx context.Context, cfg LiveConfig) (LiveSession, error)
}

// GeminiLive opens native-audio sessions on the Gemini Live API
type GeminiLive struct {
	live            *genai.Live
	model           string
	voice           string
	inputSampleRate int
}

// NewGeminiLive creates a connector for model speaking with the named prebuilt voice.
// Audio is sent as PCM at inputSampleRate.
func NewGeminiLive(client *genai.Client, model, voice string, inputSampleRate int) *GeminiLive {
	return &GeminiLive{
		live:            client.Live,
		model:           model,
		voice:           voice,
		inputSampleRate: inputSampleRate,
	}
}

// Connect dials the live endpoint with audio output and transcription in both directions
func (g *GeminiLive) Connect(ctx context.Context, cfg LiveConfig) (LiveSession, error) {
	session, err := g.live.Connect(ctx, g.model, g.connectConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to connect live session: %w", err)
	}
	return &geminiSession{
		session:  session,
		mimeType: audio.MimeType(g.inputSampleRate),
	}, nil
}

func (g *GeminiLive) connectConfig(cfg LiveConfig) *genai.LiveConnectConfig {
	return &genai.LiveConnectConfig{
		ResponseModalities: []genai.Modality{genai.ModalityAudio},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: g.voice},
			},
		},
		SystemInstruction:        genai.NewContentFromText(cfg.SystemInstruction, genai.RoleUser),
		InputAudioTranscription:  &genai.AudioTranscriptionConfig{},
		OutputAudioTranscription: &genai.AudioTranscriptionConfig{},
	}
}

// geminiSession adapts *genai.Session. Sends are serialized because the
// underlying websocket allows one concurrent writer.
type geminiSession struct {
	session  *genai.Session
	mimeType string

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

func (s *geminiSession) SendAudio(pcm []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.session.SendRealtimeInput(genai.LiveRealtimeInput{
		Audio: &genai.Blob{Data: pcm, MIMEType: s.mimeType},
	})
}

func (s *geminiSession) SendText(text string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.session.SendRealtimeInput(genai.LiveRealtimeInput{Text: text})
}

func (s *geminiSession) Receive() (*ServerEvent, error) {
	for {
		msg, err := s.session.Receive()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil, ErrRemoteClosed
			}
			return nil, err
		}
		if ev := translate(msg); !ev.Empty() {
			return ev, nil
		}
	}
}

func (s *geminiSession) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.session.Close()
	})
	return s.closeErr
}

// translate extracts transcripts, audio and turn markers from a server message
func translate(msg *genai.LiveServerMessage) *ServerEvent {
	ev := &ServerEvent{}
	content := msg.ServerContent
	if content == nil {
		return ev
	}

	if content.InputTranscription != nil {
		ev.InputTranscript = content.InputTranscription.Text
	}
	if content.OutputTranscription != nil {
		ev.OutputTranscript = content.OutputTranscription.Text
	}
	if content.ModelTurn != nil {
		for _, part := range content.ModelTurn.Parts {
			if part == nil || part.InlineData == nil || len(part.InlineData.Data) == 0 {
				continue
			}
			ev.Audio = append(ev.Audio, part.InlineData.Data)
		}
	}
	ev.Interrupted = content.Interrupted
	ev.TurnComplete = content.TurnComplete
	return ev
}
