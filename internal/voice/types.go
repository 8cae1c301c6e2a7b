package voice

import (
	"errors"

	"github.com/loansight/assistant/internal/audio"
)

// Session failures. Each one tears the session down and leaves the
// orchestrator in PhaseError until the next Start or Stop.
var (
	ErrPermissionDenied       = errors.New("audio device unavailable or permission denied")
	ErrConnectionFailed       = errors.New("live connection failed")
	ErrTransport              = errors.New("live transport error")
	ErrInferenceRequestFailed = errors.New("inference request failed")
	ErrSessionActive          = errors.New("a voice session is already active")
	ErrNothingToSummarize     = errors.New("conversation is empty")
	ErrEmptyText              = errors.New("text cannot be empty")
	ErrClosed                 = errors.New("orchestrator is closed")
)

// Phase is the lifecycle state of the voice session
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseConnecting Phase = "connecting"
	PhaseOpen       Phase = "open"
	PhaseClosed     Phase = "closed" // ended by the remote side
	PhaseError      Phase = "error"
)

// Active reports whether Start would be rejected
func (p Phase) Active() bool {
	return p == PhaseConnecting || p == PhaseOpen
}

// Channel tells which path answered a typed turn
type Channel string

const (
	ChannelLive Channel = "live"
	ChannelText Channel = "text"
)

// Direction of a streaming transcript
type Direction string

const (
	DirectionInput  Direction = "input"
	DirectionOutput Direction = "output"
)

// State is a snapshot of the session for observers
type State struct {
	Phase      Phase  `json:"phase"`
	Muted      bool   `json:"muted"`
	Error      string `json:"error,omitempty"`
	Err        error  `json:"-"`
	SessionID  string `json:"session_id,omitempty"`
	DocumentID string `json:"document_id,omitempty"`
}

// UpdateKind discriminates Update
type UpdateKind string

const (
	UpdateState      UpdateKind = "voice.state"
	UpdateTranscript UpdateKind = "voice.transcript"
	UpdateLevel      UpdateKind = "voice.level"
)

// Transcript is the current uncommitted text of one direction
type Transcript struct {
	Direction Direction `json:"direction"`
	Text      string    `json:"text"`
}

// Update is published to subscribers from the session goroutine.
// Exactly one of State, Transcript or Level is set, matching Kind.
type Update struct {
	Kind       UpdateKind   `json:"kind"`
	State      *State       `json:"state,omitempty"`
	Transcript *Transcript  `json:"transcript,omitempty"`
	Level      *audio.Level `json:"level,omitempty"`
}
