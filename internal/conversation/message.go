package conversation

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies who produced a transcript message
type Role string

const (
	RoleUser   Role = "user"
	RoleModel  Role = "model"
	RoleSystem Role = "system"
)

// Mode records which channel produced a message
type Mode string

const (
	ModeVoice Mode = "voice"
	ModeText  Mode = "text"
)

// Message is one committed, immutable transcript entry
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	Mode      Mode      `json:"mode,omitempty"`
}

// NewMessage creates a message stamped with a fresh id and the current time
func NewMessage(role Role, text string, mode Mode) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      role,
		Text:      text,
		Timestamp: time.Now(),
		Mode:      mode,
	}
}

// Label returns the speaker label used when a message is quoted in a prompt
func (m Message) Label() string {
	switch m.Role {
	case RoleUser:
		return "User"
	case RoleSystem:
		return "System"
	default:
		return "Model"
	}
}
