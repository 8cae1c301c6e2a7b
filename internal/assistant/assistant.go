// Package assistant ties the active document to the conversation: chat,
// voice sessions and the actions offered on a text selection.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/loansight/assistant/internal/conversation"
	"github.com/loansight/assistant/internal/document"
	"github.com/loansight/assistant/internal/inference"
	"github.com/loansight/assistant/internal/observability"
	"github.com/loansight/assistant/internal/voice"
)

var (
	ErrNoActiveDocument    = errors.New("no active document")
	ErrEmptySelection      = errors.New("selection is empty")
	ErrReadAloudDisabled   = errors.New("read aloud is not configured")
	ErrLanguageUnspecified = errors.New("target language is required")
)

// SuggestedQuestions are offered before the user has typed anything
var SuggestedQuestions = []string{
	"What is the interest rate?",
	"Are there prepayment penalties?",
	"Summarize the key risks",
	"Explain the default clause",
}

// Sessions is the part of the voice orchestrator the assistant drives
type Sessions interface {
	Start(doc document.Document) error
	SendTextAsTurn(ctx context.Context, doc document.Document, text string) (voice.Channel, error)
	Summarize(ctx context.Context, documentName string) (conversation.Message, error)
}

// Reader speaks text aloud
type Reader interface {
	Speak(ctx context.Context, text string) (time.Duration, error)
	Stop()
}

// Assistant routes user actions to the voice session or the text model,
// always grounded in the active document
type Assistant struct {
	store    *document.Store
	sessions Sessions
	history  *conversation.History
	reader   Reader
	logger   zerolog.Logger
}

// New creates an assistant. reader may be nil when read-aloud is not configured.
func New(store *document.Store, sessions Sessions, history *conversation.History, reader Reader) *Assistant {
	a := &Assistant{
		store:    store,
		sessions: sessions,
		history:  history,
		reader:   reader,
		logger:   observability.WithComponent("assistant"),
	}
	store.Subscribe(a.onDocumentEvent)
	return a
}

// onDocumentEvent greets the user when a document becomes active on an empty conversation
func (a *Assistant) onDocumentEvent(ev document.Event) {
	if ev.Kind != document.EventActive || ev.Document.ID == "" {
		return
	}
	if a.history.Len() > 0 {
		return
	}
	a.history.Commit(conversation.RoleModel, inference.WelcomeMessage(ev.Document.Name), conversation.ModeText)
}

// SelectDocument makes the document with id active
func (a *Assistant) SelectDocument(id string) (document.Document, error) {
	doc, err := a.store.SetActive(id)
	if err != nil {
		return document.Document{}, err
	}
	a.logger.Info().Str("document_id", doc.ID).Str("name", doc.Name).Msg("Document selected")
	return doc, nil
}

// activeDocument returns a snapshot of the active document
func (a *Assistant) activeDocument() (document.Document, error) {
	doc, ok := a.store.Active()
	if !ok {
		return document.Document{}, ErrNoActiveDocument
	}
	return doc, nil
}

// StartVoice starts a voice session grounded in the active document
func (a *Assistant) StartVoice() error {
	doc, err := a.activeDocument()
	if err != nil {
		return err
	}
	return a.sessions.Start(doc)
}

// Chat answers a typed question about the active document
func (a *Assistant) Chat(ctx context.Context, text string) (voice.Channel, error) {
	doc, err := a.activeDocument()
	if err != nil {
		return "", err
	}
	return a.sessions.SendTextAsTurn(ctx, doc, text)
}

// Explain asks for a plain explanation of a selected passage
func (a *Assistant) Explain(ctx context.Context, selection string) (voice.Channel, error) {
	selection = strings.TrimSpace(selection)
	if selection == "" {
		return "", ErrEmptySelection
	}
	return a.Chat(ctx, inference.ExplainPrompt(selection))
}

// Translate asks for a translation of a selected passage into language
func (a *Assistant) Translate(ctx context.Context, selection, language string) (voice.Channel, error) {
	selection = strings.TrimSpace(selection)
	if selection == "" {
		return "", ErrEmptySelection
	}
	language = strings.TrimSpace(language)
	if language == "" {
		return "", ErrLanguageUnspecified
	}
	return a.Chat(ctx, inference.TranslatePrompt(selection, language))
}

// ReadAloud speaks a selection through the speaker, cancelling any previous read-aloud
func (a *Assistant) ReadAloud(ctx context.Context, text string) (time.Duration, error) {
	if a.reader == nil {
		return 0, ErrReadAloudDisabled
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, ErrEmptySelection
	}

	length, err := a.reader.Speak(ctx, text)
	if err != nil {
		return 0, fmt.Errorf("read aloud failed: %w", err)
	}
	return length, nil
}

// StopReading cancels a read-aloud in progress
func (a *Assistant) StopReading() {
	if a.reader != nil {
		a.reader.Stop()
	}
}

// Summarize summarizes the whole conversation about the active document
func (a *Assistant) Summarize(ctx context.Context) (conversation.Message, error) {
	name := ""
	if doc, ok := a.store.Active(); ok {
		name = doc.Name
	}
	return a.sessions.Summarize(ctx, name)
}

// Suggestions returns the starter questions, or none once the conversation has user input
func (a *Assistant) Suggestions() []string {
	for _, m := range a.history.Messages() {
		if m.Role == conversation.RoleUser {
			return []string{}
		}
	}
	return append([]string(nil), SuggestedQuestions...)
}
