package assistant

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loansight/assistant/internal/conversation"
	"github.com/loansight/assistant/internal/document"
	"github.com/loansight/assistant/internal/voice"
)

type fakeSessions struct {
	started   []document.Document
	startErr  error
	turns     []string
	turnDocs  []document.Document
	channel   voice.Channel
	summaries []string
}

func (s *fakeSessions) Start(doc document.Document) error {
	s.started = append(s.started, doc)
	return s.startErr
}

func (s *fakeSessions) SendTextAsTurn(ctx context.Context, doc document.Document, text string) (voice.Channel, error) {
	s.turns = append(s.turns, text)
	s.turnDocs = append(s.turnDocs, doc)
	return s.channel, nil
}

func (s *fakeSessions) Summarize(ctx context.Context, documentName string) (conversation.Message, error) {
	s.summaries = append(s.summaries, documentName)
	return conversation.NewMessage(conversation.RoleSystem, "summary", ""), nil
}

type fakeReader struct {
	spoken []string
	stops  int
	err    error
}

func (r *fakeReader) Speak(ctx context.Context, text string) (time.Duration, error) {
	r.spoken = append(r.spoken, text)
	return time.Second, r.err
}

func (r *fakeReader) Stop() { r.stops++ }

func setup(reader Reader) (*Assistant, *document.Store, *conversation.History, *fakeSessions) {
	store := document.NewStore()
	history := conversation.NewHistory()
	sessions := &fakeSessions{channel: voice.ChannelText}
	return New(store, sessions, history, reader), store, history, sessions
}

func TestWelcome_OnFirstActiveDocument(t *testing.T) {
	_, store, history, _ := setup(nil)

	store.Add(document.NewFile{Name: "loan.pdf"})

	msgs := history.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, conversation.RoleModel, msgs[0].Role)
	assert.Equal(t, conversation.ModeText, msgs[0].Mode)
	assert.Contains(t, msgs[0].Text, "**loan.pdf**")
}

func TestWelcome_NotRepeatedOnNonEmptyHistory(t *testing.T) {
	a, store, history, _ := setup(nil)

	docs := store.Add(document.NewFile{Name: "a.pdf"}, document.NewFile{Name: "b.pdf"})
	require.Equal(t, 1, history.Len())

	_, err := a.SelectDocument(docs[1].ID)
	require.NoError(t, err)
	assert.Equal(t, 1, history.Len())
}

func TestSelectDocument_Unknown(t *testing.T) {
	a, _, _, _ := setup(nil)

	_, err := a.SelectDocument("missing")
	assert.ErrorIs(t, err, document.ErrNotFound)
}

func TestChat_RequiresActiveDocument(t *testing.T) {
	a, store, _, sessions := setup(nil)

	_, err := a.Chat(context.Background(), "What is the rate?")
	assert.ErrorIs(t, err, ErrNoActiveDocument)
	assert.ErrorIs(t, a.StartVoice(), ErrNoActiveDocument)

	docs := store.Add(document.NewFile{Name: "loan.pdf"})
	require.NoError(t, store.Complete(docs[0].ID, "Rate: 5.5%", 0.97))

	channel, err := a.Chat(context.Background(), "What is the rate?")
	require.NoError(t, err)
	assert.Equal(t, voice.ChannelText, channel)
	require.Len(t, sessions.turnDocs, 1)
	assert.Equal(t, "Rate: 5.5%", sessions.turnDocs[0].Content)

	require.NoError(t, a.StartVoice())
	require.Len(t, sessions.started, 1)
	assert.Equal(t, docs[0].ID, sessions.started[0].ID)
}

func TestSelectionActions(t *testing.T) {
	a, store, _, sessions := setup(nil)
	store.Add(document.NewFile{Name: "loan.pdf"})

	_, err := a.Explain(context.Background(), "  balloon payment ")
	require.NoError(t, err)
	_, err = a.Translate(context.Background(), "balloon payment", "Spanish")
	require.NoError(t, err)

	require.Len(t, sessions.turns, 2)
	assert.Equal(t, `Context: "balloon payment". Explain this.`, sessions.turns[0])
	assert.Contains(t, sessions.turns[1], `Context: "balloon payment". Translate this into Spanish`)

	_, err = a.Explain(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptySelection)
	_, err = a.Translate(context.Background(), "term", "")
	assert.ErrorIs(t, err, ErrLanguageUnspecified)
	assert.Len(t, sessions.turns, 2)
}

func TestReadAloud(t *testing.T) {
	a, _, _, _ := setup(nil)
	_, err := a.ReadAloud(context.Background(), "text")
	assert.ErrorIs(t, err, ErrReadAloudDisabled)

	reader := &fakeReader{}
	a, _, _, _ = setup(reader)

	length, err := a.ReadAloud(context.Background(), " Maturity date ")
	require.NoError(t, err)
	assert.Equal(t, time.Second, length)
	assert.Equal(t, []string{"Maturity date"}, reader.spoken)

	_, err = a.ReadAloud(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptySelection)

	reader.err = errors.New("provider down")
	_, err = a.ReadAloud(context.Background(), "x")
	assert.ErrorContains(t, err, "provider down")

	a.StopReading()
	assert.Equal(t, 1, reader.stops)
}

func TestSummarize_UsesActiveDocumentName(t *testing.T) {
	a, store, _, sessions := setup(nil)

	_, err := a.Summarize(context.Background())
	require.NoError(t, err)

	store.Add(document.NewFile{Name: "loan.pdf"})
	_, err = a.Summarize(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"", "loan.pdf"}, sessions.summaries)
}

func TestSuggestions_HiddenAfterUserInput(t *testing.T) {
	a, _, history, _ := setup(nil)
	assert.Equal(t, SuggestedQuestions, a.Suggestions())

	history.Commit(conversation.RoleModel, "hello", conversation.ModeText)
	assert.Len(t, a.Suggestions(), 4)

	history.Commit(conversation.RoleUser, "hi", conversation.ModeText)
	assert.Empty(t, a.Suggestions())
}
