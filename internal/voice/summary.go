package voice

import (
	"context"
	"fmt"
	"strings"

	"github.com/loansight/assistant/internal/conversation"
	"github.com/loansight/assistant/internal/inference"
)

const noSummaryText = "Could not generate summary."

// Summarize asks the text model for a structured summary of the whole
// conversation and commits it as a system message
func (o *Orchestrator) Summarize(ctx context.Context, documentName string) (conversation.Message, error) {
	prompt, ok := inference.SummaryPrompt(documentName, o.history.Messages())
	if !ok {
		return conversation.Message{}, ErrNothingToSummarize
	}

	reply, err := o.completer.Complete(ctx, summaryRequest(prompt))
	if err != nil {
		return conversation.Message{}, fmt.Errorf("%w: %w", ErrInferenceRequestFailed, err)
	}
	return o.commitSummary(reply), nil
}

// summarizeSession summarizes the messages of the session that just ended.
// The request runs in the background and the result comes back as a command.
func (o *Orchestrator) summarizeSession() {
	prompt, ok := inference.SummaryPrompt(o.doc.Name, o.history.Since(o.mark))
	if !ok {
		return
	}

	logger := o.slog
	o.summaries.Add(1)
	go func() {
		defer o.summaries.Done()

		logger.Info().Msg("Summarizing session")
		reply, err := o.completer.Complete(o.ctx, summaryRequest(prompt))
		select {
		case o.commands <- summaryResult{text: reply, err: err}:
		case <-o.loopDone:
		}
	}()
}

func (o *Orchestrator) commitSummary(text string) conversation.Message {
	if strings.TrimSpace(text) == "" {
		text = noSummaryText
	}
	return o.history.Commit(conversation.RoleSystem, text, "")
}

func summaryRequest(prompt string) inference.Request {
	return inference.Request{
		Kind:   inference.KindSummary,
		System: inference.SummaryInstruction,
		Prompt: prompt,
	}
}
