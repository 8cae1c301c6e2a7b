package inference

import (
	"fmt"
	"strings"

	"github.com/loansight/assistant/internal/conversation"
)

// SummaryInstruction is the system instruction for post-call summaries
const SummaryInstruction = "You are a professional Loan Officer assistant. Output nicely formatted markdown."

// ChatHistoryWindow is how many prior messages ground a text answer
const ChatHistoryWindow = 10

// GroundingInstruction is the live session system instruction for a document's text
func GroundingInstruction(content string) string {
	if strings.TrimSpace(content) == "" {
		return "You are a Loan Assistant. Context: No document content was found. Be concise and helpful."
	}
	return fmt.Sprintf("You are a Loan Assistant. Context: %s. Be concise and helpful.", content)
}

// ChatPrompt grounds a typed question in the document and the recent history
func ChatPrompt(content string, history []conversation.Message, question string) string {
	lines := make([]string, len(history))
	for i, m := range history {
		lines[i] = m.Label() + ": " + m.Text
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Context Document: %s\n\n", content)
	fmt.Fprintf(&b, "Chat History:\n%s\n\n", strings.Join(lines, "\n"))
	fmt.Fprintf(&b, "User Question: %s\n\n", question)
	b.WriteString("Answer as a helpful Loan Assistant. Use markdown for bolding key terms.")
	return b.String()
}

// SummaryPrompt asks for a structured summary of the non-system messages.
// ok is false when there is nothing to summarize.
func SummaryPrompt(documentName string, messages []conversation.Message) (prompt string, ok bool) {
	if documentName == "" {
		documentName = "Loan Document"
	}

	var lines []string
	for _, m := range messages {
		if m.Role == conversation.RoleSystem {
			continue
		}
		lines = append(lines, strings.ToUpper(string(m.Role))+": "+m.Text)
	}
	if len(lines) == 0 {
		return "", false
	}

	return fmt.Sprintf("Analyze the following conversation about the document \"%s\" and provide a structured summary.\n\nConversation:\n%s",
		documentName, strings.Join(lines, "\n")), true
}

// WelcomeMessage greets the user when a document is opened on an empty conversation
func WelcomeMessage(documentName string) string {
	return fmt.Sprintf("I've loaded **%s**. \n\nYou can ask me questions via **Text** or toggle **Voice Mode** to have a conversation.", documentName)
}

// ExplainPrompt asks for an explanation of a selected passage
func ExplainPrompt(selection string) string {
	return fmt.Sprintf("Context: \"%s\". Explain this.", selection)
}

// TranslatePrompt asks for a translation of a selected passage
func TranslatePrompt(selection, language string) string {
	return fmt.Sprintf("Context: \"%s\". Translate this into %s and explain any financial terms in plain words.", selection, language)
}
