package conversation

import (
	"bytes"
	"fmt"
	"html"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	gmhtml "github.com/yuin/goldmark/renderer/html"
)

// Model replies and summaries are markdown
var markdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithParserOptions(parser.WithAutoHeadingID()),
	goldmark.WithRendererOptions(gmhtml.WithHardWraps()),
)

// RenderHTML converts message markdown to HTML. Raw HTML in the input is
// dropped by the renderer. On failure the text is returned escaped in a <pre>.
func RenderHTML(text string) string {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(text), &buf); err != nil {
		return fmt.Sprintf("<pre>%s</pre>", html.EscapeString(text))
	}
	return buf.String()
}

// RenderedMessage is a message with its text rendered for display
type RenderedMessage struct {
	Message
	HTML string `json:"html"`
}

// Render renders every message for display
func Render(messages []Message) []RenderedMessage {
	out := make([]RenderedMessage, len(messages))
	for i, m := range messages {
		out[i] = RenderedMessage{Message: m, HTML: RenderHTML(m.Text)}
	}
	return out
}
