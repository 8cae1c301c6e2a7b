package conversation

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

const (
	pdfFont       = "Arial"
	pdfFontSize   = 10.0
	pdfLineHeight = 5.0
)

// ExportPDF writes the transcript as a PDF document titled after the document name
func ExportPDF(w io.Writer, documentName string, messages []Message) error {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 15, 15)
	pdf.SetAutoPageBreak(true, 15)
	pdf.SetTitle(fmt.Sprintf("Conversation: %s", documentName), true)
	pdf.AddPage()

	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFont(pdfFont, "B", 14)
	pdf.MultiCell(0, 7, tr(fmt.Sprintf("Conversation about %s", documentName)), "", "L", false)
	pdf.SetFont(pdfFont, "", 8)
	pdf.SetTextColor(120, 120, 120)
	pdf.MultiCell(0, 5, tr(fmt.Sprintf("Exported %s - %d messages", time.Now().Format(time.RFC1123), len(messages))), "", "L", false)
	pdf.SetTextColor(0, 0, 0)
	pdf.Ln(4)

	for _, m := range messages {
		writeMessageHeader(pdf, tr, m)

		r := &pdfRenderer{pdf: pdf, tr: tr, source: []byte(m.Text)}
		doc := markdown.Parser().Parse(text.NewReader(r.source))
		if err := ast.Walk(doc, r.walk); err != nil {
			return fmt.Errorf("failed to render message %s: %w", m.ID, err)
		}
		pdf.Ln(3)
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("failed to generate PDF output: %w", err)
	}
	return nil
}

func writeMessageHeader(pdf *fpdf.Fpdf, tr func(string) string, m Message) {
	header := m.Label()
	if m.Mode != "" {
		header += fmt.Sprintf(" (%s)", m.Mode)
	}
	header += "  " + m.Timestamp.Format("15:04:05")

	switch m.Role {
	case RoleUser:
		pdf.SetTextColor(30, 64, 175)
	case RoleSystem:
		pdf.SetTextColor(180, 83, 9)
	default:
		pdf.SetTextColor(4, 120, 87)
	}
	pdf.SetFont(pdfFont, "B", 9)
	pdf.MultiCell(0, pdfLineHeight, tr(header), "", "L", false)
	pdf.SetTextColor(0, 0, 0)
	pdf.SetFont(pdfFont, "", pdfFontSize)
}

// pdfRenderer writes a markdown AST into the current PDF page flow
type pdfRenderer struct {
	pdf       *fpdf.Fpdf
	tr        func(string) string
	source    []byte
	bold      bool
	italic    bool
	listLevel int
}

func (r *pdfRenderer) updateFont() {
	style := ""
	if r.bold {
		style += "B"
	}
	if r.italic {
		style += "I"
	}
	r.pdf.SetFont(pdfFont, style, pdfFontSize)
}

func (r *pdfRenderer) write(s string) {
	r.pdf.Write(pdfLineHeight, r.tr(s))
}

func (r *pdfRenderer) walk(n ast.Node, entering bool) (ast.WalkStatus, error) {
	switch node := n.(type) {
	case *ast.Heading:
		if entering {
			r.pdf.Ln(2)
			r.pdf.SetFont(pdfFont, "B", max(14-float64(node.Level), pdfFontSize+1))
		} else {
			r.pdf.Ln(pdfLineHeight + 1)
			r.updateFont()
		}

	case *ast.Paragraph:
		if !entering {
			r.pdf.Ln(pdfLineHeight + 1)
		}

	case *ast.Text:
		if entering {
			r.write(string(node.Segment.Value(r.source)))
			if node.HardLineBreak() {
				r.pdf.Ln(pdfLineHeight)
			} else if node.SoftLineBreak() {
				r.write(" ")
			}
		}

	case *ast.Emphasis:
		if node.Level == 2 {
			r.bold = entering
		} else {
			r.italic = entering
		}
		r.updateFont()

	case *ast.CodeSpan:
		if entering {
			r.pdf.SetFont("Courier", "", pdfFontSize)
			for c := node.FirstChild(); c != nil; c = c.NextSibling() {
				if t, ok := c.(*ast.Text); ok {
					r.write(string(t.Segment.Value(r.source)))
				}
			}
			r.updateFont()
		}
		return ast.WalkSkipChildren, nil

	case *ast.FencedCodeBlock, *ast.CodeBlock:
		if entering {
			r.pdf.SetFont("Courier", "", pdfFontSize-1)
			lines := n.Lines()
			var sb strings.Builder
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				sb.Write(seg.Value(r.source))
			}
			r.pdf.MultiCell(0, pdfLineHeight, r.tr(strings.TrimRight(sb.String(), "\n")), "", "L", false)
			r.updateFont()
			r.pdf.Ln(1)
		}
		return ast.WalkSkipChildren, nil

	case *ast.List:
		if entering {
			r.listLevel++
		} else {
			r.listLevel--
			if r.listLevel == 0 {
				r.pdf.Ln(1)
			}
		}

	case *ast.ListItem:
		if entering {
			r.pdf.SetX(15 + float64(r.listLevel)*5)
			r.write("- ")
		}

	case *ast.TextBlock:
		if !entering {
			r.pdf.Ln(pdfLineHeight)
		}

	case *ast.ThematicBreak:
		if entering {
			y := r.pdf.GetY() + 2
			r.pdf.Line(15, y, 195, y)
			r.pdf.Ln(4)
		}
	}
	return ast.WalkContinue, nil
}
