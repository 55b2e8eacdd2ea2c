package output

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
)

// MarkdownRenderer renders chat transcripts for the terminal using glamour.
type MarkdownRenderer struct {
	renderer *glamour.TermRenderer
	style    string
}

// NewMarkdownRenderer creates a renderer for style ("auto", "dark", "light",
// "notty", "ascii"), wrapping at width.
func NewMarkdownRenderer(style string, width int) (*MarkdownRenderer, error) {
	if width <= 0 {
		return nil, fmt.Errorf("word wrap width must be positive, got %d", width)
	}

	var option glamour.TermRendererOption
	if style == "" || style == "auto" {
		option = glamour.WithStylePath(GlamourStyle())
	} else {
		option = glamour.WithStylePath(style)
	}

	renderer, err := glamour.NewTermRenderer(option, glamour.WithWordWrap(width))
	if err != nil {
		return nil, fmt.Errorf("failed to create markdown renderer: %w", err)
	}
	return &MarkdownRenderer{renderer: renderer, style: style}, nil
}

// Render renders markdown content to ANSI terminal output.
func (m *MarkdownRenderer) Render(markdown string) (string, error) {
	if strings.TrimSpace(markdown) == "" {
		return "", nil
	}
	rendered, err := m.renderer.Render(markdown)
	if err != nil {
		return "", fmt.Errorf("failed to render markdown: %w", err)
	}
	return strings.TrimRight(rendered, "\n"), nil
}
