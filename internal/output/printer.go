package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/x/ansi"
)

// Printer is the main output handler that supports both plain and styled output.
type Printer struct {
	styleProvider StyleProvider
	markdown      *MarkdownRenderer
	writer        io.Writer
	mode          Mode
	forcePlain    bool

	// Thread safety for concurrent output
	mu sync.Mutex
}

// NewPrinter creates a new Printer with the given options.
// By default, it writes to os.Stdout with automatic mode detection.
func NewPrinter(options ...Option) *Printer {
	p := &Printer{
		writer: os.Stdout,
		mode:   ModeAuto,
	}

	for _, opt := range options {
		opt(p)
	}

	return p
}

// Print outputs text without any semantic styling.
func (p *Printer) Print(text string) {
	p.output(SemanticPlain, text, false)
}

// Println outputs text with a newline without any semantic styling.
func (p *Printer) Println(text string) {
	p.output(SemanticPlain, text, true)
}

// Info outputs informational text with info styling.
func (p *Printer) Info(text string) {
	p.output(SemanticInfo, text, true)
}

// Success outputs success text with success styling (typically green).
func (p *Printer) Success(text string) {
	p.output(SemanticSuccess, text, true)
}

// Warning outputs warning text with warning styling (typically yellow).
func (p *Printer) Warning(text string) {
	p.output(SemanticWarning, text, true)
}

// Error outputs error text with error styling (typically red).
func (p *Printer) Error(text string) {
	p.output(SemanticError, text, true)
}

// Notice shows a transient notice to the user. It satisfies chattypes.Notifier.
func (p *Printer) Notice(message string) {
	p.output(SemanticNotice, message, true)
}

// Heading outputs a heading line.
func (p *Printer) Heading(text string) {
	p.output(SemanticHeading, text, true)
}

// KeyValue outputs a "key: value" line with the key styled.
func (p *Printer) KeyValue(key, value string) {
	line := p.style(SemanticKey, key) + ": " + value
	if p.mode == ModeJSON {
		line = p.renderJSON(SemanticKey, key+": "+value)
	} else {
		line += "\n"
	}
	p.write(line)
}

// Muted outputs secondary text.
func (p *Printer) Muted(text string) {
	p.output(SemanticMuted, text, true)
}

// Markdown renders markdown for the terminal when a renderer is configured.
// Plain and JSON printers output the source unchanged.
func (p *Printer) Markdown(markdown string) {
	if p.markdown == nil || p.forcePlain || p.mode == ModeJSON {
		p.output(SemanticPlain, markdown, true)
		return
	}
	rendered, err := p.markdown.Render(markdown)
	if err != nil {
		p.output(SemanticPlain, markdown, true)
		return
	}
	p.output(SemanticPlain, rendered, true)
}

// Truncate shortens text to width terminal cells, keeping ANSI sequences intact.
// A width of zero or less returns text unchanged.
func Truncate(text string, width int) string {
	if width <= 0 || ansi.StringWidth(text) <= width {
		return text
	}
	return ansi.Truncate(text, width, "…")
}

// output is the core output method that handles all rendering logic.
func (p *Printer) output(semantic SemanticType, text string, addNewline bool) {
	var finalText string
	switch p.mode {
	case ModeJSON:
		finalText = p.renderJSON(semantic, text)
	default:
		finalText = p.style(semantic, text)
		if addNewline && !strings.HasSuffix(finalText, "\n") {
			finalText += "\n"
		}
	}

	p.write(finalText)
}

func (p *Printer) write(text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, _ = fmt.Fprint(p.writer, text) // Ignore write errors for output operations
}

// style renders text with the provider's style, or with plain semantic prefixes.
func (p *Printer) style(semantic SemanticType, text string) string {
	if p.IsStylable() {
		return p.styleProvider.GetStyle(string(semantic)).Render(text)
	}
	return NewPlainStyleProvider().GetStyle(string(semantic)).Render(text)
}

// renderJSON renders output as structured JSON.
func (p *Printer) renderJSON(semantic SemanticType, text string) string {
	output := map[string]interface{}{
		"type":    semantic,
		"message": text,
	}

	jsonBytes, err := json.Marshal(output)
	if err != nil {
		return text + "\n"
	}

	return string(jsonBytes) + "\n"
}

// SetMarkdown changes the markdown renderer. Pass nil to print markdown as is.
func (p *Printer) SetMarkdown(renderer *MarkdownRenderer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.markdown = renderer
}

// IsStylable returns true if the printer can apply styles.
func (p *Printer) IsStylable() bool {
	return !p.forcePlain && p.mode != ModePlain && p.styleProvider != nil && p.styleProvider.IsAvailable()
}
