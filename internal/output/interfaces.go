// Package output provides the console output system for the notechat CLI.
// Printers render semantic messages either plain or through a StyleProvider.
package output

// StyleProvider supplies styles for semantic output types.
// The output package depends only on this interface.
type StyleProvider interface {
	// GetStyle returns a TextStyle for the given semantic type.
	// Semantic types include: "info", "success", "warning", "error", "notice", etc.
	GetStyle(semantic string) TextStyle

	// IsAvailable returns true if the style provider is ready to provide styles.
	// This allows the output system to gracefully fall back to plain text.
	IsAvailable() bool
}

// TextStyle represents the capability to render text with styling.
// This interface is implemented by lipgloss.Style or other styling systems.
type TextStyle interface {
	// Render applies styling to the given text and returns the styled result.
	Render(text string) string
}

// Mode defines different output modes the printer can operate in.
type Mode int

const (
	// ModeAuto uses styles when a provider is available
	ModeAuto Mode = iota

	// ModeStyled forces styled output (with colors, formatting)
	ModeStyled

	// ModePlain forces plain text output (no colors, minimal formatting)
	ModePlain

	// ModeJSON outputs structured JSON for machine consumption
	ModeJSON
)

// SemanticType defines the semantic meaning of output for consistent styling.
type SemanticType string

const (
	// SemanticPlain represents plain text without any semantic meaning.
	SemanticPlain SemanticType = "plain"
	// SemanticInfo represents informational text.
	SemanticInfo SemanticType = "info"
	// SemanticSuccess represents success or completion text.
	SemanticSuccess SemanticType = "success"
	// SemanticWarning represents warning text.
	SemanticWarning SemanticType = "warning"
	// SemanticError represents error text.
	SemanticError SemanticType = "error"
	// SemanticNotice represents a transient notice raised by a chat operation.
	SemanticNotice SemanticType = "notice"

	// SemanticHeading represents a section or role heading.
	SemanticHeading SemanticType = "heading"
	// SemanticKey represents a setting name.
	SemanticKey SemanticType = "key"
	// SemanticMuted represents secondary text such as paths.
	SemanticMuted SemanticType = "muted"
)
