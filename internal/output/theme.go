package output

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Theme is a StyleProvider backed by lipgloss styles.
type Theme struct {
	Name   string
	styles map[SemanticType]lipgloss.Style
}

// DefaultTheme returns the colour theme used on capable terminals.
func DefaultTheme() *Theme {
	return &Theme{
		Name: "default",
		styles: map[SemanticType]lipgloss.Style{
			SemanticPlain:   lipgloss.NewStyle(),
			SemanticInfo:    lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
			SemanticSuccess: lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
			SemanticWarning: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
			SemanticError:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196")),
			SemanticNotice: lipgloss.NewStyle().
				Padding(0, 1).
				Background(lipgloss.Color("99")).
				Foreground(lipgloss.Color("15")),
			SemanticHeading: lipgloss.NewStyle().Bold(true).Underline(true).Foreground(lipgloss.Color("99")),
			SemanticKey:     lipgloss.NewStyle().Foreground(lipgloss.Color("46")),
			SemanticMuted:   lipgloss.NewStyle().Faint(true),
		},
	}
}

// lipglossStyle adapts lipgloss.Style, whose Render is variadic, to TextStyle.
type lipglossStyle struct {
	style lipgloss.Style
}

func (l lipglossStyle) Render(text string) string {
	return l.style.Render(text)
}

// GetStyle implements StyleProvider.GetStyle. Unknown semantics render unstyled.
func (t *Theme) GetStyle(semantic string) TextStyle {
	if style, ok := t.styles[SemanticType(semantic)]; ok {
		return lipglossStyle{style: style}
	}
	return lipglossStyle{style: lipgloss.NewStyle()}
}

// IsAvailable reports whether the terminal can show colour.
func (t *Theme) IsAvailable() bool {
	return lipgloss.ColorProfile() != termenv.Ascii
}

// GlamourStyle maps the terminal background to a glamour style name.
func GlamourStyle() string {
	if lipgloss.ColorProfile() == termenv.Ascii {
		return "notty"
	}
	if lipgloss.HasDarkBackground() {
		return "dark"
	}
	return "light"
}
