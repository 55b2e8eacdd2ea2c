package output

// PlainTextStyle implements TextStyle for plain text output without any styling.
type PlainTextStyle struct {
	prefix string // Optional prefix for semantic meaning
}

// NewPlainTextStyle creates a new plain text style with an optional prefix.
func NewPlainTextStyle(prefix string) *PlainTextStyle {
	return &PlainTextStyle{prefix: prefix}
}

// Render implements TextStyle.Render for plain text output.
func (p *PlainTextStyle) Render(text string) string {
	if p.prefix != "" {
		return p.prefix + text
	}
	return text
}

// PlainStyleProvider implements StyleProvider for plain text output.
// Semantic types are marked with a short prefix instead of colour.
type PlainStyleProvider struct{}

// NewPlainStyleProvider creates a new plain style provider.
func NewPlainStyleProvider() *PlainStyleProvider {
	return &PlainStyleProvider{}
}

// GetStyle implements StyleProvider.GetStyle for plain text styles with semantic prefixes.
func (p *PlainStyleProvider) GetStyle(semantic string) TextStyle {
	switch SemanticType(semantic) {
	case SemanticSuccess:
		return NewPlainTextStyle("✓ ")
	case SemanticWarning:
		return NewPlainTextStyle("⚠ ")
	case SemanticError:
		return NewPlainTextStyle("✗ ")
	case SemanticInfo:
		return NewPlainTextStyle("ℹ ")
	case SemanticNotice:
		return NewPlainTextStyle("» ")
	case SemanticHeading:
		return NewPlainTextStyle("# ")
	default:
		return NewPlainTextStyle("")
	}
}

// IsAvailable implements StyleProvider.IsAvailable.
func (p *PlainStyleProvider) IsAvailable() bool {
	return true
}
