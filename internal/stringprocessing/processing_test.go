package stringprocessing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFindWikiLinks(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		targets []string
		labels  []string
	}{
		{
			name:    "plain link",
			input:   "see [[notes/plan.md]] please",
			targets: []string{"notes/plan.md"},
			labels:  []string{""},
		},
		{
			name:    "link with label",
			input:   "[[diagram.png|the diagram]]",
			targets: []string{"diagram.png"},
			labels:  []string{"the diagram"},
		},
		{
			name:    "inline code is skipped",
			input:   "Some [[wiki link]] and `[[not a link]]`",
			targets: []string{"wiki link"},
			labels:  []string{""},
		},
		{
			name:    "fenced block is skipped",
			input:   "```\n[[inside.md]]\n```\n[[outside.md]]",
			targets: []string{"outside.md"},
			labels:  []string{""},
		},
		{
			name:    "unclosed backtick is literal",
			input:   "a ` then [[file.md]]",
			targets: []string{"file.md"},
			labels:  []string{""},
		},
		{
			name:    "order of appearance",
			input:   "[[b.png]] then [[a.md]]",
			targets: []string{"b.png", "a.md"},
			labels:  []string{"", ""},
		},
		{
			name:  "empty target ignored",
			input: "[[]] and [[ ]]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			links := FindWikiLinks(tt.input)
			var targets, labels []string
			for _, l := range links {
				targets = append(targets, l.Target)
				labels = append(labels, l.Label)
			}
			assert.Equal(t, tt.targets, targets)
			assert.Equal(t, tt.labels, labels)
		})
	}
}

func TestCodeSpans(t *testing.T) {
	spans := CodeSpans("a `b` c ``d`e`` f")
	assert.Equal(t, [][2]int{{2, 5}, {8, 15}}, spans)
}

func TestHasUnclosedCodeFence(t *testing.T) {
	assert.False(t, HasUnclosedCodeFence("no code"))
	assert.True(t, HasUnclosedCodeFence("```python\nprint(1)"))
	assert.False(t, HasUnclosedCodeFence("```python\nprint(1)\n```"))
	assert.True(t, HasUnclosedCodeFence("```a```\n```"))
}

func TestSanitizeTitle(t *testing.T) {
	tests := map[string]string{
		`Title: My/Trip\Notes`:     "My Trip Notes",
		"title: lowercase":         "lowercase",
		"  \"Quoted Title\"  ":     "Quoted",
		"Planning: Q3 / Q4 budget": "Planning Q3 Q4 budget",
		"Already fine":             "Already fine",
	}
	for input, expected := range tests {
		assert.Equal(t, expected, SanitizeTitle(input), input)
	}
}

func TestIsTruthy(t *testing.T) {
	for _, v := range []string{"true", "1", "yes", "ON", "enabled", "anything"} {
		assert.True(t, IsTruthy(v), v)
	}
	for _, v := range []string{"", "  ", "false", "0", "no", "Off", "disabled"} {
		assert.False(t, IsTruthy(v), v)
	}
}
