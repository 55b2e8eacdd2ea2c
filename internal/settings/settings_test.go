package settings

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notechat/pkg/chattypes"
)

func ptr[T any](v T) *T { return &v }

func TestParseDocumentConfig(t *testing.T) {
	cfg, err := ParseDocumentConfig(`
model: gpt-4o
stream: false
temperature: 0.2
max_tokens: 256
stop: "###"
logit_bias: {"50256": -100}
system: ["be brief"]
tags: [travel, planning]
`)
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", *cfg.Model)
	assert.False(t, *cfg.Stream)
	assert.InDelta(t, 0.2, *cfg.Temperature, 1e-9)
	assert.Equal(t, 256, *cfg.MaxTokens)
	assert.Equal(t, StringList{"###"}, cfg.Stop)
	assert.Equal(t, map[string]int{"50256": -100}, cfg.LogitBias)
	assert.Equal(t, []string{"be brief"}, cfg.systemCommands())
	assert.Equal(t, StringList{"travel", "planning"}, cfg.Tags)
	assert.Nil(t, cfg.TopP)
	assert.Nil(t, cfg.LLM)
}

func TestParseDocumentConfig_Invalid(t *testing.T) {
	_, err := ParseDocumentConfig("stop: {a: 1}")
	assert.Error(t, err)

	_, err = ParseDocumentConfig("model: [unterminated")
	assert.Error(t, err)
}

func TestResolve_DocumentWinsOverSettings(t *testing.T) {
	s := Defaults()
	s.Chat.Stream = ptr(true)
	s.Chat.Temperature = ptr(0.9)
	s.Chat.Model = ptr("gpt-4o-mini")

	doc := &DocumentConfig{
		Stream:      ptr(false),
		Temperature: ptr(0.1),
	}

	cfg := Resolve(doc, s, "20240101120000")
	assert.False(t, cfg.Stream, "document value wins over plugin setting")
	assert.InDelta(t, 0.1, *cfg.Temperature, 1e-9)
	assert.Equal(t, "gpt-4o-mini", cfg.Model, "absent in document falls back to plugin setting")
}

func TestResolve_HardCodedDefaults(t *testing.T) {
	cfg := Resolve(nil, Settings{}, "chat")

	assert.Equal(t, DefaultLLM, cfg.LLM)
	assert.Equal(t, DefaultStream, cfg.Stream)
	assert.Equal(t, DefaultModels[chattypes.LLMOpenAI], cfg.Model)
	assert.Equal(t, "chat", cfg.Title)
	assert.Equal(t, []string{}, cfg.Tags)
	assert.Nil(t, cfg.Temperature)
	assert.Nil(t, cfg.MaxTokens)
	assert.Nil(t, cfg.SystemCommands)
}

func TestResolve_PerFieldIndependence(t *testing.T) {
	s := Settings{
		DefaultLLM: "anthropic",
		Providers: map[string]ProviderSettings{
			"anthropic": {Model: "claude-3-opus-latest"},
		},
		Chat: DocumentConfig{
			MaxTokens:      ptr(2048),
			SystemCommands: StringList{"plugin prompt"},
		},
	}
	doc := &DocumentConfig{
		Title:  ptr("Trip"),
		System: StringList{"doc prompt"},
	}

	cfg := Resolve(doc, s, "ignored")
	assert.Equal(t, chattypes.LLMAnthropic, cfg.LLM)
	assert.Equal(t, "claude-3-opus-latest", cfg.Model, "provider tier sits between chat default and hard default")
	assert.Equal(t, 2048, *cfg.MaxTokens)
	assert.Equal(t, []string{"doc prompt"}, cfg.SystemCommands)
	assert.Equal(t, "Trip", cfg.Title)
}

func TestResolve_DoesNotAliasInputs(t *testing.T) {
	s := Settings{Chat: DocumentConfig{Temperature: ptr(0.5), Stop: StringList{"a"}}}
	cfg := Resolve(nil, s, "x")

	*cfg.Temperature = 1
	cfg.Stop[0] = "b"
	assert.InDelta(t, 0.5, *s.Chat.Temperature, 1e-9)
	assert.Equal(t, "a", s.Chat.Stop[0])
}

func TestHeadingPrefix(t *testing.T) {
	tests := map[int]string{-1: "", 0: "", 1: "# ", 3: "### ", 6: "###### ", 9: "###### "}
	for level, expected := range tests {
		assert.Equal(t, expected, Settings{HeadingLevel: level}.HeadingPrefix(), level)
	}
}

func TestTitleModel(t *testing.T) {
	s := Settings{Providers: map[string]ProviderSettings{
		"openai-compatible": {Model: "llama3"},
		"openai":            {TitleModel: "gpt-4.1-nano"},
	}}
	assert.Equal(t, "gpt-4.1-nano", s.TitleModel(chattypes.LLMOpenAI))
	assert.Equal(t, DefaultTitleModels[chattypes.LLMAnthropic], s.TitleModel(chattypes.LLMAnthropic))
	assert.Equal(t, "llama3", s.TitleModel(chattypes.LLMOpenAICompatible))
}
