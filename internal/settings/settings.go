// Package settings defines notechat's plugin-wide settings, the per-document
// configuration schema, and the per-field resolution between them.
package settings

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"notechat/pkg/chattypes"
)

// StringList is a list that also accepts a single scalar in YAML,
// so `stop: "###"` and `stop: ["###"]` decode the same way.
type StringList []string

// UnmarshalYAML implements yaml.Unmarshaler.
func (l *StringList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		if value.Tag == "!!null" {
			*l = nil
			return nil
		}
		*l = StringList{value.Value}
		return nil
	case yaml.SequenceNode:
		var items []string
		if err := value.Decode(&items); err != nil {
			return err
		}
		*l = items
		return nil
	default:
		return fmt.Errorf("line %d: expected a string or a list of strings", value.Line)
	}
}

// DocumentConfig is the configuration a document may carry in its frontmatter.
// Pointer and slice fields are nil when the key is absent so resolution can
// fall through to the next tier field by field. The same shape is used for the
// plugin-wide chat defaults in the settings file.
type DocumentConfig struct {
	LLM              *string        `yaml:"llm" mapstructure:"llm"`
	Model            *string        `yaml:"model" mapstructure:"model"`
	Stream           *bool          `yaml:"stream" mapstructure:"stream"`
	Temperature      *float64       `yaml:"temperature" mapstructure:"temperature"`
	TopP             *float64       `yaml:"top_p" mapstructure:"top_p"`
	PresencePenalty  *float64       `yaml:"presence_penalty" mapstructure:"presence_penalty"`
	FrequencyPenalty *float64       `yaml:"frequency_penalty" mapstructure:"frequency_penalty"`
	MaxTokens        *int           `yaml:"max_tokens" mapstructure:"max_tokens"`
	Stop             StringList     `yaml:"stop" mapstructure:"stop"`
	N                *int           `yaml:"n" mapstructure:"n"`
	LogitBias        map[string]int `yaml:"logit_bias" mapstructure:"logit_bias"`
	User             *string        `yaml:"user" mapstructure:"user"`
	SystemCommands   StringList     `yaml:"system_commands" mapstructure:"system_commands"`
	System           StringList     `yaml:"system" mapstructure:"system"`
	Title            *string        `yaml:"title" mapstructure:"title"`
	Tags             StringList     `yaml:"tags" mapstructure:"tags"`
}

// ParseDocumentConfig decodes a frontmatter body (without the --- fences).
func ParseDocumentConfig(frontmatter string) (*DocumentConfig, error) {
	cfg := &DocumentConfig{}
	if err := yaml.Unmarshal([]byte(frontmatter), cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration block: %w", err)
	}
	return cfg, nil
}

// systemCommands returns system_commands, falling back to the system alias.
func (d *DocumentConfig) systemCommands() []string {
	if d == nil {
		return nil
	}
	if d.SystemCommands != nil {
		return d.SystemCommands
	}
	return d.System
}

// ProviderSettings holds per-provider defaults.
type ProviderSettings struct {
	Model      string `mapstructure:"model" yaml:"model"`
	TitleModel string `mapstructure:"title_model" yaml:"title_model"`
	BaseURL    string `mapstructure:"base_url" yaml:"base_url"`
}

// Settings is the process-wide configuration. Values are treated as an
// immutable snapshot once loaded; changes produce a new Settings.
type Settings struct {
	DefaultLLM             string                      `mapstructure:"default_llm" yaml:"default_llm"`
	Providers              map[string]ProviderSettings `mapstructure:"providers" yaml:"providers"`
	Chat                   DocumentConfig              `mapstructure:"chat" yaml:"chat"`
	VaultRoot              string                      `mapstructure:"vault_root" yaml:"vault_root"`
	ChatFolder             string                      `mapstructure:"chat_folder" yaml:"chat_folder"`
	ChatTemplateFolder     string                      `mapstructure:"chat_template_folder" yaml:"chat_template_folder"`
	DefaultChatFrontmatter string                      `mapstructure:"default_chat_frontmatter" yaml:"default_chat_frontmatter"`
	AutoInferTitle         bool                        `mapstructure:"auto_infer_title" yaml:"auto_infer_title"`
	DateFormat             string                      `mapstructure:"date_format" yaml:"date_format"`
	HeadingLevel           int                         `mapstructure:"heading_level" yaml:"heading_level"`
	InferTitleLanguage     string                      `mapstructure:"infer_title_language" yaml:"infer_title_language"`
	MinVersion             string                      `mapstructure:"min_version" yaml:"min_version"`
}

// Hard-coded defaults, the last resolution tier.
const (
	DefaultLLM                = chattypes.LLMOpenAI
	DefaultStream             = true
	DefaultChatFolder         = "chats"
	DefaultChatTemplateFolder = "chat-templates"
	DefaultDateFormat         = "YYYYMMDDhhmmss"
	DefaultHeadingLevel       = 0
	DefaultInferTitleLanguage = "English"
)

// DefaultModels is the model used per provider when no tier names one.
var DefaultModels = map[chattypes.LLM]string{
	chattypes.LLMOpenAI:     "gpt-4o-mini",
	chattypes.LLMAnthropic:  "claude-3-5-sonnet-latest",
	chattypes.LLMGemini:     "gemini-2.0-flash",
	chattypes.LLMOpenRouter: "openai/gpt-4o-mini",
	chattypes.LLMOllama:     "llama3.2",
}

// DefaultTitleModels is the model used for title inference per provider.
var DefaultTitleModels = map[chattypes.LLM]string{
	chattypes.LLMOpenAI:    "gpt-4o-mini",
	chattypes.LLMAnthropic: "claude-3-5-haiku-latest",
	chattypes.LLMGemini:    "gemini-2.0-flash-lite",
}

// DefaultFrontmatter is written at the top of new chats when the settings carry none.
const DefaultFrontmatter = `---
system_commands: ['I am a helpful assistant.']
temperature: 0
top_p: 1
max_tokens: 1024
presence_penalty: 1
frequency_penalty: 1
stream: true
stop: null
n: 1
model: gpt-4o-mini
---`

// Defaults returns the settings used when no settings file exists.
func Defaults() Settings {
	return Settings{
		DefaultLLM:             string(DefaultLLM),
		Providers:              map[string]ProviderSettings{},
		ChatFolder:             DefaultChatFolder,
		ChatTemplateFolder:     DefaultChatTemplateFolder,
		DefaultChatFrontmatter: DefaultFrontmatter,
		DateFormat:             DefaultDateFormat,
		HeadingLevel:           DefaultHeadingLevel,
		InferTitleLanguage:     DefaultInferTitleLanguage,
	}
}

// Provider returns the provider settings for llm, zero when unset.
func (s Settings) Provider(llm chattypes.LLM) ProviderSettings {
	if s.Providers == nil {
		return ProviderSettings{}
	}
	return s.Providers[string(llm)]
}

// TitleModel returns the model used for title inference with llm.
func (s Settings) TitleModel(llm chattypes.LLM) string {
	if m := s.Provider(llm).TitleModel; m != "" {
		return m
	}
	if m := DefaultTitleModels[llm]; m != "" {
		return m
	}
	return s.Provider(llm).Model
}

// HeadingPrefix returns the Markdown heading prefix for role headers.
// Level 0 means no heading; levels above 6 clamp to 6.
func (s Settings) HeadingPrefix() string {
	level := s.HeadingLevel
	switch {
	case level <= 0:
		return ""
	case level > 6:
		level = 6
	}
	prefix := make([]byte, 0, level+1)
	for i := 0; i < level; i++ {
		prefix = append(prefix, '#')
	}
	return string(append(prefix, ' '))
}
