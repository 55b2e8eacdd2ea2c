// Package chattypes defines the resolved per-document chat configuration.
package chattypes

// LLM names a provider backend.
type LLM string

// Supported provider backends.
const (
	LLMOpenAI           LLM = "openai"
	LLMAnthropic        LLM = "anthropic"
	LLMGemini           LLM = "gemini"
	LLMOpenAICompatible LLM = "openai-compatible"
	LLMOpenRouter       LLM = "openrouter"
	LLMOllama           LLM = "ollama"
)

// ChatConfig is the fully resolved configuration for one chat turn.
// Every field has already gone through document -> settings -> default resolution.
// Optional sampling parameters are nil when no tier sets them, so adapters
// only send what was asked for.
type ChatConfig struct {
	LLM              LLM
	Model            string
	Stream           bool
	Temperature      *float64
	TopP             *float64
	PresencePenalty  *float64
	FrequencyPenalty *float64
	MaxTokens        *int
	Stop             []string
	N                *int
	LogitBias        map[string]int
	User             string
	SystemCommands   []string
	Title            string
	Tags             []string
}

// SystemMessages returns the configured system commands as system-role messages.
func (c *ChatConfig) SystemMessages() []Message {
	out := make([]Message, 0, len(c.SystemCommands))
	for _, cmd := range c.SystemCommands {
		if cmd == "" {
			continue
		}
		out = append(out, NewTextMessage(RoleSystem, cmd))
	}
	return out
}
