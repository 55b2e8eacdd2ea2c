package settings

import "notechat/pkg/chattypes"

// Resolve builds the chat configuration for one turn. Every field is resolved
// on its own: the document's value wins, then the plugin-wide chat defaults,
// then the hard-coded default. docName is the document's base name and is the
// title of last resort.
func Resolve(doc *DocumentConfig, s Settings, docName string) *chattypes.ChatConfig {
	if doc == nil {
		doc = &DocumentConfig{}
	}
	plugin := &s.Chat

	llm := chattypes.LLM(firstString(doc.LLM, plugin.LLM, strPtr(s.DefaultLLM), strPtr(string(DefaultLLM))))

	cfg := &chattypes.ChatConfig{
		LLM:              llm,
		Model:            resolveModel(doc, s, llm),
		Stream:           firstBool(doc.Stream, plugin.Stream, DefaultStream),
		Temperature:      firstPtr(doc.Temperature, plugin.Temperature),
		TopP:             firstPtr(doc.TopP, plugin.TopP),
		PresencePenalty:  firstPtr(doc.PresencePenalty, plugin.PresencePenalty),
		FrequencyPenalty: firstPtr(doc.FrequencyPenalty, plugin.FrequencyPenalty),
		MaxTokens:        firstPtr(doc.MaxTokens, plugin.MaxTokens),
		Stop:             firstList(doc.Stop, plugin.Stop),
		N:                firstPtr(doc.N, plugin.N),
		LogitBias:        firstMap(doc.LogitBias, plugin.LogitBias),
		User:             firstString(doc.User, plugin.User),
		SystemCommands:   firstList(doc.systemCommands(), plugin.systemCommands()),
		Title:            firstString(doc.Title, plugin.Title, strPtr(docName)),
		Tags:             firstList(doc.Tags, plugin.Tags),
	}
	if cfg.Tags == nil {
		cfg.Tags = []string{}
	}
	return cfg
}

// resolveModel adds the per-provider tier between the plugin-wide chat
// default and the hard-coded model.
func resolveModel(doc *DocumentConfig, s Settings, llm chattypes.LLM) string {
	return firstString(
		doc.Model,
		s.Chat.Model,
		strPtr(s.Provider(llm).Model),
		strPtr(DefaultModels[llm]),
	)
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func firstString(values ...*string) string {
	for _, v := range values {
		if v != nil {
			return *v
		}
	}
	return ""
}

func firstBool(doc, plugin *bool, fallback bool) bool {
	if doc != nil {
		return *doc
	}
	if plugin != nil {
		return *plugin
	}
	return fallback
}

func firstPtr[T any](values ...*T) *T {
	for _, v := range values {
		if v != nil {
			copied := *v
			return &copied
		}
	}
	return nil
}

func firstList(values ...[]string) []string {
	for _, v := range values {
		if v != nil {
			return append([]string(nil), v...)
		}
	}
	return nil
}

func firstMap(values ...map[string]int) map[string]int {
	for _, v := range values {
		if v != nil {
			out := make(map[string]int, len(v))
			for k, n := range v {
				out[k] = n
			}
			return out
		}
	}
	return nil
}
