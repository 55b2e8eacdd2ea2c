package services

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"sync"

	"notechat/internal/logger"
	"notechat/pkg/chattypes"
)

// Default endpoints for the OpenAI-compatible providers.
const (
	OpenRouterBaseURL = "https://openrouter.ai/api/v1"
	OllamaBaseURL     = "http://localhost:11434/v1"
)

// ClientProvider hands out a ready client for the provider a chat is configured with.
type ClientProvider interface {
	ClientFor(llm chattypes.LLM) (chattypes.LLMClient, error)
}

// ClientFactoryService manages the creation and caching of LLM clients.
// Clients are cached per provider and API key; provider settings (base URL,
// title model) come from the configuration service.
type ClientFactoryService struct {
	initialized    bool
	config         *ConfigurationService
	debugTransport http.RoundTripper
	clients        map[string]chattypes.LLMClient
	mutex          sync.RWMutex
}

// NewClientFactoryService creates a new ClientFactoryService instance.
// config may be nil, in which case provider settings are left at their defaults.
func NewClientFactoryService(config *ConfigurationService) *ClientFactoryService {
	return &ClientFactoryService{
		initialized: false,
		config:      config,
		clients:     make(map[string]chattypes.LLMClient),
	}
}

// Name returns the service name "client_factory" for registration.
func (f *ClientFactoryService) Name() string {
	return "client_factory"
}

// Initialize sets up the ClientFactoryService for operation.
func (f *ClientFactoryService) Initialize() error {
	logger.ServiceOperation("client_factory", "initialize", "starting")
	f.initialized = true
	logger.ServiceOperation("client_factory", "initialize", "completed")
	return nil
}

// SetDebugTransport routes every client created from now on through transport.
// Cached clients are dropped so they pick it up.
func (f *ClientFactoryService) SetDebugTransport(transport http.RoundTripper) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.debugTransport = transport
	f.clients = make(map[string]chattypes.LLMClient)
}

// ClientFor returns a client for llm using the configured API key.
func (f *ClientFactoryService) ClientFor(llm chattypes.LLM) (chattypes.LLMClient, error) {
	if !f.initialized {
		return nil, fmt.Errorf("client factory service not initialized")
	}
	if f.config == nil {
		return nil, fmt.Errorf("client factory has no configuration service")
	}

	apiKey, err := f.config.GetAPIKey(string(llm))
	if err != nil && requiresAPIKey(string(llm)) {
		return nil, err
	}
	return f.GetClientForProvider(string(llm), apiKey)
}

// GetClientForProvider returns an LLM client for the specified provider and API key.
// Local OpenAI-compatible servers may be used without a key.
func (f *ClientFactoryService) GetClientForProvider(provider, apiKey string) (chattypes.LLMClient, error) {
	if !f.initialized {
		return nil, fmt.Errorf("client factory service not initialized")
	}

	if provider == "" {
		return nil, fmt.Errorf("provider cannot be empty")
	}

	if apiKey == "" && requiresAPIKey(provider) {
		return nil, fmt.Errorf("API key cannot be empty for provider '%s'", provider)
	}

	providerSettings := f.providerSettings(chattypes.LLM(provider))
	clientID := f.generateClientID(provider, apiKey, providerSettings.BaseURL)

	f.mutex.RLock()
	if client, exists := f.clients[clientID]; exists {
		f.mutex.RUnlock()
		logger.Debug("Returning cached provider client", "provider", provider, "clientID", clientID)
		return client, nil
	}
	f.mutex.RUnlock()

	f.mutex.Lock()
	defer f.mutex.Unlock()

	// Double-check pattern
	if client, exists := f.clients[clientID]; exists {
		return client, nil
	}

	client, err := f.createClient(provider, apiKey, providerSettings)
	if err != nil {
		return nil, err
	}

	f.clients[clientID] = client
	logger.Debug("Created new provider client", "provider", provider, "clientID", clientID)
	return client, nil
}

// providerClientSettings is what the factory applies to a fresh client.
type providerClientSettings struct {
	BaseURL    string
	TitleModel string
}

func (f *ClientFactoryService) providerSettings(llm chattypes.LLM) providerClientSettings {
	if f.config == nil {
		return providerClientSettings{}
	}
	s := f.config.Settings()
	return providerClientSettings{
		BaseURL:    s.Provider(llm).BaseURL,
		TitleModel: s.TitleModel(llm),
	}
}

// createClient builds the client for provider. Callers hold the write lock.
func (f *ClientFactoryService) createClient(provider, apiKey string, ps providerClientSettings) (chattypes.LLMClient, error) {
	switch chattypes.LLM(provider) {
	case chattypes.LLMOpenAI:
		client := NewOpenAIClient(apiKey)
		client.SetBaseURL(ps.BaseURL)
		client.SetTitleModel(ps.TitleModel)
		if f.debugTransport != nil {
			client.SetDebugTransport(f.debugTransport)
		}
		return client, nil
	case chattypes.LLMAnthropic:
		client := NewAnthropicClient(apiKey)
		client.SetBaseURL(ps.BaseURL)
		client.SetTitleModel(ps.TitleModel)
		if f.debugTransport != nil {
			client.SetDebugTransport(f.debugTransport)
		}
		return client, nil
	case chattypes.LLMGemini:
		client := NewGeminiClient(apiKey)
		client.SetBaseURL(ps.BaseURL)
		client.SetTitleModel(ps.TitleModel)
		if f.debugTransport != nil {
			client.SetDebugTransport(f.debugTransport)
		}
		return client, nil
	case chattypes.LLMOpenRouter:
		return f.createOpenAICompatibleClient(apiKey, provider, firstNonEmpty(ps.BaseURL, OpenRouterBaseURL), ps.TitleModel), nil
	case chattypes.LLMOllama:
		return f.createOpenAICompatibleClient(apiKey, provider, firstNonEmpty(ps.BaseURL, OllamaBaseURL), ps.TitleModel), nil
	case chattypes.LLMOpenAICompatible:
		if ps.BaseURL == "" {
			return nil, fmt.Errorf("provider '%s' needs a base_url in the settings", provider)
		}
		return f.createOpenAICompatibleClient(apiKey, provider, ps.BaseURL, ps.TitleModel), nil
	default:
		return nil, fmt.Errorf("unsupported provider '%s'. Supported providers: openai, anthropic, gemini, openrouter, ollama, openai-compatible", provider)
	}
}

// createOpenAICompatibleClient creates a new OpenAI-compatible client with the specified provider name and base URL.
func (f *ClientFactoryService) createOpenAICompatibleClient(apiKey, providerName, baseURL, titleModel string) chattypes.LLMClient {
	headers := make(map[string]string)

	// Set default headers for OpenRouter
	if providerName == string(chattypes.LLMOpenRouter) {
		headers["HTTP-Referer"] = "https://github.com/notechat/notechat"
		headers["X-Title"] = "notechat"
	}

	client := NewOpenAICompatibleClient(OpenAICompatibleConfig{
		ProviderName: providerName,
		APIKey:       apiKey,
		BaseURL:      baseURL,
		TitleModel:   titleModel,
		Headers:      headers,
	})
	if f.debugTransport != nil {
		client.SetDebugTransport(f.debugTransport)
	}

	logger.Debug("Creating OpenAI-compatible client", "provider", providerName, "baseURL", baseURL, "headerCount", len(headers))
	return client
}

// generateClientID creates a unique client ID for the given provider, API key and base URL.
// Uses SHA-256 hash with first 8 hex characters for uniqueness while maintaining usability.
// Format: "provider:hash" (e.g., "openai:a1b2c3d4")
func (f *ClientFactoryService) generateClientID(provider, apiKey, baseURL string) string {
	if apiKey == "" && baseURL == "" {
		return fmt.Sprintf("%s:empty***", provider)
	}

	hash := sha256.Sum256([]byte(provider + "\x00" + apiKey + "\x00" + baseURL))
	hexHash := hex.EncodeToString(hash[:])

	return fmt.Sprintf("%s:%s", provider, hexHash[:8])
}

// requiresAPIKey reports whether provider refuses requests without a key.
func requiresAPIKey(provider string) bool {
	switch chattypes.LLM(provider) {
	case chattypes.LLMOllama, chattypes.LLMOpenAICompatible:
		return false
	default:
		return true
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
