package services

import (
	"context"
	"fmt"
	"net/http"

	"google.golang.org/genai"

	"notechat/internal/logger"
	"notechat/internal/settings"
	"notechat/pkg/chattypes"
)

// GeminiClient implements the LLMClient interface for Google Gemini API.
// It provides lazy initialization of the Gemini client and handles
// all Gemini-specific communication logic.
type GeminiClient struct {
	apiKey         string
	baseURL        string
	titleModel     string
	client         *genai.Client
	debugTransport http.RoundTripper
}

// NewGeminiClient creates a new Gemini client with lazy initialization.
// The actual Gemini client is created only when the first request is made.
func NewGeminiClient(apiKey string) *GeminiClient {
	return &GeminiClient{
		apiKey:     apiKey,
		titleModel: settings.DefaultTitleModels[chattypes.LLMGemini],
	}
}

// GetProviderName returns the provider name for this client.
func (c *GeminiClient) GetProviderName() string {
	return string(chattypes.LLMGemini)
}

// IsConfigured returns true if the client has a valid API key.
func (c *GeminiClient) IsConfigured() bool {
	return c.apiKey != ""
}

// SetBaseURL points the client at another Gemini API endpoint.
func (c *GeminiClient) SetBaseURL(baseURL string) {
	c.baseURL = baseURL
	c.client = nil
}

// SetTitleModel sets the model used by InferTitle.
func (c *GeminiClient) SetTitleModel(model string) {
	if model != "" {
		c.titleModel = model
	}
}

// SetDebugTransport sets the HTTP transport for network debugging.
func (c *GeminiClient) SetDebugTransport(transport http.RoundTripper) {
	c.debugTransport = transport
	// Clear the existing client to force re-initialization with debug transport
	c.client = nil
}

// initializeClientIfNeeded initializes the Gemini client if it hasn't been initialized yet.
func (c *GeminiClient) initializeClientIfNeeded(ctx context.Context) error {
	if c.client != nil {
		return nil
	}

	if c.apiKey == "" {
		return fmt.Errorf("google API key not configured")
	}

	clientConfig := &genai.ClientConfig{
		APIKey:  c.apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if c.baseURL != "" {
		clientConfig.HTTPOptions = genai.HTTPOptions{BaseURL: c.baseURL}
	}
	if c.debugTransport != nil {
		clientConfig.HTTPClient = &http.Client{Transport: c.debugTransport}
		logger.Debug("Gemini client initialized with debug transport", "provider", "gemini")
	} else {
		logger.Debug("Gemini client initialized", "provider", "gemini")
	}

	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return fmt.Errorf("failed to create Gemini client: %w", err)
	}

	c.client = client
	return nil
}

// SendChatCompletion sends a chat completion request to Google Gemini.
func (c *GeminiClient) SendChatCompletion(ctx context.Context, messages []chattypes.Message, cfg *chattypes.ChatConfig) (*chattypes.Completion, error) {
	logger.Debug("Gemini SendChatCompletion starting", "model", cfg.Model)

	if err := c.initializeClientIfNeeded(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize Gemini client: %w", err)
	}
	contents, config, err := c.buildRequest(messages, cfg)
	if err != nil {
		return nil, err
	}

	result, err := c.client.Models.GenerateContent(ctx, cfg.Model, contents, config)
	if err != nil {
		logger.Error("Gemini request failed", "error", err)
		return nil, fmt.Errorf("gemini request failed: %w", err)
	}

	content := result.Text()
	if content == "" {
		return nil, fmt.Errorf("gemini: %w", ErrEmptyResponse)
	}

	finishReason := geminiFinishReason(result)
	logger.Debug("Gemini response received", "content_length", len(content), "finish_reason", finishReason)
	return &chattypes.Completion{Content: content, FinishReason: finishReason}, nil
}

// StreamChatCompletion sends a streaming request to Gemini.
func (c *GeminiClient) StreamChatCompletion(ctx context.Context, messages []chattypes.Message, cfg *chattypes.ChatConfig) (<-chan chattypes.StreamChunk, error) {
	logger.Debug("Gemini StreamChatCompletion starting", "model", cfg.Model)

	if err := c.initializeClientIfNeeded(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize Gemini client: %w", err)
	}
	contents, config, err := c.buildRequest(messages, cfg)
	if err != nil {
		return nil, err
	}

	responseChan := make(chan chattypes.StreamChunk, 10)
	go func() {
		defer close(responseChan)

		for result, err := range c.client.Models.GenerateContentStream(ctx, cfg.Model, contents, config) {
			if err != nil {
				logger.Error("Gemini stream failed", "error", err)
				sendChunk(ctx, responseChan, chattypes.StreamChunk{Done: true, Error: fmt.Errorf("gemini stream failed: %w", err)})
				return
			}
			chunk := chattypes.StreamChunk{Content: result.Text(), FinishReason: geminiFinishReason(result)}
			if chunk.Content == "" && chunk.FinishReason == "" {
				continue
			}
			if !sendChunk(ctx, responseChan, chunk) {
				return
			}
		}
		sendChunk(ctx, responseChan, chattypes.StreamChunk{Done: true})
	}()

	return responseChan, nil
}

// InferTitle asks the title model for a title summarising messages.
func (c *GeminiClient) InferTitle(ctx context.Context, messages []chattypes.Message, language string) (string, error) {
	return inferTitle(ctx, c.titleModel, messages, language, c.SendChatCompletion)
}

func geminiFinishReason(result *genai.GenerateContentResponse) string {
	if result == nil || len(result.Candidates) == 0 {
		return ""
	}
	return string(result.Candidates[0].FinishReason)
}

// buildRequest converts the transcript to contents and the configuration to
// a generation config. System messages become the system instruction.
func (c *GeminiClient) buildRequest(messages []chattypes.Message, cfg *chattypes.ChatConfig) ([]*genai.Content, *genai.GenerateContentConfig, error) {
	system, rest, err := splitSystem("gemini", messages)
	if err != nil {
		return nil, nil, err
	}
	contents, err := c.convertMessagesToGemini(rest)
	if err != nil {
		return nil, nil, err
	}
	logger.Debug("Messages converted", "content_count", len(contents))

	config := c.buildGenerationConfig(cfg)
	if system != "" {
		config.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	return contents, config, nil
}

// convertMessagesToGemini converts transcript messages to Gemini contents.
// Gemini calls the assistant "model"; images and documents become inline data parts.
func (c *GeminiClient) convertMessagesToGemini(messages []chattypes.Message) ([]*genai.Content, error) {
	contents := make([]*genai.Content, 0, len(messages))

	for _, msg := range messages {
		var role genai.Role
		switch msg.Role {
		case chattypes.RoleUser:
			role = genai.RoleUser
		case chattypes.RoleAssistant:
			role = genai.RoleModel
		default:
			return nil, fmt.Errorf("gemini: unsupported role %q", msg.Role)
		}

		parts := make([]*genai.Part, 0, len(msg.ContentBlocks()))
		for _, block := range msg.ContentBlocks() {
			switch block.Type {
			case chattypes.BlockText:
				parts = append(parts, genai.NewPartFromText(block.Text))
			case chattypes.BlockImage, chattypes.BlockDocument:
				data, err := blockBytes(block)
				if err != nil {
					return nil, fmt.Errorf("gemini: %w", err)
				}
				parts = append(parts, genai.NewPartFromBytes(data, block.Source.MediaType))
			default:
				return nil, unknownBlockError("gemini", block)
			}
		}
		contents = append(contents, genai.NewContentFromParts(parts, role))
	}

	if len(contents) == 0 {
		contents = append(contents, genai.NewContentFromText("", genai.RoleUser))
	}
	return contents, nil
}

// buildGenerationConfig creates a Gemini generation config from the resolved configuration.
func (c *GeminiClient) buildGenerationConfig(cfg *chattypes.ChatConfig) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{}

	if cfg.Temperature != nil {
		temperature := float32(*cfg.Temperature)
		config.Temperature = &temperature
	}
	if cfg.TopP != nil {
		topP := float32(*cfg.TopP)
		config.TopP = &topP
	}
	if cfg.PresencePenalty != nil {
		penalty := float32(*cfg.PresencePenalty)
		config.PresencePenalty = &penalty
	}
	if cfg.FrequencyPenalty != nil {
		penalty := float32(*cfg.FrequencyPenalty)
		config.FrequencyPenalty = &penalty
	}
	if cfg.MaxTokens != nil {
		config.MaxOutputTokens = int32(*cfg.MaxTokens)
	}
	if cfg.N != nil {
		config.CandidateCount = int32(*cfg.N)
	}
	if len(cfg.Stop) > 0 {
		config.StopSequences = cfg.Stop
	}

	return config
}
