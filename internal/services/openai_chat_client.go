package services

import (
	"context"
	"fmt"
	"net/http"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"notechat/internal/logger"
	"notechat/internal/settings"
	"notechat/pkg/chattypes"
)

// OpenAIClient implements the LLMClient interface for OpenAI's API and for
// servers that expose the same API under another base URL.
// It provides lazy initialization of the OpenAI client and handles
// all OpenAI-specific communication logic.
type OpenAIClient struct {
	apiKey         string
	baseURL        string
	titleModel     string
	client         *openai.Client
	debugTransport http.RoundTripper
}

// NewOpenAIClient creates a new OpenAI client with lazy initialization.
// The actual OpenAI client is created only when the first request is made.
func NewOpenAIClient(apiKey string) *OpenAIClient {
	return &OpenAIClient{
		apiKey:     apiKey,
		titleModel: settings.DefaultTitleModels[chattypes.LLMOpenAI],
	}
}

// GetProviderName returns the provider name for this client.
func (c *OpenAIClient) GetProviderName() string {
	return string(chattypes.LLMOpenAI)
}

// IsConfigured returns true if the client has a valid API key.
func (c *OpenAIClient) IsConfigured() bool {
	return c.apiKey != ""
}

// SetBaseURL points the client at another OpenAI API endpoint.
func (c *OpenAIClient) SetBaseURL(baseURL string) {
	c.baseURL = baseURL
	c.client = nil
}

// SetTitleModel sets the model used by InferTitle.
func (c *OpenAIClient) SetTitleModel(model string) {
	if model != "" {
		c.titleModel = model
	}
}

// SetDebugTransport sets the HTTP transport for network debugging.
func (c *OpenAIClient) SetDebugTransport(transport http.RoundTripper) {
	c.debugTransport = transport
	// Clear the existing client to force re-initialization with debug transport
	c.client = nil
}

// initializeClientIfNeeded initializes the OpenAI client if it hasn't been initialized yet.
func (c *OpenAIClient) initializeClientIfNeeded() error {
	if c.client != nil {
		return nil
	}

	if c.apiKey == "" {
		return fmt.Errorf("OpenAI API key not configured")
	}

	options := []option.RequestOption{option.WithAPIKey(c.apiKey)}
	if c.baseURL != "" {
		options = append(options, option.WithBaseURL(c.baseURL))
	}
	if c.debugTransport != nil {
		options = append(options, option.WithHTTPClient(&http.Client{Transport: c.debugTransport}))
		logger.Debug("OpenAI client initialized with debug transport", "provider", "openai", "base_url", c.baseURL)
	} else {
		logger.Debug("OpenAI client initialized", "provider", "openai", "base_url", c.baseURL)
	}

	client := openai.NewClient(options...)
	c.client = &client
	return nil
}

// buildParams converts the transcript and configuration into a request.
func (c *OpenAIClient) buildParams(messages []chattypes.Message, cfg *chattypes.ChatConfig) (openai.ChatCompletionNewParams, error) {
	converted, err := c.convertMessagesToOpenAI(messages)
	if err != nil {
		return openai.ChatCompletionNewParams{}, err
	}
	logger.Debug("Messages converted", "message_count", len(converted))

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(cfg.Model),
		Messages: converted,
	}
	c.applyModelParameters(&params, cfg)
	return params, nil
}

// SendChatCompletion sends a chat completion request to OpenAI.
func (c *OpenAIClient) SendChatCompletion(ctx context.Context, messages []chattypes.Message, cfg *chattypes.ChatConfig) (*chattypes.Completion, error) {
	logger.Debug("OpenAI SendChatCompletion starting", "model", cfg.Model)

	if err := c.initializeClientIfNeeded(); err != nil {
		return nil, fmt.Errorf("failed to initialize OpenAI client: %w", err)
	}
	params, err := c.buildParams(messages, cfg)
	if err != nil {
		return nil, err
	}

	completion, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		logger.Error("OpenAI request failed", "error", err)
		return nil, fmt.Errorf("openai request failed: %w", err)
	}

	if len(completion.Choices) == 0 {
		logger.Error("No response choices returned")
		return nil, fmt.Errorf("openai: no response choices returned")
	}

	choice := completion.Choices[0]
	if choice.Message.Content == "" {
		return nil, fmt.Errorf("openai: %w", ErrEmptyResponse)
	}

	logger.Debug("OpenAI response received", "content_length", len(choice.Message.Content), "finish_reason", choice.FinishReason)
	return &chattypes.Completion{Content: choice.Message.Content, FinishReason: choice.FinishReason}, nil
}

// StreamChatCompletion sends a streaming chat completion request to OpenAI.
func (c *OpenAIClient) StreamChatCompletion(ctx context.Context, messages []chattypes.Message, cfg *chattypes.ChatConfig) (<-chan chattypes.StreamChunk, error) {
	logger.Debug("OpenAI StreamChatCompletion starting", "model", cfg.Model)

	if err := c.initializeClientIfNeeded(); err != nil {
		return nil, fmt.Errorf("failed to initialize OpenAI client: %w", err)
	}
	params, err := c.buildParams(messages, cfg)
	if err != nil {
		return nil, err
	}

	stream := c.client.Chat.Completions.NewStreaming(ctx, params)
	responseChan := make(chan chattypes.StreamChunk, 10)

	go func() {
		defer close(responseChan)
		defer func() { _ = stream.Close() }()

		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			choice := chunk.Choices[0]
			if choice.Delta.Content == "" && choice.FinishReason == "" {
				continue
			}
			if !sendChunk(ctx, responseChan, chattypes.StreamChunk{Content: choice.Delta.Content, FinishReason: choice.FinishReason}) {
				return
			}
		}

		final := chattypes.StreamChunk{Done: true}
		if err := stream.Err(); err != nil {
			logger.Error("OpenAI stream failed", "error", err)
			final.Error = fmt.Errorf("openai stream failed: %w", err)
		}
		sendChunk(ctx, responseChan, final)
	}()

	return responseChan, nil
}

// InferTitle asks the title model for a title summarising messages.
func (c *OpenAIClient) InferTitle(ctx context.Context, messages []chattypes.Message, language string) (string, error) {
	return inferTitle(ctx, c.titleModel, messages, language, c.SendChatCompletion)
}

// convertMessagesToOpenAI converts transcript messages to OpenAI format.
// User messages keep their blocks as content parts; images become data URLs
// and documents become file parts.
func (c *OpenAIClient) convertMessagesToOpenAI(messages []chattypes.Message) ([]openai.ChatCompletionMessageParamUnion, error) {
	converted := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))

	for _, msg := range messages {
		switch msg.Role {
		case chattypes.RoleUser:
			if !msg.HasBlocks() {
				converted = append(converted, openai.UserMessage(msg.Text))
				continue
			}
			parts, err := c.convertBlocks(msg.Blocks)
			if err != nil {
				return nil, err
			}
			converted = append(converted, openai.UserMessage(parts))
		case chattypes.RoleAssistant:
			text, err := messageText("openai", msg)
			if err != nil {
				return nil, err
			}
			converted = append(converted, openai.AssistantMessage(text))
		case chattypes.RoleSystem:
			text, err := messageText("openai", msg)
			if err != nil {
				return nil, err
			}
			converted = append(converted, openai.SystemMessage(text))
		default:
			return nil, fmt.Errorf("openai: unsupported role %q", msg.Role)
		}
	}

	return converted, nil
}

func (c *OpenAIClient) convertBlocks(blocks []chattypes.ContentBlock) ([]openai.ChatCompletionContentPartUnionParam, error) {
	parts := make([]openai.ChatCompletionContentPartUnionParam, 0, len(blocks))
	for _, block := range blocks {
		switch block.Type {
		case chattypes.BlockText:
			parts = append(parts, openai.TextContentPart(block.Text))
		case chattypes.BlockImage:
			if block.Source == nil {
				return nil, fmt.Errorf("openai: image block %q has no source", block.Name)
			}
			parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
				URL: dataURL(block),
			}))
		case chattypes.BlockDocument:
			if block.Source == nil {
				return nil, fmt.Errorf("openai: document block %q has no source", block.Name)
			}
			parts = append(parts, openai.FileContentPart(openai.ChatCompletionContentPartFileFileParam{
				FileData: openai.String(dataURL(block)),
				Filename: openai.String(block.Name),
			}))
		default:
			return nil, unknownBlockError("openai", block)
		}
	}
	return parts, nil
}

// applyModelParameters applies the resolved configuration to the OpenAI request.
func (c *OpenAIClient) applyModelParameters(params *openai.ChatCompletionNewParams, cfg *chattypes.ChatConfig) {
	if cfg.Temperature != nil {
		params.Temperature = openai.Float(*cfg.Temperature)
	}
	if cfg.TopP != nil {
		params.TopP = openai.Float(*cfg.TopP)
	}
	if cfg.PresencePenalty != nil {
		params.PresencePenalty = openai.Float(*cfg.PresencePenalty)
	}
	if cfg.FrequencyPenalty != nil {
		params.FrequencyPenalty = openai.Float(*cfg.FrequencyPenalty)
	}
	if cfg.MaxTokens != nil {
		params.MaxTokens = openai.Int(int64(*cfg.MaxTokens))
	}
	if cfg.N != nil {
		params.N = openai.Int(int64(*cfg.N))
	}
	if len(cfg.Stop) > 0 {
		params.Stop = openai.ChatCompletionNewParamsStopUnion{OfStringArray: cfg.Stop}
	}
	if len(cfg.LogitBias) > 0 {
		bias := make(map[string]int64, len(cfg.LogitBias))
		for token, value := range cfg.LogitBias {
			bias[token] = int64(value)
		}
		params.LogitBias = bias
	}
	if cfg.User != "" {
		params.User = openai.String(cfg.User)
	}
}
