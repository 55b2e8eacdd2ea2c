// Package services provides the LLM provider clients and the services that
// drive a chat document: configuration, vault access, titles, templates and
// the chat turn itself.
package services

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"notechat/internal/logger"
	"notechat/internal/settings"
	"notechat/pkg/chattypes"
)

// defaultAnthropicMaxTokens is sent when no tier sets max_tokens; the API requires one.
const defaultAnthropicMaxTokens = 1024

// AnthropicClient implements the LLMClient interface for Anthropic's API.
// It provides lazy initialization of the Anthropic client and handles
// all Anthropic-specific communication logic.
type AnthropicClient struct {
	apiKey         string
	baseURL        string
	titleModel     string
	client         *anthropic.Client
	debugTransport http.RoundTripper
}

// NewAnthropicClient creates a new Anthropic client with lazy initialization.
// The actual Anthropic client is created only when the first request is made.
func NewAnthropicClient(apiKey string) *AnthropicClient {
	return &AnthropicClient{
		apiKey:     apiKey,
		titleModel: settings.DefaultTitleModels[chattypes.LLMAnthropic],
	}
}

// GetProviderName returns the provider name for this client.
func (c *AnthropicClient) GetProviderName() string {
	return string(chattypes.LLMAnthropic)
}

// IsConfigured returns true if the client has a valid API key.
func (c *AnthropicClient) IsConfigured() bool {
	return c.apiKey != ""
}

// SetBaseURL points the client at another Messages API endpoint.
func (c *AnthropicClient) SetBaseURL(baseURL string) {
	c.baseURL = baseURL
	c.client = nil
}

// SetTitleModel sets the model used by InferTitle.
func (c *AnthropicClient) SetTitleModel(model string) {
	if model != "" {
		c.titleModel = model
	}
}

// SetDebugTransport sets the HTTP transport for network debugging.
func (c *AnthropicClient) SetDebugTransport(transport http.RoundTripper) {
	c.debugTransport = transport
	c.client = nil
}

// initializeClientIfNeeded initializes the Anthropic client if it hasn't been initialized yet.
func (c *AnthropicClient) initializeClientIfNeeded() error {
	if c.client != nil {
		return nil
	}

	if c.apiKey == "" {
		return fmt.Errorf("anthropic API key not configured")
	}

	options := []option.RequestOption{option.WithAPIKey(c.apiKey)}
	if c.baseURL != "" {
		options = append(options, option.WithBaseURL(c.baseURL))
	}
	if c.debugTransport != nil {
		options = append(options, option.WithHTTPClient(&http.Client{Transport: c.debugTransport}))
	}

	client := anthropic.NewClient(options...)
	c.client = &client

	logger.Debug("Anthropic client initialized", "provider", "anthropic", "debug", c.debugTransport != nil)
	return nil
}

// buildParams converts the transcript and configuration into a request.
// System messages are moved to the system prompt.
func (c *AnthropicClient) buildParams(messages []chattypes.Message, cfg *chattypes.ChatConfig) (anthropic.MessageNewParams, error) {
	system, converted, err := c.convertMessagesToAnthropic(messages)
	if err != nil {
		return anthropic.MessageNewParams{}, err
	}
	logger.Debug("Messages converted", "message_count", len(converted))

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(cfg.Model),
		MaxTokens: defaultAnthropicMaxTokens,
		Messages:  converted,
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
		logger.Debug("System prompt added", "system_length", len(system))
	}
	c.applyModelParameters(&params, cfg)
	return params, nil
}

// SendChatCompletion sends a chat completion request to Anthropic.
func (c *AnthropicClient) SendChatCompletion(ctx context.Context, messages []chattypes.Message, cfg *chattypes.ChatConfig) (*chattypes.Completion, error) {
	logger.Debug("Anthropic SendChatCompletion starting", "model", cfg.Model)

	if err := c.initializeClientIfNeeded(); err != nil {
		return nil, fmt.Errorf("failed to initialize Anthropic client: %w", err)
	}
	params, err := c.buildParams(messages, cfg)
	if err != nil {
		return nil, err
	}

	message, err := c.client.Messages.New(ctx, params)
	if err != nil {
		logger.Error("Anthropic request failed", "error", err)
		return nil, fmt.Errorf("anthropic request failed: %w", err)
	}

	var content strings.Builder
	for _, block := range message.Content {
		content.WriteString(block.Text)
	}
	if content.Len() == 0 {
		return nil, fmt.Errorf("anthropic: %w", ErrEmptyResponse)
	}

	logger.Debug("Anthropic response received", "content_length", content.Len(), "stop_reason", message.StopReason)
	return &chattypes.Completion{Content: content.String(), FinishReason: string(message.StopReason)}, nil
}

// StreamChatCompletion sends a streaming request to Anthropic. Text and
// partial JSON deltas become fragments; the stop reason of the final
// message delta becomes the finish reason. Other events carry no text and are skipped.
func (c *AnthropicClient) StreamChatCompletion(ctx context.Context, messages []chattypes.Message, cfg *chattypes.ChatConfig) (<-chan chattypes.StreamChunk, error) {
	logger.Debug("Anthropic StreamChatCompletion starting", "model", cfg.Model)

	if err := c.initializeClientIfNeeded(); err != nil {
		return nil, fmt.Errorf("failed to initialize Anthropic client: %w", err)
	}
	params, err := c.buildParams(messages, cfg)
	if err != nil {
		return nil, err
	}

	stream := c.client.Messages.NewStreaming(ctx, params)
	responseChan := make(chan chattypes.StreamChunk, 10)

	go func() {
		defer close(responseChan)
		defer func() { _ = stream.Close() }()

		for stream.Next() {
			chunk, ok := anthropicEventChunk(stream.Current())
			if !ok {
				continue
			}
			if !sendChunk(ctx, responseChan, chunk) {
				return
			}
		}

		final := chattypes.StreamChunk{Done: true}
		if err := stream.Err(); err != nil {
			logger.Error("Anthropic stream failed", "error", err)
			final.Error = fmt.Errorf("anthropic stream failed: %w", err)
		}
		sendChunk(ctx, responseChan, final)
	}()

	return responseChan, nil
}

// anthropicEventChunk translates one stream event; ok is false for events without text.
func anthropicEventChunk(event anthropic.MessageStreamEventUnion) (chattypes.StreamChunk, bool) {
	switch ev := event.AsAny().(type) {
	case anthropic.ContentBlockStartEvent:
		if block, ok := ev.ContentBlock.AsAny().(anthropic.TextBlock); ok && block.Text != "" {
			return chattypes.StreamChunk{Content: block.Text}, true
		}
	case anthropic.ContentBlockDeltaEvent:
		switch delta := ev.Delta.AsAny().(type) {
		case anthropic.TextDelta:
			if delta.Text != "" {
				return chattypes.StreamChunk{Content: delta.Text}, true
			}
		case anthropic.InputJSONDelta:
			if delta.PartialJSON != "" {
				return chattypes.StreamChunk{Content: delta.PartialJSON}, true
			}
		}
	case anthropic.MessageDeltaEvent:
		if ev.Delta.StopReason != "" {
			return chattypes.StreamChunk{FinishReason: string(ev.Delta.StopReason)}, true
		}
	}
	return chattypes.StreamChunk{}, false
}

// InferTitle asks the title model for a title summarising messages.
func (c *AnthropicClient) InferTitle(ctx context.Context, messages []chattypes.Message, language string) (string, error) {
	return inferTitle(ctx, c.titleModel, messages, language, c.SendChatCompletion)
}

// convertMessagesToAnthropic converts transcript messages to Anthropic format.
// Returns the combined system prompt and the conversation messages.
func (c *AnthropicClient) convertMessagesToAnthropic(messages []chattypes.Message) (string, []anthropic.MessageParam, error) {
	system, rest, err := splitSystem("anthropic", messages)
	if err != nil {
		return "", nil, err
	}

	converted := make([]anthropic.MessageParam, 0, len(rest))
	for _, msg := range rest {
		blocks, err := c.convertBlocks(msg.ContentBlocks())
		if err != nil {
			return "", nil, err
		}
		switch msg.Role {
		case chattypes.RoleUser:
			converted = append(converted, anthropic.NewUserMessage(blocks...))
		case chattypes.RoleAssistant:
			converted = append(converted, anthropic.NewAssistantMessage(blocks...))
		default:
			return "", nil, fmt.Errorf("anthropic: unsupported role %q", msg.Role)
		}
	}
	return system, converted, nil
}

func (c *AnthropicClient) convertBlocks(blocks []chattypes.ContentBlock) ([]anthropic.ContentBlockParamUnion, error) {
	converted := make([]anthropic.ContentBlockParamUnion, 0, len(blocks))
	for _, block := range blocks {
		switch block.Type {
		case chattypes.BlockText:
			converted = append(converted, anthropic.NewTextBlock(block.Text))
		case chattypes.BlockImage:
			if block.Source == nil {
				return nil, fmt.Errorf("anthropic: image block %q has no source", block.Name)
			}
			converted = append(converted, anthropic.NewImageBlockBase64(block.Source.MediaType, block.Source.Data))
		case chattypes.BlockDocument:
			if block.Source == nil {
				return nil, fmt.Errorf("anthropic: document block %q has no source", block.Name)
			}
			converted = append(converted, anthropic.NewDocumentBlock(anthropic.Base64PDFSourceParam{Data: block.Source.Data}))
		default:
			return nil, unknownBlockError("anthropic", block)
		}
	}
	return converted, nil
}

// applyModelParameters applies the resolved configuration to the Anthropic request.
// Anthropic has no penalties, n, logit bias or user; those fields are ignored.
func (c *AnthropicClient) applyModelParameters(params *anthropic.MessageNewParams, cfg *chattypes.ChatConfig) {
	if cfg.Temperature != nil {
		params.Temperature = anthropic.Float(*cfg.Temperature)
	}
	if cfg.TopP != nil {
		params.TopP = anthropic.Float(*cfg.TopP)
	}
	if cfg.MaxTokens != nil {
		params.MaxTokens = int64(*cfg.MaxTokens)
	}
	if len(cfg.Stop) > 0 {
		params.StopSequences = cfg.Stop
	}
}
