package services

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"notechat/internal/logger"
	"notechat/pkg/chattypes"
)

// OpenAICompatibleClient implements the LLMClient interface for OpenAI-compatible APIs.
// This client works with any provider that implements the OpenAI Chat Completions API,
// such as OpenRouter, Ollama, LM Studio and other OpenAI-compatible services.
type OpenAICompatibleClient struct {
	providerName string
	apiKey       string
	baseURL      string
	titleModel   string
	headers      map[string]string
	endpoint     string
	httpClient   *http.Client
}

// OpenAICompatibleConfig holds configuration for the OpenAI-compatible client.
type OpenAICompatibleConfig struct {
	ProviderName string
	APIKey       string
	BaseURL      string
	TitleModel   string
	Headers      map[string]string
	Endpoint     string // Custom endpoint path (defaults to "/chat/completions")
}

// ChatCompletionRequest represents the request payload for OpenAI-compatible chat completions.
type ChatCompletionRequest struct {
	Model            string                  `json:"model"`
	Messages         []ChatCompletionMessage `json:"messages"`
	Temperature      *float64                `json:"temperature,omitempty"`
	MaxTokens        *int                    `json:"max_tokens,omitempty"`
	TopP             *float64                `json:"top_p,omitempty"`
	FrequencyPenalty *float64                `json:"frequency_penalty,omitempty"`
	PresencePenalty  *float64                `json:"presence_penalty,omitempty"`
	Stop             []string                `json:"stop,omitempty"`
	N                *int                    `json:"n,omitempty"`
	LogitBias        map[string]int          `json:"logit_bias,omitempty"`
	User             string                  `json:"user,omitempty"`
	Stream           bool                    `json:"stream,omitempty"`
}

// ChatCompletionMessage represents a message in the chat completion request.
// Content is a string, or a list of ChatCompletionContentPart for multi-part user messages.
type ChatCompletionMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

// ChatCompletionContentPart is one part of a multi-part message.
type ChatCompletionContentPart struct {
	Type     string                   `json:"type"`
	Text     string                   `json:"text,omitempty"`
	ImageURL *ChatCompletionImageURL  `json:"image_url,omitempty"`
	File     *ChatCompletionFileInput `json:"file,omitempty"`
}

// ChatCompletionImageURL references an image, here always as a data URL.
type ChatCompletionImageURL struct {
	URL string `json:"url"`
}

// ChatCompletionFileInput carries an inline file.
type ChatCompletionFileInput struct {
	Filename string `json:"filename,omitempty"`
	FileData string `json:"file_data"`
}

// ChatCompletionResponseMessage is a message or delta in a response.
type ChatCompletionResponseMessage struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content"`
}

// ChatCompletionResponse represents the response from OpenAI-compatible chat completions.
type ChatCompletionResponse struct {
	ID      string                 `json:"id"`
	Object  string                 `json:"object"`
	Created int64                  `json:"created"`
	Model   string                 `json:"model"`
	Choices []ChatCompletionChoice `json:"choices"`
	Usage   *ChatCompletionUsage   `json:"usage,omitempty"`
	Error   *ChatCompletionError   `json:"error,omitempty"`
}

// ChatCompletionChoice represents a choice in the chat completion response.
type ChatCompletionChoice struct {
	Index        int                            `json:"index"`
	Message      *ChatCompletionResponseMessage `json:"message,omitempty"`
	Delta        *ChatCompletionResponseMessage `json:"delta,omitempty"`
	FinishReason *string                        `json:"finish_reason"`
}

// ChatCompletionUsage represents token usage information.
type ChatCompletionUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatCompletionError represents an error response.
type ChatCompletionError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

// NewOpenAICompatibleClient creates a new OpenAI-compatible client.
// If no baseURL is provided, it defaults to OpenRouter's API endpoint.
func NewOpenAICompatibleClient(config OpenAICompatibleConfig) *OpenAICompatibleClient {
	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = "https://openrouter.ai/api/v1"
	}

	// Ensure base URL doesn't end with slash for consistent URL building
	baseURL = strings.TrimSuffix(baseURL, "/")

	headers := make(map[string]string, len(config.Headers))
	for k, v := range config.Headers {
		headers[k] = v
	}

	providerName := config.ProviderName
	if providerName == "" {
		providerName = string(chattypes.LLMOpenAICompatible)
	}

	endpoint := config.Endpoint
	if endpoint == "" {
		endpoint = "/chat/completions"
	}

	return &OpenAICompatibleClient{
		providerName: providerName,
		apiKey:       config.APIKey,
		baseURL:      baseURL,
		titleModel:   config.TitleModel,
		headers:      headers,
		endpoint:     endpoint,
		httpClient: &http.Client{
			Timeout: 5 * time.Minute,
		},
	}
}

// GetProviderName returns the provider name for this client.
func (c *OpenAICompatibleClient) GetProviderName() string {
	return c.providerName
}

// IsConfigured returns true if the client has a base URL. Local servers
// often need no API key, so none is required.
func (c *OpenAICompatibleClient) IsConfigured() bool {
	return c.baseURL != ""
}

// SetTitleModel sets the model used by InferTitle.
func (c *OpenAICompatibleClient) SetTitleModel(model string) {
	if model != "" {
		c.titleModel = model
	}
}

// SetDebugTransport sets the HTTP transport for network debugging.
func (c *OpenAICompatibleClient) SetDebugTransport(transport http.RoundTripper) {
	c.httpClient = &http.Client{Timeout: c.httpClient.Timeout, Transport: transport}
}

// buildRequest converts the transcript and configuration into a request payload.
func (c *OpenAICompatibleClient) buildRequest(messages []chattypes.Message, cfg *chattypes.ChatConfig, stream bool) (ChatCompletionRequest, error) {
	converted, err := c.convertMessagesToOpenAI(messages)
	if err != nil {
		return ChatCompletionRequest{}, err
	}
	request := ChatCompletionRequest{
		Model:    cfg.Model,
		Messages: converted,
		Stream:   stream,
	}
	c.applyModelParameters(&request, cfg)
	logger.Debug("Completion request built", "model", cfg.Model, "message_count", len(converted), "stream", stream)
	return request, nil
}

// SendChatCompletion sends a chat completion request to the OpenAI-compatible API.
func (c *OpenAICompatibleClient) SendChatCompletion(ctx context.Context, messages []chattypes.Message, cfg *chattypes.ChatConfig) (*chattypes.Completion, error) {
	logger.Debug("OpenAI-compatible SendChatCompletion starting", "model", cfg.Model, "baseURL", c.baseURL)

	if !c.IsConfigured() {
		return nil, fmt.Errorf("OpenAI-compatible client not configured: missing base URL")
	}

	request, err := c.buildRequest(messages, cfg, false)
	if err != nil {
		return nil, err
	}

	response, err := c.sendHTTPRequest(ctx, request)
	if err != nil {
		logger.Error("OpenAI-compatible request failed", "error", err)
		return nil, fmt.Errorf("%s request failed: %w", c.providerName, err)
	}

	var chatResponse ChatCompletionResponse
	if err := json.Unmarshal(response, &chatResponse); err != nil {
		logger.Error("Failed to parse response", "error", err)
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if chatResponse.Error != nil {
		logger.Error("API returned error", "error", chatResponse.Error.Message)
		return nil, fmt.Errorf("API error: %s", chatResponse.Error.Message)
	}

	if len(chatResponse.Choices) == 0 || chatResponse.Choices[0].Message == nil {
		logger.Error("No response choices returned")
		return nil, fmt.Errorf("%s: no response choices returned", c.providerName)
	}

	choice := chatResponse.Choices[0]
	if choice.Message.Content == "" {
		return nil, fmt.Errorf("%s: %w", c.providerName, ErrEmptyResponse)
	}

	completion := &chattypes.Completion{Content: choice.Message.Content}
	if choice.FinishReason != nil {
		completion.FinishReason = *choice.FinishReason
	}
	logger.Debug("OpenAI-compatible response received", "content_length", len(completion.Content))
	return completion, nil
}

// StreamChatCompletion sends a streaming chat completion request to the OpenAI-compatible API.
func (c *OpenAICompatibleClient) StreamChatCompletion(ctx context.Context, messages []chattypes.Message, cfg *chattypes.ChatConfig) (<-chan chattypes.StreamChunk, error) {
	logger.Debug("OpenAI-compatible StreamChatCompletion starting", "model", cfg.Model, "baseURL", c.baseURL)

	if !c.IsConfigured() {
		return nil, fmt.Errorf("OpenAI-compatible client not configured: missing base URL")
	}

	request, err := c.buildRequest(messages, cfg, true)
	if err != nil {
		return nil, err
	}

	responseChan := make(chan chattypes.StreamChunk, 10)
	go func() {
		defer close(responseChan)

		if err := c.sendStreamingHTTPRequest(ctx, request, responseChan); err != nil {
			sendChunk(ctx, responseChan, chattypes.StreamChunk{Done: true, Error: err})
		}
	}()

	return responseChan, nil
}

// InferTitle asks the title model for a title summarising messages.
func (c *OpenAICompatibleClient) InferTitle(ctx context.Context, messages []chattypes.Message, language string) (string, error) {
	return inferTitle(ctx, c.titleModel, messages, language, c.SendChatCompletion)
}

// convertMessagesToOpenAI converts transcript messages to the Chat Completions format.
func (c *OpenAICompatibleClient) convertMessagesToOpenAI(messages []chattypes.Message) ([]ChatCompletionMessage, error) {
	converted := make([]ChatCompletionMessage, 0, len(messages))

	for _, msg := range messages {
		switch msg.Role {
		case chattypes.RoleUser:
			if !msg.HasBlocks() {
				converted = append(converted, ChatCompletionMessage{Role: string(msg.Role), Content: msg.Text})
				continue
			}
			parts, err := c.convertBlocks(msg.Blocks)
			if err != nil {
				return nil, err
			}
			converted = append(converted, ChatCompletionMessage{Role: string(msg.Role), Content: parts})
		case chattypes.RoleAssistant, chattypes.RoleSystem:
			text, err := messageText(c.providerName, msg)
			if err != nil {
				return nil, err
			}
			converted = append(converted, ChatCompletionMessage{Role: string(msg.Role), Content: text})
		default:
			return nil, fmt.Errorf("%s: unsupported role %q", c.providerName, msg.Role)
		}
	}

	return converted, nil
}

func (c *OpenAICompatibleClient) convertBlocks(blocks []chattypes.ContentBlock) ([]ChatCompletionContentPart, error) {
	parts := make([]ChatCompletionContentPart, 0, len(blocks))
	for _, block := range blocks {
		switch block.Type {
		case chattypes.BlockText:
			parts = append(parts, ChatCompletionContentPart{Type: "text", Text: block.Text})
		case chattypes.BlockImage:
			if block.Source == nil {
				return nil, fmt.Errorf("%s: image block %q has no source", c.providerName, block.Name)
			}
			parts = append(parts, ChatCompletionContentPart{Type: "image_url", ImageURL: &ChatCompletionImageURL{URL: dataURL(block)}})
		case chattypes.BlockDocument:
			if block.Source == nil {
				return nil, fmt.Errorf("%s: document block %q has no source", c.providerName, block.Name)
			}
			parts = append(parts, ChatCompletionContentPart{Type: "file", File: &ChatCompletionFileInput{Filename: block.Name, FileData: dataURL(block)}})
		default:
			return nil, unknownBlockError(c.providerName, block)
		}
	}
	return parts, nil
}

// applyModelParameters applies the resolved configuration to the request.
func (c *OpenAICompatibleClient) applyModelParameters(request *ChatCompletionRequest, cfg *chattypes.ChatConfig) {
	request.Temperature = cfg.Temperature
	request.TopP = cfg.TopP
	request.PresencePenalty = cfg.PresencePenalty
	request.FrequencyPenalty = cfg.FrequencyPenalty
	request.MaxTokens = cfg.MaxTokens
	request.N = cfg.N
	request.Stop = cfg.Stop
	request.LogitBias = cfg.LogitBias
	request.User = cfg.User
}

// newHTTPRequest builds an authenticated POST to the completions endpoint.
func (c *OpenAICompatibleClient) newHTTPRequest(ctx context.Context, payload interface{}) (*http.Request, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+c.endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}
	return req, nil
}

// sendHTTPRequest sends a non-streaming HTTP request to the API.
func (c *OpenAICompatibleClient) sendHTTPRequest(ctx context.Context, payload interface{}) ([]byte, error) {
	req, err := c.newHTTPRequest(ctx, payload)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error %d: %s", resp.StatusCode, string(body))
	}

	return body, nil
}

// sendStreamingHTTPRequest sends a streaming HTTP request to the API.
func (c *OpenAICompatibleClient) sendStreamingHTTPRequest(ctx context.Context, payload interface{}, responseChan chan<- chattypes.StreamChunk) error {
	req, err := c.newHTTPRequest(ctx, payload)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("HTTP error %d: %s", resp.StatusCode, string(body))
	}

	return c.processStreamingResponse(ctx, resp.Body, responseChan)
}

// processStreamingResponse processes Server-Sent Events from the streaming response.
func (c *OpenAICompatibleClient) processStreamingResponse(ctx context.Context, body io.Reader, responseChan chan<- chattypes.StreamChunk) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		chunk, done, err := c.parseStreamLine(scanner.Text())
		if err != nil {
			return err
		}
		if done {
			break
		}
		if chunk.Content == "" && chunk.FinishReason == "" {
			continue
		}
		if !sendChunk(ctx, responseChan, chunk) {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading stream: %w", err)
	}

	sendChunk(ctx, responseChan, chattypes.StreamChunk{Done: true})
	return nil
}

// parseStreamLine parses a single line from the Server-Sent Events stream.
// done is true at the [DONE] sentinel.
func (c *OpenAICompatibleClient) parseStreamLine(line string) (chattypes.StreamChunk, bool, error) {
	line = strings.TrimSpace(line)

	// Skip empty lines, comments and non-data fields
	if !strings.HasPrefix(line, "data:") {
		return chattypes.StreamChunk{}, false, nil
	}

	data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
	if data == "[DONE]" {
		return chattypes.StreamChunk{}, true, nil
	}

	var response ChatCompletionResponse
	if err := json.Unmarshal([]byte(data), &response); err != nil {
		logger.Debug("Failed to parse streaming chunk", "data", data, "error", err)
		return chattypes.StreamChunk{}, false, nil
	}

	if response.Error != nil {
		return chattypes.StreamChunk{}, false, fmt.Errorf("API error: %s", response.Error.Message)
	}

	var chunk chattypes.StreamChunk
	if len(response.Choices) > 0 {
		choice := response.Choices[0]
		if choice.Delta != nil {
			chunk.Content = choice.Delta.Content
		}
		if choice.FinishReason != nil {
			chunk.FinishReason = *choice.FinishReason
		}
	}
	return chunk, false, nil
}
