// Package chattypes defines LLM-related types and interfaces.
// This file contains types for LLM client abstraction and streaming.
package chattypes

import "context"

// StreamChunk represents a single chunk of streaming response.
type StreamChunk struct {
	Content      string // The text content of this chunk
	FinishReason string // Terminal finish reason, set on the chunk that carries it
	Done         bool   // Whether this is the final chunk
	Error        error  // Any error that occurred during streaming
}

// Completion is a single-shot (non-streaming) model response.
type Completion struct {
	Content      string
	FinishReason string
}

// LLMClient defines the interface for LLM provider implementations.
// This interface abstracts the provider backends and translates the
// transcript into each provider's native request format.
type LLMClient interface {
	// GetProviderName returns the name of the LLM provider (e.g., "openai", "anthropic").
	GetProviderName() string

	// IsConfigured returns true if the client has valid configuration and can make requests.
	IsConfigured() bool

	// SendChatCompletion sends a chat completion request and returns the full response.
	SendChatCompletion(ctx context.Context, messages []Message, cfg *ChatConfig) (*Completion, error)

	// StreamChatCompletion sends a streaming chat completion request.
	// It returns a channel that receives response chunks as they arrive. The
	// producer stops when ctx is cancelled, so callers that abandon the
	// channel must cancel ctx.
	StreamChatCompletion(ctx context.Context, messages []Message, cfg *ChatConfig) (<-chan StreamChunk, error)

	// InferTitle asks the model for a short title summarising the messages.
	InferTitle(ctx context.Context, messages []Message, language string) (string, error)
}

// Service defines the interface for notechat services.
// Services are registered at startup and initialized once before use.
type Service interface {
	Name() string
	Initialize() error
}
