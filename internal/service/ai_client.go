package service

import (
	"context"
)

// CompletionRequest is one prompt sent to a language model
type CompletionRequest struct {
	System      string
	User        string
	Temperature float64
	MaxTokens   int
	JSON        bool // ask the provider for a JSON object reply
}

// LanguageModel is the interface for AI service providers
type LanguageModel interface {
	// Complete returns the model's reply text for one prompt
	Complete(ctx context.Context, req CompletionRequest) (string, error)

	// Name identifies the provider and model for logs and metrics
	Name() string
}

// StreamingLanguageModel is implemented by providers that can stream replies.
// The callback receives each chunk; the full reply is returned at the end.
type StreamingLanguageModel interface {
	LanguageModel
	CompleteStream(ctx context.Context, req CompletionRequest, callback StreamCallback) (string, error)
}

// Embedder generates embeddings for texts
type Embedder interface {
	CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
}

// StreamChunk represents a generic streaming response chunk
type StreamChunk struct {
	// Regular content (always present in streaming)
	Content string

	// Thinking/reasoning content (provider-specific, e.g., DeepSeek)
	ThinkingContent string

	// Role (assistant, user, system)
	Role string

	// Whether this is the final chunk
	Done bool

	// Provider-specific metadata
	Metadata map[string]interface{}
}

// StreamCallback is called for each chunk in streaming mode
type StreamCallback func(chunk *StreamChunk) error

var (
	_ StreamingLanguageModel = (*OpenAIClient)(nil)
	_ Embedder               = (*OpenAIClient)(nil)
	_ LanguageModel          = (*GeminiClient)(nil)
)
