package service

import (
	"encoding/json"
	"net/url"
	"strings"
)

// Hosts whose chat models stream chain-of-thought next to the answer.
var reasoningHosts = []string{"integrate.api.nvidia.com", "api.deepseek.com"}

// answerDelta is the first choice of an OpenAI-style streaming chunk.
// Reasoning models put their scratch work in reasoning_content (NVIDIA,
// DeepSeek) or reasoning (OpenRouter).
type answerDelta struct {
	Model   string `json:"model,omitempty"`
	Choices []struct {
		Delta struct {
			Role             string  `json:"role,omitempty"`
			Content          string  `json:"content,omitempty"`
			ReasoningContent *string `json:"reasoning_content,omitempty"`
			Reasoning        *string `json:"reasoning,omitempty"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason,omitempty"`
	} `json:"choices"`
}

func decodeAnswerDelta(data []byte) (*answerDelta, *StreamChunk, error) {
	var raw answerDelta
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, nil, err
	}

	chunk := &StreamChunk{Metadata: map[string]interface{}{}}
	if raw.Model != "" {
		chunk.Metadata["model"] = raw.Model
	}
	if len(raw.Choices) == 0 {
		return &raw, chunk, nil
	}

	first := raw.Choices[0]
	chunk.Role = first.Delta.Role
	chunk.Content = first.Delta.Content
	if first.FinishReason != "" {
		chunk.Done = true
		chunk.Metadata["finish_reason"] = first.FinishReason
		// "length" means the housing answer was cut off by max_tokens
		chunk.Metadata["truncated"] = first.FinishReason == "length"
	}
	return &raw, chunk, nil
}

// AnswerChunkParser reads chunks from models that only stream answer text.
// Any reasoning field a proxy passes through is dropped.
type AnswerChunkParser struct{}

// ParseChunk implements StreamChunkParser
func (AnswerChunkParser) ParseChunk(data []byte) (*StreamChunk, error) {
	_, chunk, err := decodeAnswerDelta(data)
	return chunk, err
}

// ReasoningChunkParser keeps a reasoning model's scratch work in
// ThinkingContent so it is never streamed to the user as part of the answer.
type ReasoningChunkParser struct{}

// ParseChunk implements StreamChunkParser
func (ReasoningChunkParser) ParseChunk(data []byte) (*StreamChunk, error) {
	raw, chunk, err := decodeAnswerDelta(data)
	if err != nil || len(raw.Choices) == 0 {
		return chunk, err
	}

	delta := raw.Choices[0].Delta
	switch {
	case delta.ReasoningContent != nil:
		chunk.ThinkingContent = *delta.ReasoningContent
	case delta.Reasoning != nil:
		chunk.ThinkingContent = *delta.Reasoning
	}
	return chunk, nil
}

func apiHost(apiBase string) string {
	u, err := url.Parse(strings.TrimSpace(apiBase))
	if err != nil || u.Host == "" {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// IsOpenAIProvider reports whether apiBase points at api.openai.com
func IsOpenAIProvider(apiBase string) bool {
	return apiHost(apiBase) == "api.openai.com"
}

// IsReasoningProvider reports whether apiBase serves models that stream
// reasoning separately from the answer.
func IsReasoningProvider(apiBase string) bool {
	host := apiHost(apiBase)
	for _, h := range reasoningHosts {
		if host == h {
			return true
		}
	}
	return false
}

// chunkParserFor picks the stream parser for apiBase along with a short
// provider label for logs. Unknown hosts are treated as answer-only.
func chunkParserFor(apiBase string) (StreamChunkParser, string) {
	switch {
	case IsReasoningProvider(apiBase):
		return ReasoningChunkParser{}, "reasoning"
	case IsOpenAIProvider(apiBase):
		return AnswerChunkParser{}, "openai"
	default:
		return AnswerChunkParser{}, "openai-compatible"
	}
}
