package ai

import "context"

// Message represents a chat message.
type Message struct {
	Role    string // system, user, assistant
	Content string
}

// CallStats records token usage and timing for a single generation call.
type CallStats struct {
	PromptTokens     int   `json:"prompt_tokens"`
	CompletionTokens int   `json:"completion_tokens"`
	TotalTokens      int   `json:"total_tokens"`
	// ThinkingDurationMs is the time from request start to first delta.
	ThinkingDurationMs int64 `json:"thinking_duration_ms"`
	// GenerationDurationMs is the time from first delta to last delta.
	GenerationDurationMs int64 `json:"generation_duration_ms,omitempty"`
	TotalDurationMs      int64 `json:"total_duration_ms"`
}

// Provider streams assistant replies for a prompt.
type Provider interface {
	// StreamResponse opens a delta stream for the prompt. Deltas arrive on
	// the content channel strictly in provider order. The stats channel
	// receives at most one value when the stream completes; the error
	// channel receives at most one classified error (see errors.go) on
	// failure. All three channels are closed when the stream ends.
	// Cancelling ctx abandons the stream.
	StreamResponse(ctx context.Context, prompt string, history []Message) (<-chan string, <-chan *CallStats, <-chan error)
}

// SystemPrompt creates a system message.
func SystemPrompt(content string) Message {
	return Message{Role: "system", Content: content}
}

// UserMessage creates a user message.
func UserMessage(content string) Message {
	return Message{Role: "user", Content: content}
}

// AssistantMessage creates an assistant message.
func AssistantMessage(content string) Message {
	return Message{Role: "assistant", Content: content}
}
