package llm

import (
	"context"
)

// Message roles understood by every provider
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Finish reasons normalised across providers
const (
	FinishStop          = "stop"
	FinishLength        = "length"
	FinishContentFilter = "content_filter"
	FinishError         = "error"
)

// Message represents a chat message sent to a provider
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Options tunes a single completion call
type Options struct {
	MaxTokens   int     `json:"max_tokens,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
}

// Usage reports token accounting when the provider returns it
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is the result of a completion
type Response struct {
	Content      string `json:"content"`
	FinishReason string `json:"finish_reason"`
	Model        string `json:"model,omitempty"`
	Usage        *Usage `json:"usage,omitempty"`
}

// Truncated reports whether the provider stopped because of the output ceiling
func (r *Response) Truncated() bool {
	return r != nil && r.FinishReason == FinishLength
}

// Capability sends messages to a model and returns the full text
type Capability interface {
	Complete(ctx context.Context, messages []Message, opts Options) (*Response, error)
	Name() string
}

// Streamer is implemented by capabilities that can deliver text incrementally.
// onChunk is invoked in arrival order, zero or more times, before StreamComplete returns.
type Streamer interface {
	StreamComplete(ctx context.Context, messages []Message, opts Options, onChunk func(chunk string) error) (*Response, error)
}
