package llm

import (
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

const perMessageOverhead = 4

// TokenCounter estimates prompt size. Without an encoder it falls back to
// one token per four runes.
type TokenCounter struct {
	encoder *tiktoken.Tiktoken
}

// NewTokenCounter picks the encoding for model, falling back to cl100k_base
func NewTokenCounter(model string) *TokenCounter {
	encoder, err := tiktoken.EncodingForModel(model)
	if err == nil {
		return &TokenCounter{encoder: encoder}
	}

	fallback, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return &TokenCounter{}
	}
	return &TokenCounter{encoder: fallback}
}

// Count returns the estimated number of tokens in text
func (tc *TokenCounter) Count(text string) int {
	if text == "" {
		return 0
	}

	if tc != nil && tc.encoder != nil {
		return len(tc.encoder.Encode(text, nil, nil))
	}

	runes := utf8.RuneCountInString(text)
	return (runes + 3) / 4
}

// CountMessages sums message tokens including per-message framing overhead
func (tc *TokenCounter) CountMessages(messages []Message) int {
	total := 0
	for _, msg := range messages {
		total += tc.Count(msg.Content) + perMessageOverhead
	}
	return total
}

// TrimHistory keeps the newest turns of history whose combined size fits budget.
// Order is preserved. A non-positive budget disables trimming.
func (tc *TokenCounter) TrimHistory(history []Message, budget int) []Message {
	if budget <= 0 || len(history) == 0 {
		return history
	}

	used := 0
	start := len(history)
	for i := len(history) - 1; i >= 0; i-- {
		cost := tc.Count(history[i].Content) + perMessageOverhead
		if used+cost > budget {
			break
		}
		used += cost
		start = i
	}

	trimmed := make([]Message, len(history)-start)
	copy(trimmed, history[start:])
	return trimmed
}
