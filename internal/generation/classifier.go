package generation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bizmatters/prototype-builder/orchestrator/internal/llm"
)

// Classification is the user-facing reading of a failure
type Classification struct {
	Kind        llm.Kind `json:"kind"`
	UserMessage string   `json:"user_message"`
	Suggestions []string `json:"suggestions"`
	Retryable   bool     `json:"retryable"`
}

type keywordGroup struct {
	kind     llm.Kind
	keywords []string
}

// Checked in order; the first group with a matching keyword wins
var keywordGroups = []keywordGroup{
	{llm.KindTimeout, []string{"timeout", "econnreset", "etimedout", "timed out", "connection reset", "deadline exceeded"}},
	{llm.KindRateLimit, []string{"rate limit", "429"}},
	{llm.KindNetwork, []string{"network", "enotfound", "econnrefused", "no such host", "connection refused"}},
	{llm.KindParse, []string{"parse", "json"}},
	{llm.KindTokenLimit, []string{"token", "length", "too long"}},
	{llm.KindAuth, []string{"401", "unauthorized", "api key"}},
	{llm.KindServiceUnavailable, []string{"503", "service unavailable"}},
}

type suggestionRule struct {
	keywords    []string
	suggestions []string
}

// Suggestions accumulate across every rule that matches
var suggestionRules = []suggestionRule{
	{
		keywords:    []string{"timeout", "length", "too long"},
		suggestions: []string{"Try requesting a simpler version", "Break your request into smaller parts", "Focus on core features first"},
	},
	{
		keywords:    []string{"parse", "json"},
		suggestions: []string{`Click "Try Again" to regenerate`, "The partial code may still be usable"},
	},
	{
		keywords:    []string{"rate limit", "429"},
		suggestions: []string{"Wait a moment and try again", "Consider upgrading your API plan"},
	},
	{
		keywords:    []string{"network", "enotfound"},
		suggestions: []string{"Check your internet connection", "Verify the API endpoint is accessible"},
	},
	{
		keywords:    []string{"401", "api key"},
		suggestions: []string{"Verify your API key in .env file", "Check if your API key has expired"},
	},
}

// kindKeyword is the canonical keyword that drives suggestions for a tagged error
var kindKeyword = map[llm.Kind]string{
	llm.KindTimeout:    "timeout",
	llm.KindRateLimit:  "rate limit",
	llm.KindNetwork:    "network",
	llm.KindParse:      "parse",
	llm.KindTokenLimit: "too long",
	llm.KindAuth:       "api key",
}

// Classify maps err to a user message and suggestions. attemptNumber is the
// 1-based attempt that just failed and only shapes the timeout message.
// Errors tagged with an llm.Kind are classified on the tag; everything else
// goes through the keyword table.
func Classify(err error, attemptNumber, maxAttempts int) Classification {
	if err == nil {
		return Classification{Kind: llm.KindUnknown}
	}

	text := strings.ToLower(err.Error())
	kind := llm.KindOf(err)
	if kind == llm.KindUnknown {
		kind = kindFromText(text)
	}

	suggestionText := text
	if kw, ok := kindKeyword[kind]; ok && !strings.Contains(text, kw) {
		suggestionText = text + " " + kw
	}

	return Classification{
		Kind:        kind,
		UserMessage: userMessage(kind, err, attemptNumber, maxAttempts),
		Suggestions: suggestionsFor(suggestionText),
		Retryable:   isRetryable(err, DefaultRetryableSignatures),
	}
}

func kindFromText(text string) llm.Kind {
	for _, group := range keywordGroups {
		if matchesAny(text, group.keywords) {
			return group.kind
		}
	}
	return llm.KindUnknown
}

func userMessage(kind llm.Kind, err error, attemptNumber, maxAttempts int) string {
	switch kind {
	case llm.KindTimeout:
		if attemptNumber < maxAttempts {
			return fmt.Sprintf("Generation took too long. Retrying with optimized settings (attempt %d/%d)...", attemptNumber+1, maxAttempts)
		}
		return fmt.Sprintf("Generation timed out after %d attempts. Try simplifying your request or breaking it into smaller parts.", maxAttempts)
	case llm.KindRateLimit:
		return "API rate limit reached. Waiting before retry..."
	case llm.KindNetwork:
		return "Connection lost. Retrying..."
	case llm.KindParse:
		return "Received incomplete response. Using partial results. You may want to regenerate for complete code."
	case llm.KindTokenLimit:
		return "Response too large. Try requesting a simpler version or specific features."
	case llm.KindAuth:
		return "API authentication failed. Please check your API key configuration."
	case llm.KindServiceUnavailable:
		return "LLM service temporarily unavailable. Retrying..."
	default:
		return fmt.Sprintf("Generation failed: %s. Please try again or simplify your request.", rootMessage(err))
	}
}

func suggestionsFor(text string) []string {
	suggestions := []string{}
	for _, rule := range suggestionRules {
		if matchesAny(text, rule.keywords) {
			suggestions = append(suggestions, rule.suggestions...)
		}
	}
	return suggestions
}

func matchesAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// rootMessage strips llm.Error decoration so the generic message shows the
// underlying cause.
func rootMessage(err error) string {
	var llmErr *llm.Error
	if errors.As(err, &llmErr) && llmErr.Err != nil {
		return llmErr.Err.Error()
	}
	return err.Error()
}
