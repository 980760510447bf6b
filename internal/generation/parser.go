package generation

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Required payload keys. A key counts as missing when it is absent, null,
// not a string, or empty.
var requiredFields = []string{"html", "css", "js"}

const (
	// maxCutBacks bounds how many structural boundaries completion backs off to
	maxCutBacks = 8
	// errorTailLength is how much of the input tail a parse error quotes
	errorTailLength = 200
)

var (
	leadingFence  = regexp.MustCompile("^```[A-Za-z0-9_+-]*[ \t]*\r?\n?")
	trailingFence = regexp.MustCompile("\r?\n?```\\s*$")
)

// Payload is the structured code generation contract
type Payload struct {
	HTML        string   `json:"html"`
	CSS         string   `json:"css"`
	JS          string   `json:"js"`
	Explanation string   `json:"explanation"`
	Suggestions []string `json:"suggestions"`
}

// ParseResult is the outcome of Parse. IsPartial means recovery heuristics
// modified the input before it decoded.
type ParseResult struct {
	Success       bool     `json:"success"`
	Payload       *Payload `json:"payload,omitempty"`
	IsPartial     bool     `json:"is_partial"`
	MissingFields []string `json:"missing_fields,omitempty"`
	Error         string   `json:"error,omitempty"`
}

// HasMissing reports whether field is listed in MissingFields
func (r ParseResult) HasMissing(field string) bool {
	for _, f := range r.MissingFields {
		if f == field {
			return true
		}
	}
	return false
}

// Parse turns raw model output into a Payload, completing truncated JSON
// when a direct decode fails. It never invents field content.
func Parse(raw string) ParseResult {
	text := StripFence(raw)
	if !strings.HasPrefix(text, "{") {
		return ParseResult{
			Error: fmt.Sprintf("response is not a JSON object (starts with %q)", truncateHead(text, 40)),
		}
	}

	state := scanJSON(text)
	candidate := text
	if state.firstEnd >= 0 {
		candidate = text[:state.firstEnd+1]
	}

	if fields, err := decodeObject(candidate); err == nil {
		payload, missing := buildPayload(fields)
		return ParseResult{Success: true, Payload: payload, MissingFields: missing}
	}

	fields, err := complete(candidate)
	if err != nil {
		return ParseResult{
			Error: fmt.Sprintf("failed to recover JSON: %v; input tail: %q", err, truncateTail(text, errorTailLength)),
		}
	}

	payload, missing := buildPayload(fields)
	return ParseResult{Success: true, Payload: payload, IsPartial: true, MissingFields: missing}
}

// StripFence trims whitespace and removes one leading and one trailing
// markdown code fence, with an optional language tag on the opener.
func StripFence(raw string) string {
	text := strings.TrimSpace(raw)
	text = leadingFence.ReplaceAllString(text, "")
	text = trailingFence.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

// FirstObject returns the first complete top-level JSON object in text, or
// false when none closes.
func FirstObject(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}
	state := scanJSON(text[start:])
	if state.firstEnd < 0 {
		return "", false
	}
	return text[start : start+state.firstEnd+1], true
}

// scanState is the result of an escape-aware byte scan. Scanning bytes is safe
// for the ASCII delimiters because UTF-8 never reuses them inside multi-byte runes.
type scanState struct {
	inString      bool
	escape        bool
	unicodeStart  int
	unicodeDigits int
	stack         []byte
	firstEnd      int
	cuts          []int
}

func scanJSON(s string) scanState {
	st := scanState{unicodeStart: -1, firstEnd: -1}

	for i := 0; i < len(s); i++ {
		b := s[i]

		if st.unicodeStart >= 0 {
			if isHex(b) && st.unicodeDigits < 4 {
				st.unicodeDigits++
				if st.unicodeDigits == 4 {
					st.unicodeStart = -1
				}
				continue
			}
			st.unicodeStart = -1
		}

		if st.escape {
			st.escape = false
			if b == 'u' {
				st.unicodeStart = i - 1
				st.unicodeDigits = 0
			}
			continue
		}

		if st.inString {
			switch b {
			case '\\':
				st.escape = true
			case '"':
				st.inString = false
			}
			continue
		}

		switch b {
		case '"':
			st.inString = true
		case '{', '[':
			st.stack = append(st.stack, b)
			if len(st.stack) > 1 {
				st.cuts = append(st.cuts, i+1)
			}
		case '}', ']':
			if n := len(st.stack); n > 0 && st.stack[n-1] == opener(b) {
				st.stack = st.stack[:n-1]
				if n == 1 {
					st.firstEnd = i
					return st
				}
			}
		case ',':
			if len(st.stack) > 0 {
				st.cuts = append(st.cuts, i)
			}
		}
	}

	return st
}

// complete closes an unterminated string and every open bracket, then
// decodes. When that fails it backs off to earlier structural boundaries:
// commas and nested openers. The root object is never emptied.
func complete(text string) (map[string]any, error) {
	state := scanJSON(text)
	fields, err := decodeObject(closeOpen(text, state))
	if err == nil {
		return fields, nil
	}

	firstErr := err
	for i, tries := len(state.cuts)-1, 0; i >= 0 && tries < maxCutBacks; i, tries = i-1, tries+1 {
		prefix := text[:state.cuts[i]]
		fields, err = decodeObject(closeOpen(prefix, scanJSON(prefix)))
		if err == nil {
			return fields, nil
		}
	}
	return nil, firstErr
}

func closeOpen(text string, state scanState) string {
	var sb strings.Builder

	body := text
	if state.inString {
		switch {
		case state.unicodeStart >= 0:
			body = body[:state.unicodeStart]
		case state.escape:
			body = body[:len(body)-1]
		}
	}
	sb.WriteString(body)
	if state.inString {
		sb.WriteByte('"')
	}
	for i := len(state.stack) - 1; i >= 0; i-- {
		sb.WriteByte(closer(state.stack[i]))
	}
	return sb.String()
}

func decodeObject(text string) (map[string]any, error) {
	var fields map[string]any
	if err := json.Unmarshal([]byte(text), &fields); err != nil {
		return nil, err
	}
	if fields == nil {
		return nil, fmt.Errorf("decoded value is null")
	}
	return fields, nil
}

func buildPayload(fields map[string]any) (*Payload, []string) {
	payload := &Payload{
		HTML:        stringField(fields, "html"),
		CSS:         stringField(fields, "css"),
		JS:          stringField(fields, "js"),
		Explanation: stringField(fields, "explanation"),
	}

	if raw, ok := fields["suggestions"].([]any); ok {
		for _, item := range raw {
			if s, ok := item.(string); ok && s != "" {
				payload.Suggestions = append(payload.Suggestions, s)
			}
		}
	}

	var missing []string
	for _, name := range requiredFields {
		if stringField(fields, name) == "" {
			missing = append(missing, name)
		}
	}
	return payload, missing
}

func stringField(fields map[string]any, name string) string {
	s, _ := fields[name].(string)
	return s
}

func opener(b byte) byte {
	if b == ']' {
		return '['
	}
	return '{'
}

func closer(b byte) byte {
	if b == '[' {
		return ']'
	}
	return '}'
}

func isHex(b byte) bool {
	return (b >= '0' && b <= '9') || (b >= 'a' && b <= 'f') || (b >= 'A' && b <= 'F')
}

func truncateTail(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return "..." + string(runes[len(runes)-limit:])
}

func truncateHead(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}
