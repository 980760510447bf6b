package surgical

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/bizmatters/prototype-builder/orchestrator/internal/generation"
	"github.com/bizmatters/prototype-builder/orchestrator/internal/llm"
)

const (
	editMaxTokens   = 2000
	editTemperature = 0.3
)

// SelectedElement describes the element picked in the preview
type SelectedElement struct {
	Selector  string `json:"selector" binding:"required"`
	TagName   string `json:"tagName"`
	ClassName string `json:"className,omitempty"`
	ID        string `json:"id,omitempty"`
}

// Request asks for a targeted change to the current code
type Request struct {
	Description     string           `json:"description"`
	CurrentCode     Code             `json:"currentCode"`
	SelectedElement *SelectedElement `json:"selectedElement,omitempty"`
}

// Response is the model's plan of edits
type Response struct {
	Edits       []Edit   `json:"edits"`
	Explanation string   `json:"explanation"`
	EditType    EditType `json:"editType"`
}

// Service turns edit requests into concrete edits using the LLM capability
type Service struct {
	capability llm.Capability
	logger     *zap.Logger
	tracer     trace.Tracer
}

// NewService creates a surgical edit service
func NewService(capability llm.Capability, logger *zap.Logger) *Service {
	return &Service{
		capability: capability,
		logger:     logger,
		tracer:     otel.Tracer("surgical-edit"),
	}
}

// Generate asks the model for edits fulfilling req
func (s *Service) Generate(ctx context.Context, req Request) (*Response, error) {
	ctx, span := s.tracer.Start(ctx, "surgical.generate")
	defer span.End()

	editType := AnalyzeEditType(req.Description, req.SelectedElement != nil)
	span.SetAttributes(attribute.String("surgical.edit_type", string(editType)))

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: systemPrompt(editType)},
		{Role: llm.RoleUser, Content: userPrompt(editType, req)},
	}
	resp, err := s.capability.Complete(ctx, messages, llm.Options{MaxTokens: editMaxTokens, Temperature: editTemperature})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to generate surgical edit: %w", err)
	}

	parsed, err := parseResponse(resp.Content, editType)
	if err != nil {
		span.RecordError(err)
		s.logger.Warn("failed to parse surgical edit response",
			zap.Error(err),
			zap.Int("content_length", len(resp.Content)),
		)
		return nil, err
	}

	span.SetAttributes(attribute.Int("surgical.edit_count", len(parsed.Edits)))
	s.logger.Info("surgical edit generated",
		zap.String("edit_type", string(editType)),
		zap.Int("edits", len(parsed.Edits)),
	)
	return parsed, nil
}

func parseResponse(content string, editType EditType) (*Response, error) {
	obj, ok := generation.FirstObject(generation.StripFence(content))
	if !ok {
		return nil, llm.NewError(llm.KindParse, "", fmt.Errorf("failed to parse LLM response for surgical edit: no JSON object found"))
	}

	var parsed struct {
		Edits       []Edit `json:"edits"`
		Explanation string `json:"explanation"`
	}
	if err := json.Unmarshal([]byte(obj), &parsed); err != nil {
		return nil, llm.NewError(llm.KindParse, "", fmt.Errorf("failed to parse LLM response for surgical edit: %w", err))
	}

	resp := &Response{Edits: parsed.Edits, Explanation: parsed.Explanation, EditType: editType}
	if resp.Edits == nil {
		resp.Edits = []Edit{}
	}
	if resp.Explanation == "" {
		resp.Explanation = "Code updated"
	}
	return resp, nil
}

func systemPrompt(editType EditType) string {
	switch editType {
	case EditCSSSelector:
		return `You are a CSS editing assistant. Generate precise CSS property changes using selectors.

Output ONLY valid JSON in this format:
{
  "edits": [
    {"type": "css-selector", "selector": ".button", "property": "background-color", "value": "blue"}
  ],
  "explanation": "Changed button background to blue"
}

Rules:
- Use CSS property names (background-color, not backgroundColor)
- Use valid CSS values
- Target specific selectors (class, id, or tag)
- Multiple edits are allowed for complex changes`
	case EditSearchReplace:
		return `You are a code editing assistant. Generate precise SEARCH/REPLACE blocks for targeted changes.

Output ONLY valid JSON in this format:
{
  "edits": [
    {"type": "search-replace", "file": "html", "search": "exact text to find", "replace": "exact replacement text"}
  ],
  "explanation": "What was changed"
}

Rules:
- search MUST match the current code exactly, including whitespace
- Include only the minimal code that needs to change
- Preserve indentation and formatting
- Multiple edits are allowed
- file is one of "html", "css" or "js"`
	default:
		return `You are a code generation assistant. Generate complete, updated file content.

Output ONLY valid JSON in this format:
{
  "edits": [
    {"type": "whole-file", "file": "html", "content": "complete file content here"}
  ],
  "explanation": "What was changed"
}`
	}
}

func userPrompt(editType EditType, req Request) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "User request: %s\n\n", req.Description)

	switch editType {
	case EditCSSSelector:
		if el := req.SelectedElement; el != nil {
			sb.WriteString("Selected element:\n")
			fmt.Fprintf(&sb, "- Tag: %s\n", el.TagName)
			if el.ClassName != "" {
				fmt.Fprintf(&sb, "- Class: %s\n", el.ClassName)
			}
			if el.ID != "" {
				fmt.Fprintf(&sb, "- ID: %s\n", el.ID)
			}
			fmt.Fprintf(&sb, "- Selector: %s\n\n", el.Selector)
		}
		fmt.Fprintf(&sb, "Current CSS (excerpt):\n%s\n\n", head(req.CurrentCode.CSS, 1000))
		sb.WriteString("Generate CSS edits to fulfill the request.")
	case EditSearchReplace:
		fmt.Fprintf(&sb, "Current HTML:\n%s\n\n", head(req.CurrentCode.HTML, 800))
		fmt.Fprintf(&sb, "Current CSS:\n%s\n\n", head(req.CurrentCode.CSS, 600))
		fmt.Fprintf(&sb, "Current JS:\n%s\n\n", head(req.CurrentCode.JS, 600))
		sb.WriteString("Generate SEARCH/REPLACE blocks to make the requested changes.")
	default:
		sb.WriteString("Current code:\n")
		fmt.Fprintf(&sb, "HTML:\n%s\n\n", req.CurrentCode.HTML)
		fmt.Fprintf(&sb, "CSS:\n%s\n\n", req.CurrentCode.CSS)
		fmt.Fprintf(&sb, "JS:\n%s\n\n", req.CurrentCode.JS)
		sb.WriteString("Generate the complete updated files.")
	}
	return sb.String()
}

func head(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
