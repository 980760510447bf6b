package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/genai"
)

// GeminiProvider implements Capability and Streamer on the Google GenAI SDK
type GeminiProvider struct {
	model  string
	client *genai.Client
	tracer trace.Tracer
}

// NewGeminiProvider creates a provider for the Gemini API backend
func NewGeminiProvider(ctx context.Context, apiKey, model string) (*GeminiProvider, error) {
	if strings.TrimSpace(model) == "" {
		return nil, fmt.Errorf("gemini provider requires a model")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &GeminiProvider{
		model:  strings.TrimPrefix(model, "models/"),
		client: client,
		tracer: otel.Tracer("llm-gemini"),
	}, nil
}

// Name returns the provider name
func (p *GeminiProvider) Name() string {
	return "gemini"
}

// Complete sends messages and waits for the full response
func (p *GeminiProvider) Complete(ctx context.Context, messages []Message, opts Options) (*Response, error) {
	ctx, span := p.tracer.Start(ctx, "gemini.complete")
	defer span.End()
	span.SetAttributes(attribute.String("llm.model", p.model))

	contents, cfg := p.buildRequest(messages, opts)
	result, err := p.client.Models.GenerateContent(ctx, p.model, contents, cfg)
	if err != nil {
		err = p.wrapError(err)
		span.RecordError(err)
		return nil, err
	}

	resp := &Response{
		Content:      result.Text(),
		FinishReason: geminiFinishReason(result),
		Model:        p.model,
	}
	if result.UsageMetadata != nil {
		resp.Usage = &Usage{
			PromptTokens:     int(result.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(result.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(result.UsageMetadata.TotalTokenCount),
		}
	}
	span.SetAttributes(attribute.String("llm.finish_reason", resp.FinishReason))
	return resp, nil
}

// StreamComplete streams text to onChunk in arrival order
func (p *GeminiProvider) StreamComplete(ctx context.Context, messages []Message, opts Options, onChunk func(string) error) (*Response, error) {
	ctx, span := p.tracer.Start(ctx, "gemini.stream_complete")
	defer span.End()
	span.SetAttributes(attribute.String("llm.model", p.model))

	contents, cfg := p.buildRequest(messages, opts)

	var content strings.Builder
	finishReason := FinishStop
	for result, err := range p.client.Models.GenerateContentStream(ctx, p.model, contents, cfg) {
		if err != nil {
			err = p.wrapError(err)
			span.RecordError(err)
			return nil, err
		}
		if reason := geminiFinishReason(result); reason != FinishStop {
			finishReason = reason
		}
		text := result.Text()
		if text == "" {
			continue
		}
		content.WriteString(text)
		if err := onChunk(text); err != nil {
			span.RecordError(err)
			return nil, err
		}
	}

	span.SetAttributes(attribute.String("llm.finish_reason", finishReason))
	return &Response{Content: content.String(), FinishReason: finishReason, Model: p.model}, nil
}

func (p *GeminiProvider) buildRequest(messages []Message, opts Options) ([]*genai.Content, *genai.GenerateContentConfig) {
	cfg := &genai.GenerateContentConfig{}
	var system []string
	contents := make([]*genai.Content, 0, len(messages))

	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			system = append(system, msg.Content)
		case RoleAssistant:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleUser))
		}
	}

	if len(system) > 0 {
		cfg.SystemInstruction = genai.NewContentFromText(strings.Join(system, "\n\n"), genai.RoleUser)
	}
	if opts.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(opts.MaxTokens)
	}
	if opts.Temperature > 0 {
		cfg.Temperature = genai.Ptr(float32(opts.Temperature))
	}
	return contents, cfg
}

func (p *GeminiProvider) wrapError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return WrapTransportError(p.Name(), apiErr.Code, err)
	}
	return WrapTransportError(p.Name(), 0, err)
}

func geminiFinishReason(result *genai.GenerateContentResponse) string {
	if result == nil || len(result.Candidates) == 0 || result.Candidates[0] == nil {
		return FinishStop
	}
	return normalizeFinishReason(string(result.Candidates[0].FinishReason))
}
