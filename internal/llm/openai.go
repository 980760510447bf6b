package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Default endpoints for OpenAI-compatible providers
const (
	DeepSeekBaseURL = "https://api.deepseek.com/v1"
	OllamaBaseURL   = "http://localhost:11434/v1"
)

// OpenAIProvider talks to any OpenAI-compatible chat completions endpoint
// (OpenAI, DeepSeek, Ollama, custom gateways).
type OpenAIProvider struct {
	name   string
	model  string
	client openai.Client
	tracer trace.Tracer
}

// NewOpenAIProvider creates a provider. baseURL may be empty for api.openai.com.
func NewOpenAIProvider(name, apiKey, model, baseURL string) (*OpenAIProvider, error) {
	if strings.TrimSpace(model) == "" {
		return nil, fmt.Errorf("%s provider requires a model", name)
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	return &OpenAIProvider{
		name:   name,
		model:  model,
		client: openai.NewClient(opts...),
		tracer: otel.Tracer("llm-openai"),
	}, nil
}

// Name returns the provider name
func (p *OpenAIProvider) Name() string {
	return p.name
}

// Complete sends messages and waits for the full response
func (p *OpenAIProvider) Complete(ctx context.Context, messages []Message, opts Options) (*Response, error) {
	ctx, span := p.tracer.Start(ctx, "openai.complete")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.provider", p.name),
		attribute.String("llm.model", p.model),
	)

	completion, err := p.client.Chat.Completions.New(ctx, p.buildParams(messages, opts))
	if err != nil {
		err = p.wrapError(err)
		span.RecordError(err)
		return nil, err
	}

	resp := &Response{Model: completion.Model, FinishReason: FinishStop}
	if len(completion.Choices) > 0 {
		resp.Content = completion.Choices[0].Message.Content
		resp.FinishReason = normalizeFinishReason(completion.Choices[0].FinishReason)
	}
	resp.Usage = &Usage{
		PromptTokens:     int(completion.Usage.PromptTokens),
		CompletionTokens: int(completion.Usage.CompletionTokens),
		TotalTokens:      int(completion.Usage.TotalTokens),
	}

	span.SetAttributes(attribute.String("llm.finish_reason", resp.FinishReason))
	return resp, nil
}

// StreamComplete streams content deltas to onChunk in arrival order
func (p *OpenAIProvider) StreamComplete(ctx context.Context, messages []Message, opts Options, onChunk func(string) error) (*Response, error) {
	ctx, span := p.tracer.Start(ctx, "openai.stream_complete")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.provider", p.name),
		attribute.String("llm.model", p.model),
	)

	params := p.buildParams(messages, opts)
	stream := p.client.Chat.Completions.NewStreaming(ctx, params)
	defer stream.Close()

	var content strings.Builder
	finishReason := ""
	for stream.Next() {
		chunk := stream.Current()
		for _, choice := range chunk.Choices {
			if choice.FinishReason != "" {
				finishReason = normalizeFinishReason(choice.FinishReason)
			}
			if choice.Delta.Content == "" {
				continue
			}
			content.WriteString(choice.Delta.Content)
			if err := onChunk(choice.Delta.Content); err != nil {
				span.RecordError(err)
				return nil, err
			}
		}
	}

	if err := stream.Err(); err != nil {
		err = p.wrapError(err)
		span.RecordError(err)
		return nil, err
	}

	if finishReason == "" {
		finishReason = FinishStop
	}
	span.SetAttributes(attribute.String("llm.finish_reason", finishReason))

	return &Response{Content: content.String(), FinishReason: finishReason, Model: p.model}, nil
}

func (p *OpenAIProvider) buildParams(messages []Message, opts Options) openai.ChatCompletionNewParams {
	converted := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			converted = append(converted, openai.SystemMessage(msg.Content))
		case RoleAssistant:
			converted = append(converted, openai.AssistantMessage(msg.Content))
		default:
			converted = append(converted, openai.UserMessage(msg.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(p.model),
		Messages: converted,
	}
	if opts.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(opts.MaxTokens))
	}
	if opts.Temperature > 0 {
		params.Temperature = openai.Float(opts.Temperature)
	}
	return params
}

func (p *OpenAIProvider) wrapError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return WrapTransportError(p.name, apiErr.StatusCode, err)
	}
	return WrapTransportError(p.name, 0, err)
}

func normalizeFinishReason(reason string) string {
	switch strings.ToLower(reason) {
	case "", "stop", "end_turn", "stop_sequence", "finish_reason_unspecified":
		return FinishStop
	case "length", "max_tokens":
		return FinishLength
	case "content_filter", "safety", "refusal":
		return FinishContentFilter
	default:
		return strings.ToLower(reason)
	}
}
