package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const defaultAnthropicMaxTokens = 4000

// AnthropicProvider implements Capability and Streamer on the Messages API
type AnthropicProvider struct {
	model  string
	client anthropic.Client
	tracer trace.Tracer
}

// NewAnthropicProvider creates a provider backed by the official SDK
func NewAnthropicProvider(apiKey, model string) (*AnthropicProvider, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("anthropic provider requires an API key")
	}
	if strings.TrimSpace(model) == "" {
		return nil, fmt.Errorf("anthropic provider requires a model")
	}

	return &AnthropicProvider{
		model:  model,
		client: anthropic.NewClient(option.WithAPIKey(apiKey), option.WithMaxRetries(0)),
		tracer: otel.Tracer("llm-anthropic"),
	}, nil
}

// Name returns the provider name
func (p *AnthropicProvider) Name() string {
	return "anthropic"
}

// Complete sends messages and waits for the full response
func (p *AnthropicProvider) Complete(ctx context.Context, messages []Message, opts Options) (*Response, error) {
	ctx, span := p.tracer.Start(ctx, "anthropic.complete")
	defer span.End()
	span.SetAttributes(attribute.String("llm.model", p.model))

	params, err := p.buildParams(messages, opts)
	if err != nil {
		return nil, err
	}

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		err = p.wrapError(err)
		span.RecordError(err)
		return nil, err
	}

	var content strings.Builder
	for _, block := range msg.Content {
		if text, ok := block.AsAny().(anthropic.TextBlock); ok {
			content.WriteString(text.Text)
		}
	}

	resp := &Response{
		Content:      content.String(),
		FinishReason: normalizeFinishReason(string(msg.StopReason)),
		Model:        string(msg.Model),
		Usage: &Usage{
			PromptTokens:     int(msg.Usage.InputTokens),
			CompletionTokens: int(msg.Usage.OutputTokens),
			TotalTokens:      int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		},
	}
	span.SetAttributes(attribute.String("llm.finish_reason", resp.FinishReason))
	return resp, nil
}

// StreamComplete streams text deltas to onChunk in arrival order
func (p *AnthropicProvider) StreamComplete(ctx context.Context, messages []Message, opts Options, onChunk func(string) error) (*Response, error) {
	ctx, span := p.tracer.Start(ctx, "anthropic.stream_complete")
	defer span.End()
	span.SetAttributes(attribute.String("llm.model", p.model))

	params, err := p.buildParams(messages, opts)
	if err != nil {
		return nil, err
	}

	stream := p.client.Messages.NewStreaming(ctx, params)
	if stream == nil {
		return nil, NewError(KindUnknown, p.Name(), fmt.Errorf("no stream returned"))
	}
	defer stream.Close()

	var content strings.Builder
	finishReason := FinishStop
	for stream.Next() {
		switch event := stream.Current().AsAny().(type) {
		case anthropic.ContentBlockDeltaEvent:
			textDelta, ok := event.Delta.AsAny().(anthropic.TextDelta)
			if !ok || textDelta.Text == "" {
				continue
			}
			content.WriteString(textDelta.Text)
			if err := onChunk(textDelta.Text); err != nil {
				span.RecordError(err)
				return nil, err
			}
		case anthropic.MessageDeltaEvent:
			if event.Delta.StopReason != "" {
				finishReason = normalizeFinishReason(string(event.Delta.StopReason))
			}
		}
	}

	if err := stream.Err(); err != nil {
		err = p.wrapError(err)
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(attribute.String("llm.finish_reason", finishReason))
	return &Response{Content: content.String(), FinishReason: finishReason, Model: p.model}, nil
}

func (p *AnthropicProvider) buildParams(messages []Message, opts Options) (anthropic.MessageNewParams, error) {
	var system []anthropic.TextBlockParam
	chat := make([]anthropic.MessageParam, 0, len(messages))

	for _, msg := range messages {
		if msg.Content == "" {
			continue
		}
		switch msg.Role {
		case RoleSystem:
			system = append(system, anthropic.TextBlockParam{Text: msg.Content})
		case RoleAssistant:
			chat = append(chat, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		default:
			chat = append(chat, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}
	if len(chat) == 0 {
		return anthropic.MessageNewParams{}, fmt.Errorf("anthropic completion requires at least one user or assistant message")
	}

	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: int64(maxTokens),
		Messages:  chat,
	}
	if len(system) > 0 {
		params.System = system
	}
	if opts.Temperature > 0 {
		params.Temperature = anthropic.Float(opts.Temperature)
	}
	return params, nil
}

func (p *AnthropicProvider) wrapError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return WrapTransportError(p.Name(), apiErr.StatusCode, err)
	}
	return WrapTransportError(p.Name(), 0, err)
}
