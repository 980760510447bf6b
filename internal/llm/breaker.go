package llm

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// BreakerCapability guards a provider with a circuit breaker. When open, calls
// fail fast with a service-unavailable error.
type BreakerCapability struct {
	inner   Capability
	breaker *gobreaker.CircuitBreaker
	tracer  trace.Tracer
}

// NewBreakerCapability wraps inner. Only transport-level failures count
// towards tripping; auth, parse and caller cancellations do not.
func NewBreakerCapability(inner Capability, logger *zap.Logger) *BreakerCapability {
	settings := gobreaker.Settings{
		Name:        "llm-" + inner.Name(),
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
		IsSuccessful: countsAsSuccess,
	}

	return &BreakerCapability{
		inner:   inner,
		breaker: gobreaker.NewCircuitBreaker(settings),
		tracer:  otel.Tracer("llm-breaker"),
	}
}

// Name returns the wrapped provider name
func (b *BreakerCapability) Name() string {
	return b.inner.Name()
}

// State reports the breaker state, for readiness checks
func (b *BreakerCapability) State() gobreaker.State {
	return b.breaker.State()
}

// Complete runs inner.Complete through the breaker
func (b *BreakerCapability) Complete(ctx context.Context, messages []Message, opts Options) (*Response, error) {
	ctx, span := b.tracer.Start(ctx, "llm.complete")
	defer span.End()
	span.SetAttributes(attribute.String("llm.provider", b.inner.Name()))

	result, err := b.breaker.Execute(func() (interface{}, error) {
		return b.inner.Complete(ctx, messages, opts)
	})
	if err != nil {
		err = b.translate(err)
		span.RecordError(err)
		return nil, err
	}
	return result.(*Response), nil
}

// StreamComplete runs the inner stream through the breaker. Providers without
// streaming support deliver the whole completion as a single chunk.
func (b *BreakerCapability) StreamComplete(ctx context.Context, messages []Message, opts Options, onChunk func(string) error) (*Response, error) {
	ctx, span := b.tracer.Start(ctx, "llm.stream_complete")
	defer span.End()
	span.SetAttributes(attribute.String("llm.provider", b.inner.Name()))

	result, err := b.breaker.Execute(func() (interface{}, error) {
		if streamer, ok := b.inner.(Streamer); ok {
			return streamer.StreamComplete(ctx, messages, opts, onChunk)
		}
		resp, err := b.inner.Complete(ctx, messages, opts)
		if err != nil {
			return nil, err
		}
		if resp.Content != "" {
			if err := onChunk(resp.Content); err != nil {
				return nil, err
			}
		}
		return resp, nil
	})
	if err != nil {
		err = b.translate(err)
		span.RecordError(err)
		return nil, err
	}
	return result.(*Response), nil
}

func (b *BreakerCapability) translate(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return &Error{Kind: KindServiceUnavailable, Provider: b.inner.Name(), Err: err}
	}
	return err
}

func countsAsSuccess(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return true
	}
	switch KindOf(err) {
	case KindAuth, KindParse, KindTokenLimit:
		return true
	}
	return false
}
