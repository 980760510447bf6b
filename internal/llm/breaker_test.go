package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubCapability struct {
	calls int
	resp  *Response
	err   error
}

func (s *stubCapability) Name() string { return "stub" }

func (s *stubCapability) Complete(ctx context.Context, messages []Message, opts Options) (*Response, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.resp, nil
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	inner := &stubCapability{err: NewError(KindNetwork, "stub", errors.New("connection refused"))}
	breaker := NewBreakerCapability(inner, zap.NewNop())

	for i := 0; i < 6; i++ {
		_, err := breaker.Complete(context.Background(), nil, Options{})
		require.Error(t, err)
		assert.Equal(t, KindNetwork, KindOf(err))
	}
	assert.Equal(t, gobreaker.StateOpen, breaker.State())

	_, err := breaker.Complete(context.Background(), nil, Options{})
	require.Error(t, err)
	assert.Equal(t, KindServiceUnavailable, KindOf(err))
	assert.Equal(t, 6, inner.calls, "open breaker must not reach the provider")
}

func TestBreakerIgnoresAuthFailures(t *testing.T) {
	inner := &stubCapability{err: NewError(KindAuth, "stub", errors.New("invalid api key"))}
	breaker := NewBreakerCapability(inner, zap.NewNop())

	for i := 0; i < 10; i++ {
		_, err := breaker.Complete(context.Background(), nil, Options{})
		require.Error(t, err)
	}
	assert.Equal(t, gobreaker.StateClosed, breaker.State())
}

func TestBreakerStreamFallsBackToComplete(t *testing.T) {
	inner := &stubCapability{resp: &Response{Content: `{"html":"<p>hi</p>"}`, FinishReason: FinishStop}}
	breaker := NewBreakerCapability(inner, zap.NewNop())

	var chunks []string
	resp, err := breaker.StreamComplete(context.Background(), nil, Options{}, func(chunk string) error {
		chunks = append(chunks, chunk)
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, []string{`{"html":"<p>hi</p>"}`}, chunks)
	assert.Equal(t, FinishStop, resp.FinishReason)
}
