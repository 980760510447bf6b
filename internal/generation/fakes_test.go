package generation

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/bizmatters/prototype-builder/orchestrator/internal/llm"
)

// step scripts one call against a fake capability
type step struct {
	chunks []string
	resp   *llm.Response
	err    error
	stall  bool
}

type fakeCapability struct {
	mu       sync.Mutex
	steps    []step
	messages [][]llm.Message
	opts     []llm.Options
}

func (f *fakeCapability) Name() string { return "fake" }

func (f *fakeCapability) next(messages []llm.Message, opts llm.Options) step {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := len(f.messages)
	f.messages = append(f.messages, messages)
	f.opts = append(f.opts, opts)
	if i >= len(f.steps) {
		return f.steps[len(f.steps)-1]
	}
	return f.steps[i]
}

func (f *fakeCapability) Complete(ctx context.Context, messages []llm.Message, opts llm.Options) (*llm.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, llm.WrapTransportError("fake", 0, err)
	}
	s := f.next(messages, opts)
	if s.stall {
		<-ctx.Done()
		return nil, llm.WrapTransportError("fake", 0, ctx.Err())
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.resp, nil
}

func (f *fakeCapability) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages)
}

func (f *fakeCapability) userPrompt(call int) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	msgs := f.messages[call]
	return msgs[len(msgs)-1].Content
}

// fakeStreamer adds incremental delivery on top of fakeCapability
type fakeStreamer struct {
	fakeCapability
}

func (f *fakeStreamer) StreamComplete(ctx context.Context, messages []llm.Message, opts llm.Options, onChunk func(string) error) (*llm.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, llm.WrapTransportError("fake", 0, err)
	}
	s := f.next(messages, opts)
	for _, chunk := range s.chunks {
		if err := onChunk(chunk); err != nil {
			return nil, err
		}
	}
	if s.stall {
		<-ctx.Done()
		return nil, llm.WrapTransportError("fake", 0, ctx.Err())
	}
	if s.err != nil {
		return nil, s.err
	}
	if s.resp == nil {
		return &llm.Response{FinishReason: llm.FinishStop}, nil
	}
	return s.resp, nil
}

type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = append(s.delays, d)
	return ctx.Err()
}

func (s *sleepRecorder) Delays() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.delays...)
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Planning = false
	cfg.ProgressInterval = 0
	return cfg
}

func newTestOrchestrator(capability llm.Capability, cfg Config, sleeper *sleepRecorder) *Orchestrator {
	return NewOrchestrator(capability, cfg, zap.NewNop(), WithSleep(sleeper.sleep))
}
