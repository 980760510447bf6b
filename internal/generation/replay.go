package generation

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const replayChunkSize = 20

// ReplayOptions tunes Replay. Delay is the pause between explanation chunks.
type ReplayOptions struct {
	ThreadID string
	Delay    time.Duration
	Logger   *zap.Logger
}

// Replay sends a stored payload through the normal run lifecycle without
// calling a provider: run-started, the explanation in short deltas,
// message-end, code_generated and run-finished.
func Replay(ctx context.Context, payload Payload, sink EventSink, opts ReplayOptions) (*Result, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	em := &emitter{sink: sink, logger: logger}

	threadID := opts.ThreadID
	if threadID == "" {
		threadID = uuid.NewString()
	}
	runID := uuid.NewString()
	msgID := uuid.NewString()

	em.emit(Event{Type: EventRunStarted, ThreadID: threadID, RunID: runID})
	em.emit(Event{Type: EventTextMessageStart, MessageID: msgID, Role: "assistant"})

	runes := []rune(payload.Explanation)
	for i := 0; i < len(runes); i += replayChunkSize {
		end := min(i+replayChunkSize, len(runes))
		em.content(msgID, string(runes[i:end]))
		if err := sleepContext(ctx, opts.Delay); err != nil {
			return nil, err
		}
	}

	if payload.Suggestions == nil {
		payload.Suggestions = []string{}
	}
	em.emit(Event{Type: EventTextMessageEnd, MessageID: msgID})
	em.emit(Event{Type: EventCustom, Name: CustomCodeGenerated, Value: CodeGenerated{Payload: payload}})
	em.emit(Event{Type: EventRunFinished, ThreadID: threadID, RunID: runID})

	return &Result{
		RunID:    runID,
		ThreadID: threadID,
		Mode:     ModeAgent,
		Payload:  &payload,
		Attempts: 0,
	}, nil
}
