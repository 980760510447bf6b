package generation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplayEmitsLifecycle(t *testing.T) {
	rec := &Recorder{}
	payload := Payload{HTML: "<button>Go</button>", Explanation: "Created a gradient button with hover."}

	result, err := Replay(context.Background(), payload, rec, ReplayOptions{ThreadID: "thread-1"})
	require.NoError(t, err)

	assert.Equal(t, []EventType{
		EventRunStarted,
		EventTextMessageStart,
		EventTextMessageContent,
		EventTextMessageContent,
		EventTextMessageEnd,
		EventCustom,
		EventRunFinished,
	}, rec.Types())

	events := rec.Events()
	assert.Equal(t, "thread-1", events[0].ThreadID)
	assert.Equal(t, "Created a gradient b", events[2].Delta)
	assert.Equal(t, "utton with hover.", events[3].Delta)

	value, ok := events[5].Value.(CodeGenerated)
	require.True(t, ok)
	assert.Equal(t, "<button>Go</button>", value.HTML)
	assert.NotNil(t, value.Suggestions)
	assert.Equal(t, "thread-1", result.ThreadID)
}

func TestReplayStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := &Recorder{}
	_, err := Replay(ctx, Payload{Explanation: "some explanation text"}, rec, ReplayOptions{Delay: time.Second})
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotContains(t, rec.Types(), EventRunFinished)
}
