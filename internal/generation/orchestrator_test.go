package generation

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/bizmatters/prototype-builder/orchestrator/internal/llm"
)

const completePayload = `{"html":"<button>Go</button>","css":"button{color:red}","js":"console.log(1)","explanation":"A button","suggestions":["Add a label"]}`

func TestRunThreeTimeoutsExhaustsRetries(t *testing.T) {
	capability := &fakeCapability{steps: []step{
		{err: llm.NewError(llm.KindTimeout, "fake", errors.New("request timeout"))},
	}}
	sleeper := &sleepRecorder{}
	recorder := &Recorder{}

	result, err := newTestOrchestrator(capability, testConfig(), sleeper).
		Run(context.Background(), Request{UserMessage: "Build a simple button"}, recorder)

	require.Error(t, err)
	assert.Nil(t, result)

	var failure *Failure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, 3, failure.Attempts)
	assert.Equal(t, llm.KindTimeout, failure.Classification.Kind)
	assert.Equal(t, "Generation timed out after 3 attempts. Try simplifying your request or breaking it into smaller parts.", failure.Classification.UserMessage)

	assert.Equal(t, 3, capability.Calls())
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, sleeper.Delays())

	assert.Equal(t, StandardMaxTokens, capability.opts[0].MaxTokens)
	assert.Equal(t, ConciseMaxTokens, capability.opts[1].MaxTokens)
	assert.Equal(t, MinimalMaxTokens, capability.opts[2].MaxTokens)
	assert.Contains(t, capability.userPrompt(1), "CONCISE MODE")
	assert.Contains(t, capability.userPrompt(2), "ULTRA-MINIMAL")

	events := recorder.Events()
	last := events[len(events)-1]
	assert.Equal(t, EventRunError, last.Type)
	assert.Equal(t, failure.Classification.UserMessage, last.Message)
	assert.NotEmpty(t, last.Suggestions)

	var interim []string
	for _, e := range events {
		if e.Type == EventTextMessageContent && strings.Contains(e.Delta, "Retrying with optimized settings") {
			interim = append(interim, strings.TrimSpace(e.Delta))
		}
	}
	assert.Equal(t, []string{
		"Generation took too long. Retrying with optimized settings (attempt 2/3)...",
		"Generation took too long. Retrying with optimized settings (attempt 3/3)...",
	}, interim)
}

func TestRunTruncatedStreamDeliversPartialPayload(t *testing.T) {
	capability := &fakeStreamer{fakeCapability{steps: []step{
		{chunks: []string{`{"html":"`, `<div>`}},
	}}}
	recorder := &Recorder{}

	result, err := newTestOrchestrator(capability, testConfig(), &sleepRecorder{}).
		Run(context.Background(), Request{UserMessage: "Build a simple button"}, recorder)

	require.NoError(t, err)
	require.NotNil(t, result.Payload)
	assert.True(t, result.IsPartial)
	assert.Equal(t, "<div>", result.Payload.HTML)
	assert.Equal(t, "", result.Payload.CSS)
	assert.Equal(t, "", result.Payload.JS)
	assert.Equal(t, []string{}, result.Payload.Suggestions)
	assert.Contains(t, strings.ToLower(result.Payload.Explanation), "partial")
	assert.Equal(t, []string{"css", "js"}, result.MissingFields)
	assert.Equal(t, 1, result.Attempts)
	assert.Equal(t, 1, capability.Calls())

	assert.Equal(t, []EventType{
		EventRunStarted,
		EventTextMessageStart,
		EventTextMessageContent,
		EventTextMessageContent,
		EventTextMessageEnd,
		EventCustom,
		EventRunFinished,
	}, recorder.Types())

	events := recorder.Events()
	custom := events[5]
	assert.Equal(t, CustomCodeGenerated, custom.Name)
	value, ok := custom.Value.(CodeGenerated)
	require.True(t, ok)
	assert.True(t, value.IsPartial)
	assert.Equal(t, "<div>", value.HTML)
	assert.Equal(t, events[0].RunID, result.RunID)
	assert.NotEmpty(t, events[0].ThreadID)
}

func TestRunRetriesWhenOutputHitsTokenLimit(t *testing.T) {
	capability := &fakeStreamer{fakeCapability{steps: []step{
		{chunks: []string{`{"html":"<div>trunc`}, resp: &llm.Response{FinishReason: llm.FinishLength}},
		{chunks: []string{completePayload}, resp: &llm.Response{FinishReason: llm.FinishStop}},
	}}}
	sleeper := &sleepRecorder{}

	result, err := newTestOrchestrator(capability, testConfig(), sleeper).
		Run(context.Background(), Request{UserMessage: "Build a simple button"}, &Recorder{})

	require.NoError(t, err)
	assert.False(t, result.IsPartial)
	assert.Equal(t, 2, result.Attempts)
	assert.Equal(t, StrategyConcise, result.Strategy)
	assert.Equal(t, "<button>Go</button>", result.Payload.HTML)
	assert.Equal(t, []time.Duration{2 * time.Second}, sleeper.Delays())
}

func TestRunDeliversTruncatedPayloadWhenRetriesExhausted(t *testing.T) {
	capability := &fakeStreamer{fakeCapability{steps: []step{
		{chunks: []string{`{"html":"<div>trunc`}, resp: &llm.Response{FinishReason: llm.FinishLength}},
	}}}
	cfg := testConfig()
	cfg.Retry.MaxAttempts = 2

	result, err := newTestOrchestrator(capability, cfg, &sleepRecorder{}).
		Run(context.Background(), Request{UserMessage: "Build a simple button"}, &Recorder{})

	require.NoError(t, err)
	assert.True(t, result.IsPartial)
	assert.Equal(t, 2, capability.Calls())
	assert.Equal(t, "<div>trunc", result.Payload.HTML)
	assert.NotEmpty(t, result.Warnings)
}

func TestRunDoesNotRetryAuthFailures(t *testing.T) {
	capability := &fakeCapability{steps: []step{
		{err: llm.NewError(llm.KindAuth, "fake", errors.New("invalid api key"))},
	}}
	sleeper := &sleepRecorder{}

	_, err := newTestOrchestrator(capability, testConfig(), sleeper).
		Run(context.Background(), Request{UserMessage: "Build a simple button"}, &Recorder{})

	var failure *Failure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, 1, capability.Calls())
	assert.Empty(t, sleeper.Delays())
	assert.Equal(t, "API authentication failed. Please check your API key configuration.", failure.Classification.UserMessage)
}

func TestRunRetriesUnparseableResponse(t *testing.T) {
	capability := &fakeCapability{steps: []step{
		{resp: &llm.Response{Content: "Sure! Here is your prototype.", FinishReason: llm.FinishStop}},
		{resp: &llm.Response{Content: "```json\n" + completePayload + "\n```", FinishReason: llm.FinishStop}},
	}}

	result, err := newTestOrchestrator(capability, testConfig(), &sleepRecorder{}).
		Run(context.Background(), Request{UserMessage: "Build a simple button"}, &Recorder{})

	require.NoError(t, err)
	assert.Equal(t, 2, result.Attempts)
	assert.Equal(t, "A button", result.Payload.Explanation)
	assert.Equal(t, []string{"Add a label"}, result.Payload.Suggestions)
}

func TestRunEmptyHTMLIsRetriedThenDeliveredWithWarning(t *testing.T) {
	capability := &fakeCapability{steps: []step{
		{resp: &llm.Response{Content: `{"html":"","css":"a{}","js":"","explanation":"nothing"}`, FinishReason: llm.FinishStop}},
	}}
	cfg := testConfig()
	cfg.Retry.MaxAttempts = 2

	result, err := newTestOrchestrator(capability, cfg, &sleepRecorder{}).
		Run(context.Background(), Request{UserMessage: "Build a simple button"}, &Recorder{})

	require.NoError(t, err)
	assert.Equal(t, 2, capability.Calls())
	assert.Equal(t, "", result.Payload.HTML)
	assert.Equal(t, "a{}", result.Payload.CSS)
	require.NotEmpty(t, result.Warnings)
	assert.Contains(t, result.Warnings[0], "no HTML")
}

func TestRunKeepsRecoveredHTMLOverLaterEmptyPayload(t *testing.T) {
	capability := &fakeStreamer{fakeCapability{steps: []step{
		{chunks: []string{`{"html":"<div>good content`}, resp: &llm.Response{FinishReason: llm.FinishLength}},
		{chunks: []string{`{"html":"","css":"a{}","js":"x()"}`}},
		{chunks: []string{"not json at all"}},
	}}}

	result, err := newTestOrchestrator(capability, testConfig(), &sleepRecorder{}).
		Run(context.Background(), Request{UserMessage: "Build a simple button"}, &Recorder{})

	require.NoError(t, err)
	assert.Equal(t, 3, capability.Calls())
	assert.Equal(t, "<div>good content", result.Payload.HTML)
	assert.True(t, result.IsPartial)
	assert.Equal(t, StrategyStandard, result.Strategy)
	for _, w := range result.Warnings {
		assert.NotContains(t, w, "no HTML")
	}
}

func TestKeepBetter(t *testing.T) {
	withHTML := &candidate{parsed: ParseResult{Payload: &Payload{HTML: "<p>"}, IsPartial: true, MissingFields: []string{"css", "js"}}}
	noHTML := &candidate{parsed: ParseResult{Payload: &Payload{CSS: "a{}"}, MissingFields: []string{"html"}}}
	fewerMissing := &candidate{parsed: ParseResult{Payload: &Payload{HTML: "<p>", CSS: "a{}"}, IsPartial: true, MissingFields: []string{"js"}}}
	closed := &candidate{parsed: ParseResult{Payload: &Payload{HTML: "<p>", CSS: "a{}"}, MissingFields: []string{"js"}}}

	tests := []struct {
		name string
		held *candidate
		next *candidate
		want *candidate
	}{
		{"first candidate is kept", nil, noHTML, noHTML},
		{"html beats empty html", withHTML, noHTML, withHTML},
		{"empty html is replaced", noHTML, withHTML, withHTML},
		{"fewer missing fields win", withHTML, fewerMissing, fewerMissing},
		{"more missing fields lose", fewerMissing, withHTML, fewerMissing},
		{"closed payload beats partial", fewerMissing, closed, closed},
		{"partial does not replace closed", closed, fewerMissing, closed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Same(t, tt.want, keepBetter(tt.held, tt.next))
		})
	}
}

func TestRunStalledStreamTimesOutAndRetries(t *testing.T) {
	defer goleak.VerifyNone(t)

	capability := &fakeStreamer{fakeCapability{steps: []step{
		{chunks: []string{`{"html":"<p>`}, stall: true},
		{chunks: []string{completePayload}},
	}}}
	cfg := testConfig()
	cfg.Retry.MaxAttempts = 2
	cfg.Timeout.ActivityWindow = 40 * time.Millisecond
	recorder := &Recorder{}

	start := time.Now()
	result, err := newTestOrchestrator(capability, cfg, &sleepRecorder{}).
		Run(context.Background(), Request{UserMessage: "Build a simple button"}, recorder)

	require.NoError(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, 2, result.Attempts)
	assert.False(t, result.IsPartial)

	var sawTimeoutNotice bool
	for _, e := range recorder.Events() {
		if strings.Contains(e.Delta, "Generation took too long. Retrying with optimized settings (attempt 2/2)...") {
			sawTimeoutNotice = true
		}
	}
	assert.True(t, sawTimeoutNotice)
}

func TestRunAttemptDeadlineIsTaggedAsTimeout(t *testing.T) {
	defer goleak.VerifyNone(t)

	capability := &fakeCapability{steps: []step{{stall: true}}}
	cfg := testConfig()
	cfg.Retry.MaxAttempts = 1
	cfg.Timeout.Initial = 30 * time.Millisecond

	_, err := newTestOrchestrator(capability, cfg, &sleepRecorder{}).
		Run(context.Background(), Request{UserMessage: "Build a simple button"}, &Recorder{})

	var failure *Failure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, llm.KindTimeout, llm.KindOf(err))
	assert.Contains(t, err.Error(), "generation timeout after 30ms")
}

func TestRunCallerCancellationIsNotRetried(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	capability := &fakeCapability{steps: []step{{resp: &llm.Response{Content: completePayload}}}}
	sleeper := &sleepRecorder{}
	recorder := &Recorder{}

	_, err := newTestOrchestrator(capability, testConfig(), sleeper).
		Run(ctx, Request{UserMessage: "Build a simple button"}, recorder)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, sleeper.Delays())
	types := recorder.Types()
	assert.Equal(t, EventRunError, types[len(types)-1])
}

func TestRunWithPlanningNarratesPlan(t *testing.T) {
	capability := &fakeCapability{steps: []step{
		{resp: &llm.Response{Content: `{"understanding":"A todo app","components":["List","Form"],"features":["Add","Delete"],"techStack":["HTML5"],"estimatedComplexity":"Simple"}`}},
		{resp: &llm.Response{Content: completePayload, FinishReason: llm.FinishStop}},
	}}
	cfg := testConfig()
	cfg.Planning = true
	recorder := &Recorder{}

	result, err := newTestOrchestrator(capability, cfg, &sleepRecorder{}).
		Run(context.Background(), Request{UserMessage: "Build a todo app"}, recorder)

	require.NoError(t, err)
	require.NotNil(t, result.Plan)
	assert.Equal(t, "A todo app", result.Plan.Understanding)
	assert.Contains(t, capability.userPrompt(1), "Components: List, Form")

	starts := 0
	var narration strings.Builder
	for _, e := range recorder.Events() {
		if e.Type == EventTextMessageStart {
			starts++
		}
		narration.WriteString(e.Delta)
	}
	assert.Equal(t, 2, starts)
	assert.Contains(t, narration.String(), "**Implementation Plan:**")
	assert.Contains(t, narration.String(), "**Implementation Complete!**")
}

func TestRunPlanningFailureFallsBack(t *testing.T) {
	capability := &fakeCapability{steps: []step{
		{resp: &llm.Response{Content: "I cannot plan this."}},
		{resp: &llm.Response{Content: completePayload, FinishReason: llm.FinishStop}},
	}}
	cfg := testConfig()
	cfg.Planning = true

	result, err := newTestOrchestrator(capability, cfg, &sleepRecorder{}).
		Run(context.Background(), Request{UserMessage: "Build a todo app"}, &Recorder{})

	require.NoError(t, err)
	assert.Nil(t, result.Plan)
	assert.Equal(t, 1, result.Attempts)
}

func TestRunModifyUsesCurrentCode(t *testing.T) {
	capability := &fakeCapability{steps: []step{{resp: &llm.Response{Content: completePayload}}}}
	cfg := testConfig()
	cfg.Planning = true

	_, err := newTestOrchestrator(capability, cfg, &sleepRecorder{}).
		Run(context.Background(), Request{UserMessage: "fix the broken click handler", CurrentCode: "<button>old</button>"}, &Recorder{})

	require.NoError(t, err)
	assert.Equal(t, 1, capability.Calls(), "planning only runs for new prototypes")
	assert.Contains(t, capability.userPrompt(0), "Fix this issue in the prototype")
	assert.Contains(t, capability.userPrompt(0), "<button>old</button>")
}

func TestRunChatModeStreamsReplyInChunks(t *testing.T) {
	reply := strings.Repeat("a", 250)
	capability := &fakeCapability{steps: []step{{resp: &llm.Response{Content: reply, FinishReason: llm.FinishStop}}}}
	recorder := &Recorder{}

	result, err := newTestOrchestrator(capability, testConfig(), &sleepRecorder{}).
		Run(context.Background(), Request{UserMessage: "How do I center a div?", Mode: ModeChat, CurrentCode: "<div></div>"}, recorder)

	require.NoError(t, err)
	assert.Equal(t, reply, result.Reply)
	assert.Nil(t, result.Payload)
	assert.Contains(t, capability.userPrompt(0), "Current code context:")

	var deltas []string
	for _, e := range recorder.Events() {
		if e.Type == EventTextMessageContent {
			deltas = append(deltas, e.Delta)
		}
	}
	require.Len(t, deltas, 3)
	assert.Len(t, deltas[0], 100)
	assert.Len(t, deltas[2], 50)
}

func TestRunEmitsProgressWhileStreaming(t *testing.T) {
	capability := &fakeStreamer{fakeCapability{steps: []step{
		{chunks: []string{completePayload[:20], completePayload[20:40], completePayload[40:]}},
	}}}
	cfg := testConfig()
	cfg.ProgressInterval = time.Nanosecond
	recorder := &Recorder{}

	_, err := newTestOrchestrator(capability, cfg, &sleepRecorder{}).
		Run(context.Background(), Request{UserMessage: "Build a simple button"}, recorder)
	require.NoError(t, err)

	dots := 0
	for _, e := range recorder.Events() {
		if e.Delta == "." {
			dots++
		}
	}
	assert.GreaterOrEqual(t, dots, 1)
}

func TestRunIgnoresSinkErrors(t *testing.T) {
	capability := &fakeCapability{steps: []step{{resp: &llm.Response{Content: completePayload}}}}
	sink := SinkFunc(func(Event) error { return errors.New("client went away") })

	result, err := newTestOrchestrator(capability, testConfig(), &sleepRecorder{}).
		Run(context.Background(), Request{UserMessage: "Build a simple button"}, sink)

	require.NoError(t, err)
	assert.Equal(t, "<button>Go</button>", result.Payload.HTML)
}

func TestRunUsesProvidedThreadID(t *testing.T) {
	capability := &fakeCapability{steps: []step{{resp: &llm.Response{Content: completePayload}}}}
	recorder := &Recorder{}

	result, err := newTestOrchestrator(capability, testConfig(), &sleepRecorder{}).
		Run(context.Background(), Request{UserMessage: "Build a simple button", ThreadID: "thread-1"}, recorder)

	require.NoError(t, err)
	assert.Equal(t, "thread-1", result.ThreadID)
	assert.Equal(t, "thread-1", recorder.Events()[0].ThreadID)
}

func TestApplyDefaults(t *testing.T) {
	t.Run("complete payload keeps explanation", func(t *testing.T) {
		payload := ApplyDefaults(ParseResult{Success: true, Payload: &Payload{HTML: "x", Explanation: "done"}})
		assert.Equal(t, "done", payload.Explanation)
		assert.Equal(t, []string{}, payload.Suggestions)
	})

	t.Run("partial payload prefixes notice", func(t *testing.T) {
		payload := ApplyDefaults(ParseResult{Success: true, IsPartial: true, Payload: &Payload{HTML: "x", Explanation: "done"}})
		assert.True(t, strings.HasPrefix(payload.Explanation, PartialNotice))
		assert.True(t, strings.HasSuffix(payload.Explanation, "done"))
	})

	t.Run("missing explanation gets default", func(t *testing.T) {
		payload := ApplyDefaults(ParseResult{Success: true, Payload: &Payload{HTML: "x"}})
		assert.Equal(t, "Code generated successfully!", payload.Explanation)
	})
}
