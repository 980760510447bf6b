package generation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/bizmatters/prototype-builder/orchestrator/internal/llm"
)

// Mode selects agent (code generation) or chat (conversation only)
type Mode string

const (
	ModeAgent Mode = "agent"
	ModeChat  Mode = "chat"
)

const chatChunkSize = 100

// PartialNotice prefixes the explanation of a payload recovered from truncation
const PartialNotice = "Partial result: the response was cut off before it finished, so some code may be incomplete. You may want to regenerate for complete code."

var (
	errStalled         = errors.New("stream stalled")
	errAttemptDeadline = errors.New("attempt deadline exceeded")
)

// Request is one logical generation request
type Request struct {
	UserMessage         string        `json:"message"`
	ConversationHistory []llm.Message `json:"conversationHistory,omitempty"`
	PriorPlan           *Plan         `json:"priorPlan,omitempty"`
	Mode                Mode          `json:"mode"`
	CurrentCode         string        `json:"currentCode,omitempty"`
	SelectedElement     string        `json:"selectedElement,omitempty"`
	ThreadID            string        `json:"threadId,omitempty"`
}

// Config tunes the orchestrator
type Config struct {
	Retry              RetryConfig
	Timeout            TimeoutConfig
	ProgressInterval   time.Duration
	Planning           bool
	HistoryTokenBudget int
	Temperature        float64
	ChatMaxTokens      int
	PlanMaxTokens      int
}

// DefaultConfig returns the production defaults
func DefaultConfig() Config {
	return Config{
		Retry:              DefaultRetryConfig(),
		Timeout:            DefaultTimeoutConfig(),
		ProgressInterval:   2 * time.Second,
		Planning:           true,
		HistoryTokenBudget: 4000,
		Temperature:        0.7,
		ChatMaxTokens:      4000,
		PlanMaxTokens:      1024,
	}
}

// Result is what a successful run hands back to the caller
type Result struct {
	RunID         string       `json:"runId"`
	ThreadID      string       `json:"threadId"`
	Mode          Mode         `json:"mode"`
	Payload       *Payload     `json:"payload,omitempty"`
	IsPartial     bool         `json:"isPartial"`
	MissingFields []string     `json:"missingFields,omitempty"`
	Warnings      []string     `json:"warnings,omitempty"`
	Attempts      int          `json:"attempts"`
	Strategy      StrategyKind `json:"strategy,omitempty"`
	FinishReason  string       `json:"finishReason,omitempty"`
	Plan          *Plan        `json:"plan,omitempty"`
	Reply         string       `json:"reply,omitempty"`
}

// Failure is the terminal error of a run. Classification carries the user
// message and suggestions already sent in the run-error event.
type Failure struct {
	Classification Classification
	Attempts       int
	Err            error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("generation failed after %d attempt(s): %v", f.Attempts, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// MetricsRecorder receives run and attempt measurements
type MetricsRecorder interface {
	RecordRunStarted(ctx context.Context, mode string)
	RecordAttempt(ctx context.Context, strategy, outcome string)
	RecordRetry(ctx context.Context, kind string)
	RecordRunCompleted(ctx context.Context, mode string, partial bool, attempts int, duration time.Duration)
	RecordRunFailed(ctx context.Context, mode, kind string, attempts int, duration time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) RecordRunStarted(context.Context, string)                             {}
func (noopMetrics) RecordAttempt(context.Context, string, string)                        {}
func (noopMetrics) RecordRetry(context.Context, string)                                  {}
func (noopMetrics) RecordRunCompleted(context.Context, string, bool, int, time.Duration) {}
func (noopMetrics) RecordRunFailed(context.Context, string, string, int, time.Duration)  {}

// Option customises an Orchestrator
type Option func(*Orchestrator)

// WithMetrics records run measurements
func WithMetrics(m MetricsRecorder) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithSleep replaces the backoff wait
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(o *Orchestrator) { o.sleep = sleep }
}

// WithTokenCounter sets the counter used for history trimming
func WithTokenCounter(counter *llm.TokenCounter) Option {
	return func(o *Orchestrator) { o.counter = counter }
}

// Orchestrator drives generation requests against an LLM capability. It holds
// no per-request state and may serve concurrent runs.
type Orchestrator struct {
	capability llm.Capability
	cfg        Config
	counter    *llm.TokenCounter
	metrics    MetricsRecorder
	logger     *zap.Logger
	tracer     trace.Tracer
	sleep      func(ctx context.Context, d time.Duration) error
}

// NewOrchestrator creates an orchestrator over capability
func NewOrchestrator(capability llm.Capability, cfg Config, logger *zap.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		capability: capability,
		cfg:        cfg,
		counter:    &llm.TokenCounter{},
		metrics:    noopMetrics{},
		logger:     logger,
		tracer:     otel.Tracer("generation-orchestrator"),
		sleep:      sleepContext,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Config returns the orchestrator configuration
func (o *Orchestrator) Config() Config {
	return o.cfg
}

// Run processes req, emitting lifecycle events to sink. It always emits a
// terminal RunFinished or RunError. On failure the returned error is a *Failure.
func (o *Orchestrator) Run(ctx context.Context, req Request, sink EventSink) (*Result, error) {
	if req.Mode == "" {
		req.Mode = ModeAgent
	}
	threadID := req.ThreadID
	if threadID == "" {
		threadID = uuid.NewString()
	}
	runID := uuid.NewString()

	ctx, span := o.tracer.Start(ctx, "generation.run")
	defer span.End()
	span.SetAttributes(
		attribute.String("run.id", runID),
		attribute.String("thread.id", threadID),
		attribute.String("run.mode", string(req.Mode)),
	)

	logger := o.logger.With(zap.String("run_id", runID), zap.String("thread_id", threadID), zap.String("mode", string(req.Mode)))
	em := &emitter{sink: sink, logger: logger}
	start := time.Now()

	o.metrics.RecordRunStarted(ctx, string(req.Mode))
	em.emit(Event{Type: EventRunStarted, ThreadID: threadID, RunID: runID})

	var (
		result *Result
		err    error
	)
	if req.Mode == ModeChat {
		result, err = o.runChat(ctx, req, em, logger)
	} else {
		result, err = o.runAgent(ctx, req, em, logger)
	}

	if err != nil {
		var failure *Failure
		if !errors.As(err, &failure) {
			failure = &Failure{Classification: Classify(err, 1, 1), Attempts: 1, Err: err}
		}
		span.RecordError(err)
		logger.Error("generation failed",
			zap.Error(err),
			zap.String("kind", string(failure.Classification.Kind)),
			zap.Int("attempts", failure.Attempts),
		)
		o.metrics.RecordRunFailed(ctx, string(req.Mode), string(failure.Classification.Kind), failure.Attempts, time.Since(start))
		em.emit(Event{
			Type:        EventRunError,
			ThreadID:    threadID,
			RunID:       runID,
			Message:     failure.Classification.UserMessage,
			Suggestions: failure.Classification.Suggestions,
		})
		return nil, failure
	}

	result.RunID = runID
	result.ThreadID = threadID
	result.Mode = req.Mode
	span.SetAttributes(
		attribute.Int("run.attempts", result.Attempts),
		attribute.Bool("run.partial", result.IsPartial),
	)
	o.metrics.RecordRunCompleted(ctx, string(req.Mode), result.IsPartial, result.Attempts, time.Since(start))
	logger.Info("generation completed",
		zap.Int("attempts", result.Attempts),
		zap.Bool("partial", result.IsPartial),
		zap.Strings("missing_fields", result.MissingFields),
		zap.Duration("duration", time.Since(start)),
	)
	em.emit(Event{Type: EventRunFinished, ThreadID: threadID, RunID: runID})
	return result, nil
}

// candidate is a parsed attempt that was not a clean success
type candidate struct {
	parsed       ParseResult
	strategy     StrategyKind
	finishReason string
}

// keepBetter returns whichever candidate is more usable. Visible HTML wins
// first, then fewer missing fields, then a closed payload; ties go to next.
func keepBetter(held, next *candidate) *candidate {
	if held == nil {
		return next
	}
	heldHTML, nextHTML := held.parsed.Payload.HTML != "", next.parsed.Payload.HTML != ""
	if heldHTML != nextHTML {
		if heldHTML {
			return held
		}
		return next
	}
	if h, n := len(held.parsed.MissingFields), len(next.parsed.MissingFields); h != n {
		if h < n {
			return held
		}
		return next
	}
	if held.parsed.IsPartial && !next.parsed.IsPartial {
		return next
	}
	if !held.parsed.IsPartial && next.parsed.IsPartial {
		return held
	}
	return next
}

func (o *Orchestrator) runAgent(ctx context.Context, req Request, em *emitter, logger *zap.Logger) (*Result, error) {
	action := DetermineAction(req.UserMessage, req.CurrentCode)
	plan := o.narratePlan(ctx, req, action, em, logger)

	msgID := uuid.NewString()
	em.emit(Event{Type: EventTextMessageStart, MessageID: msgID, Role: llm.RoleAssistant})
	em.content(msgID, "**Generating your prototype...**\n\n")

	retry := NewRetryController(o.cfg.Retry)
	var (
		best    *candidate
		lastErr error
	)

	for {
		strategy := SelectStrategy(req.UserMessage, retry.RetryAttempt())
		resp, content, err := o.attempt(ctx, req, action, plan, strategy, retry.RetryAttempt(), em, msgID, logger)

		if err == nil {
			parsed := Parse(content)
			switch {
			case !parsed.Success:
				err = llm.NewError(llm.KindParse, o.capability.Name(), fmt.Errorf("failed to parse response: %s", parsed.Error))
			case parsed.Payload.HTML == "":
				best = keepBetter(best, &candidate{parsed: parsed, strategy: strategy.Kind, finishReason: resp.FinishReason})
				err = llm.NewError(llm.KindParse, o.capability.Name(), errors.New("incomplete response: payload has no HTML content"))
			case resp.Truncated() && (parsed.IsPartial || len(parsed.MissingFields) > 0):
				best = keepBetter(best, &candidate{parsed: parsed, strategy: strategy.Kind, finishReason: resp.FinishReason})
				err = llm.NewError(llm.KindTokenLimit, o.capability.Name(), errors.New("response truncated at the output token limit"))
			default:
				o.metrics.RecordAttempt(ctx, string(strategy.Kind), outcomeLabel(parsed))
				return o.deliver(em, msgID, candidate{parsed: parsed, strategy: strategy.Kind, finishReason: resp.FinishReason}, retry.AttemptNumber(), plan, nil), nil
			}
		}

		lastErr = err
		o.metrics.RecordAttempt(ctx, string(strategy.Kind), "error")
		logger.Warn("generation attempt failed",
			zap.Int("attempt", retry.AttemptNumber()),
			zap.String("strategy", string(strategy.Kind)),
			zap.Error(err),
		)

		if ctx.Err() != nil || !retry.ShouldRetry(err) {
			break
		}

		cls := Classify(err, retry.AttemptNumber(), retry.TotalAttempts())
		em.content(msgID, "\n\n"+cls.UserMessage+"\n\n")
		o.metrics.RecordRetry(ctx, string(cls.Kind))

		delay := retry.Delay()
		logger.Info("retrying generation",
			zap.Int("next_attempt", retry.AttemptNumber()+1),
			zap.Duration("delay", delay),
			zap.String("kind", string(cls.Kind)),
		)
		if err := o.sleep(ctx, delay); err != nil {
			lastErr = err
			break
		}
		retry.IncrementAttempt()
	}

	if best != nil && ctx.Err() == nil {
		var warnings []string
		if best.parsed.Payload.HTML == "" {
			warnings = append(warnings, "The generated prototype has no HTML content. Try regenerating with a simpler request.")
		}
		if best.finishReason == llm.FinishLength {
			warnings = append(warnings, "The response was cut off at the output token limit.")
		}
		return o.deliver(em, msgID, *best, retry.AttemptNumber(), plan, warnings), nil
	}

	cls := Classify(lastErr, retry.AttemptNumber(), retry.TotalAttempts())
	em.content(msgID, "\n\n"+cls.UserMessage)
	em.emit(Event{Type: EventTextMessageEnd, MessageID: msgID})
	return nil, &Failure{Classification: cls, Attempts: retry.AttemptNumber(), Err: lastErr}
}

// narratePlan runs the optional planning step inside its own message.
// Planning failures only change the narration.
func (o *Orchestrator) narratePlan(ctx context.Context, req Request, action Action, em *emitter, logger *zap.Logger) *Plan {
	plan := req.PriorPlan
	if plan == nil && (!o.cfg.Planning || action != ActionCreate) {
		return nil
	}

	planMsgID := uuid.NewString()
	em.emit(Event{Type: EventTextMessageStart, MessageID: planMsgID, Role: llm.RoleAssistant})
	if plan == nil {
		em.content(planMsgID, "**Analyzing your request...**\n\n")
		plan = o.plan(ctx, req.UserMessage, logger)
	}
	if plan != nil {
		em.content(planMsgID, NarratePlan(plan))
	} else {
		em.content(planMsgID, "**Generating your prototype...**\n\n")
	}
	em.emit(Event{Type: EventTextMessageEnd, MessageID: planMsgID})
	return plan
}

func (o *Orchestrator) plan(ctx context.Context, description string, logger *zap.Logger) *Plan {
	ctx, span := o.tracer.Start(ctx, "generation.plan")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, o.cfg.Timeout.Initial)
	defer cancel()

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: PlanSystemPrompt},
		{Role: llm.RoleUser, Content: PlanPrompt(description)},
	}
	resp, err := o.capability.Complete(ctx, messages, llm.Options{MaxTokens: o.cfg.PlanMaxTokens, Temperature: o.cfg.Temperature})
	if err != nil {
		span.RecordError(err)
		logger.Warn("planning call failed, continuing without plan", zap.Error(err))
		return nil
	}

	obj, ok := FirstObject(StripFence(resp.Content))
	if !ok {
		logger.Warn("plan response contained no JSON object, continuing without plan")
		return nil
	}
	var plan Plan
	if err := json.Unmarshal([]byte(obj), &plan); err != nil {
		logger.Warn("failed to decode plan, continuing without plan", zap.Error(err))
		return nil
	}
	if plan.Understanding == "" && len(plan.Components) == 0 && len(plan.Features) == 0 {
		return nil
	}
	return &plan
}

// attempt performs one generation call. Streaming capabilities are guarded by
// a stall watchdog; every attempt is bounded by the monitor's deadline.
func (o *Orchestrator) attempt(ctx context.Context, req Request, action Action, plan *Plan, strategy PromptStrategy, retryAttempt int, em *emitter, msgID string, logger *zap.Logger) (*llm.Response, string, error) {
	ctx, span := o.tracer.Start(ctx, "generation.attempt")
	defer span.End()
	span.SetAttributes(
		attribute.Int("attempt.retry", retryAttempt),
		attribute.String("attempt.strategy", string(strategy.Kind)),
		attribute.Int("attempt.max_tokens", strategy.MaxOutputTokens),
	)

	monitor := NewActivityMonitor(o.cfg.Timeout, nil)
	timeout := monitor.TimeoutFor(retryAttempt)

	attemptCtx, cancelDeadline := context.WithTimeoutCause(ctx, timeout, errAttemptDeadline)
	defer cancelDeadline()
	attemptCtx, cancelStall := context.WithCancelCause(attemptCtx)
	defer cancelStall(nil)

	userPrompt := AgentPrompt(action, req.UserMessage, req.CurrentCode, plan, strategy)
	messages := BuildMessages(AgentSystemPrompt, req.ConversationHistory, userPrompt, o.counter, o.cfg.HistoryTokenBudget)
	opts := llm.Options{MaxTokens: strategy.MaxOutputTokens, Temperature: o.cfg.Temperature}

	logger.Info("starting generation attempt",
		zap.Int("attempt", retryAttempt+1),
		zap.String("strategy", string(strategy.Kind)),
		zap.Int("max_tokens", strategy.MaxOutputTokens),
		zap.Int("message_count", len(messages)),
		zap.Duration("timeout", timeout),
	)

	var (
		acc  Accumulator
		resp *llm.Response
		err  error
	)

	if streamer, ok := o.capability.(llm.Streamer); ok {
		stop := o.watchActivity(attemptCtx, monitor, cancelStall)
		lastProgress := time.Now()
		resp, err = streamer.StreamComplete(attemptCtx, messages, opts, func(chunk string) error {
			monitor.RecordActivity()
			acc.Append(chunk)
			if o.cfg.ProgressInterval > 0 && time.Since(lastProgress) >= o.cfg.ProgressInterval {
				em.content(msgID, ".")
				lastProgress = time.Now()
			}
			return nil
		})
		stop()
	} else {
		resp, err = o.capability.Complete(attemptCtx, messages, opts)
	}

	if err != nil {
		err = o.attemptError(ctx, attemptCtx, monitor, timeout, err)
		span.RecordError(err)
		return nil, "", err
	}
	if resp == nil {
		resp = &llm.Response{FinishReason: llm.FinishStop}
	}

	content := resp.Content
	if content == "" {
		content = acc.String()
	}
	span.SetAttributes(
		attribute.Int("attempt.chunks", acc.Chunks()),
		attribute.Int("attempt.content_length", len(content)),
		attribute.String("attempt.finish_reason", resp.FinishReason),
	)
	logger.Info("received model response",
		zap.Int("content_length", len(content)),
		zap.Int("chunks", acc.Chunks()),
		zap.String("finish_reason", resp.FinishReason),
	)
	return resp, content, nil
}

// attemptError turns our own cancellations into retryable timeout errors.
// Cancellation by the caller is passed through untouched.
func (o *Orchestrator) attemptError(parent, attemptCtx context.Context, monitor *ActivityMonitor, timeout time.Duration, err error) error {
	if parent.Err() != nil {
		return fmt.Errorf("generation cancelled: %w", parent.Err())
	}
	switch context.Cause(attemptCtx) {
	case errStalled:
		return llm.NewError(llm.KindTimeout, o.capability.Name(), fmt.Errorf("stream stalled: no data received for %s", monitor.ActivityWindow()))
	case errAttemptDeadline:
		return llm.NewError(llm.KindTimeout, o.capability.Name(), fmt.Errorf("generation timeout after %s", timeout))
	}
	return err
}

// watchActivity cancels ctx with errStalled once the monitor reports a stall.
// The returned stop function blocks until the watchdog goroutine has exited.
func (o *Orchestrator) watchActivity(ctx context.Context, monitor *ActivityMonitor, cancel context.CancelCauseFunc) (stop func()) {
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)

	go func() {
		defer wg.Done()
		interval := monitor.ActivityWindow() / 5
		if interval < 5*time.Millisecond {
			interval = 5 * time.Millisecond
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if monitor.ShouldTimeout() {
					cancel(errStalled)
					return
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			wg.Wait()
		})
	}
}

func (o *Orchestrator) deliver(em *emitter, msgID string, c candidate, attempts int, plan *Plan, warnings []string) *Result {
	payload := ApplyDefaults(c.parsed)
	if c.parsed.IsPartial {
		warnings = append(warnings, "The response was truncated; a partial result was recovered.")
	}

	em.content(msgID, CompletionSummary(&payload))
	em.emit(Event{Type: EventTextMessageEnd, MessageID: msgID})
	em.emit(Event{
		Type: EventCustom,
		Name: CustomCodeGenerated,
		Value: CodeGenerated{
			Payload:       payload,
			IsPartial:     c.parsed.IsPartial,
			MissingFields: c.parsed.MissingFields,
			Warnings:      warnings,
		},
	})

	return &Result{
		Payload:       &payload,
		IsPartial:     c.parsed.IsPartial,
		MissingFields: c.parsed.MissingFields,
		Warnings:      warnings,
		Attempts:      attempts,
		Strategy:      c.strategy,
		FinishReason:  c.finishReason,
		Plan:          plan,
	}
}

func (o *Orchestrator) runChat(ctx context.Context, req Request, em *emitter, logger *zap.Logger) (*Result, error) {
	msgID := uuid.NewString()
	em.emit(Event{Type: EventTextMessageStart, MessageID: msgID, Role: llm.RoleAssistant})

	ctx, cancel := context.WithTimeout(ctx, timeoutFor(o.cfg.Timeout, 0))
	defer cancel()

	messages := BuildMessages(ChatSystemPrompt, req.ConversationHistory, ChatPrompt(req.UserMessage, req.CurrentCode, req.SelectedElement), o.counter, o.cfg.HistoryTokenBudget)
	resp, err := o.capability.Complete(ctx, messages, llm.Options{MaxTokens: o.cfg.ChatMaxTokens, Temperature: o.cfg.Temperature})
	if err != nil {
		cls := Classify(err, 1, 1)
		em.content(msgID, cls.UserMessage)
		em.emit(Event{Type: EventTextMessageEnd, MessageID: msgID})
		return nil, &Failure{Classification: cls, Attempts: 1, Err: err}
	}

	runes := []rune(resp.Content)
	for i := 0; i < len(runes); i += chatChunkSize {
		end := i + chatChunkSize
		if end > len(runes) {
			end = len(runes)
		}
		em.content(msgID, string(runes[i:end]))
	}
	em.emit(Event{Type: EventTextMessageEnd, MessageID: msgID})

	logger.Debug("chat reply sent", zap.Int("length", len(resp.Content)))
	return &Result{Reply: resp.Content, Attempts: 1, FinishReason: resp.FinishReason}, nil
}

// ApplyDefaults fills what the parser left out: empty code fields stay empty,
// suggestions become an empty list, and partial results get an explanation
// that says so.
func ApplyDefaults(result ParseResult) Payload {
	var payload Payload
	if result.Payload != nil {
		payload = *result.Payload
	}
	if payload.Suggestions == nil {
		payload.Suggestions = []string{}
	}

	switch {
	case result.IsPartial && payload.Explanation != "":
		payload.Explanation = PartialNotice + "\n\n" + payload.Explanation
	case result.IsPartial:
		payload.Explanation = PartialNotice
	case payload.Explanation == "":
		payload.Explanation = "Code generated successfully!"
	}
	return payload
}

func outcomeLabel(parsed ParseResult) string {
	if parsed.IsPartial || len(parsed.MissingFields) > 0 {
		return "partial"
	}
	return "complete"
}

// emitter stamps and forwards events. A failing sink is logged and ignored so
// the run still reaches its terminal event for other observers.
type emitter struct {
	sink   EventSink
	logger *zap.Logger
}

func (e *emitter) emit(event Event) {
	if e.sink == nil {
		return
	}
	event.Timestamp = timestamp()
	if err := e.sink.Emit(event); err != nil {
		e.logger.Debug("failed to emit event", zap.String("type", string(event.Type)), zap.Error(err))
	}
}

func (e *emitter) content(msgID, delta string) {
	if strings.TrimSpace(delta) == "" && delta != "." {
		return
	}
	e.emit(Event{Type: EventTextMessageContent, MessageID: msgID, Delta: delta})
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
