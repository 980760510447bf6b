package generation

import (
	"sync"
	"time"
)

// EventType identifies a lifecycle notification sent to the caller
type EventType string

const (
	EventRunStarted         EventType = "RunStarted"
	EventTextMessageStart   EventType = "TextMessageStart"
	EventTextMessageContent EventType = "TextMessageContent"
	EventTextMessageEnd     EventType = "TextMessageEnd"
	EventCustom             EventType = "Custom"
	EventRunFinished        EventType = "RunFinished"
	EventRunError           EventType = "RunError"
)

// CustomCodeGenerated is the name of the custom event carrying the final payload
const CustomCodeGenerated = "code_generated"

// Event is one lifecycle notification. Only the fields relevant to Type are set.
type Event struct {
	Type        EventType `json:"type"`
	ThreadID    string    `json:"threadId,omitempty"`
	RunID       string    `json:"runId,omitempty"`
	MessageID   string    `json:"messageId,omitempty"`
	Role        string    `json:"role,omitempty"`
	Delta       string    `json:"delta,omitempty"`
	Name        string    `json:"name,omitempty"`
	Value       any       `json:"value,omitempty"`
	Message     string    `json:"message,omitempty"`
	Suggestions []string  `json:"suggestions,omitempty"`
	Timestamp   string    `json:"timestamp"`
}

// CodeGenerated is the value of the code_generated custom event
type CodeGenerated struct {
	Payload
	IsPartial     bool     `json:"isPartial"`
	MissingFields []string `json:"missingFields,omitempty"`
	Warnings      []string `json:"warnings,omitempty"`
}

// EventSink receives lifecycle events in order. Emit is called from the
// goroutine running the orchestrator.
type EventSink interface {
	Emit(event Event) error
}

// SinkFunc adapts a function to EventSink
type SinkFunc func(event Event) error

// Emit calls f
func (f SinkFunc) Emit(event Event) error {
	return f(event)
}

// Recorder is an EventSink that keeps every event in memory
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Emit appends event
func (r *Recorder) Emit(event Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

// Events returns a copy of the recorded events
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Types returns the recorded event types in order
func (r *Recorder) Types() []EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	types := make([]EventType, len(r.events))
	for i, e := range r.events {
		types[i] = e.Type
	}
	return types
}

// timestamp is RFC 3339 with milliseconds in UTC
func timestamp() string {
	return time.Now().UTC().Format("2006-01-02T15:04:05.000Z07:00")
}
