package models

import (
	"time"
)

// RunStatus is the terminal state of a generation run
type RunStatus string

const (
	RunStatusCompleted RunStatus = "COMPLETED"
	RunStatusPartial   RunStatus = "PARTIAL"
	RunStatusFailed    RunStatus = "FAILED"
)

// GenerationRun is the audit record of one generation request
type GenerationRun struct {
	ID           string    `json:"id" db:"id"`
	ProjectID    *string   `json:"project_id,omitempty" db:"project_id"`
	ThreadID     string    `json:"thread_id" db:"thread_id"`
	Mode         string    `json:"mode" db:"mode"`
	Prompt       string    `json:"prompt" db:"prompt"`
	Status       RunStatus `json:"status" db:"status"`
	Attempts     int       `json:"attempts" db:"attempts"`
	Strategy     string    `json:"strategy,omitempty" db:"strategy"`
	ErrorKind    *string   `json:"error_kind,omitempty" db:"error_kind"`
	ErrorMessage *string   `json:"error_message,omitempty" db:"error_message"`
	DurationMS   int64     `json:"duration_ms" db:"duration_ms"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}
