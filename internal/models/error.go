package models

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error       string            `json:"error"`
	Code        string            `json:"code"`
	Details     map[string]string `json:"details,omitempty"`
	Suggestions []string          `json:"suggestions,omitempty"`
}

// Error codes
const (
	ErrCodeInvalidRequest    = "INVALID_REQUEST"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeValidationFailed  = "VALIDATION_FAILED"
	ErrCodeUnauthorized      = "UNAUTHORIZED"
	ErrCodeInternalError     = "INTERNAL_ERROR"
	ErrCodeGenerationFailed  = "GENERATION_FAILED"
	ErrCodeLLMUnavailable    = "LLM_UNAVAILABLE"
	ErrCodeNothingToUndo     = "NOTHING_TO_UNDO"
	ErrCodeNothingToRedo     = "NOTHING_TO_REDO"
	ErrCodeHistoryIndex      = "HISTORY_INDEX_OUT_OF_RANGE"
	ErrCodeSurgicalEdit      = "SURGICAL_EDIT_FAILED"
	ErrCodeComponentNotFound = "COMPONENT_NOT_FOUND"
)
