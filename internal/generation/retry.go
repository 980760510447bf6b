package generation

import (
	"strings"
	"time"

	"github.com/bizmatters/prototype-builder/orchestrator/internal/llm"
)

// DefaultRetryableSignatures are lowercase substrings of error text that mark
// a failure as worth retrying.
var DefaultRetryableSignatures = []string{
	"timeout",
	"econnreset",
	"rate limit",
	"network",
	"enotfound",
	"etimedout",
	"parse",
	"unterminated",
	"truncated",
	"incomplete",
}

// RetryConfig configures a RetryController
type RetryConfig struct {
	MaxAttempts         int
	BaseDelay           time.Duration
	MaxDelay            time.Duration
	RetryableSignatures []string
}

// DefaultRetryConfig returns 3 attempts with 2s base and 16s maximum backoff
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:         3,
		BaseDelay:           2 * time.Second,
		MaxDelay:            16 * time.Second,
		RetryableSignatures: DefaultRetryableSignatures,
	}
}

// RetryController tracks attempts for one logical request. It is not safe for
// concurrent use; each request owns its own controller.
type RetryController struct {
	cfg     RetryConfig
	attempt int // 0-based index of the current attempt
}

// NewRetryController creates a controller positioned at the first attempt
func NewRetryController(cfg RetryConfig) *RetryController {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.RetryableSignatures == nil {
		cfg.RetryableSignatures = DefaultRetryableSignatures
	}
	return &RetryController{cfg: cfg}
}

// ShouldRetry reports whether another attempt may follow the failure err
func (rc *RetryController) ShouldRetry(err error) bool {
	if err == nil || rc.AttemptNumber() >= rc.cfg.MaxAttempts {
		return false
	}
	return isRetryable(err, rc.cfg.RetryableSignatures)
}

// Delay is min(BaseDelay * 2^attempt, MaxDelay) for the current 0-based attempt
func (rc *RetryController) Delay() time.Duration {
	delay := rc.cfg.BaseDelay
	for i := 0; i < rc.attempt; i++ {
		delay *= 2
		if delay >= rc.cfg.MaxDelay {
			return rc.cfg.MaxDelay
		}
	}
	if delay > rc.cfg.MaxDelay {
		return rc.cfg.MaxDelay
	}
	return delay
}

// IncrementAttempt advances to the next attempt. Call once per retry, after Delay.
func (rc *RetryController) IncrementAttempt() {
	rc.attempt++
}

// AttemptNumber is the 1-based number of the current attempt
func (rc *RetryController) AttemptNumber() int {
	return rc.attempt + 1
}

// RetryAttempt is the 0-based retry count fed to strategy and timeout sizing
func (rc *RetryController) RetryAttempt() int {
	return rc.attempt
}

// TotalAttempts is the configured maximum
func (rc *RetryController) TotalAttempts() int {
	return rc.cfg.MaxAttempts
}

// Reset returns the controller to the first attempt
func (rc *RetryController) Reset() {
	rc.attempt = 0
}

// isRetryable prefers the structured tag and falls back to substring matching
// for errors from opaque sources.
func isRetryable(err error, signatures []string) bool {
	switch llm.KindOf(err) {
	case llm.KindAuth:
		return false
	case llm.KindTimeout, llm.KindRateLimit, llm.KindNetwork, llm.KindParse, llm.KindTokenLimit, llm.KindServiceUnavailable:
		return true
	}
	return matchesAny(strings.ToLower(err.Error()), signatures)
}
