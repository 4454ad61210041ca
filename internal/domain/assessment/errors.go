package assessment

import (
	"errors"
	"fmt"
)

// ErrSessionClosed is returned when answers are submitted to a session that
// already completed or failed.
var ErrSessionClosed = errors.New("assessment session is closed")

// ConfigError is a fatal catalog or pathway configuration problem. Sessions
// cannot be created or completed while it persists.
type ConfigError struct {
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("configuration error: %s: %v", e.Reason, e.Err)
	}
	return "configuration error: " + e.Reason
}

func (e *ConfigError) Unwrap() error { return e.Err }

// InputError rejects a submitted answer. The session is left untouched and
// the current question is asked again.
type InputError struct {
	QuestionID string
	Reason     string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("invalid answer for %q: %s", e.QuestionID, e.Reason)
}

func inputErrorf(questionID, format string, args ...any) *InputError {
	return &InputError{QuestionID: questionID, Reason: fmt.Sprintf(format, args...)}
}
