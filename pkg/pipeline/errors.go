package pipeline

import (
	"errors"
	"fmt"
)

// ErrCancelled is returned when the user cancelled the generation mid-run.
var ErrCancelled = errors.New("generation cancelled")

// ValidationError reports an LLM response that did not parse or lacked a required field.
type ValidationError struct {
	Stage string
	Field string
	Raw   string
	Err   error
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: invalid response: missing or empty %q", e.Stage, e.Field)
	}
	return fmt.Sprintf("%s: invalid response: %v", e.Stage, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }
