package textgen

import (
	"errors"
	"fmt"
)

// validationError rejects a request before any generation starts.
type validationError struct{ msg string }

func (e validationError) Error() string { return e.msg }

// StatusCode maps validation failures to 400.
func (e validationError) StatusCode() int { return 400 }

// ErrValidation constructs a validation error.
func ErrValidation(format string, args ...any) error {
	return validationError{msg: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is a request validation failure.
func IsValidation(err error) bool {
	var e validationError
	return errors.As(err, &e)
}

// GenerationError wraps a runtime failure raised while tokens were being produced.
type GenerationError struct{ Cause error }

func (e *GenerationError) Error() string { return "generation failed: " + e.Cause.Error() }

func (e *GenerationError) Unwrap() error { return e.Cause }

// IsGeneration reports whether err is a runtime failure during generation.
func IsGeneration(err error) bool {
	var e *GenerationError
	return errors.As(err, &e)
}
