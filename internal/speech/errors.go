package speech

import (
	"errors"
	"fmt"
)

type invalidError struct{ msg string }

func (e invalidError) Error() string { return e.msg }

// StatusCode maps bad transcription requests to 400.
func (e invalidError) StatusCode() int { return 400 }

func errInvalid(format string, args ...any) error {
	return invalidError{msg: fmt.Sprintf(format, args...)}
}

// IsInvalid reports whether err rejects the request itself.
func IsInvalid(err error) bool {
	var e invalidError
	return errors.As(err, &e)
}

// ProcessError is a whisper-cli run that exited without usable output.
type ProcessError struct {
	ExitCode int
	Stderr   string
}

func (e *ProcessError) Error() string {
	return fmt.Sprintf("whisper-cli failed with code %d: %s", e.ExitCode, e.Stderr)
}

// IsProcessFailure reports whether err came from a failed whisper-cli run.
func IsProcessFailure(err error) bool {
	var e *ProcessError
	return errors.As(err, &e)
}
