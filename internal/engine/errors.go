package engine

import "errors"

// unavailableError signals the runtime itself is missing (binary not found,
// library not compiled in). The HTTP layer maps it to 503.
type unavailableError struct{ msg string }

func (e unavailableError) Error() string { return e.msg }

// ErrUnavailable constructs an unavailable runtime error.
func ErrUnavailable(msg string) error { return unavailableError{msg: msg} }

// IsUnavailable reports whether err indicates a missing runtime.
func IsUnavailable(err error) bool {
	var e unavailableError
	return errors.As(err, &e)
}

// ErrCacheOwner is returned when a cache is used with a model that did not create it.
var ErrCacheOwner = errors.New("cache belongs to a different model")
