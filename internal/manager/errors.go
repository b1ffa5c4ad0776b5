package manager

import (
	"errors"
	"fmt"

	"omnid/internal/engine"
)

// tooBusyError signals queue timeout/overflow for 429 mapping.
type tooBusyError struct{ modelID string }

func (e tooBusyError) Error() string { return "too busy: " + e.modelID }

// IsTooBusy reports whether err indicates backpressure (return 429).
func IsTooBusy(err error) bool {
	var e tooBusyError
	return errors.As(err, &e)
}

type modelNotFoundError struct{ id string }

func (e modelNotFoundError) Error() string { return "model not found: " + e.id }

// ErrModelNotFound returns an error when a requested model id is not present in the registry.
func ErrModelNotFound(id string) error { return modelNotFoundError{id: id} }

// IsModelNotFound reports whether the error indicates a missing model id.
func IsModelNotFound(err error) bool {
	var e modelNotFoundError
	return errors.As(err, &e)
}

// IsDependencyUnavailable reports whether err indicates a missing/failed
// runtime dependency, so the HTTP layer can return 503 instead of 500.
func IsDependencyUnavailable(err error) bool { return engine.IsUnavailable(err) }

// budgetExceededError is returned when a model cannot fit and nothing idle
// is left to evict.
type budgetExceededError struct {
	requiredMB, usedMB, budgetMB, loaded, maxLoaded int
}

func (e budgetExceededError) Error() string {
	if e.maxLoaded > 0 && e.loaded >= e.maxLoaded {
		return fmt.Sprintf("too many loaded models: %d of %d busy", e.loaded, e.maxLoaded)
	}
	return fmt.Sprintf("memory budget exceeded: need %dMB, used %dMB of %dMB", e.requiredMB, e.usedMB, e.budgetMB)
}

// IsBudgetExceeded reports whether err is a capacity failure.
func IsBudgetExceeded(err error) bool {
	var e budgetExceededError
	return errors.As(err, &e)
}
