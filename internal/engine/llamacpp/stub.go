//go:build !llama

package llamacpp

import (
	"context"

	"omnid/internal/engine"
)

// Runtime is the in-process loader. This build has no llama support.
type Runtime struct{ cfg Config }

// New returns a runtime that reports itself unavailable.
func New(cfg Config) *Runtime { return &Runtime{cfg: cfg} }

// Check reports that llama support is not compiled in.
func (r *Runtime) Check() error {
	return engine.ErrUnavailable("built without llama support (rebuild with -tags llama)")
}

func (r *Runtime) Load(context.Context, engine.LoadSpec) (engine.Model, error) {
	return nil, r.Check()
}
