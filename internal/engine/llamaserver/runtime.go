package llamaserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/exec"
	"sync"

	"omnid/internal/engine"
)

// Runtime is an engine.Loader that starts a llama-server per load.
type Runtime struct {
	cfg    Config
	client *http.Client

	mu     sync.Mutex
	models map[*Model]struct{}
}

// New returns a runtime starting processes as described by cfg.
func New(cfg Config) *Runtime {
	// Timeout=0: every call carries a context deadline or cancellation.
	return &Runtime{cfg: cfg.withDefaults(), client: &http.Client{Timeout: 0}, models: map[*Model]struct{}{}}
}

// Check reports whether the llama-server binary can be found.
func (r *Runtime) Check() error {
	if _, err := exec.LookPath(r.cfg.Bin); err != nil {
		return engine.ErrUnavailable(fmt.Sprintf("llama-server binary not found: %s", r.cfg.Bin))
	}
	return nil
}

// Load starts a server for spec and returns its model handle.
func (r *Runtime) Load(ctx context.Context, spec engine.LoadSpec) (engine.Model, error) {
	if spec.Path == "" {
		return nil, errors.New("model path is empty")
	}
	proc, err := spawn(ctx, r.cfg, r.client, spec)
	if err != nil {
		return nil, err
	}
	m := newModel(spec.ID, proc.baseURL, r.client, r.cfg.Slots, r.cfg.Logger)
	m.proc = proc
	m.onClose = func() {
		proc.stop()
		r.mu.Lock()
		delete(r.models, m)
		r.mu.Unlock()
		r.cfg.Logger.Info().Str("model", spec.ID).Int("pid", proc.pid).Msg("llama-server stopped")
		r.cfg.Events("spawn_stop", spec.ID, map[string]any{"pid": proc.pid})
	}
	r.mu.Lock()
	r.models[m] = struct{}{}
	r.mu.Unlock()
	return m, nil
}

// StopAll terminates every managed subprocess. Best effort.
func (r *Runtime) StopAll() {
	r.mu.Lock()
	models := make([]*Model, 0, len(r.models))
	for m := range r.models {
		models = append(models, m)
	}
	r.mu.Unlock()
	for _, m := range models {
		_ = m.Close()
	}
}
