package manager

import (
	"context"
	"time"

	"omnid/internal/engine"
	"omnid/internal/promptcache"
)

// EnsureInstance loads modelID (without adapter) if it is not loaded yet.
// An empty id means the default model; with no default it is a no-op.
func (m *Manager) EnsureInstance(ctx context.Context, modelID string) error {
	if modelID == "" {
		modelID = m.defaultModel
		if modelID == "" {
			return nil
		}
	}
	inst, err := m.ensure(ctx, Key{ModelID: modelID})
	if err != nil {
		return err
	}
	m.mu.Lock()
	inst.pending--
	m.mu.Unlock()
	return nil
}

// ensure returns a ready instance for key with its pending count raised.
// The first caller for a key loads it while holding the key lock; callers
// arriving during the load wait on that lock and then reuse the result.
func (m *Manager) ensure(ctx context.Context, key Key) (*Instance, error) {
	if m.closed.Load() {
		return nil, engine.ErrUnavailable("manager is closed")
	}
	if inst := m.pinReady(key); inst != nil {
		return inst, nil
	}

	m.mu.RLock()
	mdl, ok := m.getModelByID(key.ModelID)
	m.mu.RUnlock()
	if !ok {
		m.emit("ensure_model_not_found", key)
		return nil, ErrModelNotFound(key.ModelID)
	}

	unlock, err := m.lockKey(ctx, key)
	if err != nil {
		return nil, err
	}
	defer unlock()

	// Another caller may have finished loading while we waited.
	if inst := m.pinReady(key); inst != nil {
		return inst, nil
	}
	m.mu.RLock()
	existing, ok := m.instances[key]
	draining := ok && existing.State == StateDraining
	m.mu.RUnlock()
	if draining {
		return nil, tooBusyError{modelID: key.String()}
	}

	startTs := time.Now()
	m.emit("ensure_start", key)
	reqMB := m.estimateMemMB(mdl)
	evicted, err := m.evictUntilFits(reqMB)
	m.closeEvicted(evicted)
	if err != nil {
		m.emit("ensure_budget_fail", key, "error", err.Error())
		return nil, err
	}
	// evictUntilFits reserved reqMB and inserted nothing; the loading
	// instance is visible in status while the runtime loads.
	inst := &Instance{
		Key:      key,
		Family:   mdl.Family,
		State:    StateLoading,
		LastUsed: time.Now(),
		EstMemMB: reqMB,
		genCh:    make(chan struct{}, 1),
		queueCh:  make(chan struct{}, m.maxQueueDepth),
		loaded:   make(chan struct{}),
	}
	defer close(inst.loaded)
	m.mu.Lock()
	m.instances[key] = inst
	m.mu.Unlock()

	model, err := m.loader.Load(ctx, engine.LoadSpec{
		ID:          mdl.ID,
		Path:        mdl.Path,
		AdapterPath: key.AdapterPath,
		Family:      mdl.Family,
	})
	if err != nil {
		m.mu.Lock()
		delete(m.instances, key)
		m.usedEstMB -= reqMB
		m.err = err.Error()
		m.mu.Unlock()
		m.emit("ensure_error", key, "error", err.Error())
		return nil, err
	}

	m.mu.Lock()
	if inst.State == StateDraining {
		// unloaded while loading; unloadKey removes the entry
		m.mu.Unlock()
		if err := model.Close(); err != nil {
			m.emit("close_error", key, "error", err.Error())
		}
		m.emit("ensure_abandoned", key)
		return nil, tooBusyError{modelID: key.String()}
	}
	inst.model = model
	inst.caches = promptcache.NewPool(model, m.cachePoolSize)
	inst.State = StateReady
	inst.LastUsed = time.Now()
	inst.pending++
	m.state = StateReady
	m.err = ""
	m.mu.Unlock()
	m.loads.Add(1)
	modelLoads.WithLabelValues(key.ModelID).Inc()
	loadDuration.Observe(time.Since(startTs).Seconds())
	m.updateLoadedGauge()
	m.emit("ensure_ready", key, "dur_ms", int(time.Since(startTs)/time.Millisecond), "est_mb", reqMB)
	return inst, nil
}

// pinReady returns the ready instance for key with pending raised, or nil.
func (m *Manager) pinReady(key Key) *Instance {
	m.mu.Lock()
	defer m.mu.Unlock()
	inst, ok := m.instances[key]
	if !ok || inst.State != StateReady {
		return nil
	}
	inst.pending++
	inst.LastUsed = time.Now()
	return inst
}

// keyLock is a per-key load lock. refs counts holders and waiters; the
// entry is dropped when it reaches zero so distinct keys do not accumulate.
type keyLock struct {
	ch   chan struct{}
	refs int
}

// lockKey takes the per-key load lock, creating it under the coarse lock.
func (m *Manager) lockKey(ctx context.Context, key Key) (func(), error) {
	m.mu.Lock()
	kl, ok := m.keyLocks[key]
	if !ok {
		kl = &keyLock{ch: make(chan struct{}, 1)}
		m.keyLocks[key] = kl
	}
	kl.refs++
	m.mu.Unlock()
	done := func() {
		m.mu.Lock()
		kl.refs--
		if kl.refs == 0 && m.keyLocks[key] == kl {
			delete(m.keyLocks, key)
		}
		m.mu.Unlock()
	}
	select {
	case kl.ch <- struct{}{}:
		return func() { <-kl.ch; done() }, nil
	case <-ctx.Done():
		done()
		return nil, ctx.Err()
	}
}
