package manager

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"omnid/internal/engine"
	"omnid/pkg/types"
)

// Manager owns every loaded model instance. It is an explicit object with a
// lifecycle: construct with NewWithConfig, tear down with Close.
type Manager struct {
	// mu guards the registry, the instance map and the key lock table. It
	// is never held across a model load or a generation.
	mu           sync.RWMutex
	state        State
	err          string
	registry     []types.Model
	budgetMB     int
	marginMB     int
	maxLoaded    int
	defaultModel string
	instances    map[Key]*Instance
	// keyLocks serialize the load-or-reuse decision per key. A channel of
	// size one lets waiters give up when their context ends.
	keyLocks  map[Key]*keyLock
	usedEstMB int

	maxQueueDepth int
	maxWait       time.Duration
	drainTimeout  time.Duration
	cachePoolSize int

	loader    engine.Loader
	scan      func() ([]types.Model, error)
	publisher EventPublisher
	log       zerolog.Logger
	startTime time.Time

	loads     atomic.Uint64
	evictions atomic.Uint64
	opSeq     atomic.Uint64
	ops       *sync.WaitGroup
	closed    atomic.Bool
}

// Ready reports whether the manager can serve: not failed, and either a
// model is loaded or loading is deferred to the first request.
func (m *Manager) Ready() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state == StateError || m.closed.Load() {
		return false
	}
	for _, inst := range m.instances {
		if inst.State == StateReady {
			return true
		}
	}
	return m.defaultModel == ""
}

// ListModels returns a copy of the registry.
func (m *Manager) ListModels() []types.Model {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]types.Model, len(m.registry))
	copy(out, m.registry)
	return out
}

// GetModel returns the registry entry for id.
func (m *Manager) GetModel(id string) (types.Model, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getModelByID(id)
}

// Loaded reports whether any instance of id is loaded.
func (m *Manager) Loaded(id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for k, inst := range m.instances {
		if k.ModelID == id && inst.State == StateReady {
			return true
		}
	}
	return false
}

// SetRegistry replaces the registry. Loaded instances are unaffected.
func (m *Manager) SetRegistry(reg []types.Model) {
	m.mu.Lock()
	m.registry = append([]types.Model(nil), reg...)
	m.mu.Unlock()
}

// Rescan re-reads the registry with the configured scanner.
func (m *Manager) Rescan() ([]types.Model, error) {
	if m.scan == nil {
		return m.ListModels(), nil
	}
	reg, err := m.scan()
	if err != nil {
		return nil, err
	}
	m.SetRegistry(reg)
	m.emit("rescan", Key{}, "models", len(reg))
	return m.ListModels(), nil
}

// Acquire returns exclusive use of the model for (modelID, adapterPath),
// loading it on first use. The caller must call Lease.Release. Requests for
// one key are admitted one at a time in arrival order; requests for
// different keys never wait on each other.
func (m *Manager) Acquire(ctx context.Context, modelID, adapterPath string) (*Lease, error) {
	if modelID == "" {
		modelID = m.defaultModel
	}
	key := Key{ModelID: modelID, AdapterPath: adapterPath}
	inst, err := m.ensure(ctx, key)
	if err != nil {
		return nil, err
	}
	release, err := m.beginGeneration(ctx, inst)
	m.mu.Lock()
	inst.pending--
	m.mu.Unlock()
	if err != nil {
		if IsTooBusy(err) {
			m.emit("backpressure", key, "queue", len(inst.queueCh))
		}
		return nil, err
	}
	return &Lease{Model: inst.model, Caches: inst.caches, Family: inst.Family, Key: key, release: release}, nil
}

// Close unloads every instance and waits for background operations.
func (m *Manager) Close() error {
	if !m.closed.CompareAndSwap(false, true) {
		return nil
	}
	m.ops.Wait()
	m.mu.RLock()
	keys := make([]Key, 0, len(m.instances))
	for k := range m.instances {
		keys = append(keys, k)
	}
	m.mu.RUnlock()
	for _, k := range keys {
		_ = m.unloadKey(k)
	}
	return nil
}
