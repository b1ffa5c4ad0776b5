package manager

import (
	"os"
	"time"
)

// Unload drains and removes every instance of modelID.
//   - Sets instance state to draining to reject new enqueues.
//   - Waits up to drainTimeout for in-flight and queued requests to finish.
//   - Closes the runtime model and removes the instance entry.
func (m *Manager) Unload(modelID string) error {
	if modelID == "" {
		return ErrModelNotFound("(unspecified)")
	}
	m.mu.RLock()
	var keys []Key
	for k := range m.instances {
		if k.ModelID == modelID {
			keys = append(keys, k)
		}
	}
	m.mu.RUnlock()
	if len(keys) == 0 {
		return ErrModelNotFound(modelID)
	}
	for _, k := range keys {
		if err := m.unloadKey(k); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) unloadKey(key Key) error {
	m.mu.Lock()
	inst := m.instances[key]
	if inst == nil {
		m.mu.Unlock()
		return ErrModelNotFound(key.String())
	}
	inst.State = StateDraining
	m.mu.Unlock()
	m.emit("unload_start", key)
	if inst.loaded != nil {
		<-inst.loaded
	}

	deadline := time.Now().Add(m.drainTimeout)
	for {
		m.mu.RLock()
		qlen := len(inst.queueCh)
		inflight := len(inst.genCh)
		pending := inst.pending
		m.mu.RUnlock()
		if inflight == 0 && qlen == 0 && pending == 0 {
			break
		}
		if time.Now().After(deadline) {
			m.emit("unload_timeout", key, "inflight", inflight, "queue", qlen)
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	m.mu.Lock()
	if m.instances[key] == inst {
		m.usedEstMB -= inst.EstMemMB
		if m.usedEstMB < 0 {
			m.usedEstMB = 0
		}
		delete(m.instances, key)
	}
	m.mu.Unlock()
	m.closeInstance(inst)
	m.updateLoadedGauge()
	m.emit("unload_done", key)
	return nil
}

// Delete unloads modelID if loaded, removes its weights file and drops it
// from the registry.
func (m *Manager) Delete(modelID string) error {
	m.mu.RLock()
	mdl, ok := m.getModelByID(modelID)
	m.mu.RUnlock()
	if !ok {
		return ErrModelNotFound(modelID)
	}
	if err := m.Unload(modelID); err != nil && !IsModelNotFound(err) {
		return err
	}
	if mdl.Path != "" {
		if err := os.Remove(mdl.Path); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	m.mu.Lock()
	out := m.registry[:0:0]
	for _, r := range m.registry {
		if r.ID != modelID {
			out = append(out, r)
		}
	}
	m.registry = out
	m.mu.Unlock()
	m.emit("delete", Key{ModelID: modelID}, "path", mdl.Path)
	return nil
}
