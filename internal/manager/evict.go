package manager

// evictUntilFits removes LRU idle instances until requiredMB fits budget +
// margin and one more instance fits under the loaded-models cap. On success
// requiredMB is reserved in usedEstMB. Evicted instances are returned for
// the caller to close outside the lock.
func (m *Manager) evictUntilFits(requiredMB int) ([]*Instance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var evicted []*Instance
	for {
		fitsMem := m.budgetMB <= 0 || m.usedEstMB+requiredMB+m.marginMB <= m.budgetMB
		fitsCount := m.maxLoaded <= 0 || len(m.instances) < m.maxLoaded
		if fitsMem && fitsCount {
			m.usedEstMB += requiredMB
			return evicted, nil
		}
		// Pick LRU idle instance (no in-flight, queued or pending requests)
		var lru *Instance
		for _, inst := range m.instances {
			if inst.State != StateReady || !inst.idle() {
				continue
			}
			if lru == nil || inst.LastUsed.Before(lru.LastUsed) {
				lru = inst
			}
		}
		if lru == nil {
			return evicted, budgetExceededError{
				requiredMB: requiredMB,
				usedMB:     m.usedEstMB,
				budgetMB:   m.budgetMB,
				loaded:     len(m.instances),
				maxLoaded:  m.maxLoaded,
			}
		}
		delete(m.instances, lru.Key)
		m.usedEstMB -= lru.EstMemMB
		lru.State = StateDraining
		evicted = append(evicted, lru)
	}
}

// closeEvicted releases the runtime resources of evicted instances.
func (m *Manager) closeEvicted(evicted []*Instance) {
	for _, inst := range evicted {
		m.evictions.Add(1)
		modelEvictions.Inc()
		m.emit("evict", inst.Key, "est_mb", inst.EstMemMB)
		m.closeInstance(inst)
	}
	if len(evicted) > 0 {
		m.updateLoadedGauge()
	}
}

func (m *Manager) closeInstance(inst *Instance) {
	if inst.caches != nil {
		inst.caches.Close()
	}
	if inst.model != nil {
		if err := inst.model.Close(); err != nil {
			m.emit("close_error", inst.Key, "error", err.Error())
		}
	}
}
