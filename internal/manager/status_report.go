package manager

import (
	"sort"
	"time"

	"omnid/pkg/types"
)

// Snapshot returns a read-only view of the manager state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := Snapshot{State: m.state, LastError: m.err}
	for k, inst := range m.instances {
		if inst.State == StateReady {
			s.Loaded = append(s.Loaded, k)
		}
	}
	sort.Slice(s.Loaded, func(i, j int) bool { return s.Loaded[i].String() < s.Loaded[j].String() })
	return s
}

// Status builds a detailed status response for /status.
func (m *Manager) Status() types.StatusResponse {
	m.mu.RLock()
	defer m.mu.RUnlock()
	now := time.Now()
	resp := types.StatusResponse{
		BudgetMB:       m.budgetMB,
		UsedMB:         m.usedEstMB,
		MarginMB:       m.marginMB,
		MaxLoaded:      m.maxLoaded,
		LastError:      m.err,
		State:          string(m.state),
		UptimeSeconds:  int64(now.Sub(m.startTime) / time.Second),
		ServerTimeUnix: now.Unix(),
		EvictionsTotal: m.evictions.Load(),
		LoadsTotal:     m.loads.Load(),
	}
	resp.Instances = make([]types.InstanceStatus, 0, len(m.instances))
	for _, inst := range m.instances {
		switch inst.State {
		case StateLoading:
			resp.WarmupsInProgress++
		case StateDraining:
			resp.DrainingCount++
		}
		st := types.InstanceStatus{
			ModelID:       inst.Key.ModelID,
			AdapterPath:   inst.Key.AdapterPath,
			State:         string(inst.State),
			LastUsed:      inst.LastUsed.Unix(),
			EstMemMB:      inst.EstMemMB,
			QueueLen:      len(inst.queueCh),
			Inflight:      len(inst.genCh),
			MaxQueueDepth: cap(inst.queueCh),
		}
		if inst.caches != nil {
			st.IdleCaches = inst.caches.Idle()
		}
		resp.Instances = append(resp.Instances, st)
	}
	sort.Slice(resp.Instances, func(i, j int) bool {
		a, b := resp.Instances[i], resp.Instances[j]
		if a.ModelID != b.ModelID {
			return a.ModelID < b.ModelID
		}
		return a.AdapterPath < b.AdapterPath
	})
	return resp
}
