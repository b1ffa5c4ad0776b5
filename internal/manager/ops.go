package manager

import (
	"context"
	"fmt"
)

// Switch kicks off a background load of modelID and returns an operation
// id. The load uses a detached context so it outlives the caller; Close
// waits for it. Callers can poll Status() to observe state transitions.
func (m *Manager) Switch(_ context.Context, modelID string) (string, error) {
	if m.closed.Load() {
		return "", fmt.Errorf("manager is closed")
	}
	op := m.nextOpID()
	m.ops.Add(1)
	go func() {
		defer m.ops.Done()
		if err := m.EnsureInstance(context.Background(), modelID); err != nil {
			m.mu.Lock()
			m.err = err.Error()
			m.mu.Unlock()
			m.emit("switch_error", Key{ModelID: modelID}, "op", op, "error", err.Error())
			return
		}
		m.emit("switch_done", Key{ModelID: modelID}, "op", op)
	}()
	return op, nil
}

func (m *Manager) nextOpID() string {
	return fmt.Sprintf("op-%d", m.opSeq.Add(1))
}
