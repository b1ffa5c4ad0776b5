package manager

import (
	"context"
	"time"
)

// beginGeneration reserves a queue slot and then the single in-flight slot.
// Returns a release func to be deferred.
func (m *Manager) beginGeneration(ctx context.Context, inst *Instance) (func(), error) {
	m.mu.RLock()
	state := inst.State
	m.mu.RUnlock()
	// If draining, reject new work to allow graceful shutdown/unload
	if state != StateReady {
		return func() {}, tooBusyError{modelID: inst.Key.String()}
	}
	if err := ctx.Err(); err != nil {
		return func() {}, err
	}

	timer := time.NewTimer(m.maxWait)
	defer timer.Stop()
	select {
	case inst.queueCh <- struct{}{}:
	case <-ctx.Done():
		return func() {}, ctx.Err()
	case <-timer.C:
		return func() {}, tooBusyError{modelID: inst.Key.String()}
	}

	acquired := false
	defer func() {
		if !acquired {
			<-inst.queueCh
		}
	}()
	queueWait := time.Now()
	timer2 := time.NewTimer(m.maxWait)
	defer timer2.Stop()
	select {
	case inst.genCh <- struct{}{}:
		acquired = true
		m.mu.Lock()
		inst.LastUsed = time.Now()
		m.mu.Unlock()
		admissionWait.Observe(time.Since(queueWait).Seconds())
		return func() {
			m.mu.Lock()
			inst.LastUsed = time.Now()
			m.mu.Unlock()
			<-inst.genCh
			<-inst.queueCh
		}, nil
	case <-ctx.Done():
		return func() {}, ctx.Err()
	case <-timer2.C:
		return func() {}, tooBusyError{modelID: inst.Key.String()}
	}
}
