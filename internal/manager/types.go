package manager

import (
	"fmt"
	"time"

	"omnid/internal/engine"
	"omnid/internal/promptcache"
)

// State represents lifecycle state of the manager/instances.
type State string

const (
	StateReady    State = "ready"
	StateLoading  State = "loading"
	StateError    State = "error"
	StateDraining State = "draining"
)

// Key identifies one loaded model: the same weights with a different
// adapter are a different instance.
type Key struct {
	ModelID     string
	AdapterPath string
}

func (k Key) String() string {
	if k.AdapterPath == "" {
		return k.ModelID
	}
	return fmt.Sprintf("%s+%s", k.ModelID, k.AdapterPath)
}

// Snapshot is a read-only projection of the manager state.
type Snapshot struct {
	State     State
	Loaded    []Key
	LastError string
}

// Instance is one loaded model and its admission primitives.
type Instance struct {
	Key      Key
	Family   string
	State    State
	LastUsed time.Time
	EstMemMB int

	model  engine.Model
	caches *promptcache.Pool
	// pending counts callers between ensure and admission; they pin the
	// instance against eviction.
	pending int
	genCh   chan struct{} // size 1: single in-flight generation
	queueCh chan struct{} // buffered: queue slots
	// loaded is closed once the runtime load returns.
	loaded chan struct{}
}

func (inst *Instance) idle() bool {
	return inst.pending == 0 && len(inst.genCh) == 0 && len(inst.queueCh) == 0
}
