package manager

import (
	"sync"

	"omnid/internal/engine"
	"omnid/internal/promptcache"
)

// Lease is one admitted request's hold on a model instance. The model and
// its cache pool may only be used until Release.
type Lease struct {
	Key    Key
	Model  engine.Model
	Caches *promptcache.Pool
	Family string

	release func()
	once    sync.Once
}

// Release returns the generation slot. It is safe to call more than once.
func (l *Lease) Release() {
	l.once.Do(l.release)
}
