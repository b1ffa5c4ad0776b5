package speech

import (
	"context"
	"sort"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"omnid/pkg/types"
)

// Pool is a bounded set of workers sharing one configuration. At most
// cfg.MaxWorkers transcriptions run at once; the rest wait in Acquire.
type Pool struct {
	cfg Config
	sem *semaphore.Weighted
	log zerolog.Logger

	mu   sync.Mutex
	idle []*Worker
	busy int

	// users counts registry checkouts; guarded by Registry.mu.
	users int
}

// NewPool builds a pool with cfg.MaxWorkers workers.
func NewPool(cfg Config, log zerolog.Logger) *Pool {
	cfg = cfg.WithDefaults()
	p := &Pool{
		cfg: cfg,
		sem: semaphore.NewWeighted(int64(cfg.MaxWorkers)),
		log: log,
	}
	for i := 0; i < cfg.MaxWorkers; i++ {
		p.idle = append(p.idle, newWorker(i, cfg, log))
	}
	return p
}

// Config returns the pool configuration.
func (p *Pool) Config() Config { return p.cfg }

// Acquire blocks until a worker is free or ctx is done.
func (p *Pool) Acquire(ctx context.Context) (*Worker, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	p.mu.Lock()
	w := p.idle[len(p.idle)-1]
	p.idle = p.idle[:len(p.idle)-1]
	p.busy++
	n := p.busy
	p.mu.Unlock()
	workersBusy.WithLabelValues(p.cfg.ModelPath).Set(float64(n))
	return w, nil
}

// Release returns w to the pool. It must be called exactly once per Acquire.
func (p *Pool) Release(w *Worker) {
	p.mu.Lock()
	p.idle = append(p.idle, w)
	p.busy--
	n := p.busy
	p.mu.Unlock()
	workersBusy.WithLabelValues(p.cfg.ModelPath).Set(float64(n))
	p.sem.Release(1)
}

// Status reports pool occupancy.
func (p *Pool) Status() types.SpeechPoolStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return types.SpeechPoolStatus{
		CLIPath:   p.cfg.CLIPath,
		ModelPath: p.cfg.ModelPath,
		Threads:   p.cfg.Threads,
		Workers:   p.cfg.MaxWorkers,
		Busy:      p.busy,
	}
}

// MaxIdleOverridePools bounds how many unused pools for per-request model
// overrides a Registry keeps around.
const MaxIdleOverridePools = 4

// Registry hands out one pool per Key, created on first use. The pool for
// the base configuration lives as long as the registry; override pools are
// dropped once unused while more than MaxIdleOverridePools of them exist.
type Registry struct {
	base    Config
	baseKey Key
	log     zerolog.Logger

	mu    sync.Mutex
	pools map[Key]*Pool
}

// NewRegistry returns a registry whose pools inherit base for anything a
// request does not override.
func NewRegistry(base Config, log zerolog.Logger) *Registry {
	base = base.WithDefaults()
	return &Registry{base: base, baseKey: base.Key(), log: log, pools: make(map[Key]*Pool)}
}

// Base returns the default configuration.
func (r *Registry) Base() Config { return r.base }

// Pool returns the pool for cfg, creating it if needed. Pools with the
// same key share workers even if MaxWorkers differs; the first one wins.
func (r *Registry) Pool(cfg Config) *Pool {
	cfg = cfg.WithDefaults()
	key := cfg.Key()
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.poolLocked(cfg, key)
}

// Checkout returns the pool for cfg and a func that must be called when the
// caller is done with it. A pool is never dropped while checked out, so
// callers with the same key always share one concurrency bound.
func (r *Registry) Checkout(cfg Config) (*Pool, func()) {
	cfg = cfg.WithDefaults()
	key := cfg.Key()
	r.mu.Lock()
	p := r.poolLocked(cfg, key)
	p.users++
	r.mu.Unlock()
	return p, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		p.users--
		r.pruneLocked()
	}
}

// pruneLocked drops unused override pools beyond MaxIdleOverridePools.
func (r *Registry) pruneLocked() {
	var idle []Key
	for k, p := range r.pools {
		if k != r.baseKey && p.users == 0 {
			idle = append(idle, k)
		}
	}
	for _, k := range idle[:max(0, len(idle)-MaxIdleOverridePools)] {
		delete(r.pools, k)
		r.log.Debug().Str("model", k.ModelPath).Msg("speech pool dropped")
	}
}

func (r *Registry) poolLocked(cfg Config, key Key) *Pool {
	if p, ok := r.pools[key]; ok {
		return p
	}
	p := NewPool(cfg, r.log)
	r.pools[key] = p
	r.log.Info().
		Str("cli", cfg.CLIPath).
		Str("model", cfg.ModelPath).
		Int("threads", cfg.Threads).
		Int("workers", cfg.MaxWorkers).
		Msg("speech pool created")
	return p
}

// Status lists every pool, ordered by model then CLI path.
func (r *Registry) Status() []types.SpeechPoolStatus {
	r.mu.Lock()
	pools := make([]*Pool, 0, len(r.pools))
	for _, p := range r.pools {
		pools = append(pools, p)
	}
	r.mu.Unlock()
	out := make([]types.SpeechPoolStatus, 0, len(pools))
	for _, p := range pools {
		out = append(out, p.Status())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ModelPath != out[j].ModelPath {
			return out[i].ModelPath < out[j].ModelPath
		}
		return out[i].CLIPath < out[j].CLIPath
	})
	return out
}
