package manager

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"omnid/internal/engine"
	"omnid/internal/promptcache"
	"omnid/pkg/types"
)

// Defaults applied when corresponding ManagerConfig fields are unset.
const (
	defaultMaxQueueDepth = 32
	defaultMaxWait       = 30 * time.Second
	defaultDrainTimeout  = 30 * time.Second
)

// ManagerConfig encapsulates all tunables for Manager construction.
type ManagerConfig struct {
	Registry     []types.Model
	BudgetMB     int
	MarginMB     int
	MaxLoaded    int
	DefaultModel string
	// MaxQueueDepth bounds requests waiting per instance; MaxWait bounds
	// how long each waits for a queue slot and then the generation slot.
	MaxQueueDepth int
	MaxWait       time.Duration
	DrainTimeout  time.Duration
	// CachePoolSize is how many idle prompt caches each instance keeps.
	CachePoolSize int

	// Loader turns a registry entry into a runtime model.
	Loader engine.Loader
	// Scan re-reads the model registry for Rescan.
	Scan func() ([]types.Model, error)

	Publisher EventPublisher
	Logger    zerolog.Logger
}

// NewWithConfig constructs a Manager from ManagerConfig.
func NewWithConfig(cfg ManagerConfig) *Manager {
	m := &Manager{
		state:        StateReady,
		registry:     append([]types.Model(nil), cfg.Registry...),
		budgetMB:     cfg.BudgetMB,
		marginMB:     cfg.MarginMB,
		maxLoaded:    cfg.MaxLoaded,
		defaultModel: cfg.DefaultModel,
		instances:    make(map[Key]*Instance),
		keyLocks:     make(map[Key]*keyLock),
		loader:       cfg.Loader,
		scan:         cfg.Scan,
		log:          cfg.Logger,
		startTime:    time.Now(),
		ops:          &sync.WaitGroup{},
	}
	if cfg.MaxQueueDepth <= 0 {
		m.maxQueueDepth = defaultMaxQueueDepth
	} else {
		m.maxQueueDepth = cfg.MaxQueueDepth
	}
	if cfg.MaxWait <= 0 {
		m.maxWait = defaultMaxWait
	} else {
		m.maxWait = cfg.MaxWait
	}
	if cfg.DrainTimeout <= 0 {
		m.drainTimeout = defaultDrainTimeout
	} else {
		m.drainTimeout = cfg.DrainTimeout
	}
	if cfg.CachePoolSize <= 0 {
		m.cachePoolSize = promptcache.DefaultPoolSize
	} else {
		m.cachePoolSize = cfg.CachePoolSize
	}
	if m.loader == nil {
		m.loader = engine.LoaderFunc(func(_ context.Context, spec engine.LoadSpec) (engine.Model, error) {
			return nil, engine.ErrUnavailable("no inference runtime configured")
		})
	}
	if cfg.Publisher != nil {
		m.publisher = cfg.Publisher
	} else {
		m.publisher = logPublisher{log: m.log}
	}
	return m
}
