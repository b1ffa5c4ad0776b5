// Package downloads runs background model downloads and tracks them as
// tasks that clients poll by id.
package downloads

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Task states.
const (
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusNotFound   = "not_found"
)

// ErrTaskNotFound is returned by Store.Get for unknown ids.
var ErrTaskNotFound = errors.New("download task not found")

// Task is one download request and its outcome.
type Task struct {
	ID      string
	Model   string
	Status  string
	Error   string
	Files   []string
	Created time.Time
	Updated time.Time
}

// Store persists tasks. Implementations are safe for concurrent use.
type Store interface {
	Put(ctx context.Context, t Task) error
	Get(ctx context.Context, id string) (Task, error)
	Close() error
}

// MemoryStore keeps tasks in a map; they are lost on restart.
type MemoryStore struct {
	mu    sync.RWMutex
	tasks map[string]Task
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tasks: make(map[string]Task)}
}

func (s *MemoryStore) Put(_ context.Context, t Task) error {
	t.Files = append([]string(nil), t.Files...)
	s.mu.Lock()
	s.tasks[t.ID] = t
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (Task, error) {
	s.mu.RLock()
	t, ok := s.tasks[id]
	s.mu.RUnlock()
	if !ok {
		return Task{}, ErrTaskNotFound
	}
	t.Files = append([]string(nil), t.Files...)
	return t, nil
}

func (s *MemoryStore) Close() error { return nil }
