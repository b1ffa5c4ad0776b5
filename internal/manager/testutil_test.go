package manager

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"omnid/internal/engine"
	"omnid/internal/engine/enginetest"
)

// createModelFile creates a file of approximately sizeMB megabytes and returns its path.
func createModelFile(t *testing.T, dir, name string, sizeMB int) string {
	t.Helper()
	if sizeMB <= 0 {
		sizeMB = 1
	}
	p := filepath.Join(dir, name)
	f, err := os.Create(p)
	if err != nil {
		t.Fatalf("create file: %v", err)
	}
	defer f.Close()
	// write sizeMB megabytes (use 1MiB blocks)
	block := make([]byte, 1024*1024)
	for i := 0; i < sizeMB; i++ {
		if _, err := f.Write(block); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := f.Sync(); err != nil {
		t.Fatalf("sync: %v", err)
	}
	return p
}

// testCtx returns a context with a short timeout, canceled on test cleanup.
func testCtx(t *testing.T) context.Context {
	t.Helper()
	c, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return c
}

// recordingLoader builds enginetest models and remembers them by key.
type recordingLoader struct {
	enginetest.Loader
	mu     sync.Mutex
	models map[string]*enginetest.Model
}

func newRecordingLoader() *recordingLoader {
	l := &recordingLoader{models: map[string]*enginetest.Model{}}
	l.New = func(spec engine.LoadSpec) (engine.Model, error) {
		m := enginetest.Echo(spec.ID, "ok")
		l.mu.Lock()
		l.models[spec.ID+"|"+spec.AdapterPath] = m
		l.mu.Unlock()
		return m, nil
	}
	return l
}

func (l *recordingLoader) model(id, adapter string) *enginetest.Model {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.models[id+"|"+adapter]
}

func mustAcquire(t *testing.T, m *Manager, id, adapter string) *Lease {
	t.Helper()
	l, err := m.Acquire(testCtx(t), id, adapter)
	if err != nil {
		t.Fatalf("Acquire(%s, %q): %v", id, adapter, err)
	}
	return l
}
