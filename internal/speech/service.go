package speech

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"omnid/pkg/types"
)

// Service accepts uploads and dispatches them to the pool matching the
// request's model.
type Service struct {
	reg *Registry
	log zerolog.Logger
}

// NewService returns a service over reg.
func NewService(reg *Registry, log zerolog.Logger) *Service {
	return &Service{reg: reg, log: log}
}

// Status lists the worker pools.
func (s *Service) Status() []types.SpeechPoolStatus { return s.reg.Status() }

// configFor applies request overrides to the base configuration.
func (s *Service) configFor(req Request) Config {
	cfg := s.reg.Base()
	if strings.HasSuffix(req.Model, ".bin") {
		cfg.ModelPath = req.Model
	}
	return cfg
}

// Transcribe stores audio in a temp file named after filename's extension,
// waits for a free worker and runs it. The temp file is removed on every
// path.
func (s *Service) Transcribe(ctx context.Context, audio io.Reader, filename string, req Request) (Result, error) {
	if _, err := NormalizeFormat(req.ResponseFormat); err != nil {
		return Result{}, err
	}
	cfg := s.configFor(req)
	pool, done := s.reg.Checkout(cfg)
	defer done()

	path, err := saveUpload(cfg.TempDir, filename, audio)
	if err != nil {
		return Result{}, err
	}
	defer os.Remove(path)

	w, err := pool.Acquire(ctx)
	if err != nil {
		return Result{}, err
	}
	defer pool.Release(w)
	return w.Transcribe(ctx, path, req)
}

func saveUpload(dir, filename string, r io.Reader) (string, error) {
	f, err := os.CreateTemp(dir, "upload-*"+filepath.Ext(filepath.Base(filename)))
	if err != nil {
		return "", fmt.Errorf("create upload file: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("store upload: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("store upload: %w", err)
	}
	return f.Name(), nil
}
