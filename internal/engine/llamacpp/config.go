// Package llamacpp runs models in-process through go-llama.cpp. It is only
// functional in binaries built with the llama tag; otherwise Load reports
// the runtime as unavailable.
package llamacpp

import "github.com/rs/zerolog"

// Config holds the settings applied to every loaded model.
type Config struct {
	CtxSize int
	Threads int
	NGL     int
	// CacheDir holds per-cache prompt state files; empty uses os.TempDir.
	CacheDir string
	Logger   zerolog.Logger
}
