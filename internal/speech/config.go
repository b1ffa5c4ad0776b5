// Package speech transcribes audio with the whisper.cpp command line tool.
// A bounded pool of workers per configuration caps concurrent CLI runs.
package speech

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Defaults for the whisper-cli boundary knobs.
const (
	DefaultCLIPath      = "./whisper.cpp/build/bin/whisper-cli"
	DefaultModelPath    = "./whisper.cpp/models/ggml-large-v3.bin"
	DefaultVADModelPath = "./whisper.cpp/models/ggml-silero-v5.1.2.bin"
	DefaultThreads      = 32
	DefaultMaxWorkers   = 2
	DefaultFFprobe      = "ffprobe"
)

// Environment variables read by ConfigFromEnv.
const (
	EnvCLI        = "WHISPER_CPP_CLI"
	EnvModel      = "WHISPER_CPP_MODEL"
	EnvVADModel   = "WHISPER_CPP_VAD_MODEL"
	EnvThreads    = "WHISPER_CPP_THREADS"
	EnvMaxWorkers = "WHISPER_CPP_MAX_WORKERS"
)

// Config describes one whisper-cli setup.
type Config struct {
	CLIPath      string `json:"cli_path" yaml:"cli_path" toml:"cli_path"`
	ModelPath    string `json:"model_path" yaml:"model_path" toml:"model_path"`
	VADModelPath string `json:"vad_model_path" yaml:"vad_model_path" toml:"vad_model_path"`
	Threads      int    `json:"threads" yaml:"threads" toml:"threads"`
	MaxWorkers   int    `json:"max_workers" yaml:"max_workers" toml:"max_workers"`
	FFprobeBin   string `json:"ffprobe_bin" yaml:"ffprobe_bin" toml:"ffprobe_bin"`
	// TempDir holds uploads and CLI output; empty uses os.TempDir.
	TempDir string `json:"temp_dir" yaml:"temp_dir" toml:"temp_dir"`
}

// Key identifies a worker pool. Requests with equal keys share workers.
type Key struct {
	CLIPath      string
	ModelPath    string
	VADModelPath string
	Threads      int
}

// Key returns the pool key of c.
func (c Config) Key() Key {
	return Key{CLIPath: c.CLIPath, ModelPath: c.ModelPath, VADModelPath: c.VADModelPath, Threads: c.Threads}
}

// WithDefaults fills unset fields.
func (c Config) WithDefaults() Config {
	if c.CLIPath == "" {
		c.CLIPath = DefaultCLIPath
	}
	if c.ModelPath == "" {
		c.ModelPath = DefaultModelPath
	}
	if c.VADModelPath == "" {
		c.VADModelPath = DefaultVADModelPath
	}
	if c.Threads <= 0 {
		c.Threads = DefaultThreads
	}
	if c.MaxWorkers <= 0 {
		c.MaxWorkers = DefaultMaxWorkers
	}
	if c.FFprobeBin == "" {
		c.FFprobeBin = DefaultFFprobe
	}
	return c
}

// ApplyEnv overrides c with the WHISPER_CPP_* variables found by lookup.
// lookup is typically os.LookupEnv.
func (c Config) ApplyEnv(lookup func(string) (string, bool)) (Config, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil || n <= 0 {
			return fmt.Errorf("%s: expected a positive integer, got %q", key, v)
		}
		*dst = n
		return nil
	}
	str(EnvCLI, &c.CLIPath)
	str(EnvModel, &c.ModelPath)
	str(EnvVADModel, &c.VADModelPath)
	if err := num(EnvThreads, &c.Threads); err != nil {
		return c, err
	}
	if err := num(EnvMaxWorkers, &c.MaxWorkers); err != nil {
		return c, err
	}
	return c, nil
}

