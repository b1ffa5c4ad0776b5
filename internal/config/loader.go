// Package config loads omnid settings from a file and the environment.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Runtime names accepted in Config.Runtime.
const (
	RuntimeLlamaServer = "llama-server"
	RuntimeLlamaCpp    = "llamacpp"
)

// Config holds runtime parameters for the service.
// Zero values mean "unspecified" and are replaced by Validate.
type Config struct {
	Addr         string `json:"addr" yaml:"addr" toml:"addr"`
	ModelsDir    string `json:"models_dir" yaml:"models_dir" toml:"models_dir"`
	DefaultModel string `json:"default_model" yaml:"default_model" toml:"default_model"`
	Runtime      string `json:"runtime" yaml:"runtime" toml:"runtime"`

	// PreloadDefault starts loading DefaultModel at startup instead of on
	// the first request.
	PreloadDefault bool `json:"preload_default" yaml:"preload_default" toml:"preload_default"`

	LlamaServerBin string   `json:"llama_server_bin" yaml:"llama_server_bin" toml:"llama_server_bin"`
	LlamaHost      string   `json:"llama_host" yaml:"llama_host" toml:"llama_host"`
	LlamaPortStart int      `json:"llama_port_start" yaml:"llama_port_start" toml:"llama_port_start"`
	LlamaPortEnd   int      `json:"llama_port_end" yaml:"llama_port_end" toml:"llama_port_end"`
	LlamaCtx       int      `json:"llama_ctx" yaml:"llama_ctx" toml:"llama_ctx"`
	LlamaThreads   int      `json:"llama_threads" yaml:"llama_threads" toml:"llama_threads"`
	LlamaNGL       int      `json:"llama_ngl" yaml:"llama_ngl" toml:"llama_ngl"`
	LlamaSlots     int      `json:"llama_slots" yaml:"llama_slots" toml:"llama_slots"`
	LlamaExtraArgs []string `json:"llama_extra_args" yaml:"llama_extra_args" toml:"llama_extra_args"`

	MemoryBudgetMB  int `json:"memory_budget_mb" yaml:"memory_budget_mb" toml:"memory_budget_mb"`
	MemoryMarginMB  int `json:"memory_margin_mb" yaml:"memory_margin_mb" toml:"memory_margin_mb"`
	MaxLoadedModels int `json:"max_loaded_models" yaml:"max_loaded_models" toml:"max_loaded_models"`
	MaxQueueDepth   int `json:"max_queue_depth" yaml:"max_queue_depth" toml:"max_queue_depth"`
	PromptCaches    int `json:"prompt_caches" yaml:"prompt_caches" toml:"prompt_caches"`

	MaxWait        Duration `json:"max_wait" yaml:"max_wait" toml:"max_wait"`
	DrainTimeout   Duration `json:"drain_timeout" yaml:"drain_timeout" toml:"drain_timeout"`
	RequestTimeout Duration `json:"request_timeout" yaml:"request_timeout" toml:"request_timeout"`
	MaxBodyBytes   int64    `json:"max_body_bytes" yaml:"max_body_bytes" toml:"max_body_bytes"`

	LogLevel  string `json:"log_level" yaml:"log_level" toml:"log_level"`
	LogFormat string `json:"log_format" yaml:"log_format" toml:"log_format"`

	CORS      CORS      `json:"cors" yaml:"cors" toml:"cors"`
	Whisper   Whisper   `json:"whisper" yaml:"whisper" toml:"whisper"`
	Downloads Downloads `json:"downloads" yaml:"downloads" toml:"downloads"`
}

// CORS configures cross-origin access. Disabled unless Enabled is set.
type CORS struct {
	Enabled bool     `json:"enabled" yaml:"enabled" toml:"enabled"`
	Origins []string `json:"origins" yaml:"origins" toml:"origins"`
	Methods []string `json:"methods" yaml:"methods" toml:"methods"`
	Headers []string `json:"headers" yaml:"headers" toml:"headers"`
}

// Whisper configures the whisper-cli transcription pools.
type Whisper struct {
	CLIPath      string `json:"cli_path" yaml:"cli_path" toml:"cli_path"`
	ModelPath    string `json:"model_path" yaml:"model_path" toml:"model_path"`
	VADModelPath string `json:"vad_model_path" yaml:"vad_model_path" toml:"vad_model_path"`
	Threads      int    `json:"threads" yaml:"threads" toml:"threads"`
	MaxWorkers   int    `json:"max_workers" yaml:"max_workers" toml:"max_workers"`
	FFprobeBin   string `json:"ffprobe_bin" yaml:"ffprobe_bin" toml:"ffprobe_bin"`
}

// Downloads configures background model downloads.
type Downloads struct {
	BaseURL string `json:"base_url" yaml:"base_url" toml:"base_url"`
	// DBPath enables the SQLite task store; empty keeps tasks in memory.
	DBPath string `json:"db_path" yaml:"db_path" toml:"db_path"`
	Token  string `json:"token" yaml:"token" toml:"token"`
}

// Duration is a time.Duration written as a string such as "30s".
type Duration struct{ time.Duration }

func (d Duration) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *Duration) UnmarshalText(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "" {
		d.Duration = 0
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = v
	return nil
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &cfg)
	case ".json":
		err = json.Unmarshal(b, &cfg)
	case ".toml":
		err = toml.Unmarshal(b, &cfg)
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	if err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}
