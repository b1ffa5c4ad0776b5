package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "OMNID_"

type envVar struct {
	name string
	set  func(c *Config, v string) error
}

func str(dst func(*Config) *string) func(*Config, string) error {
	return func(c *Config, v string) error { *dst(c) = v; return nil }
}

func integer(dst func(*Config) *int) func(*Config, string) error {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*dst(c) = n
		return nil
	}
}

func duration(dst func(*Config) *Duration) func(*Config, string) error {
	return func(c *Config, v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		dst(c).Duration = d
		return nil
	}
}

func list(dst func(*Config) *[]string) func(*Config, string) error {
	return func(c *Config, v string) error {
		var out []string
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		*dst(c) = out
		return nil
	}
}

var envVars = []envVar{
	{"ADDR", str(func(c *Config) *string { return &c.Addr })},
	{"MODELS_DIR", str(func(c *Config) *string { return &c.ModelsDir })},
	{"DEFAULT_MODEL", str(func(c *Config) *string { return &c.DefaultModel })},
	{"RUNTIME", str(func(c *Config) *string { return &c.Runtime })},
	{"PRELOAD_DEFAULT", func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		c.PreloadDefault = b
		return err
	}},
	{"LLAMA_SERVER_BIN", str(func(c *Config) *string { return &c.LlamaServerBin })},
	{"LLAMA_HOST", str(func(c *Config) *string { return &c.LlamaHost })},
	{"LLAMA_PORT_START", integer(func(c *Config) *int { return &c.LlamaPortStart })},
	{"LLAMA_PORT_END", integer(func(c *Config) *int { return &c.LlamaPortEnd })},
	{"LLAMA_CTX", integer(func(c *Config) *int { return &c.LlamaCtx })},
	{"LLAMA_THREADS", integer(func(c *Config) *int { return &c.LlamaThreads })},
	{"LLAMA_NGL", integer(func(c *Config) *int { return &c.LlamaNGL })},
	{"LLAMA_SLOTS", integer(func(c *Config) *int { return &c.LlamaSlots })},
	{"LLAMA_EXTRA_ARGS", list(func(c *Config) *[]string { return &c.LlamaExtraArgs })},
	{"MEMORY_BUDGET_MB", integer(func(c *Config) *int { return &c.MemoryBudgetMB })},
	{"MEMORY_MARGIN_MB", integer(func(c *Config) *int { return &c.MemoryMarginMB })},
	{"MAX_LOADED_MODELS", integer(func(c *Config) *int { return &c.MaxLoadedModels })},
	{"MAX_QUEUE_DEPTH", integer(func(c *Config) *int { return &c.MaxQueueDepth })},
	{"PROMPT_CACHES", integer(func(c *Config) *int { return &c.PromptCaches })},
	{"MAX_WAIT", duration(func(c *Config) *Duration { return &c.MaxWait })},
	{"DRAIN_TIMEOUT", duration(func(c *Config) *Duration { return &c.DrainTimeout })},
	{"REQUEST_TIMEOUT", duration(func(c *Config) *Duration { return &c.RequestTimeout })},
	{"MAX_BODY_BYTES", func(c *Config, v string) error {
		n, err := strconv.ParseInt(v, 10, 64)
		c.MaxBodyBytes = n
		return err
	}},
	{"LOG_LEVEL", str(func(c *Config) *string { return &c.LogLevel })},
	{"LOG_FORMAT", str(func(c *Config) *string { return &c.LogFormat })},
	{"CORS_ENABLED", func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		c.CORS.Enabled = b
		return err
	}},
	{"CORS_ORIGINS", list(func(c *Config) *[]string { return &c.CORS.Origins })},
	{"WHISPER_FFPROBE_BIN", str(func(c *Config) *string { return &c.Whisper.FFprobeBin })},
	{"DOWNLOADS_BASE_URL", str(func(c *Config) *string { return &c.Downloads.BaseURL })},
	{"DOWNLOADS_DB_PATH", str(func(c *Config) *string { return &c.Downloads.DBPath })},
	{"HF_TOKEN", str(func(c *Config) *string { return &c.Downloads.Token })},
}

// ApplyEnv overrides cfg with OMNID_* variables found by lookup, which is
// typically os.LookupEnv. Empty values are ignored.
func ApplyEnv(cfg Config, lookup func(string) (string, bool)) (Config, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	for _, e := range envVars {
		v, ok := lookup(EnvPrefix + e.name)
		if !ok || strings.TrimSpace(v) == "" {
			continue
		}
		if err := e.set(&cfg, strings.TrimSpace(v)); err != nil {
			return cfg, fmt.Errorf("%s%s: %w", EnvPrefix, e.name, err)
		}
	}
	return cfg, nil
}
