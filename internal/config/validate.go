package config

import (
	"fmt"
	"strings"
	"time"
)

// Defaults applied by Validate.
const (
	DefaultAddr          = ":8080"
	DefaultModelsDir     = "~/models"
	DefaultMaxQueueDepth = 32
	DefaultMaxWait       = 30 * time.Second
	DefaultDrainTimeout  = 30 * time.Second
	DefaultMaxBodyBytes  = 64 << 20
	DefaultLogLevel      = "info"
	DefaultLogFormat     = "json"
)

// Validate fills defaults in place and rejects inconsistent settings.
func (c *Config) Validate() error {
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if c.ModelsDir == "" {
		c.ModelsDir = DefaultModelsDir
	}
	if c.Runtime == "" {
		c.Runtime = RuntimeLlamaServer
	}
	switch c.Runtime {
	case RuntimeLlamaServer, RuntimeLlamaCpp:
	default:
		return fmt.Errorf("runtime: unknown value %q (want %s or %s)", c.Runtime, RuntimeLlamaServer, RuntimeLlamaCpp)
	}
	if c.MaxQueueDepth == 0 {
		c.MaxQueueDepth = DefaultMaxQueueDepth
	}
	if c.MaxWait.Duration == 0 {
		c.MaxWait.Duration = DefaultMaxWait
	}
	if c.DrainTimeout.Duration == 0 {
		c.DrainTimeout.Duration = DefaultDrainTimeout
	}
	if c.MaxBodyBytes == 0 {
		c.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.LogFormat == "" {
		c.LogFormat = DefaultLogFormat
	}
	c.LogFormat = strings.ToLower(c.LogFormat)
	if c.LogFormat != "json" && c.LogFormat != "console" {
		return fmt.Errorf("log_format: unknown value %q (want json or console)", c.LogFormat)
	}

	for name, v := range map[string]int{
		"memory_budget_mb":    c.MemoryBudgetMB,
		"memory_margin_mb":    c.MemoryMarginMB,
		"max_loaded_models":   c.MaxLoadedModels,
		"max_queue_depth":     c.MaxQueueDepth,
		"prompt_caches":       c.PromptCaches,
		"llama_ctx":           c.LlamaCtx,
		"llama_threads":       c.LlamaThreads,
		"llama_slots":         c.LlamaSlots,
		"whisper.threads":     c.Whisper.Threads,
		"whisper.max_workers": c.Whisper.MaxWorkers,
	} {
		if v < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}
	if c.MaxWait.Duration < 0 || c.DrainTimeout.Duration < 0 || c.RequestTimeout.Duration < 0 {
		return fmt.Errorf("durations must not be negative")
	}
	if c.MaxBodyBytes < 0 {
		return fmt.Errorf("max_body_bytes must not be negative")
	}
	if c.MemoryBudgetMB > 0 && c.MemoryMarginMB >= c.MemoryBudgetMB {
		return fmt.Errorf("memory_margin_mb (%d) must be below memory_budget_mb (%d)", c.MemoryMarginMB, c.MemoryBudgetMB)
	}
	if (c.LlamaPortStart == 0) != (c.LlamaPortEnd == 0) {
		return fmt.Errorf("llama_port_start and llama_port_end must be set together")
	}
	if c.LlamaPortStart != 0 && (c.LlamaPortStart < 1 || c.LlamaPortEnd > 65535 || c.LlamaPortStart > c.LlamaPortEnd) {
		return fmt.Errorf("invalid llama port range %d-%d", c.LlamaPortStart, c.LlamaPortEnd)
	}
	return nil
}
