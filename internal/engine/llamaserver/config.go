// Package llamaserver runs models in llama.cpp's llama-server, one
// subprocess per loaded model key, and drives it over its HTTP API.
package llamaserver

import (
	"time"

	"github.com/rs/zerolog"
)

// Defaults applied when Config fields are unset.
const (
	DefaultHost         = "127.0.0.1"
	DefaultReadyTimeout = 30 * time.Second
	DefaultSlots        = 4
	stopGrace           = 2 * time.Second
	stderrTailBytes     = 4096
)

// EventFunc receives process lifecycle events (spawn_start, spawn_ready,
// spawn_exit, spawn_timeout, spawn_stop).
type EventFunc func(name, modelID string, fields map[string]any)

// Config describes how llama-server processes are started.
type Config struct {
	Bin       string
	Host      string
	PortStart int
	PortEnd   int
	CtxSize   int
	NGL       int
	Threads   int
	// Slots is the number of server slots (--parallel). Each prompt cache
	// pins one slot; when all are taken the least recently used is reclaimed.
	Slots        int
	ExtraArgs    []string
	ReadyTimeout time.Duration

	Events EventFunc
	Logger zerolog.Logger
}

func (c Config) withDefaults() Config {
	if c.Bin == "" {
		c.Bin = "llama-server"
	}
	if c.Host == "" {
		c.Host = DefaultHost
	}
	if c.Slots <= 0 {
		c.Slots = DefaultSlots
	}
	if c.ReadyTimeout <= 0 {
		c.ReadyTimeout = DefaultReadyTimeout
	}
	if c.Events == nil {
		c.Events = func(string, string, map[string]any) {}
	}
	return c
}
