package types

// InstanceStatus summarizes a loaded model instance for /status.
type InstanceStatus struct {
	// ID of the model this instance serves.
	// example: qwen3-4b-q4_k_m
	ModelID string `json:"model_id" example:"qwen3-4b-q4_k_m"`
	// LoRA adapter applied on top of the model, if any.
	AdapterPath string `json:"adapter_path,omitempty"`
	// Current lifecycle state of the instance (loading, ready, draining).
	// example: ready
	State string `json:"state" example:"ready"`
	// Last time this instance served a request (unix seconds).
	// example: 1700000000
	LastUsed int64 `json:"last_used_unix" example:"1700000000"`
	// Estimated memory usage in MB.
	// example: 1200
	EstMemMB int `json:"est_mem_mb" example:"1200"`
	// Requests waiting for the generation slot.
	// example: 0
	QueueLen int `json:"queue_len" example:"0"`
	// Generations currently running (0 or 1).
	// example: 1
	Inflight int `json:"inflight" example:"1"`
	// Maximum queued requests allowed before backpressure triggers.
	// example: 32
	MaxQueueDepth int `json:"max_queue_depth" example:"32"`
	// Idle prompt caches kept for reuse.
	// example: 2
	IdleCaches int `json:"idle_caches" example:"2"`
}

// SpeechPoolStatus summarizes one transcription worker pool.
type SpeechPoolStatus struct {
	// example: /opt/whisper.cpp/build/bin/whisper-cli
	CLIPath   string `json:"cli_path"`
	ModelPath string `json:"model_path"`
	Threads   int    `json:"threads"`
	// example: 2
	Workers int `json:"workers" example:"2"`
	// example: 1
	Busy int `json:"busy" example:"1"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	// Loaded/managed instances.
	Instances []InstanceStatus `json:"instances"`
	// Transcription worker pools.
	SpeechPools []SpeechPoolStatus `json:"speech_pools,omitempty"`
	// Memory budget in MB across all instances (0 = unlimited).
	// example: 8192
	BudgetMB int `json:"budget_mb" example:"8192"`
	// Estimated used memory in MB.
	// example: 2048
	UsedMB int `json:"used_est_mb" example:"2048"`
	// Reserved memory margin in MB.
	// example: 512
	MarginMB int `json:"margin_mb" example:"512"`
	// Maximum number of loaded instances (0 = unlimited).
	// example: 2
	MaxLoaded int `json:"max_loaded" example:"2"`
	// Last error observed by the manager (if any).
	LastError string `json:"last_error,omitempty"`
	// Uptime of the server in seconds.
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
	// Server time in unix seconds.
	// example: 1700000000
	ServerTimeUnix int64 `json:"server_time_unix" example:"1700000000"`
	// Total number of evictions performed to free memory.
	// example: 5
	EvictionsTotal uint64 `json:"evictions_total" example:"5"`
	// Total number of model loads.
	// example: 12
	LoadsTotal uint64 `json:"loads_total" example:"12"`
	// Overall manager state (loading, ready, error).
	// example: ready
	State string `json:"state" example:"ready"`
	// Number of instances currently loading.
	// example: 1
	WarmupsInProgress int `json:"warmups_in_progress" example:"1"`
	// Number of instances currently draining (unload in progress).
	// example: 0
	DrainingCount int `json:"draining_count" example:"0"`
}
