package types

// Model represents a discoverable or loadable model file on disk.
type Model struct {
	// Stable identifier for the model.
	// example: qwen3-4b-q4_k_m
	ID string `json:"id" example:"qwen3-4b-q4_k_m"`
	// Human-friendly name.
	// example: Qwen3 4B (Q4_K_M)
	Name string `json:"name" example:"Qwen3 4B (Q4_K_M)"`
	// Absolute path to the model file on disk.
	// example: /home/user/models/qwen3-4b-q4_k_m.gguf
	Path string `json:"path" example:"/home/user/models/qwen3-4b-q4_k_m.gguf"`
	// Quantization level or variant string.
	// example: Q4_K_M
	Quant string `json:"quant" example:"Q4_K_M"`
	// Model family used to pick the prompt template (e.g., qwen, llama, mistral, gemma).
	// example: qwen
	Family string `json:"family,omitempty" example:"qwen"`
	// File size in bytes.
	// example: 2497280000
	SizeBytes int64 `json:"size_bytes,omitempty" example:"2497280000"`
	// Last modification time of the file (unix seconds).
	// example: 1700000000
	ModifiedUnix int64 `json:"modified_unix,omitempty" example:"1700000000"`
}
