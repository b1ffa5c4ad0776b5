package types

// ModelObject is the OpenAI model listing entry.
type ModelObject struct {
	// example: qwen3-4b-q4_k_m
	ID      string `json:"id" example:"qwen3-4b-q4_k_m"`
	Object  string `json:"object" example:"model"`
	Created int64  `json:"created" example:"1700000000"`
	OwnedBy string `json:"owned_by" example:"omnid"`
	// Whether an instance of the model is currently loaded.
	Loaded    bool   `json:"loaded"`
	Family    string `json:"family,omitempty"`
	Quant     string `json:"quant,omitempty"`
	SizeBytes int64  `json:"size_bytes,omitempty"`
}

// ModelList is returned by GET /v1/models.
type ModelList struct {
	Object string        `json:"object" example:"list"`
	Data   []ModelObject `json:"data"`
}

// ModelDeletion is returned by DELETE /v1/models/{id}.
type ModelDeletion struct {
	ID      string `json:"id"`
	Object  string `json:"object" example:"model"`
	Deleted bool   `json:"deleted"`
}

// ModelDownloadRequest starts a background download.
type ModelDownloadRequest struct {
	// Repository id, optionally with a file: owner/repo or owner/repo/file.gguf.
	// example: Qwen/Qwen3-4B-GGUF
	Model string `json:"model" example:"Qwen/Qwen3-4B-GGUF"`
}

// ModelDownloadResponse acknowledges a download task.
type ModelDownloadResponse struct {
	// example: 4b7c0c2f9e7d4a7c9d1b2e3f4a5b6c7d
	ID     string `json:"id" example:"4b7c0c2f9e7d4a7c9d1b2e3f4a5b6c7d"`
	Status string `json:"status" example:"in_progress"`
}

// ModelDownloadStatus reports a download task.
type ModelDownloadStatus struct {
	ID     string `json:"id"`
	// in_progress, completed, failed or not_found.
	Status string   `json:"status" example:"completed"`
	Model  string   `json:"model,omitempty"`
	Error  string   `json:"error,omitempty"`
	Files  []string `json:"files,omitempty"`
}
