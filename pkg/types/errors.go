package types

// ErrorResponse is the OpenAI-style error envelope used by every endpoint,
// including in-band errors on event streams.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// ErrorBody describes a failed request.
type ErrorBody struct {
	// Error message.
	// example: model not found: qwen3
	Message string `json:"message" example:"model not found: qwen3"`
	// Error class (invalid_request_error, not_found_error, rate_limit_error, server_error).
	// example: invalid_request_error
	Type string `json:"type" example:"invalid_request_error"`
	// HTTP status code.
	// example: 400
	Code int `json:"code" example:"400"`
}
