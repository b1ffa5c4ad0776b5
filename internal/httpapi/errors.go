package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"omnid/internal/manager"
	"omnid/internal/speech"
	"omnid/pkg/types"
)

// HTTPError allows services to provide an HTTP status code for an error.
type HTTPError interface {
	error
	StatusCode() int
}

// statusFor maps a service error to an HTTP status. reason is set for 429s
// and labels the backpressure metric.
func statusFor(err error) (status int, reason string) {
	var he HTTPError
	switch {
	case manager.IsModelNotFound(err):
		return http.StatusNotFound, ""
	case manager.IsTooBusy(err):
		return http.StatusTooManyRequests, "queue"
	case manager.IsBudgetExceeded(err):
		return http.StatusTooManyRequests, "budget"
	case manager.IsDependencyUnavailable(err):
		return http.StatusServiceUnavailable, ""
	case speech.IsProcessFailure(err):
		return http.StatusInternalServerError, ""
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, ""
	case errors.As(err, &he):
		return he.StatusCode(), ""
	}
	return http.StatusInternalServerError, ""
}

func errorType(status int) string {
	switch {
	case status == http.StatusNotFound:
		return "not_found_error"
	case status == http.StatusTooManyRequests:
		return "rate_limit_error"
	case status >= 500:
		return "server_error"
	default:
		return "invalid_request_error"
	}
}

func errorBody(status int, msg string) types.ErrorResponse {
	return types.ErrorResponse{Error: types.ErrorBody{Message: msg, Type: errorType(status), Code: status}}
}

// writeJSONError writes the OpenAI error envelope.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody(status, msg))
}

// writeServiceError maps err and writes it, counting backpressure.
func writeServiceError(w http.ResponseWriter, err error) int {
	status, reason := statusFor(err)
	if status == http.StatusTooManyRequests {
		IncrementBackpressure(reason)
	}
	writeJSONError(w, status, err.Error())
	return status
}
