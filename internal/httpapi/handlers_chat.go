package httpapi

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"

	"github.com/rs/zerolog"

	"omnid/pkg/types"
)

// decodeJSON reads a JSON body bounded by maxBodyBytes. It writes the
// error response itself and reports whether decoding succeeded.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if ct := r.Header.Get("Content-Type"); ct != "" {
		if mt, _, err := mime.ParseMediaType(ct); err != nil || mt != "application/json" {
			writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
			return false
		}
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeJSONError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

// chatCompletions godoc
// @Summary      Create a chat completion
// @Description  OpenAI-compatible chat completion. With stream=true the response is a text/event-stream of chat.completion.chunk frames terminated by "data: [DONE]".
// @Tags         chat
// @Accept       json
// @Produce      json
// @Produce      text/event-stream
// @Param        request  body      types.ChatCompletionRequest  true  "Chat request"
// @Success      200      {object}  types.ChatCompletionResponse
// @Failure      400      {object}  types.ErrorResponse
// @Failure      404      {object}  types.ErrorResponse
// @Failure      429      {object}  types.ErrorResponse
// @Failure      503      {object}  types.ErrorResponse
// @Router       /v1/chat/completions [post]
func (s *server) chatCompletions(w http.ResponseWriter, r *http.Request) {
	var req types.ChatCompletionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	log := zerolog.Ctx(r.Context()).With().Str("model", req.Model).Bool("stream", req.Stream).Logger()
	ctx, cancel := workContext(r.Context())
	defer cancel()

	if !req.Stream {
		resp, err := s.Chat.Complete(ctx, req)
		if err != nil {
			if aborted(r.Context()) {
				log.Debug().Err(err).Msg("chat aborted")
				return
			}
			status := writeServiceError(w, err)
			log.Info().Err(err).Int("status", status).Msg("chat failed")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			log.Debug().Err(err).Msg("write response")
		}
		return
	}

	sse := newSSEWriter(w, log)
	err := s.Chat.Stream(ctx, req, func(c types.ChatCompletionChunk) error {
		return sse.event(c)
	})
	if err == nil {
		_ = sse.done()
		return
	}
	if aborted(r.Context()) {
		log.Debug().Err(err).Msg("chat stream aborted")
		return
	}
	if !sse.started {
		status := writeServiceError(w, err)
		log.Info().Err(err).Int("status", status).Msg("chat failed")
		return
	}
	// Headers are gone: report in band, then terminate the stream.
	status, _ := statusFor(err)
	streamErrorsTotal.Inc()
	log.Warn().Err(err).Int("status", status).Msg("chat stream failed")
	_ = sse.event(errorBody(status, err.Error()))
	_ = sse.done()
}
