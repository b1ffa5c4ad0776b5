package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"omnid/internal/speech"
)

// multipartMemory is how much of an upload is buffered in memory before
// spilling to a temp file.
const multipartMemory = 8 << 20

// transcribe godoc
// @Summary      Transcribe audio
// @Description  OpenAI-compatible transcription backed by whisper.cpp. response_format selects json, text, srt, vtt or verbose_json.
// @Tags         audio
// @Accept       mpfd
// @Produce      json
// @Produce      plain
// @Param        file                       formData  file    true   "Audio file"
// @Param        model                      formData  string  false  "Model name; a path ending in .bin selects that whisper model"
// @Param        language                   formData  string  false  "Spoken language (ISO-639-1)"
// @Param        prompt                     formData  string  false  "Initial prompt"
// @Param        response_format            formData  string  false  "json, text, srt, vtt or verbose_json"
// @Param        temperature                formData  number  false  "Sampling temperature"
// @Param        timestamp_granularities[]  formData  []string  false  "segment and/or word"
// @Success      200  {object}  types.TranscriptionResponse
// @Failure      400  {object}  types.ErrorResponse
// @Failure      503  {object}  types.ErrorResponse
// @Router       /v1/audio/transcriptions [post]
func (s *server) transcribe(w http.ResponseWriter, r *http.Request) {
	if s.Speech == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "speech recognition is disabled")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeJSONError(w, http.StatusRequestEntityTooLarge, "upload too large")
			return
		}
		writeJSONError(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, hdr, err := r.FormFile("file")
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	req := speech.Request{
		Model:          r.FormValue("model"),
		Language:       r.FormValue("language"),
		Prompt:         r.FormValue("prompt"),
		ResponseFormat: r.FormValue("response_format"),
	}
	if v := strings.TrimSpace(r.FormValue("temperature")); v != "" {
		t, err := strconv.ParseFloat(v, 64)
		if err != nil || t < 0 || t > 1 {
			writeJSONError(w, http.StatusBadRequest, "temperature must be a number between 0 and 1")
			return
		}
		req.Temperature = &t
	}
	for _, key := range []string{"timestamp_granularities[]", "timestamp_granularities"} {
		for _, g := range r.MultipartForm.Value[key] {
			switch g {
			case "word", "segment":
				req.TimestampGranularities = append(req.TimestampGranularities, g)
			default:
				writeJSONError(w, http.StatusBadRequest, "timestamp_granularities: unsupported value "+strconv.Quote(g))
				return
			}
		}
	}

	log := zerolog.Ctx(r.Context()).With().Str("file", hdr.Filename).Int64("size", hdr.Size).Str("format", req.ResponseFormat).Logger()
	ctx, cancel := workContext(r.Context())
	defer cancel()
	res, err := s.Speech.Transcribe(ctx, file, hdr.Filename, req)
	if err != nil {
		if aborted(r.Context()) {
			log.Debug().Err(err).Msg("transcription aborted")
			return
		}
		status := writeServiceError(w, err)
		log.Info().Err(err).Int("status", status).Msg("transcription failed")
		return
	}
	ct, body, err := speech.Render(res, req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", ct)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
