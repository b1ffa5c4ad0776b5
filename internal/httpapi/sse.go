package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog"
)

// sseWriter writes server-sent events. Headers go out with the first
// event, so a failure before any event can still become a JSON error.
type sseWriter struct {
	w       http.ResponseWriter
	out     io.Writer
	rc      *http.ResponseController
	started bool
}

func newSSEWriter(w http.ResponseWriter, log zerolog.Logger) *sseWriter {
	s := &sseWriter{w: w, out: w, rc: http.NewResponseController(w)}
	if log.GetLevel() <= zerolog.DebugLevel {
		s.out = io.MultiWriter(w, &frameLogger{log: log})
	}
	return s
}

func (s *sseWriter) start() {
	if s.started {
		return
	}
	s.started = true
	h := s.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	s.w.WriteHeader(http.StatusOK)
}

// event writes one "data:" frame holding v as JSON and flushes it.
func (s *sseWriter) event(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.raw(b)
}

func (s *sseWriter) raw(payload []byte) error {
	s.start()
	buf := make([]byte, 0, len(payload)+8)
	buf = append(buf, "data: "...)
	buf = append(buf, payload...)
	buf = append(buf, '\n', '\n')
	if _, err := s.out.Write(buf); err != nil {
		return err
	}
	if err := s.rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return err
	}
	return nil
}

// done writes the terminating [DONE] frame.
func (s *sseWriter) done() error { return s.raw([]byte("[DONE]")) }
