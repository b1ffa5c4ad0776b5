package httpapi

import (
	"bytes"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// zlog is the base logger of the HTTP layer.
var zlog = zerolog.Nop()

// SetLogger installs a structured logger used by the HTTP layer.
func SetLogger(l zerolog.Logger) { zlog = l }

// parseLevel maps a per-request override to a zerolog level. "1" is a
// shorthand for debug.
func parseLevel(s string) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return zerolog.NoLevel, false
	case "1":
		return zerolog.DebugLevel, true
	case "off":
		return zerolog.Disabled, true
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil {
		return zerolog.NoLevel, false
	}
	return lvl, true
}

// requestLogger returns the logger for r: the base logger with the request
// id attached and, when the request asks for it via ?log= or X-Log-Level,
// a different level.
func requestLogger(r *http.Request) zerolog.Logger {
	l := zlog
	if lvl, ok := parseLevel(r.URL.Query().Get("log")); ok {
		l = l.Level(lvl)
	} else if lvl, ok := parseLevel(r.Header.Get("X-Log-Level")); ok {
		l = l.Level(lvl)
	}
	if rid := middleware.GetReqID(r.Context()); rid != "" {
		l = l.With().Str("request_id", rid).Logger()
	}
	return l
}

// LoggingMiddleware attaches the request logger to the context and logs
// one line per request.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		l := requestLogger(r)
		r = r.WithContext(l.WithContext(r.Context()))
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		ev := l.Info()
		if status >= 500 {
			ev = l.Error()
		} else if r.URL.Path == "/healthz" || r.URL.Path == "/readyz" || r.URL.Path == "/metrics" {
			ev = l.Debug()
		}
		ev.Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("bytes", ww.BytesWritten()).
			Dur("dur", time.Since(start)).
			Msg("http request")
	})
}

// frameLogger logs complete event-stream lines at debug level.
type frameLogger struct {
	log zerolog.Logger
	buf []byte
}

func (fl *frameLogger) Write(p []byte) (int, error) {
	fl.buf = append(fl.buf, p...)
	for {
		idx := bytes.IndexByte(fl.buf, '\n')
		if idx < 0 {
			break
		}
		if line := fl.buf[:idx]; len(line) > 0 {
			fl.log.Debug().Bytes("frame", line).Msg("sse")
		}
		fl.buf = fl.buf[idx+1:]
	}
	return len(p), nil
}
