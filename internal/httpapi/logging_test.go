package httpapi

import (
	"bytes"
	"net/http"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func captureLogs(t *testing.T, level zerolog.Level) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetLogger(zerolog.New(&buf).Level(level))
	t.Cleanup(func() { SetLogger(zerolog.Nop()) })
	return &buf
}

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in   string
		want zerolog.Level
		ok   bool
	}{
		{"", zerolog.NoLevel, false},
		{"1", zerolog.DebugLevel, true},
		{"DEBUG", zerolog.DebugLevel, true},
		{" warn ", zerolog.WarnLevel, true},
		{"off", zerolog.Disabled, true},
		{"chatty", zerolog.NoLevel, false},
	}
	for _, c := range cases {
		got, ok := parseLevel(c.in)
		if got != c.want || ok != c.ok {
			t.Fatalf("parseLevel(%q)=%v,%v want %v,%v", c.in, got, ok, c.want, c.ok)
		}
	}
}

func TestHealthLoggedAtDebugOnly(t *testing.T) {
	buf := captureLogs(t, zerolog.InfoLevel)
	h := newTestMux(Services{})
	do(t, h, http.MethodGet, "/healthz", "")
	if buf.Len() != 0 {
		t.Fatalf("health check logged at info: %s", buf.String())
	}
	do(t, h, http.MethodGet, "/v1/models", "")
	if !strings.Contains(buf.String(), `"path":"/v1/models"`) || !strings.Contains(buf.String(), `"request_id"`) {
		t.Fatalf("request line missing: %s", buf.String())
	}
}

func TestPerRequestLogLevel(t *testing.T) {
	buf := captureLogs(t, zerolog.InfoLevel)
	h := newTestMux(Services{})
	do(t, h, http.MethodGet, "/healthz?log=debug", "")
	if !strings.Contains(buf.String(), `"path":"/healthz"`) {
		t.Fatalf("query override ignored: %q", buf.String())
	}

	buf.Reset()
	req := newRequest(http.MethodGet, "/v1/models", "")
	req.Header.Set("X-Log-Level", "off")
	serve(h, req)
	if buf.Len() != 0 {
		t.Fatalf("header override ignored: %s", buf.String())
	}
}

func TestFrameLoggerSplitsLines(t *testing.T) {
	var buf bytes.Buffer
	fl := &frameLogger{log: zerolog.New(&buf)}
	_, _ = fl.Write([]byte("data: {\"a\""))
	if buf.Len() != 0 {
		t.Fatalf("partial line logged")
	}
	_, _ = fl.Write([]byte(":1}\n\ndata: [DONE]\n\n"))
	out := buf.String()
	if strings.Count(out, `"message":"sse"`) != 2 || !strings.Contains(out, "[DONE]") {
		t.Fatalf("unexpected frame logs: %s", out)
	}
}
