package llamaserver

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"omnid/internal/engine"
)

func TestBuildArgs(t *testing.T) {
	cfg := Config{Host: "127.0.0.1", CtxSize: 4096, NGL: 99, Threads: 8, Slots: 2, ExtraArgs: []string{"--flash-attn"}}
	got := buildArgs(cfg, engine.LoadSpec{Path: "/m/a.gguf", AdapterPath: "/m/lora.gguf"}, 9000)
	want := []string{
		"-m", "/m/a.gguf", "--host", "127.0.0.1", "--port", "9000", "--parallel", "2",
		"-c", "4096", "-ngl", "99", "-t", "8", "--lora", "/m/lora.gguf", "--flash-attn",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("args mismatch:\n got %v\nwant %v", got, want)
	}
}

func TestPickPortInRangeSkipsBusyPorts(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()
	busy := l.Addr().(*net.TCPAddr).Port
	p, err := pickPortInRange("127.0.0.1", busy, busy+20)
	if err != nil || p == busy {
		t.Fatalf("expected a different free port, got %d err=%v", p, err)
	}
	if _, err := pickPortInRange("127.0.0.1", busy, busy); err == nil {
		t.Fatalf("expected error when the range is exhausted")
	}
}

func TestTailBufferKeepsEnd(t *testing.T) {
	var b tailBuffer
	for i := 0; i < 10; i++ {
		_, _ = b.Write([]byte(strings.Repeat("x", 1000)))
	}
	_, _ = b.Write([]byte("END"))
	tail := b.Tail()
	if len(tail) != stderrTailBytes || !strings.HasSuffix(tail, "END") {
		t.Fatalf("unexpected tail len=%d", len(tail))
	}
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "llama-server")
	if err := os.WriteFile(p, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoadReportsEarlyExitWithStderr(t *testing.T) {
	var events []string
	r := New(Config{
		Bin:          writeScript(t, "echo 'failed to load model' >&2\nexit 1\n"),
		ReadyTimeout: 5 * time.Second,
		Events:       func(name, _ string, _ map[string]any) { events = append(events, name) },
	})
	_, err := r.Load(context.Background(), engine.LoadSpec{ID: "m", Path: "/nope.gguf"})
	if err == nil || !strings.Contains(err.Error(), "failed to load model") {
		t.Fatalf("expected early exit with stderr tail, got %v", err)
	}
	if len(events) != 2 || events[0] != "spawn_start" || events[1] != "spawn_exit" {
		t.Fatalf("unexpected events %v", events)
	}
}

func TestLoadTimesOut(t *testing.T) {
	r := New(Config{Bin: writeScript(t, "exec sleep 10\n"), ReadyTimeout: 200 * time.Millisecond})
	start := time.Now()
	_, err := r.Load(context.Background(), engine.LoadSpec{ID: "m", Path: "/m.gguf"})
	if err == nil || !strings.Contains(err.Error(), "not ready in time") {
		t.Fatalf("expected timeout, got %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Fatalf("stop did not terminate the process promptly")
	}
}

func TestMissingBinaryIsUnavailable(t *testing.T) {
	r := New(Config{Bin: filepath.Join(t.TempDir(), "missing-llama-server")})
	if err := r.Check(); !engine.IsUnavailable(err) {
		t.Fatalf("Check: %v", err)
	}
	if _, err := r.Load(context.Background(), engine.LoadSpec{ID: "m", Path: "/m.gguf"}); !engine.IsUnavailable(err) {
		t.Fatalf("expected unavailable, got %v", err)
	}
	if _, err := r.Load(context.Background(), engine.LoadSpec{ID: "m"}); err == nil {
		t.Fatalf("expected error for empty path")
	}
}
