package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestSplitCSV(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"a,b,c", []string{"a", "b", "c"}},
		{" a , b , c ", []string{"a", "b", "c"}},
		{"a,,c", []string{"a", "c"}},
		{"", nil},
	}
	for _, c := range cases {
		got := splitCSV(c.in)
		if len(got) != len(c.want) {
			t.Fatalf("%q -> %v, want %v", c.in, got, c.want)
		}
		for i := range got {
			if got[i] != c.want[i] {
				t.Fatalf("%q -> %v, want %v", c.in, got, c.want)
			}
		}
	}
}

func TestResolveConfigPrecedence(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "omnid.yaml")
	body := "addr: \":9000\"\nmodels_dir: /from/file\nmax_queue_depth: 4\nlog_level: warn\n"
	if err := os.WriteFile(file, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	opts := &options{}
	root := newRootCmdWith(opts)
	serve, _, err := root.Find([]string{"serve"})
	if err != nil {
		t.Fatal(err)
	}
	if err := serve.ParseFlags([]string{"--config", file, "--addr", ":7000", "--cors-origins", "http://a, http://b"}); err != nil {
		t.Fatal(err)
	}

	cfg, err := resolveConfig(serve, opts, envMap(map[string]string{
		"OMNID_MODELS_DIR": "/from/env",
		"OMNID_LOG_LEVEL":  "debug",
	}))
	if err != nil {
		t.Fatalf("resolveConfig: %v", err)
	}
	if cfg.Addr != ":7000" {
		t.Fatalf("addr: flag should win, got %q", cfg.Addr)
	}
	if cfg.ModelsDir != "/from/env" {
		t.Fatalf("models dir: env should beat file, got %q", cfg.ModelsDir)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("log level = %q", cfg.LogLevel)
	}
	if cfg.MaxQueueDepth != 4 {
		t.Fatalf("file value lost: max_queue_depth = %d", cfg.MaxQueueDepth)
	}
	if cfg.MaxWait.Duration != 30*time.Second {
		t.Fatalf("default max wait not applied: %v", cfg.MaxWait)
	}
	if len(cfg.CORS.Origins) != 2 || cfg.CORS.Origins[1] != "http://b" {
		t.Fatalf("cors origins = %v", cfg.CORS.Origins)
	}
}

func TestResolveConfigErrors(t *testing.T) {
	root := newRootCmd()
	if _, err := resolveConfig(root, &options{configPath: "/nope/omnid.yaml"}, envMap(nil)); err == nil {
		t.Fatalf("expected error for missing config file")
	}
	if _, err := resolveConfig(root, &options{}, envMap(map[string]string{"OMNID_MAX_QUEUE_DEPTH": "many"})); err == nil {
		t.Fatalf("expected error for bad env value")
	}
	if _, err := resolveConfig(root, &options{}, envMap(map[string]string{"OMNID_RUNTIME": "vllm"})); err == nil {
		t.Fatalf("expected validation error for unknown runtime")
	}
}

func TestModelsCommandListsRegistry(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "acme")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"qwen2.5-7b-instruct-Q4_K_M.gguf", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(sub, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	old := lookupEnv
	lookupEnv = envMap(nil)
	t.Cleanup(func() { lookupEnv = old })

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs([]string{"models", "--models-dir", dir})
	if err := root.Execute(); err != nil {
		t.Fatalf("models: %v", err)
	}
	got := out.String()
	if !strings.Contains(got, "acme/qwen2.5-7b-instruct-Q4_K_M.gguf") {
		t.Fatalf("model missing from output:\n%s", got)
	}
	if !strings.Contains(got, "Q4_K_M") || !strings.Contains(got, "qwen") {
		t.Fatalf("quant/family missing from output:\n%s", got)
	}
	if strings.Contains(got, "notes.txt") {
		t.Fatalf("non-gguf file listed:\n%s", got)
	}
}

func TestVersionCommand(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	if err := root.Execute(); err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(out.String()) != "omnid "+version {
		t.Fatalf("version output = %q", out.String())
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	log, err := newLogger(&buf, "warn", "json")
	if err != nil {
		t.Fatal(err)
	}
	log.Info().Msg("hidden")
	log.Warn().Msg("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), `"service":"omnid"`) {
		t.Fatalf("unexpected log output: %s", buf.String())
	}
	if _, err := newLogger(&buf, "loud", "json"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}
