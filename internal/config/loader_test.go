package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTempFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func checkLoaded(t *testing.T, cfg Config) {
	t.Helper()
	if cfg.Addr != ":9999" || cfg.ModelsDir != "/tmp" || cfg.MemoryBudgetMB != 123 || cfg.MemoryMarginMB != 7 || cfg.DefaultModel != "m1" {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
	if cfg.MaxWait.Duration != 5*time.Second || cfg.Runtime != RuntimeLlamaCpp {
		t.Fatalf("unexpected wait/runtime: %+v", cfg)
	}
	if cfg.Whisper.MaxWorkers != 3 || cfg.Whisper.CLIPath != "/w/cli" {
		t.Fatalf("unexpected whisper: %+v", cfg.Whisper)
	}
	if !cfg.CORS.Enabled || len(cfg.CORS.Origins) != 1 || cfg.CORS.Origins[0] != "http://a" {
		t.Fatalf("unexpected cors: %+v", cfg.CORS)
	}
	if len(cfg.LlamaExtraArgs) != 2 || cfg.Downloads.DBPath != "/d/tasks.db" {
		t.Fatalf("unexpected llama/downloads: %+v", cfg)
	}
}

func TestLoadYAML(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.yaml", `addr: ":9999"
models_dir: /tmp
memory_budget_mb: 123
memory_margin_mb: 7
default_model: m1
runtime: llamacpp
max_wait: 5s
llama_extra_args: ["--flash-attn", "--mlock"]
cors:
  enabled: true
  origins: ["http://a"]
whisper:
  cli_path: /w/cli
  max_workers: 3
downloads:
  db_path: /d/tasks.db
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	checkLoaded(t, cfg)
}

func TestLoadJSON(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.json", `{"addr":":9999","models_dir":"/tmp","memory_budget_mb":123,"memory_margin_mb":7,
"default_model":"m1","runtime":"llamacpp","max_wait":"5s","llama_extra_args":["--flash-attn","--mlock"],
"cors":{"enabled":true,"origins":["http://a"]},"whisper":{"cli_path":"/w/cli","max_workers":3},
"downloads":{"db_path":"/d/tasks.db"}}`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	checkLoaded(t, cfg)
}

func TestLoadTOML(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.toml", `addr = ":9999"
models_dir = "/tmp"
memory_budget_mb = 123
memory_margin_mb = 7
default_model = "m1"
runtime = "llamacpp"
max_wait = "5s"
llama_extra_args = ["--flash-attn", "--mlock"]

[cors]
enabled = true
origins = ["http://a"]

[whisper]
cli_path = "/w/cli"
max_workers = 3

[downloads]
db_path = "/d/tasks.db"
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	checkLoaded(t, cfg)
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatalf("expected error on empty path")
	}
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.txt", "not supported")
	if _, err := Load(p); err == nil {
		t.Fatalf("expected unsupported extension error")
	}
	p = writeTempFile(t, d, "dur.yaml", "max_wait: soon\n")
	if _, err := Load(p); err == nil {
		t.Fatalf("expected duration parse error")
	}
}
