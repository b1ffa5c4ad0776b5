package speech

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// writeScript writes an executable shell script into dir.
func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not supported on windows")
	}
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return p
}

// fakeCLI is a whisper-cli stand-in. It finds --output-file in its
// arguments and writes json to <out>.json before running extra.
func fakeCLI(t *testing.T, dir, json, extra string) string {
	t.Helper()
	body := `out=""
while [ $# -gt 0 ]; do
  case "$1" in
    --output-file) out="$2"; shift;;
  esac
  shift
done
` + extra + "\ncat > \"$out.json\" <<'JSON'\n" + json + "\nJSON\n"
	return writeScript(t, dir, "whisper-cli", body)
}

// testConfig returns a config pointing at cli and an empty model file
// inside dir, with no VAD model and no ffprobe.
func testConfig(t *testing.T, dir, cli string) Config {
	t.Helper()
	model := filepath.Join(dir, "ggml-test.bin")
	if err := os.WriteFile(model, []byte("model"), 0o644); err != nil {
		t.Fatalf("write model: %v", err)
	}
	tmp := filepath.Join(dir, "tmp")
	if err := os.MkdirAll(tmp, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	return Config{
		CLIPath:      cli,
		ModelPath:    model,
		VADModelPath: filepath.Join(dir, "missing-vad.bin"),
		Threads:      2,
		MaxWorkers:   2,
		FFprobeBin:   filepath.Join(dir, "no-ffprobe"),
		TempDir:      tmp,
	}
}

func nopLog() zerolog.Logger { return zerolog.Nop() }

const sampleJSON = `{
  "result": {"language": "en"},
  "transcription": [
    {"offsets": {"from": 0, "to": 1500}, "text": " Hello there.",
     "tokens": [
       {"text": "[_BEG_]", "offsets": {"from": 0, "to": 0}},
       {"text": " Hello", "offsets": {"from": 0, "to": 600}},
       {"text": " there", "offsets": {"from": 600, "to": 1200}},
       {"text": ".", "offsets": {"from": 1200, "to": 1500}}
     ]},
    {"offsets": {"from": 1500, "to": 3250}, "text": " General Kenobi!",
     "tokens": [
       {"text": " General", "offsets": {"from": 1500, "to": 2200}},
       {"text": " Ken", "offsets": {"from": 2200, "to": 2800}},
       {"text": "obi!", "offsets": {"from": 2800, "to": 3250}}
     ]}
  ]
}`
