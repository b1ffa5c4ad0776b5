package speech

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
)

func TestServiceTranscribeRemovesUpload(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t, dir, fakeCLI(t, dir, sampleJSON, ""))
	s := NewService(NewRegistry(cfg, nopLog()), nopLog())

	res, err := s.Transcribe(testCtx(t), strings.NewReader("RIFF...."), "clip.wav", Request{})
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if res.Language != "en" || len(res.Segments) != 2 {
		t.Fatalf("unexpected result: %+v", res)
	}
	entries, _ := os.ReadDir(cfg.TempDir)
	if len(entries) != 0 {
		t.Fatalf("temp files left behind: %v", entries)
	}
}

func TestServiceUploadRemovedOnFailure(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t, dir, writeScript(t, dir, "whisper-cli", "exit 1\n"))
	s := NewService(NewRegistry(cfg, nopLog()), nopLog())
	if _, err := s.Transcribe(testCtx(t), strings.NewReader("x"), "a.mp3", Request{}); !IsProcessFailure(err) {
		t.Fatalf("expected process failure, got %v", err)
	}
	entries, _ := os.ReadDir(cfg.TempDir)
	if len(entries) != 0 {
		t.Fatalf("temp files left behind: %v", entries)
	}
}

func TestServiceRejectsFormatBeforeRunning(t *testing.T) {
	dir := t.TempDir()
	marker := filepath.Join(dir, "ran")
	cfg := testConfig(t, dir, writeScript(t, dir, "whisper-cli", "touch "+marker+"\n"))
	s := NewService(NewRegistry(cfg, nopLog()), nopLog())
	if _, err := s.Transcribe(testCtx(t), strings.NewReader("x"), "a.wav", Request{ResponseFormat: "doc"}); !IsInvalid(err) {
		t.Fatalf("expected invalid, got %v", err)
	}
	if _, err := os.Stat(marker); err == nil {
		t.Fatalf("cli ran for a rejected request")
	}
}

func TestServiceModelOverrideSelectsPool(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t, dir, fakeCLI(t, dir, sampleJSON, ""))
	alt := filepath.Join(dir, "ggml-small.bin")
	os.WriteFile(alt, []byte("m"), 0o644)
	s := NewService(NewRegistry(cfg, nopLog()), nopLog())
	ctx := testCtx(t)
	if _, err := s.Transcribe(ctx, strings.NewReader("x"), "a.wav", Request{Model: "whisper-1"}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Transcribe(ctx, strings.NewReader("x"), "a.wav", Request{Model: alt}); err != nil {
		t.Fatal(err)
	}
	st := s.Status()
	if len(st) != 2 {
		t.Fatalf("expected two pools, got %+v", st)
	}
}

// With N workers, N+1 concurrent requests never run more than N CLIs at once.
func TestServiceBoundsConcurrentRuns(t *testing.T) {
	dir := t.TempDir()
	track := filepath.Join(dir, "track")
	os.MkdirAll(track, 0o755)
	extra := `touch "` + track + `/run.$$"
ls "` + track + `" | grep -c '^run\.' >> "` + dir + `/peaks"
sleep 0.3
rm "` + track + `/run.$$"`
	cfg := testConfig(t, dir, fakeCLI(t, dir, sampleJSON, extra))
	cfg.MaxWorkers = 2
	s := NewService(NewRegistry(cfg, nopLog()), nopLog())

	ctx := testCtx(t)
	var wg sync.WaitGroup
	errs := make(chan error, cfg.MaxWorkers+1)
	for i := 0; i < cfg.MaxWorkers+1; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Transcribe(ctx, strings.NewReader("x"), "a.wav", Request{})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("transcribe: %v", err)
		}
	}
	raw, err := os.ReadFile(filepath.Join(dir, "peaks"))
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Fields(string(raw))
	if len(lines) != cfg.MaxWorkers+1 {
		t.Fatalf("expected %d runs, got %v", cfg.MaxWorkers+1, lines)
	}
	for _, l := range lines {
		n, _ := strconv.Atoi(l)
		if n > cfg.MaxWorkers {
			t.Fatalf("observed %d concurrent runs with %d workers", n, cfg.MaxWorkers)
		}
	}
}
