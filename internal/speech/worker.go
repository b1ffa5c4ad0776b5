package speech

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"omnid/internal/common/fsutil"
	"omnid/internal/engine"
)

// Beam settings switch at this audio length.
const longAudio = 5 * time.Minute

// Request carries the per-call transcription options.
type Request struct {
	// Model overrides the pool model when it names a .bin file.
	Model                  string
	Language               string
	Prompt                 string
	Temperature            *float64
	ResponseFormat         string
	TimestampGranularities []string
}

// WantsWords reports whether word timestamps were requested.
func (r Request) WantsWords() bool {
	for _, g := range r.TimestampGranularities {
		if g == "word" {
			return true
		}
	}
	return false
}

// Word is one timed word.
type Word struct {
	Word  string
	Start float64
	End   float64
}

// Segment is one timed span of text, in seconds.
type Segment struct {
	Start float64
	End   float64
	Text  string
	Words []Word
}

// Result is a parsed transcription.
type Result struct {
	Text     string
	Language string
	// Duration is the probed audio length, or the end of the last segment.
	Duration float64
	Segments []Segment
}

// Worker runs whisper-cli for one pool slot.
type Worker struct {
	id  int
	cfg Config
	log zerolog.Logger
}

func newWorker(id int, cfg Config, log zerolog.Logger) *Worker {
	return &Worker{id: id, cfg: cfg, log: log.With().Int("speech_worker", id).Logger()}
}

// Check verifies the CLI and model files exist.
func (w *Worker) Check() error {
	if _, err := os.Stat(w.cfg.CLIPath); err != nil {
		if _, lerr := exec.LookPath(w.cfg.CLIPath); lerr != nil {
			return engine.ErrUnavailable("whisper-cli not found at " + w.cfg.CLIPath)
		}
	}
	if _, err := os.Stat(w.cfg.ModelPath); err != nil {
		return engine.ErrUnavailable("whisper model not found at " + w.cfg.ModelPath)
	}
	return nil
}

// Transcribe runs whisper-cli over audioPath. The CLI writes into a private
// temp directory that is removed before Transcribe returns.
func (w *Worker) Transcribe(ctx context.Context, audioPath string, req Request) (Result, error) {
	if err := w.Check(); err != nil {
		return Result{}, err
	}
	dir, err := os.MkdirTemp(w.cfg.TempDir, "whisper-out-")
	if err != nil {
		return Result{}, fmt.Errorf("create output dir: %w", err)
	}
	defer os.RemoveAll(dir)

	duration := probeDuration(ctx, w.cfg.FFprobeBin, audioPath)
	args := buildArgs(w.cfg, audioPath, filepath.Join(dir, "output"), req, duration, fsutil.IsFile(w.cfg.VADModelPath))

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, w.cfg.CLIPath, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	start := time.Now()
	w.log.Debug().Str("audio", audioPath).Float64("duration_s", duration).Strs("args", args).Msg("whisper-cli start")
	runErr := cmd.Run()
	elapsed := time.Since(start)
	if ctx.Err() != nil {
		transcriptionDuration.WithLabelValues(w.cfg.ModelPath, "canceled").Observe(elapsed.Seconds())
		return Result{}, ctx.Err()
	}
	code := 0
	if runErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			transcriptionDuration.WithLabelValues(w.cfg.ModelPath, "error").Observe(elapsed.Seconds())
			if errors.Is(runErr, exec.ErrNotFound) || errors.Is(runErr, fs.ErrNotExist) {
				return Result{}, engine.ErrUnavailable("whisper-cli: " + runErr.Error())
			}
			return Result{}, fmt.Errorf("run whisper-cli: %w", runErr)
		}
		code = exitErr.ExitCode()
	}

	res, err := collectOutput(dir, code, stdout.String())
	if err != nil {
		if _, ok := err.(*ProcessError); ok {
			err = &ProcessError{ExitCode: code, Stderr: strings.TrimSpace(stderr.String())}
		}
		transcriptionDuration.WithLabelValues(w.cfg.ModelPath, "error").Observe(elapsed.Seconds())
		w.log.Warn().Err(err).Int("exit_code", code).Msg("whisper-cli failed")
		return Result{}, err
	}
	if duration > 0 {
		res.Duration = duration
	} else {
		for _, s := range res.Segments {
			res.Duration = max(res.Duration, s.End)
		}
	}
	transcriptionDuration.WithLabelValues(w.cfg.ModelPath, "ok").Observe(elapsed.Seconds())
	audioSeconds.WithLabelValues(w.cfg.ModelPath).Add(res.Duration)
	w.log.Info().
		Dur("elapsed", elapsed).
		Float64("audio_s", res.Duration).
		Int("segments", len(res.Segments)).
		Str("language", res.Language).
		Msg("transcription done")
	return res, nil
}

// buildArgs assembles the whisper-cli command line.
func buildArgs(cfg Config, audioPath, outBase string, req Request, duration float64, vad bool) []string {
	temp := "0.2"
	if req.Temperature != nil && *req.Temperature != 0 {
		temp = strconv.FormatFloat(*req.Temperature, 'f', -1, 64)
	}
	args := []string{
		"--threads", strconv.Itoa(cfg.Threads),
		"--model", cfg.ModelPath,
		"--file", audioPath,
		"--temperature", temp,
		"--word-thold", "0.005",
		"--no-speech-thold", "0.4",
		"--max-len", "448",
		"--suppress-nst",
		"--flash-attn",
		"--output-json",
		"--output-file", outBase,
		"--no-prints",
	}
	if vad {
		args = append(args,
			"--vad",
			"--vad-model", cfg.VADModelPath,
			"--vad-threshold", "0.3",
			"--vad-min-speech-duration-ms", "200",
			"--vad-min-silence-duration-ms", "300",
			"--vad-speech-pad-ms", "50",
		)
	}
	if req.Language != "" {
		args = append(args, "--language", req.Language)
	}
	if req.Prompt != "" {
		args = append(args, "--prompt", req.Prompt)
	}
	if time.Duration(duration*float64(time.Second)) < longAudio {
		args = append(args, "--best-of", "5", "--beam-size", "5")
	} else {
		args = append(args, "--best-of", "3", "--beam-size", "3", "--max-context", "0", "--entropy-thold", "2.5")
	}
	if req.WantsWords() {
		args = append(args, "--word-timestamps", "--output-json-full")
	}
	return args
}

// probeDuration asks ffprobe for the audio length in seconds; 0 when unknown.
func probeDuration(ctx context.Context, bin, path string) float64 {
	if bin == "" {
		return 0
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	out, err := exec.CommandContext(ctx, bin, "-v", "quiet", "-show_entries", "format=duration", "-of", "csv=p=0", path).Output()
	if err != nil {
		return 0
	}
	d, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil || d < 0 {
		return 0
	}
	return d
}

// collectOutput finds the transcription the CLI produced: output.json,
// then any JSON file on success, then timestamped stdout lines.
func collectOutput(dir string, code int, stdout string) (Result, error) {
	primary := filepath.Join(dir, "output.json")
	if fsutil.IsFile(primary) {
		return parseJSONFile(primary)
	}
	if code == 0 {
		matches, _ := filepath.Glob(filepath.Join(dir, "*.json"))
		sort.Strings(matches)
		if len(matches) > 0 {
			return parseJSONFile(matches[0])
		}
		if strings.TrimSpace(stdout) != "" {
			return parseStdout(stdout), nil
		}
	}
	return Result{}, &ProcessError{ExitCode: code}
}

type whisperJSON struct {
	Result struct {
		Language string `json:"language"`
	} `json:"result"`
	Transcription []struct {
		Offsets offsets `json:"offsets"`
		Text    string  `json:"text"`
		Tokens  []struct {
			Text    string  `json:"text"`
			Offsets offsets `json:"offsets"`
		} `json:"tokens"`
	} `json:"transcription"`
}

type offsets struct {
	From int64 `json:"from"`
	To   int64 `json:"to"`
}

func parseJSONFile(path string) (Result, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Result{}, fmt.Errorf("read whisper output: %w", err)
	}
	var doc whisperJSON
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Result{}, fmt.Errorf("decode whisper output: %w", err)
	}
	res := Result{Language: doc.Result.Language}
	texts := make([]string, 0, len(doc.Transcription))
	for _, t := range doc.Transcription {
		text := strings.TrimSpace(t.Text)
		seg := Segment{
			Start: float64(t.Offsets.From) / 1000,
			End:   float64(t.Offsets.To) / 1000,
			Text:  text,
		}
		for _, tok := range t.Tokens {
			if strings.HasPrefix(tok.Text, "[_") || strings.TrimSpace(tok.Text) == "" {
				continue
			}
			start := float64(tok.Offsets.From) / 1000
			end := float64(tok.Offsets.To) / 1000
			// Tokens without a leading space continue the previous word.
			if n := len(seg.Words); n > 0 && !strings.HasPrefix(tok.Text, " ") {
				seg.Words[n-1].Word += tok.Text
				seg.Words[n-1].End = end
				continue
			}
			seg.Words = append(seg.Words, Word{Word: strings.TrimSpace(tok.Text), Start: start, End: end})
		}
		res.Segments = append(res.Segments, seg)
		texts = append(texts, text)
	}
	res.Text = strings.Join(texts, " ")
	return res, nil
}

var stdoutLine = regexp.MustCompile(`^\[(\d{2}):(\d{2}):(\d{2}\.\d{3}) --> (\d{2}):(\d{2}):(\d{2}\.\d{3})\]\s+(.*)$`)

func parseStdout(stdout string) Result {
	var res Result
	var texts []string
	sc := bufio.NewScanner(strings.NewReader(stdout))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		m := stdoutLine.FindStringSubmatch(strings.TrimRight(sc.Text(), "\r"))
		if m == nil {
			continue
		}
		text := strings.TrimSpace(m[7])
		res.Segments = append(res.Segments, Segment{
			Start: clock(m[1], m[2], m[3]),
			End:   clock(m[4], m[5], m[6]),
			Text:  text,
		})
		texts = append(texts, text)
	}
	res.Text = strings.Join(texts, " ")
	return res
}

func clock(h, m, s string) float64 {
	hh, _ := strconv.Atoi(h)
	mm, _ := strconv.Atoi(m)
	ss, _ := strconv.ParseFloat(s, 64)
	return float64(hh*3600+mm*60) + ss
}

