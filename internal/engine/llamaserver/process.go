package llamaserver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"omnid/internal/engine"
)

// process is one running llama-server.
type process struct {
	cmd     *exec.Cmd
	baseURL string
	pid     int
	stderr  *tailBuffer
	// exited is closed when the process ends; waitErr is valid after that.
	exited  chan struct{}
	waitErr error
}

// tailBuffer keeps stderr for diagnostics; it is written by the exec
// copier goroutine and read on failure.
type tailBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.buf.Len() > 4*stderrTailBytes {
		keep := append([]byte(nil), b.buf.Bytes()[b.buf.Len()-stderrTailBytes:]...)
		b.buf.Reset()
		b.buf.Write(keep)
	}
	return b.buf.Write(p)
}

func (b *tailBuffer) Tail() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.buf.String()
	if len(s) > stderrTailBytes {
		s = s[len(s)-stderrTailBytes:]
	}
	return s
}

// buildArgs returns the llama-server command line for spec on port.
func buildArgs(cfg Config, spec engine.LoadSpec, port int) []string {
	args := []string{
		"-m", spec.Path,
		"--host", cfg.Host,
		"--port", fmt.Sprint(port),
		"--parallel", fmt.Sprint(cfg.Slots),
	}
	if cfg.CtxSize > 0 {
		args = append(args, "-c", fmt.Sprint(cfg.CtxSize))
	}
	if cfg.NGL > 0 {
		args = append(args, "-ngl", fmt.Sprint(cfg.NGL))
	}
	if cfg.Threads > 0 {
		args = append(args, "-t", fmt.Sprint(cfg.Threads))
	}
	if spec.AdapterPath != "" {
		args = append(args, "--lora", spec.AdapterPath)
	}
	return append(args, cfg.ExtraArgs...)
}

// spawn starts llama-server for spec and waits until it answers
// /v1/models, the process exits, the ready timeout passes or ctx ends.
func spawn(ctx context.Context, cfg Config, client *http.Client, spec engine.LoadSpec) (*process, error) {
	var (
		port int
		err  error
	)
	if cfg.PortStart > 0 && cfg.PortEnd >= cfg.PortStart {
		port, err = pickPortInRange(cfg.Host, cfg.PortStart, cfg.PortEnd)
	} else {
		port, err = pickFreePort(cfg.Host)
	}
	if err != nil {
		return nil, err
	}
	p := &process{
		baseURL: fmt.Sprintf("http://%s:%d", cfg.Host, port),
		stderr:  &tailBuffer{},
		exited:  make(chan struct{}),
	}
	p.cmd = exec.Command(cfg.Bin, buildArgs(cfg, spec, port)...)
	p.cmd.Stderr = p.stderr
	if err := p.cmd.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
			return nil, engine.ErrUnavailable(fmt.Sprintf("llama-server binary not found: %s", cfg.Bin))
		}
		return nil, fmt.Errorf("start llama-server: %w", err)
	}
	p.pid = p.cmd.Process.Pid
	cfg.Logger.Info().Str("model", spec.ID).Int("pid", p.pid).Str("url", p.baseURL).Msg("llama-server started")
	cfg.Events("spawn_start", spec.ID, map[string]any{"pid": p.pid, "host": cfg.Host, "port": port})

	go func() {
		p.waitErr = p.cmd.Wait()
		close(p.exited)
	}()

	deadline := time.Now().Add(cfg.ReadyTimeout)
	for {
		select {
		case <-p.exited:
			cfg.Events("spawn_exit", spec.ID, map[string]any{"pid": p.pid, "before_ready": true})
			if p.waitErr != nil {
				return nil, fmt.Errorf("llama-server exited early: %v; stderr tail: %s", p.waitErr, p.stderr.Tail())
			}
			return nil, fmt.Errorf("llama-server exited before ready: %s", p.baseURL)
		case <-ctx.Done():
			p.stop()
			return nil, ctx.Err()
		default:
		}
		if time.Now().After(deadline) {
			p.stop()
			cfg.Events("spawn_timeout", spec.ID, map[string]any{"pid": p.pid})
			return nil, fmt.Errorf("llama-server not ready in time: %s", p.baseURL)
		}
		if healthy(client, p.baseURL, time.Second) {
			cfg.Logger.Info().Str("model", spec.ID).Int("pid", p.pid).Msg("llama-server ready")
			cfg.Events("spawn_ready", spec.ID, map[string]any{"pid": p.pid, "url": p.baseURL})
			return p, nil
		}
		time.Sleep(100 * time.Millisecond)
	}
}

// alive reports whether the process is still running.
func (p *process) alive() bool {
	select {
	case <-p.exited:
		return false
	default:
		return true
	}
}

// exitError describes why a dead process is unusable.
func (p *process) exitError() error {
	return fmt.Errorf("llama-server exited: %v; stderr tail: %s", p.waitErr, p.stderr.Tail())
}

// stop sends SIGTERM and kills the process if it has not exited after the
// grace period.
func (p *process) stop() {
	if p == nil || p.cmd == nil || p.cmd.Process == nil || !p.alive() {
		return
	}
	_ = p.cmd.Process.Signal(syscall.SIGTERM)
	select {
	case <-p.exited:
	case <-time.After(stopGrace):
		_ = p.cmd.Process.Kill()
		<-p.exited
	}
}

// healthy checks if the llama-server at baseURL responds OK to /v1/models.
func healthy(client *http.Client, baseURL string, timeout time.Duration) bool {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/v1/models", nil)
	if err != nil {
		return false
	}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

func pickPortInRange(host string, start, end int) (int, error) {
	for p := start; p <= end; p++ {
		l, err := net.Listen("tcp", fmt.Sprintf("%s:%d", host, p))
		if err != nil {
			continue
		}
		_ = l.Close()
		return p, nil
	}
	return 0, fmt.Errorf("no free port in range %d-%d", start, end)
}

func pickFreePort(host string) (int, error) {
	l, err := net.Listen("tcp", host+":0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	addr := l.Addr().String()
	lastColon := strings.LastIndex(addr, ":")
	if lastColon < 0 {
		return 0, fmt.Errorf("unexpected addr: %s", addr)
	}
	return strconv.Atoi(addr[lastColon+1:])
}
