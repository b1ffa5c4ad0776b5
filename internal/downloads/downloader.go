package downloads

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"omnid/pkg/types"
)

// DefaultBaseURL is the Hugging Face hub.
const DefaultBaseURL = "https://huggingface.co"

// Config configures a Downloader.
type Config struct {
	// BaseURL of a Hugging Face compatible hub.
	BaseURL string
	// Revision to download; empty means main.
	Revision string
	// Token is sent as a bearer token when set.
	Token string
	// DestDir receives files under <owner>/<repo>/.
	DestDir string
	Store   Store
	Client  *http.Client
	// OnComplete runs after a task finishes successfully (e.g. a registry rescan).
	OnComplete func()
	Logger     zerolog.Logger
}

// Downloader starts and tracks background downloads.
type Downloader struct {
	cfg    Config
	log    zerolog.Logger
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New returns a downloader. A nil Store means an in-memory one.
func New(cfg Config) (*Downloader, error) {
	if strings.TrimSpace(cfg.DestDir) == "" {
		return nil, errors.New("downloads: destination directory is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Revision == "" {
		cfg.Revision = "main"
	}
	if cfg.Store == nil {
		cfg.Store = NewMemoryStore()
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Downloader{cfg: cfg, log: cfg.Logger, ctx: ctx, cancel: cancel}, nil
}

// ref is a parsed model reference: owner/repo with an optional file path.
type ref struct {
	repo string
	file string
}

func parseRef(model string) (ref, error) {
	model = strings.Trim(strings.TrimSpace(model), "/")
	parts := strings.Split(model, "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return ref{}, errInvalid("model must be <owner>/<repo> or <owner>/<repo>/<file>")
	}
	for _, p := range parts {
		if p == ".." || p == "." || p == "" {
			return ref{}, errInvalid("model %q contains an invalid path element", model)
		}
	}
	r := ref{repo: parts[0] + "/" + parts[1]}
	if len(parts) > 2 {
		r.file = strings.Join(parts[2:], "/")
	}
	return r, nil
}

// Start records a task for model and downloads it in the background.
func (d *Downloader) Start(ctx context.Context, model string) (Task, error) {
	r, err := parseRef(model)
	if err != nil {
		return Task{}, err
	}
	now := time.Now()
	t := Task{
		ID:      strings.ReplaceAll(uuid.NewString(), "-", ""),
		Model:   strings.Trim(strings.TrimSpace(model), "/"),
		Status:  StatusInProgress,
		Created: now,
		Updated: now,
	}
	if err := d.cfg.Store.Put(ctx, t); err != nil {
		return Task{}, err
	}
	d.log.Info().Str("task", t.ID).Str("model", t.Model).Msg("download started")
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.run(t, r)
	}()
	return t, nil
}

// Status reports a task; unknown ids report not_found.
func (d *Downloader) Status(ctx context.Context, id string) (types.ModelDownloadStatus, error) {
	t, err := d.cfg.Store.Get(ctx, id)
	if errors.Is(err, ErrTaskNotFound) {
		return types.ModelDownloadStatus{ID: id, Status: StatusNotFound}, nil
	}
	if err != nil {
		return types.ModelDownloadStatus{}, err
	}
	return types.ModelDownloadStatus{ID: t.ID, Status: t.Status, Model: t.Model, Error: t.Error, Files: t.Files}, nil
}

// Close cancels running downloads and waits for them to stop.
func (d *Downloader) Close() error {
	d.cancel()
	d.wg.Wait()
	return d.cfg.Store.Close()
}

func (d *Downloader) run(t Task, r ref) {
	start := time.Now()
	files, err := d.fetch(d.ctx, r, func(f string) {
		t.Files = append(t.Files, f)
		t.Updated = time.Now()
		if err := d.cfg.Store.Put(context.Background(), t); err != nil {
			d.log.Warn().Err(err).Str("task", t.ID).Msg("task progress not saved")
		}
	})
	t.Files = files
	t.Updated = time.Now()
	if err != nil {
		t.Status = StatusFailed
		t.Error = err.Error()
		d.log.Warn().Err(err).Str("task", t.ID).Str("model", t.Model).Msg("download failed")
	} else {
		t.Status = StatusCompleted
		d.log.Info().Str("task", t.ID).Str("model", t.Model).Strs("files", files).Dur("dur", time.Since(start)).Msg("download completed")
	}
	if err := d.cfg.Store.Put(context.Background(), t); err != nil {
		d.log.Error().Err(err).Str("task", t.ID).Msg("task result not saved")
	}
	if err == nil && d.cfg.OnComplete != nil {
		d.cfg.OnComplete()
	}
}

// fetch downloads the named file, or every .gguf file of the repository.
func (d *Downloader) fetch(ctx context.Context, r ref, progress func(string)) ([]string, error) {
	names := []string{r.file}
	if r.file == "" {
		var err error
		names, err = d.listGGUF(ctx, r.repo)
		if err != nil {
			return nil, err
		}
	}
	var done []string
	for _, name := range names {
		dst, err := d.download(ctx, r.repo, name)
		if err != nil {
			return done, err
		}
		done = append(done, dst)
		progress(dst)
	}
	return done, nil
}

func (d *Downloader) listGGUF(ctx context.Context, repo string) ([]string, error) {
	u := fmt.Sprintf("%s/api/models/%s", d.cfg.BaseURL, repo)
	if d.cfg.Revision != "main" {
		u += "/revision/" + url.PathEscape(d.cfg.Revision)
	}
	resp, err := d.get(ctx, u)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	var info struct {
		Siblings []struct {
			RFilename string `json:"rfilename"`
		} `json:"siblings"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("decode repository listing: %w", err)
	}
	var names []string
	for _, s := range info.Siblings {
		if strings.EqualFold(path.Ext(s.RFilename), ".gguf") {
			names = append(names, s.RFilename)
		}
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("repository %s has no .gguf files", repo)
	}
	sort.Strings(names)
	return names, nil
}

// download streams one file into DestDir via a .part file and renames it
// into place once complete.
func (d *Downloader) download(ctx context.Context, repo, name string) (string, error) {
	clean := path.Clean(name)
	if strings.HasPrefix(clean, "../") || clean == ".." || path.IsAbs(clean) {
		return "", fmt.Errorf("refusing file path %q", name)
	}
	dst := filepath.Join(d.cfg.DestDir, filepath.FromSlash(repo), filepath.FromSlash(clean))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", err
	}
	u := fmt.Sprintf("%s/%s/resolve/%s/%s", d.cfg.BaseURL, repo, url.PathEscape(d.cfg.Revision), clean)
	resp, err := d.get(ctx, u)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	part := dst + ".part"
	f, err := os.Create(part)
	if err != nil {
		return "", err
	}
	n, err := io.Copy(f, resp.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(part)
		return "", fmt.Errorf("download %s: %w", clean, err)
	}
	if err := os.Rename(part, dst); err != nil {
		os.Remove(part)
		return "", err
	}
	d.log.Debug().Str("file", dst).Int64("bytes", n).Msg("file downloaded")
	return dst, nil
}

func (d *Downloader) get(ctx context.Context, u string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	if d.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+d.cfg.Token)
	}
	resp, err := d.cfg.Client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, fmt.Errorf("GET %s: status %d: %s", u, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return resp, nil
}

type invalidError struct{ msg string }

func (e invalidError) Error() string { return e.msg }

// StatusCode maps malformed download requests to 400.
func (e invalidError) StatusCode() int { return 400 }

func errInvalid(format string, args ...any) error {
	return invalidError{msg: fmt.Sprintf(format, args...)}
}

// IsInvalid reports whether err rejects the download request itself.
func IsInvalid(err error) bool {
	var e invalidError
	return errors.As(err, &e)
}
