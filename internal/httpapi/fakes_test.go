package httpapi

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"omnid/internal/downloads"
	"omnid/internal/manager"
	"omnid/internal/speech"
	"omnid/pkg/types"
)

type fakeChat struct {
	resp   *types.ChatCompletionResponse
	err    error
	chunks []types.ChatCompletionChunk
	// streamErr is returned after chunks have been sent.
	streamErr error
	got       types.ChatCompletionRequest
}

func (f *fakeChat) Complete(ctx context.Context, req types.ChatCompletionRequest) (*types.ChatCompletionResponse, error) {
	f.got = req
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

func (f *fakeChat) Stream(ctx context.Context, req types.ChatCompletionRequest, sink func(types.ChatCompletionChunk) error) error {
	f.got = req
	if f.err != nil {
		return f.err
	}
	for _, c := range f.chunks {
		if err := sink(c); err != nil {
			return err
		}
	}
	return f.streamErr
}

type fakeModels struct {
	mu        sync.Mutex
	models    []types.Model
	loaded    map[string]bool
	status    types.StatusResponse
	ready     bool
	rescanErr error
	deleted   []string
}

func (f *fakeModels) ListModels() []types.Model { return append([]types.Model(nil), f.models...) }

func (f *fakeModels) GetModel(id string) (types.Model, bool) {
	for _, m := range f.models {
		if m.ID == id {
			return m, true
		}
	}
	return types.Model{}, false
}

func (f *fakeModels) Loaded(id string) bool { return f.loaded[id] }

func (f *fakeModels) Rescan() ([]types.Model, error) {
	if f.rescanErr != nil {
		return nil, f.rescanErr
	}
	return f.ListModels(), nil
}

func (f *fakeModels) Delete(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.GetModel(id); !ok {
		return manager.ErrModelNotFound(id)
	}
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeModels) Status() types.StatusResponse { return f.status }
func (f *fakeModels) Ready() bool                  { return f.ready }

type fakeSpeech struct {
	res      speech.Result
	err      error
	got      speech.Request
	filename string
	audio    string
	pools    []types.SpeechPoolStatus
}

func (f *fakeSpeech) Transcribe(ctx context.Context, audio io.Reader, filename string, req speech.Request) (speech.Result, error) {
	b, _ := io.ReadAll(audio)
	f.audio = string(b)
	f.filename = filename
	f.got = req
	return f.res, f.err
}

func (f *fakeSpeech) Status() []types.SpeechPoolStatus { return f.pools }

type fakeDownloads struct {
	task  downloads.Task
	err   error
	tasks map[string]types.ModelDownloadStatus
	got   string
}

func (f *fakeDownloads) Start(ctx context.Context, model string) (downloads.Task, error) {
	f.got = model
	return f.task, f.err
}

func (f *fakeDownloads) Status(ctx context.Context, id string) (types.ModelDownloadStatus, error) {
	if st, ok := f.tasks[id]; ok {
		return st, nil
	}
	return types.ModelDownloadStatus{ID: id, Status: downloads.StatusNotFound}, nil
}

type httpErr struct {
	msg  string
	code int
}

func (e httpErr) Error() string   { return e.msg }
func (e httpErr) StatusCode() int { return e.code }

func newTestMux(svc Services) http.Handler {
	if svc.Chat == nil {
		svc.Chat = &fakeChat{}
	}
	if svc.Models == nil {
		svc.Models = &fakeModels{ready: true}
	}
	return NewMux(svc)
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := newRequest(method, path, body)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	return serve(h, req)
}

func strPtr(s string) *string { return &s }

func newRequest(method, path, body string) *http.Request {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	return httptest.NewRequest(method, path, r)
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}
