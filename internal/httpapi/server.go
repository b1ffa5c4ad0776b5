// Package httpapi exposes the OpenAI-compatible HTTP surface: chat
// completions, model management, audio transcription and operational
// endpoints.
package httpapi

import (
	"context"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"omnid/internal/downloads"
	"omnid/internal/speech"
	"omnid/pkg/types"
)

// ChatService generates chat completions.
type ChatService interface {
	Complete(ctx context.Context, req types.ChatCompletionRequest) (*types.ChatCompletionResponse, error)
	Stream(ctx context.Context, req types.ChatCompletionRequest, sink func(types.ChatCompletionChunk) error) error
}

// ModelService is the model registry and lifecycle view of the manager.
type ModelService interface {
	ListModels() []types.Model
	GetModel(id string) (types.Model, bool)
	Loaded(id string) bool
	Rescan() ([]types.Model, error)
	Delete(id string) error
	Status() types.StatusResponse
	Ready() bool
}

// SpeechService transcribes uploaded audio.
type SpeechService interface {
	Transcribe(ctx context.Context, audio io.Reader, filename string, req speech.Request) (speech.Result, error)
	Status() []types.SpeechPoolStatus
}

// DownloadService runs background model downloads.
type DownloadService interface {
	Start(ctx context.Context, model string) (downloads.Task, error)
	Status(ctx context.Context, id string) (types.ModelDownloadStatus, error)
}

// Services groups the backends of the mux. Chat and Models are required;
// a nil Speech or Downloads disables its endpoints with 503.
type Services struct {
	Chat      ChatService
	Models    ModelService
	Speech    SpeechService
	Downloads DownloadService
}

type server struct {
	Services
}

// NewMux builds the router. Every API route is served both with and
// without the /v1 prefix.
func NewMux(svc Services) http.Handler {
	s := &server{Services: svc}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LoggingMiddleware)
	r.Use(MetricsMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: orDefault(corsAllowedOrigins, []string{"*"}),
			AllowedMethods: orDefault(corsAllowedMethods, []string{"GET", "POST", "DELETE", "OPTIONS"}),
			AllowedHeaders: orDefault(corsAllowedHeaders, []string{"Accept", "Authorization", "Content-Type", "X-Request-Id", "X-Log-Level"}),
			ExposedHeaders: []string{"X-Request-Id"},
			MaxAge:         300,
		}))
	}

	api := func(r chi.Router) {
		r.Post("/chat/completions", s.chatCompletions)

		r.Get("/models", s.listModels)
		r.Get("/models/rescan", s.rescanModels)
		r.Post("/models/load", s.startDownload)
		r.Get("/models/load/{taskID}", s.downloadStatus)
		r.Get("/models/*", s.getModel)
		r.Delete("/models/*", s.deleteModel)

		r.Post("/audio/transcriptions", s.transcribe)
	}
	r.Route("/v1", api)
	r.Group(api)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if s.Models.Ready() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("loading"))
	})
	r.Get("/status", s.status)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	r.Get("/openapi.json", serveOpenAPI)
	MountSwagger(r)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSONError(w, http.StatusNotFound, "no route for "+r.Method+" "+r.URL.Path)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSONError(w, http.StatusMethodNotAllowed, "method "+r.Method+" not allowed on "+r.URL.Path)
	})
	return r
}

func orDefault(v, def []string) []string {
	if len(v) == 0 {
		return def
	}
	return v
}
