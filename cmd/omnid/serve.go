package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"omnid/internal/chat"
	"omnid/internal/common/fsutil"
	"omnid/internal/config"
	"omnid/internal/downloads"
	"omnid/internal/engine"
	"omnid/internal/engine/llamacpp"
	"omnid/internal/engine/llamaserver"
	"omnid/internal/httpapi"
	"omnid/internal/manager"
	"omnid/internal/registry"
	"omnid/internal/speech"
	"omnid/pkg/types"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd, opts, lookupEnv)
			if err != nil {
				return err
			}
			log, err := newLogger(os.Stderr, cfg.LogLevel, cfg.LogFormat)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, log)
		},
	}
	f := cmd.Flags()
	c := &opts.cfg
	f.StringVar(&c.Addr, "addr", "", "HTTP listen address (default :8080)")
	f.StringVar(&c.DefaultModel, "default-model", "", "Model id used when a request omits model")
	f.StringVar(&c.Runtime, "runtime", "", "Inference runtime: llama-server|llamacpp")
	f.BoolVar(&c.PreloadDefault, "preload", false, "Load the default model at startup")
	f.StringVar(&c.LlamaServerBin, "llama-server-bin", "", "Path to the llama-server binary")
	f.IntVar(&c.LlamaCtx, "llama-ctx", 0, "Context size per loaded model")
	f.IntVar(&c.LlamaThreads, "llama-threads", 0, "Threads per loaded model")
	f.IntVar(&c.LlamaNGL, "llama-ngl", 0, "Layers offloaded to the GPU")
	f.IntVar(&c.MemoryBudgetMB, "memory-budget-mb", 0, "Memory budget in MB for all loaded models (0=unlimited)")
	f.IntVar(&c.MemoryMarginMB, "memory-margin-mb", 0, "Memory in MB kept free inside the budget")
	f.IntVar(&c.MaxLoadedModels, "max-loaded-models", 0, "Maximum models loaded at once (0=unlimited)")
	f.IntVar(&c.MaxQueueDepth, "max-queue-depth", 0, "Requests allowed to wait per model (default 32)")
	f.DurationVar(&c.MaxWait.Duration, "max-wait", 0, "How long a request may wait for its model (default 30s)")
	f.DurationVar(&c.RequestTimeout.Duration, "request-timeout", 0, "Upper bound on one chat or transcription request (0=none)")
	f.BoolVar(&c.CORS.Enabled, "cors", false, "Enable CORS")
	f.StringVar(&opts.corsOrigins, "cors-origins", "", "Comma-separated allowed origins (default *)")
	f.StringVar(&c.Downloads.DBPath, "downloads-db", "", "SQLite file for download tasks (default in memory)")
	return cmd
}

func newRuntime(cfg config.Config, log zerolog.Logger, events llamaserver.EventFunc) (engine.Loader, func()) {
	if cfg.Runtime == config.RuntimeLlamaCpp {
		rt := llamacpp.New(llamacpp.Config{
			CtxSize: cfg.LlamaCtx,
			Threads: cfg.LlamaThreads,
			NGL:     cfg.LlamaNGL,
			Logger:  log.With().Str("component", "llamacpp").Logger(),
		})
		return rt, func() {}
	}
	rt := llamaserver.New(llamaserver.Config{
		Bin:       cfg.LlamaServerBin,
		Host:      cfg.LlamaHost,
		PortStart: cfg.LlamaPortStart,
		PortEnd:   cfg.LlamaPortEnd,
		CtxSize:   cfg.LlamaCtx,
		NGL:       cfg.LlamaNGL,
		Threads:   cfg.LlamaThreads,
		Slots:     cfg.LlamaSlots,
		ExtraArgs: cfg.LlamaExtraArgs,
		Events:    events,
		Logger:    log.With().Str("component", "llama-server").Logger(),
	})
	return rt, rt.StopAll
}

func speechConfig(cfg config.Config) (speech.Config, error) {
	sc := speech.Config{
		CLIPath:      cfg.Whisper.CLIPath,
		ModelPath:    cfg.Whisper.ModelPath,
		VADModelPath: cfg.Whisper.VADModelPath,
		Threads:      cfg.Whisper.Threads,
		MaxWorkers:   cfg.Whisper.MaxWorkers,
		FFprobeBin:   cfg.Whisper.FFprobeBin,
	}
	sc, err := sc.ApplyEnv(lookupEnv)
	if err != nil {
		return sc, err
	}
	return sc.WithDefaults(), nil
}

func serve(ctx context.Context, cfg config.Config, log zerolog.Logger) error {
	modelsDir, err := fsutil.AbsDir(cfg.ModelsDir)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(modelsDir, 0o755); err != nil {
		return fmt.Errorf("models dir: %w", err)
	}
	scan := func() ([]types.Model, error) { return registry.LoadDir(modelsDir) }
	models, err := scan()
	if err != nil {
		return fmt.Errorf("scan models: %w", err)
	}
	log.Info().Str("dir", modelsDir).Int("models", len(models)).Msg("registry loaded")

	// The runtime reports process events before the manager exists.
	var mgr *manager.Manager
	rt, stopRuntime := newRuntime(cfg, log, func(name, modelID string, fields map[string]any) {
		if mgr != nil {
			mgr.PublishEvent(name, modelID, fields)
		}
	})
	mgr = manager.NewWithConfig(manager.ManagerConfig{
		Registry:      models,
		BudgetMB:      cfg.MemoryBudgetMB,
		MarginMB:      cfg.MemoryMarginMB,
		MaxLoaded:     cfg.MaxLoadedModels,
		DefaultModel:  cfg.DefaultModel,
		MaxQueueDepth: cfg.MaxQueueDepth,
		MaxWait:       cfg.MaxWait.Duration,
		DrainTimeout:  cfg.DrainTimeout.Duration,
		CachePoolSize: cfg.PromptCaches,
		Loader:        rt,
		Scan:          scan,
		Logger:        log.With().Str("component", "manager").Logger(),
	})
	report := mgr.SanityCheck()
	ev := log.Info()
	if !report.RuntimeOK || report.ModelsMissing > 0 || report.Error != "" {
		ev = log.Warn()
	}
	ev.Str("runtime", cfg.Runtime).
		Bool("runtime_ok", report.RuntimeOK).
		Int("models_present", report.ModelsPresent).
		Str("default_model", report.DefaultModel).
		Bool("default_found", report.DefaultFound).
		Str("error", report.Error).
		Msg("startup check")
	if cfg.PreloadDefault && report.DefaultFound && report.RuntimeOK {
		op, err := mgr.Switch(ctx, cfg.DefaultModel)
		if err != nil {
			return err
		}
		log.Info().Str("op", op).Str("model", cfg.DefaultModel).Msg("preloading default model")
	}

	sc, err := speechConfig(cfg)
	if err != nil {
		return fmt.Errorf("whisper config: %w", err)
	}
	speechLog := log.With().Str("component", "speech").Logger()
	speechSvc := speech.NewService(speech.NewRegistry(sc, speechLog), speechLog)

	var store downloads.Store
	if cfg.Downloads.DBPath != "" {
		dbPath, err := fsutil.ExpandHome(cfg.Downloads.DBPath)
		if err != nil {
			return err
		}
		sq, err := downloads.OpenSQLite(dbPath)
		if err != nil {
			return fmt.Errorf("open download store: %w", err)
		}
		store = sq
	}
	dl, err := downloads.New(downloads.Config{
		BaseURL: cfg.Downloads.BaseURL,
		Token:   cfg.Downloads.Token,
		DestDir: modelsDir,
		Store:   store,
		OnComplete: func() {
			if _, err := mgr.Rescan(); err != nil {
				log.Warn().Err(err).Msg("rescan after download failed")
			}
		},
		Logger: log.With().Str("component", "downloads").Logger(),
	})
	if err != nil {
		return err
	}

	httpapi.SetLogger(log.With().Str("component", "http").Logger())
	httpapi.SetMaxBodyBytes(cfg.MaxBodyBytes)
	httpapi.SetRequestTimeout(cfg.RequestTimeout.Duration)
	httpapi.SetCORSOptions(cfg.CORS.Enabled, cfg.CORS.Origins, cfg.CORS.Methods, cfg.CORS.Headers)
	httpapi.SetBaseContext(ctx)
	mux := httpapi.NewMux(httpapi.Services{
		Chat:      chat.NewService(mgr, log.With().Str("component", "chat").Logger()),
		Models:    mgr,
		Speech:    speechSvc,
		Downloads: dl,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Addr).Str("runtime", cfg.Runtime).Msg("omnid listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	case serveErr = <-errCh:
	}

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Warn().Err(err).Msg("graceful shutdown error")
	}
	if err := dl.Close(); err != nil {
		log.Warn().Err(err).Msg("close downloads")
	}
	if err := mgr.Close(); err != nil {
		log.Warn().Err(err).Msg("close manager")
	}
	stopRuntime()
	return serveErr
}
