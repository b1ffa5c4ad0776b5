package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"omnid/internal/config"
)

// lookupEnv reads the process environment; tests replace it.
var lookupEnv = os.LookupEnv

// options are the flags shared by every subcommand.
type options struct {
	configPath  string
	corsOrigins string
	cfg         config.Config
}

func newRootCmd() *cobra.Command { return newRootCmdWith(&options{}) }

func newRootCmdWith(opts *options) *cobra.Command {
	root := &cobra.Command{
		Use:           "omnid",
		Short:         "OpenAI-compatible server for local GGUF models and whisper.cpp",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "", "Config file (.yaml, .yml, .json or .toml)")
	pf.StringVar(&opts.cfg.ModelsDir, "models-dir", "", "Directory scanned recursively for *.gguf files (default ~/models)")
	pf.StringVar(&opts.cfg.LogLevel, "log-level", "", "Log level: debug|info|warn|error")
	pf.StringVar(&opts.cfg.LogFormat, "log-format", "", "Log format: json|console")

	serve := newServeCmd(opts)
	root.AddCommand(serve, newModelsCmd(opts), newVersionCmd())
	root.RunE = serve.RunE
	root.Flags().AddFlagSet(serve.Flags())
	return root
}

// resolveConfig layers defaults < config file < OMNID_* environment < flags
// explicitly set on cmd, then validates the result.
func resolveConfig(cmd *cobra.Command, opts *options, lookup func(string) (string, bool)) (config.Config, error) {
	var cfg config.Config
	if opts.configPath != "" {
		loaded, err := config.Load(opts.configPath)
		if err != nil {
			return cfg, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}
	cfg, err := config.ApplyEnv(cfg, lookup)
	if err != nil {
		return cfg, err
	}
	applyFlags(cmd, &cfg, opts)
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// applyFlags copies every flag the user set into dst.
func applyFlags(cmd *cobra.Command, dst *config.Config, opts *options) {
	src := &opts.cfg
	changed := func(name string) bool {
		f := cmd.Flags().Lookup(name)
		return f != nil && f.Changed
	}
	set := map[string]func(){
		"models-dir":        func() { dst.ModelsDir = src.ModelsDir },
		"log-level":         func() { dst.LogLevel = src.LogLevel },
		"log-format":        func() { dst.LogFormat = src.LogFormat },
		"addr":              func() { dst.Addr = src.Addr },
		"default-model":     func() { dst.DefaultModel = src.DefaultModel },
		"runtime":           func() { dst.Runtime = src.Runtime },
		"preload":           func() { dst.PreloadDefault = src.PreloadDefault },
		"llama-server-bin":  func() { dst.LlamaServerBin = src.LlamaServerBin },
		"llama-ctx":         func() { dst.LlamaCtx = src.LlamaCtx },
		"llama-threads":     func() { dst.LlamaThreads = src.LlamaThreads },
		"llama-ngl":         func() { dst.LlamaNGL = src.LlamaNGL },
		"memory-budget-mb":  func() { dst.MemoryBudgetMB = src.MemoryBudgetMB },
		"memory-margin-mb":  func() { dst.MemoryMarginMB = src.MemoryMarginMB },
		"max-loaded-models": func() { dst.MaxLoadedModels = src.MaxLoadedModels },
		"max-queue-depth":   func() { dst.MaxQueueDepth = src.MaxQueueDepth },
		"max-wait":          func() { dst.MaxWait = src.MaxWait },
		"request-timeout":   func() { dst.RequestTimeout = src.RequestTimeout },
		"cors":              func() { dst.CORS.Enabled = src.CORS.Enabled },
		"cors-origins":      func() { dst.CORS.Origins = splitCSV(opts.corsOrigins) },
		"downloads-db":      func() { dst.Downloads.DBPath = src.Downloads.DBPath },
	}
	for name, apply := range set {
		if changed(name) {
			apply()
		}
	}
}

// splitCSV splits a comma-separated list, dropping blanks.
func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "omnid", version)
		},
	}
}
