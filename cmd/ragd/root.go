package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"ragd/internal/config"
	"ragd/internal/engine"
	"ragd/internal/httpapi"
	"ragd/internal/manager"
	"ragd/internal/registry"
)

// options holds flags that are not config fields.
type options struct {
	configPath string
	envFiles   []string
}

func buildRootCmd() *cobra.Command {
	cfg := config.Default()
	opts := &options{}
	root := &cobra.Command{
		Use:           "ragd",
		Short:         "Local control plane for inference backends and a RAG pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Config file (.yaml, .yml, .json or .toml)")
	root.PersistentFlags().StringSliceVar(&opts.envFiles, "env-file", []string{".env"}, "Dotenv files loaded before RAGD_* overrides")

	serveCmd := &cobra.Command{
		Use:     "serve",
		Short:   "Run the HTTP server",
		Example: "  ragd serve --llm-model ~/models/llm.gguf --embedding-model ~/models/bge.gguf",
		RunE: func(cmd *cobra.Command, args []string) error {
			resolved, err := resolveConfig(cmd, opts, cfg)
			if err != nil {
				return err
			}
			log := newLogger(resolved, os.Stderr)
			return serve(cmd.Context(), resolved, log)
		},
	}
	bindServeFlags(serveCmd, &cfg)

	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			resolved, err := resolveConfig(cmd, opts, cfg)
			if err != nil {
				return err
			}
			return printConfig(cmd.OutOrStdout(), resolved)
		},
	}
	bindServeFlags(configCmd, &cfg)

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s (runtime: %s)\n", version, engine.RuntimeName())
		},
	}

	var modelsJSON bool
	modelsCmd := &cobra.Command{
		Use:     "models [dir]",
		Short:   "List model files in a directory",
		Example: "  ragd models ~/models\n  ragd models --json ~/models",
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			return listModels(cmd.OutOrStdout(), dir, modelsJSON)
		},
	}
	modelsCmd.Flags().BoolVar(&modelsJSON, "json", false, "Print JSON instead of a table")

	root.AddCommand(serveCmd, configCmd, modelsCmd, versionCmd)
	return root
}

// bindServeFlags registers flags that override config file values.
func bindServeFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	f.StringVar(&cfg.Addr, "addr", cfg.Addr, "HTTP listen address")
	f.StringVar(&cfg.LLMModelPath, "llm-model", cfg.LLMModelPath, "Text generation model path")
	f.StringVar(&cfg.LLMDevice, "llm-device", cfg.LLMDevice, "Text generation device")
	f.StringVar(&cfg.VLMModelPath, "vlm-model", cfg.VLMModelPath, "Vision-language model path")
	f.StringVar(&cfg.VLMDevice, "vlm-device", cfg.VLMDevice, "Vision-language device")
	f.StringVar(&cfg.EmbeddingModelPath, "embedding-model", cfg.EmbeddingModelPath, "Text embedding model path")
	f.StringVar(&cfg.EmbeddingDevice, "embedding-device", cfg.EmbeddingDevice, "Text embedding device")
	f.StringVar(&cfg.ImageEmbeddingModelPath, "image-embedding-model", cfg.ImageEmbeddingModelPath, "Image embedding model path")
	f.StringVar(&cfg.ImageEmbeddingDevice, "image-embedding-device", cfg.ImageEmbeddingDevice, "Image embedding device")
	f.StringVar(&cfg.RerankModelPath, "rerank-model", cfg.RerankModelPath, "Reranking model path")
	f.StringVar(&cfg.RerankDevice, "rerank-device", cfg.RerankDevice, "Reranking device")
	f.StringVar(&cfg.DBConnection, "db", cfg.DBConnection, "Vector store database path or DSN")
	f.IntVar(&cfg.MaxNewTokens, "max-new-tokens", cfg.MaxNewTokens, "Maximum generated tokens per submission")
	f.BoolVar(&cfg.EnableMultiRoundChat, "enable-multi-round-chat", cfg.EnableMultiRoundChat, "Keep chat context across submissions")
	f.BoolVarP(&cfg.Verbose, "verbose", "v", cfg.Verbose, "Debug logging")
	f.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug|info|warn|error")
	f.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "Log format: json|console")
	f.String("cors-origins", strings.Join(cfg.CORSOrigins, ","), "Comma-separated allowed origins; * echoes any")
}

// resolveConfig layers file, dotenv/env and explicitly set flags over Default.
func resolveConfig(cmd *cobra.Command, opts *options, flagged config.Config) (config.Config, error) {
	cfg := config.Default()
	if opts.configPath != "" {
		loaded, err := config.Load(opts.configPath)
		if err != nil {
			return cfg, fmt.Errorf("loading config %s: %w", opts.configPath, err)
		}
		cfg = loaded
	}
	if err := config.LoadDotEnv(opts.envFiles...); err != nil {
		return cfg, err
	}
	if err := config.ApplyEnv(&cfg); err != nil {
		return cfg, err
	}
	applyFlags(cmd, &cfg, flagged)
	if err := cfg.ExpandPaths(); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// applyFlags copies only the flags the user set.
func applyFlags(cmd *cobra.Command, dst *config.Config, src config.Config) {
	set := func(name string, apply func()) {
		if cmd.Flags().Changed(name) {
			apply()
		}
	}
	set("addr", func() { dst.Addr = src.Addr })
	set("llm-model", func() { dst.LLMModelPath = src.LLMModelPath })
	set("llm-device", func() { dst.LLMDevice = src.LLMDevice })
	set("vlm-model", func() { dst.VLMModelPath = src.VLMModelPath })
	set("vlm-device", func() { dst.VLMDevice = src.VLMDevice })
	set("embedding-model", func() { dst.EmbeddingModelPath = src.EmbeddingModelPath })
	set("embedding-device", func() { dst.EmbeddingDevice = src.EmbeddingDevice })
	set("image-embedding-model", func() { dst.ImageEmbeddingModelPath = src.ImageEmbeddingModelPath })
	set("image-embedding-device", func() { dst.ImageEmbeddingDevice = src.ImageEmbeddingDevice })
	set("rerank-model", func() { dst.RerankModelPath = src.RerankModelPath })
	set("rerank-device", func() { dst.RerankDevice = src.RerankDevice })
	set("db", func() { dst.DBConnection = src.DBConnection })
	set("max-new-tokens", func() { dst.MaxNewTokens = src.MaxNewTokens })
	set("enable-multi-round-chat", func() { dst.EnableMultiRoundChat = src.EnableMultiRoundChat })
	set("verbose", func() { dst.Verbose = src.Verbose })
	set("log-level", func() { dst.LogLevel = src.LogLevel })
	set("log-format", func() { dst.LogFormat = src.LogFormat })
	set("cors-origins", func() {
		v, _ := cmd.Flags().GetString("cors-origins")
		dst.CORSOrigins = splitCSV(v)
	})
}

// splitCSV splits by comma, trims spaces, and drops empty items.
func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// newLogger builds the process logger. Verbose forces debug.
func newLogger(cfg config.Config, w io.Writer) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil || cfg.LogLevel == "" {
		lvl = zerolog.InfoLevel
	}
	if cfg.Verbose {
		lvl = zerolog.DebugLevel
	}
	if strings.EqualFold(cfg.LogFormat, "console") {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Str("service", "ragd").Logger()
}

func printConfig(w io.Writer, cfg config.Config) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return err
	}
	return enc.Close()
}

// serve runs the HTTP server until ctx is cancelled or SIGINT/SIGTERM arrives,
// then drains connections and unloads every backend.
func serve(ctx context.Context, cfg config.Config, log zerolog.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	mgr := manager.NewWithConfig(manager.ManagerConfig{Config: cfg, Logger: &log})
	httpapi.SetLogger(log)
	httpapi.SetBaseContext(ctx)
	httpapi.SetMaxBodyBytes(cfg.MaxBodyBytes)
	httpapi.SetStreamEndMarker(cfg.StreamEndMarker)
	httpapi.SetCORSOrigins(cfg.CORSOrigins)
	reqLevel := cfg.LogLevel
	if cfg.Verbose {
		reqLevel = "debug"
	}
	httpapi.SetRequestLogLevel(reqLevel)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpapi.NewMux(mgr),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", cfg.Addr).Str("db", cfg.DBConnection).Msg("ragd listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("graceful shutdown error")
		}
		return nil
	})
	err := g.Wait()
	if cerr := mgr.Close(); cerr != nil {
		log.Warn().Err(cerr).Msg("unloading backends")
	}
	log.Info().Msg("ragd stopped")
	return err
}

func listModels(w io.Writer, dir string, asJSON bool) error {
	models, err := registry.Scan(dir)
	if err != nil {
		return err
	}
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(models)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tQUANT\tSIZE\tPATH")
	for _, m := range models {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", m.ID, m.Quant, m.SizeBytes, m.Path)
	}
	return tw.Flush()
}
