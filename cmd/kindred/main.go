package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/efebarandurmaz/kindred/internal/api"
	"github.com/efebarandurmaz/kindred/internal/config"
	"github.com/efebarandurmaz/kindred/internal/embedding"
	"github.com/efebarandurmaz/kindred/internal/embedding/openai"
	"github.com/efebarandurmaz/kindred/internal/matching"
	"github.com/efebarandurmaz/kindred/internal/observability"
	"github.com/efebarandurmaz/kindred/internal/server"
	"github.com/efebarandurmaz/kindred/internal/store"
	"github.com/efebarandurmaz/kindred/internal/store/embedded"
	"github.com/efebarandurmaz/kindred/internal/store/memory"
	"github.com/efebarandurmaz/kindred/internal/store/qdrant"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "kindred",
		Short: "Personality-matching service over vector embeddings",
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the matching API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(configPath)
		},
	}
	serveCmd.Flags().StringVar(&configPath, "config", "configs/kindred.yaml", "Config file path")

	providersCmd := &cobra.Command{
		Use:   "providers",
		Short: "List available embedding providers",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("Available embedding providers:")
			fmt.Println()
			for name, url := range embedding.KnownProviders {
				fmt.Printf("  %-10s %s\n", name, url)
			}
			fmt.Println("  custom     (set base_url to any OpenAI-compatible endpoint)")
			fmt.Println()
			fmt.Println("Configure in kindred.yaml or via environment:")
			fmt.Println("  KINDRED_EMBEDDING_PROVIDER=ollama")
			fmt.Println("  KINDRED_EMBEDDING_MODEL=all-minilm")
			fmt.Println("  KINDRED_EMBEDDING_API_KEY=sk-...")
		},
	}

	rootCmd.AddCommand(serveCmd, providersCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serve(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	setupLogging(cfg.Log)

	ctx := context.Background()

	tracer, err := observability.InitTracing(ctx, &observability.TracingConfig{
		ServiceName:    "kindred",
		ServiceVersion: api.Version,
		Environment:    cfg.Tracing.Environment,
		OTLPEndpoint:   cfg.Tracing.Endpoint,
		SampleRate:     cfg.Tracing.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}

	embedder, err := loadEmbedder(ctx, cfg.Embedding, cfg.Store.Dimension)
	if err != nil {
		return fmt.Errorf("load embedding provider: %w", err)
	}
	slog.Info("embedding provider ready", "model", embedder.Name(), "dimension", embedder.Dimension())

	dim := cfg.Store.Dimension
	if dim == 0 {
		dim = embedder.Dimension()
	}
	st, err := openStore(ctx, cfg.Store, dim)
	if err != nil {
		return fmt.Errorf("open profile store: %w", err)
	}
	slog.Info("profile store ready", "backend", cfg.Store.Backend, "collection", cfg.Store.Collection)

	service := matching.NewService(embedder, st, cfg.Store.Collection)

	health := server.NewHealthRegistry(api.Version)
	health.Register("store", server.StoreHealthChecker(service.Ping))
	health.Register("embedder", server.EmbedderHealthChecker(embedder.Name(), nil))

	apiServer := api.NewServer(&api.Config{ListenAddr: cfg.Server.Addr()}, service, health)

	shutdown := server.NewShutdownHandler(nil)
	shutdown.Register(server.HTTPServerShutdownHook("api-server", apiServer.Stop))
	shutdown.Register(server.TracingShutdownHook(tracer.Shutdown))
	shutdown.Register(server.StoreShutdownHook(st.Close))
	shutdown.Start()

	errCh := make(chan error, 1)
	go func() {
		errCh <- apiServer.Start()
	}()

	var serveErr error
	select {
	case serveErr = <-errCh:
		// Run the hooks even when the listener failed so the store
		// and tracer still close cleanly.
		shutdown.Shutdown()
	case <-shutdown.ShutdownCh():
	}

	if !shutdown.WaitWithTimeout(45 * time.Second) {
		slog.Warn("shutdown timed out")
	}
	return serveErr
}

// loadEmbedder builds the embedding provider with the documented
// fallback model if the configured one cannot be loaded.
func loadEmbedder(ctx context.Context, cfg config.EmbeddingConfig, dim int) (embedding.Provider, error) {
	factory := embedding.NewFactory()
	for name, presetURL := range embedding.KnownProviders {
		url := presetURL
		factory.Register(name, func(c embedding.ProviderConfig) (embedding.Provider, error) {
			base := c.BaseURL
			if base == "" {
				base = url
			}
			return openai.New(c.APIKey, c.Model, base, c.Dimension)
		})
	}
	factory.Register("custom", func(c embedding.ProviderConfig) (embedding.Provider, error) {
		return openai.New(c.APIKey, c.Model, c.BaseURL, c.Dimension)
	})

	return factory.Load(ctx, embedding.ProviderConfig{
		Provider:      cfg.Provider,
		Model:         cfg.Model,
		FallbackModel: cfg.FallbackModel,
		APIKey:        cfg.APIKey,
		BaseURL:       cfg.BaseURL,
		Dimension:     dim,
		Timeout:       time.Duration(cfg.TimeoutSec) * time.Second,
		MaxRetries:    cfg.MaxRetries,
		RetryDelay:    time.Second,
	})
}

// openStore opens the configured profile store backend.
func openStore(ctx context.Context, cfg config.StoreConfig, dim int) (store.Store, error) {
	switch cfg.Backend {
	case "embedded", "":
		if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
			return nil, err
		}
		return embedded.Open(filepath.Join(cfg.Path, cfg.Collection+".db"), dim)
	case "qdrant":
		return qdrant.New(ctx, cfg.Host, cfg.Port, cfg.Collection, dim)
	case "memory":
		return memory.New(dim), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q (embedded, qdrant, memory)", cfg.Backend)
	}
}

func setupLogging(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}
