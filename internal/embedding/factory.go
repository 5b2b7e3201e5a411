package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// ProviderConfig holds all configuration needed to create an embedding provider.
type ProviderConfig struct {
	Provider  string // "openai", "ollama", "together", "deepseek", "custom"
	Model     string
	APIKey    string
	BaseURL   string // Override for self-hosted / custom endpoints
	Dimension int    // 0 = infer from known models

	// FallbackModel is tried on the fallback provider when the
	// configured model cannot be loaded. Empty means FallbackModel.
	FallbackModel string

	// Timeout and retry configuration
	Timeout    time.Duration // Per-request timeout (default: 30s)
	MaxRetries int           // Max retry attempts (default: 3)
	RetryDelay time.Duration // Initial retry delay for exponential backoff (default: 1s)
}

// Fallback model used when the configured provider cannot be loaded:
// a local Ollama all-minilm, the same model family the service was
// originally tuned against (384-dimensional MiniLM).
const (
	FallbackProvider = "ollama"
	FallbackModel    = "all-minilm"
)

// Factory creates Provider instances from config.
type Factory struct {
	constructors map[string]Constructor
}

// Constructor builds a Provider from config.
type Constructor func(cfg ProviderConfig) (Provider, error)

// NewFactory creates an empty factory; callers register constructors.
func NewFactory() *Factory {
	return &Factory{constructors: make(map[string]Constructor)}
}

// Register adds a provider constructor under the given name.
func (f *Factory) Register(name string, ctor Constructor) {
	f.constructors[name] = ctor
}

// Create builds a Provider from config, wrapped with retry logic when
// timeout or retries are configured.
func (f *Factory) Create(cfg ProviderConfig) (Provider, error) {
	ctor, ok := f.constructors[cfg.Provider]
	if !ok {
		return nil, fmt.Errorf("unknown embedding provider %q (registered: %v)", cfg.Provider, f.names())
	}

	provider, err := ctor(cfg)
	if err != nil {
		return nil, err
	}

	if cfg.Timeout > 0 || cfg.MaxRetries > 0 {
		return WithRetry(provider, &RetryConfig{
			MaxRetries: cfg.MaxRetries,
			RetryDelay: cfg.RetryDelay,
			MaxDelay:   15 * time.Second,
			Timeout:    cfg.Timeout,
		}), nil
	}
	return provider, nil
}

// Load performs the two-stage startup: create and probe the configured
// provider, fall back to the default model on failure, and fail only if
// both are unusable. The probe is a single tiny embedding call.
func (f *Factory) Load(ctx context.Context, cfg ProviderConfig) (Provider, error) {
	provider, err := f.createAndProbe(ctx, cfg)
	if err == nil {
		return provider, nil
	}

	fallbackModel := cfg.FallbackModel
	if fallbackModel == "" {
		fallbackModel = FallbackModel
	}
	if cfg.Provider == FallbackProvider && cfg.Model == fallbackModel {
		return nil, err
	}

	slog.Warn("configured embedding model unavailable, falling back",
		"provider", cfg.Provider, "model", cfg.Model,
		"fallback", FallbackProvider+"/"+fallbackModel, "error", err)

	fallback := cfg
	fallback.Provider = FallbackProvider
	fallback.Model = fallbackModel
	fallback.BaseURL = ""
	fallback.Dimension = 0
	provider, ferr := f.createAndProbe(ctx, fallback)
	if ferr != nil {
		return nil, fmt.Errorf("configured model failed (%v); fallback failed: %w", err, ferr)
	}
	return provider, nil
}

func (f *Factory) createAndProbe(ctx context.Context, cfg ProviderConfig) (Provider, error) {
	provider, err := f.Create(cfg)
	if err != nil {
		return nil, err
	}
	probeCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if _, err := provider.Embed(probeCtx, []string{"ping"}); err != nil {
		return nil, fmt.Errorf("probe %s: %w", provider.Name(), err)
	}
	return provider, nil
}

func (f *Factory) names() []string {
	var out []string
	for k := range f.constructors {
		out = append(out, k)
	}
	return out
}

// KnownProviders documents the built-in provider presets. All of them
// speak the OpenAI embeddings API; "custom" takes any base_url.
var KnownProviders = map[string]string{
	"openai":   "https://api.openai.com/v1",
	"ollama":   "http://localhost:11434/v1",
	"together": "https://api.together.xyz/v1",
	"deepseek": "https://api.deepseek.com/v1",
}
