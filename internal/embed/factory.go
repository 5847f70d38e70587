package embed

import (
	"fmt"
	"time"
)

// ProviderConfig holds all configuration needed to create an embedding provider.
type ProviderConfig struct {
	Provider string // "openai", "custom"
	APIKey   string
	Model    string // Embedding model name
	BaseURL  string // Override for self-hosted / custom endpoints

	// Timeout and retry configuration
	Timeout    time.Duration // Per-request timeout (default: 1 minute)
	MaxRetries int           // Max retry attempts (default: 3)
	RetryDelay time.Duration // Initial retry delay for exponential backoff (default: 1s)

	// Rate limiting (0 = unlimited)
	RequestsPerMinute int
}

// ProviderConstructor builds a Provider from config.
type ProviderConstructor func(cfg ProviderConfig) (Provider, error)

// Factory creates Provider instances from config.
type Factory struct {
	constructors map[string]ProviderConstructor
}

// NewFactory creates an empty factory; providers register themselves via Register.
func NewFactory() *Factory {
	return &Factory{constructors: make(map[string]ProviderConstructor)}
}

// Register adds a provider constructor under the given name.
func (f *Factory) Register(name string, ctor ProviderConstructor) {
	f.constructors[name] = ctor
}

// Create builds a Provider from config, wrapped with rate limiting and
// retry logic when configured.
func (f *Factory) Create(cfg ProviderConfig) (Provider, error) {
	if cfg.Provider == "" {
		return nil, fmt.Errorf("no embedding provider configured")
	}

	ctor, ok := f.constructors[cfg.Provider]
	if !ok {
		return nil, fmt.Errorf("unknown embedding provider %q (registered: %v)", cfg.Provider, f.names())
	}

	provider, err := ctor(cfg)
	if err != nil {
		return nil, err
	}

	if cfg.RequestsPerMinute > 0 {
		provider = NewRateLimitProvider(provider, &RateLimitConfig{
			RequestsPerMinute: cfg.RequestsPerMinute,
			BurstSize:         DefaultRateLimitConfig().BurstSize,
		})
	}

	if cfg.Timeout > 0 || cfg.MaxRetries > 0 {
		rc := DefaultRetryConfig()
		if cfg.Timeout > 0 {
			rc.Timeout = cfg.Timeout
		}
		if cfg.MaxRetries > 0 {
			rc.MaxRetries = cfg.MaxRetries
		}
		if cfg.RetryDelay > 0 {
			rc.RetryDelay = cfg.RetryDelay
		}
		provider = NewRetryProvider(provider, rc)
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
