package embed

import (
	"context"
	"sync"
	"time"
)

// RateLimitConfig configures request rate limiting for embedding providers.
type RateLimitConfig struct {
	// RequestsPerMinute limits the number of API calls per minute (0 = unlimited)
	RequestsPerMinute int
	// BurstSize allows temporary burst above the rate limit
	BurstSize int
}

// DefaultRateLimitConfig returns sensible defaults for hosted embedding APIs.
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		RequestsPerMinute: 60,
		BurstSize:         5,
	}
}

// RateLimitProvider wraps a provider with a token-bucket request limiter.
type RateLimitProvider struct {
	inner  Provider
	config *RateLimitConfig

	mu         sync.Mutex
	tokens     int
	lastRefill time.Time
}

// NewRateLimitProvider creates a rate-limited provider wrapper.
func NewRateLimitProvider(inner Provider, config *RateLimitConfig) *RateLimitProvider {
	if config == nil {
		config = DefaultRateLimitConfig()
	}
	burst := config.BurstSize
	if burst <= 0 {
		burst = 1
	}
	return &RateLimitProvider{
		inner:      inner,
		config:     config,
		tokens:     burst,
		lastRefill: time.Now(),
	}
}

// Name returns the underlying provider name.
func (r *RateLimitProvider) Name() string {
	return r.inner.Name()
}

// Embed waits for rate limit clearance, then delegates to the inner provider.
func (r *RateLimitProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := r.waitForCapacity(ctx); err != nil {
		return nil, err
	}
	return r.inner.Embed(ctx, texts)
}

func (r *RateLimitProvider) waitForCapacity(ctx context.Context) error {
	for {
		r.mu.Lock()
		r.refillTokens()

		if r.config.RequestsPerMinute == 0 {
			r.mu.Unlock()
			return nil
		}
		if r.tokens > 0 {
			r.tokens--
			r.mu.Unlock()
			return nil
		}

		// Wait roughly one token's worth of time before checking again.
		perToken := time.Minute / time.Duration(r.config.RequestsPerMinute)
		r.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(perToken):
		}
	}
}

func (r *RateLimitProvider) refillTokens() {
	if r.config.RequestsPerMinute == 0 {
		return
	}
	now := time.Now()
	elapsed := now.Sub(r.lastRefill)

	add := int(elapsed.Minutes() * float64(r.config.RequestsPerMinute))
	if add > 0 {
		r.tokens += add
		burst := r.config.BurstSize
		if burst <= 0 {
			burst = 1
		}
		if r.tokens > burst {
			r.tokens = burst
		}
		r.lastRefill = now
	}
}
