// Package config loads application configuration from file and environment.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Embedding     EmbeddingConfig     `mapstructure:"embedding"`
	Vector        VectorConfig        `mapstructure:"vector"`
	Rich          RichConfig          `mapstructure:"rich"`
	Pipeline      PipelineConfig      `mapstructure:"pipeline"`
	Temporal      TemporalConfig      `mapstructure:"temporal"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Server        ServerConfig        `mapstructure:"server"`
	Log           LogConfig           `mapstructure:"log"`

	// EntityConfig is the path to the entity-type configuration file.
	EntityConfig string `mapstructure:"entity_config"`
}

// EmbeddingConfig selects and tunes the embedding provider.
type EmbeddingConfig struct {
	Provider          string `mapstructure:"provider"`
	Model             string `mapstructure:"model"`
	APIKey            string `mapstructure:"api_key"`
	BaseURL           string `mapstructure:"base_url"`
	TimeoutSeconds    int    `mapstructure:"timeout_seconds"`
	MaxRetries        int    `mapstructure:"max_retries"`
	RequestsPerMinute int    `mapstructure:"requests_per_minute"`
	Dimension         int    `mapstructure:"dimension"`
}

// VectorConfig selects the vector store backend.
type VectorConfig struct {
	Backend    string `mapstructure:"backend"` // "memory" or "qdrant"
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	Collection string `mapstructure:"collection"`
}

// RichConfig selects the optional rich store backend.
type RichConfig struct {
	Backend  string `mapstructure:"backend"` // "none", "memory", or "neo4j"
	URI      string `mapstructure:"uri"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// PipelineConfig tunes the indexing pipeline.
type PipelineConfig struct {
	Workers         int     `mapstructure:"workers"`
	SearchLimit     int     `mapstructure:"search_limit"`
	SearchThreshold float64 `mapstructure:"search_threshold"`
}

type TemporalConfig struct {
	Host      string `mapstructure:"host"`
	Namespace string `mapstructure:"namespace"`
	TaskQueue string `mapstructure:"task_queue"`
}

// ObservabilityConfig configures tracing and audit logging.
type ObservabilityConfig struct {
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	SampleRate   float64 `mapstructure:"sample_rate"`
	AuditLog     string  `mapstructure:"audit_log"`
	Environment  string  `mapstructure:"environment"`
}

// ServerConfig configures the health and metrics HTTP server.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Validate checks configuration for issues and returns warnings.
func (c *Config) Validate() []string {
	var warnings []string

	// Check for empty API key with active provider (skip "none" provider)
	if c.Embedding.Provider != "" && c.Embedding.Provider != "none" && c.Embedding.APIKey == "" {
		warnings = append(warnings, fmt.Sprintf("embedding provider '%s' is configured but api_key is empty", c.Embedding.Provider))
	}

	if c.Vector.Backend == "qdrant" && c.Vector.Host == "" {
		warnings = append(warnings, "vector backend 'qdrant' is configured but host is empty")
	}

	if c.Rich.Backend == "neo4j" && c.Rich.URI == "" {
		warnings = append(warnings, "rich backend 'neo4j' is configured but uri is empty")
	}

	if c.Pipeline.Workers < 1 {
		warnings = append(warnings, fmt.Sprintf("pipeline workers %d is below 1, the default will apply", c.Pipeline.Workers))
	}

	if c.Observability.SampleRate < 0 || c.Observability.SampleRate > 1.0 {
		warnings = append(warnings, fmt.Sprintf("trace sample_rate %.2f is outside range [0.0, 1.0]", c.Observability.SampleRate))
	}

	return warnings
}

// Load reads configuration from file and environment.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("VECSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("embedding.provider", "openai")
	v.SetDefault("embedding.model", "text-embedding-3-small")
	v.SetDefault("embedding.timeout_seconds", 30)
	v.SetDefault("embedding.max_retries", 3)
	v.SetDefault("embedding.dimension", 1536)
	v.SetDefault("vector.backend", "memory")
	v.SetDefault("vector.port", 6334)
	v.SetDefault("vector.collection", "entities")
	v.SetDefault("rich.backend", "none")
	v.SetDefault("pipeline.workers", 4)
	v.SetDefault("pipeline.search_limit", 10)
	v.SetDefault("temporal.host", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "vecsync-reindex")
	v.SetDefault("observability.sample_rate", 1.0)
	v.SetDefault("observability.environment", "development")
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("entity_config", "configs/entities.yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	// Validate configuration and print warnings
	if warnings := cfg.Validate(); len(warnings) > 0 {
		for _, warning := range warnings {
			fmt.Fprintf(os.Stderr, "Warning: %s\n", warning)
		}
	}

	return &cfg, nil
}
