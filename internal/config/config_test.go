package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func validConfig() *Config {
	return &Config{
		Embedding: EmbeddingConfig{Provider: "openai", APIKey: "key1"},
		Vector:    VectorConfig{Backend: "memory"},
		Rich:      RichConfig{Backend: "none"},
		Pipeline:  PipelineConfig{Workers: 4},
		Observability: ObservabilityConfig{
			SampleRate: 1.0,
		},
	}
}

func TestValidate_Clean(t *testing.T) {
	cfg := validConfig()
	warnings := cfg.Validate()
	if len(warnings) != 0 {
		t.Errorf("valid config should have no warnings, got %v", warnings)
	}
}

func TestValidate_MissingAPIKey(t *testing.T) {
	cfg := validConfig()
	cfg.Embedding.APIKey = ""
	warnings := cfg.Validate()
	found := false
	for _, w := range warnings {
		if strings.Contains(w, "api_key") {
			found = true
			break
		}
	}
	if !found {
		t.Error("expected warning about missing api_key")
	}
}

func TestValidate_NoneProvider(t *testing.T) {
	// "none" provider with no API key should not warn
	cfg := validConfig()
	cfg.Embedding.Provider = "none"
	cfg.Embedding.APIKey = ""
	warnings := cfg.Validate()
	for _, w := range warnings {
		if strings.Contains(w, "api_key") {
			t.Error("'none' provider should not warn about missing api_key")
		}
	}
}

func TestValidate_QdrantWithoutHost(t *testing.T) {
	cfg := validConfig()
	cfg.Vector = VectorConfig{Backend: "qdrant"}
	warnings := cfg.Validate()
	found := false
	for _, w := range warnings {
		if strings.Contains(w, "qdrant") {
			found = true
		}
	}
	if !found {
		t.Error("expected warning about qdrant host")
	}
}

func TestValidate_Neo4jWithoutURI(t *testing.T) {
	cfg := validConfig()
	cfg.Rich = RichConfig{Backend: "neo4j"}
	warnings := cfg.Validate()
	found := false
	for _, w := range warnings {
		if strings.Contains(w, "neo4j") {
			found = true
		}
	}
	if !found {
		t.Error("expected warning about neo4j uri")
	}
}

func TestValidate_SampleRate(t *testing.T) {
	tests := []struct {
		name string
		rate float64
		want bool // true = should warn
	}{
		{"zero", 0, false},
		{"half", 0.5, false},
		{"full", 1.0, false},
		{"negative", -0.1, true},
		{"too_high", 2.0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Observability.SampleRate = tt.rate
			warnings := cfg.Validate()
			hasWarn := false
			for _, w := range warnings {
				if strings.Contains(w, "sample_rate") {
					hasWarn = true
				}
			}
			if hasWarn != tt.want {
				t.Errorf("sample_rate=%.1f: hasWarn=%v, want=%v", tt.rate, hasWarn, tt.want)
			}
		})
	}
}

func TestValidate_Workers(t *testing.T) {
	cfg := validConfig()
	cfg.Pipeline.Workers = 0
	warnings := cfg.Validate()
	found := false
	for _, w := range warnings {
		if strings.Contains(w, "workers") {
			found = true
		}
	}
	if !found {
		t.Error("expected warning about workers below 1")
	}
}

func TestLoad_DefaultsAndFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vecsync.yaml")
	content := `
embedding:
  provider: openai
  api_key: test-key
vector:
  backend: qdrant
  host: localhost
rich:
  backend: memory
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Vector.Backend != "qdrant" {
		t.Errorf("expected vector backend qdrant, got %s", cfg.Vector.Backend)
	}
	if cfg.Vector.Host != "localhost" {
		t.Errorf("expected vector host localhost, got %s", cfg.Vector.Host)
	}
	// Defaults fill in unset fields.
	if cfg.Vector.Port != 6334 {
		t.Errorf("expected default port 6334, got %d", cfg.Vector.Port)
	}
	if cfg.Embedding.Model != "text-embedding-3-small" {
		t.Errorf("expected default embedding model, got %s", cfg.Embedding.Model)
	}
	if cfg.Pipeline.Workers != 4 {
		t.Errorf("expected default workers 4, got %d", cfg.Pipeline.Workers)
	}
	if cfg.Temporal.TaskQueue != "vecsync-reindex" {
		t.Errorf("expected default task queue, got %s", cfg.Temporal.TaskQueue)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/vecsync.yaml"); err == nil {
		t.Error("expected error for missing config file")
	}
}
