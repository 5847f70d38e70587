package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	temporalclient "go.temporal.io/sdk/client"

	"github.com/efebarandurmaz/vecsync/internal/config"
	"github.com/efebarandurmaz/vecsync/internal/embed"
	openaiembed "github.com/efebarandurmaz/vecsync/internal/embed/openai"
	"github.com/efebarandurmaz/vecsync/internal/entityconf"
	"github.com/efebarandurmaz/vecsync/internal/observability"
	"github.com/efebarandurmaz/vecsync/internal/pipeline"
	"github.com/efebarandurmaz/vecsync/internal/rich"
	richmem "github.com/efebarandurmaz/vecsync/internal/rich/memory"
	richneo4j "github.com/efebarandurmaz/vecsync/internal/rich/neo4j"
	"github.com/efebarandurmaz/vecsync/internal/secrets"
	"github.com/efebarandurmaz/vecsync/internal/store"
	storemem "github.com/efebarandurmaz/vecsync/internal/store/memory"
	storeqdrant "github.com/efebarandurmaz/vecsync/internal/store/qdrant"
	temporalmod "github.com/efebarandurmaz/vecsync/internal/temporal"
)

func main() {
	configPath := "configs/vecsync.yaml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	ctx := context.Background()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	sm, err := secrets.NewManager(nil)
	if err != nil {
		log.Fatalf("secrets manager: %v", err)
	}

	registry := entityconf.NewRegistry()
	if err := entityconf.LoadIntoRegistry(cfg.EntityConfig, registry); err != nil {
		log.Fatalf("entity configs: %v", err)
	}

	factory := embed.NewFactory()
	openaiembed.Register(factory)

	apiKey := cfg.Embedding.APIKey
	if apiKey == "" {
		apiKey = sm.GetOrDefault(ctx, secrets.KeyEmbeddingAPIKey, "")
	}
	embedder, err := factory.Create(embed.ProviderConfig{
		Provider:          cfg.Embedding.Provider,
		APIKey:            apiKey,
		Model:             cfg.Embedding.Model,
		BaseURL:           cfg.Embedding.BaseURL,
		Timeout:           time.Duration(cfg.Embedding.TimeoutSeconds) * time.Second,
		MaxRetries:        cfg.Embedding.MaxRetries,
		RequestsPerMinute: cfg.Embedding.RequestsPerMinute,
	})
	if err != nil {
		log.Fatalf("embedding provider: %v", err)
	}

	var vectors store.Store
	switch cfg.Vector.Backend {
	case "memory", "":
		vectors = storemem.New()
	case "qdrant":
		vectors, err = storeqdrant.New(ctx, cfg.Vector.Host, cfg.Vector.Port, cfg.Vector.Collection, cfg.Embedding.Dimension)
		if err != nil {
			log.Fatalf("qdrant: %v", err)
		}
	default:
		log.Fatalf("unknown vector backend %q", cfg.Vector.Backend)
	}
	defer vectors.Close()

	var richStore rich.Store
	switch cfg.Rich.Backend {
	case "none", "":
	case "memory":
		richStore = richmem.New()
	case "neo4j":
		password := cfg.Rich.Password
		if password == "" {
			password = sm.GetOrDefault(ctx, secrets.KeyRichPassword, "")
		}
		richStore, err = richneo4j.New(ctx, cfg.Rich.URI, cfg.Rich.Username, password)
		if err != nil {
			log.Fatalf("neo4j: %v", err)
		}
		defer richStore.Close(ctx)
	default:
		log.Fatalf("unknown rich backend %q", cfg.Rich.Backend)
	}

	var audit *observability.AuditLogger
	if cfg.Observability.AuditLog != "" {
		audit, err = observability.NewAuditLogger(cfg.Observability.AuditLog)
		if err != nil {
			log.Fatalf("audit log: %v", err)
		}
		defer audit.Close()
	}

	indexer, err := pipeline.New(pipeline.Options{
		Registry:    registry,
		Embedder:    embedder,
		VectorStore: vectors,
		RichStore:   richStore,
		Logger:      slog.Default(),
		Audit:       audit,
		Workers:     cfg.Pipeline.Workers,
	})
	if err != nil {
		log.Fatalf("pipeline: %v", err)
	}

	temporalmod.SetDependencies(&temporalmod.Dependencies{
		Indexer: indexer,
		Audit:   audit,
	})

	c, err := temporalclient.Dial(temporalclient.Options{
		HostPort:  cfg.Temporal.Host,
		Namespace: cfg.Temporal.Namespace,
	})
	if err != nil {
		log.Fatalf("temporal client: %v", err)
	}
	defer c.Close()

	w, err := temporalmod.StartWorker(c, cfg.Temporal.TaskQueue)
	if err != nil {
		log.Fatalf("worker: %v", err)
	}

	fmt.Printf("Worker started on task queue: %s\n", cfg.Temporal.TaskQueue)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	w.Stop()
	fmt.Println("Worker stopped")
}
