package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.temporal.io/sdk/client"

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
	"github.com/efebarandurmaz/vecsync/internal/server"
	"github.com/efebarandurmaz/vecsync/internal/store"
	storemem "github.com/efebarandurmaz/vecsync/internal/store/memory"
	storeqdrant "github.com/efebarandurmaz/vecsync/internal/store/qdrant"
	"github.com/efebarandurmaz/vecsync/internal/temporal"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "vecsync",
		Short: "Entity vectorization and synchronized dual-store indexing",
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "configs/vecsync.yaml", "Config file path")

	var (
		entityType string
		entityJSON string
		entityID   string
		inputPath  string
		jsonOutput bool
	)

	indexCmd := &cobra.Command{
		Use:   "index",
		Short: "Index a single entity",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIndex(cmd.Context(), configPath, entityType, entityJSON, jsonOutput)
		},
	}
	indexCmd.Flags().StringVar(&entityType, "type", "", "Entity type")
	indexCmd.Flags().StringVar(&entityJSON, "entity", "", "Entity as a JSON object, or @path to a JSON file")
	indexCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output result as JSON")
	_ = indexCmd.MarkFlagRequired("type")
	_ = indexCmd.MarkFlagRequired("entity")

	batchCmd := &cobra.Command{
		Use:   "batch",
		Short: "Index a file of entities in one batch",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(cmd.Context(), configPath, entityType, inputPath, jsonOutput)
		},
	}
	batchCmd.Flags().StringVar(&entityType, "type", "", "Entity type")
	batchCmd.Flags().StringVar(&inputPath, "input", "", "JSON file holding an array of entities")
	batchCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output result as JSON")
	_ = batchCmd.MarkFlagRequired("type")
	_ = batchCmd.MarkFlagRequired("input")

	var (
		query     string
		limit     int
		threshold float64
	)
	searchCmd := &cobra.Command{
		Use:   "search",
		Short: "Similarity search over indexed entities",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd.Context(), configPath, query, entityType, limit, float32(threshold), jsonOutput)
		},
	}
	searchCmd.Flags().StringVar(&query, "query", "", "Natural-language search query")
	searchCmd.Flags().StringVar(&entityType, "type", "", "Restrict to one entity type")
	searchCmd.Flags().IntVar(&limit, "limit", pipeline.DefaultSearchLimit, "Maximum number of hits")
	searchCmd.Flags().Float64Var(&threshold, "threshold", 0, "Minimum similarity score")
	searchCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output hits as JSON")
	_ = searchCmd.MarkFlagRequired("query")

	removeCmd := &cobra.Command{
		Use:   "remove",
		Short: "Remove an entity from the index",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRemove(cmd.Context(), configPath, entityType, entityID)
		},
	}
	removeCmd.Flags().StringVar(&entityType, "type", "", "Entity type")
	removeCmd.Flags().StringVar(&entityID, "id", "", "Entity ID")
	_ = removeCmd.MarkFlagRequired("type")
	_ = removeCmd.MarkFlagRequired("id")

	existsCmd := &cobra.Command{
		Use:   "exists",
		Short: "Check whether an entity has a live record",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExists(cmd.Context(), configPath, entityType, entityID)
		},
	}
	existsCmd.Flags().StringVar(&entityType, "type", "", "Entity type")
	existsCmd.Flags().StringVar(&entityID, "id", "", "Entity ID")
	_ = existsCmd.MarkFlagRequired("type")
	_ = existsCmd.MarkFlagRequired("id")

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show index record counts per entity type",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(cmd.Context(), configPath, jsonOutput)
		},
	}
	statsCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output stats as JSON")

	var clearAll bool
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove records for one entity type, or everything",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClear(cmd.Context(), configPath, entityType, clearAll)
		},
	}
	clearCmd.Flags().StringVar(&entityType, "type", "", "Entity type to clear")
	clearCmd.Flags().BoolVar(&clearAll, "all", false, "Clear every record of every type")

	var (
		chunkSize  int
		clearFirst bool
	)
	reindexCmd := &cobra.Command{
		Use:   "reindex",
		Short: "Run a chunked reindex workflow through Temporal",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReindex(cmd.Context(), configPath, entityType, inputPath, chunkSize, clearFirst)
		},
	}
	reindexCmd.Flags().StringVar(&entityType, "type", "", "Entity type")
	reindexCmd.Flags().StringVar(&inputPath, "input", "", "JSON file holding an array of entities")
	reindexCmd.Flags().IntVar(&chunkSize, "chunk", 100, "Entities per workflow activity")
	reindexCmd.Flags().BoolVar(&clearFirst, "clear", false, "Clear existing records of the type first")
	_ = reindexCmd.MarkFlagRequired("type")
	_ = reindexCmd.MarkFlagRequired("input")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve health and metrics endpoints until shutdown",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath)
		},
	}

	rootCmd.AddCommand(indexCmd, batchCmd, searchCmd, removeCmd, existsCmd, statsCmd, clearCmd, reindexCmd, serveCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// app bundles everything a command needs, plus a close func for teardown.
type app struct {
	cfg     *config.Config
	indexer *pipeline.Indexer
	vectors store.Store
	rich    rich.Store
	richNeo *richneo4j.Store
	audit   *observability.AuditLogger
	metrics *observability.MetricsRegistry
	tracing *observability.TracerProvider
}

func (a *app) close(ctx context.Context) {
	if a.rich != nil {
		if err := a.rich.Close(ctx); err != nil {
			slog.Warn("closing rich store", "error", err)
		}
	}
	if a.vectors != nil {
		if err := a.vectors.Close(); err != nil {
			slog.Warn("closing vector store", "error", err)
		}
	}
	if a.audit != nil {
		_ = a.audit.Close()
	}
	if a.tracing != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.tracing.Shutdown(shutdownCtx)
	}
}

// buildApp loads config and wires the full pipeline.
func buildApp(ctx context.Context, configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	setupLogging(cfg.Log)

	sm, err := secrets.NewManager(nil)
	if err != nil {
		return nil, fmt.Errorf("secrets manager: %w", err)
	}

	tracing, err := observability.InitTracing(ctx, &observability.TracingConfig{
		ServiceName:    "vecsync",
		ServiceVersion: "0.1.0",
		Environment:    cfg.Observability.Environment,
		OTLPEndpoint:   cfg.Observability.OTLPEndpoint,
		SampleRate:     cfg.Observability.SampleRate,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	registry := entityconf.NewRegistry()
	if err := entityconf.LoadIntoRegistry(cfg.EntityConfig, registry); err != nil {
		return nil, fmt.Errorf("load entity configs: %w", err)
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
		return nil, fmt.Errorf("creating embedding provider: %w", err)
	}

	a := &app{cfg: cfg, tracing: tracing}

	switch cfg.Vector.Backend {
	case "memory", "":
		a.vectors = storemem.New()
	case "qdrant":
		qs, err := storeqdrant.New(ctx, cfg.Vector.Host, cfg.Vector.Port, cfg.Vector.Collection, cfg.Embedding.Dimension)
		if err != nil {
			return nil, fmt.Errorf("connecting to qdrant: %w", err)
		}
		a.vectors = qs
	default:
		return nil, fmt.Errorf("unknown vector backend %q", cfg.Vector.Backend)
	}

	switch cfg.Rich.Backend {
	case "none", "":
		// Vector store only; search hits stay unenriched.
	case "memory":
		a.rich = richmem.New()
	case "neo4j":
		password := cfg.Rich.Password
		if password == "" {
			password = sm.GetOrDefault(ctx, secrets.KeyRichPassword, "")
		}
		ns, err := richneo4j.New(ctx, cfg.Rich.URI, cfg.Rich.Username, password)
		if err != nil {
			return nil, fmt.Errorf("connecting to neo4j: %w", err)
		}
		a.rich = ns
		a.richNeo = ns
	default:
		return nil, fmt.Errorf("unknown rich backend %q", cfg.Rich.Backend)
	}

	if cfg.Observability.AuditLog != "" {
		audit, err := observability.NewAuditLogger(cfg.Observability.AuditLog)
		if err != nil {
			return nil, fmt.Errorf("open audit log: %w", err)
		}
		a.audit = audit
	}

	a.metrics = observability.NewMetricsRegistry()

	indexer, err := pipeline.New(pipeline.Options{
		Registry:    registry,
		Embedder:    embedder,
		VectorStore: a.vectors,
		RichStore:   a.rich,
		Logger:      slog.Default(),
		Metrics:     observability.NewIndexingMetrics(a.metrics),
		Audit:       a.audit,
		Workers:     cfg.Pipeline.Workers,
	})
	if err != nil {
		return nil, err
	}
	a.indexer = indexer
	return a, nil
}

func setupLogging(cfg config.LogConfig) {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
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
	if strings.ToLower(cfg.Format) == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func loadEntityArg(arg string) (map[string]any, error) {
	raw := []byte(arg)
	if strings.HasPrefix(arg, "@") {
		data, err := os.ReadFile(strings.TrimPrefix(arg, "@"))
		if err != nil {
			return nil, fmt.Errorf("read entity file: %w", err)
		}
		raw = data
	}
	var entity map[string]any
	if err := json.Unmarshal(raw, &entity); err != nil {
		return nil, fmt.Errorf("parse entity JSON: %w", err)
	}
	return entity, nil
}

func runIndex(ctx context.Context, configPath, entityType, entityJSON string, jsonOutput bool) error {
	a, err := buildApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.close(ctx)

	entity, err := loadEntityArg(entityJSON)
	if err != nil {
		return err
	}

	vectorID, err := a.indexer.Upsert(ctx, entityType, entity)
	if err != nil {
		return err
	}

	if jsonOutput {
		out, _ := json.Marshal(map[string]string{"vector_id": vectorID})
		fmt.Println(string(out))
		return nil
	}
	if vectorID == "" {
		fmt.Println("Skipped: entity produced no searchable content")
	} else {
		fmt.Printf("Indexed: %s\n", vectorID)
	}
	return nil
}

func runBatch(ctx context.Context, configPath, entityType, inputPath string, jsonOutput bool) error {
	a, err := buildApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.close(ctx)

	data, err := os.ReadFile(inputPath)
	if err != nil {
		return fmt.Errorf("read input file: %w", err)
	}
	var raw []map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parse input file: %w", err)
	}
	entities := make([]any, len(raw))
	for i, e := range raw {
		entities[i] = e
	}

	result, err := a.indexer.BatchUpsert(ctx, entityType, entities)
	if err != nil {
		return err
	}

	if jsonOutput {
		out, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(out))
		return nil
	}
	fmt.Printf("Stored: %d  Skipped: %d  Failed: %d\n", result.Stored, result.Skipped, len(result.Failures))
	for _, f := range result.Failures {
		fmt.Printf("  [FAIL] entity %d (%s): %v\n", f.Index, f.EntityID, f.Err)
	}
	return nil
}

func runSearch(ctx context.Context, configPath, query, entityType string, limit int, threshold float32, jsonOutput bool) error {
	a, err := buildApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.close(ctx)

	hits, err := a.indexer.Search(ctx, pipeline.SearchRequest{
		Query:      query,
		EntityType: entityType,
		Limit:      limit,
		Threshold:  threshold,
	})
	if err != nil {
		return err
	}

	if jsonOutput {
		out, _ := json.MarshalIndent(hits, "", "  ")
		fmt.Println(string(out))
		return nil
	}
	if len(hits) == 0 {
		fmt.Println("No matches")
		return nil
	}
	for i, hit := range hits {
		fmt.Printf("%2d. [%.3f] %s/%s\n", i+1, hit.Score, hit.EntityType, hit.EntityID)
		fmt.Printf("    %s\n", hit.Content)
		if hit.Enriched && hit.Analysis != "" {
			fmt.Printf("    %s\n", hit.Analysis)
		}
	}
	return nil
}

func runRemove(ctx context.Context, configPath, entityType, entityID string) error {
	a, err := buildApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.close(ctx)

	removed, err := a.indexer.Remove(ctx, entityType, entityID)
	if err != nil {
		return err
	}
	if removed {
		fmt.Printf("Removed %s/%s\n", entityType, entityID)
	} else {
		fmt.Printf("No record for %s/%s\n", entityType, entityID)
	}
	return nil
}

func runExists(ctx context.Context, configPath, entityType, entityID string) error {
	a, err := buildApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.close(ctx)

	exists, err := a.indexer.Exists(ctx, entityType, entityID)
	if err != nil {
		return err
	}
	fmt.Println(exists)
	return nil
}

func runStats(ctx context.Context, configPath string, jsonOutput bool) error {
	a, err := buildApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.close(ctx)

	stats, err := a.indexer.Stats(ctx)
	if err != nil {
		return err
	}

	if jsonOutput {
		out, _ := json.MarshalIndent(stats, "", "  ")
		fmt.Println(string(out))
		return nil
	}
	fmt.Printf("Backend: %s\n", stats.Backend)
	fmt.Printf("Total records: %d\n", stats.Total)
	for entityType, count := range stats.ByEntityType {
		fmt.Printf("  %-20s %d\n", entityType, count)
	}
	if stats.RichEnabled {
		fmt.Printf("Rich store records: %d\n", stats.RichCount)
	}
	return nil
}

func runClear(ctx context.Context, configPath, entityType string, clearAll bool) error {
	if entityType == "" && !clearAll {
		return fmt.Errorf("either --type or --all is required")
	}

	a, err := buildApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.close(ctx)

	if clearAll {
		if err := a.indexer.ClearAll(ctx); err != nil {
			return err
		}
		fmt.Println("Cleared all records")
		return nil
	}

	removed, err := a.indexer.ClearEntityType(ctx, entityType)
	if err != nil {
		return err
	}
	fmt.Printf("Cleared %d records of type %s\n", removed, entityType)
	return nil
}

func runReindex(ctx context.Context, configPath, entityType, inputPath string, chunkSize int, clearFirst bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	setupLogging(cfg.Log)

	c, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.Host,
		Namespace: cfg.Temporal.Namespace,
	})
	if err != nil {
		return fmt.Errorf("connecting to Temporal: %w", err)
	}
	defer c.Close()

	run, err := c.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        fmt.Sprintf("reindex-%s-%d", entityType, time.Now().Unix()),
		TaskQueue: cfg.Temporal.TaskQueue,
	}, temporal.ReindexWorkflow, temporal.ReindexInput{
		EntityType: entityType,
		InputPath:  inputPath,
		ChunkSize:  chunkSize,
		ClearFirst: clearFirst,
	})
	if err != nil {
		return fmt.Errorf("starting reindex workflow: %w", err)
	}
	fmt.Printf("Started workflow %s\n", run.GetID())

	var output temporal.ReindexOutput
	if err := run.Get(ctx, &output); err != nil {
		return fmt.Errorf("reindex workflow: %w", err)
	}

	fmt.Printf("Reindexed %s: total=%d stored=%d skipped=%d failed=%d cleared=%d\n",
		entityType, output.Total, output.Stored, output.Skipped, output.Failed, output.Cleared)
	for _, e := range output.Errors {
		fmt.Printf("  [FAIL] %s\n", e)
	}
	return nil
}

func runServe(ctx context.Context, configPath string) error {
	a, err := buildApp(ctx, configPath)
	if err != nil {
		return err
	}

	g := server.NewGracefulServer(&server.HealthConfig{Version: "0.1.0"}, nil)

	g.Health.MountMetrics(a.metrics.Handler())
	g.Health.RegisterCheck("vector-store", server.VectorStoreHealthChecker(a.vectors.Type(), a.vectors.Count))
	if a.richNeo != nil {
		g.Health.RegisterCheck("rich-store", server.RichStoreHealthChecker("neo4j", a.richNeo.Ping))
	}
	g.Health.RegisterCheck("embedder", server.EmbedderHealthChecker(a.cfg.Embedding.Provider, nil))

	hook := server.VectorStoreShutdownHook(a.vectors.Close)
	g.RegisterHook(hook.Name, hook.Priority, hook.Fn)
	if a.rich != nil {
		hook := server.RichStoreShutdownHook(a.rich.Close)
		g.RegisterHook(hook.Name, hook.Priority, hook.Fn)
	}
	if a.audit != nil {
		hook := server.AuditLoggerShutdownHook(a.audit.Close)
		g.RegisterHook(hook.Name, hook.Priority, hook.Fn)
	}
	hook = server.TracingShutdownHook(a.tracing.Shutdown)
	g.RegisterHook(hook.Name, hook.Priority, hook.Fn)

	if err := g.Start(a.cfg.Server.Addr); err != nil {
		return err
	}
	slog.Info("serving health and metrics", "addr", a.cfg.Server.Addr)
	g.Wait()
	return nil
}
