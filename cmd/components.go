package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/prcontext/internal/aiconnectors"
	"github.com/prcontext/internal/cache"
	"github.com/prcontext/internal/config"
	"github.com/prcontext/internal/contextbuilder"
	"github.com/prcontext/internal/pipeline"
	"github.com/prcontext/internal/rag"
	"github.com/prcontext/internal/rag/qdrantstore"
)

// closer releases resources acquired while building components
type closer func()

func noop() {}

// newEmbedder builds the configured embedding provider wrapped in the
// embedding cache. A cache database URL adds the durable Postgres tier.
func newEmbedder(ctx context.Context, cfg *config.Config) (rag.EmbeddingProvider, closer, error) {
	if err := config.ValidateEmbedding(cfg); err != nil {
		return nil, noop, err
	}

	opts := cfg.Embedding
	if opts.Dimensions == 0 {
		opts.Dimensions = cfg.RAG.Dimension
	}
	base, err := aiconnectors.NewEmbedder(ctx, opts)
	if err != nil {
		return nil, noop, err
	}

	lru := cache.NewLRU[[]float32](cfg.Cache.MaxSize, cfg.Cache.TTL)
	if cfg.Cache.DatabaseURL == "" {
		return rag.NewCachedEmbedder(base, cache.NewHybrid(lru, nil, cfg.Cache.TTL)), noop, nil
	}

	store, err := cache.OpenPostgresStore(ctx, cfg.Cache.DatabaseURL)
	if err != nil {
		log.Warn().Err(err).Msg("Durable embedding cache unavailable, using in-memory cache only")
		return rag.NewCachedEmbedder(base, cache.NewHybrid(lru, nil, cfg.Cache.TTL)), noop, nil
	}
	if err := store.EnsureSchema(ctx); err != nil {
		store.Close()
		return nil, noop, err
	}
	release := func() {
		if err := store.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close embedding cache store")
		}
	}
	return rag.NewCachedEmbedder(base, cache.NewHybrid[[]float32](lru, store, cfg.Cache.TTL)), release, nil
}

// newVectorIndex returns the configured vector index backend
func newVectorIndex(cfg *config.Config) (rag.VectorIndex, closer, error) {
	switch cfg.RAG.Backend {
	case "", "memory":
		return rag.NewMemoryIndex(), noop, nil
	case "qdrant":
		store, err := qdrantstore.New(cfg.Qdrant)
		if err != nil {
			return nil, noop, err
		}
		return store, func() { store.Close() }, nil
	default:
		return nil, noop, fmt.Errorf("unsupported rag backend %q", cfg.RAG.Backend)
	}
}

// persistentBackend reports whether indexed chunks outlive the process
func persistentBackend(cfg *config.Config) bool {
	return cfg.RAG.Backend == "qdrant"
}

// requirePersistentIndex rejects backends whose chunks vanish on exit
func requirePersistentIndex(cfg *config.Config) error {
	if persistentBackend(cfg) {
		return nil
	}
	backend := cfg.RAG.Backend
	if backend == "" {
		backend = "memory"
	}
	return fmt.Errorf("rag backend %q does not persist chunks; set rag.backend to qdrant", backend)
}

func newIndexer(cfg *config.Config, index rag.VectorIndex, embedder rag.EmbeddingProvider) (*rag.Indexer, error) {
	ic := rag.DefaultIndexerConfig()
	if cfg.RAG.Collection != "" {
		ic.Collection = cfg.RAG.Collection
	}
	ic.Dimension = cfg.RAG.Dimension
	ic.BatchSize = cfg.RAG.BatchSize
	ic.Concurrency = cfg.RAG.Concurrency
	ic.Pacing = cfg.RAG.Pacing

	if cfg.RAG.Redact {
		redactor, err := rag.NewRedactor()
		if err != nil {
			return nil, fmt.Errorf("failed to create secret redactor: %w", err)
		}
		ic.Redactor = redactor
	}
	return rag.NewIndexer(index, embedder, ic), nil
}

// newPipeline builds the review pipeline. retriever may be nil.
func newPipeline(cfg *config.Config, retriever contextbuilder.Retriever) *pipeline.Pipeline {
	layers := contextbuilder.DefaultLayers(retriever)
	if cfg.Context.Guardrails != "" {
		layers = append(layers, &contextbuilder.GuardrailsLayer{Text: cfg.Context.Guardrails})
	}
	for _, l := range layers {
		if rl, ok := l.(*contextbuilder.RAGLayer); ok && cfg.RAG.TopK > 0 {
			rl.Limit = cfg.RAG.TopK
		}
	}

	budgets := contextbuilder.DefaultBudgets()
	for model, n := range cfg.Context.Budgets {
		budgets[model] = n
	}

	return pipeline.New(pipeline.Options{
		MaxFiles:     cfg.Context.MaxFiles,
		MaxComments:  cfg.Context.MaxComments,
		DefaultModel: cfg.Context.DefaultModel,
		Budgets:      budgets,
		Assembler:    contextbuilder.NewAssembler(layers...),
	})
}

// readSource reads a file, or stdin when path is "-"
func readSource(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("no input file given")
	}
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return string(data), nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
