package rag

import (
	"context"
	"fmt"
	"strconv"

	"github.com/prcontext/internal/cache"
	"github.com/tmc/langchaingo/embeddings"
)

// EmbedOptions selects the model and vector size of an embedding request.
// Zero values mean the provider defaults.
type EmbedOptions struct {
	Model      string
	Dimensions int
}

// EmbeddingProvider turns text into vectors
type EmbeddingProvider interface {
	DefaultModel() string
	DefaultSize() int
	Embed(ctx context.Context, text string, opts EmbedOptions) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string, opts EmbedOptions) ([][]float32, error)
}

// LangchainEmbedder adapts a langchaingo embedder bound to a single model
type LangchainEmbedder struct {
	embedder embeddings.Embedder
	model    string
	size     int
}

// NewLangchainEmbedder wraps embedder, which must produce vectors of size for model
func NewLangchainEmbedder(embedder embeddings.Embedder, model string, size int) *LangchainEmbedder {
	return &LangchainEmbedder{embedder: embedder, model: model, size: size}
}

func (e *LangchainEmbedder) DefaultModel() string { return e.model }
func (e *LangchainEmbedder) DefaultSize() int     { return e.size }

func (e *LangchainEmbedder) Embed(ctx context.Context, text string, opts EmbedOptions) ([]float32, error) {
	if err := e.check(opts); err != nil {
		return nil, err
	}
	vec, err := e.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if e.size > 0 && len(vec) != e.size {
		return nil, fmt.Errorf("embedding size mismatch: got %d, want %d", len(vec), e.size)
	}
	return vec, nil
}

func (e *LangchainEmbedder) EmbedBatch(ctx context.Context, texts []string, opts EmbedOptions) ([][]float32, error) {
	if err := e.check(opts); err != nil {
		return nil, err
	}
	vecs, err := e.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed documents: %w", err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: got %d, want %d", len(vecs), len(texts))
	}
	return vecs, nil
}

func (e *LangchainEmbedder) check(opts EmbedOptions) error {
	if opts.Model != "" && opts.Model != e.model {
		return fmt.Errorf("embedding model %q not configured (have %q)", opts.Model, e.model)
	}
	if opts.Dimensions != 0 && e.size != 0 && opts.Dimensions != e.size {
		return fmt.Errorf("embedding size %d not supported by %q", opts.Dimensions, e.model)
	}
	return nil
}

// VectorCache is the process-wide memo used by CachedEmbedder
type VectorCache interface {
	Get(ctx context.Context, key string) ([]float32, bool)
	Set(ctx context.Context, key string, value []float32)
}

// CachedEmbedder memoizes single-text embeddings. Cache faults are misses.
type CachedEmbedder struct {
	EmbeddingProvider
	cache VectorCache
}

// NewCachedEmbedder wraps provider with c
func NewCachedEmbedder(provider EmbeddingProvider, c VectorCache) *CachedEmbedder {
	return &CachedEmbedder{EmbeddingProvider: provider, cache: c}
}

func (e *CachedEmbedder) Embed(ctx context.Context, text string, opts EmbedOptions) ([]float32, error) {
	key := e.key(text, opts)
	if vec, ok := e.cache.Get(ctx, key); ok {
		return vec, nil
	}
	vec, err := e.EmbeddingProvider.Embed(ctx, text, opts)
	if err != nil {
		return nil, err
	}
	e.cache.Set(ctx, key, vec)
	return vec, nil
}

func (e *CachedEmbedder) key(text string, opts EmbedOptions) string {
	model := opts.Model
	if model == "" {
		model = e.DefaultModel()
	}
	size := opts.Dimensions
	if size == 0 {
		size = e.DefaultSize()
	}
	return cache.Key("embedding", model, strconv.Itoa(size), text)
}
