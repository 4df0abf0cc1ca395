package rag

import (
	"context"
	"fmt"
	"sort"
)

// Match is a retrieved chunk
type Match struct {
	File      string  `json:"file"`
	Content   string  `json:"content"`
	Score     float32 `json:"score"`
	StartLine int     `json:"startLine,omitempty"`
	EndLine   int     `json:"endLine,omitempty"`
}

// Retriever runs repository-scoped similarity search
type Retriever struct {
	index      VectorIndex
	embedder   EmbeddingProvider
	collection string
	dimension  int
}

// NewRetriever creates a retriever over collection. A zero dimension uses the
// embedder's default size.
func NewRetriever(index VectorIndex, embedder EmbeddingProvider, collection string, dimension int) *Retriever {
	if collection == "" {
		collection = DefaultCollection
	}
	if dimension <= 0 {
		dimension = embedder.DefaultSize()
	}
	return &Retriever{index: index, embedder: embedder, collection: collection, dimension: dimension}
}

// Retrieve returns up to limit chunks of repoID most similar to query, best
// first. A missing collection yields no matches and no error.
func (r *Retriever) Retrieve(ctx context.Context, repoID int64, query string, limit int) ([]Match, error) {
	exists, err := r.index.CollectionExists(ctx, r.collection)
	if err != nil {
		return nil, fmt.Errorf("check collection %s: %w", r.collection, err)
	}
	if !exists || limit <= 0 {
		return []Match{}, nil
	}

	vec, err := r.embedder.Embed(ctx, query, EmbedOptions{Model: r.embedder.DefaultModel(), Dimensions: r.dimension})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	hits, err := r.index.Search(ctx, r.collection, vec, Filter{
		Must: []Condition{{Key: PayloadRepoID, Value: repoID}},
	}, limit)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", r.collection, err)
	}

	matches := make([]Match, 0, len(hits))
	for _, h := range hits {
		matches = append(matches, Match{
			File:      payloadString(h.Payload, PayloadFile),
			Content:   payloadString(h.Payload, PayloadContent),
			Score:     h.Score,
			StartLine: payloadInt(h.Payload, PayloadStartLine),
			EndLine:   payloadInt(h.Payload, PayloadEndLine),
		})
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func payloadString(p map[string]any, key string) string {
	s, _ := p[key].(string)
	return s
}

func payloadInt(p map[string]any, key string) int {
	if n, ok := asInt64(p[key]); ok {
		return int(n)
	}
	if f, ok := p[key].(float64); ok {
		return int(f)
	}
	return 0
}
