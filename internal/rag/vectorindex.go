package rag

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
)

// ErrAlreadyExists is returned (possibly wrapped) when a collection or payload
// index is created twice
var ErrAlreadyExists = errors.New("already exists")

// ErrCollectionNotFound is returned when operating on a missing collection
var ErrCollectionNotFound = errors.New("collection not found")

// Distance is the similarity metric of a collection
type Distance string

const (
	DistanceCosine Distance = "cosine"
)

// PayloadType is the schema of a secondary payload index
type PayloadType string

const (
	PayloadKeyword PayloadType = "keyword"
	PayloadInteger PayloadType = "integer"
)

// Point is one stored vector and its payload
type Point struct {
	ID      string
	Vector  []float32
	Payload map[string]any
}

// ScoredPoint is a search hit
type ScoredPoint struct {
	ID      string
	Score   float32
	Payload map[string]any
}

// Condition matches a payload key against an exact value
type Condition struct {
	Key   string
	Value any
}

// Filter selects points matching every Must condition and no MustNot condition
type Filter struct {
	Must    []Condition
	MustNot []Condition
}

// VectorIndex is the similarity-search service the indexer and retriever use
type VectorIndex interface {
	CollectionExists(ctx context.Context, collection string) (bool, error)
	CreateCollection(ctx context.Context, collection string, dim int, distance Distance) error
	CreatePayloadIndex(ctx context.Context, collection, field string, typ PayloadType) error
	Upsert(ctx context.Context, collection string, points []Point) error
	Delete(ctx context.Context, collection string, filter Filter) error
	Search(ctx context.Context, collection string, vector []float32, filter Filter, limit int) ([]ScoredPoint, error)
}

type memCollection struct {
	dim     int
	points  map[string]Point
	indexes map[string]PayloadType
}

// MemoryIndex is an in-process VectorIndex using exhaustive cosine search
type MemoryIndex struct {
	mu          sync.RWMutex
	collections map[string]*memCollection
}

// NewMemoryIndex creates an empty index
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{collections: make(map[string]*memCollection)}
}

func (m *MemoryIndex) CollectionExists(_ context.Context, collection string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.collections[collection]
	return ok, nil
}

func (m *MemoryIndex) CreateCollection(_ context.Context, collection string, dim int, distance Distance) error {
	if distance != DistanceCosine {
		return fmt.Errorf("unsupported distance %q", distance)
	}
	if dim <= 0 {
		return fmt.Errorf("invalid dimension %d", dim)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.collections[collection]; ok {
		return fmt.Errorf("collection %s: %w", collection, ErrAlreadyExists)
	}
	m.collections[collection] = &memCollection{
		dim:     dim,
		points:  make(map[string]Point),
		indexes: make(map[string]PayloadType),
	}
	return nil
}

func (m *MemoryIndex) CreatePayloadIndex(_ context.Context, collection, field string, typ PayloadType) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.collections[collection]
	if !ok {
		return ErrCollectionNotFound
	}
	if _, ok := c.indexes[field]; ok {
		return fmt.Errorf("index %s: %w", field, ErrAlreadyExists)
	}
	c.indexes[field] = typ
	return nil
}

func (m *MemoryIndex) Upsert(_ context.Context, collection string, points []Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.collections[collection]
	if !ok {
		return ErrCollectionNotFound
	}
	for _, p := range points {
		if len(p.Vector) != c.dim {
			return fmt.Errorf("point %s: vector size %d, want %d", p.ID, len(p.Vector), c.dim)
		}
	}
	for _, p := range points {
		c.points[p.ID] = p
	}
	return nil
}

func (m *MemoryIndex) Delete(_ context.Context, collection string, filter Filter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.collections[collection]
	if !ok {
		return ErrCollectionNotFound
	}
	for id, p := range c.points {
		if filter.matches(p.Payload) {
			delete(c.points, id)
		}
	}
	return nil
}

func (m *MemoryIndex) Search(_ context.Context, collection string, vector []float32, filter Filter, limit int) ([]ScoredPoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.collections[collection]
	if !ok {
		return nil, ErrCollectionNotFound
	}
	if len(vector) != c.dim {
		return nil, fmt.Errorf("query vector size %d, want %d", len(vector), c.dim)
	}

	hits := make([]ScoredPoint, 0)
	for _, p := range c.points {
		if !filter.matches(p.Payload) {
			continue
		}
		hits = append(hits, ScoredPoint{ID: p.ID, Score: cosine(vector, p.Vector), Payload: p.Payload})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// Len returns the number of points in collection
func (m *MemoryIndex) Len(collection string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if c, ok := m.collections[collection]; ok {
		return len(c.points)
	}
	return 0
}

func (f Filter) matches(payload map[string]any) bool {
	for _, cond := range f.Must {
		if !valuesEqual(payload[cond.Key], cond.Value) {
			return false
		}
	}
	for _, cond := range f.MustNot {
		if valuesEqual(payload[cond.Key], cond.Value) {
			return false
		}
	}
	return true
}

func valuesEqual(a, b any) bool {
	if ai, ok := asInt64(a); ok {
		bi, ok := asInt64(b)
		return ok && ai == bi
	}
	return a == b
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint64:
		return int64(n), true
	}
	return 0, false
}

func cosine(a, b []float32) float32 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
