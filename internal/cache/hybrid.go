package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
)

// Store is a durable cache backend. Implementations may fail; Hybrid treats
// every failure as a miss.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Hybrid reads through a durable Store before the in-process LRU and writes to both.
// It degrades to LRU-only behavior whenever the store misbehaves.
type Hybrid[V any] struct {
	lru   *LRU[V]
	store Store
	ttl   time.Duration
}

// NewHybrid creates a hybrid cache; a nil store yields plain LRU behavior
func NewHybrid[V any](lru *LRU[V], store Store, ttl time.Duration) *Hybrid[V] {
	return &Hybrid[V]{lru: lru, store: store, ttl: ttl}
}

// Get tries the durable store first, then the LRU
func (h *Hybrid[V]) Get(ctx context.Context, key string) (V, bool) {
	if v, ok := h.getDurable(ctx, key); ok {
		return v, true
	}
	return h.lru.Get(key)
}

// Set writes value to the store and the LRU
func (h *Hybrid[V]) Set(ctx context.Context, key string, value V) {
	h.setDurable(ctx, key, value)
	h.lru.Set(key, value)
}

func (h *Hybrid[V]) getDurable(ctx context.Context, key string) (v V, ok bool) {
	if h.store == nil {
		return v, false
	}
	defer func() {
		if r := recover(); r != nil {
			log.Warn().Interface("panic", r).Msg("Durable cache get panicked, using LRU")
			ok = false
		}
	}()

	raw, found, err := h.store.Get(ctx, key)
	if err != nil {
		log.Debug().Err(err).Msg("Durable cache get failed, using LRU")
		return v, false
	}
	if !found {
		return v, false
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		log.Debug().Err(err).Msg("Durable cache value undecodable, using LRU")
		return v, false
	}
	return v, true
}

func (h *Hybrid[V]) setDurable(ctx context.Context, key string, value V) {
	if h.store == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Warn().Interface("panic", r).Msg("Durable cache set panicked")
		}
	}()

	raw, err := json.Marshal(value)
	if err != nil {
		log.Debug().Err(err).Msg("Durable cache value unencodable")
		return
	}
	if err := h.store.Set(ctx, key, raw, h.ttl); err != nil {
		log.Debug().Err(err).Msg("Durable cache set failed")
	}
}
