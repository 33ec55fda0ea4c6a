// Package services – CollectionRegistry
//
// This file implements the CollectionRegistry, which owns the in-memory
// document collections backing each session. Collections are created lazily
// with the configured engine options on first use and dropped when the
// owning session is deleted; their contents are never persisted, so a
// dropped collection's documents are gone for good.
//
// The registry is safe for concurrent use by handlers and services.
package services

import (
	"sync"

	"github.com/tbourn/go-docqa-backend/internal/search"
)

// CollectionRegistry maps session IDs to their in-memory search collections.
type CollectionRegistry struct {
	mu    sync.RWMutex
	opts  []search.Option
	items map[string]*search.Collection
}

// NewCollectionRegistry returns a registry whose collections are built with
// the given engine options. The options are validated on first collection
// construction; pass options derived from a validated config to avoid
// surprises at request time.
func NewCollectionRegistry(opts ...search.Option) *CollectionRegistry {
	return &CollectionRegistry{
		opts:  opts,
		items: make(map[string]*search.Collection),
	}
}

// Get returns the collection for sessionID, or nil when the session has
// never stored a document.
func (r *CollectionRegistry) Get(sessionID string) *search.Collection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.items[sessionID]
}

// GetOrCreate returns the collection for sessionID, creating it with the
// registry's options if it does not exist yet.
func (r *CollectionRegistry) GetOrCreate(sessionID string) (*search.Collection, error) {
	r.mu.RLock()
	c := r.items[sessionID]
	r.mu.RUnlock()
	if c != nil {
		return c, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// Re-check under the write lock; another goroutine may have won the race.
	if c := r.items[sessionID]; c != nil {
		return c, nil
	}
	c, err := search.NewCollection(r.opts...)
	if err != nil {
		return nil, err
	}
	r.items[sessionID] = c
	return c, nil
}

// Drop removes the collection for sessionID, releasing its documents and
// index. Dropping an unknown session is a no-op.
func (r *CollectionRegistry) Drop(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, sessionID)
}

// Len reports how many sessions currently hold a collection.
func (r *CollectionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}
