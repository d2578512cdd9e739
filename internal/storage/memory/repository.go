// Package memory — хранилище отметок в памяти процесса, для тестов и dry-run.
package memory

import (
	"context"
	"sync"

	"flatwatch/internal/storage"
)

type Repository struct {
	mu      sync.RWMutex
	markers map[int64]*storage.Marker
}

func NewRepository() *Repository {
	return &Repository{markers: make(map[int64]*storage.Marker)}
}

func (r *Repository) Exists(_ context.Context, id int64) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.markers[id]
	return ok, nil
}

func (r *Repository) Put(_ context.Context, m *storage.Marker) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.markers[m.Listing.ID]; ok {
		return false, nil
	}
	cp := *m
	r.markers[m.Listing.ID] = &cp
	return true, nil
}

// Len — число сохранённых отметок.
func (r *Repository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.markers)
}

func (r *Repository) Close() error {
	return nil
}
