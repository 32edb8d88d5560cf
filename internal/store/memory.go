package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/JonMunkholm/loglens/internal/core"
)

// Memory is a process-local ResultStore. Readers get snapshot copies, so
// a List running alongside an Append sees the collection either before or
// after the new record, never a half-written one.
type Memory struct {
	mu      sync.RWMutex
	results []core.NormalizedResult
	byID    map[uuid.UUID]int
}

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{byID: make(map[uuid.UUID]int)}
}

// Append stores a copy of r.
func (m *Memory) Append(ctx context.Context, r core.NormalizedResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := r.Validate(); err != nil {
		return fmt.Errorf("append result: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.byID[r.ID]; exists {
		return fmt.Errorf("append result: duplicate id %s", r.ID)
	}
	m.byID[r.ID] = len(m.results)
	m.results = append(m.results, r.Clone())
	return nil
}

// List returns copies of every record in append order.
func (m *Memory) List(ctx context.Context) ([]core.NormalizedResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]core.NormalizedResult, len(m.results))
	for i, r := range m.results {
		out[i] = r.Clone()
	}
	return out, nil
}

// Get returns a copy of the record with the given ID.
func (m *Memory) Get(ctx context.Context, id uuid.UUID) (core.NormalizedResult, error) {
	if err := ctx.Err(); err != nil {
		return core.NormalizedResult{}, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	i, ok := m.byID[id]
	if !ok {
		return core.NormalizedResult{}, fmt.Errorf("get %s: %w", id, ErrNotFound)
	}
	return m.results[i].Clone(), nil
}

// Len reports how many records are stored.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.results)
}
