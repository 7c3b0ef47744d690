package trial

import (
	"context"
	"sync"
)

// DefaultLimit is the number of free analyses per installation before an
// account is required.
const DefaultLimit = 3

// Store abstracts the persisted per-installation counter so the gate is
// trivially mockable in tests.
type Store interface {
	Get(ctx context.Context, installID string) (int, error)
	Set(ctx context.Context, installID string, count int) error
}

// Gate tracks free-trial usage for anonymous installations. Authenticated
// callers bypass it entirely.
type Gate struct {
	store Store
	limit int
}

func New(store Store, limit int) *Gate {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Gate{store: store, limit: limit}
}

func (g *Gate) Limit() int { return g.limit }

// CanProceed reports whether the installation still has free analyses left.
func (g *Gate) CanProceed(ctx context.Context, installID string) (bool, error) {
	count, err := g.store.Get(ctx, installID)
	if err != nil {
		return false, err
	}
	return count < g.limit, nil
}

// RecordUsage increments and persists the counter, returning the new count.
// Callers must call it at most once per analysis attempt.
func (g *Gate) RecordUsage(ctx context.Context, installID string) (int, error) {
	count, err := g.store.Get(ctx, installID)
	if err != nil {
		return 0, err
	}
	count++
	if err := g.store.Set(ctx, installID, count); err != nil {
		return 0, err
	}
	return count, nil
}

// Status is the usage snapshot shown to the caller ("N essais gratuits").
type Status struct {
	Used      int `json:"used"`
	Limit     int `json:"limit"`
	Remaining int `json:"remaining"`
}

func (g *Gate) Status(ctx context.Context, installID string) (Status, error) {
	count, err := g.store.Get(ctx, installID)
	if err != nil {
		return Status{}, err
	}
	remaining := g.limit - count
	if remaining < 0 {
		remaining = 0
	}
	return Status{Used: count, Limit: g.limit, Remaining: remaining}, nil
}

// Reset zeroes the counter. Called exactly once, right after a successful
// authentication transition.
func (g *Gate) Reset(ctx context.Context, installID string) error {
	return g.store.Set(ctx, installID, 0)
}

// MemoryStore is a process-local Store. It backs tests and serves as the
// graceful fallback when no redis is reachable at startup.
type MemoryStore struct {
	mu     sync.Mutex
	counts map[string]int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{counts: make(map[string]int)}
}

func (m *MemoryStore) Get(_ context.Context, installID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[installID], nil
}

func (m *MemoryStore) Set(_ context.Context, installID string, count int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[installID] = count
	return nil
}
