package store

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/atmx/payments-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu        sync.RWMutex
	runs      map[string]model.Run
	snapshots map[string][]model.Balance
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		runs:      make(map[string]model.Run),
		snapshots: make(map[string][]model.Balance),
	}
}

func (s *MemoryStore) SaveSnapshot(_ context.Context, run model.Run, balances []model.Balance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.runs[run.ID]; exists {
		return fmt.Errorf("snapshot for run %s already exists", run.ID)
	}

	// Store a copy to avoid external mutation.
	s.runs[run.ID] = run
	s.snapshots[run.ID] = slices.Clone(balances)
	return nil
}

// Snapshot returns the balances saved for a run.
func (s *MemoryStore) Snapshot(runID string) (model.Run, []model.Balance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[runID]
	if !ok {
		return model.Run{}, nil, fmt.Errorf("snapshot for run %s not found", runID)
	}
	return run, slices.Clone(s.snapshots[runID]), nil
}

func (s *MemoryStore) Close() error {
	return nil
}
