package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/stagehq/stagehand/pkg/domain"
)

// Store implements ports.RunStore in memory.
// Safe for concurrent use.
type Store struct {
	data map[string]*domain.RunResult
	mu   sync.RWMutex
}

// NewStore creates a new in-memory run store.
func NewStore() *Store {
	return &Store{
		data: make(map[string]*domain.RunResult),
	}
}

// Save persists the run result in memory.
func (s *Store) Save(ctx context.Context, runID string, result *domain.RunResult) error {
	copied := cloneResult(result)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[runID] = copied
	return nil
}

// Load retrieves the run result from memory.
func (s *Store) Load(ctx context.Context, runID string) (*domain.RunResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result, ok := s.data[runID]
	if !ok {
		return nil, fmt.Errorf("%w: run %q", domain.ErrNotFound, runID)
	}
	return cloneResult(result), nil
}

// Delete removes the run result.
func (s *Store) Delete(ctx context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, runID)
	return nil
}

// List returns stored run IDs.
func (s *Store) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs := make([]string, 0, len(s.data))
	for id := range s.data {
		runs = append(runs, id)
	}
	return runs, nil
}

// cloneResult copies the result so callers cannot mutate stored state
// through a retained pointer.
func cloneResult(result *domain.RunResult) *domain.RunResult {
	copied := *result
	copied.Samples = make([]domain.Sample, len(result.Samples))
	for i, sample := range result.Samples {
		copied.Samples[i] = sample.Clone()
	}
	if result.Metadata != nil {
		copied.Metadata = make(map[string]string, len(result.Metadata))
		for k, v := range result.Metadata {
			copied.Metadata[k] = v
		}
	}
	return &copied
}
