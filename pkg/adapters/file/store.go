// Package file provides a filesystem-backed run store. Each run result is
// written as one JSON document under the root directory, which is enough to
// satisfy the "persist a labeled multi-dimensional sample" contract without
// prescribing an on-disk scientific format.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/stagehq/stagehand/pkg/domain"
)

// Store implements ports.RunStore on the local filesystem.
type Store struct {
	root string
}

// NewStore creates a store rooted at dir, creating it if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create run store root: %w", err)
	}
	return &Store{root: dir}, nil
}

func (s *Store) path(runID string) string {
	return filepath.Join(s.root, runID+".json")
}

// Save writes the result as a JSON document. An existing run is overwritten.
func (s *Store) Save(ctx context.Context, runID string, result *domain.RunResult) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("encode run %q: %w", runID, err)
	}
	tmp := s.path(runID) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write run %q: %w", runID, err)
	}
	return os.Rename(tmp, s.path(runID))
}

// Load reads a run result back.
func (s *Store) Load(ctx context.Context, runID string) (*domain.RunResult, error) {
	data, err := os.ReadFile(s.path(runID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: run %q", domain.ErrNotFound, runID)
		}
		return nil, fmt.Errorf("read run %q: %w", runID, err)
	}
	var result domain.RunResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("decode run %q: %w", runID, err)
	}
	return &result, nil
}

// Delete removes a stored run. Idempotent.
func (s *Store) Delete(ctx context.Context, runID string) error {
	err := os.Remove(s.path(runID))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete run %q: %w", runID, err)
	}
	return nil
}

// List returns the IDs of all stored runs.
func (s *Store) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	runs := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		runs = append(runs, strings.TrimSuffix(name, ".json"))
	}
	return runs, nil
}
