package ports

import (
	"context"

	"github.com/stagehq/stagehand/pkg/domain"
)

// RunStore persists run results keyed by run ID.
type RunStore interface {
	// Save persists the result for a given run ID.
	Save(ctx context.Context, runID string, result *domain.RunResult) error

	// Load retrieves the result for a given run ID.
	// Returns domain.ErrNotFound if the run does not exist.
	Load(ctx context.Context, runID string) (*domain.RunResult, error)

	// Delete removes the result for a given run ID.
	Delete(ctx context.Context, runID string) error

	// List returns the IDs of all stored runs.
	List(ctx context.Context) ([]string, error)
}
