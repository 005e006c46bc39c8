package ports

import (
	"context"

	"github.com/stagehq/stagehand/pkg/domain"
)

// Sink receives every measured sample, in sweep iteration order, while a run
// executes. Implementations must not block indefinitely: apply a timeout or
// bounded buffer and return domain.ErrSinkBackpressure instead of stalling
// hardware sequencing.
type Sink interface {
	Accept(ctx context.Context, sample domain.Sample) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, sample domain.Sample) error

func (f SinkFunc) Accept(ctx context.Context, sample domain.Sample) error {
	return f(ctx, sample)
}
