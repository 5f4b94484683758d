package services

import (
	"context"

	"github.com/google/uuid"
)

// Dispatcher schedules a pipeline run for a deployment. Implementations
// guarantee at most one concurrent run per deployment id.
type Dispatcher interface {
	Dispatch(ctx context.Context, deploymentID uuid.UUID) error
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(ctx context.Context, deploymentID uuid.UUID) error

func (f DispatcherFunc) Dispatch(ctx context.Context, deploymentID uuid.UUID) error {
	return f(ctx, deploymentID)
}

// RunTracker is implemented by dispatchers that know which runs are
// executing in this process.
type RunTracker interface {
	Running(deploymentID uuid.UUID) bool
}
