package terraform

import (
	"context"

	"github.com/google/uuid"
	"github.com/ikon5387/ikon-systems-dashboard-v2-sub001/internal/repository"
)

// StateStore persists terraform state between runs.
type StateStore interface {
	SaveState(ctx context.Context, deploymentID uuid.UUID, state []byte) error
	GetState(ctx context.Context, deploymentID uuid.UUID) ([]byte, error)
}

// RegistryStateStore keeps state on the deployment record.
type RegistryStateStore struct {
	deployments repository.DeploymentRepository
}

func NewRegistryStateStore(deployments repository.DeploymentRepository) *RegistryStateStore {
	return &RegistryStateStore{deployments: deployments}
}

func (s *RegistryStateStore) SaveState(ctx context.Context, deploymentID uuid.UUID, state []byte) error {
	return s.deployments.SaveInfraState(ctx, deploymentID, state)
}

func (s *RegistryStateStore) GetState(ctx context.Context, deploymentID uuid.UUID) ([]byte, error) {
	return s.deployments.GetInfraState(ctx, deploymentID)
}
