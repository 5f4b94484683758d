package services

import (
	"context"

	"github.com/ikon5387/ikon-systems-dashboard-v2-sub001/internal/models"
	"github.com/ikon5387/ikon-systems-dashboard-v2-sub001/internal/repository"
	appErr "github.com/ikon5387/ikon-systems-dashboard-v2-sub001/pkg/errors"
	"github.com/ikon5387/ikon-systems-dashboard-v2-sub001/pkg/logger"
	"go.uber.org/zap"
)

const msgResumed = "Pipeline resumed after restart"

// ResumeInFlight dispatches every deployment left pending or deploying by a
// previous process. It must only be called by the sole pipeline runner,
// before it accepts requests. It returns the number of runs scheduled.
func ResumeInFlight(ctx context.Context, deployments repository.DeploymentRepository, logs repository.LogRepository, dispatcher Dispatcher) (int, error) {
	stalled, err := deployments.ListByStatus(ctx, models.StatusPending, models.StatusDeploying)
	if err != nil {
		return 0, err
	}

	resumed := 0
	for _, d := range stalled {
		logger.L().Info("resuming interrupted pipeline", logger.Deployment(d.ID), zap.String("status", string(d.Status)))
		if _, err := logs.Append(ctx, d.ID, models.LevelInfo, msgResumed, map[string]any{"from": string(d.Status)}); err != nil {
			return resumed, err
		}
		if err := dispatcher.Dispatch(ctx, d.ID); err != nil {
			return resumed, appErr.Wrap(err, appErr.CodeUnavailable, "could not schedule deployment pipeline")
		}
		resumed++
	}
	return resumed, nil
}
