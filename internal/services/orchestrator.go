package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/ikon5387/ikon-systems-dashboard-v2-sub001/internal/metrics"
	"github.com/ikon5387/ikon-systems-dashboard-v2-sub001/internal/models"
	"github.com/ikon5387/ikon-systems-dashboard-v2-sub001/internal/pipeline"
	"github.com/ikon5387/ikon-systems-dashboard-v2-sub001/internal/repository"
	appErr "github.com/ikon5387/ikon-systems-dashboard-v2-sub001/pkg/errors"
	"github.com/ikon5387/ikon-systems-dashboard-v2-sub001/pkg/logger"
	"github.com/ikon5387/ikon-systems-dashboard-v2-sub001/pkg/utils"
	"go.uber.org/zap"
)

// Log messages written by the orchestrator.
const (
	msgStarted   = "Deployment started"
	msgCompleted = "Deployment completed successfully"
)

// Orchestrator drives one deployment through the pipeline and records the
// outcome. Callers must not run Execute concurrently for the same id; the
// dispatchers take care of that.
type Orchestrator struct {
	deployments repository.DeploymentRepository
	logs        repository.LogRepository
	runner      *pipeline.Runner
	metrics     *metrics.Metrics
	now         func() time.Time
}

func NewOrchestrator(deployments repository.DeploymentRepository, logs repository.LogRepository, runner *pipeline.Runner, m *metrics.Metrics) *Orchestrator {
	return &Orchestrator{
		deployments: deployments,
		logs:        logs,
		runner:      runner,
		metrics:     m,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Execute runs the pipeline for id. A stage failure is recorded on the
// deployment and is not an error; errors mean the run could not be
// started or its outcome could not be stored.
func (o *Orchestrator) Execute(ctx context.Context, id uuid.UUID) error {
	// bookkeeping writes must land even when the run is being cancelled
	store := context.WithoutCancel(ctx)

	skipped := false
	snapshot, err := o.deployments.Mutate(store, id, func(d *models.Deployment) error {
		switch d.Status {
		case models.StatusDeploying:
			return nil
		case models.StatusSuspended:
			// suspended after this run was scheduled
			skipped = true
			return nil
		}
		if !models.CanTransition(d.Status, models.StatusDeploying) {
			return appErr.InvalidStateTransition(string(d.Status), string(models.StatusDeploying))
		}
		d.Status = models.StatusDeploying
		return nil
	})
	if err != nil {
		return err
	}
	if skipped {
		logger.L().Info("pipeline run skipped for suspended deployment", logger.Deployment(id))
		return nil
	}

	log := logger.L().With(logger.Deployment(id), logger.Tenant(snapshot.TenantID))
	log.Info("pipeline run started", zap.Int("version", snapshot.Version))
	if _, err := o.logs.Append(store, id, models.LevelInfo, msgStarted, map[string]any{"version": snapshot.Version + 1}); err != nil {
		return err
	}

	runErr := o.runner.Run(ctx, snapshot)
	if runErr == nil {
		return o.succeed(store, snapshot)
	}

	o.metrics.PipelineRun(metrics.OutcomeFailure)
	failure, isStage := appErr.AsStageFailure(runErr)
	if isStage {
		log.Warn("pipeline run failed", logger.Stage(failure.Stage), zap.Error(failure.Cause))
	} else {
		log.Error("pipeline run aborted", zap.Error(runErr))
	}
	if err := o.fail(store, id); err != nil {
		return err
	}
	if isStage && failure == runErr {
		return nil
	}
	return runErr
}

func (o *Orchestrator) succeed(ctx context.Context, snapshot *models.Deployment) error {
	hash, err := utils.Fingerprint(snapshot.Config())
	if err != nil {
		return appErr.Wrap(err, appErr.CodeInternal, "fingerprint configuration failed")
	}

	now := o.now()
	d, err := o.deployments.Mutate(ctx, snapshot.ID, func(d *models.Deployment) error {
		if !models.CanTransition(d.Status, models.StatusActive) {
			return appErr.InvalidStateTransition(string(d.Status), string(models.StatusActive))
		}
		d.Status = models.StatusActive
		d.Environment = models.EnvironmentProduction
		if d.DeployedAt == nil {
			d.DeployedAt = &now
		}
		d.LastDeployedAt = &now
		d.Version++
		d.ConfigHash = hash
		return nil
	})
	if err != nil {
		return err
	}

	o.metrics.PipelineRun(metrics.OutcomeSuccess)
	logger.L().Info("pipeline run succeeded", logger.Deployment(d.ID), zap.Int("version", d.Version))
	_, err = o.logs.Append(ctx, d.ID, models.LevelInfo, msgCompleted, map[string]any{
		"version": d.Version,
		"domain":  d.Domain,
	})
	return err
}

func (o *Orchestrator) fail(ctx context.Context, id uuid.UUID) error {
	_, err := o.deployments.Mutate(ctx, id, func(d *models.Deployment) error {
		if !models.CanTransition(d.Status, models.StatusFailed) {
			return appErr.InvalidStateTransition(string(d.Status), string(models.StatusFailed))
		}
		d.Status = models.StatusFailed
		return nil
	})
	return err
}
