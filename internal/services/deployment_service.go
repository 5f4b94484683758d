package services

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/ikon5387/ikon-systems-dashboard-v2-sub001/internal/catalog"
	"github.com/ikon5387/ikon-systems-dashboard-v2-sub001/internal/models"
	"github.com/ikon5387/ikon-systems-dashboard-v2-sub001/internal/repository"
	appErr "github.com/ikon5387/ikon-systems-dashboard-v2-sub001/pkg/errors"
	"github.com/ikon5387/ikon-systems-dashboard-v2-sub001/pkg/logger"
	"go.uber.org/zap"
)

// Log messages written by lifecycle operations.
const (
	msgCreated        = "Deployment created"
	msgRedeploy       = "Redeploy requested"
	msgSuspended      = "Deployment suspended"
	msgActivated      = "Deployment activated"
	msgConfigUpdated  = "Configuration updated"
	msgDispatchFailed = "Pipeline could not be scheduled"
)

// DeploymentService is the public surface of the engine.
type DeploymentService interface {
	CreateDeployment(ctx context.Context, input CreateDeploymentInput) (*models.Deployment, error)
	RedeployApp(ctx context.Context, deploymentID uuid.UUID) error
	SuspendDeployment(ctx context.Context, deploymentID uuid.UUID) error
	ActivateDeployment(ctx context.Context, deploymentID uuid.UUID) error
	UpdateDeploymentConfig(ctx context.Context, deploymentID uuid.UUID, patch models.ConfigPatch) error

	GetDeploymentTemplates(ctx context.Context) []catalog.Template
	GetDeploymentTemplate(ctx context.Context, templateID string) (catalog.Template, error)
	GetDeployments(ctx context.Context, tenantID string) ([]models.Deployment, error)
	GetDeployment(ctx context.Context, deploymentID uuid.UUID) (*models.Deployment, error)
	GetDeploymentLogs(ctx context.Context, deploymentID uuid.UUID) ([]models.DeploymentLog, error)
	CheckDeploymentHealth(ctx context.Context, deploymentID uuid.UUID) (*HealthResult, error)
}

type CreateDeploymentInput struct {
	TenantID   string             `json:"tenant_id" validate:"required,max=64"`
	TemplateID string             `json:"template_id" validate:"required,max=64"`
	AppName    string             `json:"app_name,omitempty" validate:"omitempty,max=128"`
	Config     models.ConfigPatch `json:"config"`
}

var validate = validator.New()

type deploymentService struct {
	catalog     *catalog.Catalog
	deployments repository.DeploymentRepository
	logs        repository.LogRepository
	dispatcher  Dispatcher
	health      HealthService
}

var _ DeploymentService = (*deploymentService)(nil)

func NewDeploymentService(
	templates *catalog.Catalog,
	deployments repository.DeploymentRepository,
	logs repository.LogRepository,
	dispatcher Dispatcher,
	health HealthService,
) DeploymentService {
	return &deploymentService{
		catalog:     templates,
		deployments: deployments,
		logs:        logs,
		dispatcher:  dispatcher,
		health:      health,
	}
}

func (s *deploymentService) CreateDeployment(ctx context.Context, input CreateDeploymentInput) (*models.Deployment, error) {
	logger.L().Info("create deployment", logger.Tenant(input.TenantID), zap.String("template_id", input.TemplateID))

	if err := validate.Struct(input); err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInvalid, "invalid deployment request")
	}
	tpl, err := s.catalog.Get(input.TemplateID)
	if err != nil {
		return nil, err
	}

	// explicit empty values in the request clear template defaults
	settings := input.Config.Apply(tpl.Settings())

	d := &models.Deployment{
		TenantID:   input.TenantID,
		TemplateID: tpl.ID,
		AppName:    appName(input.AppName, settings.Branding.CompanyName, tpl.Name),
	}
	d.SetConfig(settings)
	if err := s.deployments.Create(ctx, d); err != nil {
		return nil, err
	}

	if _, err := s.logs.Append(ctx, d.ID, models.LevelInfo, msgCreated, map[string]any{
		"template_id": tpl.ID,
		"subdomain":   d.Subdomain,
	}); err != nil {
		return nil, err
	}
	if err := s.dispatch(ctx, d.ID, true); err != nil {
		return nil, err
	}

	logger.L().Info("deployment created", logger.Deployment(d.ID), logger.Tenant(d.TenantID), zap.String("domain", d.Domain))
	return d, nil
}

func appName(requested, company, template string) string {
	switch {
	case requested != "":
		return requested
	case company != "":
		return fmt.Sprintf("%s %s", company, template)
	default:
		return template
	}
}

// dispatch hands the deployment to the dispatcher. When this call moved the
// record into flight (owned) and the run can never happen, the deployment
// is failed rather than left in flight. Otherwise a run already owns the
// record and only a warning is logged.
func (s *deploymentService) dispatch(ctx context.Context, id uuid.UUID, owned bool) error {
	err := s.dispatcher.Dispatch(ctx, id)
	if err == nil {
		return nil
	}
	logger.L().Error("dispatch failed", logger.Deployment(id), zap.Error(err), zap.Bool("owned", owned))

	store := context.WithoutCancel(ctx)
	level := models.LevelWarning
	var merr error
	if owned {
		level = models.LevelError
		_, merr = s.deployments.Mutate(store, id, func(d *models.Deployment) error {
			if models.CanTransition(d.Status, models.StatusFailed) {
				d.Status = models.StatusFailed
			}
			return nil
		})
	}
	if merr == nil {
		_, merr = s.logs.Append(store, id, level, msgDispatchFailed, map[string]any{"error": err.Error()})
	}
	if merr != nil {
		logger.L().Error("could not record dispatch failure", logger.Deployment(id), zap.Error(merr))
	}
	return appErr.Wrap(err, appErr.CodeUnavailable, "could not schedule deployment pipeline")
}

// idle reports whether the dispatcher knows that no run for id executes in
// this process. Dispatchers that cannot tell are never idle.
func (s *deploymentService) idle(id uuid.UUID) bool {
	tracker, ok := s.dispatcher.(RunTracker)
	return ok && !tracker.Running(id)
}

// RedeployApp reruns the pipeline. It is rejected while a run is in
// flight, unless the record is in flight but no run exists to finish it,
// such as after a failed write between accept and dispatch.
func (s *deploymentService) RedeployApp(ctx context.Context, deploymentID uuid.UUID) error {
	logger.L().Info("redeploy requested", logger.Deployment(deploymentID))

	stalled := s.idle(deploymentID)
	var from models.Status
	_, err := s.deployments.Mutate(ctx, deploymentID, func(d *models.Deployment) error {
		from = d.Status
		if d.Status.InFlight() {
			if !stalled {
				return appErr.InvalidStateTransition(string(d.Status), string(models.StatusDeploying))
			}
			d.Status = models.StatusDeploying
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
	if _, err := s.logs.Append(ctx, deploymentID, models.LevelInfo, msgRedeploy, map[string]any{"from": string(from)}); err != nil {
		return err
	}
	return s.dispatch(ctx, deploymentID, true)
}

// SuspendDeployment is allowed from active only. It does not tear down
// infrastructure.
func (s *deploymentService) SuspendDeployment(ctx context.Context, deploymentID uuid.UUID) error {
	logger.L().Info("suspend deployment", logger.Deployment(deploymentID))
	return s.transition(ctx, deploymentID, models.StatusActive, models.StatusSuspended, msgSuspended)
}

// ActivateDeployment is allowed from suspended only and runs no stages.
func (s *deploymentService) ActivateDeployment(ctx context.Context, deploymentID uuid.UUID) error {
	logger.L().Info("activate deployment", logger.Deployment(deploymentID))
	return s.transition(ctx, deploymentID, models.StatusSuspended, models.StatusActive, msgActivated)
}

func (s *deploymentService) transition(ctx context.Context, id uuid.UUID, from, to models.Status, message string) error {
	_, err := s.deployments.Mutate(ctx, id, func(d *models.Deployment) error {
		if d.Status != from {
			return appErr.InvalidStateTransition(string(d.Status), string(to))
		}
		d.Status = to
		return nil
	})
	if err != nil {
		return err
	}
	_, err = s.logs.Append(ctx, id, models.LevelInfo, message, map[string]any{"from": string(from), "to": string(to)})
	return err
}

// UpdateDeploymentConfig merges patch into the stored configuration. A
// patch touching branding, features or integrations also redeploys; if a
// run is already in flight the dispatcher queues one more after it.
func (s *deploymentService) UpdateDeploymentConfig(ctx context.Context, deploymentID uuid.UUID, patch models.ConfigPatch) error {
	logger.L().Info("update deployment config", logger.Deployment(deploymentID), zap.Strings("sections", patch.Sections()))

	if err := validate.Struct(patch); err != nil {
		return appErr.Wrap(err, appErr.CodeInvalid, "invalid configuration")
	}

	redeploy := patch.RequiresRedeploy()
	owned := false
	_, err := s.deployments.Mutate(ctx, deploymentID, func(d *models.Deployment) error {
		d.SetConfig(patch.Apply(d.Config()))
		if redeploy && !d.Status.InFlight() {
			d.Status = models.StatusDeploying
			owned = true
		}
		return nil
	})
	if err != nil {
		return err
	}

	sections := patch.Sections()
	if sections == nil {
		sections = []string{}
	}
	if _, err := s.logs.Append(ctx, deploymentID, models.LevelInfo, msgConfigUpdated, map[string]any{
		"sections": sections,
		"redeploy": redeploy,
	}); err != nil {
		return err
	}
	if !redeploy {
		return nil
	}
	return s.dispatch(ctx, deploymentID, owned)
}

func (s *deploymentService) GetDeploymentTemplates(ctx context.Context) []catalog.Template {
	return s.catalog.Templates()
}

func (s *deploymentService) GetDeploymentTemplate(ctx context.Context, templateID string) (catalog.Template, error) {
	return s.catalog.Get(templateID)
}

func (s *deploymentService) GetDeployments(ctx context.Context, tenantID string) ([]models.Deployment, error) {
	return s.deployments.ListByTenant(ctx, tenantID)
}

func (s *deploymentService) GetDeployment(ctx context.Context, deploymentID uuid.UUID) (*models.Deployment, error) {
	return s.deployments.GetByID(ctx, deploymentID)
}

func (s *deploymentService) GetDeploymentLogs(ctx context.Context, deploymentID uuid.UUID) ([]models.DeploymentLog, error) {
	if _, err := s.deployments.GetByID(ctx, deploymentID); err != nil {
		return nil, err
	}
	return s.logs.ListByDeployment(ctx, deploymentID)
}

func (s *deploymentService) CheckDeploymentHealth(ctx context.Context, deploymentID uuid.UUID) (*HealthResult, error) {
	return s.health.CheckHealth(ctx, deploymentID)
}
