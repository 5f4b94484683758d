// Package engine assembles the deployment engine from configuration. The
// API and the queue worker build the same engine and differ only in how
// pipeline runs are dispatched.
package engine

import (
	"fmt"
	"time"

	"github.com/ikon5387/ikon-systems-dashboard-v2-sub001/internal/catalog"
	"github.com/ikon5387/ikon-systems-dashboard-v2-sub001/internal/metrics"
	"github.com/ikon5387/ikon-systems-dashboard-v2-sub001/internal/pipeline"
	"github.com/ikon5387/ikon-systems-dashboard-v2-sub001/internal/provisioner"
	"github.com/ikon5387/ikon-systems-dashboard-v2-sub001/internal/provisioner/httpbackend"
	"github.com/ikon5387/ikon-systems-dashboard-v2-sub001/internal/provisioner/simulated"
	"github.com/ikon5387/ikon-systems-dashboard-v2-sub001/internal/provisioner/terraform"
	"github.com/ikon5387/ikon-systems-dashboard-v2-sub001/internal/repository"
	"github.com/ikon5387/ikon-systems-dashboard-v2-sub001/internal/services"
	"github.com/ikon5387/ikon-systems-dashboard-v2-sub001/pkg/config"
	"github.com/ikon5387/ikon-systems-dashboard-v2-sub001/pkg/logger"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Engine struct {
	Catalog      *catalog.Catalog
	Deployments  repository.DeploymentRepository
	Logs         repository.LogRepository
	Runner       *pipeline.Runner
	Orchestrator *services.Orchestrator
	Health       services.HealthService
}

// New builds every component except the dispatcher.
func New(cfg *config.Config, db *gorm.DB, m *metrics.Metrics) (*Engine, error) {
	templates, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		return nil, err
	}

	deployments := repository.NewDeploymentRepository(db, repository.WithBaseDomain(cfg.BaseDomain))
	logs := repository.NewLogRepository(db)

	set, err := Collaborators(cfg, deployments)
	if err != nil {
		return nil, err
	}
	if err := set.Validate(); err != nil {
		return nil, err
	}

	runner := pipeline.NewRunner(pipeline.DefaultStages(set, templates), logs, cfg.StageTimeout, m)
	logger.L().Info("engine assembled",
		zap.String("provisioner", cfg.ProvisionerDriver),
		zap.String("infra", infraDriver(cfg)),
		zap.Strings("stages", runner.Stages()),
		zap.Int("templates", len(templates.Templates())),
	)

	return &Engine{
		Catalog:      templates,
		Deployments:  deployments,
		Logs:         logs,
		Runner:       runner,
		Orchestrator: services.NewOrchestrator(deployments, logs, runner, m),
		Health:       services.NewHealthService(deployments, set.Liveness, cfg.HealthTimeout, cfg.HealthCacheTTL, m),
	}, nil
}

// Service exposes the engine through dispatcher.
func (e *Engine) Service(dispatcher services.Dispatcher) services.DeploymentService {
	return services.NewDeploymentService(e.Catalog, e.Deployments, e.Logs, dispatcher, e.Health)
}

// Collaborators selects the provisioning backends. INFRA_DRIVER=terraform
// replaces only the infrastructure collaborator.
func Collaborators(cfg *config.Config, deployments repository.DeploymentRepository) (provisioner.Set, error) {
	var set provisioner.Set
	switch cfg.ProvisionerDriver {
	case "simulated", "":
		set = simulated.New(cfg.SimulatedDelay)
	case "http":
		client, err := httpbackend.New(cfg.ProvisionerURL, cfg.ProvisionerToken)
		if err != nil {
			return provisioner.Set{}, err
		}
		set = client.Collaborators(provisioner.NewHTTPLiveness(cfg.LivenessPath))
	default:
		return provisioner.Set{}, fmt.Errorf("unsupported provisioner driver %q", cfg.ProvisionerDriver)
	}

	switch cfg.InfraDriver {
	case "":
	case "terraform":
		set.Infrastructure = terraform.NewInfrastructure(terraform.Options{
			WorkingDir: cfg.WorkingDir,
			ExecPath:   cfg.TerraformPath,
			Region:     cfg.InfraRegion,
		}, terraform.NewRegistryStateStore(deployments))
	default:
		return provisioner.Set{}, fmt.Errorf("unsupported infra driver %q", cfg.InfraDriver)
	}
	return set, nil
}

func infraDriver(cfg *config.Config) string {
	if cfg.InfraDriver == "" {
		return cfg.ProvisionerDriver
	}
	return cfg.InfraDriver
}

// LockTTL bounds how long a worker may hold a deployment's pipeline lock:
// every stage at its timeout plus a margin for bookkeeping.
func LockTTL(stages int, stageTimeout time.Duration) time.Duration {
	if stages < 1 {
		stages = 1
	}
	return time.Duration(stages)*stageTimeout + time.Minute
}
