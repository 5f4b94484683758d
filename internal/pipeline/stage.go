// Package pipeline runs the ordered provisioning stages of a deployment.
package pipeline

import (
	"context"

	"github.com/ikon5387/ikon-systems-dashboard-v2-sub001/internal/models"
)

// Stage names, in pipeline order.
const (
	StageInfrastructure = "infrastructure"
	StageEnvironment    = "environment"
	StageApplication    = "application"
	StageSSL            = "ssl"
	StageIntegrations   = "integrations"
)

// Result is what a successful stage reports to the audit log.
type Result struct {
	Message string
	Details map[string]any
}

// Stage is one step of the provisioning pipeline. Execute receives a
// snapshot of the deployment and must not persist changes to it.
type Stage interface {
	Name() string
	Applies(d *models.Deployment) bool
	Execute(ctx context.Context, d *models.Deployment) (*Result, error)
}
