// Package provisioner declares the external collaborators that do the
// physical work of a deployment: infrastructure, runtime environment,
// application artifacts, certificates, integrations and liveness.
//
// Implementations live in sub-packages: simulated for development,
// httpbackend for a remote provisioning API and terraform for
// infrastructure managed by terraform.
package provisioner

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/ikon5387/ikon-systems-dashboard-v2-sub001/internal/models"
)

// ErrUnhealthy is returned by a Liveness probe that reached the instance
// but did not like the answer.
var ErrUnhealthy = errors.New("instance unhealthy")

// Target identifies a deployment to a collaborator.
type Target struct {
	DeploymentID uuid.UUID       `json:"deployment_id"`
	TenantID     string          `json:"tenant_id"`
	TemplateID   string          `json:"template_id"`
	AppName      string          `json:"app_name"`
	Workload     string          `json:"workload"`
	Domain       string          `json:"domain"`
	CustomDomain string          `json:"custom_domain,omitempty"`
	Version      int             `json:"version"`
	Settings     models.Settings `json:"settings"`
}

// NewTarget describes d as it will look once the current run succeeds.
func NewTarget(d *models.Deployment) Target {
	cfg := d.Config()
	return Target{
		DeploymentID: d.ID,
		TenantID:     d.TenantID,
		TemplateID:   d.TemplateID,
		AppName:      d.AppName,
		Workload:     WorkloadName(d),
		Domain:       d.Domain,
		CustomDomain: cfg.Customizations.CustomDomain,
		Version:      d.Version + 1,
		Settings:     cfg,
	}
}

// WorkloadName is a DNS-safe, stable name for the deployment's resources.
func WorkloadName(d *models.Deployment) string {
	name := slug.Make(d.AppName)
	if len(name) > 40 {
		name = strings.TrimRight(name[:40], "-")
	}
	short := d.ID.String()[:8]
	if name == "" {
		return "app-" + short
	}
	return name + "-" + short
}

// Domains lists every hostname the deployment answers on.
func (t Target) Domains() []string {
	out := []string{t.Domain}
	if t.CustomDomain != "" && t.CustomDomain != t.Domain {
		out = append(out, t.CustomDomain)
	}
	return out
}

// InfraResult describes the resources backing a deployment.
type InfraResult struct {
	ResourceID string         `json:"resource_id"`
	Outputs    map[string]any `json:"outputs,omitempty"`
}

// Release is an application version rolled out to a deployment.
type Release struct {
	Artifact string `json:"artifact"`
	Version  int    `json:"version"`
}

// Certificate is a TLS certificate issued for a deployment.
type Certificate struct {
	Domains   []string  `json:"domains"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Infrastructure creates and removes the compute, storage and network a
// deployment runs on. Ensure must be idempotent.
type Infrastructure interface {
	Ensure(ctx context.Context, t Target) (*InfraResult, error)
	Destroy(ctx context.Context, t Target) error
}

// Runtime configures environment variables and secrets.
type Runtime interface {
	Configure(ctx context.Context, t Target, env map[string]string) error
}

// Artifacts rolls an application artifact out to the deployment.
type Artifacts interface {
	Deploy(ctx context.Context, t Target, artifact string) (*Release, error)
}

// Certificates issues TLS certificates.
type Certificates interface {
	Issue(ctx context.Context, t Target, domains []string) (*Certificate, error)
}

// Integrations validates credentials and wires up one third-party service.
type Integrations interface {
	Configure(ctx context.Context, t Target, integration string) error
}

// Liveness checks whether a deployed instance answers.
type Liveness interface {
	Probe(ctx context.Context, domain string) error
}

// Set bundles one implementation of every collaborator.
type Set struct {
	Infrastructure Infrastructure
	Runtime        Runtime
	Artifacts      Artifacts
	Certificates   Certificates
	Integrations   Integrations
	Liveness       Liveness
}

// Validate reports the first missing collaborator.
func (s Set) Validate() error {
	switch {
	case s.Infrastructure == nil:
		return errors.New("provisioner: infrastructure collaborator missing")
	case s.Runtime == nil:
		return errors.New("provisioner: runtime collaborator missing")
	case s.Artifacts == nil:
		return errors.New("provisioner: artifacts collaborator missing")
	case s.Certificates == nil:
		return errors.New("provisioner: certificates collaborator missing")
	case s.Integrations == nil:
		return errors.New("provisioner: integrations collaborator missing")
	case s.Liveness == nil:
		return errors.New("provisioner: liveness collaborator missing")
	}
	return nil
}
