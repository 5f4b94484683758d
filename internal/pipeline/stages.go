package pipeline

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/ikon5387/ikon-systems-dashboard-v2-sub001/internal/catalog"
	"github.com/ikon5387/ikon-systems-dashboard-v2-sub001/internal/models"
	"github.com/ikon5387/ikon-systems-dashboard-v2-sub001/internal/provisioner"
)

// DefaultStages builds the standard five-stage pipeline over set.
func DefaultStages(set provisioner.Set, templates *catalog.Catalog) []Stage {
	return []Stage{
		infrastructureStage{infra: set.Infrastructure},
		environmentStage{runtime: set.Runtime},
		applicationStage{artifacts: set.Artifacts, templates: templates},
		sslStage{certs: set.Certificates},
		integrationsStage{integrations: set.Integrations},
	}
}

type infrastructureStage struct {
	infra provisioner.Infrastructure
}

func (infrastructureStage) Name() string { return StageInfrastructure }
func (infrastructureStage) Applies(*models.Deployment) bool { return true }

func (s infrastructureStage) Execute(ctx context.Context, d *models.Deployment) (*Result, error) {
	res, err := s.infra.Ensure(ctx, provisioner.NewTarget(d))
	if err != nil {
		return nil, err
	}
	return &Result{
		Message: "Infrastructure created",
		Details: map[string]any{"resource_id": res.ResourceID},
	}, nil
}

type environmentStage struct {
	runtime provisioner.Runtime
}

func (environmentStage) Name() string { return StageEnvironment }
func (environmentStage) Applies(*models.Deployment) bool { return true }

func (s environmentStage) Execute(ctx context.Context, d *models.Deployment) (*Result, error) {
	target := provisioner.NewTarget(d)
	env := Environment(target)
	if err := s.runtime.Configure(ctx, target, env); err != nil {
		return nil, err
	}
	return &Result{
		Message: "Environment configured",
		Details: map[string]any{"variables": len(env)},
	}, nil
}

// Environment derives the runtime variables of a deployment from its
// configuration. Secrets are referenced, never inlined.
func Environment(t provisioner.Target) map[string]string {
	s := t.Settings
	env := map[string]string{
		"APP_NAME":        t.AppName,
		"APP_DOMAIN":      t.Domain,
		"APP_VERSION":     strconv.Itoa(t.Version),
		"TENANT_ID":       t.TenantID,
		"TEMPLATE_ID":     t.TemplateID,
		"BRAND_COMPANY":   s.Branding.CompanyName,
		"BRAND_PRIMARY":   s.Branding.PrimaryColor,
		"BRAND_SECONDARY": s.Branding.SecondaryColor,
		"BRAND_LOGO_URL":  s.Branding.LogoURL,
		"MAINTENANCE":     strconv.FormatBool(s.Customizations.MaintenanceMode),
		"SECRETS_REF":     fmt.Sprintf("tenants/%s/%s", t.TenantID, t.Workload),
	}
	if t.CustomDomain != "" {
		env["APP_CUSTOM_DOMAIN"] = t.CustomDomain
	}
	for name, on := range s.Features {
		env["FEATURE_"+envKey(name)] = strconv.FormatBool(on)
	}
	return env
}

func envKey(name string) string {
	return strings.ToUpper(strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
			return r
		}
		return '_'
	}, name))
}

type applicationStage struct {
	artifacts provisioner.Artifacts
	templates *catalog.Catalog
}

func (applicationStage) Name() string { return StageApplication }
func (applicationStage) Applies(*models.Deployment) bool { return true }

func (s applicationStage) Execute(ctx context.Context, d *models.Deployment) (*Result, error) {
	tpl, err := s.templates.Get(d.TemplateID)
	if err != nil {
		return nil, err
	}
	rel, err := s.artifacts.Deploy(ctx, provisioner.NewTarget(d), tpl.Artifact)
	if err != nil {
		return nil, err
	}
	return &Result{
		Message: "Application deployed",
		Details: map[string]any{"artifact": rel.Artifact, "version": rel.Version},
	}, nil
}

type sslStage struct {
	certs provisioner.Certificates
}

func (sslStage) Name() string { return StageSSL }

func (sslStage) Applies(d *models.Deployment) bool {
	return d.Config().Customizations.SSLEnabled
}

func (s sslStage) Execute(ctx context.Context, d *models.Deployment) (*Result, error) {
	target := provisioner.NewTarget(d)
	cert, err := s.certs.Issue(ctx, target, target.Domains())
	if err != nil {
		return nil, err
	}
	return &Result{
		Message: "SSL certificate provisioned",
		Details: map[string]any{"domains": cert.Domains, "expires_at": cert.ExpiresAt},
	}, nil
}

type integrationsStage struct {
	integrations provisioner.Integrations
}

func (integrationsStage) Name() string { return StageIntegrations }
func (integrationsStage) Applies(*models.Deployment) bool { return true }

func (s integrationsStage) Execute(ctx context.Context, d *models.Deployment) (*Result, error) {
	target := provisioner.NewTarget(d)
	enabled := target.Settings.EnabledIntegrations()
	for _, name := range enabled {
		if err := s.integrations.Configure(ctx, target, name); err != nil {
			return nil, fmt.Errorf("integration %s: %w", name, err)
		}
	}
	return &Result{
		Message: "Integrations configured",
		Details: map[string]any{"integrations": enabled},
	}, nil
}
