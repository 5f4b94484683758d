package httpbackend

import (
	"context"
	"net/http"
	"net/url"

	"github.com/ikon5387/ikon-systems-dashboard-v2-sub001/internal/provisioner"
)

type infrastructure struct{ c *Client }

func (i infrastructure) Ensure(ctx context.Context, t provisioner.Target) (*provisioner.InfraResult, error) {
	var out provisioner.InfraResult
	if err := i.c.do(ctx, http.MethodPut, workloadPath(t, "/infrastructure"), t, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (i infrastructure) Destroy(ctx context.Context, t provisioner.Target) error {
	return i.c.do(ctx, http.MethodDelete, workloadPath(t, "/infrastructure"), nil, nil)
}

type runtime struct{ c *Client }

type environmentRequest struct {
	DeploymentID string            `json:"deployment_id"`
	Env          map[string]string `json:"env"`
}

func (r runtime) Configure(ctx context.Context, t provisioner.Target, env map[string]string) error {
	body := environmentRequest{DeploymentID: t.DeploymentID.String(), Env: env}
	return r.c.do(ctx, http.MethodPut, workloadPath(t, "/environment"), body, nil)
}

type artifacts struct{ c *Client }

type releaseRequest struct {
	Artifact string `json:"artifact"`
	Version  int    `json:"version"`
}

func (a artifacts) Deploy(ctx context.Context, t provisioner.Target, artifact string) (*provisioner.Release, error) {
	var out provisioner.Release
	body := releaseRequest{Artifact: artifact, Version: t.Version}
	if err := a.c.do(ctx, http.MethodPost, workloadPath(t, "/releases"), body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type certificates struct{ c *Client }

type certificateRequest struct {
	Domains []string `json:"domains"`
}

func (c certificates) Issue(ctx context.Context, t provisioner.Target, domains []string) (*provisioner.Certificate, error) {
	var out provisioner.Certificate
	if err := c.c.do(ctx, http.MethodPost, workloadPath(t, "/certificates"), certificateRequest{Domains: domains}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type integrations struct{ c *Client }

type integrationRequest struct {
	TenantID string `json:"tenant_id"`
}

func (i integrations) Configure(ctx context.Context, t provisioner.Target, integration string) error {
	path := workloadPath(t, "/integrations/"+url.PathEscape(integration))
	return i.c.do(ctx, http.MethodPut, path, integrationRequest{TenantID: t.TenantID}, nil)
}
