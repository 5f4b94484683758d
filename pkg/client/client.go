// Package client talks to the deployment engine HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/ikon5387/ikon-systems-dashboard-v2-sub001/internal/api/types"
	"github.com/ikon5387/ikon-systems-dashboard-v2-sub001/internal/catalog"
	"github.com/ikon5387/ikon-systems-dashboard-v2-sub001/internal/models"
	"github.com/ikon5387/ikon-systems-dashboard-v2-sub001/internal/services"
)

// Error is a non-2xx answer from the API.
type Error struct {
	StatusCode int
	Code       string
	Message    string
	RequestID  string
}

func (e *Error) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("%s (%d %s, request %s)", e.Message, e.StatusCode, e.Code, e.RequestID)
	}
	return fmt.Sprintf("%s (%d %s)", e.Message, e.StatusCode, e.Code)
}

type Option func(*Client)

// WithRetries sets how often idempotent reads are retried.
func WithRetries(max int, waitMin, waitMax time.Duration) Option {
	return func(c *Client) {
		c.reads.RetryMax = max
		c.reads.RetryWaitMin = waitMin
		c.reads.RetryWaitMax = waitMax
	}
}

// WithLogger logs requests and retries through l.
func WithLogger(l retryablehttp.LeveledLogger) Option {
	return func(c *Client) {
		c.reads.Logger = l
		c.writes.Logger = l
	}
}

// Client is safe for concurrent use. Reads are retried on transport errors
// and 5xx answers; writes are sent once so a retry can never create a
// second deployment.
type Client struct {
	base   string
	reads  *retryablehttp.Client
	writes *retryablehttp.Client
}

func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse api url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("api url %q must be absolute", baseURL)
	}

	reads := retryablehttp.NewClient()
	reads.Logger = nil
	reads.RetryMax = 3
	reads.RetryWaitMin = 200 * time.Millisecond
	reads.RetryWaitMax = 2 * time.Second
	reads.ErrorHandler = retryablehttp.PassthroughErrorHandler

	writes := retryablehttp.NewClient()
	writes.Logger = nil
	writes.RetryMax = 0
	writes.ErrorHandler = retryablehttp.PassthroughErrorHandler

	c := &Client{base: u.String() + "/api/v1", reads: reads, writes: writes}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

func (c *Client) Templates(ctx context.Context) ([]catalog.Template, error) {
	var out []catalog.Template
	return out, c.do(ctx, http.MethodGet, "/templates", nil, &out)
}

func (c *Client) Template(ctx context.Context, id string) (*catalog.Template, error) {
	var out catalog.Template
	if err := c.do(ctx, http.MethodGet, "/templates/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreateDeployment(ctx context.Context, req types.DeploymentCreateRequest) (*models.Deployment, error) {
	return c.deployment(ctx, http.MethodPost, "/deployments", req)
}

// Deployments lists deployments, newest first. An empty tenant lists all.
func (c *Client) Deployments(ctx context.Context, tenantID string) ([]models.Deployment, error) {
	path := "/deployments"
	if tenantID != "" {
		path += "?tenant_id=" + url.QueryEscape(tenantID)
	}
	var out []models.Deployment
	return out, c.do(ctx, http.MethodGet, path, nil, &out)
}

func (c *Client) Deployment(ctx context.Context, id uuid.UUID) (*models.Deployment, error) {
	return c.deployment(ctx, http.MethodGet, deploymentPath(id, ""), nil)
}

func (c *Client) UpdateConfig(ctx context.Context, id uuid.UUID, patch models.ConfigPatch) (*models.Deployment, error) {
	return c.deployment(ctx, http.MethodPatch, deploymentPath(id, "/config"), patch)
}

func (c *Client) Redeploy(ctx context.Context, id uuid.UUID) (*models.Deployment, error) {
	return c.deployment(ctx, http.MethodPost, deploymentPath(id, "/redeploy"), nil)
}

func (c *Client) Suspend(ctx context.Context, id uuid.UUID) (*models.Deployment, error) {
	return c.deployment(ctx, http.MethodPost, deploymentPath(id, "/suspend"), nil)
}

func (c *Client) Activate(ctx context.Context, id uuid.UUID) (*models.Deployment, error) {
	return c.deployment(ctx, http.MethodPost, deploymentPath(id, "/activate"), nil)
}

// Logs returns the audit log, newest first.
func (c *Client) Logs(ctx context.Context, id uuid.UUID) ([]models.DeploymentLog, error) {
	var out []models.DeploymentLog
	return out, c.do(ctx, http.MethodGet, deploymentPath(id, "/logs"), nil, &out)
}

func (c *Client) Health(ctx context.Context, id uuid.UUID) (*services.HealthResult, error) {
	var out services.HealthResult
	if err := c.do(ctx, http.MethodGet, deploymentPath(id, "/health"), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Wait polls until the deployment leaves pending and deploying, or ctx ends.
func (c *Client) Wait(ctx context.Context, id uuid.UUID, interval time.Duration) (*models.Deployment, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		d, err := c.Deployment(ctx, id)
		if err != nil {
			return nil, err
		}
		if !d.Status.InFlight() {
			return d, nil
		}
		select {
		case <-ctx.Done():
			return d, ctx.Err()
		case <-ticker.C:
		}
	}
}

func deploymentPath(id uuid.UUID, suffix string) string {
	return "/deployments/" + id.String() + suffix
}

func (c *Client) deployment(ctx context.Context, method, path string, in any) (*models.Deployment, error) {
	var out models.Deployment
	if err := c.do(ctx, method, path, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body []byte
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s body: %w", path, err)
		}
		body = b
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	hc := c.writes
	if method == http.MethodGet {
		hc = c.reads
	}
	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("read %s response: %w", path, err)
	}

	var env struct {
		types.APIResponse
		Data json.RawMessage `json:"data,omitempty"`
	}
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil && resp.StatusCode < 300 {
			return fmt.Errorf("decode %s response: %w", path, err)
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &Error{StatusCode: resp.StatusCode, Code: "unknown", Message: http.StatusText(resp.StatusCode)}
		if env.Error != nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		if env.Meta != nil {
			apiErr.RequestID = env.Meta.RequestID
		}
		return apiErr
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode %s data: %w", path, err)
	}
	return nil
}
