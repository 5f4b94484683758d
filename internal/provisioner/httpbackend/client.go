// Package httpbackend talks JSON over HTTP to a remote provisioning API.
package httpbackend

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

	"github.com/hashicorp/go-retryablehttp"
	"github.com/ikon5387/ikon-systems-dashboard-v2-sub001/internal/provisioner"
	"github.com/ikon5387/ikon-systems-dashboard-v2-sub001/pkg/logger"
)

// APIError is a non-2xx answer from the provisioning API.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("provisioning api %s %s: %d %s", e.Method, e.Path, e.StatusCode, e.Message)
}

// Option configures a Client.
type Option func(*Client)

// WithRetries sets the retry budget for transient failures.
func WithRetries(max int, waitMin, waitMax time.Duration) Option {
	return func(c *Client) {
		c.http.RetryMax = max
		c.http.RetryWaitMin = waitMin
		c.http.RetryWaitMax = waitMax
	}
}

// Client is the HTTP provisioning backend.
type Client struct {
	base  *url.URL
	token string
	http  *retryablehttp.Client
}

// New returns a client for the API rooted at baseURL.
func New(baseURL, token string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse provisioner url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("provisioner url %q must be absolute", baseURL)
	}

	rc := retryablehttp.NewClient()
	rc.Logger = logger.NewLeveled("provisioner")
	rc.RetryMax = 3
	rc.RetryWaitMin = 200 * time.Millisecond
	rc.RetryWaitMax = 3 * time.Second

	c := &Client{base: u, token: token, http: rc}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Collaborators returns every collaborator the API serves. Liveness is
// probed directly against the deployment and is supplied by the caller.
func (c *Client) Collaborators(live provisioner.Liveness) provisioner.Set {
	return provisioner.Set{
		Infrastructure: infrastructure{c},
		Runtime:        runtime{c},
		Artifacts:      artifacts{c},
		Certificates:   certificates{c},
		Integrations:   integrations{c},
		Liveness:       live,
	}
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

	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.base.String()+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read %s response: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{Method: method, Path: path, StatusCode: resp.StatusCode, Message: errorMessage(raw)}
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func errorMessage(raw []byte) string {
	var env struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &env) == nil {
		if env.Message != "" {
			return env.Message
		}
		if env.Error != "" {
			return env.Error
		}
	}
	return http.StatusText(http.StatusInternalServerError)
}

func workloadPath(t provisioner.Target, suffix string) string {
	return "/v1/workloads/" + url.PathEscape(t.Workload) + suffix
}
