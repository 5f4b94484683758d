package provisioner

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/hashicorp/go-cleanhttp"
)

// HTTPLiveness probes a deployment by requesting a well-known path on its
// domain. Any 2xx or 3xx answer counts as alive.
type HTTPLiveness struct {
	Scheme string
	Path   string
	client *http.Client
}

var _ Liveness = (*HTTPLiveness)(nil)

// NewHTTPLiveness probes https://<domain><path>.
func NewHTTPLiveness(path string) *HTTPLiveness {
	if path == "" {
		path = "/"
	}
	return &HTTPLiveness{Scheme: "https", Path: path, client: cleanhttp.DefaultPooledClient()}
}

func (h *HTTPLiveness) Probe(ctx context.Context, domain string) error {
	url := fmt.Sprintf("%s://%s%s", h.Scheme, domain, h.Path)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build liveness request: %w", err)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("liveness request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode >= 400 {
		return fmt.Errorf("%w: %s answered %d", ErrUnhealthy, domain, resp.StatusCode)
	}
	return nil
}
