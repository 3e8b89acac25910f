package api

import (
	"context"
	"net/http"
)

// Health checks the backend health endpoint.
func (c *Client) Health(ctx context.Context) error {
	target := c.url
	if c.healthURL != nil {
		target = *c.healthURL
	}
	req, err := http.NewRequestWithContext(context.WithValue(ctx, anonymousKey{}, true), http.MethodGet, target.String(), nil)
	if err != nil {
		return &Error{Kind: KindNetwork, Message: err.Error(), Err: err}
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return networkError(req, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 400 {
		return errorFromResponse(resp)
	}
	return nil
}

// HealthProber adapts a Client to connectivity.Prober.
type HealthProber struct {
	Client *Client
}

func (p HealthProber) Probe(ctx context.Context) bool {
	return p.Client.Health(ctx) == nil
}
