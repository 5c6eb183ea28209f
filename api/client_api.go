// Package api - API-Methoden des Clients.

package api

import (
	"context"
	"net/http"
)

// SuperResolution vergroessert ein Bild auf dem Server.
func (c *Client) SuperResolution(ctx context.Context, req *SuperResolutionRequest) (*SuperResolutionResponse, error) {
	var resp SuperResolutionResponse
	if err := c.do(ctx, http.MethodPost, "/api/super-resolution", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Grounding baut ein Visual-Grounding Sample auf dem Server.
func (c *Client) Grounding(ctx context.Context, req *GroundingRequest) (*GroundingResponse, error) {
	var resp GroundingResponse
	if err := c.do(ctx, http.MethodPost, "/api/grounding", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// List lists models that are available locally.
func (c *Client) List(ctx context.Context) (*ListResponse, error) {
	var lr ListResponse
	if err := c.do(ctx, http.MethodGet, "/api/models", nil, &lr); err != nil {
		return nil, err
	}
	return &lr, nil
}

// Backends lists the registered super-resolution backends.
func (c *Client) Backends(ctx context.Context) (*BackendsResponse, error) {
	var br BackendsResponse
	if err := c.do(ctx, http.MethodGet, "/api/backends", nil, &br); err != nil {
		return nil, err
	}
	return &br, nil
}

// Heartbeat checks if the server has started and is responsive; if yes, it
// returns nil, otherwise an error.
func (c *Client) Heartbeat(ctx context.Context) error {
	return c.do(ctx, http.MethodHead, "/", nil, nil)
}

// Version returns the visionprep server version as a string.
func (c *Client) Version(ctx context.Context) (string, error) {
	var version VersionResponse
	if err := c.do(ctx, http.MethodGet, "/api/version", nil, &version); err != nil {
		return "", err
	}
	return version.Version, nil
}
