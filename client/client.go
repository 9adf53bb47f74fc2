// Package client talks to a qcircuit service over its HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/perclft/qcircuit/api"
	"github.com/perclft/qcircuit/jobs"
)

// APIError is a non-success answer of the service.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("qcircuit: %d %s: %s", e.StatusCode, http.StatusText(e.StatusCode), e.Message)
}

// TranspileError is a 200 answer to /transpile reporting an analysis failure.
type TranspileError struct {
	Message string
}

func (e *TranspileError) Error() string { return "qcircuit: " + e.Message }

type Client struct {
	baseURL string
	http    *http.Client
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// New returns a client for the service at baseURL, e.g.
// "http://localhost:8080".
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Version(ctx context.Context) (string, error) {
	var out struct {
		Version string `json:"version"`
	}
	if _, err := c.do(ctx, http.MethodGet, api.Prefix+"/version", nil, &out); err != nil {
		return "", err
	}
	return out.Version, nil
}

// Devices lists the targets the service accepts, sorted by name.
func (c *Client) Devices(ctx context.Context) ([]api.DeviceResponse, error) {
	var out []api.DeviceResponse
	if _, err := c.do(ctx, http.MethodGet, api.Prefix+"/devices", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CacheStats(ctx context.Context) (api.CacheStatsResponse, error) {
	var out api.CacheStatsResponse
	if _, err := c.do(ctx, http.MethodGet, api.Prefix+"/cache", nil, &out); err != nil {
		return api.CacheStatsResponse{}, err
	}
	return out, nil
}

// Invalidate drops the cached report of the circuit in req and reports
// whether one existed.
func (c *Client) Invalidate(ctx context.Context, req api.TranspileRequest) (bool, error) {
	var out api.InvalidateResponse
	if _, err := c.do(ctx, http.MethodPost, api.Prefix+"/cache/invalidate", req, &out); err != nil {
		return false, err
	}
	return out.Invalidated, nil
}

// Transpile requests the metrics of the transpiled circuit.
func (c *Client) Transpile(ctx context.Context, req api.TranspileRequest) (api.TranspileResponse, error) {
	var raw json.RawMessage
	if _, err := c.do(ctx, http.MethodPost, api.Prefix+"/transpile", req, &raw); err != nil {
		return api.TranspileResponse{}, err
	}
	var failure struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &failure); err == nil && failure.Error != "" {
		return api.TranspileResponse{}, &TranspileError{Message: failure.Error}
	}
	var out api.TranspileResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return api.TranspileResponse{}, errors.Wrap(err, "decode transpile response")
	}
	return out, nil
}

// Execute submits a job and returns its result location.
func (c *Client) Execute(ctx context.Context, req api.ExecuteRequest) (string, error) {
	var out api.ExecuteResponse
	resp, err := c.do(ctx, http.MethodPost, api.Prefix+"/execute", req, &out)
	if err != nil {
		return "", err
	}
	if loc := resp.Header.Get("Location"); loc != "" {
		return loc, nil
	}
	return out.Location, nil
}

// Result reads a job given its id or its result location.
func (c *Client) Result(ctx context.Context, idOrLocation string) (jobs.View, error) {
	path := idOrLocation
	if !strings.HasPrefix(path, "/") {
		path = jobs.DefaultResultsPath + path
	}
	var out jobs.View
	_, err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

// Wait polls a job every interval until it reaches a terminal status.
func (c *Client) Wait(ctx context.Context, idOrLocation string, interval time.Duration) (jobs.View, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	var last jobs.View
	for {
		v, err := c.Result(ctx, idOrLocation)
		switch {
		case ctx.Err() != nil:
			return last, ctx.Err()
		case err != nil:
			return last, err
		case v.Status.Terminal():
			return v, nil
		}
		last = v
		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, errors.Wrap(err, "encode request")
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, errors.Wrap(err, "read response")
	}
	if resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(data))}
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &e) == nil && e.Error != "" {
			apiErr.Message = e.Error
		}
		return resp, apiErr
	}
	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return resp, errors.Wrap(err, "decode response")
		}
	}
	return resp, nil
}
