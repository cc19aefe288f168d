// Package client is the pipeline-side HTTP client for the tool server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prodscout/server/internal/toolserver"
)

// Config configures the tool server client from the environment.
type Config struct {
	BaseURL string `envconfig:"TOOLSERVER_URL" default:"http://localhost:8001"`
	Timeout int    `envconfig:"TOOLSERVER_CLIENT_TIMEOUT" default:"20"`
}

type Client struct {
	baseURL string
	hc      *http.Client
}

func New(cfg Config) *Client {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Client{
		baseURL: cfg.BaseURL,
		hc:      &http.Client{Timeout: timeout},
	}
}

func (c *Client) RagSearch(ctx context.Context, req toolserver.RagSearchRequest) (*toolserver.RagSearchResponse, error) {
	var resp toolserver.RagSearchResponse
	if err := c.post(ctx, toolserver.RouteRagSearch, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) WebSearch(ctx context.Context, req toolserver.WebSearchRequest) (*toolserver.WebSearchResponse, error) {
	var resp toolserver.WebSearchResponse
	if err := c.post(ctx, toolserver.RouteWebSearch, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Health probes the tool server; useful at assistant startup.
func (c *Client) Health(ctx context.Context) (*toolserver.HealthResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+toolserver.RouteHealth, nil)
	if err != nil {
		return nil, fmt.Errorf("build health request: %w", err)
	}
	httpResp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("health request: %w", err)
	}
	defer httpResp.Body.Close()

	var resp toolserver.HealthResponse
	if err := decode(httpResp, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) post(ctx context.Context, route string, body, dst any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", route, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+route, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build %s request: %w", route, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("%s request: %w", route, err)
	}
	defer resp.Body.Close()

	return decode(resp, dst)
}

func decode(resp *http.Response, dst any) error {
	if resp.StatusCode != http.StatusOK {
		var apiErr toolserver.ErrorResponse
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("tool server status %d: %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("tool server status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("decode tool server response: %w", err)
	}
	return nil
}
