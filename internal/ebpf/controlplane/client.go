// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package controlplane

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"grimm.is/portgate/internal/errors"
)

// Client talks to a running control plane.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient returns a client for addr, which is either host:port or a full
// http:// URL.
func NewClient(addr string) *Client {
	base := strings.TrimRight(addr, "/")
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	return &Client{
		baseURL: base + apiPrefix,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// GetPort returns the blocked port and whether one is configured.
func (c *Client) GetPort(ctx context.Context) (uint16, bool, error) {
	var resp PortResponse
	if err := c.do(ctx, http.MethodGet, "/port", nil, &resp); err != nil {
		return 0, false, err
	}
	return resp.Port, resp.Configured, nil
}

// SetPort sets the blocked port.
func (c *Client) SetPort(ctx context.Context, port uint16) error {
	p := int(port)
	return c.do(ctx, http.MethodPut, "/port", PortRequest{Port: &p}, nil)
}

// ClearPort clears the blocked port.
func (c *Client) ClearPort(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/port", nil, nil)
}

// Health returns the health report. An unhealthy daemon is not an error.
func (c *Client) Health(ctx context.Context) (HealthResponse, error) {
	var resp HealthResponse
	err := c.do(ctx, http.MethodGet, "/health", nil, &resp)
	if errors.GetKind(err) == errors.KindUnavailable && resp.Timestamp != 0 {
		err = nil
	}
	return resp, err
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, errors.KindInternal, "failed to encode request")
		}
		rdr = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return errors.Wrap(err, errors.KindInternal, "failed to build request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrap(err, errors.KindUnavailable, "control plane unreachable")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return errors.Wrap(err, errors.KindUnavailable, "failed to read response")
	}

	// /health carries a full body with its 503.
	if out != nil && (resp.StatusCode < 300 || resp.StatusCode == http.StatusServiceUnavailable) {
		if err := json.Unmarshal(data, out); err != nil && resp.StatusCode < 300 {
			return errors.Wrap(err, errors.KindInternal, "failed to decode response")
		}
	}

	if resp.StatusCode >= 300 {
		var e errorResponse
		msg := strings.TrimSpace(string(data))
		if json.Unmarshal(data, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		return errors.Attr(errors.New(kindForStatus(resp.StatusCode), msg), "status", resp.StatusCode)
	}
	return nil
}

func kindForStatus(code int) errors.Kind {
	switch code {
	case http.StatusBadRequest:
		return errors.KindValidation
	case http.StatusNotFound:
		return errors.KindNotFound
	case http.StatusForbidden:
		return errors.KindPermission
	case http.StatusServiceUnavailable:
		return errors.KindUnavailable
	default:
		return errors.KindInternal
	}
}
