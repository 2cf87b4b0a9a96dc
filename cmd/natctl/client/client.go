// Package client implements a small JSON HTTP client against natd's admin
// API (internal/adminapi), standing in for gobfdctl's generated
// bfdv1connect.BfdServiceClient -- no protobuf stubs exist for this
// transformation's control plane, so natctl speaks the same JSON shapes
// internal/adminapi decodes, over a plain *http.Client.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// Endpoint is a wire-format transport endpoint, matching
// internal/adminapi's endpointWire.
type Endpoint struct {
	Addr string `json:"addr"`
	ID   uint16 `json:"id"`
}

// BIBEntry is a wire-format BIB entry, matching internal/adminapi's
// bibEntryWire.
type BIBEntry struct {
	V4     Endpoint `json:"v4"`
	V6     Endpoint `json:"v6"`
	Static bool     `json:"static"`
}

// Session is a wire-format session, matching internal/adminapi's
// sessionWire.
type Session struct {
	V4Local  Endpoint `json:"v4_local"`
	V4Remote Endpoint `json:"v4_remote"`
	V6Local  Endpoint `json:"v6_local"`
	V6Remote Endpoint `json:"v6_remote"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Client is a thin JSON HTTP client for natd's admin API.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// New creates a Client targeting baseURL (e.g. "http://localhost:8064").
func New(baseURL string) *Client {
	return &Client{httpClient: http.DefaultClient, baseURL: baseURL}
}

// AddStaticRoute creates a static BIB entry.
func (c *Client) AddStaticRoute(ctx context.Context, proto string, v4, v6 Endpoint) (*BIBEntry, error) {
	body := struct {
		Proto string   `json:"proto"`
		V4    Endpoint `json:"v4"`
		V6    Endpoint `json:"v6"`
	}{Proto: proto, V4: v4, V6: v6}

	var entry BIBEntry
	if err := c.doJSON(ctx, http.MethodPost, "/v1/static-routes", body, &entry); err != nil {
		return nil, fmt.Errorf("add static route: %w", err)
	}
	return &entry, nil
}

// DeleteStaticRoute removes a static BIB entry named by l3Proto/v4 or
// l3Proto/v6 (exactly one is consulted, per l3Proto).
func (c *Client) DeleteStaticRoute(ctx context.Context, proto, l3Proto string, v4, v6 Endpoint) error {
	body := struct {
		Proto string   `json:"proto"`
		L3    string   `json:"l3_proto"`
		V4    Endpoint `json:"v4,omitempty"`
		V6    Endpoint `json:"v6,omitempty"`
	}{Proto: proto, L3: l3Proto, V4: v4, V6: v6}

	if err := c.doJSON(ctx, http.MethodDelete, "/v1/static-routes", body, nil); err != nil {
		return fmt.Errorf("delete static route: %w", err)
	}
	return nil
}

// ListBIB returns every BIB entry for proto.
func (c *Client) ListBIB(ctx context.Context, proto string) ([]BIBEntry, error) {
	var entries []BIBEntry
	if err := c.doJSON(ctx, http.MethodGet, "/v1/bib/"+proto, nil, &entries); err != nil {
		return nil, fmt.Errorf("list bib: %w", err)
	}
	return entries, nil
}

// ListSessions returns every session for proto.
func (c *Client) ListSessions(ctx context.Context, proto string) ([]Session, error) {
	var sessions []Session
	if err := c.doJSON(ctx, http.MethodGet, "/v1/sessions/"+proto, nil, &sessions); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

// doJSON issues an HTTP request with an optional JSON body, decoding the
// response into out (when non-nil and the response carries a body).
func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var errResp errorResponse
		if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil && errResp.Error != "" {
			return fmt.Errorf("%s %s: %d %s", method, path, resp.StatusCode, errResp.Error)
		}
		return fmt.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
