// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package postgrest implements the data backend over a PostgREST-compatible
// HTTP API (the shape exposed by hosted Postgres services under /rest/v1).
// Every non-2xx reply becomes a *resilience.StatusError so retry
// classification sees the HTTP status and the PostgreSQL error code, and
// every row is validated before it leaves this package.
package postgrest

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

	"agora/internal/resilience"
)

// maxErrorBody caps how much of an error reply is read.
const maxErrorBody = 64 << 10

// Client talks to a PostgREST endpoint.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// New creates a REST client. baseURL is the service root (the /rest/v1
// prefix is appended). A nil httpClient gets a 30s timeout client.
func New(baseURL, apiKey string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/") + "/rest/v1",
		apiKey:  apiKey,
		http:    httpClient,
	}
}

// request describes a single REST call.
type request struct {
	method string
	table  string
	query  url.Values
	body   any
	prefer string
}

// do performs the call and decodes a 2xx JSON reply into out (if non-nil).
func (c *Client) do(ctx context.Context, r request, out any) error {
	var body io.Reader
	if r.body != nil {
		payload, err := json.Marshal(r.body)
		if err != nil {
			return fmt.Errorf("postgrest marshal %s: %w", r.table, err)
		}
		body = bytes.NewReader(payload)
	}

	u := c.baseURL + "/" + r.table
	if len(r.query) > 0 {
		u += "?" + r.query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, r.method, u, body)
	if err != nil {
		return fmt.Errorf("postgrest request %s: %w", r.table, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if r.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.prefer != "" {
		req.Header.Set("Prefer", r.prefer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("postgrest %s %s: %w", r.method, r.table, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("postgrest decode %s: %w", r.table, err)
	}
	return nil
}

// decodeError turns an error reply into a *resilience.StatusError. Bodies
// that are not PostgREST error JSON keep their raw text as the message.
func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	se := &resilience.StatusError{Status: resp.StatusCode}
	if err := json.Unmarshal(raw, se); err != nil || se.Message == "" {
		se.Message = strings.TrimSpace(string(raw))
	}
	se.Status = resp.StatusCode
	if se.Message == "" {
		se.Message = http.StatusText(resp.StatusCode)
	}
	return se
}

// eq builds a PostgREST equality filter value.
func eq(v fmt.Stringer) string {
	return "eq." + v.String()
}

// Probe performs a one-row read against table.
func (c *Client) Probe(ctx context.Context, table string) error {
	var rows []json.RawMessage
	q := url.Values{"select": {"id"}, "limit": {"1"}}
	return c.do(ctx, request{method: http.MethodGet, table: table, query: q}, &rows)
}

// Ping checks that the REST root answers.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.baseURL+"/", nil)
	if err != nil {
		return fmt.Errorf("postgrest ping: %w", err)
	}
	req.Header.Set("apikey", c.apiKey)
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("postgrest ping: %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode >= 500 {
		return &resilience.StatusError{Status: resp.StatusCode, Message: "ping"}
	}
	return nil
}
