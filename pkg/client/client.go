// Package client talks to a running ganttsync server over HTTP.
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

	"github.com/surrealdb/ganttsync/pkg/models"
)

// Client is a ganttsync HTTP client.
type Client struct {
	// URL is the base URL of the server, for example http://localhost:3000
	URL  string
	HTTP *http.Client
}

// New creates a client for the server at url.
func New(url string) *Client {
	return &Client{
		URL:  strings.TrimRight(url, "/"),
		HTTP: &http.Client{Timeout: 30 * time.Second},
	}
}

// Load fetches the project snapshot.
func (c *Client) Load(ctx context.Context) (models.Snapshot, error) {
	var snap models.Snapshot
	if err := c.do(ctx, http.MethodGet, "/load", nil, &snap); err != nil {
		return snap, err
	}
	if !snap.Success {
		return snap, fmt.Errorf("load failed: %s", snap.Message)
	}
	return snap, nil
}

// Sync sends a change request. A response with Success false is returned
// together with an error holding its message.
func (c *Client) Sync(ctx context.Context, req models.Record) (models.SyncResponse, error) {
	var resp models.SyncResponse
	if err := c.do(ctx, http.MethodPost, "/sync", req, &resp); err != nil {
		return resp, err
	}
	if !resp.Success {
		return resp, fmt.Errorf("sync failed: %s", resp.Message)
	}
	return resp, nil
}

// Health checks that the server responds.
func (c *Client) Health(ctx context.Context) error {
	var out map[string]any
	return c.do(ctx, http.MethodGet, "/health", nil, &out)
}

func (c *Client) do(ctx context.Context, method, endpoint string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.URL+endpoint, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call %s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s %s: unexpected status %d: %s", method, endpoint, resp.StatusCode, bytes.TrimSpace(data))
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	normalizeSnapshot(out)
	return nil
}

// normalizeSnapshot converts json.Number values in decoded rows into the
// numeric types models.DecodeJSON produces.
func normalizeSnapshot(out any) {
	var rows []*models.Rows
	switch t := out.(type) {
	case *models.Snapshot:
		t.Project, _ = models.AsRecord(models.Normalize(map[string]any(t.Project)))
		rows = []*models.Rows{t.Calendars, t.Tasks, t.Dependencies, t.Resources, t.Assignments}
	case *models.SyncResponse:
		t.RequestID = models.Normalize(t.RequestID)
		rows = []*models.Rows{t.Tasks, t.Resources, t.Dependencies, t.Assignments}
	}
	for _, r := range rows {
		if r == nil {
			continue
		}
		for i, rec := range r.Rows {
			r.Rows[i], _ = models.AsRecord(models.Normalize(map[string]any(rec)))
		}
	}
}
