// Package api provides the HTTP client the TUI uses to attach to a remote
// ChainGuard server.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	chainapi "chainguard/internal/api"
	"chainguard/internal/dashboard"
	"chainguard/internal/rules"
)

// Client handles API communication with the ChainGuard server
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new API client
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// BaseURL returns the server address the client talks to.
func (c *Client) BaseURL() string { return c.baseURL }

// Snapshot fetches the full dashboard state.
func (c *Client) Snapshot(ctx context.Context) (dashboard.Snapshot, error) {
	var snap dashboard.Snapshot
	err := c.do(ctx, http.MethodGet, "/api/v1/state", &snap)
	return snap, err
}

// Select marks a record as the current selection.
func (c *Client) Select(ctx context.Context, id uuid.UUID) error {
	return c.do(ctx, http.MethodPost, "/api/v1/records/"+id.String()+"/select", nil)
}

// Analyze requests an analysis of a record; the result shows up in a later
// snapshot.
func (c *Client) Analyze(ctx context.Context, id uuid.UUID) error {
	return c.do(ctx, http.MethodPost, "/api/v1/records/"+id.String()+"/analyze", nil)
}

// ToggleRule flips a rule's active flag and returns the updated rule.
func (c *Client) ToggleRule(ctx context.Context, id string) (rules.Rule, error) {
	var rule rules.Rule
	err := c.do(ctx, http.MethodPost, "/api/v1/rules/"+id+"/toggle", &rule)
	return rule, err
}

// ToggleWallet flips the cosmetic wallet connection.
func (c *Client) ToggleWallet(ctx context.Context) (bool, error) {
	var resp struct {
		Connected bool `json:"connected"`
	}
	err := c.do(ctx, http.MethodPost, "/api/v1/wallet/toggle", &resp)
	return resp.Connected, err
}

func (c *Client) do(ctx context.Context, method, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("connection failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// decodeError maps the server's error codes back onto the engine's
// sentinel errors so callers can use errors.Is across the wire.
func decodeError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var apiErr chainapi.APIError
	if err := json.Unmarshal(body, &apiErr); err != nil || apiErr.Code == "" {
		return fmt.Errorf("server returned %d", resp.StatusCode)
	}

	switch apiErr.Code {
	case chainapi.CodeRecordNotFound:
		return fmt.Errorf("%s: %w", apiErr.Details, dashboard.ErrRecordNotFound)
	case chainapi.CodeRuleNotFound:
		return fmt.Errorf("%s: %w", apiErr.Details, rules.ErrRuleNotFound)
	case chainapi.CodeUnavailable:
		return fmt.Errorf("%s: %w", apiErr.Message, dashboard.ErrStopped)
	}
	return fmt.Errorf("server returned %d %s: %s", resp.StatusCode, apiErr.Code, apiErr.Message)
}
