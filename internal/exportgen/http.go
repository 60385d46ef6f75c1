package exportgen

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// stagedImport mirrors the import report returned by POST /imports.
type stagedImport struct {
	ID        string `json:"id"`
	Parsed    int    `json:"parsed"`
	Accepted  int    `json:"accepted"`
	Rejected  int    `json:"rejected"`
	Duplicate int    `json:"duplicate"`
}

// commitResponse mirrors POST /imports/{id}/commit.
type commitResponse struct {
	ImportID   string `json:"import_id"`
	Inserted   int    `json:"inserted"`
	Skipped    int    `json:"skipped"`
	Generation uint64 `json:"generation"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Client talks to a running vitals service.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a client with a request timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{baseURL: baseURL, client: &http.Client{Timeout: timeout}}
}

// CheckHealth verifies the service answers /healthz.
func (c *Client) CheckHealth(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to service: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("service health check failed with status: %d", resp.StatusCode)
	}
	return nil
}

// Stage uploads a payload and returns the staged import.
func (c *Client) Stage(ctx context.Context, format, source string, body io.Reader) (stagedImport, error) {
	q := url.Values{}
	q.Set("format", format)
	q.Set("source", source)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/imports?"+q.Encode(), body)
	if err != nil {
		return stagedImport{}, fmt.Errorf("failed to create request: %w", err)
	}
	var out stagedImport
	if err := c.do(req, http.StatusCreated, &out); err != nil {
		return stagedImport{}, err
	}
	return out, nil
}

// Commit applies a staged import.
func (c *Client) Commit(ctx context.Context, id string) (commitResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/imports/"+url.PathEscape(id)+"/commit", nil)
	if err != nil {
		return commitResponse{}, fmt.Errorf("failed to create request: %w", err)
	}
	var out commitResponse
	if err := c.do(req, http.StatusOK, &out); err != nil {
		return commitResponse{}, err
	}
	return out, nil
}

func (c *Client) do(req *http.Request, want int, v any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != want {
		var apiErr apiError
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Code != "" {
			return fmt.Errorf("%s %s: %d %s: %s", req.Method, req.URL.Path, resp.StatusCode, apiErr.Code, apiErr.Message)
		}
		return fmt.Errorf("%s %s: unexpected status %d", req.Method, req.URL.Path, resp.StatusCode)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
