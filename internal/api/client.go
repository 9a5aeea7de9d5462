package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client calls the bridge's local JSON API
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the API at addr ("127.0.0.1:9876" or a full URL)
func NewClient(addr string) *Client {
	base := strings.TrimRight(addr, "/")
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	return &Client{
		baseURL: base,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Reply posts text to the conversation named by endpoint
func (c *Client) Reply(ctx context.Context, endpoint, text string) error {
	return c.post(ctx, "/api/reply", ReplyRequest{Endpoint: endpoint, Text: text}, nil)
}

// Complete clears the indicator for endpoint's message
func (c *Client) Complete(ctx context.Context, endpoint string) error {
	return c.post(ctx, "/api/complete", CompleteRequest{Endpoint: endpoint}, nil)
}

// Status fetches the runtime summary
func (c *Client) Status(ctx context.Context) (Status, error) {
	var st Status
	err := c.get(ctx, "/api/status", &st)
	return st, err
}

func (c *Client) get(ctx context.Context, path string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return c.do(req, result)
}

func (c *Client) post(ctx context.Context, path string, body interface{}, result interface{}) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(jsonBody))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, result)
}

func (c *Client) do(req *http.Request, result interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP %s failed: %w", req.Method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var res Result
		body, _ := io.ReadAll(resp.Body)
		if json.Unmarshal(body, &res) == nil && res.Error != "" {
			return fmt.Errorf("HTTP %d: %s", resp.StatusCode, res.Error)
		}
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
