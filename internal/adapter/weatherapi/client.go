// Package weatherapi is a thin client for the weatherapi.com REST API.
// It returns response bodies verbatim; projection into domain rows
// happens downstream in the process phase.
package weatherapi

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// Client fetches current-conditions documents.
type Client struct {
	key        string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a client for the given API key and base URL.
func NewClient(key, baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		key:        key,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Current fetches the current-conditions document for a location query and
// returns the raw JSON payload.
func (c *Client) Current(ctx context.Context, query string) ([]byte, error) {
	params := url.Values{}
	params.Set("key", c.key)
	params.Set("q", query)
	endpoint := fmt.Sprintf("%s/current.json?%s", c.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch current conditions: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("weatherapi returned %d: %s", resp.StatusCode, string(body))
	}

	c.logger.Debug("fetched current conditions", "query", query, "bytes", len(body))
	return body, nil
}
