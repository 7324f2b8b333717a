// Package caiasoft is the client for the Clancy facility's CaiaSoft
// inventory API.
package caiasoft

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/culsys/valet-service/internal/backends"
	"github.com/culsys/valet-service/internal/bib"
)

const DefaultTimeout = 10 * time.Second

// Config holds the inventory API connection settings.
type Config struct {
	// BaseURL is the CaiaSoft API root.
	BaseURL string

	// APIKey is sent on every request in the X-API-Key header.
	APIKey string

	Timeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
}

// Client talks to the inventory API. Safe for concurrent use.
type Client struct {
	config     Config
	httpClient *backends.HTTPClient
}

// New creates an inventory client.
func New(cfg Config) *Client {
	cfg.applyDefaults()

	httpClient := backends.NewHTTPClient(backends.HTTPClientConfig{
		Timeout:      cfg.Timeout,
		APIKey:       cfg.APIKey,
		APIKeyHeader: "X-API-Key",
	})

	return &Client{config: cfg, httpClient: httpClient}
}

// NewWithHTTPClient creates a client with a caller-supplied HTTP client,
// for tests against a mock server.
func NewWithHTTPClient(cfg Config, httpClient *backends.HTTPClient) *Client {
	cfg.applyDefaults()
	return &Client{config: cfg, httpClient: httpClient}
}

// itemStatusResponse is the itemstatus payload. "Item In at Rest" means
// the item is on the facility shelf.
type itemStatusResponse struct {
	Barcode string `json:"barcode"`
	Status  string `json:"status"`
}

// ItemStatus returns the facility's status string for one barcode.
func (c *Client) ItemStatus(ctx context.Context, barcode string) (string, error) {
	endpoint := strings.TrimRight(c.config.BaseURL, "/") +
		"/itemstatus/v1/" + url.PathEscape(barcode)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return "", bib.NewExternalAPIError("caiasoft", resp.StatusCode, string(detail), nil)
	}

	var status itemStatusResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&status); err != nil {
		return "", fmt.Errorf("decoding itemstatus response: %w", err)
	}
	return status.Status, nil
}
