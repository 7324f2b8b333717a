// Package scsb is the client for the shared offsite repository's REST API.
package scsb

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"

	"github.com/culsys/valet-service/internal/backends"
	"github.com/culsys/valet-service/internal/bib"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	// DefaultTimeout is short on purpose: when the endpoint is up it
	// answers quickly, and the request form should not hang on it.
	DefaultTimeout = 10 * time.Second

	DefaultBibAvailabilityPath  = "/sharedCollection/bibAvailabilityStatus"
	DefaultItemAvailabilityPath = "/sharedCollection/itemAvailabilityStatus"
)

// Config holds the repository connection settings.
type Config struct {
	// BaseURL is the repository API root.
	BaseURL string

	// APIKey is sent on every request in the api_key header.
	APIKey string

	BibAvailabilityPath  string
	ItemAvailabilityPath string

	Timeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.BibAvailabilityPath == "" {
		c.BibAvailabilityPath = DefaultBibAvailabilityPath
	}
	if c.ItemAvailabilityPath == "" {
		c.ItemAvailabilityPath = DefaultItemAvailabilityPath
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
}

// Client talks to the repository. Safe for concurrent use.
type Client struct {
	config     Config
	httpClient *backends.HTTPClient
	logger     zerolog.Logger
}

// New creates a repository client.
func New(cfg Config, logger zerolog.Logger) *Client {
	cfg.applyDefaults()

	httpClient := backends.NewHTTPClient(backends.HTTPClientConfig{
		Timeout:      cfg.Timeout,
		APIKey:       cfg.APIKey,
		APIKeyHeader: "api_key",
	})

	return &Client{config: cfg, httpClient: httpClient, logger: logger}
}

// NewWithHTTPClient creates a client with a caller-supplied HTTP client,
// for tests against a mock server.
func NewWithHTTPClient(cfg Config, httpClient *backends.HTTPClient, logger zerolog.Logger) *Client {
	cfg.applyDefaults()
	return &Client{config: cfg, httpClient: httpClient, logger: logger}
}

// itemAvailability is one entry of the availability response. Both the
// bib-level and item-level endpoints share this shape.
type itemAvailability struct {
	ItemBarcode            string `json:"itemBarcode"`
	ItemAvailabilityStatus string `json:"itemAvailabilityStatus"`
	ErrorMessage           string `json:"errorMessage"`
}

// BibAvailability returns a barcode to status map for every accessioned
// item of the given bib. Entries the repository flags with an error
// message are dropped; a bib it has never heard of yields an empty map.
func (c *Client) BibAvailability(ctx context.Context, institutionID, institution string) (map[string]string, error) {
	payload := map[string]string{
		"bibliographicId": institutionID,
		"institutionId":   institution,
	}
	return c.postAvailability(ctx, c.config.BibAvailabilityPath, payload)
}

// ItemAvailability returns a barcode to status map for the given barcodes.
func (c *Client) ItemAvailability(ctx context.Context, barcodes []string) (map[string]string, error) {
	payload := map[string][]string{"barcodes": barcodes}
	return c.postAvailability(ctx, c.config.ItemAvailabilityPath, payload)
}

func (c *Client) postAvailability(ctx context.Context, path string, payload any) (map[string]string, error) {
	endpoint, err := c.endpoint(path)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding availability request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return nil, bib.NewExternalAPIError("scsb", resp.StatusCode, string(detail), nil)
	}

	var entries []itemAvailability
	if err := json.NewDecoder(io.LimitReader(resp.Body, 10<<20)).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decoding availability response: %w", err)
	}

	availabilities := make(map[string]string, len(entries))
	for _, entry := range entries {
		if entry.ErrorMessage != "" {
			c.logger.Warn().Str("error_message", entry.ErrorMessage).
				Msg("repository availability entry skipped")
			continue
		}
		availabilities[entry.ItemBarcode] = entry.ItemAvailabilityStatus
	}
	return availabilities, nil
}

func (c *Client) endpoint(path string) (string, error) {
	base, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parsing base URL: %w", err)
	}
	base.Path = strings.TrimRight(base.Path, "/") + path
	return base.String(), nil
}
