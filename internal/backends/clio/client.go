// Package clio is the client for the catalog's Solr index, the source of
// bibliographic records.
package clio

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
	"github.com/culsys/valet-service/internal/marc"
)

const DefaultTimeout = 10 * time.Second

// marcField is the stored Solr field carrying the full record as
// MARC-in-JSON.
const marcField = "marc_json"

// Config holds the catalog index connection settings.
type Config struct {
	// BaseURL is the Solr core root, e.g. "http://solr:8983/solr/catalog".
	BaseURL string

	Timeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
}

// Client fetches records from the catalog index. Safe for concurrent use.
type Client struct {
	config     Config
	httpClient *backends.HTTPClient
}

// New creates a catalog client.
func New(cfg Config) *Client {
	cfg.applyDefaults()
	return &Client{
		config:     cfg,
		httpClient: backends.NewHTTPClient(backends.HTTPClientConfig{Timeout: cfg.Timeout}),
	}
}

// NewWithHTTPClient creates a client with a caller-supplied HTTP client,
// for tests against a mock server.
func NewWithHTTPClient(cfg Config, httpClient *backends.HTTPClient) *Client {
	cfg.applyDefaults()
	return &Client{config: cfg, httpClient: httpClient}
}

type selectResponse struct {
	Response struct {
		NumFound int                        `json:"numFound"`
		Docs     []map[string]json.RawMessage `json:"docs"`
	} `json:"response"`
}

// LookupBib fetches the record with the given bib id.
func (c *Client) LookupBib(ctx context.Context, bibID string) (*marc.Record, error) {
	return c.lookup(ctx, fmt.Sprintf("id:%q", bibID), "bib", bibID)
}

// LookupBarcode fetches the record holding an item with the given barcode.
func (c *Client) LookupBarcode(ctx context.Context, barcode string) (*marc.Record, error) {
	return c.lookup(ctx, fmt.Sprintf("barcode_txt:%q", barcode), "barcode", barcode)
}

func (c *Client) lookup(ctx context.Context, query, entity, id string) (*marc.Record, error) {
	endpoint := strings.TrimRight(c.config.BaseURL, "/") + "/select"

	params := url.Values{}
	params.Set("q", query)
	params.Set("fl", marcField)
	params.Set("rows", "1")
	params.Set("wt", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return nil, bib.NewExternalAPIError("clio", resp.StatusCode, string(detail), nil)
	}

	var result selectResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 10<<20)).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding select response: %w", err)
	}

	if len(result.Response.Docs) == 0 {
		return nil, bib.NewNotFoundError(entity, id)
	}

	raw, ok := result.Response.Docs[0][marcField]
	if !ok {
		return nil, bib.NewNotFoundError(entity, id)
	}

	// The field is stored as a JSON string containing the record.
	var encoded string
	if err := json.Unmarshal(raw, &encoded); err != nil {
		return nil, fmt.Errorf("decoding %s field: %w", marcField, err)
	}

	record, err := marc.DecodeRecord([]byte(encoded))
	if err != nil {
		return nil, fmt.Errorf("parsing record for %s %s: %w", entity, id, err)
	}
	return record, nil
}
