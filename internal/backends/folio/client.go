// Package folio is the client for the FOLIO ILS via its Okapi gateway.
package folio

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/culsys/valet-service/internal/backends"
	"github.com/culsys/valet-service/internal/bib"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	DefaultTimeout = 10 * time.Second

	userAgent = "valet-service/1.0"
)

// Config holds the Okapi connection settings.
type Config struct {
	// BaseURL is the Okapi gateway root.
	BaseURL string

	// Tenant is sent as X-Okapi-Tenant on every request.
	Tenant string

	// Username and Password are the service account credentials used to
	// obtain the Okapi token.
	Username string
	Password string

	Timeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
}

// Client talks to Okapi. It logs in lazily and re-authenticates when the
// token expires. Safe for concurrent use.
type Client struct {
	config     Config
	httpClient *backends.HTTPClient

	mu    sync.Mutex
	token string
}

// New creates an Okapi client.
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

// Item is the item-storage record, reduced to what request policy needs.
type Item struct {
	ID               string `json:"id"`
	Barcode          string `json:"barcode"`
	HoldingsRecordID string `json:"holdingsRecordId"`
	Status           struct {
		Name string `json:"name"`
	} `json:"status"`
}

// Instance is a search-instances hit.
type Instance struct {
	ID    string `json:"id"`
	HRID  string `json:"hrid"`
	Title string `json:"title"`
}

// User is a users-module record.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Barcode  string `json:"barcode"`
	Active   bool   `json:"active"`
}

// GetItem retrieves one item by its UUID.
func (c *Client) GetItem(ctx context.Context, itemID string) (*Item, error) {
	var item Item
	if err := c.get(ctx, "/item-storage/items/"+url.PathEscape(itemID), &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// ItemStatus returns the status name of one item.
func (c *Client) ItemStatus(ctx context.Context, itemID string) (string, error) {
	item, err := c.GetItem(ctx, itemID)
	if err != nil {
		return "", err
	}
	return item.Status.Name, nil
}

// GetInstanceByHRID finds the instance whose human-readable id matches the
// given bib id.
func (c *Client) GetInstanceByHRID(ctx context.Context, hrid string) (*Instance, error) {
	var result struct {
		Instances []Instance `json:"instances"`
	}
	path := "/search/instances?limit=1&query=" + url.QueryEscape(fmt.Sprintf(`(hrid=%q)`, hrid))
	if err := c.get(ctx, path, &result); err != nil {
		return nil, err
	}
	if len(result.Instances) == 0 {
		return nil, bib.NewNotFoundError("instance", hrid)
	}
	return &result.Instances[0], nil
}

// GetUserByUsername finds the patron record for a login name.
func (c *Client) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	var result struct {
		Users []User `json:"users"`
	}
	path := "/users?limit=1&query=" + url.QueryEscape(fmt.Sprintf(`(username==%q)`, username))
	if err := c.get(ctx, path, &result); err != nil {
		return nil, err
	}
	if len(result.Users) == 0 {
		return nil, bib.NewNotFoundError("user", username)
	}
	return &result.Users[0], nil
}

// GetUserBarcode returns the patron's barcode, "" when the patron record
// carries none.
func (c *Client) GetUserBarcode(ctx context.Context, username string) (string, error) {
	user, err := c.GetUserByUsername(ctx, username)
	if err != nil {
		return "", err
	}
	return user.Barcode, nil
}

// GetBlocks returns the deduped messages of the patron's automated and
// manual blocks. An empty slice means the patron is clear to request.
func (c *Client) GetBlocks(ctx context.Context, userID string) ([]string, error) {
	var automated struct {
		AutomatedPatronBlocks []struct {
			Message string `json:"message"`
		} `json:"automatedPatronBlocks"`
	}
	if err := c.get(ctx, "/automated-patron-blocks/"+url.PathEscape(userID), &automated); err != nil {
		return nil, err
	}

	var manual struct {
		Manualblocks []struct {
			PatronMessage string `json:"patronMessage"`
		} `json:"manualblocks"`
	}
	path := "/manualblocks?limit=1000&query=" + url.QueryEscape("(userId == "+userID+")")
	if err := c.get(ctx, path, &manual); err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var blocks []string
	add := func(message string) {
		if message == "" || seen[message] {
			return
		}
		seen[message] = true
		blocks = append(blocks, message)
	}
	for _, block := range automated.AutomatedPatronBlocks {
		add(block.Message)
	}
	for _, block := range manual.Manualblocks {
		add(block.PatronMessage)
	}
	return blocks, nil
}

// RecallRequest is the circulation request payload for recalling an item.
type RecallRequest struct {
	RequestLevel          string `json:"requestLevel"`
	RequestType           string `json:"requestType"`
	InstanceID            string `json:"instanceId"`
	HoldingsRecordID      string `json:"holdingsRecordId"`
	ItemID                string `json:"itemId"`
	RequesterID           string `json:"requesterId"`
	FulfillmentPreference string `json:"fulfillmentPreference"`
	PickupServicePointID  string `json:"pickupServicePointId"`
	RequestDate           string `json:"requestDate"`
}

// RecallResponse is the circulation module's view of the placed request,
// reduced to what the confirmation page echoes back.
type RecallResponse struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	Instance struct {
		Title string `json:"title"`
	} `json:"instance"`
	Item struct {
		Barcode    string `json:"barcode"`
		CallNumber string `json:"callNumber"`
	} `json:"item"`
	PickupServicePoint struct {
		DiscoveryDisplayName string `json:"discoveryDisplayName"`
	} `json:"pickupServicePoint"`
}

// folioErrors is the error envelope the circulation module returns on
// validation failures.
type folioErrors struct {
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// PostRecall places a recall. Validation failures come back as an
// ExternalAPIError carrying the circulation module's own message, which
// callers show to the patron verbatim.
func (c *Client) PostRecall(ctx context.Context, recall RecallRequest) (*RecallResponse, error) {
	body, err := json.Marshal(recall)
	if err != nil {
		return nil, fmt.Errorf("encoding recall request: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, "/circulation/requests", body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("reading recall response: %w", err)
	}

	if resp.StatusCode >= 400 {
		message := string(payload)
		var envelope folioErrors
		if err := json.Unmarshal(payload, &envelope); err == nil && len(envelope.Errors) > 0 {
			message = envelope.Errors[0].Message
		}
		return nil, bib.NewExternalAPIError("folio", resp.StatusCode, message, nil)
	}

	var placed RecallResponse
	if err := json.Unmarshal(payload, &placed); err != nil {
		return nil, fmt.Errorf("decoding recall response: %w", err)
	}
	return &placed, nil
}

// get performs an authenticated GET and decodes the JSON response.
func (c *Client) get(ctx context.Context, path string, out any) error {
	resp, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return bib.NewNotFoundError("folio resource", path)
	}
	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return bib.NewExternalAPIError("folio", resp.StatusCode, string(detail), nil)
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, 10<<20)).Decode(out); err != nil {
		return fmt.Errorf("decoding folio response: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	token, err := c.ensureToken(ctx)
	if err != nil {
		return nil, err
	}

	endpoint := strings.TrimRight(c.config.BaseURL, "/") + path

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("X-Okapi-Tenant", c.config.Tenant)
	req.Header.Set("X-Okapi-Token", token)
	req.Header.Set("User-Agent", userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}

	// Token expired between requests: log in again and replay once.
	if resp.StatusCode == http.StatusUnauthorized {
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		token, err = c.login(ctx)
		if err != nil {
			return nil, err
		}
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err = http.NewRequestWithContext(ctx, method, endpoint, reader)
		if err != nil {
			return nil, fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("X-Okapi-Tenant", c.config.Tenant)
		req.Header.Set("X-Okapi-Token", token)
		req.Header.Set("User-Agent", userAgent)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		return c.httpClient.Do(req)
	}

	return resp, nil
}

// ensureToken returns the cached token, logging in on first use.
func (c *Client) ensureToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	token := c.token
	c.mu.Unlock()
	if token != "" {
		return token, nil
	}
	return c.login(ctx)
}

// login obtains a fresh Okapi token.
func (c *Client) login(ctx context.Context) (string, error) {
	credentials, err := json.Marshal(map[string]string{
		"username": c.config.Username,
		"password": c.config.Password,
	})
	if err != nil {
		return "", fmt.Errorf("encoding login request: %w", err)
	}

	endpoint := strings.TrimRight(c.config.BaseURL, "/") + "/authn/login"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(credentials))
	if err != nil {
		return "", fmt.Errorf("creating login request: %w", err)
	}
	req.Header.Set("X-Okapi-Tenant", c.config.Tenant)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("executing login request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return "", bib.NewExternalAPIError("folio", resp.StatusCode, string(detail), nil)
	}

	token := resp.Header.Get("X-Okapi-Token")
	if token == "" {
		return "", bib.NewExternalAPIError("folio", resp.StatusCode, "login response carried no token", nil)
	}

	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
	return token, nil
}
