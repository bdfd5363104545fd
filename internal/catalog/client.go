// Package catalog implements a client for the remote raster catalog backend: the
// organisation listing, the per-organisation raster file listing, and the lazy
// lookup of a raster file's URL.
//
// Endpoints consumed:
//
//	GET  /organisations        → [{"id", "name"}]
//	POST /raster-files         {"organisation": name} → [{"id", "name", "url"?}]
//	GET  /raster-files/{id}    → {"file_url"} or {"url"}
//
// Transport failures, 5xx and 429 responses are retried with exponential backoff;
// everything else fails fast. All failures surface as *NetworkError.
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff"

	"github.com/rasterscope/rasterscope/internal/config"
	"github.com/rasterscope/rasterscope/internal/telemetry"
)

// Catalog operation names, used in errors, logs and metric labels.
const (
	OpListOrganisations = "list_organisations"
	OpListRasterFiles   = "list_raster_files"
	OpResolveRasterURL  = "resolve_raster_url"
)

// Organisation is a top-level catalog grouping
type Organisation struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// RasterFile is catalog metadata for one raster dataset. URL is optional in
// listings and resolved on demand.
type RasterFile struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url,omitempty"`
}

type rasterFilesRequest struct {
	Organisation string `json:"organisation"`
}

type rasterURLResponse struct {
	FileURL string `json:"file_url"`
	URL     string `json:"url"`
}

// Client talks to the remote catalog backend
type Client struct {
	BaseURL    string
	HTTPClient *http.Client

	maxRetries      int
	initialInterval time.Duration
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.HTTPClient = hc }
}

// WithRetry sets how many times a retryable failure is repeated and the first
// backoff interval. maxRetries 0 disables retrying.
func WithRetry(maxRetries int, initialInterval time.Duration) Option {
	return func(c *Client) {
		c.maxRetries = maxRetries
		c.initialInterval = initialInterval
	}
}

// NewClient creates a catalog client for baseURL
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		maxRetries:      2,
		initialInterval: 250 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewFromConfig validates cfg and builds a client from it
func NewFromConfig(cfg *config.CatalogConfig) (*Client, error) {
	if err := ValidateBaseURL(cfg.BaseURL); err != nil {
		return nil, err
	}
	return NewClient(cfg.BaseURL,
		WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
		WithRetry(cfg.MaxRetries, cfg.RetryInitialInterval),
	), nil
}

// FetchOrganisations returns the full organisation set in server order
func (c *Client) FetchOrganisations(ctx context.Context) ([]Organisation, error) {
	var orgs []Organisation
	err := c.call(ctx, OpListOrganisations, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/organisations", nil)
	}, &orgs)
	if err != nil {
		return nil, err
	}
	if orgs == nil {
		orgs = []Organisation{}
	}
	return orgs, nil
}

// FetchRasterFiles lists the raster files of an organisation. An organisation
// without files yields an empty, non-nil slice.
func (c *Client) FetchRasterFiles(ctx context.Context, organisationName string) ([]RasterFile, error) {
	payload, err := json.Marshal(rasterFilesRequest{Organisation: organisationName})
	if err != nil {
		return nil, &NetworkError{Op: OpListRasterFiles, Err: fmt.Errorf("failed to encode request: %w", err)}
	}

	var files []RasterFile
	err = c.call(ctx, OpListRasterFiles, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/raster-files", bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	}, &files)
	if err != nil {
		return nil, err
	}
	if files == nil {
		files = []RasterFile{}
	}
	return files, nil
}

// ResolveRasterURL looks up the URL of a single raster file. Callers holding a
// descriptor that already carries a URL should not call this.
func (c *Client) ResolveRasterURL(ctx context.Context, rasterFileID string) (string, error) {
	var resp rasterURLResponse
	err := c.call(ctx, OpResolveRasterURL, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/raster-files/"+url.PathEscape(rasterFileID), nil)
	}, &resp)
	if err != nil {
		return "", err
	}

	resolved := resp.FileURL
	if resolved == "" {
		resolved = resp.URL
	}
	if resolved == "" {
		return "", &NetworkError{Op: OpResolveRasterURL, Message: "response carries no file_url or url"}
	}
	return resolved, nil
}

// call runs one logical catalog operation with retries and records metrics.
func (c *Client) call(ctx context.Context, op string, newRequest func() (*http.Request, error), out interface{}) error {
	start := time.Now()

	expo := backoff.NewExponentialBackOff()
	if c.initialInterval > 0 {
		expo.InitialInterval = c.initialInterval
	}
	retries := c.maxRetries
	if retries < 0 {
		retries = 0
	}
	bo := backoff.WithContext(backoff.WithMaxRetries(expo, uint64(retries)), ctx)

	err := backoff.RetryNotify(func() error {
		err := c.once(ctx, op, newRequest, out)
		if err == nil {
			return nil
		}
		if ne, ok := err.(*NetworkError); ok && ne.Retryable() && ctx.Err() == nil {
			return err
		}
		return backoff.Permanent(err)
	}, bo, func(err error, wait time.Duration) {
		slog.Warn("catalog request failed, retrying", "operation", op, "error", err, "backoff", wait)
	})

	telemetry.CatalogRequestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		telemetry.CatalogRequestsTotal.WithLabelValues(op, "error").Inc()
		return err
	}
	telemetry.CatalogRequestsTotal.WithLabelValues(op, "success").Inc()
	return nil
}

// once performs a single HTTP attempt and decodes a 2xx body into out.
func (c *Client) once(ctx context.Context, op string, newRequest func() (*http.Request, error), out interface{}) error {
	req, err := newRequest()
	if err != nil {
		return &NetworkError{Op: op, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return &NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		msg := reasonPhrase(resp)
		return &NetworkError{Op: op, StatusCode: resp.StatusCode, Message: msg}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &NetworkError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	return nil
}

// reasonPhrase returns the status text the server sent, falling back to the
// canonical text for the code when the server sent none
func reasonPhrase(resp *http.Response) string {
	msg := strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)))
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	if msg == "" {
		msg = resp.Status
	}
	return msg
}

// ValidateBaseURL validates that a catalog URL is properly formatted
func ValidateBaseURL(baseURL string) error {
	if baseURL == "" {
		return fmt.Errorf("catalog URL cannot be empty")
	}

	parsed, err := url.Parse(baseURL)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("catalog URL must use http or https scheme")
	}

	if parsed.Host == "" {
		return fmt.Errorf("catalog URL must have a host")
	}

	return nil
}
