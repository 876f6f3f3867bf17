// Package firecrawl provides a client for the Firecrawl search and scrape API.
package firecrawl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
)

// Default base URL for the Firecrawl v2 API.
const defaultBaseURL = "https://api.firecrawl.dev/v2"

// Scrape output formats.
const (
	FormatMarkdown = "markdown"
	FormatBranding = "branding"
	FormatImages   = "images"
)

// Client defines the Firecrawl operations used for evidence gathering.
type Client interface {
	Search(ctx context.Context, req SearchRequest) (*SearchResponse, error)
	Scrape(ctx context.Context, req ScrapeRequest) (*ScrapeResponse, error)
}

// SearchRequest is the body for POST /search.
type SearchRequest struct {
	Query         string         `json:"query"`
	Limit         int            `json:"limit,omitempty"`
	ScrapeOptions *ScrapeOptions `json:"scrapeOptions,omitempty"`
}

// ScrapeOptions asks the search endpoint to scrape each hit.
type ScrapeOptions struct {
	Formats []string `json:"formats,omitempty"`
}

// SearchResponse is the response from POST /search. The shape of Data varies
// across API versions (a list of hits in v1, an object keyed by source in
// v2), so it is kept raw for the caller to normalize. Some deployments return
// hits under a top-level "web" key instead.
type SearchResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Web     json.RawMessage `json:"web,omitempty"`
	Warning string          `json:"warning,omitempty"`
}

// ScrapeRequest is the body for POST /scrape.
type ScrapeRequest struct {
	URL             string   `json:"url"`
	Formats         []string `json:"formats,omitempty"`
	OnlyMainContent bool     `json:"onlyMainContent,omitempty"`
}

// ScrapeResponse is the response from POST /scrape.
type ScrapeResponse struct {
	Success bool     `json:"success"`
	Data    PageData `json:"data"`
}

// PageData represents a single page or search hit from Firecrawl.
type PageData struct {
	URL         string    `json:"url,omitempty"`
	Title       string    `json:"title,omitempty"`
	Description string    `json:"description,omitempty"`
	Markdown    string    `json:"markdown,omitempty"`
	Images      []string  `json:"images,omitempty"`
	Metadata    *Metadata `json:"metadata,omitempty"`
	Branding    *Branding `json:"branding,omitempty"`
}

// Metadata is the per-page metadata block attached to scraped content.
type Metadata struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	SourceURL   string `json:"sourceURL,omitempty"`
	URL         string `json:"url,omitempty"`
	StatusCode  int    `json:"statusCode,omitempty"`
}

// Branding is returned when the branding format is requested.
type Branding struct {
	ColorScheme string            `json:"colorScheme,omitempty"`
	Logo        string            `json:"logo,omitempty"`
	Colors      map[string]string `json:"colors,omitempty"`
	Images      map[string]string `json:"images,omitempty"`
}

// ResolvedURL returns the page URL, falling back to metadata.
func (p PageData) ResolvedURL() string {
	if p.URL != "" {
		return p.URL
	}
	if p.Metadata != nil {
		if p.Metadata.SourceURL != "" {
			return p.Metadata.SourceURL
		}
		return p.Metadata.URL
	}
	return ""
}

// ResolvedTitle returns the page title, falling back to metadata.
func (p PageData) ResolvedTitle() string {
	if p.Title != "" {
		return p.Title
	}
	if p.Metadata != nil {
		return p.Metadata.Title
	}
	return ""
}

// ResolvedDescription returns the page description, falling back to metadata.
func (p PageData) ResolvedDescription() string {
	if p.Description != "" {
		return p.Description
	}
	if p.Metadata != nil {
		return p.Metadata.Description
	}
	return ""
}

// LogoURL picks the best logo candidate from the branding block.
func (b *Branding) LogoURL() string {
	if b == nil {
		return ""
	}
	if b.Logo != "" {
		return b.Logo
	}
	if b.Images != nil {
		if logo := b.Images["logo"]; logo != "" {
			return logo
		}
		return b.Images["favicon"]
	}
	return ""
}

// APIError is returned when Firecrawl responds with a non-2xx status.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("firecrawl: HTTP %d: %s", e.StatusCode, e.Body)
}

// HTTPStatus exposes the response status for retry classification.
func (e *APIError) HTTPStatus() int {
	return e.StatusCode
}

// Option configures the httpClient.
type Option func(*httpClient)

// WithBaseURL overrides the default base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		if url != "" {
			c.baseURL = url
		}
	}
}

// WithHTTPClient sets a custom *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// httpClient implements Client using net/http.
type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates a new Firecrawl client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	var resp SearchResponse
	if err := c.post(ctx, "/search", req, &resp); err != nil {
		return nil, eris.Wrapf(err, "firecrawl: search %q", req.Query)
	}
	return &resp, nil
}

func (c *httpClient) Scrape(ctx context.Context, req ScrapeRequest) (*ScrapeResponse, error) {
	var resp ScrapeResponse
	if err := c.post(ctx, "/scrape", req, &resp); err != nil {
		return nil, eris.Wrapf(err, "firecrawl: scrape %s", req.URL)
	}
	return &resp, nil
}

func (c *httpClient) post(ctx context.Context, path string, body any, out any) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return eris.Wrap(err, "marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(buf))
	if err != nil {
		return eris.Wrap(err, "create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "execute request")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "read response body")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{
			StatusCode: resp.StatusCode,
			Body:       string(data),
		}
	}

	if err := json.Unmarshal(data, out); err != nil {
		return eris.Wrap(err, "decode response")
	}
	return nil
}
