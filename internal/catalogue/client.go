package catalogue

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	defaultBaseURL         = "https://www.epidemicsound.com"
	defaultUserAgent       = "urban-lullaby/dev"
	defaultRequestTimeout  = 30 * time.Second
	defaultDownloadTimeout = 5 * time.Minute
	maxErrorBody           = 4096
)

// SearchLimit is the number of entries requested per search.
const SearchLimit = 40

// ErrNoTracks reports a well-formed response without an entities.tracks object.
var ErrNoTracks = errors.New("catalogue: response has no tracks")

// Config describes the catalogue client configuration.
type Config struct {
	BaseURL         string
	UserAgent       string
	RequestTimeout  time.Duration
	DownloadTimeout time.Duration
	HTTPClient      *http.Client
	DownloadClient  *http.Client
}

// Client wraps the music-search JSON API.
type Client struct {
	baseURL   *url.URL
	userAgent string
	http      *http.Client
	download  *http.Client
}

// New creates a Client from the supplied configuration.
func New(cfg Config) (*Client, error) {
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		base = defaultBaseURL
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("catalogue: parse base url: %w", err)
	}
	if baseURL.Scheme == "" || baseURL.Host == "" {
		return nil, fmt.Errorf("catalogue: base url %q must be absolute", base)
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.RequestTimeout
		if timeout <= 0 {
			timeout = defaultRequestTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	download := cfg.DownloadClient
	if download == nil {
		timeout := cfg.DownloadTimeout
		if timeout <= 0 {
			timeout = defaultDownloadTimeout
		}
		download = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL:   baseURL,
		userAgent: userAgent,
		http:      client,
		download:  download,
	}, nil
}

// Search issues one relevance-ordered search for term. A response without
// entities.tracks returns ErrNoTracks.
func (c *Client) Search(ctx context.Context, term string) (*Response, error) {
	if c == nil {
		return nil, errors.New("catalogue: client is nil")
	}
	endpoint := c.baseURL.JoinPath("json", "search", "tracks")
	params := url.Values{}
	params.Set("term", term)
	params.Set("translate_text", "false")
	params.Set("order", "desc")
	params.Set("sort", "relevance")
	params.Set("limit", strconv.Itoa(SearchLimit))
	endpoint.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("catalogue: build search request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("catalogue: search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{Op: "search", StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	return decodeResponse(resp.Body)
}

// Download opens the audio stream at rawURL. The caller must close the body.
func (c *Client) Download(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	if c == nil {
		return nil, errors.New("catalogue: client is nil")
	}
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("catalogue: invalid audio url %q", rawURL)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("catalogue: build download request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.download.Do(req)
	if err != nil {
		return nil, fmt.Errorf("catalogue: download request failed: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		resp.Body.Close()
		return nil, &StatusError{Op: "download", StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return resp.Body, nil
}

// StatusError reports a non-2xx response.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	body := e.Body
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	if body == "" {
		return fmt.Sprintf("catalogue: %s failed (status %d)", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("catalogue: %s failed (status %d): %s", e.Op, e.StatusCode, body)
}
