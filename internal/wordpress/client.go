// Package wordpress reads conference content from the WordPress REST API:
// event posts with embedded taxonomy terms, presenter profiles, and the
// sponsorship groups with their sponsor posts.
package wordpress

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/michaelrayburke/cniga-wigc/internal/acf"
)

const (
	apiPrefix      = "/wp-json/wp/v2/"
	perPage        = 100
	maxPages       = 50
	maxErrorBody   = 512
	defaultTimeout = 30 * time.Second
)

// SponsorGroupRef names a sponsorship group post and the heading to show.
type SponsorGroupRef struct {
	Slug  string
	Label string
}

// Config describes the site and the post types it uses.
type Config struct {
	BaseURL             string
	EventPostType       string
	PresenterPostType   string
	SponsorshipPostType string
	SponsorTypes        []string
	SponsorGroups       []SponsorGroupRef
	Timeout             time.Duration
	UserAgent           string
	Concurrency         int
}

// HTTPError is returned for non-2xx responses.
type HTTPError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("wordpress: request failed: %d for %s", e.StatusCode, e.URL)
	}
	return fmt.Sprintf("wordpress: request failed: %d for %s: %s", e.StatusCode, e.URL, e.Body)
}

// Client talks to one WordPress site
type Client struct {
	cfg    Config
	base   *url.URL
	client *http.Client
	logger *zap.Logger
}

// Option configures a Client
type Option func(*Client)

// WithTransport wraps the HTTP transport, e.g. for metrics.
func WithTransport(wrap func(http.RoundTripper) http.RoundTripper) Option {
	return func(c *Client) {
		c.client.Transport = wrap(c.client.Transport)
	}
}

// WithHTTPClient replaces the HTTP client entirely.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.client = hc
		}
	}
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a client for cfg.BaseURL
func New(cfg Config, opts ...Option) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("wordpress base URL is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid wordpress base URL: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid wordpress base URL %q", cfg.BaseURL)
	}
	if cfg.EventPostType == "" {
		cfg.EventPostType = "wigc-event"
	}
	if cfg.PresenterPostType == "" {
		cfg.PresenterPostType = "presenter"
	}
	if cfg.SponsorshipPostType == "" {
		cfg.SponsorshipPostType = "sponsorships"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}

	c := &Client{
		cfg:    cfg,
		base:   base,
		client: newHTTPClient(cfg.Timeout),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func newHTTPClient(timeout time.Duration) *http.Client {
	tr := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 60 * time.Second}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
	}
	return &http.Client{Timeout: timeout, Transport: tr}
}

// endpoint builds /wp-json/wp/v2/<resource> with query.
func (c *Client) endpoint(resource string, query url.Values) string {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + apiPrefix + strings.TrimLeft(resource, "/")
	u.RawQuery = query.Encode()
	return u.String()
}

// getJSON fetches rawURL and decodes the body into out.
func (c *Client) getJSON(ctx context.Context, rawURL string, out any) (http.Header, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &HTTPError{StatusCode: resp.StatusCode, URL: rawURL, Body: strings.TrimSpace(string(body))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", rawURL, err)
	}
	return resp.Header, nil
}

// listPosts pages through a collection until X-WP-TotalPages is reached or a
// short page comes back.
func (c *Client) listPosts(ctx context.Context, resource string, query url.Values) ([]post, error) {
	if query == nil {
		query = url.Values{}
	}
	query.Set("per_page", strconv.Itoa(perPage))

	var all []post
	for page := 1; page <= maxPages; page++ {
		query.Set("page", strconv.Itoa(page))

		var batch []post
		header, err := c.getJSON(ctx, c.endpoint(resource, query), &batch)
		if err != nil {
			return nil, err
		}
		all = append(all, batch...)

		total, _ := strconv.Atoi(header.Get("X-WP-TotalPages"))
		if len(batch) < perPage || (total > 0 && page >= total) {
			break
		}
	}
	return all, nil
}

type rendered struct {
	Rendered string `json:"rendered"`
}

type mediaSize struct {
	SourceURL string `json:"source_url"`
}

type media struct {
	SourceURL    string `json:"source_url"`
	MediaDetails struct {
		Sizes map[string]mediaSize `json:"sizes"`
	} `json:"media_details"`
}

type embedded struct {
	Terms         [][]termJSON `json:"wp:term"`
	FeaturedMedia []media      `json:"wp:featuredmedia"`
}

// termJSON tolerates the error objects WordPress embeds in place of terms
// the caller cannot see.
type termJSON struct {
	Taxonomy string `json:"taxonomy"`
	Slug     string `json:"slug"`
	Name     string `json:"name"`
}

type post struct {
	ID       int        `json:"id"`
	Type     string     `json:"type"`
	Title    rendered   `json:"title"`
	Content  rendered   `json:"content"`
	ACF      acf.Fields `json:"acf"`
	Website  acf.Value  `json:"website"`
	Embedded embedded   `json:"_embedded"`
}
