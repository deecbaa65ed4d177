package binlookup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

var (
	// ErrInvalidBIN is returned for inputs that are not 6 to 8 digits.
	ErrInvalidBIN = errors.New("binlookup: invalid bin")

	// ErrBINNotFound is returned when the upstream has no data for the
	// range.
	ErrBINNotFound = errors.New("binlookup: bin not found")

	// ErrUpstreamUnavailable is returned for upstream failures the caller
	// can retry later.
	ErrUpstreamUnavailable = errors.New("binlookup: upstream unavailable")
)

// Result is the card metadata for a BIN range.
type Result struct {
	BIN     string `json:"bin"`
	Scheme  string `json:"scheme"`
	Type    string `json:"type"`
	Brand   string `json:"brand"`
	Prepaid bool   `json:"prepaid"`

	Bank struct {
		Name string `json:"name"`
	} `json:"bank"`

	Country struct {
		Alpha2 string `json:"alpha2"`
		Name   string `json:"name"`
	} `json:"country"`
}

// Cache stores lookup results keyed by BIN. A miss is (nil, nil).
type Cache interface {
	Get(ctx context.Context, bin string) (*Result, error)
	Set(ctx context.Context, bin string, res *Result, ttl time.Duration) error
}

// Config holds the upstream settings.
type Config struct {
	UpstreamURL string        `env:"BINLOOKUP_UPSTREAM_URL,required"`
	Timeout     time.Duration `env:"BINLOOKUP_TIMEOUT" envDefault:"15s"`
	CacheTTL    time.Duration `env:"BINLOOKUP_CACHE_TTL" envDefault:"24h"`
}

// Client queries the upstream provider through a cache.
type Client struct {
	upstreamURL string
	cacheTTL    time.Duration
	httpClient  *http.Client
	cache       Cache
	log         *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the HTTP client, used by tests.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithClientLogger sets the logger.
func WithClientLogger(log *slog.Logger) ClientOption {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

// NewClient wires a lookup client. cache may be nil to disable caching.
func NewClient(cfg Config, cache Cache, opts ...ClientOption) (*Client, error) {
	if cfg.UpstreamURL == "" {
		return nil, errors.New("binlookup: upstream URL is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}

	c := &Client{
		upstreamURL: strings.TrimSuffix(cfg.UpstreamURL, "/"),
		cacheTTL:    cfg.CacheTTL,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		cache:       cache,
		log:         slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Lookup resolves a BIN, serving from cache when possible. A cache
// failure degrades to an upstream call rather than failing the lookup.
func (c *Client) Lookup(ctx context.Context, bin string) (*Result, error) {
	if !ValidBIN(bin) {
		return nil, ErrInvalidBIN
	}

	if c.cache != nil {
		cached, err := c.cache.Get(ctx, bin)
		if err != nil {
			c.log.WarnContext(ctx, "bin cache read failed", "error", err)
		} else if cached != nil {
			return cached, nil
		}
	}

	res, err := c.fetch(ctx, bin)
	if err != nil {
		return nil, err
	}

	if c.cache != nil {
		if err := c.cache.Set(ctx, bin, res, c.cacheTTL); err != nil {
			c.log.WarnContext(ctx, "bin cache write failed", "error", err)
		}
	}
	return res, nil
}

func (c *Client) fetch(ctx context.Context, bin string) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.upstreamURL+"/"+bin, nil)
	if err != nil {
		return nil, fmt.Errorf("binlookup: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Join(ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrBINNotFound
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: upstream status %d", ErrUpstreamUnavailable, resp.StatusCode)
	}

	var res Result
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return nil, errors.Join(ErrUpstreamUnavailable, err)
	}
	res.BIN = bin
	return &res, nil
}

// ValidBIN reports whether s is a 6 to 8 digit BIN.
func ValidBIN(s string) bool {
	if len(s) < 6 || len(s) > 8 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
