// Package registry is a typed client for the npm registry's search and
// packument endpoints, built on the retrying transport.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/pkgscout/npm-discovery/pkg/cache"
	"github.com/pkgscout/npm-discovery/pkg/transport"
)

// DefaultBaseURL is the public npm registry.
const DefaultBaseURL = "https://registry.npmjs.org"

// searchPath is the registry's full-text search endpoint.
const searchPath = "/-/v1/search"

// Config holds the client configuration.
type Config struct {
	// BaseURL is the registry root (no trailing slash).
	BaseURL string

	// Cache optionally serves packuments read-through from Redis.
	Cache *cache.Manager

	// CacheTTL is the packument cache lifetime when Cache is set.
	CacheTTL time.Duration
}

// DefaultConfig returns a configuration for the public registry, no cache.
func DefaultConfig() Config {
	return Config{
		BaseURL:  DefaultBaseURL,
		CacheTTL: 15 * time.Minute,
	}
}

// Client fetches search pages and packuments. It is a thin delegation layer:
// all retry, backoff, and cancellation behavior lives in the transport.
type Client struct {
	transport *transport.Transport
	config    Config
	logger    zerolog.Logger
}

// NewClient creates a registry client on top of t.
func NewClient(t *transport.Transport, cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 15 * time.Minute
	}
	return &Client{
		transport: t,
		config:    cfg,
		logger:    log.With().Str("component", "registry").Logger(),
	}
}

// Search fetches one page of matches for q.
func (c *Client) Search(ctx context.Context, q Query) (*SearchPage, error) {
	if q.Text == "" {
		return nil, errors.New("search: query text is required")
	}

	u := c.config.BaseURL + searchPath + "?" + q.Values().Encode()
	resp, err := c.transport.Get(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", q.Text, err)
	}
	defer resp.Body.Close()

	var raw searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("search %q: decode response: %w", q.Text, err)
	}

	page := &SearchPage{
		Items: make([]Package, 0, len(raw.Objects)),
		Total: raw.Total,
	}
	for _, obj := range raw.Objects {
		page.Items = append(page.Items, obj.Package)
	}

	c.logger.Debug().
		Str("text", q.Text).
		Int("from", q.From).
		Int("items", len(page.Items)).
		Int("total", page.Total).
		Msg("Search page fetched")

	return page, nil
}

// Packument fetches the full registry document for name, serving from the
// cache when one is configured and fresh.
func (c *Client) Packument(ctx context.Context, name string) (*Packument, error) {
	if name == "" {
		return nil, errors.New("packument: package name is required")
	}

	key := cache.Key{Name: name}

	if c.config.Cache != nil {
		entry, err := c.config.Cache.Get(ctx, key)
		if err == nil {
			var p Packument
			if err := json.Unmarshal(entry.Body, &p); err == nil {
				c.logger.Debug().Str("package", name).Msg("Packument cache hit")
				return &p, nil
			}
			// Corrupt entry: drop it and fall through to a fetch.
			_ = c.config.Cache.Delete(ctx, key)
		} else if !errors.Is(err, cache.ErrCacheMiss) {
			c.logger.Warn().Err(err).Str("package", name).Msg("Packument cache get error")
		}
	}

	// Scoped names keep their "@" but encode the inner slash.
	u := c.config.BaseURL + "/" + url.PathEscape(name)
	resp, err := c.transport.Get(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("packument %q: %w", name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("packument %q: read response: %w", name, err)
	}

	var p Packument
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("packument %q: decode response: %w", name, err)
	}

	if c.config.Cache != nil {
		if err := c.config.Cache.Set(ctx, key, body, c.config.CacheTTL); err != nil {
			c.logger.Warn().Err(err).Str("package", name).Msg("Packument cache set error")
		}
	}

	return &p, nil
}
