package gazette

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Defaults for the Maldives gazette listing filtered to job postings.
const (
	DefaultListingURL = "https://gazette.gov.mv/iulaan?type=&job-category=" +
		"&office=%DE%8A%DE%AA%DE%82%DE%A6%DE%8B%DE%AB&q=&start-date=&end-date="
	DefaultOrigin    = "https://gazette.gov.mv"
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/120.0 Safari/537.36"
	DefaultTimeout = 20 * time.Second

	snapshotContentType = "text/html; charset=utf-8"
)

// ClientConfig controls which page is scraped and how.
type ClientConfig struct {
	ListingURL string
	Origin     string
	UserAgent  string
	// SnapshotPrefix is the blob path prefix for archived listing pages.
	SnapshotPrefix string
}

// Client fetches and parses the gazette listing page.
type Client struct {
	fetcher Fetcher
	cfg     ClientConfig
	archive BlobStore
	hasher  Hasher
	clock   Clock
	logger  *zap.Logger
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithSnapshots archives every successfully fetched listing page to store,
// keyed by content hash.
func WithSnapshots(store BlobStore, hasher Hasher, clock Clock) ClientOption {
	return func(c *Client) {
		c.archive = store
		c.hasher = hasher
		c.clock = clock
	}
}

// NewClient builds a Client, filling unset config values with the defaults.
func NewClient(fetcher Fetcher, cfg ClientConfig, logger *zap.Logger, opts ...ClientOption) *Client {
	if cfg.ListingURL == "" {
		cfg.ListingURL = DefaultListingURL
	}
	if cfg.Origin == "" {
		cfg.Origin = DefaultOrigin
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.SnapshotPrefix == "" {
		cfg.SnapshotPrefix = "snapshots"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{
		fetcher: fetcher,
		cfg:     cfg,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchPosts performs a single GET of the listing page and returns the
// postings it links to, in page order.
func (c *Client) FetchPosts(ctx context.Context) ([]Listing, error) {
	resp, err := c.fetcher.Fetch(ctx, FetchRequest{
		URL:     c.cfg.ListingURL,
		Headers: http.Header{"User-Agent": {c.cfg.UserAgent}},
	})
	if err != nil {
		var remote *RemoteServiceError
		if errors.As(err, &remote) {
			return nil, remote
		}
		return nil, &RemoteServiceError{URL: c.cfg.ListingURL, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &RemoteServiceError{URL: c.cfg.ListingURL, StatusCode: resp.StatusCode}
	}

	c.snapshot(ctx, resp.Body)

	listings, err := ParseListings(bytes.NewReader(resp.Body), c.cfg.Origin)
	if err != nil {
		return nil, fmt.Errorf("parse gazette listing: %w", err)
	}
	c.logger.Debug("gazette listing parsed",
		zap.Int("listings", len(listings)),
		zap.Int("bytes", len(resp.Body)),
		zap.Duration("duration", resp.Duration),
	)
	return listings, nil
}

func (c *Client) snapshot(ctx context.Context, body []byte) {
	if c.archive == nil || c.hasher == nil {
		return
	}
	digest, err := c.hasher.Hash(body)
	if err != nil {
		c.logger.Warn("hash listing snapshot failed", zap.Error(err))
		return
	}
	now := time.Now().UTC()
	if c.clock != nil {
		now = c.clock.Now()
	}
	path := fmt.Sprintf("%s/%s/%s.html", c.cfg.SnapshotPrefix, now.Format("2006/01/02"), digest)
	uri, err := c.archive.PutObject(ctx, path, snapshotContentType, bytes.NewReader(body))
	if err != nil {
		c.logger.Warn("archive listing snapshot failed", zap.String("path", path), zap.Error(err))
		return
	}
	c.logger.Debug("listing snapshot archived", zap.String("uri", uri))
}
