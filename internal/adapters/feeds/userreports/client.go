// Package userreports fetches batches of community-submitted reports from the
// intake endpoint. The same client serves the legacy export, only the
// normalizer differs
package userreports

import (
	"context"
	"io"
	"net/http"
	"time"

	perr "pulsemap/internal/platform/errors"
)

const (
	defaultTimeout = 15 * time.Second
	defaultUA      = "pulsemap-ingest"

	maxBody = 16 << 20
)

// Options configures the Client
type Options struct {
	URL       string
	UserAgent string
	Timeout   time.Duration
}

// Client is a minimal fetcher for the report intake endpoint.
// Retry policy lives with the caller, the client does a single attempt
type Client struct {
	http *http.Client
	opts Options
}

// NewClient creates a new Client with sane defaults
func NewClient(o Options) *Client {
	if o.UserAgent == "" {
		o.UserAgent = defaultUA
	}
	if o.Timeout <= 0 {
		o.Timeout = defaultTimeout
	}
	return &Client{
		http: &http.Client{Timeout: o.Timeout},
		opts: o,
	}
}

// Fetch performs one GET against the intake endpoint and returns the raw payload
func (c *Client) Fetch(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.opts.URL, nil)
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeUnknown, "user reports request build failed")
	}
	req.Header.Set("User-Agent", c.opts.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeUnavailable, "user reports fetch failed")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		tail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, perr.Newf(perr.ErrorCodeUnavailable,
			"user reports feed status %d body %s", resp.StatusCode, string(tail))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeUnavailable, "user reports body read failed")
	}
	return body, nil
}
