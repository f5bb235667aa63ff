package vehicles

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

// Feed produces vehicle snapshots.
type Feed interface {
	Fetch(ctx context.Context) (*Snapshot, error)
}

// FeedFunc adapts a function to the Feed interface.
type FeedFunc func(ctx context.Context) (*Snapshot, error)

// Fetch calls f.
func (f FeedFunc) Fetch(ctx context.Context) (*Snapshot, error) {
	return f(ctx)
}

// HTTPFeed polls a JSON vehicle endpoint.
type HTTPFeed struct {
	url    string
	client *http.Client
}

// NewHTTPFeed creates a feed for url. A nil client uses http.DefaultClient.
func NewHTTPFeed(url string, client *http.Client) *HTTPFeed {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPFeed{url: url, client: client}
}

// URL returns the polled endpoint.
func (f *HTTPFeed) URL() string {
	return f.url
}

// Fetch downloads and decodes one snapshot.
func (f *HTTPFeed) Fetch(ctx context.Context) (*Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create feed request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch vehicle feed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("HTTP %d from %s", resp.StatusCode, f.url)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read vehicle feed: %w", err)
	}
	return DecodeFeed(data)
}
