package feed

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const maxFeedBytes = 32 << 20 // refuse absurd feed documents

// Fetcher downloads feed documents with a shared rate limit and consistent
// request headers.
type Fetcher struct {
	client    *http.Client
	userAgent string
	limiter   *rate.Limiter
}

// FetcherOptions configure a Fetcher.
type FetcherOptions struct {
	TimeoutSeconds int
	UserAgent      string
	FetchesPerMin  int
}

// NewFetcher builds a Fetcher from options.
func NewFetcher(opts FetcherOptions) *Fetcher {
	timeout := 60 * time.Second
	if opts.TimeoutSeconds > 0 {
		timeout = time.Duration(opts.TimeoutSeconds) * time.Second
	}
	userAgent := strings.TrimSpace(opts.UserAgent)
	if userAgent == "" {
		userAgent = "podsnip/0.1"
	}
	fetcher := &Fetcher{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
	}
	if opts.FetchesPerMin > 0 {
		fetcher.limiter = rate.NewLimiter(rate.Limit(float64(opts.FetchesPerMin)/60.0), 1)
	}
	return fetcher
}

// Fetch downloads a feed document and returns its raw bytes untouched.
func (f *Fetcher) Fetch(ctx context.Context, feedURL string) ([]byte, error) {
	feedURL = strings.TrimSpace(feedURL)
	if feedURL == "" {
		return nil, fmt.Errorf("fetch feed: url required")
	}
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("fetch feed: rate limit wait: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: new request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "application/rss+xml, application/xml, text/xml, */*")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch feed %s: %w", feedURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch feed %s: http %d", feedURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes+1))
	if err != nil {
		return nil, fmt.Errorf("fetch feed %s: read body: %w", feedURL, err)
	}
	if int64(len(body)) > maxFeedBytes {
		return nil, fmt.Errorf("fetch feed %s: document exceeds %d bytes", feedURL, int64(maxFeedBytes))
	}
	return body, nil
}
