package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
)

const defaultCDNUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

// ContentResult represents the bytes of one fetched asset
type ContentResult struct {
	Data        []byte
	ContentType string
}

// ContentFetcher fetches CDN assets through a handler chain. It implements
// ContentSource.
type ContentFetcher struct {
	handlers  []ContentHandler
	client    *http.Client
	userAgent string
	retries   uint
	logger    *zap.Logger
}

// NewContentFetcher creates a fetcher with the default handlers
func NewContentFetcher(client *http.Client, userAgent string, retries uint, logger *zap.Logger) *ContentFetcher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if userAgent == "" {
		userAgent = defaultCDNUserAgent
	}
	if retries == 0 {
		retries = 1
	}
	f := &ContentFetcher{
		client:    client,
		userAgent: userAgent,
		retries:   retries,
		logger:    logger,
	}

	// Register handlers (most specific first)
	f.AddHandler(&ImageHandler{})
	f.AddHandler(&HTMLHandler{converter: md.NewConverter("", true, nil)}) // fallback

	return f
}

// AddHandler adds a content handler to the chain
func (f *ContentFetcher) AddHandler(handler ContentHandler) {
	f.handlers = append(f.handlers, handler)
}

// Fetch returns the bytes at url, retrying transient failures. A 404 is
// reported as ErrNotFound without retrying.
func (f *ContentFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	attempt := 0
	result, err := backoff.Retry(ctx, func() (*ContentResult, error) {
		attempt++
		return f.FetchContent(ctx, url)
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(f.retries),
		backoff.WithNotify(func(err error, wait time.Duration) {
			f.logger.Debug("retrying fetch", zap.String("url", url), zap.Int("attempt", attempt), zap.Duration("wait", wait), zap.Error(err))
		}),
	)
	if err != nil {
		return nil, classifyFetchError(err)
	}
	return result.Data, nil
}

// FetchContent performs a single request and runs the handler chain
func (f *ContentFetcher) FetchContent(ctx context.Context, url string) (*ContentResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("building request for %s: %w", url, err))
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		httpErr := &HTTPError{StatusCode: resp.StatusCode, URL: url}
		if !retryableStatus(resp.StatusCode) {
			return nil, backoff.Permanent(httpErr)
		}
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
			return nil, errors.Join(httpErr, backoff.RetryAfter(secs))
		}
		return nil, httpErr
	}

	// Find handler based on URL + response headers
	for _, handler := range f.handlers {
		if handler.CanHandle(url, resp) {
			return handler.Handle(url, resp)
		}
	}

	return nil, backoff.Permanent(fmt.Errorf("no handler found for %s", url))
}

func retryableStatus(code int) bool {
	switch {
	case code == http.StatusProxyAuthRequired, code == http.StatusTooManyRequests:
		return true
	case code >= 500:
		return true
	}
	return false
}

func classifyFetchError(err error) error {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return transient(err)
}
