// Package web implements the HTTP-facing adapters: page fetching, web
// search and video search.
package web

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/yungbote/hypermind-backend/internal/jobs/adapters"
	"github.com/yungbote/hypermind-backend/internal/platform/ctxutil"
	"github.com/yungbote/hypermind-backend/internal/platform/httpx"
	"github.com/yungbote/hypermind-backend/internal/platform/logger"
)

const (
	defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
	defaultMaxBytes  = 50 << 20
)

var errTooLarge = errors.New("response body too large")

type httpError struct {
	StatusCode int
	URL        string
}

func (e *httpError) Error() string       { return fmt.Sprintf("GET %s: http %d", e.URL, e.StatusCode) }
func (e *httpError) HTTPStatusCode() int { return e.StatusCode }

// Client is a small HTTP GET client shared by the web adapters.
type Client struct {
	log        *logger.Logger
	httpClient *http.Client
	userAgent  string
	maxBytes   int64
	maxRetries int
	sleep      func(context.Context, time.Duration) error
}

func NewClient(log *logger.Logger, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		log:        log.With("service", "WebClient"),
		httpClient: &http.Client{Timeout: timeout},
		userAgent:  defaultUserAgent,
		maxBytes:   defaultMaxBytes,
		maxRetries: 2,
		sleep:      httpx.SleepCtx,
	}
}

// get returns the body and content type of url, retrying transport errors
// and retryable statuses.
func (c *Client) get(ctx context.Context, service, url string) ([]byte, string, error) {
	backoff := 500 * time.Millisecond
	for attempt := 0; ; attempt++ {
		body, ct, resp, err := c.getOnce(ctx, url)
		if err == nil {
			return body, ct, nil
		}
		if !httpx.IsRetryableError(err) || attempt >= c.maxRetries {
			return nil, "", classify(service, err)
		}
		sleepFor := httpx.Jitter(httpx.RetryAfterDuration(resp, backoff, 10*time.Second), 0.2)
		c.log.Warn("Web request retrying", append([]interface{}{"service", service, "retry", attempt + 1, "sleep", sleepFor.String(), "error", err.Error()}, ctxutil.LogFields(ctx)...)...)
		if sErr := c.sleep(ctx, sleepFor); sErr != nil {
			return nil, "", sErr
		}
		backoff *= 2
	}
}

func (c *Client) getOnce(ctx context.Context, url string) ([]byte, string, *http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, "", resp, &httpError{StatusCode: resp.StatusCode, URL: url}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes+1))
	if err != nil {
		return nil, "", resp, err
	}
	if int64(len(body)) > c.maxBytes {
		return nil, "", resp, fmt.Errorf("%w: limit %d bytes", errTooLarge, c.maxBytes)
	}
	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		ct = http.DetectContentType(body)
	}
	return body, ct, resp, nil
}

func classify(service string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	var he *httpError
	if errors.As(err, &he) {
		return adapters.Wrap(service, adapters.FromHTTPStatus(he.StatusCode), err)
	}
	if httpx.IsRetryableError(err) {
		return adapters.Wrap(service, adapters.ServiceUnavailable, err)
	}
	if errors.Is(err, errTooLarge) {
		return adapters.Wrap(service, adapters.InvalidResponse, err)
	}
	return adapters.Wrap(service, adapters.IOError, err)
}

// Fetcher downloads source documents for extraction.
type Fetcher struct {
	c *Client
}

func NewFetcher(c *Client) *Fetcher { return &Fetcher{c: c} }

func (f *Fetcher) Fetch(ctx context.Context, url string) (adapters.Blob, error) {
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return adapters.Blob{}, adapters.Errorf("fetch", adapters.Unsupported, "unsupported url %q", url)
	}
	body, ct, err := f.c.get(ctx, "fetch", url)
	if err != nil {
		return adapters.Blob{}, err
	}
	return adapters.Blob{Data: body, ContentType: ct}, nil
}
