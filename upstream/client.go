package upstream

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const clientNameHeader = "ET-Client-Name"

// Response is a fully-read upstream response. The gateway drains bodies so
// that retried attempts never leak connections.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// OK reports whether the status code is in the 2xx range.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// StatusError is returned by the Require* helpers when an upstream answered
// with a non-2xx status. Callers that treat specific codes specially (429
// cooldowns, 502/503 retry schedules) branch on Code.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream %s: HTTP %d", e.URL, e.Code)
}

// Options tunes one fetch: per-attempt timeout and connection-failure retries.
type Options struct {
	Timeout time.Duration
	Retries int
}

// Client is the gateway through which every upstream call goes. It applies a
// hard per-attempt timeout and retries connection-level failures (refused,
// timed out, aborted) with exponential backoff. HTTP error statuses are NOT
// retried here; callers interpret those themselves.
type Client struct {
	http       *http.Client
	clientName string
}

func NewClient(clientName string) *Client {
	return &Client{
		http:       &http.Client{},
		clientName: clientName,
	}
}

// Get fetches url with retry/backoff and returns the fully-read response.
func (c *Client) Get(ctx context.Context, url string, opt Options) (*Response, error) {
	return c.do(ctx, opt, func(reqCtx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	})
}

// PostJSON posts a JSON payload (already marshalled) with retry/backoff.
func (c *Client) PostJSON(ctx context.Context, url string, body []byte, opt Options) (*Response, error) {
	return c.do(ctx, opt, func(reqCtx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
}

func (c *Client) do(ctx context.Context, opt Options, build func(context.Context) (*http.Request, error)) (*Response, error) {
	if opt.Timeout <= 0 {
		opt.Timeout = 30 * time.Second
	}

	attempt := func() (*Response, error) {
		reqCtx, cancel := context.WithTimeout(ctx, opt.Timeout)
		defer cancel()

		req, err := build(reqCtx)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		if c.clientName != "" {
			req.Header.Set(clientNameHeader, c.clientName)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			// Connection-level failure (refused, DNS, timeout, abort):
			// retryable unless the parent context is done.
			if ctx.Err() != nil {
				return nil, backoff.Permanent(ctx.Err())
			}
			return nil, err
		}
		defer func() { _ = resp.Body.Close() }()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			if ctx.Err() != nil {
				return nil, backoff.Permanent(ctx.Err())
			}
			return nil, err
		}
		return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: data}, nil
	}

	b := &backoff.ExponentialBackOff{
		InitialInterval:     time.Second,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         time.Minute,
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	b.Reset()

	res, err := backoff.RetryWithData(attempt, backoff.WithContext(backoff.WithMaxRetries(b, uint64(opt.Retries)), ctx))
	if err != nil {
		return nil, fmt.Errorf("fetch failed after %d retries: %w", opt.Retries, err)
	}
	return res, nil
}

// RequireOK converts a non-2xx response into a *StatusError.
func RequireOK(url string, res *Response) (*Response, error) {
	if !res.OK() {
		return nil, &StatusError{URL: url, Code: res.StatusCode}
	}
	return res, nil
}
