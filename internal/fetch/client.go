// Package fetch is the retrying HTTP client every source adapter calls.
//
// A call is retried on transport errors and on the policy's retryable
// statuses with capped exponential backoff plus jitter. A Retry-After header
// takes precedence over the computed delay. Other error statuses return an
// *HTTPError immediately without spending retry budget.
package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/companyloc-platform/internal/metrics"
)

// maxBodyBytes bounds a single response body.
const maxBodyBytes = 32 << 20

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Request describes one logical call.
type Request struct {
	Method string
	URL    string
	Query  url.Values
	Header http.Header
	// JSON is marshaled as the body when Body is nil.
	JSON any
	Body []byte
}

// Response is a fully read response with a success status.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// DecodeJSON unmarshals the body into v.
func (r *Response) DecodeJSON(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decode json: %w", err)
	}
	return nil
}

// Client executes requests for one source under one Policy.
type Client struct {
	source string
	http   *http.Client
	policy Policy
	header http.Header
	sleep  Sleeper
	jitter func(time.Duration) time.Duration
	now    func() time.Time
	logger *zap.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithHeader sets default headers sent on every request.
func WithHeader(h http.Header) Option {
	return func(c *Client) {
		for k, vs := range h {
			c.header[k] = append([]string(nil), vs...)
		}
	}
}

// WithSleeper replaces the backoff sleeper.
func WithSleeper(s Sleeper) Option {
	return func(c *Client) {
		if s != nil {
			c.sleep = s
		}
	}
}

// WithJitter replaces the jitter source.
func WithJitter(j func(time.Duration) time.Duration) Option {
	return func(c *Client) {
		if j != nil {
			c.jitter = j
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// New builds a Client for source.
func New(source string, policy Policy, opts ...Option) *Client {
	c := &Client{
		source: source,
		http:   &http.Client{},
		policy: policy,
		header: make(http.Header),
		sleep:  SleepContext,
		jitter: randomJitter,
		now:    time.Now,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Source returns the source key the client reports metrics under.
func (c *Client) Source() string {
	return c.source
}

// Policy returns the client's retry policy.
func (c *Client) Policy() Policy {
	return c.policy
}

// HTTPClient exposes the underlying http.Client.
func (c *Client) HTTPClient() *http.Client {
	return c.http
}

// Do executes req, retrying per the policy.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	body, err := requestBody(req)
	if err != nil {
		return nil, err
	}
	target, err := buildURL(req.URL, req.Query)
	if err != nil {
		return nil, err
	}
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	for attempt := 0; ; attempt++ {
		resp, retryAfter, lastErr := c.attempt(ctx, method, target, req, body)
		if lastErr == nil {
			metrics.ObserveFetchAttempt(c.source, "ok")
			return resp, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%s %s: %w", method, target, ctxErr)
		}
		var he *HTTPError
		if errors.As(lastErr, &he) && !c.policy.Retryable(he.StatusCode) {
			metrics.ObserveFetchAttempt(c.source, "error")
			return nil, lastErr
		}
		if attempt >= c.policy.MaxRetries {
			metrics.ObserveFetchAttempt(c.source, "exhausted")
			return nil, fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, attempt+1, lastErr)
		}
		metrics.ObserveFetchAttempt(c.source, "retry")
		wait := c.policy.Backoff(attempt, retryAfter) + c.jitter(c.policy.JitterMax)
		c.logger.Debug("retrying upstream call",
			zap.String("source", c.source),
			zap.String("url", target),
			zap.Int("attempt", attempt+1),
			zap.Duration("wait", wait),
			zap.Error(lastErr),
		)
		metrics.ObserveRetryWait(c.source, wait)
		if err := c.sleep(ctx, wait); err != nil {
			return nil, fmt.Errorf("%s %s: %w", method, target, err)
		}
	}
}

func (c *Client) attempt(
	ctx context.Context,
	method, target string,
	req Request,
	body []byte,
) (*Response, time.Duration, error) {
	callCtx := ctx
	if c.policy.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.policy.Timeout)
		defer cancel()
	}
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(callCtx, method, target, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("build request: %w", err)
	}
	for k, vs := range c.header {
		httpReq.Header[k] = vs
	}
	for k, vs := range req.Header {
		httpReq.Header[http.CanonicalHeaderKey(k)] = vs
	}
	if req.JSON != nil && req.Body == nil && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, 0, fmt.Errorf("%s %s: %w", method, target, err)
	}
	defer resp.Body.Close() //nolint:errcheck // body fully read below
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, 0, fmt.Errorf("read body %s: %w", target, err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		snippet := data
		if len(snippet) > maxErrorBody {
			snippet = snippet[:maxErrorBody]
		}
		return nil, parseRetryAfter(resp.Header.Get("Retry-After"), c.now()), &HTTPError{
			Method:     method,
			URL:        target,
			StatusCode: resp.StatusCode,
			Body:       string(snippet),
		}
	}
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: data}, 0, nil
}

func requestBody(req Request) ([]byte, error) {
	if req.Body != nil {
		return req.Body, nil
	}
	if req.JSON == nil {
		return nil, nil
	}
	data, err := json.Marshal(req.JSON)
	if err != nil {
		return nil, fmt.Errorf("marshal request body: %w", err)
	}
	return data, nil
}

func buildURL(raw string, query url.Values) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if len(query) > 0 {
		q := u.Query()
		for k, vs := range query {
			q[k] = vs
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// SleepContext sleeps for d unless ctx is done first.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("sleep interrupted: %w", ctx.Err())
	case <-t.C:
		return nil
	}
}
