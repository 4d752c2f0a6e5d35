package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSleeper struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (r *recordingSleeper) sleep(_ context.Context, d time.Duration) error {
	r.mu.Lock()
	r.waits = append(r.waits, d)
	r.mu.Unlock()
	return nil
}

func (r *recordingSleeper) total() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	var sum time.Duration
	for _, w := range r.waits {
		sum += w
	}
	return sum
}

func testPolicy() Policy {
	p := DefaultPolicy()
	p.MaxRetries = 3
	p.BaseBackoff = 100 * time.Millisecond
	p.MaxBackoff = 250 * time.Millisecond
	p.JitterMax = 40 * time.Millisecond
	p.Timeout = 5 * time.Second
	return p
}

func TestDoExhaustsRetriesOnConstant503(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	sleeper := &recordingSleeper{}
	policy := testPolicy()
	c := New("test", policy, WithSleeper(sleeper.sleep))

	_, err := c.Do(context.Background(), Request{URL: srv.URL})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRetriesExhausted)
	assert.Equal(t, http.StatusServiceUnavailable, StatusCode(err))
	assert.Equal(t, int32(policy.MaxRetries+1), hits.Load())
	require.Len(t, sleeper.waits, policy.MaxRetries)
	assert.LessOrEqual(t, sleeper.total(), policy.MaxTotalWait())
	for _, w := range sleeper.waits {
		assert.LessOrEqual(t, w, policy.MaxBackoff+policy.JitterMax)
	}
}

func TestDoElapsedTimeIsBoundedByCappedBackoff(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	policy := testPolicy()
	policy.BaseBackoff = 5 * time.Millisecond
	policy.MaxBackoff = 10 * time.Millisecond
	policy.JitterMax = 2 * time.Millisecond
	c := New("test", policy)

	start := time.Now()
	_, err := c.Do(context.Background(), Request{URL: srv.URL})
	elapsed := time.Since(start)
	require.ErrorIs(t, err, ErrRetriesExhausted)
	// Request round trips against a local server add a small overhead.
	assert.Less(t, elapsed, policy.MaxTotalWait()+2*time.Second)
}

func TestDoHonorsRetryAfter(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) == 1 {
			w.Header().Set("Retry-After", "7")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	sleeper := &recordingSleeper{}
	policy := testPolicy()
	policy.MaxBackoff = time.Minute
	c := New("test", policy, WithSleeper(sleeper.sleep), WithJitter(func(time.Duration) time.Duration { return 0 }))

	resp, err := c.Do(context.Background(), Request{URL: srv.URL})
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(resp.Body))
	require.Len(t, sleeper.waits, 1)
	assert.Equal(t, 7*time.Second, sleeper.waits[0])
}

func TestDoRetryAfterIsCapped(t *testing.T) {
	t.Parallel()

	p := testPolicy()
	assert.Equal(t, p.MaxBackoff, p.Backoff(0, time.Hour))
	assert.Equal(t, p.BaseBackoff, p.Backoff(0, 0))
	assert.Equal(t, 2*p.BaseBackoff, p.Backoff(1, 0))
	assert.Equal(t, p.MaxBackoff, p.Backoff(10, 0))
}

func TestDoNonRetryableStatusReturnsImmediately(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte("denied"))
	}))
	defer srv.Close()

	sleeper := &recordingSleeper{}
	c := New("test", testPolicy(), WithSleeper(sleeper.sleep))
	_, err := c.Do(context.Background(), Request{URL: srv.URL})

	var he *HTTPError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, http.StatusForbidden, he.StatusCode)
	assert.Equal(t, "denied", he.Body)
	assert.NotErrorIs(t, err, ErrRetriesExhausted)
	assert.Equal(t, int32(1), hits.Load())
	assert.Empty(t, sleeper.waits)
}

func TestDoRetriesExtraStatuses(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte("<html></html>"))
	}))
	defer srv.Close()

	sleeper := &recordingSleeper{}
	c := New("test", testPolicy().WithRetryable(http.StatusBadRequest), WithSleeper(sleeper.sleep))
	resp, err := c.Do(context.Background(), Request{URL: srv.URL})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(3), hits.Load())
	assert.Len(t, sleeper.waits, 2)
}

func TestDoRetriesTransportErrors(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	target := srv.URL
	srv.Close()

	sleeper := &recordingSleeper{}
	c := New("test", testPolicy(), WithSleeper(sleeper.sleep))
	_, err := c.Do(context.Background(), Request{URL: target})
	require.ErrorIs(t, err, ErrRetriesExhausted)
	assert.Zero(t, StatusCode(err))
	assert.Len(t, sleeper.waits, 3)
}

func TestDoSendsJSONQueryAndHeaders(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "default", r.Header.Get("X-Default"))
		assert.Equal(t, "call", r.Header.Get("X-Call"))
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "en-US", body["locale"])
		_, _ = w.Write([]byte(`{"total":3}`))
	}))
	defer srv.Close()

	c := New("test", testPolicy(), WithHeader(http.Header{"X-Default": {"default"}}))
	resp, err := c.Do(context.Background(), Request{
		Method: http.MethodPost,
		URL:    srv.URL,
		Query:  url.Values{"page": {"2"}},
		Header: http.Header{"X-Call": {"call"}},
		JSON:   map[string]string{"locale": "en-US"},
	})
	require.NoError(t, err)
	var out struct {
		Total int `json:"total"`
	}
	require.NoError(t, resp.DecodeJSON(&out))
	assert.Equal(t, 3, out.Total)
}

func TestDoStopsOnCanceledContext(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	c := New("test", testPolicy(), WithSleeper(func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	}))
	_, err := c.Do(ctx, Request{URL: srv.URL})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestParseRetryAfter(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, 3*time.Second, parseRetryAfter("3", now))
	assert.Equal(t, 1500*time.Millisecond, parseRetryAfter("1.5", now))
	assert.Zero(t, parseRetryAfter("", now))
	assert.Zero(t, parseRetryAfter("soon", now))
	assert.Equal(t, 30*time.Second, parseRetryAfter(now.Add(30*time.Second).Format(http.TimeFormat), now))
}
