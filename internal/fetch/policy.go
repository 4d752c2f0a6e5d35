package fetch

import (
	"crypto/rand"
	"math"
	"math/big"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"
)

// DefaultRetryableStatuses are retried by every source.
var DefaultRetryableStatuses = []int{
	http.StatusTooManyRequests,
	http.StatusInternalServerError,
	http.StatusBadGateway,
	http.StatusServiceUnavailable,
	http.StatusGatewayTimeout,
}

// Policy configures timeouts and retries for one source.
type Policy struct {
	Timeout           time.Duration
	MaxRetries        int
	BaseBackoff       time.Duration
	MaxBackoff        time.Duration
	JitterMax         time.Duration
	RetryableStatuses []int
}

// DefaultPolicy returns the common retry settings.
func DefaultPolicy() Policy {
	return Policy{
		Timeout:           25 * time.Second,
		MaxRetries:        4,
		BaseBackoff:       time.Second,
		MaxBackoff:        30 * time.Second,
		JitterMax:         500 * time.Millisecond,
		RetryableStatuses: DefaultRetryableStatuses,
	}
}

// WithRetryable returns a copy of p that also retries the given statuses.
func (p Policy) WithRetryable(statuses ...int) Policy {
	merged := append([]int(nil), p.RetryableStatuses...)
	for _, s := range statuses {
		if !slices.Contains(merged, s) {
			merged = append(merged, s)
		}
	}
	p.RetryableStatuses = merged
	return p
}

// Retryable reports whether status should be retried.
func (p Policy) Retryable(status int) bool {
	return slices.Contains(p.RetryableStatuses, status)
}

// Backoff returns the capped delay before the retry following attempt,
// excluding jitter. A positive retryAfter replaces the exponential delay.
func (p Policy) Backoff(attempt int, retryAfter time.Duration) time.Duration {
	delay := retryAfter
	if delay <= 0 {
		delay = time.Duration(float64(p.BaseBackoff) * math.Pow(2, float64(attempt)))
	}
	if p.MaxBackoff > 0 && (delay > p.MaxBackoff || delay < 0) {
		delay = p.MaxBackoff
	}
	return delay
}

// MaxTotalWait is the upper bound on time spent sleeping across all retries.
func (p Policy) MaxTotalWait() time.Duration {
	var total time.Duration
	for attempt := 0; attempt < p.MaxRetries; attempt++ {
		total += p.Backoff(attempt, 0) + p.JitterMax
	}
	return total
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(limit)))
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}

// parseRetryAfter accepts delta-seconds or an HTTP date.
func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs * float64(time.Second))
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
