// Package ratelimit paces upstream calls with a token bucket plus a uniform
// courtesy delay, keyed by pacer name.
package ratelimit

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/companyloc-platform/internal/metrics"
)

// Config holds one pacer's settings.
type Config struct {
	// RPS bounds the call rate; zero or less disables the token bucket.
	RPS   float64
	Burst int
	// MinDelay and MaxDelay bound the uniform delay added to every wait.
	MinDelay time.Duration
	MaxDelay time.Duration
}

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Pacer enforces spacing between calls to one upstream.
type Pacer struct {
	name    string
	limiter *rate.Limiter
	min     time.Duration
	max     time.Duration
	sleep   Sleeper
	uniform func(lo, hi time.Duration) time.Duration
}

// Option customizes a Pacer.
type Option func(*Pacer)

// WithSleeper replaces the delay sleeper.
func WithSleeper(s Sleeper) Option {
	return func(p *Pacer) {
		if s != nil {
			p.sleep = s
		}
	}
}

// WithUniform replaces the delay distribution.
func WithUniform(u func(lo, hi time.Duration) time.Duration) Option {
	return func(p *Pacer) {
		if u != nil {
			p.uniform = u
		}
	}
}

// NewPacer creates a Pacer.
func NewPacer(name string, cfg Config, opts ...Option) *Pacer {
	r := rate.Limit(cfg.RPS)
	if cfg.RPS <= 0 {
		r = rate.Inf
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	lo, hi := cfg.MinDelay, cfg.MaxDelay
	if hi < lo {
		hi = lo
	}
	p := &Pacer{
		name:    name,
		limiter: rate.NewLimiter(r, burst),
		min:     lo,
		max:     hi,
		sleep:   sleepContext,
		uniform: uniform,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Limit reports the token bucket rate; rate.Inf when unbounded.
func (p *Pacer) Limit() rate.Limit { return p.limiter.Limit() }

// Burst reports the token bucket size.
func (p *Pacer) Burst() int { return p.limiter.Burst() }

// Wait blocks until the next call may proceed.
func (p *Pacer) Wait(ctx context.Context) error {
	start := time.Now()
	if err := p.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	delay := p.uniform(p.min, p.max)
	if err := p.sleep(ctx, delay); err != nil {
		return fmt.Errorf("pacing delay: %w", err)
	}
	metrics.ObservePacingDelay(p.name, time.Since(start))
	return nil
}

// Limiter hands out one Pacer per key, created on first use.
type Limiter struct {
	mu       sync.Mutex
	pacers   map[string]*Pacer
	configs  map[string]Config
	fallback Config
	opts     []Option
}

// New creates a Limiter. Keys without an entry in configs use fallback.
func New(fallback Config, configs map[string]Config, opts ...Option) *Limiter {
	cp := make(map[string]Config, len(configs))
	for k, v := range configs {
		cp[k] = v
	}
	return &Limiter{
		pacers:   make(map[string]*Pacer),
		configs:  cp,
		fallback: fallback,
		opts:     opts,
	}
}

// For returns the pacer for key.
func (l *Limiter) For(key string) *Pacer {
	l.mu.Lock()
	defer l.mu.Unlock()
	if p, ok := l.pacers[key]; ok {
		return p
	}
	cfg, ok := l.configs[key]
	if !ok {
		cfg = l.fallback
	}
	p := NewPacer(key, cfg, l.opts...)
	l.pacers[key] = p
	return p
}

func uniform(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(hi-lo)+1))
	if err != nil {
		return lo + (hi-lo)/2
	}
	return lo + time.Duration(n.Int64())
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
