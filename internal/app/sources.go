package app

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/companyloc-platform/internal/config"
	"github.com/JakeFAU/companyloc-platform/internal/fetch"
	"github.com/JakeFAU/companyloc-platform/internal/ingest"
	"github.com/JakeFAU/companyloc-platform/internal/orchestrator"
	"github.com/JakeFAU/companyloc-platform/internal/policy/ratelimit"
	"github.com/JakeFAU/companyloc-platform/internal/sources"
	"github.com/JakeFAU/companyloc-platform/internal/sources/amazon"
	"github.com/JakeFAU/companyloc-platform/internal/sources/apple"
	"github.com/JakeFAU/companyloc-platform/internal/sources/google"
	"github.com/JakeFAU/companyloc-platform/internal/sources/meta"
	"github.com/JakeFAU/companyloc-platform/internal/sources/microsoft"
	"github.com/JakeFAU/companyloc-platform/internal/sources/nokia"
	"github.com/JakeFAU/companyloc-platform/internal/sources/workday"
)

// NewLimiter builds one page pacer and one detail pacer per configured
// source, keyed "<source>/page" and "<source>/detail". Both share the
// source's rps and burst.
func NewLimiter(cfg config.Config) *ratelimit.Limiter {
	configs := make(map[string]ratelimit.Config, 2*len(cfg.Pacing))
	for key, p := range cfg.Pacing {
		lo, hi := p.Page()
		configs[key+"/page"] = ratelimit.Config{RPS: p.RPS, Burst: p.Burst, MinDelay: lo, MaxDelay: hi}
		lo, hi = p.Detail()
		configs[key+"/detail"] = ratelimit.Config{RPS: p.RPS, Burst: p.Burst, MinDelay: lo, MaxDelay: hi}
	}
	return ratelimit.New(ratelimit.Config{}, configs)
}

// PacerFunc adapts a Limiter for the orchestrator.
func PacerFunc(l *ratelimit.Limiter) orchestrator.PacerFunc {
	return func(key string) (ingest.Pacer, ingest.Pacer) {
		return l.For(key + "/page"), l.For(key + "/detail")
	}
}

// ApplyHTTP overlays the non-zero HTTP overrides on p.
func ApplyHTTP(p fetch.Policy, h config.HTTPConfig) fetch.Policy {
	if h.TimeoutSeconds > 0 {
		p.Timeout = time.Duration(h.TimeoutSeconds) * time.Second
	}
	if h.MaxRetries > 0 {
		p.MaxRetries = h.MaxRetries
	}
	if h.BackoffInitialMs > 0 {
		p.BaseBackoff = time.Duration(h.BackoffInitialMs) * time.Millisecond
	}
	if h.BackoffMaxMs > 0 {
		p.MaxBackoff = time.Duration(h.BackoffMaxMs) * time.Millisecond
	}
	if h.JitterMs > 0 {
		p.JitterMax = time.Duration(h.JitterMs) * time.Millisecond
	}
	return p
}

type clientFactory struct {
	http   config.HTTPConfig
	logger *zap.Logger
}

func (f clientFactory) client(key string, policy fetch.Policy, header http.Header, opts ...fetch.Option) *fetch.Client {
	if f.http.UserAgent != "" {
		header.Set("User-Agent", f.http.UserAgent)
	}
	base := []fetch.Option{
		fetch.WithHeader(header),
		fetch.WithLogger(f.logger.Named("fetch").With(zap.String("source", key))),
	}
	return fetch.New(key, ApplyHTTP(policy, f.http), append(base, opts...)...)
}

// BuildRegistry constructs every production adapter. Sources switched off
// in configuration are registered as disabled.
func BuildRegistry(cfg config.Config, limiter *ratelimit.Limiter, logger *zap.Logger) *sources.Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	f := clientFactory{http: cfg.HTTP, logger: logger}

	msPolicy := ApplyHTTP(microsoft.Policy(), cfg.HTTP)
	all := []ingest.Source{
		amazon.New(f.client(amazon.Key, amazon.Policy(), amazon.Headers()), ""),
		apple.New(f.client(apple.Key, apple.Policy(), apple.Headers()), ""),
		google.New(f.client(google.Key, google.Policy(), google.Headers()), ""),
		workday.Intel(f.client(workday.IntelSite.Key, workday.Policy(), workday.Headers(workday.IntelSite))),
		meta.New(f.client(meta.Key, meta.Policy(), meta.Headers()),
			meta.WithItemPacer(limiter.For(meta.Key+"/detail")),
			meta.WithLogger(logger.Named("meta"))),
		microsoft.New(f.client(microsoft.Key, microsoft.Policy(), microsoft.Headers(),
			fetch.WithHTTPClient(microsoft.NewHTTPClient(msPolicy.Timeout))), "", ""),
		workday.NVIDIA(f.client(workday.NVIDIASite.Key, workday.Policy(), workday.Headers(workday.NVIDIASite))),
		nokia.New(f.client(nokia.Key, nokia.Policy(), nokia.Headers()), ""),
	}

	for i, src := range all {
		if ok, reason := cfg.SourceEnabled(src.Key()); !ok {
			all[i] = sources.Disable(src, reason)
		}
	}
	return sources.NewRegistry(all...)
}
