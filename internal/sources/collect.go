// Package sources drains source adapters under one pagination policy and
// keeps the registry of adapters by source key.
package sources

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/companyloc-platform/internal/ingest"
	"github.com/JakeFAU/companyloc-platform/internal/metrics"
)

const (
	// DefaultStreakLimit is the number of consecutive pages without a new
	// job key that ends a pass.
	DefaultStreakLimit = 3
	// DefaultMaxPages bounds one pass.
	DefaultMaxPages = 500
)

// CollectOptions tune Collect.
type CollectOptions struct {
	MaxPages    int
	StreakLimit int
	// PagePacer runs before every page after the first.
	PagePacer ingest.Pacer
	// DetailPacer runs before every detail resolution.
	DetailPacer ingest.Pacer
	Logger      *zap.Logger
}

func (o CollectOptions) withDefaults() CollectOptions {
	if o.MaxPages <= 0 {
		o.MaxPages = DefaultMaxPages
	}
	if o.StreakLimit <= 0 {
		o.StreakLimit = DefaultStreakLimit
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// Collect drains src and returns unique postings with at least one location.
//
// A pass ends on an empty page, when the pass has seen as many unique keys
// as the reported total, after StreakLimit pages without a new key, at
// MaxPages, or when the adapter marks the page Done. Sources implementing
// ingest.QueryFanout run one pass per query, merged by job key.
func Collect(ctx context.Context, src ingest.Source, opts CollectOptions) (ingest.CollectResult, error) {
	opts = opts.withDefaults()
	logger := opts.Logger.With(zap.String("source", src.Key()))

	queries := []string{""}
	if fan, ok := src.(ingest.QueryFanout); ok {
		if qs := fan.Queries(); len(qs) > 0 {
			queries = qs
		}
	}

	c := &collector{
		src:    src,
		opts:   opts,
		logger: logger,
		seen:   make(map[string]struct{}),
	}
	if resolver, ok := src.(ingest.LocationResolver); ok {
		c.resolver = resolver
	}

	firstTotal := 0
	for i, q := range queries {
		total, err := c.pass(ctx, strings.TrimSpace(q))
		if err != nil {
			return ingest.CollectResult{}, err
		}
		if i == 0 {
			firstTotal = total
		}
	}

	res := ingest.CollectResult{
		Total:    max(firstTotal, len(c.postings)),
		Postings: c.postings,
		Pages:    c.pages,
		Dropped:  c.dropped,
	}
	logger.Info("source drained",
		zap.Int("total", res.Total),
		zap.Int("fetched", len(res.Postings)),
		zap.Int("pages", res.Pages),
		zap.Int("dropped", res.Dropped),
	)
	return res, nil
}

type collector struct {
	src      ingest.Source
	resolver ingest.LocationResolver
	opts     CollectOptions
	logger   *zap.Logger

	seen     map[string]struct{}
	postings []ingest.RawPosting
	pages    int
	dropped  int
}

func (c *collector) pass(ctx context.Context, query string) (int, error) {
	cursor := ingest.Cursor{Query: query}
	passKeys := make(map[string]struct{})
	total := 0
	streak := 0

	for page := 0; page < c.opts.MaxPages; page++ {
		if page > 0 && c.opts.PagePacer != nil {
			if err := c.opts.PagePacer.Wait(ctx); err != nil {
				return total, err
			}
		}
		res, err := c.src.ListPage(ctx, cursor)
		if err != nil {
			return total, fmt.Errorf("%s page %d: %w", c.src.Key(), page+1, err)
		}
		c.pages++
		metrics.ObservePage(c.src.Key())
		if res.Total > total {
			total = res.Total
		}
		if len(res.Postings) == 0 {
			c.logger.Debug("empty page", zap.Int("page", page+1), zap.String("query", query))
			return total, nil
		}

		added, err := c.absorb(ctx, res.Postings, passKeys)
		if err != nil {
			return total, err
		}
		if added == 0 {
			streak++
		} else {
			streak = 0
		}

		switch {
		case res.Done:
			return total, nil
		case total > 0 && len(passKeys) >= total:
			return total, nil
		case streak >= c.opts.StreakLimit:
			c.logger.Info("no new postings; stopping",
				zap.Int("streak", streak), zap.String("query", query))
			return total, nil
		}
		cursor = res.Next
	}
	c.logger.Warn("page ceiling reached", zap.Int("max_pages", c.opts.MaxPages), zap.String("query", query))
	return total, nil
}

// absorb merges one page and returns how many keys were new to the pass.
func (c *collector) absorb(ctx context.Context, page []ingest.RawPosting, passKeys map[string]struct{}) (int, error) {
	added := 0
	for _, p := range page {
		p.JobKey = strings.TrimSpace(p.JobKey)
		if p.JobKey == "" {
			c.dropped++
			continue
		}
		if _, inPass := passKeys[p.JobKey]; !inPass {
			passKeys[p.JobKey] = struct{}{}
			added++
		}
		if _, dup := c.seen[p.JobKey]; dup {
			continue
		}
		c.seen[p.JobKey] = struct{}{}

		resolved, err := c.resolve(ctx, p)
		if err != nil {
			return added, err
		}
		resolved.Locations = uniqueLocations(resolved.Locations)
		if len(resolved.Locations) == 0 {
			c.dropped++
			continue
		}
		c.postings = append(c.postings, resolved)
	}
	return added, nil
}

func (c *collector) resolve(ctx context.Context, p ingest.RawPosting) (ingest.RawPosting, error) {
	if c.resolver == nil || !c.resolver.NeedsDetail(p) {
		return p, nil
	}
	if c.opts.DetailPacer != nil {
		if err := c.opts.DetailPacer.Wait(ctx); err != nil {
			return p, err
		}
	}
	locs, country, err := c.resolver.ResolveLocations(ctx, p)
	switch {
	case errors.Is(err, ingest.ErrDetailAccessDenied):
		c.logger.Warn("detail denied; keeping list text", zap.String("job_key", p.JobKey))
		p.Locations = fallbackLocations(p)
		return p, nil
	case errors.Is(err, ingest.ErrUpstreamShape):
		c.logger.Warn("detail payload unreadable; keeping list text", zap.String("job_key", p.JobKey), zap.Error(err))
		p.Locations = fallbackLocations(p)
		return p, nil
	case err != nil:
		return p, fmt.Errorf("resolve %s: %w", p.JobKey, err)
	}
	if len(locs) == 0 {
		p.Locations = fallbackLocations(p)
		return p, nil
	}
	p.Locations = locs
	if country != "" {
		p.DetailCountry = country
	}
	return p, nil
}

func fallbackLocations(p ingest.RawPosting) []string {
	if text := strings.TrimSpace(p.LocationsText); text != "" {
		return []string{text}
	}
	return p.Locations
}

func uniqueLocations(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, l := range in {
		l = strings.TrimSpace(l)
		if l == "" {
			continue
		}
		if _, ok := seen[l]; ok {
			continue
		}
		seen[l] = struct{}{}
		out = append(out, l)
	}
	return out
}
