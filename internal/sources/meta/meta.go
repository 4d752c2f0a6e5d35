// Package meta lists postings from the metacareers.com sitemap.
//
// The sitemap is the listing; every job page is fetched and its JSON-LD
// JobPosting block supplies title, date and locations.
package meta

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/companyloc-platform/internal/fetch"
	"github.com/JakeFAU/companyloc-platform/internal/ingest"
	"github.com/JakeFAU/companyloc-platform/internal/location"
)

const (
	// Key is the source key.
	Key = "meta"
	// DefaultSitemapURL lists every open job page.
	DefaultSitemapURL = "https://www.metacareers.com/jobs/sitemap.xml"
	// DefaultBatchSize is the number of job pages fetched per listing page.
	DefaultBatchSize = 25

	jobPathMarker = "/profile/job_details/"
)

// Policy is the retry policy for sitemap and job pages.
func Policy() fetch.Policy {
	return fetch.Policy{
		Timeout:           25 * time.Second,
		MaxRetries:        4,
		BaseBackoff:       time.Second,
		MaxBackoff:        30 * time.Second,
		JitterMax:         400 * time.Millisecond,
		RetryableStatuses: fetch.DefaultRetryableStatuses,
	}.WithRetryable(http.StatusBadRequest)
}

// Headers returns the default request headers. Some desktop user agents
// are refused on job pages.
func Headers() http.Header {
	h := make(http.Header)
	h.Set("Accept", "*/*")
	h.Set("User-Agent", "Mozilla/5.0")
	return h
}

// Source is the Meta adapter.
type Source struct {
	client     *fetch.Client
	sitemapURL string
	batchSize  int
	itemPacer  ingest.Pacer
	logger     *zap.Logger

	mu   sync.Mutex
	urls []string
}

// Option customizes a Source.
type Option func(*Source)

// WithSitemapURL overrides the sitemap location.
func WithSitemapURL(u string) Option {
	return func(s *Source) {
		if u != "" {
			s.sitemapURL = u
		}
	}
}

// WithBatchSize sets how many job pages one listing page covers.
func WithBatchSize(n int) Option {
	return func(s *Source) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithItemPacer sets the pacer run between job page fetches.
func WithItemPacer(p ingest.Pacer) Option {
	return func(s *Source) { s.itemPacer = p }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Source) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates the adapter.
func New(client *fetch.Client, opts ...Option) *Source {
	s := &Source{
		client:     client,
		sitemapURL: DefaultSitemapURL,
		batchSize:  DefaultBatchSize,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Key implements ingest.Source.
func (s *Source) Key() string { return Key }

// Scoring implements ingest.ScoringProvider.
func (s *Source) Scoring() location.Scoring { return location.ListScoring }

// Bootstrap implements ingest.Bootstrapper by loading the sitemap.
func (s *Source) Bootstrap(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked(ctx)
}

func (s *Source) loadLocked(ctx context.Context) error {
	if s.urls != nil {
		return nil
	}
	resp, err := s.client.Do(ctx, fetch.Request{Method: http.MethodGet, URL: s.sitemapURL})
	if err != nil {
		return fmt.Errorf("meta sitemap: %w", err)
	}
	urls, err := ParseSitemap(resp.Body)
	if err != nil {
		return err
	}
	s.urls = urls
	return nil
}

func (s *Source) jobURLs(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadLocked(ctx); err != nil {
		return nil, err
	}
	return s.urls, nil
}

type urlset struct {
	URLs []struct {
		Loc string `xml:"loc"`
	} `xml:"url"`
}

// ParseSitemap returns the job page URLs in a sitemap document, in order.
func ParseSitemap(data []byte) ([]string, error) {
	var set urlset
	if err := xml.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("meta sitemap: %w: %w", ingest.ErrUpstreamShape, err)
	}
	urls := make([]string, 0, len(set.URLs))
	for _, u := range set.URLs {
		loc := strings.TrimSpace(u.Loc)
		if strings.Contains(loc, jobPathMarker) {
			urls = append(urls, loc)
		}
	}
	return urls, nil
}

// JobKey is the last path segment of a job page URL.
func JobKey(jobURL string) string {
	trimmed := strings.TrimRight(strings.TrimSpace(jobURL), "/")
	if i := strings.LastIndex(trimmed, "/"); i >= 0 {
		return trimmed[i+1:]
	}
	return trimmed
}

// ListPage implements ingest.Source. Cursor.Offset indexes the sitemap.
// Every URL in the batch yields a posting; pages that cannot be read yield
// one without locations so the collector counts it against the total.
func (s *Source) ListPage(ctx context.Context, cursor ingest.Cursor) (ingest.Page, error) {
	urls, err := s.jobURLs(ctx)
	if err != nil {
		return ingest.Page{}, err
	}
	page := ingest.Page{Total: len(urls)}
	start := min(cursor.Offset, len(urls))
	end := min(start+s.batchSize, len(urls))
	for i, u := range urls[start:end] {
		if i > 0 && s.itemPacer != nil {
			if err := s.itemPacer.Wait(ctx); err != nil {
				return ingest.Page{}, err
			}
		}
		p, err := s.fetchJob(ctx, u)
		if err != nil {
			return ingest.Page{}, err
		}
		page.Postings = append(page.Postings, p)
	}
	next := cursor
	next.Offset = end
	next.Page = cursor.Page + 1
	page.Next = next
	page.Done = end >= len(urls)
	return page, nil
}

// fetchJob returns an error only when the failure should end the run:
// exhausted retries or cancellation. Refused or malformed pages are skipped.
func (s *Source) fetchJob(ctx context.Context, jobURL string) (ingest.RawPosting, error) {
	p := ingest.RawPosting{JobKey: JobKey(jobURL)}
	resp, err := s.client.Do(ctx, fetch.Request{Method: http.MethodGet, URL: jobURL})
	if err != nil {
		var he *fetch.HTTPError
		if errors.As(err, &he) && !errors.Is(err, fetch.ErrRetriesExhausted) {
			s.logger.Debug("job page refused", zap.String("url", jobURL), zap.Int("status", he.StatusCode))
			return p, nil
		}
		return p, err
	}
	posting, err := ParseJobPage(resp.Body)
	if err != nil {
		s.logger.Debug("job page unreadable", zap.String("url", jobURL), zap.Error(err))
		return p, nil
	}
	posting.JobKey = p.JobKey
	return posting, nil
}

type jobPosting struct {
	Title       string          `json:"title"`
	DatePosted  string          `json:"datePosted"`
	JobLocation json.RawMessage `json:"jobLocation"`
}

type place struct {
	Name    string `json:"name"`
	Address struct {
		Locality string `json:"addressLocality"`
		Region   string `json:"addressRegion"`
		Country  any    `json:"addressCountry"`
	} `json:"address"`
}

// ParseJobPage reads the JSON-LD JobPosting from a job page. The returned
// posting has no JobKey.
func ParseJobPage(body []byte) (ingest.RawPosting, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return ingest.RawPosting{}, fmt.Errorf("%w: %w", ingest.ErrUpstreamShape, err)
	}
	var found *jobPosting
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		found = decodeJobPosting([]byte(sel.Text()))
		return found == nil
	})
	if found == nil {
		return ingest.RawPosting{}, fmt.Errorf("%w: no JobPosting JSON-LD", ingest.ErrUpstreamShape)
	}

	p := ingest.RawPosting{
		Title:     strings.TrimSpace(found.Title),
		Locations: placeNames(found.JobLocation),
	}
	if t, err := parseDate(found.DatePosted); err == nil {
		p.PostedAt = &t
	}
	return p, nil
}

func decodeJobPosting(raw []byte) *jobPosting {
	raw = bytes.TrimSpace(raw)
	var one jobPosting
	if err := json.Unmarshal(raw, &one); err == nil {
		if one.Title != "" || len(one.JobLocation) > 0 {
			return &one
		}
		return nil
	}
	var many []jobPosting
	if err := json.Unmarshal(raw, &many); err != nil {
		return nil
	}
	for i := range many {
		if many[i].Title != "" || len(many[i].JobLocation) > 0 {
			return &many[i]
		}
	}
	return nil
}

func placeNames(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var places []place
	if err := json.Unmarshal(raw, &places); err != nil {
		var one place
		if err := json.Unmarshal(raw, &one); err != nil {
			return nil
		}
		places = []place{one}
	}
	var out []string
	seen := make(map[string]struct{})
	for _, pl := range places {
		name := strings.TrimSpace(pl.Name)
		if name == "" {
			name = composeAddress(pl)
		}
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}

// composeAddress renders a postal address country first.
func composeAddress(pl place) string {
	country := ""
	switch c := pl.Address.Country.(type) {
	case string:
		country = c
	case map[string]any:
		if name, ok := c["name"].(string); ok {
			country = name
		}
	}
	var parts []string
	for _, v := range []string{country, pl.Address.Region, pl.Address.Locality} {
		if v = strings.TrimSpace(v); v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, ", ")
}

func parseDate(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", v)
}

var (
	_ ingest.Source          = (*Source)(nil)
	_ ingest.Bootstrapper    = (*Source)(nil)
	_ ingest.ScoringProvider = (*Source)(nil)
)
