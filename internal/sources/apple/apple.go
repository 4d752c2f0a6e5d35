// Package apple lists postings from the jobs.apple.com search API.
package apple

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/JakeFAU/companyloc-platform/internal/fetch"
	"github.com/JakeFAU/companyloc-platform/internal/ingest"
	"github.com/JakeFAU/companyloc-platform/internal/location"
)

const (
	// Key is the source key.
	Key = "apple"
	// DefaultSearchURL is the public search endpoint.
	DefaultSearchURL = "https://jobs.apple.com/api/v1/search"
)

// Policy is the retry policy for the search API.
func Policy() fetch.Policy {
	return fetch.Policy{
		Timeout:           25 * time.Second,
		MaxRetries:        4,
		BaseBackoff:       time.Second,
		MaxBackoff:        30 * time.Second,
		JitterMax:         400 * time.Millisecond,
		RetryableStatuses: fetch.DefaultRetryableStatuses,
	}
}

// Headers returns the default request headers.
func Headers() http.Header {
	h := make(http.Header)
	h.Set("Accept", "application/json")
	h.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 "+
		"(KHTML, like Gecko) Chrome/122.0 Safari/537.36")
	h.Set("Origin", "https://jobs.apple.com")
	h.Set("Referer", "https://jobs.apple.com/en-us/search")
	return h
}

// Source is the Apple adapter.
type Source struct {
	client *fetch.Client
	url    string
}

// New creates the adapter. An empty searchURL selects DefaultSearchURL.
func New(client *fetch.Client, searchURL string) *Source {
	if searchURL == "" {
		searchURL = DefaultSearchURL
	}
	return &Source{client: client, url: searchURL}
}

// Key implements ingest.Source.
func (s *Source) Key() string { return Key }

// Scoring implements ingest.ScoringProvider.
func (s *Source) Scoring() location.Scoring { return location.DefaultScoring }

type searchRequest struct {
	Query   string            `json:"query"`
	Filters map[string]any    `json:"filters"`
	Page    int               `json:"page"`
	Locale  string            `json:"locale"`
	Sort    string            `json:"sort"`
	Format  map[string]string `json:"format"`
}

type searchLocation struct {
	City          string `json:"city"`
	StateProvince string `json:"stateProvince"`
	CountryName   string `json:"countryName"`
	Name          string `json:"name"`
}

type searchResult struct {
	ReqID         json.RawMessage  `json:"reqId"`
	ID            json.RawMessage  `json:"id"`
	JobPositionID json.RawMessage  `json:"jobPositionId"`
	PostingTitle  string           `json:"postingTitle"`
	PostDateInGMT string           `json:"postDateInGMT"`
	PostingDate   string           `json:"postingDate"`
	Locations     []searchLocation `json:"locations"`
}

type searchResponse struct {
	Res struct {
		TotalRecords  int            `json:"totalRecords"`
		SearchResults []searchResult `json:"searchResults"`
	} `json:"res"`
}

// ListPage implements ingest.Source. The API numbers pages from 1.
func (s *Source) ListPage(ctx context.Context, cursor ingest.Cursor) (ingest.Page, error) {
	resp, err := s.client.Do(ctx, fetch.Request{
		Method: http.MethodPost,
		URL:    s.url,
		JSON: searchRequest{
			Query:   cursor.Query,
			Filters: map[string]any{},
			Page:    cursor.Page + 1,
			Locale:  "en-us",
			Sort:    "newest",
			Format:  map[string]string{"longDate": "MMMM D, YYYY", "mediumDate": "MMM D, YYYY"},
		},
	})
	if err != nil {
		return ingest.Page{}, err
	}
	var body searchResponse
	if err := resp.DecodeJSON(&body); err != nil {
		return ingest.Page{}, fmt.Errorf("apple search: %w: %w", ingest.ErrUpstreamShape, err)
	}

	page := ingest.Page{Total: body.Res.TotalRecords}
	for _, r := range body.Res.SearchResults {
		page.Postings = append(page.Postings, toPosting(r))
	}
	next := cursor
	next.Page = cursor.Page + 1
	next.Offset = cursor.Offset + len(body.Res.SearchResults)
	page.Next = next
	return page, nil
}

func toPosting(r searchResult) ingest.RawPosting {
	p := ingest.RawPosting{
		JobKey: firstID(r.ReqID, r.ID, r.JobPositionID),
		Title:  strings.TrimSpace(r.PostingTitle),
	}
	posted := r.PostDateInGMT
	if posted == "" {
		posted = r.PostingDate
	}
	p.PostedAt = parsePosted(posted)
	for _, l := range r.Locations {
		if raw := composeLocation(l); raw != "" {
			p.Locations = append(p.Locations, raw)
		}
		if p.DetailCountry == "" {
			p.DetailCountry = strings.TrimSpace(l.CountryName)
		}
	}
	return p
}

// composeLocation renders a structured location country first so the
// normalizer resolves the country from the leading fragment and the city from
// the last. A location with none of the structured fields falls back to name.
func composeLocation(l searchLocation) string {
	var parts []string
	for _, v := range []string{l.CountryName, l.StateProvince, l.City} {
		if v = strings.TrimSpace(v); v != "" {
			parts = append(parts, v)
		}
	}
	if len(parts) > 0 {
		return strings.Join(parts, ", ")
	}
	return strings.TrimSpace(l.Name)
}

func firstID(candidates ...json.RawMessage) string {
	for _, raw := range candidates {
		if len(raw) == 0 || string(raw) == "null" {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			if s = strings.TrimSpace(s); s != "" {
				return s
			}
			continue
		}
		var n json.Number
		if err := json.Unmarshal(raw, &n); err == nil {
			return n.String()
		}
	}
	return ""
}

var postedLayouts = []string{time.RFC3339, "2006-01-02T15:04:05.000Z", "2006-01-02", "Jan 2, 2006", "January 2, 2006"}

func parsePosted(v string) *time.Time {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	for _, layout := range postedLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

var (
	_ ingest.Source          = (*Source)(nil)
	_ ingest.ScoringProvider = (*Source)(nil)
)
