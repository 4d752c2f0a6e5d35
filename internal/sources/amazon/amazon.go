// Package amazon lists postings from the amazon.jobs search API.
package amazon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/JakeFAU/companyloc-platform/internal/fetch"
	"github.com/JakeFAU/companyloc-platform/internal/ingest"
	"github.com/JakeFAU/companyloc-platform/internal/location"
)

const (
	// Key is the source key.
	Key = "amazon"
	// DefaultSearchURL is the public search endpoint.
	DefaultSearchURL = "https://www.amazon.jobs/api/jobs/search"
	// PageSize is the number of hits requested per page.
	PageSize = 100
	// MaxWindow is the deepest offset the search index serves.
	MaxWindow = 10000

	// searchKey is the public key the careers site itself sends.
	searchKey = "PbxxNwIlTi4FP5oijKdtk3IrBF5CLd4R4oPHsKNh"
	windowMsg = "item number 10,000"
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
	h.Set("Origin", "https://www.amazon.jobs")
	h.Set("Referer", "https://www.amazon.jobs/content/en/locations")
	h.Set("x-api-key", searchKey)
	return h
}

// Source is the Amazon adapter.
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
func (s *Source) Scoring() location.Scoring { return location.ListScoring }

type searchRequest struct {
	Locale string `json:"locale"`
	Start  int    `json:"start"`
	Size   int    `json:"size"`
}

type searchResponse struct {
	Found      int  `json:"found"`
	Start      *int `json:"start"`
	SearchHits []struct {
		Fields map[string]json.RawMessage `json:"fields"`
	} `json:"searchHits"`
}

// ListPage implements ingest.Source. The search index refuses offsets past
// MaxWindow; reaching it ends the listing without an error.
func (s *Source) ListPage(ctx context.Context, cursor ingest.Cursor) (ingest.Page, error) {
	if cursor.Offset >= MaxWindow {
		return ingest.Page{Done: true}, nil
	}
	resp, err := s.client.Do(ctx, fetch.Request{
		Method: http.MethodPost,
		URL:    s.url,
		JSON:   searchRequest{Locale: "en-US", Start: cursor.Offset, Size: PageSize},
	})
	if err != nil {
		var he *fetch.HTTPError
		if errors.As(err, &he) && he.StatusCode == http.StatusBadRequest && strings.Contains(he.Body, windowMsg) {
			return ingest.Page{Total: MaxWindow, Done: true}, nil
		}
		return ingest.Page{}, err
	}
	var body searchResponse
	if err := resp.DecodeJSON(&body); err != nil {
		return ingest.Page{}, fmt.Errorf("amazon search: %w: %w", ingest.ErrUpstreamShape, err)
	}

	start := cursor.Offset
	if body.Start != nil {
		start = *body.Start
	}
	page := ingest.Page{Total: body.Found}
	for _, hit := range body.SearchHits {
		page.Postings = append(page.Postings, postingFromFields(hit.Fields))
	}
	next := cursor
	next.Offset = start + len(body.SearchHits)
	next.Page = cursor.Page + 1
	page.Next = next
	page.Done = len(body.SearchHits) < PageSize || next.Offset >= MaxWindow
	return page, nil
}

func postingFromFields(f map[string]json.RawMessage) ingest.RawPosting {
	p := ingest.RawPosting{
		JobKey: first(f["icimsJobId"]),
		Title:  first(f["title"]),
	}
	loc := first(f["location"])
	if loc == "" {
		loc = first(f["normalizedLocation"])
	}
	if loc != "" {
		p.Locations = []string{loc}
	}
	posted := first(f["updatedDate"])
	if posted == "" {
		posted = first(f["createdDate"])
	}
	p.PostedAt = parseEpoch(posted)
	return p
}

// first returns the first element of a list-valued field, or the field itself
// when it is a scalar, rendered as trimmed text.
func first(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err == nil {
		if len(list) == 0 {
			return ""
		}
		raw = list[0]
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

// parseEpoch reads epoch seconds or milliseconds.
func parseEpoch(v string) *time.Time {
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return nil
	}
	var t time.Time
	if n > 1e12 {
		t = time.UnixMilli(n).UTC()
	} else {
		t = time.Unix(n, 0).UTC()
	}
	return &t
}

var (
	_ ingest.Source          = (*Source)(nil)
	_ ingest.ScoringProvider = (*Source)(nil)
)
