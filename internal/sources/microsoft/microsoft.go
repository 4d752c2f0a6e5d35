// Package microsoft lists postings from the Microsoft careers search API.
//
// The API requires the CSRF token and group id embedded in the careers page,
// plus the session cookies set while loading it.
package microsoft

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/companyloc-platform/internal/fetch"
	"github.com/JakeFAU/companyloc-platform/internal/ingest"
	"github.com/JakeFAU/companyloc-platform/internal/location"
)

const (
	// Key is the source key.
	Key = "microsoft"
	// DefaultCareersURL is the page carrying the session tokens.
	DefaultCareersURL = "https://apply.careers.microsoft.com/careers?hl=en"
	// DefaultSearchURL is the search endpoint.
	DefaultSearchURL = "https://apply.careers.microsoft.com/api/pcsx/search"

	defaultGroupID = "microsoft.com"
)

var groupIDPattern = regexp.MustCompile(`window\._EF_GROUP_ID\s*=\s*"([^"]+)"`)

// blocked are placeholder location values that carry no place.
var blocked = map[string]struct{}{
	"multiple locations": {},
	"various locations":  {},
	"multiple":           {},
	"various":            {},
}

// Policy is the retry policy for the careers site.
func Policy() fetch.Policy {
	return fetch.Policy{
		Timeout:           30 * time.Second,
		MaxRetries:        4,
		BaseBackoff:       time.Second,
		MaxBackoff:        30 * time.Second,
		JitterMax:         400 * time.Millisecond,
		RetryableStatuses: fetch.DefaultRetryableStatuses,
	}.WithRetryable(http.StatusBadRequest)
}

// Headers returns the default request headers.
func Headers() http.Header {
	h := make(http.Header)
	h.Set("Accept", "application/json, text/plain, */*")
	h.Set("User-Agent", "Mozilla/5.0")
	return h
}

// NewHTTPClient returns an http.Client that keeps session cookies.
func NewHTTPClient(timeout time.Duration) *http.Client {
	jar, _ := cookiejar.New(nil) // never fails without options
	return &http.Client{Jar: jar, Timeout: timeout}
}

// Source is the Microsoft adapter.
type Source struct {
	client     *fetch.Client
	careersURL string
	searchURL  string

	mu      sync.Mutex
	csrf    string
	groupID string
}

// New creates the adapter. Empty URLs select the defaults. The client should
// carry a cookie jar; see NewHTTPClient.
func New(client *fetch.Client, careersURL, searchURL string) *Source {
	if careersURL == "" {
		careersURL = DefaultCareersURL
	}
	if searchURL == "" {
		searchURL = DefaultSearchURL
	}
	return &Source{client: client, careersURL: careersURL, searchURL: searchURL}
}

// Key implements ingest.Source.
func (s *Source) Key() string { return Key }

// Scoring implements ingest.ScoringProvider.
func (s *Source) Scoring() location.Scoring { return location.ListScoring }

// Bootstrap implements ingest.Bootstrapper.
func (s *Source) Bootstrap(ctx context.Context) error {
	resp, err := s.client.Do(ctx, fetch.Request{
		Method: http.MethodGet,
		URL:    s.careersURL,
		Header: http.Header{"Accept-Encoding": []string{"identity"}},
	})
	if err != nil {
		return fmt.Errorf("microsoft bootstrap: %w", err)
	}
	csrf, groupID, err := ParseSession(resp.Body)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.csrf, s.groupID = csrf, groupID
	s.mu.Unlock()
	return nil
}

// ParseSession extracts the CSRF token and group id from the careers page.
func ParseSession(page []byte) (csrf, groupID string, err error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return "", "", fmt.Errorf("microsoft bootstrap: %w: %w", ingest.ErrUpstreamShape, err)
	}
	csrf = strings.TrimSpace(doc.Find(`meta[name="_csrf"]`).AttrOr("content", ""))
	if csrf == "" {
		return "", "", fmt.Errorf("microsoft bootstrap: %w: no _csrf meta tag", ingest.ErrUpstreamShape)
	}
	groupID = defaultGroupID
	if m := groupIDPattern.FindSubmatch(page); m != nil {
		groupID = string(m[1])
	}
	return csrf, groupID, nil
}

func (s *Source) session(ctx context.Context) (string, string, error) {
	s.mu.Lock()
	csrf, groupID := s.csrf, s.groupID
	s.mu.Unlock()
	if csrf != "" {
		return csrf, groupID, nil
	}
	if err := s.Bootstrap(ctx); err != nil {
		return "", "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.csrf, s.groupID, nil
}

type position struct {
	ID                    json.RawMessage `json:"id"`
	DisplayJobID          json.RawMessage `json:"displayJobId"`
	Name                  string          `json:"name"`
	StandardizedLocations json.RawMessage `json:"standardizedLocations"`
	Locations             json.RawMessage `json:"locations"`
	PostedTs              json.RawMessage `json:"postedTs"`
}

type searchResponse struct {
	Data *struct {
		Count     json.RawMessage `json:"count"`
		Positions []position      `json:"positions"`
	} `json:"data"`
}

// ListPage implements ingest.Source. The server fixes the page size at 10.
func (s *Source) ListPage(ctx context.Context, cursor ingest.Cursor) (ingest.Page, error) {
	csrf, groupID, err := s.session(ctx)
	if err != nil {
		return ingest.Page{}, err
	}
	resp, err := s.client.Do(ctx, fetch.Request{
		Method: http.MethodGet,
		URL:    s.searchURL,
		Query: url.Values{
			"domain":   {groupID},
			"query":    {cursor.Query},
			"location": {""},
			"start":    {strconv.Itoa(max(0, cursor.Offset))},
			"hl":       {"en"},
		},
		Header: http.Header{
			"X-Csrf-Token":    {csrf},
			"X-Ef-Group-Id":   {groupID},
			"X-Ef-User":       {""},
			"X-User-Timezone": {"America/Los_Angeles"},
			"Referer":         {s.careersURL},
		},
	})
	if err != nil {
		return ingest.Page{}, err
	}
	var body searchResponse
	if err := resp.DecodeJSON(&body); err != nil {
		return ingest.Page{}, fmt.Errorf("microsoft search: %w: %w", ingest.ErrUpstreamShape, err)
	}
	if body.Data == nil {
		return ingest.Page{Done: true}, nil
	}

	page := ingest.Page{Total: parseCount(body.Data.Count)}
	for _, pos := range body.Data.Positions {
		page.Postings = append(page.Postings, toPosting(pos))
	}
	next := cursor
	next.Offset = cursor.Offset + len(body.Data.Positions)
	next.Page = cursor.Page + 1
	page.Next = next
	return page, nil
}

func toPosting(pos position) ingest.RawPosting {
	key := scalarText(pos.ID)
	if key == "" {
		key = scalarText(pos.DisplayJobID)
	}
	p := ingest.RawPosting{
		JobKey:    key,
		Title:     strings.TrimSpace(pos.Name),
		Locations: CleanLocations(stringList(pos.StandardizedLocations), stringList(pos.Locations)),
	}
	if ts, err := strconv.ParseInt(scalarText(pos.PostedTs), 10, 64); err == nil && ts > 0 {
		t := time.Unix(ts, 0).UTC()
		p.PostedAt = &t
	}
	return p
}

// CleanLocations merges location lists, dropping placeholder values and
// case-insensitive duplicates while keeping first-seen spelling and order.
func CleanLocations(lists ...[]string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, list := range lists {
		for _, l := range list {
			l = strings.TrimSpace(l)
			lower := strings.ToLower(l)
			if l == "" {
				continue
			}
			if _, skip := blocked[lower]; skip {
				continue
			}
			if _, dup := seen[lower]; dup {
				continue
			}
			seen[lower] = struct{}{}
			out = append(out, l)
		}
	}
	return out
}

// parseCount accepts an integer or a digit string.
func parseCount(raw json.RawMessage) int {
	n, err := strconv.Atoi(scalarText(raw))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func scalarText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
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

// stringList accepts a list of strings or a single string.
func stringList(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var list []any
	if err := json.Unmarshal(raw, &list); err == nil {
		out := make([]string, 0, len(list))
		for _, v := range list {
			if s, ok := v.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return []string{s}
	}
	return nil
}

var (
	_ ingest.Source          = (*Source)(nil)
	_ ingest.Bootstrapper    = (*Source)(nil)
	_ ingest.ScoringProvider = (*Source)(nil)
)
