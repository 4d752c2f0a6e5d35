// Package google lists postings from the Google Careers results pages.
//
// The listing is server-rendered HTML; cards are located by their CSS classes.
package google

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/companyloc-platform/internal/fetch"
	"github.com/JakeFAU/companyloc-platform/internal/ingest"
	"github.com/JakeFAU/companyloc-platform/internal/location"
)

const (
	// Key is the source key.
	Key = "google"
	// DefaultResultsURL is the first results page.
	DefaultResultsURL = "https://www.google.com/about/careers/applications/jobs/results"
)

var (
	jobIDAttr   = regexp.MustCompile(`Aiqs8c;(\d+);`)
	jobsMatched = regexp.MustCompile(`([0-9][0-9,]*)\s+jobs matched`)
)

// Policy is the retry policy for the results pages. The site answers
// transient overload with 400, so it is retried too.
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
	h.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	h.Set("Accept-Encoding", "identity")
	h.Set("User-Agent", "Mozilla/5.0")
	return h
}

// Source is the Google adapter.
type Source struct {
	client *fetch.Client
	url    string
}

// New creates the adapter. An empty resultsURL selects DefaultResultsURL.
func New(client *fetch.Client, resultsURL string) *Source {
	if resultsURL == "" {
		resultsURL = DefaultResultsURL
	}
	return &Source{client: client, url: resultsURL}
}

// Key implements ingest.Source.
func (s *Source) Key() string { return Key }

// Scoring implements ingest.ScoringProvider.
func (s *Source) Scoring() location.Scoring { return location.ListScoring }

// ListPage implements ingest.Source. The site fixes the page size, so the
// collector's streak rule is what ends a listing whose total is missing.
func (s *Source) ListPage(ctx context.Context, cursor ingest.Cursor) (ingest.Page, error) {
	req := fetch.Request{Method: http.MethodGet, URL: s.url}
	if n := cursor.Page + 1; n > 1 {
		req.Query = url.Values{"page": []string{strconv.Itoa(n)}}
	}
	resp, err := s.client.Do(ctx, req)
	if err != nil {
		return ingest.Page{}, err
	}
	page, err := ParseResults(resp.Body)
	if err != nil {
		return ingest.Page{}, err
	}
	next := cursor
	next.Page = cursor.Page + 1
	next.Offset = cursor.Offset + len(page.Postings)
	page.Next = next
	return page, nil
}

// ParseResults extracts job cards and the "jobs matched" total from one
// results page. A page without a total reports zero.
func ParseResults(body []byte) (ingest.Page, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return ingest.Page{}, fmt.Errorf("google results: %w: %w", ingest.ErrUpstreamShape, err)
	}
	page := ingest.Page{Total: parseTotal(doc)}
	doc.Find("li.lLd3Je").Each(func(_ int, card *goquery.Selection) {
		p, ok := parseCard(card)
		if ok {
			page.Postings = append(page.Postings, p)
		}
	})
	return page, nil
}

func parseTotal(doc *goquery.Document) int {
	text := ""
	if span := doc.Find("span.SWhIm").First(); span.Length() > 0 {
		text = span.Text() + " jobs matched"
	}
	m := jobsMatched.FindStringSubmatch(text)
	if m == nil {
		m = jobsMatched.FindStringSubmatch(cleanText(doc.Text()))
	}
	if m == nil {
		return 0
	}
	n, err := strconv.Atoi(strings.ReplaceAll(m[1], ",", ""))
	if err != nil {
		return 0
	}
	return n
}

func parseCard(card *goquery.Selection) (ingest.RawPosting, bool) {
	var key string
	card.Find("[jsdata]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if m := jobIDAttr.FindStringSubmatch(s.AttrOr("jsdata", "")); m != nil {
			key = m[1]
			return false
		}
		return true
	})
	if key == "" {
		if href, ok := card.Find(`a[href^="jobs/results/"]`).First().Attr("href"); ok {
			key = strings.TrimSpace(href)
		}
	}
	if key == "" {
		return ingest.RawPosting{}, false
	}

	p := ingest.RawPosting{
		JobKey: key,
		Title:  cleanText(card.Find("h3.QJPWVe").First().Text()),
	}
	seen := make(map[string]struct{})
	card.Find(`span[class^="r0wTof"]`).Each(func(_ int, s *goquery.Selection) {
		for _, loc := range strings.Split(cleanText(s.Text()), ";") {
			loc = strings.TrimSpace(loc)
			if loc == "" {
				continue
			}
			if _, dup := seen[loc]; dup {
				continue
			}
			seen[loc] = struct{}{}
			p.Locations = append(p.Locations, loc)
		}
	})
	return p, true
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

var (
	_ ingest.Source          = (*Source)(nil)
	_ ingest.ScoringProvider = (*Source)(nil)
)
