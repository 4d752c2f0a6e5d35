// Package nokia lists postings from Nokia's Oracle HCM recruiting API.
package nokia

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/JakeFAU/companyloc-platform/internal/fetch"
	"github.com/JakeFAU/companyloc-platform/internal/ingest"
	"github.com/JakeFAU/companyloc-platform/internal/location"
)

const (
	// Key is the source key.
	Key = "nokia"
	// DefaultJobsURL is the requisition finder resource.
	DefaultJobsURL = "https://fa-evmr-saasfaprod1.fa.ocs.oraclecloud.com:443/hcmRestApi/resources/latest/recruitingCEJobRequisitions"
	// PageSize is the finder limit.
	PageSize = 24

	siteNumber = "CX_1"
	expand     = "requisitionList.workLocation,requisitionList.otherWorkLocations," +
		"requisitionList.secondaryLocations,requisitionList.requisitionFlexFields"
)

// Policy is the retry policy for the HCM API.
func Policy() fetch.Policy {
	return fetch.Policy{
		Timeout:           25 * time.Second,
		MaxRetries:        4,
		BaseBackoff:       time.Second,
		MaxBackoff:        30 * time.Second,
		JitterMax:         500 * time.Millisecond,
		RetryableStatuses: fetch.DefaultRetryableStatuses,
	}
}

// Headers returns the default request headers.
func Headers() http.Header {
	h := make(http.Header)
	h.Set("Accept", "application/json")
	h.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 "+
		"(KHTML, like Gecko) Chrome/122.0 Safari/537.36")
	return h
}

// Source is the Nokia adapter.
type Source struct {
	client *fetch.Client
	url    string
}

// New creates the adapter. An empty jobsURL selects DefaultJobsURL.
func New(client *fetch.Client, jobsURL string) *Source {
	if jobsURL == "" {
		jobsURL = DefaultJobsURL
	}
	return &Source{client: client, url: jobsURL}
}

// Key implements ingest.Source.
func (s *Source) Key() string { return Key }

// Scoring implements ingest.ScoringProvider.
func (s *Source) Scoring() location.Scoring { return location.DefaultScoring }

type workLocation struct {
	TownOrCity   string `json:"TownOrCity"`
	Region1      string `json:"Region1"`
	Region2      string `json:"Region2"`
	Region3      string `json:"Region3"`
	Country      string `json:"Country"`
	LocationName string `json:"LocationName"`
}

type secondaryLocation struct {
	Name        string `json:"Name"`
	CountryCode string `json:"CountryCode"`
}

type requisition struct {
	ID                 json.RawMessage     `json:"Id"`
	Title              string              `json:"Title"`
	PostedDate         string              `json:"PostedDate"`
	PrimaryLocation    string              `json:"PrimaryLocation"`
	WorkLocation       []workLocation      `json:"workLocation"`
	OtherWorkLocations []workLocation      `json:"otherWorkLocations"`
	SecondaryLocations []secondaryLocation `json:"secondaryLocations"`
}

type finderResponse struct {
	Items []struct {
		TotalJobsCount  int           `json:"TotalJobsCount"`
		RequisitionList []requisition `json:"requisitionList"`
	} `json:"items"`
}

// ListPage implements ingest.Source. A short page ends the listing.
func (s *Source) ListPage(ctx context.Context, cursor ingest.Cursor) (ingest.Page, error) {
	resp, err := s.client.Do(ctx, fetch.Request{
		Method: http.MethodGet,
		URL:    s.url,
		Query: url.Values{
			"onlyData": {"true"},
			"expand":   {expand},
			"finder":   {fmt.Sprintf("findReqs;siteNumber=%s,limit=%d,offset=%d", siteNumber, PageSize, cursor.Offset)},
		},
	})
	if err != nil {
		return ingest.Page{}, err
	}
	var body finderResponse
	if err := resp.DecodeJSON(&body); err != nil {
		return ingest.Page{}, fmt.Errorf("nokia finder: %w: %w", ingest.ErrUpstreamShape, err)
	}
	if len(body.Items) == 0 {
		return ingest.Page{Done: true}, nil
	}

	node := body.Items[0]
	page := ingest.Page{Total: node.TotalJobsCount}
	for _, r := range node.RequisitionList {
		page.Postings = append(page.Postings, toPosting(r))
	}
	next := cursor
	next.Offset = cursor.Offset + len(node.RequisitionList)
	next.Page = cursor.Page + 1
	page.Next = next
	page.Done = len(node.RequisitionList) < PageSize
	return page, nil
}

// toPosting prefers the structured work locations. PrimaryLocation is free
// text and is only used when no structured location exists.
func toPosting(r requisition) ingest.RawPosting {
	p := ingest.RawPosting{
		JobKey:   rawID(r.ID),
		Title:    strings.TrimSpace(r.Title),
		PostedAt: parseDate(r.PostedDate),
	}
	var locs []string
	for _, wl := range append(append([]workLocation(nil), r.WorkLocation...), r.OtherWorkLocations...) {
		if text := composeWorkLocation(wl); text != "" {
			locs = append(locs, text)
		}
		if p.DetailCountry == "" {
			p.DetailCountry = strings.TrimSpace(wl.Country)
		}
	}
	for _, sl := range r.SecondaryLocations {
		name, code := strings.TrimSpace(sl.Name), strings.TrimSpace(sl.CountryCode)
		switch {
		case name == "":
			continue
		case code != "" && !strings.Contains(name, ","):
			locs = append(locs, code+", "+name)
		default:
			locs = append(locs, name)
		}
		if p.DetailCountry == "" {
			p.DetailCountry = code
		}
	}
	if len(locs) == 0 {
		if primary := strings.TrimSpace(r.PrimaryLocation); primary != "" {
			locs = append(locs, primary)
		}
	}
	p.Locations = locs
	return p
}

// composeWorkLocation renders a work location country first, falling back to
// the location name.
func composeWorkLocation(wl workLocation) string {
	region := firstNonEmpty(wl.Region1, wl.Region2, wl.Region3)
	var parts []string
	for _, v := range []string{wl.Country, region, wl.TownOrCity} {
		if v = strings.TrimSpace(v); v != "" {
			parts = append(parts, v)
		}
	}
	if len(parts) > 0 {
		return strings.Join(parts, ", ")
	}
	return strings.TrimSpace(wl.LocationName)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func rawID(raw json.RawMessage) string {
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

func parseDate(v string) *time.Time {
	v = strings.TrimSpace(v)
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
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
