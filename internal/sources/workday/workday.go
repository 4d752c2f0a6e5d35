// Package workday lists postings from Workday CXS career sites.
//
// The list endpoint reports multi-site postings as "N Locations"; those are
// resolved through the per-job detail endpoint.
package workday

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/JakeFAU/companyloc-platform/internal/fetch"
	"github.com/JakeFAU/companyloc-platform/internal/ingest"
	"github.com/JakeFAU/companyloc-platform/internal/location"
)

// DefaultPageSize is the CXS page limit.
const DefaultPageSize = 20

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/122.0 Safari/537.36"

var multiLocation = regexp.MustCompile(`^\d+\s+Locations$`)

// Site identifies one tenant's career site.
type Site struct {
	Key     string
	BaseURL string
	Tenant  string
	Site    string
	// RefererPath is appended to BaseURL for the Referer header.
	RefererPath string
	// Queries are search texts run after the broad listing.
	Queries []string
}

// NVIDIASite is NVIDIA's external career site. The broad query caps out,
// so a targeted search is merged in.
var NVIDIASite = Site{
	Key:         "nvidia",
	BaseURL:     "https://nvidia.wd5.myworkdayjobs.com",
	Tenant:      "nvidia",
	Site:        "NVIDIAExternalCareerSite",
	RefererPath: "/NVIDIAExternalCareerSite/",
	Queries:     []string{"canada"},
}

// IntelSite is Intel's external career site.
var IntelSite = Site{
	Key:         "intel",
	BaseURL:     "https://intel.wd1.myworkdayjobs.com",
	Tenant:      "intel",
	Site:        "External",
	RefererPath: "/en-US/External",
}

// Policy is the retry policy Workday tenants tolerate.
func Policy() fetch.Policy {
	return fetch.Policy{
		Timeout:     20 * time.Second,
		MaxRetries:  5,
		BaseBackoff: time.Second,
		MaxBackoff:  60 * time.Second,
		JitterMax:   500 * time.Millisecond,
		RetryableStatuses: []int{
			http.StatusTooManyRequests,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout,
		},
	}
}

// Headers returns the default request headers for site.
func Headers(site Site) http.Header {
	h := make(http.Header)
	h.Set("Accept", "application/json")
	h.Set("User-Agent", userAgent)
	h.Set("Origin", site.BaseURL)
	h.Set("Referer", site.BaseURL+site.RefererPath)
	return h
}

// Source is a Workday adapter.
type Source struct {
	site     Site
	client   *fetch.Client
	pageSize int
}

// New creates a Source for site.
func New(site Site, client *fetch.Client) *Source {
	return &Source{site: site, client: client, pageSize: DefaultPageSize}
}

// NVIDIA returns the NVIDIA adapter.
func NVIDIA(client *fetch.Client) *Source {
	return New(NVIDIASite, client)
}

// Intel returns the Intel adapter.
func Intel(client *fetch.Client) *Source {
	return New(IntelSite, client)
}

// Key implements ingest.Source.
func (s *Source) Key() string {
	return s.site.Key
}

// Queries implements ingest.QueryFanout.
func (s *Source) Queries() []string {
	return append([]string{""}, s.site.Queries...)
}

// Scoring implements ingest.ScoringProvider.
func (s *Source) Scoring() location.Scoring {
	return location.DefaultScoring
}

type listRequest struct {
	AppliedFacets map[string]any `json:"appliedFacets"`
	Limit         int            `json:"limit"`
	Offset        int            `json:"offset"`
	SearchText    string         `json:"searchText"`
}

type listResponse struct {
	Total       int `json:"total"`
	JobPostings []struct {
		Title         string `json:"title"`
		ExternalPath  string `json:"externalPath"`
		LocationsText string `json:"locationsText"`
		PostedOn      string `json:"postedOn"`
	} `json:"jobPostings"`
}

func (s *Source) apiBase() string {
	return fmt.Sprintf("%s/wday/cxs/%s/%s", strings.TrimRight(s.site.BaseURL, "/"), s.site.Tenant, s.site.Site)
}

// ListPage implements ingest.Source.
func (s *Source) ListPage(ctx context.Context, cursor ingest.Cursor) (ingest.Page, error) {
	resp, err := s.client.Do(ctx, fetch.Request{
		Method: http.MethodPost,
		URL:    s.apiBase() + "/jobs",
		JSON: listRequest{
			AppliedFacets: map[string]any{},
			Limit:         s.pageSize,
			Offset:        cursor.Offset,
			SearchText:    cursor.Query,
		},
	})
	if err != nil {
		return ingest.Page{}, err
	}
	var body listResponse
	if err := resp.DecodeJSON(&body); err != nil {
		return ingest.Page{}, fmt.Errorf("%s list: %w: %w", s.site.Key, ingest.ErrUpstreamShape, err)
	}

	page := ingest.Page{Total: body.Total}
	for _, jp := range body.JobPostings {
		text := strings.TrimSpace(jp.LocationsText)
		p := ingest.RawPosting{
			JobKey:        jp.ExternalPath,
			Title:         strings.TrimSpace(jp.Title),
			LocationsText: text,
		}
		if text != "" {
			p.Locations = []string{text}
		}
		page.Postings = append(page.Postings, p)
	}
	next := cursor
	next.Offset = cursor.Offset + len(body.JobPostings)
	next.Page = cursor.Page + 1
	page.Next = next
	page.Done = len(body.JobPostings) < s.pageSize
	return page, nil
}

// NeedsDetail implements ingest.LocationResolver.
func (s *Source) NeedsDetail(p ingest.RawPosting) bool {
	return multiLocation.MatchString(strings.TrimSpace(p.LocationsText))
}

type detailResponse struct {
	JobPostingInfo struct {
		Location            string        `json:"location"`
		AdditionalLocations []string      `json:"additionalLocations"`
		Country             detailCountry `json:"country"`
	} `json:"jobPostingInfo"`
}

// detailCountry accepts either a plain string or a {value, descriptor} object.
type detailCountry string

func (c *detailCountry) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*c = detailCountry(strings.TrimSpace(s))
		return nil
	}
	var obj struct {
		Value      string `json:"value"`
		Descriptor string `json:"descriptor"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		// Numbers, arrays and null carry no usable country.
		*c = ""
		return nil
	}
	v := strings.TrimSpace(obj.Value)
	if v == "" {
		v = strings.TrimSpace(obj.Descriptor)
	}
	*c = detailCountry(v)
	return nil
}

// ResolveLocations implements ingest.LocationResolver. A 403 from the detail
// endpoint is reported as ingest.ErrDetailAccessDenied.
func (s *Source) ResolveLocations(ctx context.Context, p ingest.RawPosting) ([]string, string, error) {
	if !strings.HasPrefix(p.JobKey, "/job/") {
		return nil, "", nil
	}
	resp, err := s.client.Do(ctx, fetch.Request{Method: http.MethodGet, URL: s.apiBase() + p.JobKey})
	if err != nil {
		if fetch.StatusCode(err) == http.StatusForbidden {
			return nil, "", fmt.Errorf("%s detail %s: %w", s.site.Key, p.JobKey, ingest.ErrDetailAccessDenied)
		}
		return nil, "", err
	}
	var body detailResponse
	if err := resp.DecodeJSON(&body); err != nil {
		return nil, "", fmt.Errorf("%s detail %s: %w: %w", s.site.Key, p.JobKey, ingest.ErrUpstreamShape, err)
	}
	info := body.JobPostingInfo

	var locs []string
	seen := make(map[string]struct{})
	for _, l := range append([]string{info.Location}, info.AdditionalLocations...) {
		l = strings.TrimSpace(l)
		if l == "" {
			continue
		}
		if _, ok := seen[l]; ok {
			continue
		}
		seen[l] = struct{}{}
		locs = append(locs, l)
	}
	return locs, string(info.Country), nil
}

var (
	_ ingest.Source           = (*Source)(nil)
	_ ingest.LocationResolver = (*Source)(nil)
	_ ingest.QueryFanout      = (*Source)(nil)
	_ ingest.ScoringProvider  = (*Source)(nil)
)
