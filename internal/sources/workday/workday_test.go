package workday

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/companyloc-platform/internal/fetch"
	"github.com/JakeFAU/companyloc-platform/internal/ingest"
	"github.com/JakeFAU/companyloc-platform/internal/sources"
)

func noSleep(context.Context, time.Duration) error { return nil }

func newTestSource(t *testing.T, handler http.Handler, queries ...string) *Source {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	site := Site{Key: "nvidia", BaseURL: srv.URL, Tenant: "nvidia", Site: "Ext", Queries: queries}
	client := fetch.New(site.Key, Policy(),
		fetch.WithHeader(Headers(site)),
		fetch.WithSleeper(noSleep),
		fetch.WithJitter(func(time.Duration) time.Duration { return 0 }),
	)
	return New(site, client)
}

func TestListPageDecodesPostings(t *testing.T) {
	t.Parallel()

	var got listRequest
	src := newTestSource(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/wday/cxs/nvidia/Ext/jobs", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"total": 2, "jobPostings": [
			{"title": "GPU Architect", "externalPath": "/job/US-CA-Santa-Clara/GPU-Architect_JR1", "locationsText": "US, CA, Santa Clara"},
			{"title": "SRE", "externalPath": "/job/Remote/SRE_JR2", "locationsText": "3 Locations"}
		]}`))
	}))

	page, err := src.ListPage(context.Background(), ingest.Cursor{Offset: 40, Query: "canada"})
	require.NoError(t, err)
	assert.Equal(t, 40, got.Offset)
	assert.Equal(t, DefaultPageSize, got.Limit)
	assert.Equal(t, "canada", got.SearchText)

	assert.Equal(t, 2, page.Total)
	require.Len(t, page.Postings, 2)
	assert.Equal(t, "/job/US-CA-Santa-Clara/GPU-Architect_JR1", page.Postings[0].JobKey)
	assert.Equal(t, []string{"US, CA, Santa Clara"}, page.Postings[0].Locations)
	assert.True(t, src.NeedsDetail(page.Postings[1]))
	assert.False(t, src.NeedsDetail(page.Postings[0]))
	assert.Equal(t, 42, page.Next.Offset)
	assert.Equal(t, "canada", page.Next.Query)
	assert.True(t, page.Done)
}

func TestResolveLocationsReadsDetail(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"string": `"Germany"`,
		"object": `{"descriptor": "Germany", "id": "x"}`,
	}
	for name, country := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			src := newTestSource(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/wday/cxs/nvidia/Ext/job/Munich/Eng_JR3", r.URL.Path)
				fmt.Fprintf(w, `{"jobPostingInfo": {
					"location": "Germany, Munich",
					"additionalLocations": ["Israel, Yokneam", "Germany, Munich", " "],
					"country": %s}}`, country)
			}))
			locs, detail, err := src.ResolveLocations(context.Background(), ingest.RawPosting{JobKey: "/job/Munich/Eng_JR3"})
			require.NoError(t, err)
			assert.Equal(t, []string{"Germany, Munich", "Israel, Yokneam"}, locs)
			assert.Equal(t, "Germany", detail)
		})
	}
}

func TestResolveLocationsMapsForbidden(t *testing.T) {
	t.Parallel()

	src := newTestSource(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	_, _, err := src.ResolveLocations(context.Background(), ingest.RawPosting{JobKey: "/job/x"})
	require.ErrorIs(t, err, ingest.ErrDetailAccessDenied)

	locs, _, err := src.ResolveLocations(context.Background(), ingest.RawPosting{JobKey: "not-a-job-path"})
	require.NoError(t, err)
	assert.Empty(t, locs)
}

func TestCollectMergesTargetedSearch(t *testing.T) {
	t.Parallel()

	src := newTestSource(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		var req listRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		switch req.SearchText {
		case "":
			_, _ = w.Write([]byte(`{"total": 2, "jobPostings": [
				{"title": "A", "externalPath": "/job/a", "locationsText": "US, CA, Santa Clara"},
				{"title": "B", "externalPath": "/job/b", "locationsText": "2 Locations"}]}`))
		default:
			_, _ = w.Write([]byte(`{"total": 2, "jobPostings": [
				{"title": "B", "externalPath": "/job/b", "locationsText": "2 Locations"},
				{"title": "C", "externalPath": "/job/c", "locationsText": "Canada, Toronto"}]}`))
		}
	}), "canada")

	res, err := sources.Collect(context.Background(), src, sources.CollectOptions{})
	require.NoError(t, err)
	require.Len(t, res.Postings, 3)
	assert.Equal(t, []string{"2 Locations"}, res.Postings[1].Locations)
	assert.Equal(t, 3, res.Total)
}

func TestCollectSurvivesMalformedDetail(t *testing.T) {
	t.Parallel()

	src := newTestSource(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte(`<html>maintenance</html>`))
			return
		}
		_, _ = w.Write([]byte(`{"total": 2, "jobPostings": [
			{"title": "A", "externalPath": "/job/A_1", "locationsText": "US, CA, Santa Clara"},
			{"title": "B", "externalPath": "/job/B_2", "locationsText": "3 Locations"}]}`))
	}))

	_, _, err := src.ResolveLocations(context.Background(), ingest.RawPosting{JobKey: "/job/B_2"})
	require.ErrorIs(t, err, ingest.ErrUpstreamShape)

	res, err := sources.Collect(context.Background(), src, sources.CollectOptions{})
	require.NoError(t, err)
	require.Len(t, res.Postings, 2)
	assert.Equal(t, "/job/A_1", res.Postings[0].JobKey)
	assert.Equal(t, []string{"3 Locations"}, res.Postings[1].Locations)
}
