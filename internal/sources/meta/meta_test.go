package meta

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/companyloc-platform/internal/fetch"
	"github.com/JakeFAU/companyloc-platform/internal/ingest"
	"github.com/JakeFAU/companyloc-platform/internal/sources"
)

const jobPage = `<html><head>
<script type="application/ld+json">{"@type":"JobPosting","title":"Research Scientist",
 "datePosted":"2024-04-02T09:00:00-07:00",
 "jobLocation":[{"@type":"Place","name":"Menlo Park, CA"},{"@type":"Place","name":"Menlo Park, CA"},
  {"@type":"Place","address":{"addressLocality":"London","addressCountry":"GB"}}]}</script>
</head><body></body></html>`

func sitemap(base string, ids ...string) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?><urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">`)
	b.WriteString(`<url><loc>` + base + `/jobs/</loc></url>`)
	for _, id := range ids {
		b.WriteString(`<url><loc>` + base + `/profile/job_details/` + id + `/</loc></url>`)
	}
	b.WriteString(`</urlset>`)
	return b.String()
}

type countingPacer struct{ n atomic.Int32 }

func (p *countingPacer) Wait(context.Context) error {
	p.n.Add(1)
	return nil
}

func TestParseSitemapKeepsJobPages(t *testing.T) {
	t.Parallel()

	urls, err := ParseSitemap([]byte(sitemap("https://x", "11", "22")))
	require.NoError(t, err)
	assert.Equal(t, []string{"https://x/profile/job_details/11/", "https://x/profile/job_details/22/"}, urls)
	assert.Equal(t, "22", JobKey(urls[1]))

	_, err = ParseSitemap([]byte("<urlset"))
	require.ErrorIs(t, err, ingest.ErrUpstreamShape)
}

func TestParseJobPage(t *testing.T) {
	t.Parallel()

	p, err := ParseJobPage([]byte(jobPage))
	require.NoError(t, err)
	assert.Equal(t, "Research Scientist", p.Title)
	assert.Equal(t, []string{"Menlo Park, CA", "GB, London"}, p.Locations)
	require.NotNil(t, p.PostedAt)
	assert.Equal(t, time.Date(2024, 4, 2, 16, 0, 0, 0, time.UTC), *p.PostedAt)

	_, err = ParseJobPage([]byte(`<html><body>nothing</body></html>`))
	require.ErrorIs(t, err, ingest.ErrUpstreamShape)
}

func TestCollectWalksSitemapAndSkipsBadPages(t *testing.T) {
	t.Parallel()

	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/sitemap.xml":
			_, _ = w.Write([]byte(sitemap(srv.URL, "1", "2", "3", "4", "5")))
		case strings.Contains(r.URL.Path, "/3/"):
			w.WriteHeader(http.StatusNotFound)
		case strings.Contains(r.URL.Path, "/4/"):
			_, _ = w.Write([]byte(`<html><body>no ld</body></html>`))
		default:
			_, _ = w.Write([]byte(jobPage))
		}
	}))
	t.Cleanup(srv.Close)

	client := fetch.New(Key, Policy(), fetch.WithSleeper(func(context.Context, time.Duration) error { return nil }))
	pacer := &countingPacer{}
	src := New(client, WithSitemapURL(srv.URL+"/sitemap.xml"), WithBatchSize(2), WithItemPacer(pacer))
	require.NoError(t, src.Bootstrap(context.Background()))

	res, err := sources.Collect(context.Background(), src, sources.CollectOptions{})
	require.NoError(t, err)
	assert.Equal(t, 5, res.Total)
	assert.Equal(t, 3, res.Pages)
	assert.Equal(t, 2, res.Dropped)
	require.Len(t, res.Postings, 3)
	assert.Equal(t, []string{"1", "2", "5"}, []string{res.Postings[0].JobKey, res.Postings[1].JobKey, res.Postings[2].JobKey})
	// One wait between the two items of each full batch.
	assert.Equal(t, int32(2), pacer.n.Load())
}

func TestListPageFailsWhenRetriesExhausted(t *testing.T) {
	t.Parallel()

	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/sitemap.xml" {
			_, _ = w.Write([]byte(sitemap(srv.URL, "9")))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	client := fetch.New(Key, Policy(), fetch.WithSleeper(func(context.Context, time.Duration) error { return nil }))
	src := New(client, WithSitemapURL(srv.URL+"/sitemap.xml"))

	_, err := src.ListPage(context.Background(), ingest.Cursor{})
	require.ErrorIs(t, err, fetch.ErrRetriesExhausted)
}
