package microsoft

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/companyloc-platform/internal/fetch"
	"github.com/JakeFAU/companyloc-platform/internal/ingest"
)

const careersPage = `<html><head><meta name="_csrf" content="tok-123"></head>
<body><script>window._EF_GROUP_ID = "microsoft.com-test";</script></body></html>`

func TestParseSession(t *testing.T) {
	t.Parallel()

	csrf, group, err := ParseSession([]byte(careersPage))
	require.NoError(t, err)
	assert.Equal(t, "tok-123", csrf)
	assert.Equal(t, "microsoft.com-test", group)

	csrf, group, err = ParseSession([]byte(`<meta name="_csrf" content="abc">`))
	require.NoError(t, err)
	assert.Equal(t, "abc", csrf)
	assert.Equal(t, defaultGroupID, group)

	_, _, err = ParseSession([]byte(`<html></html>`))
	require.ErrorIs(t, err, ingest.ErrUpstreamShape)
}

func TestCleanLocations(t *testing.T) {
	t.Parallel()

	got := CleanLocations(
		[]string{"Redmond, Washington, United States", "Multiple Locations", " "},
		[]string{"redmond, washington, united states", "Dublin, Ireland", "various"},
	)
	assert.Equal(t, []string{"Redmond, Washington, United States", "Dublin, Ireland"}, got)
}

func TestListPageUsesSession(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/careers", func(w http.ResponseWriter, _ *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "sid", Value: "s1", Path: "/"})
		_, _ = w.Write([]byte(careersPage))
	})
	mux.HandleFunc("/api/pcsx/search", func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie("sid")
		if err != nil || cookie.Value != "s1" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		assert.Equal(t, "tok-123", r.Header.Get("X-CSRF-Token"))
		assert.Equal(t, "microsoft.com-test", r.Header.Get("X-EF-GROUP-ID"))
		assert.Equal(t, "microsoft.com-test", r.URL.Query().Get("domain"))
		assert.Equal(t, "10", r.URL.Query().Get("start"))
		_, _ = w.Write([]byte(`{"data": {"count": "42", "positions": [
			{"id": 1970000001, "name": "Program Manager", "standardizedLocations": ["Redmond, WA, US"],
			 "locations": ["Redmond, Washington, United States", "Multiple Locations"], "postedTs": 1717200000},
			{"displayJobId": "200001", "name": "SWE", "locations": "Dublin, Ireland"}
		]}}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	client := fetch.New(Key, Policy(),
		fetch.WithHTTPClient(NewHTTPClient(5*time.Second)),
		fetch.WithHeader(Headers()),
		fetch.WithSleeper(func(context.Context, time.Duration) error { return nil }),
	)
	src := New(client, srv.URL+"/careers", srv.URL+"/api/pcsx/search")

	page, err := src.ListPage(context.Background(), ingest.Cursor{Offset: 10, Page: 1})
	require.NoError(t, err)
	assert.Equal(t, 42, page.Total)
	require.Len(t, page.Postings, 2)
	assert.Equal(t, "1970000001", page.Postings[0].JobKey)
	assert.Equal(t, []string{"Redmond, WA, US", "Redmond, Washington, United States"}, page.Postings[0].Locations)
	require.NotNil(t, page.Postings[0].PostedAt)
	assert.Equal(t, "200001", page.Postings[1].JobKey)
	assert.Equal(t, []string{"Dublin, Ireland"}, page.Postings[1].Locations)
	assert.Equal(t, 12, page.Next.Offset)
}

func TestListPageWithoutDataEnds(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/careers", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(careersPage))
	})
	mux.HandleFunc("/search", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status": 200}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	src := New(fetch.New(Key, Policy()), srv.URL+"/careers", srv.URL+"/search")
	require.NoError(t, src.Bootstrap(context.Background()))
	page, err := src.ListPage(context.Background(), ingest.Cursor{})
	require.NoError(t, err)
	assert.True(t, page.Done)
	assert.Empty(t, page.Postings)
}
