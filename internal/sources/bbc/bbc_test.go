package bbc

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/somali-nlp/somali-dialect-classifier/internal/config"
	"github.com/somali-nlp/somali-dialect-classifier/internal/fetch"
	"github.com/somali-nlp/somali-dialect-classifier/internal/quality"
	"github.com/somali-nlp/somali-dialect-classifier/internal/record"
	"github.com/somali-nlp/somali-dialect-classifier/internal/sources"
)

const unthrottled = 3_600_000

func testAdapter(t *testing.T, cfg Config) (*Adapter, *quality.Collector) {
	t.Helper()

	cfg.Quality = config.QualityConfig{MinLength: 20, LangIDConfidence: 0.3}

	client := fetch.New(fetch.Config{
		Source:          "BBC-Somali",
		UserAgent:       "SomaliDialectClassifierBot/1.0",
		Timeout:         2 * time.Second,
		RequestsPerHour: unthrottled,
	}, nil, slog.Default())

	col := quality.New("20260115_093000_bbc_somali_deadbeef", "BBC-Somali", quality.PipelineWebScraping)

	a, err := New(cfg, client, col, slog.Default())
	require.NoError(t, err)

	return a, col
}

const articlePage = `<!DOCTYPE html>
<html><head><title>Doorashada Soomaaliya - BBC News Somali</title></head>
<body>
<header><nav><a href="/somali">Bogga hore</a></nav></header>
<main>
  <h1>Doorashada Soomaaliya</h1>
  <p>Doorashada Soomaaliya ayaa dib loo dhigay.</p>
  <aside><p>La soco wararka kale.</p></aside>
  <p>Guddiga doorashooyinku waxay sheegeen in diyaargarowgu socdo.</p>
</main>
<footer><p>BBC News Somali</p></footer>
<script>var tracking = true;</script>
</body></html>`

func TestExtractArticlePrefersMainLandmark(t *testing.T) {
	t.Parallel()

	got := extractArticle([]byte(articlePage))

	assert.Equal(t, "Doorashada Soomaaliya", got.Title)
	assert.Equal(t,
		"Doorashada Soomaaliya ayaa dib loo dhigay.\n\n"+
			"Guddiga doorashooyinku waxay sheegeen in diyaargarowgu socdo.",
		got.Text)
}

func TestExtractArticleFallsBackToDocumentTitle(t *testing.T) {
	t.Parallel()

	page := `<html><head><title>Warbixin gaaban</title></head>
<body><p>Muqdisho waa caasimadda Soomaaliya.</p></body></html>`

	got := extractArticle([]byte(page))

	assert.Equal(t, "Warbixin gaaban", got.Title)
	assert.Equal(t, "Muqdisho waa caasimadda Soomaaliya.", got.Text)
}

func TestExtractArticleNoParagraphsYieldsEmptyText(t *testing.T) {
	t.Parallel()

	got := extractArticle([]byte(`<html><body><main><h1>Madax</h1><div>ma jiro</div></main></body></html>`))

	assert.Equal(t, "Madax", got.Title)
	assert.Empty(t, got.Text)
}

func TestExtractLinksDocumentOrder(t *testing.T) {
	t.Parallel()

	page := `<html><body>
<a href="/somali/articles/abcdefgh1">kow</a>
<nav><a href="/somali/hidden">skipped with its subtree</a></nav>
<a href="/somali/articles/abcdefgh2">laba</a>
<a>no href</a>
</body></html>`

	assert.Equal(t,
		[]string{"/somali/articles/abcdefgh1", "/somali/articles/abcdefgh2"},
		extractLinks([]byte(page)))
}

func TestIsArticleURL(t *testing.T) {
	t.Parallel()

	a, _ := testAdapter(t, Config{BaseURL: "https://www.bbc.com/somali"})

	cases := []struct {
		name string
		url  string
		want bool
	}{
		{"cps article", "https://www.bbc.com/somali/articles/c4nq2mv9y8do", true},
		{"legacy story id", "https://www.bbc.com/somali/war-51234567", true},
		{"trailing slash", "https://www.bbc.com/somali/articles/c4nq2mv9y8do/", true},
		{"front page", "https://www.bbc.com/somali", false},
		{"topic listing", "https://www.bbc.com/somali/topics/c123456789", false},
		{"live page", "https://www.bbc.com/somali/live/c987654321", false},
		{"other service", "https://www.bbc.com/news/articles/c4nq2mv9y8do", false},
		{"other host", "https://example.com/somali/articles/c4nq2mv9y8do", false},
		{"short asset id", "https://www.bbc.com/somali/articles/abc", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tc.want, a.isArticleURL(tc.url))
		})
	}
}

// discoveryServer serves a minimal BBC-shaped site: a front page with
// anchors, a sitemap under the service path, and article pages.
// robots.txt intentionally 404s, which allows everything.
func discoveryServer(t *testing.T, requests *atomic.Int64) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/somali", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html><body>
<a href="/somali/articles/aaaabbbb1">kow</a>
<a href="/somali/articles/aaaabbbb1">kow mar kale</a>
<a href="/somali/topics/c123456789">topic</a>
<a href="https://other.invalid/somali/articles/ccccdddd1">external</a>
</body></html>`)
	})
	mux.HandleFunc("/somali/sitemap.xml", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<?xml version="1.0" encoding="UTF-8"?>
<urlset><url><loc>/somali/articles/aaaabbbb2</loc></url>
<url><loc>/somali/articles/aaaabbbb1</loc></url></urlset>`)
	})
	mux.HandleFunc("/somali/articles/", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, articlePage)
	})

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests != nil {
			requests.Add(1)
		}
		mux.ServeHTTP(w, r)
	}))
}

func TestDiscoverCollectsFrontPageAndSitemap(t *testing.T) {
	t.Parallel()

	srv := discoveryServer(t, nil)
	defer srv.Close()

	a, _ := testAdapter(t, Config{BaseURL: srv.URL + "/somali"})

	units, err := a.Discover(context.Background())

	require.NoError(t, err)
	require.Len(t, units, 2, "duplicates, topics, and foreign hosts are dropped")
	assert.Equal(t, srv.URL+"/somali/articles/aaaabbbb1", units[0].URL)
	assert.Equal(t, srv.URL+"/somali/articles/aaaabbbb2", units[1].URL)
	assert.False(t, units[0].Container)
}

func TestDiscoverHonorsMaxItems(t *testing.T) {
	t.Parallel()

	srv := discoveryServer(t, nil)
	defer srv.Close()

	a, _ := testAdapter(t, Config{BaseURL: srv.URL + "/somali", MaxItems: 1})

	units, err := a.Discover(context.Background())

	require.NoError(t, err)
	assert.Len(t, units, 1)
}

func TestDiscoverReusesCachedFrontier(t *testing.T) {
	t.Parallel()

	var requests atomic.Int64
	srv := discoveryServer(t, &requests)
	defer srv.Close()

	cfg := Config{BaseURL: srv.URL + "/somali", StagingDir: t.TempDir()}
	a, _ := testAdapter(t, cfg)

	first, err := a.Discover(context.Background())
	require.NoError(t, err)
	crawled := requests.Load()
	require.Positive(t, crawled)

	b, _ := testAdapter(t, cfg)
	second, err := b.Discover(context.Background())

	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, crawled+1, requests.Load(),
		"a fresh cache skips the crawl; only robots.txt is refetched")
}

func TestDiscoverCacheHitStillEnforcesRobots(t *testing.T) {
	t.Parallel()

	var fetchedDisallowed atomic.Bool
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "User-agent: *\nDisallow: /somali/\n")
	})
	mux.HandleFunc("/somali/articles/", func(w http.ResponseWriter, _ *http.Request) {
		fetchedDisallowed.Store(true)
		fmt.Fprint(w, articlePage)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	staging := t.TempDir()
	a, _ := testAdapter(t, Config{BaseURL: srv.URL + "/somali", StagingDir: staging})

	blocked := srv.URL + "/somali/articles/aaaabbbb1"
	raw, err := json.Marshal(discoveryCache{
		Params:    a.cacheParams(),
		URLs:      []string{blocked},
		CreatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(staging, discoveryCacheFile), raw, 0o644))

	units, err := a.Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, units, 1)

	_, err = a.client.Get(context.Background(), units[0].URL)

	require.ErrorIs(t, err, sources.ErrPermanent)
	assert.Contains(t, err.Error(), "robots")
	assert.False(t, fetchedDisallowed.Load(), "a cache-hit run must still honor the crawl policy")
}

func TestDiscoverIgnoresCacheForDifferentParams(t *testing.T) {
	t.Parallel()

	var requests atomic.Int64
	srv := discoveryServer(t, &requests)
	defer srv.Close()

	staging := t.TempDir()
	a, _ := testAdapter(t, Config{BaseURL: srv.URL + "/somali", StagingDir: staging})
	_, err := a.Discover(context.Background())
	require.NoError(t, err)
	crawled := requests.Load()

	b, _ := testAdapter(t, Config{BaseURL: srv.URL + "/somali", StagingDir: staging, MaxItems: 1})
	units, err := b.Discover(context.Background())

	require.NoError(t, err)
	assert.Len(t, units, 1)
	assert.Greater(t, requests.Load(), crawled, "changed parameters must invalidate the cache")
}

func TestAcquireEmitsOneArticleRecord(t *testing.T) {
	t.Parallel()

	srv := discoveryServer(t, nil)
	defer srv.Close()

	a, col := testAdapter(t, Config{BaseURL: srv.URL + "/somali"})
	articleURL := srv.URL + "/somali/articles/aaaabbbb1"

	var got []record.Raw
	var fetched []sources.Fetched
	err := a.Acquire(context.Background(), sources.WorkUnit{URL: articleURL},
		func(rec record.Raw, f sources.Fetched) error {
			got = append(got, rec)
			fetched = append(fetched, f)

			return nil
		})

	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, articleURL, got[0].SourceURL)
	assert.Equal(t, "Doorashada Soomaaliya", got[0].Metadata["title"])
	assert.Contains(t, got[0].Text, "dib loo dhigay")
	assert.NotContains(t, got[0].Text, "La soco wararka kale", "aside content is boilerplate")
	assert.Equal(t, http.StatusOK, fetched[0].HTTPStatus)
	assert.Positive(t, col.Counter(quality.CounterBytesDownloaded))
}

func TestAcquireMissingPageIsNotFound(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	a, _ := testAdapter(t, Config{BaseURL: srv.URL + "/somali"})

	err := a.Acquire(context.Background(), sources.WorkUnit{URL: srv.URL + "/somali/articles/gone00001"},
		func(record.Raw, sources.Fetched) error { return nil })

	require.ErrorIs(t, err, sources.ErrNotFound)
}
