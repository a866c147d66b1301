package bbc

import (
	"context"
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"time"

	json "github.com/goccy/go-json"

	"github.com/somali-nlp/somali-dialect-classifier/internal/fetch"
	"github.com/somali-nlp/somali-dialect-classifier/internal/sources"
	"github.com/somali-nlp/somali-dialect-classifier/pkg/alg/bloom"
)

// Discovery bounds.
const (
	// discoveryCacheTTL caps how long a cached URL frontier is reused;
	// news indexes churn too fast for anything longer.
	discoveryCacheTTL = 12 * time.Hour

	// discoveryCacheFile sits in the staging partition.
	discoveryCacheFile = "discovery_cache.json"

	// seenCapacity sizes the discovery bloom filter; the Somali service
	// publishes well under this in any crawl horizon.
	seenCapacity = 1 << 17

	// seenFalsePositiveRate trades a few dropped links for memory.
	seenFalsePositiveRate = 0.001

	// maxSitemapDepth bounds index-of-index recursion.
	maxSitemapDepth = 2
)

// cacheParams keys a cached frontier. A cache is only reused when every
// discovery input matches the current configuration.
type cacheParams struct {
	BaseURL    string   `json:"base_url"`
	SitemapURL string   `json:"sitemap_url"`
	TopicPaths []string `json:"topic_paths"`
	MaxItems   int      `json:"max_items"`
}

// discoveryCache is the persisted URL frontier.
type discoveryCache struct {
	Params    cacheParams `json:"params"`
	URLs      []string    `json:"urls"`
	CreatedAt time.Time   `json:"created_at"`
}

// Discover implements sources.Adapter: collect candidate article URLs
// from the front page, the sitemap tree, and any configured topic
// pages, deduplicated through a bloom seen-set and cached in staging so
// a rerun within the TTL skips the crawl entirely.
func (a *Adapter) Discover(ctx context.Context) ([]sources.WorkUnit, error) {
	// Robots loads before the cache check: acquisition relies on the
	// client's cached policy, so a cache-hit run must install it too.
	if err := a.client.LoadRobots(ctx, a.cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("bbc: discovery: %w", err)
	}

	if urls, ok := a.loadCachedFrontier(); ok {
		a.logger.Info("discovery cache hit", "urls", len(urls))

		return unitsFor(urls), nil
	}

	frontier := newFrontier(a)

	if err := a.discoverPage(ctx, a.cfg.BaseURL, frontier); err != nil {
		a.logger.Warn("front page discovery failed", "error", err.Error())
	}
	if err := a.discoverSitemap(ctx, a.cfg.SitemapURL, 0, frontier); err != nil {
		a.logger.Warn("sitemap discovery failed", "url", a.cfg.SitemapURL, "error", err.Error())
	}
	for _, topic := range a.cfg.TopicPaths {
		topicURL := topic
		if ref, err := fetch.Resolve(a.base, topic); err == nil {
			topicURL = ref
		}
		if err := a.discoverPage(ctx, topicURL, frontier); err != nil {
			a.logger.Warn("topic discovery failed", "url", topicURL, "error", err.Error())
		}
		if frontier.full() {
			break
		}
	}

	urls := frontier.urls
	a.saveCachedFrontier(urls)
	a.logger.Info("discovery complete", "urls", len(urls))

	return unitsFor(urls), nil
}

// seenSet is the discovery dedup filter: canonical URLs already offered
// to the frontier test positive, at the configured false-positive cost.
type seenSet struct {
	filter *bloom.Filter
}

func newSeenSet() seenSet {
	f, err := bloom.NewWithEstimates(seenCapacity, seenFalsePositiveRate)
	if err != nil {
		// Unreachable with the constant sizing above.
		panic(err)
	}

	return seenSet{filter: f}
}

func (s seenSet) testAndAdd(canonical string) bool {
	return s.filter.TestAndAdd([]byte(canonical))
}

// frontier accumulates canonical article URLs in first-seen order.
type frontier struct {
	adapter *Adapter
	seen    seenSet
	urls    []string
}

func newFrontier(a *Adapter) *frontier {
	return &frontier{adapter: a, seen: newSeenSet()}
}

// add canonicalizes raw, applies the article shape and seen-set checks,
// and appends when it survives all three.
func (f *frontier) add(raw string) {
	if f.full() {
		return
	}

	canonical, err := fetch.Resolve(f.adapter.base, raw)
	if err != nil {
		return
	}
	if !f.adapter.isArticleURL(canonical) {
		return
	}
	if !f.adapter.client.Allowed(canonical) {
		return
	}
	if f.seen.testAndAdd(canonical) {
		return
	}

	f.urls = append(f.urls, canonical)
}

func (f *frontier) full() bool {
	max := f.adapter.cfg.MaxItems

	return max > 0 && len(f.urls) >= max
}

// discoverPage pulls anchor targets off one HTML page.
func (a *Adapter) discoverPage(ctx context.Context, pageURL string, fr *frontier) error {
	res, err := a.client.Get(ctx, pageURL)
	if err != nil {
		return err
	}

	for _, href := range extractLinks(res.Body) {
		fr.add(href)
	}

	return nil
}

// sitemapDoc covers both <urlset> leaves and <sitemapindex> nodes.
type sitemapDoc struct {
	URLs []struct {
		Loc string `xml:"loc"`
	} `xml:"url"`
	Sitemaps []struct {
		Loc string `xml:"loc"`
	} `xml:"sitemap"`
}

// discoverSitemap walks the sitemap tree breadth-first to a bounded
// depth, adding article locs along the way.
func (a *Adapter) discoverSitemap(ctx context.Context, sitemapURL string, depth int, fr *frontier) error {
	if depth >= maxSitemapDepth || fr.full() {
		return nil
	}

	res, err := a.client.Get(ctx, sitemapURL)
	if err != nil {
		return err
	}

	var doc sitemapDoc
	if err := xml.Unmarshal(res.Body, &doc); err != nil {
		return sources.Permanent(fmt.Errorf("bbc: sitemap %s: %w", sitemapURL, err))
	}

	for _, entry := range doc.URLs {
		fr.add(entry.Loc)
	}
	for _, child := range doc.Sitemaps {
		if fr.full() {
			break
		}
		if err := a.discoverSitemap(ctx, child.Loc, depth+1, fr); err != nil {
			a.logger.Warn("child sitemap failed", "url", child.Loc, "error", err.Error())
		}
	}

	return nil
}

func unitsFor(urls []string) []sources.WorkUnit {
	units := make([]sources.WorkUnit, 0, len(urls))
	for _, u := range urls {
		units = append(units, sources.WorkUnit{URL: u, Metadata: map[string]any{"url": u}})
	}

	return units
}

// --- Discovery cache ---

func (a *Adapter) cachePath() string {
	return filepath.Join(a.cfg.StagingDir, discoveryCacheFile)
}

func (a *Adapter) cacheParams() cacheParams {
	return cacheParams{
		BaseURL:    a.cfg.BaseURL,
		SitemapURL: a.cfg.SitemapURL,
		TopicPaths: a.cfg.TopicPaths,
		MaxItems:   a.cfg.MaxItems,
	}
}

// loadCachedFrontier returns the cached URL list when the cache file
// exists, matches the current discovery parameters, and is fresh.
func (a *Adapter) loadCachedFrontier() ([]string, bool) {
	if a.cfg.StagingDir == "" {
		return nil, false
	}

	raw, err := os.ReadFile(a.cachePath())
	if err != nil {
		return nil, false
	}

	var cache discoveryCache
	if err := json.Unmarshal(raw, &cache); err != nil {
		a.logger.Warn("discovery cache unreadable, ignoring", "error", err.Error())

		return nil, false
	}
	if !reflect.DeepEqual(cache.Params, a.cacheParams()) {
		return nil, false
	}
	if time.Since(cache.CreatedAt) > discoveryCacheTTL {
		return nil, false
	}

	return cache.URLs, true
}

func (a *Adapter) saveCachedFrontier(urls []string) {
	if a.cfg.StagingDir == "" {
		return
	}
	if err := os.MkdirAll(a.cfg.StagingDir, 0o755); err != nil {
		a.logger.Warn("staging dir unavailable, skipping discovery cache", "error", err.Error())

		return
	}

	cache := discoveryCache{
		Params:    a.cacheParams(),
		URLs:      urls,
		CreatedAt: time.Now().UTC(),
	}
	raw, err := json.MarshalIndent(cache, "", "  ")
	if err != nil {
		a.logger.Warn("discovery cache marshal failed", "error", err.Error())

		return
	}
	if err := os.WriteFile(a.cachePath(), raw, 0o644); err != nil {
		a.logger.Warn("discovery cache write failed", "error", err.Error())
	}
}
