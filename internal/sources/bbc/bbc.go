// Package bbc ingests BBC News Somali articles by polite web scraping:
// homepage, sitemap, and topic-page discovery feeds a rate-limited
// fetch of each article, whose headline and body paragraphs become one
// record.
package bbc

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"

	"github.com/somali-nlp/somali-dialect-classifier/internal/config"
	"github.com/somali-nlp/somali-dialect-classifier/internal/fetch"
	"github.com/somali-nlp/somali-dialect-classifier/internal/filter"
	"github.com/somali-nlp/somali-dialect-classifier/internal/filter/lexicons"
	"github.com/somali-nlp/somali-dialect-classifier/internal/quality"
	"github.com/somali-nlp/somali-dialect-classifier/internal/record"
	"github.com/somali-nlp/somali-dialect-classifier/internal/sources"
	"github.com/somali-nlp/somali-dialect-classifier/internal/textclean"
)

// Service defaults.
const (
	// DefaultBaseURL is the BBC News Somali front page.
	DefaultBaseURL = "https://www.bbc.com/somali"

	// defaultSitemapPath hangs off the service base.
	defaultSitemapPath = "/sitemap.xml"
)

// Article path shapes: the current CPS form /somali/articles/<asset-id>
// and the legacy forms ending in a numeric story id.
var (
	articlePathRe = regexp.MustCompile(`^/somali/articles/[a-z0-9]{8,}$`)
	legacyPathRe  = regexp.MustCompile(`^/somali/[a-z0-9_-]*\d{6,}$`)
)

// Section prefixes that look like stories but never carry article
// bodies.
var skipPathPrefixes = []string{
	"/somali/topics/",
	"/somali/live/",
	"/somali/media-",
	"/somali/av/",
	"/somali/institutional-",
	"/somali/bbc_somali_",
}

// Config tunes one BBC ingestion run.
type Config struct {
	// BaseURL is the service front page; discovery starts here.
	BaseURL string

	// SitemapURL overrides the default <BaseURL>/sitemap.xml.
	SitemapURL string

	// TopicPaths lists extra section pages crawled for article links,
	// relative to BaseURL or absolute.
	TopicPaths []string

	// StagingDir holds the discovery cache between runs.
	StagingDir string

	// MaxItems caps discovered articles when positive.
	MaxItems int

	// Quality supplies the filter chain thresholds.
	Quality config.QualityConfig
}

func (c *Config) normalize() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.SitemapURL == "" {
		c.SitemapURL = strings.TrimSuffix(c.BaseURL, "/") + defaultSitemapPath
	}
}

// Adapter scrapes BBC News Somali.
type Adapter struct {
	cfg       Config
	client    *fetch.Client
	collector *quality.Collector
	logger    *slog.Logger
	base      *url.URL
}

// New builds the adapter around a polite fetch client.
func New(cfg Config, client *fetch.Client, col *quality.Collector, logger *slog.Logger) (*Adapter, error) {
	cfg.normalize()
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || base.Host == "" {
		return nil, fmt.Errorf("bbc: base url %q: %w", cfg.BaseURL, err)
	}

	return &Adapter{
		cfg:       cfg,
		client:    client,
		collector: col,
		logger:    logger,
		base:      base,
	}, nil
}

// Descriptor implements sources.Adapter.
func (a *Adapter) Descriptor() record.SourceDescriptor {
	return record.SourceDescriptor{
		Name:     "BBC-Somali",
		Type:     record.TypeNews,
		License:  "LicenseRef-BBC-Terms",
		Register: record.RegisterFormal,
		Language: "so",
		Domain:   "news",
	}
}

// PipelineType implements sources.Adapter.
func (a *Adapter) PipelineType() quality.PipelineType { return quality.PipelineWebScraping }

// Cleaner implements sources.Adapter.
func (a *Adapter) Cleaner() *textclean.Cleaner { return textclean.NewHTMLCleaner() }

// Filters implements sources.Adapter.
func (a *Adapter) Filters() []filter.Predicate {
	return []filter.Predicate{
		filter.NewMinLength(a.cfg.Quality.MinLength),
		filter.NewLangID([]string{"so"}, a.cfg.Quality.LangIDConfidence),
		filter.NewDialectLexicon(lexicons.DefaultRuleset(), true),
	}
}

// Acquire implements sources.Adapter: fetch one article page and emit
// its headline plus body paragraphs as a single record.
func (a *Adapter) Acquire(ctx context.Context, unit sources.WorkUnit, emit sources.EmitFunc) error {
	res, err := a.client.Get(ctx, unit.URL)
	if err != nil {
		return err
	}
	a.collector.Add(quality.CounterBytesDownloaded, res.Bytes)

	article := extractArticle(res.Body)
	rec := record.Raw{
		Text:      article.Text,
		SourceURL: unit.URL,
		Metadata: map[string]any{
			"title": article.Title,
			"url":   unit.URL,
		},
	}

	if err := emit(rec, sources.Fetched{
		HTTPStatus: res.StatusCode,
		Bytes:      res.Bytes,
		Took:       res.Took,
	}); err != nil {
		return sources.Transient(err)
	}

	return nil
}

// isArticleURL reports whether canonical belongs to this service and
// addresses an article body.
func (a *Adapter) isArticleURL(canonical string) bool {
	u, err := url.Parse(canonical)
	if err != nil || !strings.EqualFold(u.Host, a.base.Host) {
		return false
	}

	path := strings.TrimSuffix(u.Path, "/")
	for _, prefix := range skipPathPrefixes {
		if strings.HasPrefix(path, prefix) {
			return false
		}
	}

	return articlePathRe.MatchString(path) || legacyPathRe.MatchString(path)
}
