// Package wikipedia ingests the Somali Wikipedia from the standard
// pages-articles dump: one bronze download per date partition, then a
// streaming parse that yields namespace-0 article text page by page.
package wikipedia

import (
	"bufio"
	"compress/bzip2"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/somali-nlp/somali-dialect-classifier/internal/config"
	"github.com/somali-nlp/somali-dialect-classifier/internal/fetch"
	"github.com/somali-nlp/somali-dialect-classifier/internal/filter"
	"github.com/somali-nlp/somali-dialect-classifier/internal/filter/lexicons"
	"github.com/somali-nlp/somali-dialect-classifier/internal/quality"
	"github.com/somali-nlp/somali-dialect-classifier/internal/record"
	"github.com/somali-nlp/somali-dialect-classifier/internal/sources"
	"github.com/somali-nlp/somali-dialect-classifier/internal/textclean"
)

// Dump acquisition defaults.
const (
	// DefaultDumpURL is the latest Somali pages-articles export.
	DefaultDumpURL = "https://dumps.wikimedia.org/sowiki/latest/sowiki-latest-pages-articles.xml.bz2"

	// DefaultSiteBase roots the per-page URLs recorded on silver rows.
	DefaultSiteBase = "https://so.wikipedia.org"

	// DefaultMaxPageBytes skips pathological pages instead of parsing
	// them; list and table dumps occasionally exceed this.
	DefaultMaxPageBytes = 10 << 20
)

// skipNamespacePrefixes guards against non-article titles that slip
// into replayed payloads without a namespace field, in both English and
// Somali forms.
var skipNamespacePrefixes = []string{
	"Talk:", "User:", "User talk:", "Wikipedia:", "File:", "Template:",
	"Category:", "Help:", "Portal:", "Draft:", "Module:", "MediaWiki:",
	"Wada hadal:", "Isticmaale:", "Faylka:", "Qaybta:", "Gargaar:",
}

// Config tunes one Wikipedia ingestion run.
type Config struct {
	// DumpURL locates the pages-articles export. An existing local path
	// replays that file without any network traffic.
	DumpURL string

	// BronzeDir receives the downloaded dump for the run's date
	// partition.
	BronzeDir string

	// SiteBase roots per-page URLs, normally the sowiki origin.
	SiteBase string

	// MaxPageBytes caps a single page's wikitext.
	MaxPageBytes int64

	// MaxItems stops emission after this many pages when positive.
	MaxItems int

	// Quality supplies the filter chain thresholds.
	Quality config.QualityConfig
}

func (c *Config) normalize() {
	if c.DumpURL == "" {
		c.DumpURL = DefaultDumpURL
	}
	if c.SiteBase == "" {
		c.SiteBase = DefaultSiteBase
	}
	if c.MaxPageBytes <= 0 {
		c.MaxPageBytes = DefaultMaxPageBytes
	}
}

// Adapter ingests the Somali Wikipedia dump.
type Adapter struct {
	cfg       Config
	client    *fetch.Client
	collector *quality.Collector
	logger    *slog.Logger
	siteBase  *url.URL
}

// New builds the adapter. client may be nil when DumpURL is a local
// path replay.
func New(cfg Config, client *fetch.Client, col *quality.Collector, logger *slog.Logger) (*Adapter, error) {
	cfg.normalize()
	base, err := url.Parse(cfg.SiteBase)
	if err != nil {
		return nil, fmt.Errorf("wikipedia: site base %q: %w", cfg.SiteBase, err)
	}

	return &Adapter{
		cfg:       cfg,
		client:    client,
		collector: col,
		logger:    logger,
		siteBase:  base,
	}, nil
}

// Descriptor implements sources.Adapter.
func (a *Adapter) Descriptor() record.SourceDescriptor {
	return record.SourceDescriptor{
		Name:     "Wikipedia-Somali",
		Type:     record.TypeEncyclopedia,
		License:  "CC-BY-SA-4.0",
		Register: record.RegisterFormal,
		Language: "so",
		Domain:   "encyclopedic",
	}
}

// PipelineType implements sources.Adapter.
func (a *Adapter) PipelineType() quality.PipelineType { return quality.PipelineFileProcessing }

// Cleaner implements sources.Adapter.
func (a *Adapter) Cleaner() *textclean.Cleaner { return textclean.NewWikiCleaner() }

// Filters implements sources.Adapter.
func (a *Adapter) Filters() []filter.Predicate {
	return []filter.Predicate{
		filter.NewNamespace(skipNamespacePrefixes...),
		filter.NewMinLength(a.cfg.Quality.MinLength),
		filter.NewLangID([]string{"so"}, a.cfg.Quality.LangIDConfidence),
		filter.NewDialectLexicon(lexicons.DefaultRuleset(), true),
	}
}

// Discover implements sources.Adapter: the dump itself is the single
// container unit, so no payload I/O happens here.
func (a *Adapter) Discover(context.Context) ([]sources.WorkUnit, error) {
	return []sources.WorkUnit{{
		URL:       a.cfg.DumpURL,
		Container: true,
		Metadata:  map[string]any{"dump_file": filepath.Base(a.cfg.DumpURL)},
	}}, nil
}

// Acquire implements sources.Adapter: ensure the dump is on disk, then
// stream namespace-0, non-redirect pages through emit.
func (a *Adapter) Acquire(ctx context.Context, unit sources.WorkUnit, emit sources.EmitFunc) error {
	path, status, err := a.ensureDump(ctx)
	if err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return sources.Permanent(fmt.Errorf("wikipedia: open dump %s: %w", path, err))
	}
	defer f.Close()

	reader, err := dumpReader(f)
	if err != nil {
		return sources.Permanent(err)
	}

	parser := newDumpParser(reader, a.cfg.MaxPageBytes)
	emitted := 0
	for {
		if err := ctx.Err(); err != nil {
			return sources.Transient(err)
		}
		if a.cfg.MaxItems > 0 && emitted >= a.cfg.MaxItems {
			a.logger.Info("page cap reached", "max_items", a.cfg.MaxItems)

			return nil
		}

		page, err := parser.next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return sources.Permanent(err)
		}
		if page.NS != 0 || page.Redirect {
			continue
		}

		a.collector.Increment(quality.CounterRecordsAttempted)
		if page.Oversized {
			a.collector.Increment(quality.CounterOversizedSkipped)
			a.logger.Debug("oversized page skipped",
				"title", page.Title, "bytes", page.TextBytes)

			continue
		}

		rec := record.Raw{
			Text:      page.Text,
			SourceURL: a.pageURL(page.Title),
			Metadata: map[string]any{
				"title":       page.Title,
				"page_id":     page.PageID,
				"revision_id": page.RevID,
				"dump_file":   filepath.Base(path),
			},
		}
		if err := emit(rec, sources.Fetched{HTTPStatus: status}); err != nil {
			return sources.Transient(err)
		}
		emitted++
	}
}

// ensureDump returns a readable dump path, downloading into the bronze
// partition when DumpURL is remote. The reported status is 200 for a
// fresh transfer and 0 for local replay or a cached bronze file.
func (a *Adapter) ensureDump(ctx context.Context) (string, int, error) {
	if !strings.HasPrefix(a.cfg.DumpURL, "http://") && !strings.HasPrefix(a.cfg.DumpURL, "https://") {
		if _, err := os.Stat(a.cfg.DumpURL); err != nil {
			return "", 0, sources.Permanent(fmt.Errorf("wikipedia: local dump %s: %w", a.cfg.DumpURL, err))
		}

		return a.cfg.DumpURL, 0, nil
	}

	if a.client == nil {
		return "", 0, sources.Permanent(fmt.Errorf("wikipedia: remote dump %s needs an http client", a.cfg.DumpURL))
	}

	dest := filepath.Join(a.cfg.BronzeDir, filepath.Base(a.cfg.DumpURL))
	start := time.Now()
	n, err := a.client.Download(ctx, a.cfg.DumpURL, dest)
	if err != nil {
		return "", 0, err
	}
	if n == 0 {
		return dest, 0, nil
	}

	a.collector.Add(quality.CounterBytesDownloaded, n)
	a.collector.Observe(quality.HistFetchDuration, float64(time.Since(start).Milliseconds()))

	return dest, 200, nil
}

// dumpReader peeks the bzip2 magic and wraps the stream accordingly,
// so both .xml.bz2 exports and plain .xml replays parse.
func dumpReader(f *os.File) (io.Reader, error) {
	br := bufio.NewReaderSize(f, 1<<20)
	magic, err := br.Peek(3)
	if err != nil {
		return nil, fmt.Errorf("wikipedia: dump %s unreadable: %w", f.Name(), err)
	}
	if string(magic) == "BZh" {
		return bzip2.NewReader(br), nil
	}

	return br, nil
}

// pageURL builds the canonical article URL MediaWiki uses: spaces become
// underscores under /wiki/.
func (a *Adapter) pageURL(title string) string {
	u := *a.siteBase
	u.Path = "/wiki/" + strings.ReplaceAll(title, " ", "_")

	return u.String()
}
