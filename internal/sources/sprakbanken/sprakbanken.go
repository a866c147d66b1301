// Package sprakbanken ingests Somali text from Språkbanken Text corpus
// exports: each bundle is a bzip2-compressed Korp XML file downloaded
// once into the bronze partition (or replayed from a local path) and
// stream-parsed into one record per sentence.
package sprakbanken

import (
	"bufio"
	"compress/bzip2"
	"context"
	"fmt"
	"io"
	"log/slog"
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

// DefaultBundleURLs lists the Somali corpus exports collected by
// default. Each entry is one container unit; local paths replay without
// network traffic.
var DefaultBundleURLs = []string{
	"https://spraakbanken.gu.se/lb/resurser/meningsmangder/somali.xml.bz2",
}

// Config tunes one Språkbanken ingestion run.
type Config struct {
	// BundleURLs locates the corpus exports; local paths are replayed
	// as-is.
	BundleURLs []string

	// BronzeDir receives downloaded bundles for the run's date
	// partition.
	BronzeDir string

	// MaxItems stops emission after this many sentences when positive,
	// counted across bundles.
	MaxItems int

	// Quality supplies the filter chain thresholds.
	Quality config.QualityConfig
}

func (c *Config) normalize() {
	if len(c.BundleURLs) == 0 {
		c.BundleURLs = DefaultBundleURLs
	}
}

// Adapter ingests Språkbanken corpus bundles.
type Adapter struct {
	cfg       Config
	client    *fetch.Client
	collector *quality.Collector
	logger    *slog.Logger

	// emitted counts sentences across bundles toward MaxItems. The
	// adapter runs with a single worker, so no locking is needed.
	emitted int
}

// New builds the adapter. client may be nil when every bundle is a
// local path replay.
func New(cfg Config, client *fetch.Client, col *quality.Collector, logger *slog.Logger) *Adapter {
	cfg.normalize()

	return &Adapter{
		cfg:       cfg,
		client:    client,
		collector: col,
		logger:    logger,
	}
}

// Descriptor implements sources.Adapter.
func (a *Adapter) Descriptor() record.SourceDescriptor {
	return record.SourceDescriptor{
		Name:     "Sprakbanken-Somali",
		Type:     record.TypeCorpus,
		License:  "CC-BY-4.0",
		Register: record.RegisterFormal,
		Language: "so",
		Domain:   "news",
	}
}

// PipelineType implements sources.Adapter.
func (a *Adapter) PipelineType() quality.PipelineType { return quality.PipelineFileProcessing }

// Cleaner implements sources.Adapter.
func (a *Adapter) Cleaner() *textclean.Cleaner { return textclean.NewPlainCleaner() }

// Filters implements sources.Adapter.
func (a *Adapter) Filters() []filter.Predicate {
	return []filter.Predicate{
		filter.NewMinLength(a.cfg.Quality.MinLength),
		filter.NewLangID([]string{"so"}, a.cfg.Quality.LangIDConfidence),
		filter.NewDialectLexicon(lexicons.DefaultRuleset(), true),
	}
}

// Discover implements sources.Adapter: one container unit per bundle.
func (a *Adapter) Discover(context.Context) ([]sources.WorkUnit, error) {
	units := make([]sources.WorkUnit, 0, len(a.cfg.BundleURLs))
	for _, bundle := range a.cfg.BundleURLs {
		units = append(units, sources.WorkUnit{
			URL:       bundle,
			Container: true,
			Metadata:  map[string]any{"bundle": filepath.Base(bundle)},
		})
	}

	return units, nil
}

// Acquire implements sources.Adapter: ensure the bundle is on disk,
// then stream its sentences through emit.
func (a *Adapter) Acquire(ctx context.Context, unit sources.WorkUnit, emit sources.EmitFunc) error {
	path, status, err := a.ensureBundle(ctx, unit.URL)
	if err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return sources.Permanent(fmt.Errorf("sprakbanken: open bundle %s: %w", path, err))
	}
	defer f.Close()

	reader, err := bundleReader(f)
	if err != nil {
		return sources.Permanent(err)
	}

	bundle := filepath.Base(path)
	parser := newCorpusParser(reader)

	for {
		if err := ctx.Err(); err != nil {
			return sources.Transient(err)
		}
		if a.cfg.MaxItems > 0 && a.emitted >= a.cfg.MaxItems {
			a.logger.Info("sentence cap reached", "max_items", a.cfg.MaxItems)

			return nil
		}

		sent, err := parser.next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return sources.Permanent(err)
		}

		a.collector.Increment(quality.CounterRecordsAttempted)
		if sent.Text == "" {
			continue
		}

		rec := record.Raw{
			Text: sent.Text,
			Metadata: map[string]any{
				"bundle":      bundle,
				"sentence_id": sent.ID,
				"title":       sent.Title,
			},
		}
		if err := emit(rec, sources.Fetched{HTTPStatus: status}); err != nil {
			return sources.Transient(err)
		}
		a.emitted++
	}
}

// ensureBundle returns a readable bundle path, downloading into the
// bronze partition when the URL is remote. The reported status is 200
// for a fresh transfer and 0 for local replay or a cached bronze file.
func (a *Adapter) ensureBundle(ctx context.Context, bundleURL string) (string, int, error) {
	if !strings.HasPrefix(bundleURL, "http://") && !strings.HasPrefix(bundleURL, "https://") {
		if _, err := os.Stat(bundleURL); err != nil {
			return "", 0, sources.Permanent(fmt.Errorf("sprakbanken: local bundle %s: %w", bundleURL, err))
		}

		return bundleURL, 0, nil
	}

	if a.client == nil {
		return "", 0, sources.Permanent(fmt.Errorf("sprakbanken: remote bundle %s needs an http client", bundleURL))
	}

	dest := filepath.Join(a.cfg.BronzeDir, filepath.Base(bundleURL))
	start := time.Now()
	n, err := a.client.Download(ctx, bundleURL, dest)
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

// bundleReader peeks the bzip2 magic and wraps the stream accordingly,
// so both .xml.bz2 exports and plain .xml replays parse.
func bundleReader(f *os.File) (io.Reader, error) {
	br := bufio.NewReaderSize(f, 1<<20)
	magic, err := br.Peek(3)
	if err != nil {
		return nil, fmt.Errorf("sprakbanken: bundle %s unreadable: %w", f.Name(), err)
	}
	if string(magic) == "BZh" {
		return bzip2.NewReader(br), nil
	}

	return br, nil
}
