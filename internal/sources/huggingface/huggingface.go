// Package huggingface ingests Somali text from a Hugging Face dataset
// through the datasets-server rows API: the split is paged in fixed-size
// windows and every row's text column becomes one record. There is no
// payload download; the API is the stream.
package huggingface

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	json "github.com/goccy/go-json"

	"github.com/somali-nlp/somali-dialect-classifier/internal/config"
	"github.com/somali-nlp/somali-dialect-classifier/internal/fetch"
	"github.com/somali-nlp/somali-dialect-classifier/internal/filter"
	"github.com/somali-nlp/somali-dialect-classifier/internal/filter/lexicons"
	"github.com/somali-nlp/somali-dialect-classifier/internal/quality"
	"github.com/somali-nlp/somali-dialect-classifier/internal/record"
	"github.com/somali-nlp/somali-dialect-classifier/internal/sources"
	"github.com/somali-nlp/somali-dialect-classifier/internal/textclean"
)

// Stream defaults.
const (
	// DefaultEndpoint is the public datasets-server instance.
	DefaultEndpoint = "https://datasets-server.huggingface.co"

	// DefaultDataset is the Somali split of the CulturaX web corpus.
	DefaultDataset = "uonlp/CulturaX"

	// DefaultConfigName selects the Somali subset.
	DefaultConfigName = "so"

	// DefaultSplit is the only split CulturaX publishes.
	DefaultSplit = "train"

	// DefaultTextColumn is the row field carrying document text.
	DefaultTextColumn = "text"

	// DefaultPageSize is the largest window the rows API serves.
	DefaultPageSize = 100
)

// Config tunes one Hugging Face ingestion run.
type Config struct {
	// Endpoint is the datasets-server base URL.
	Endpoint string

	// Dataset is the hub dataset identifier (org/name).
	Dataset string

	// ConfigName is the dataset configuration to stream.
	ConfigName string

	// Split is the dataset split to stream.
	Split string

	// TextColumn names the row field holding document text.
	TextColumn string

	// PageSize is the rows-per-request window.
	PageSize int

	// MaxItems halts the stream after this many rows when positive.
	// Hitting the cap is a clean end-of-stream, not a failure.
	MaxItems int

	// Quality supplies the filter chain thresholds.
	Quality config.QualityConfig
}

func (c *Config) normalize() {
	if c.Endpoint == "" {
		c.Endpoint = DefaultEndpoint
	}
	if c.Dataset == "" {
		c.Dataset = DefaultDataset
	}
	if c.ConfigName == "" {
		c.ConfigName = DefaultConfigName
	}
	if c.Split == "" {
		c.Split = DefaultSplit
	}
	if c.TextColumn == "" {
		c.TextColumn = DefaultTextColumn
	}
	if c.PageSize <= 0 || c.PageSize > DefaultPageSize {
		c.PageSize = DefaultPageSize
	}
}

// rowsResponse is the subset of the rows API payload the adapter reads.
type rowsResponse struct {
	Rows []struct {
		RowIdx int            `json:"row_idx"`
		Row    map[string]any `json:"row"`
	} `json:"rows"`
	NumRowsTotal int64 `json:"num_rows_total"`
}

// Adapter streams a Hugging Face dataset split.
type Adapter struct {
	cfg       Config
	client    *fetch.Client
	collector *quality.Collector
	logger    *slog.Logger
}

// New builds the adapter around an API client.
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
		Name:     "HuggingFace-Somali",
		Type:     record.TypeWeb,
		License:  "ODC-BY-1.0",
		Register: record.RegisterInformal,
		Language: "so",
		Domain:   "web",
	}
}

// PipelineType implements sources.Adapter.
func (a *Adapter) PipelineType() quality.PipelineType { return quality.PipelineStreamProcessing }

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

// Discover implements sources.Adapter: the split is the single container
// unit; rows are enumerated during acquisition.
func (a *Adapter) Discover(context.Context) ([]sources.WorkUnit, error) {
	return []sources.WorkUnit{{
		URL:       a.streamURL(),
		Container: true,
		Metadata: map[string]any{
			"dataset": a.cfg.Dataset,
			"config":  a.cfg.ConfigName,
			"split":   a.cfg.Split,
		},
	}}, nil
}

// Acquire implements sources.Adapter: page through the split and emit
// every row's text column. A failure opening the stream (the first
// page) is permanent and leaves datasets_opened at zero, which the
// quality reporter classifies as an unhealthy run.
func (a *Adapter) Acquire(ctx context.Context, _ sources.WorkUnit, emit sources.EmitFunc) error {
	emitted := 0
	last := time.Now()

	for offset := 0; ; offset += a.cfg.PageSize {
		if err := ctx.Err(); err != nil {
			return sources.Transient(err)
		}
		if a.cfg.MaxItems > 0 && emitted >= a.cfg.MaxItems {
			a.logger.Info("row cap reached", "max_items", a.cfg.MaxItems)

			return nil
		}

		page, status, err := a.fetchPage(ctx, offset)
		if err != nil {
			if offset == 0 {
				// The stream never opened; retrying a dead dataset
				// endpoint within the run does not help.
				return sources.Permanent(fmt.Errorf("huggingface: open stream: %w", err))
			}

			return err
		}
		if offset == 0 {
			a.collector.Increment(quality.CounterDatasetsOpened)
			a.logger.Info("stream opened",
				"dataset", a.cfg.Dataset, "rows_total", page.NumRowsTotal)
		}
		if len(page.Rows) == 0 {
			return nil
		}

		for _, row := range page.Rows {
			if a.cfg.MaxItems > 0 && emitted >= a.cfg.MaxItems {
				a.logger.Info("row cap reached", "max_items", a.cfg.MaxItems)

				return nil
			}

			a.collector.Increment(quality.CounterRecordsRequested)

			text, ok := row.Row[a.cfg.TextColumn].(string)
			if !ok || text == "" {
				continue
			}

			a.collector.Increment(quality.CounterRecordsFetchedOK)

			now := time.Now()
			fetched := sources.Fetched{
				HTTPStatus: status,
				Bytes:      int64(len(text)),
				Took:       now.Sub(last),
			}
			last = now

			rec := record.Raw{
				Text: text,
				Metadata: map[string]any{
					"dataset": a.cfg.Dataset,
					"split":   a.cfg.Split,
					"row_idx": row.RowIdx,
				},
			}
			if err := emit(rec, fetched); err != nil {
				return sources.Transient(err)
			}
			emitted++
		}
	}
}

// fetchPage requests one rows window and decodes it.
func (a *Adapter) fetchPage(ctx context.Context, offset int) (*rowsResponse, int, error) {
	res, err := a.client.Get(ctx, a.pageURL(offset))
	if err != nil {
		return nil, 0, err
	}

	a.collector.Add(quality.CounterBytesDownloaded, res.Bytes)

	var page rowsResponse
	if err := json.Unmarshal(res.Body, &page); err != nil {
		return nil, 0, sources.Permanent(fmt.Errorf("huggingface: decode rows at offset %d: %w", offset, err))
	}

	return &page, res.StatusCode, nil
}

// streamURL is the stable ledger identity of the split.
func (a *Adapter) streamURL() string {
	return "hf://" + a.cfg.Dataset + "/" + a.cfg.ConfigName + "/" + a.cfg.Split
}

// pageURL builds one rows API request.
func (a *Adapter) pageURL(offset int) string {
	q := url.Values{}
	q.Set("dataset", a.cfg.Dataset)
	q.Set("config", a.cfg.ConfigName)
	q.Set("split", a.cfg.Split)
	q.Set("offset", strconv.Itoa(offset))
	q.Set("length", strconv.Itoa(a.cfg.PageSize))

	return a.cfg.Endpoint + "/rows?" + q.Encode()
}
