// Package tiktok ingests Somali-language TikTok comments through a
// third-party comments API: each configured video is one container
// unit whose comment pages are walked by cursor, and every comment's
// text becomes one record. Comment text is short and often emoji-only,
// so the filter chain leads with an emoji rejection.
package tiktok

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"

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

// API defaults.
const (
	// DefaultPageSize is the comments-per-request window.
	DefaultPageSize = 50

	// commentURLPrefix keys per-comment ledger entries; comments have
	// no public URL of their own.
	commentURLPrefix = "tiktok://comment/"
)

// Config tunes one TikTok ingestion run.
type Config struct {
	// APIBase is the third-party comments API root, e.g.
	// "https://api.example.com/tiktok".
	APIBase string

	// APIKey authenticates against the comments API.
	APIKey string

	// VideoIDs lists the videos whose comment threads are collected.
	VideoIDs []string

	// PageSize is the comments-per-request window.
	PageSize int

	// MaxItems halts emission after this many comments when positive,
	// counted per video.
	MaxItems int

	// Quality supplies the filter chain thresholds.
	Quality config.QualityConfig
}

func (c *Config) normalize() {
	if c.PageSize <= 0 {
		c.PageSize = DefaultPageSize
	}
}

// commentsResponse is the subset of the comments API payload the
// adapter reads.
type commentsResponse struct {
	Comments []struct {
		ID        string `json:"cid"`
		Text      string `json:"text"`
		LikeCount int64  `json:"digg_count"`
		CreatedAt int64  `json:"create_time"`
	} `json:"comments"`
	HasMore bool  `json:"has_more"`
	Cursor  int64 `json:"cursor"`
}

// Adapter collects TikTok comment threads.
type Adapter struct {
	cfg       Config
	client    *fetch.Client
	collector *quality.Collector
	logger    *slog.Logger
}

// New builds the adapter around an API client.
func New(cfg Config, client *fetch.Client, col *quality.Collector, logger *slog.Logger) (*Adapter, error) {
	cfg.normalize()
	if cfg.APIBase == "" {
		return nil, fmt.Errorf("tiktok: %w: api base not configured", sources.ErrPermanent)
	}

	return &Adapter{
		cfg:       cfg,
		client:    client,
		collector: col,
		logger:    logger,
	}, nil
}

// Descriptor implements sources.Adapter.
func (a *Adapter) Descriptor() record.SourceDescriptor {
	return record.SourceDescriptor{
		Name:     "TikTok-Somali",
		Type:     record.TypeSocial,
		License:  "LicenseRef-TikTok-Terms",
		Register: record.RegisterColloquial,
		Language: "so",
		Domain:   "social",
	}
}

// PipelineType implements sources.Adapter.
func (a *Adapter) PipelineType() quality.PipelineType { return quality.PipelineStreamProcessing }

// Cleaner implements sources.Adapter.
func (a *Adapter) Cleaner() *textclean.Cleaner { return textclean.NewPlainCleaner() }

// Filters implements sources.Adapter: emoji-only comments go first so
// the vocabulary scans never see them.
func (a *Adapter) Filters() []filter.Predicate {
	return []filter.Predicate{
		filter.NewEmojiOnly(),
		filter.NewMinLength(a.cfg.Quality.MinLength),
		filter.NewLangID([]string{"so"}, a.cfg.Quality.LangIDConfidence),
		filter.NewDialectLexicon(lexicons.DefaultRuleset(), true),
	}
}

// Discover implements sources.Adapter: one container unit per video.
func (a *Adapter) Discover(context.Context) ([]sources.WorkUnit, error) {
	units := make([]sources.WorkUnit, 0, len(a.cfg.VideoIDs))
	for _, id := range a.cfg.VideoIDs {
		units = append(units, sources.WorkUnit{
			URL:       "tiktok://video/" + id,
			Container: true,
			Metadata:  map[string]any{"video_id": id},
		})
	}

	return units, nil
}

// Acquire implements sources.Adapter: walk one video's comment pages by
// cursor and emit every comment. A failure opening the thread (the
// first page) is permanent; with no other videos succeeding it leaves
// datasets_opened at zero, which the quality reporter classifies as an
// unhealthy run.
func (a *Adapter) Acquire(ctx context.Context, unit sources.WorkUnit, emit sources.EmitFunc) error {
	videoID, _ := unit.Metadata["video_id"].(string)
	if videoID == "" {
		return sources.Permanent(fmt.Errorf("tiktok: unit %s has no video id", unit.URL))
	}

	emitted := 0

	var cursor int64

	for {
		if err := ctx.Err(); err != nil {
			return sources.Transient(err)
		}
		if a.cfg.MaxItems > 0 && emitted >= a.cfg.MaxItems {
			a.logger.Info("comment cap reached", "video_id", videoID, "max_items", a.cfg.MaxItems)

			return nil
		}

		page, status, err := a.fetchPage(ctx, videoID, cursor)
		if err != nil {
			if cursor == 0 {
				return sources.Permanent(fmt.Errorf("tiktok: open comment thread for %s: %w", videoID, err))
			}

			return err
		}
		if cursor == 0 {
			a.collector.Increment(quality.CounterDatasetsOpened)
		}

		for _, comment := range page.Comments {
			if a.cfg.MaxItems > 0 && emitted >= a.cfg.MaxItems {
				break
			}

			a.collector.Increment(quality.CounterRecordsRequested)
			if comment.Text == "" {
				continue
			}
			a.collector.Increment(quality.CounterRecordsFetchedOK)

			rec := record.Raw{
				Text:      comment.Text,
				SourceURL: commentURLPrefix + comment.ID,
				Metadata: map[string]any{
					"video_id":    videoID,
					"comment_id":  comment.ID,
					"like_count":  comment.LikeCount,
					"create_time": comment.CreatedAt,
				},
			}
			if err := emit(rec, sources.Fetched{HTTPStatus: status}); err != nil {
				return sources.Transient(err)
			}
			emitted++
		}

		if !page.HasMore || len(page.Comments) == 0 {
			return nil
		}
		cursor = page.Cursor
	}
}

// fetchPage requests one comments window and decodes it.
func (a *Adapter) fetchPage(ctx context.Context, videoID string, cursor int64) (*commentsResponse, int, error) {
	res, err := a.client.Get(ctx, a.pageURL(videoID, cursor))
	if err != nil {
		return nil, 0, err
	}

	a.collector.Add(quality.CounterBytesDownloaded, res.Bytes)

	var page commentsResponse
	if err := json.Unmarshal(res.Body, &page); err != nil {
		return nil, 0, sources.Permanent(fmt.Errorf("tiktok: decode comments at cursor %d: %w", cursor, err))
	}

	return &page, res.StatusCode, nil
}

// pageURL builds one comments API request. The key travels as a query
// parameter, the convention of the aggregator APIs this adapter talks
// to.
func (a *Adapter) pageURL(videoID string, cursor int64) string {
	q := url.Values{}
	q.Set("video_id", videoID)
	q.Set("cursor", strconv.FormatInt(cursor, 10))
	q.Set("count", strconv.Itoa(a.cfg.PageSize))
	if a.cfg.APIKey != "" {
		q.Set("api_key", a.cfg.APIKey)
	}

	return a.cfg.APIBase + "/comments?" + q.Encode()
}
