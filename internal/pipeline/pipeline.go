// Package pipeline orchestrates one ingestion run for one source:
// discover, admit against the crawl ledger, acquire through the
// adapter's bounded stream, clean, filter, deduplicate, and write
// batched silver records. The orchestration is single-threaded so the
// ledger, dedup engine, and writer always see a serial stream;
// concurrency lives inside adapters.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/somali-nlp/somali-dialect-classifier/internal/config"
	"github.com/somali-nlp/somali-dialect-classifier/internal/dedup"
	"github.com/somali-nlp/somali-dialect-classifier/internal/filter"
	"github.com/somali-nlp/somali-dialect-classifier/internal/ledger"
	"github.com/somali-nlp/somali-dialect-classifier/internal/observability"
	"github.com/somali-nlp/somali-dialect-classifier/internal/quality"
	"github.com/somali-nlp/somali-dialect-classifier/internal/record"
	"github.com/somali-nlp/somali-dialect-classifier/internal/silver"
	"github.com/somali-nlp/somali-dialect-classifier/internal/sources"
	"github.com/somali-nlp/somali-dialect-classifier/internal/textclean"
)

// maxConsecutiveFlushFails aborts the run once this many writer flushes
// fail back to back; isolated flush failures only cost their batch.
const maxConsecutiveFlushFails = 3

// perRecordOverheadBytes pads the serialized-size estimate for the
// fixed columns of one buffered record.
const perRecordOverheadBytes = 128

// Deps are the collaborators one run is wired with. Ledger, Dedup,
// Writer, and Collector are required; Metrics and Tracer are optional
// telemetry.
type Deps struct {
	Ledger    *ledger.Store
	Dedup     *dedup.Engine
	Writer    *silver.Writer
	Collector *quality.Collector
	Metrics   *observability.IngestMetrics
	Tracer    trace.Tracer
	Logger    *slog.Logger

	// Run carries the run id and acquisition date stamped on records.
	Run record.RunInfo

	// DedupDir is the snapshot directory; empty disables dedup
	// persistence across runs.
	DedupDir string
}

// Result is the outcome of one run.
type Result struct {
	// RunID identifies the run.
	RunID string

	// PartitionDir is the silver partition the run wrote into.
	PartitionDir string

	// Written is the number of silver records flushed to disk.
	Written int64

	// UnitFailures is the number of work units that terminally failed.
	UnitFailures int64

	// FlushFailures is the number of writer flushes that failed.
	FlushFailures int64

	// Canceled reports that the run stopped on an external cancellation
	// rather than end-of-stream.
	Canceled bool

	// Snapshot is the finalized quality metrics of the run.
	Snapshot quality.Snapshot
}

// Missing-dependency errors from New.
var (
	errNilAdapter   = errors.New("pipeline: adapter is required")
	errNilLedger    = errors.New("pipeline: ledger is required")
	errNilDedup     = errors.New("pipeline: dedup engine is required")
	errNilWriter    = errors.New("pipeline: writer is required")
	errNilCollector = errors.New("pipeline: collector is required")
)

// Pipeline runs the five-stage ingestion workflow for one source. One
// value serves one run; it is not safe for concurrent use.
type Pipeline struct {
	cfg     *config.Config
	adapter sources.Adapter

	ledger    *ledger.Store
	deduper   *dedup.Engine
	writer    *silver.Writer
	collector *quality.Collector
	metrics   *observability.IngestMetrics
	tracer    trace.Tracer
	logger    *slog.Logger

	run      record.RunInfo
	dedupDir string

	desc    record.SourceDescriptor
	ptype   quality.PipelineType
	cleaner *textclean.Cleaner
	filters *filter.Engine
	builder *record.Builder

	force bool

	buffer      []record.Silver
	bufferBytes int

	consecFlushFails int
	unitFailures     int64
}

// New wires a pipeline for one run of the given adapter.
func New(cfg *config.Config, adapter sources.Adapter, deps Deps) (*Pipeline, error) {
	switch {
	case adapter == nil:
		return nil, errNilAdapter
	case deps.Ledger == nil:
		return nil, errNilLedger
	case deps.Dedup == nil:
		return nil, errNilDedup
	case deps.Writer == nil:
		return nil, errNilWriter
	case deps.Collector == nil:
		return nil, errNilCollector
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	desc := adapter.Descriptor()

	return &Pipeline{
		cfg:       cfg,
		adapter:   adapter,
		ledger:    deps.Ledger,
		deduper:   deps.Dedup,
		writer:    deps.Writer,
		collector: deps.Collector,
		metrics:   deps.Metrics,
		tracer:    deps.Tracer,
		logger:    logger,
		run:       deps.Run,
		dedupDir:  deps.DedupDir,
		desc:      desc,
		ptype:     adapter.PipelineType(),
		cleaner:   adapter.Cleaner(),
		filters:   filter.New(adapter.Filters()...),
		builder:   record.NewBuilder(desc, deps.Run),
	}, nil
}

// Run executes the workflow. Per-unit and per-record failures are
// counted and skipped; the returned error is non-nil only for fatal
// conditions. Metrics, the quality report, and the dedup snapshot are
// written on every exit path, cancellation and fatal errors included.
func (p *Pipeline) Run(ctx context.Context, force bool) (Result, error) {
	p.force = force
	p.logger = p.logger.With(
		slog.String("run_id", p.run.ID),
		slog.String("source", p.desc.Name),
		slog.String("pipeline", string(p.ptype)))

	if p.tracer != nil {
		var span trace.Span
		ctx, span = p.tracer.Start(ctx, "ingest.run", trace.WithAttributes(
			attribute.String("run_id", p.run.ID),
			attribute.String("source", p.desc.Name)))
		defer span.End()
	}

	slug := p.desc.Slug()
	if p.dedupDir != "" {
		if err := p.deduper.Load(p.dedupDir, slug); err != nil {
			return Result{RunID: p.run.ID}, fmt.Errorf("%w: dedup state: %w", ErrFatalIngestion, err)
		}
	}

	res, runErr := p.execute(ctx)

	if p.dedupDir != "" {
		if err := p.deduper.Save(p.dedupDir, slug); err != nil {
			p.logger.Warn("dedup snapshot save failed", slog.String("error", err.Error()))
		}
	}

	snap, finErr := p.collector.Finalize(p.cfg.Data.MetricsDir, p.cfg.Data.ReportsDir)
	if finErr != nil {
		p.logger.Warn("metrics finalization failed", slog.String("error", finErr.Error()))
	}

	res.RunID = p.run.ID
	res.PartitionDir = p.writer.Dir()
	res.Written = p.collector.Counter(quality.CounterRecordsWritten)
	res.UnitFailures = p.unitFailures
	res.FlushFailures = p.collector.Counter(quality.CounterFlushFailures)
	res.Snapshot = snap

	p.logger.Info("run finished",
		slog.Int64("written", res.Written),
		slog.Int64("unit_failures", res.UnitFailures),
		slog.Bool("canceled", res.Canceled),
		slog.String("health", string(snap.Health)))

	return res, runErr
}

// execute runs discovery, admission, and stream consumption, returning
// the partial result and any fatal error.
func (p *Pipeline) execute(ctx context.Context) (Result, error) {
	var res Result

	units, err := p.adapter.Discover(ctx)
	if err != nil {
		p.collector.Increment(quality.CounterFatalErrors)

		return res, fmt.Errorf("%w: discover: %w", ErrFatalIngestion, err)
	}

	admitted, err := p.admit(units)
	if err != nil {
		p.collector.Increment(quality.CounterFatalErrors)

		return res, err
	}

	p.logger.Info("discovery complete",
		slog.Int("units", len(units)),
		slog.Int("admitted", len(admitted)))

	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	items := sources.Stream(streamCtx, p.adapter, admitted, sources.StreamConfig{
		Workers:     p.cfg.Pipeline.Workers,
		Buffer:      p.cfg.Pipeline.ChannelBuffer,
		MaxAttempts: p.cfg.Pipeline.MaxAttempts,
	}, p.logger)

	var fatal error

	for item := range items {
		if fatal != nil {
			// Tear down the producers and drain so no worker stays
			// blocked on a send.
			cancel()

			continue
		}

		if item.Record {
			fatal = p.handleRecord(ctx, item)
		} else {
			p.handleOutcome(item)
		}
	}

	if fatal != nil {
		p.collector.Increment(quality.CounterFatalErrors)

		return res, fatal
	}

	res.Canceled = ctx.Err() != nil
	if res.Canceled {
		p.logger.Info("run canceled, draining buffered records")
	}

	if err := p.flush(ctx); err != nil {
		p.collector.Increment(quality.CounterFatalErrors)

		return res, err
	}

	return res, nil
}

// admit filters discovered units through the ledger. Container units
// are always acquired; their per-record admission happens as records
// arrive. Ledger write failures are fatal: without durable state the
// run cannot keep its idempotence contract.
func (p *Pipeline) admit(units []sources.WorkUnit) ([]sources.WorkUnit, error) {
	admitted := make([]sources.WorkUnit, 0, len(units))

	for _, unit := range units {
		p.collector.Increment(p.discoveredCounter())

		if err := p.ledger.Discover(p.desc.Name, unit.URL, stringifyMeta(unit.Metadata)); err != nil {
			return nil, fmt.Errorf("%w: ledger discover %s: %w", ErrFatalIngestion, unit.URL, err)
		}

		if !unit.Container {
			ok, err := p.ledger.ShouldFetch(p.desc.Name, unit.URL, p.force)
			if err != nil {
				return nil, fmt.Errorf("%w: ledger admission %s: %w", ErrFatalIngestion, unit.URL, err)
			}
			if !ok {
				p.collector.Increment(quality.CounterSkippedDiscoveryDedup)

				continue
			}
		}

		admitted = append(admitted, unit)
	}

	return admitted, nil
}

// handleRecord runs one raw record through clean, filter, dedup, build,
// and buffer. Only flush and ledger-admission failures are fatal.
func (p *Pipeline) handleRecord(ctx context.Context, item sources.Item) error {
	p.collector.Increment(quality.CounterRecordsExtracted)
	if p.metrics != nil {
		p.metrics.RecordProcessed(ctx, p.desc.Name)
	}

	fetched := item.Fetched
	if fetched.HTTPStatus > 0 {
		p.collector.Increment(quality.HTTPStatusCounter(fetched.HTTPStatus))
	}
	if fetched.Took > 0 {
		p.collector.Observe(quality.HistFetchDuration, float64(fetched.Took.Milliseconds()))
		if p.metrics != nil {
			p.metrics.ObserveFetch(ctx, p.desc.Name, fetched.Took, nil)
		}
	}

	url := item.Raw.SourceURL
	tracked := url != ""

	// Records emitted out of a container unit carry their own ledger
	// identity and get the admission check the unit skipped.
	if tracked && item.Unit.Container && url != item.Unit.URL {
		if err := p.ledger.Discover(p.desc.Name, url, stringifyMeta(item.Raw.Metadata)); err != nil {
			return fmt.Errorf("%w: ledger discover %s: %w", ErrFatalIngestion, url, err)
		}

		ok, err := p.ledger.ShouldFetch(p.desc.Name, url, p.force)
		if err != nil {
			return fmt.Errorf("%w: ledger admission %s: %w", ErrFatalIngestion, url, err)
		}
		if !ok {
			p.collector.Increment(quality.CounterSkippedDiscoveryDedup)

			return nil
		}
	}

	if tracked {
		if err := p.ledger.MarkFetched(p.desc.Name, url, fetched.HTTPStatus, fetched.Bytes); err != nil {
			p.logger.Warn("ledger fetch transition refused",
				slog.String("url", url), slog.String("error", err.Error()))
		}
	}

	start := time.Now()

	cleaned := p.cleaner.Clean(item.Raw.Text)
	rec := item.Raw
	rec.Text = cleaned

	verdict := p.filters.Apply(&rec)
	if !verdict.Passed {
		p.collector.Increment(quality.FilteredCounter(verdict.FailedBy))
		if p.metrics != nil {
			p.metrics.RecordFiltered(ctx, p.desc.Name, verdict.FailedBy)
		}
		// Rejected but tried: the entry goes to processed with no
		// silver identity, distinguishing rejection from skipping.
		if tracked {
			p.markProcessed(url, record.TextHash(cleaned), "")
		}
		p.logger.Debug("record filtered",
			slog.String("filter", verdict.FailedBy), slog.String("url", url))

		return nil
	}

	contentHash, dup := p.deduper.CheckExact(cleaned)
	if dup {
		p.recordDuplicate(ctx, url, observability.KindExact, quality.CounterExactDuplicates)

		return nil
	}

	silverRec, err := p.builder.Build(cleaned, rec.Metadata)
	if err != nil {
		p.logger.Warn("record build failed",
			slog.String("url", url), slog.String("error", err.Error()))
		if tracked {
			_ = p.ledger.MarkFailed(p.desc.Name, url, err.Error())
		}

		return nil
	}

	match, nearDup, err := p.deduper.CheckNear(silverRec.ID, cleaned)
	if err != nil {
		p.logger.Warn("near-duplicate check failed",
			slog.String("id", silverRec.ID), slog.String("error", err.Error()))
	}
	if nearDup {
		p.recordDuplicate(ctx, url, observability.KindNear, quality.CounterNearDuplicates)
		p.collector.RecordEvent("near_duplicate", map[string]any{
			"id":         silverRec.ID,
			"matched":    match.ID,
			"similarity": match.Similarity,
		})

		return nil
	}

	if err := p.deduper.Insert(silverRec.ID, cleaned); err != nil {
		p.logger.Warn("dedup insert failed",
			slog.String("id", silverRec.ID), slog.String("error", err.Error()))
	}

	p.collector.Observe(quality.HistExtractionDuration, float64(time.Since(start).Milliseconds()))
	p.collector.Observe(quality.HistTextLength, float64(utf8.RuneCountInString(cleaned)))
	p.collector.AddVocabulary(cleaned)

	if tracked {
		p.markProcessed(url, contentHash, silverRec.ID)
	}

	p.buffer = append(p.buffer, silverRec)
	p.bufferBytes += len(silverRec.Text) + len(silverRec.Metadata) + perRecordOverheadBytes

	if len(p.buffer) >= p.cfg.Pipeline.BatchSize || p.bufferBytes >= p.cfg.Pipeline.FlushSoftCapBytes {
		return p.flush(ctx)
	}

	return nil
}

// handleOutcome settles one unit's completion marker in the ledger and
// the run counters.
func (p *Pipeline) handleOutcome(item sources.Item) {
	unit := item.Unit

	switch {
	case item.Err == nil:
		p.countUnitSuccess()
		if unit.Container {
			// The container itself was consumed whole; its records
			// carried their own ledger identities.
			if err := p.ledger.MarkFetched(p.desc.Name, unit.URL, 0, 0); err == nil {
				p.markProcessed(unit.URL, "", "")
			}
		}
	case errors.Is(item.Err, sources.ErrBudgetExhausted):
		// Unattempted units keep their discovered state for next run.
		p.collector.RecordEvent("budget_exhausted", map[string]any{"unit": unit.URL})
		p.logger.Info("request budget exhausted", slog.String("unit", unit.URL))
	case errors.Is(item.Err, context.Canceled) || errors.Is(item.Err, context.DeadlineExceeded):
		_ = p.ledger.MarkFailed(p.desc.Name, unit.URL, "canceled")
	case errors.Is(item.Err, sources.ErrNotFound):
		p.countUnitAttempt()
		_ = p.ledger.MarkSkipped(p.desc.Name, unit.URL)
		p.logger.Debug("unit gone upstream", slog.String("unit", unit.URL))
	default:
		p.countUnitAttempt()
		p.countUnitFailure()
		p.unitFailures++
		_ = p.ledger.MarkFailed(p.desc.Name, unit.URL, item.Err.Error())
		p.logger.Warn("unit failed",
			slog.String("unit", unit.URL),
			slog.Int("attempts", item.Attempts),
			slog.String("error", item.Err.Error()))
	}
}

// flush writes the buffered batch. A failed flush drops its batch and
// is fatal only when maxConsecutiveFlushFails is reached.
func (p *Pipeline) flush(ctx context.Context) error {
	if len(p.buffer) == 0 {
		return nil
	}

	batch := len(p.buffer)
	start := time.Now()

	entry, err := p.writer.WriteBatch(p.buffer)
	if p.metrics != nil {
		p.metrics.ObserveFlush(ctx, p.desc.Name, time.Since(start), err)
	}

	p.buffer = p.buffer[:0]
	p.bufferBytes = 0

	if err != nil {
		p.consecFlushFails++
		p.collector.Increment(quality.CounterFlushFailures)
		p.logger.Error("batch flush failed",
			slog.Int("records", batch), slog.String("error", err.Error()))

		if p.consecFlushFails >= maxConsecutiveFlushFails {
			return fmt.Errorf("%w: %d consecutive flush failures: %w",
				ErrFatalIngestion, p.consecFlushFails, err)
		}

		return nil
	}

	p.consecFlushFails = 0
	p.collector.Add(quality.CounterRecordsWritten, int64(batch))
	if p.metrics != nil {
		p.metrics.AddWritten(ctx, p.desc.Name, int64(batch))
	}
	p.logger.Info("batch flushed",
		slog.String("part", entry.File), slog.Int("records", batch))

	return nil
}

// markProcessed records a processed transition, tolerating state-machine
// refusals with a warning so one odd entry never ends the run.
func (p *Pipeline) markProcessed(url, textHash, silverID string) {
	if err := p.ledger.MarkProcessed(p.desc.Name, url, textHash, silverID); err != nil {
		p.logger.Warn("ledger processed transition refused",
			slog.String("url", url), slog.String("error", err.Error()))
	}
}

// recordDuplicate settles one duplicate record in counters, telemetry,
// and the ledger.
func (p *Pipeline) recordDuplicate(ctx context.Context, url, kind, counter string) {
	p.collector.Increment(counter)
	if p.metrics != nil {
		p.metrics.RecordDuplicate(ctx, p.desc.Name, kind)
	}
	if url != "" {
		if err := p.ledger.MarkDuplicate(p.desc.Name, url); err != nil {
			p.logger.Warn("ledger duplicate transition refused",
				slog.String("url", url), slog.String("error", err.Error()))
		}
	}
	p.logger.Debug("duplicate record dropped",
		slog.String("kind", kind), slog.String("url", url))
}

// discoveredCounter names the discovery counter for this pipeline type.
func (p *Pipeline) discoveredCounter() string {
	if p.ptype == quality.PipelineFileProcessing {
		return quality.CounterFilesDiscovered
	}

	return quality.CounterURLsDiscovered
}

// countUnitSuccess counts a unit that completed cleanly.
func (p *Pipeline) countUnitSuccess() {
	switch p.ptype {
	case quality.PipelineWebScraping:
		p.collector.Increment(quality.CounterURLsFetched)
		p.collector.Increment(quality.CounterURLsProcessed)
	case quality.PipelineFileProcessing:
		p.collector.Increment(quality.CounterFilesProcessed)
	case quality.PipelineStreamProcessing:
		// Stream health is tracked by datasets_opened inside adapters.
	}
}

// countUnitAttempt counts a completed fetch attempt for the pipeline
// types that report them.
func (p *Pipeline) countUnitAttempt() {
	if p.ptype == quality.PipelineWebScraping {
		p.collector.Increment(quality.CounterURLsFetched)
	}
}

// countUnitFailure counts a terminally failed unit.
func (p *Pipeline) countUnitFailure() {
	if p.ptype == quality.PipelineWebScraping {
		p.collector.Increment(quality.CounterURLsFailed)
	}
}

// stringifyMeta flattens free-form unit metadata into the ledger's
// string map.
func stringifyMeta(meta map[string]any) map[string]string {
	if len(meta) == 0 {
		return nil
	}

	out := make(map[string]string, len(meta))
	for k, v := range meta {
		out[k] = fmt.Sprint(v)
	}

	return out
}
