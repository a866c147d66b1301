package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricRecordsProcessed = "sdc.records.processed.total"
	metricRecordsWritten   = "sdc.records.written.total"
	metricRecordsFiltered  = "sdc.records.filtered.total"
	metricRecordsDuplicate = "sdc.records.duplicate.total"
	metricFetchDuration    = "sdc.fetch.duration.seconds"
	metricFetchErrors      = "sdc.fetch.errors.total"
	metricFlushDuration    = "sdc.flush.duration.seconds"
	metricInflightFetches  = "sdc.fetches.inflight"

	attrSourceKey = "source"
	attrFilterKey = "filter"
	attrKindKey   = "kind"
	attrStatusKey = "status"

	statusOK    = "ok"
	statusError = "error"
)

// Duplicate kind label values for [IngestMetrics.RecordDuplicate].
const (
	// KindExact marks hash-identical duplicates.
	KindExact = "exact"

	// KindNear marks MinHash near-duplicates.
	KindNear = "near"
)

// durationBucketBoundaries covers 10ms to 600s: cached pages and API calls at
// the low end, rate-limited page fetches in the middle, corpus bundle
// downloads and large parquet flushes at the top.
var durationBucketBoundaries = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600}

// IngestMetrics holds the OTel instruments for ingestion throughput and latency.
type IngestMetrics struct {
	recordsProcessed metric.Int64Counter
	recordsWritten   metric.Int64Counter
	recordsFiltered  metric.Int64Counter
	recordsDuplicate metric.Int64Counter
	fetchDuration    metric.Float64Histogram
	fetchErrors      metric.Int64Counter
	flushDuration    metric.Float64Histogram
	inflightFetches  metric.Int64UpDownCounter
}

// NewIngestMetrics creates ingestion metric instruments from the given meter.
func NewIngestMetrics(mt metric.Meter) (*IngestMetrics, error) {
	b := newMetricBuilder(mt)

	im := &IngestMetrics{
		recordsProcessed: b.counter(metricRecordsProcessed, "Records accepted into the silver layer", "{record}"),
		recordsWritten:   b.counter(metricRecordsWritten, "Records flushed to parquet", "{record}"),
		recordsFiltered:  b.counter(metricRecordsFiltered, "Records rejected by quality filters", "{record}"),
		recordsDuplicate: b.counter(metricRecordsDuplicate, "Records rejected as duplicates", "{record}"),
		fetchDuration:    b.histogram(metricFetchDuration, "Source fetch duration in seconds", "s", durationBucketBoundaries...),
		fetchErrors:      b.counter(metricFetchErrors, "Failed source fetches", "{error}"),
		flushDuration:    b.histogram(metricFlushDuration, "Parquet batch flush duration in seconds", "s", durationBucketBoundaries...),
		inflightFetches:  b.upDownCounter(metricInflightFetches, "Number of in-flight fetches", "{fetch}"),
	}

	if b.err != nil {
		return nil, b.err
	}

	return im, nil
}

// RecordProcessed counts a record from source that passed filtering and dedup.
func (im *IngestMetrics) RecordProcessed(ctx context.Context, source string) {
	im.recordsProcessed.Add(ctx, 1, metric.WithAttributes(attribute.String(attrSourceKey, source)))
}

// AddWritten counts n records flushed to parquet for source.
func (im *IngestMetrics) AddWritten(ctx context.Context, source string, n int64) {
	im.recordsWritten.Add(ctx, n, metric.WithAttributes(attribute.String(attrSourceKey, source)))
}

// RecordFiltered counts a record rejected by the named filter.
func (im *IngestMetrics) RecordFiltered(ctx context.Context, source, filter string) {
	im.recordsFiltered.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrSourceKey, source),
		attribute.String(attrFilterKey, filter),
	))
}

// RecordDuplicate counts a record rejected as a duplicate of the given kind
// ([KindExact] or [KindNear]).
func (im *IngestMetrics) RecordDuplicate(ctx context.Context, source, kind string) {
	im.recordsDuplicate.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrSourceKey, source),
		attribute.String(attrKindKey, kind),
	))
}

// ObserveFetch records a completed fetch with its duration and outcome.
func (im *IngestMetrics) ObserveFetch(ctx context.Context, source string, duration time.Duration, err error) {
	status := statusOK
	if err != nil {
		status = statusError

		im.fetchErrors.Add(ctx, 1, metric.WithAttributes(attribute.String(attrSourceKey, source)))
	}

	im.fetchDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String(attrSourceKey, source),
		attribute.String(attrStatusKey, status),
	))
}

// ObserveFlush records a completed parquet flush with its duration and outcome.
func (im *IngestMetrics) ObserveFlush(ctx context.Context, source string, duration time.Duration, err error) {
	status := statusOK
	if err != nil {
		status = statusError
	}

	im.flushDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String(attrSourceKey, source),
		attribute.String(attrStatusKey, status),
	))
}

// TrackFetch increments the in-flight fetch gauge and returns a function to decrement it.
func (im *IngestMetrics) TrackFetch(ctx context.Context, source string) func() {
	attrs := metric.WithAttributes(attribute.String(attrSourceKey, source))
	im.inflightFetches.Add(ctx, 1, attrs)

	return func() {
		im.inflightFetches.Add(ctx, -1, attrs)
	}
}
