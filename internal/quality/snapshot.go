package quality

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/somali-nlp/somali-dialect-classifier/pkg/alg/mapx"
	"github.com/somali-nlp/somali-dialect-classifier/pkg/alg/stats"
	"github.com/somali-nlp/somali-dialect-classifier/pkg/persist"
)

// Health is the overall run classification.
type Health string

// Health buckets.
const (
	HealthHealthy   Health = "healthy"
	HealthDegraded  Health = "degraded"
	HealthUnhealthy Health = "unhealthy"
)

// Rate names produced by the pipeline-type formulas.
const (
	RateHTTPSuccess             = "http_success"
	RateExtractionSuccess       = "extraction_success"
	RateFileExtractionSuccess   = "file_extraction_success"
	RateRecordParsingSuccess    = "record_parsing_success"
	RateStreamConnectionSuccess = "stream_connection_success"
	RateRecordRetrievalSuccess  = "record_retrieval_success"
	RateQualityFilterPass       = "quality_filter_pass_rate"
)

// Health thresholds on computed rates.
const (
	healthyRateFloor  = 0.95
	degradedRateFloor = 0.5
)

// percentileP99 is the 99th percentile position.
const percentileP99 = 0.99

// phase is the fixed pipeline phase this core implements; it names the
// metrics and report files.
const phase = "ingestion"

// dirPerm is the permission for metrics and report directories.
const dirPerm = 0o750

// filePerm is the permission for report files.
const filePerm = 0o600

// snapshotCodec serializes metrics snapshots as indented JSON.
var snapshotCodec = persist.NewJSONCodec()

// HistogramStats summarizes one histogram's observations.
type HistogramStats struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stddev"`
	Median float64 `json:"median"`
	P95    float64 `json:"p95"`
	P99    float64 `json:"p99"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// Snapshot is the finalized metrics document written to
// data/metrics/<run_id>_ingestion.json.
type Snapshot struct {
	RunID              string                    `json:"run_id"`
	Source             string                    `json:"source"`
	PipelineType       PipelineType              `json:"pipeline_type"`
	StartedAt          time.Time                 `json:"started_at"`
	FinishedAt         time.Time                 `json:"finished_at"`
	DurationSeconds    float64                   `json:"duration_seconds"`
	Health             Health                    `json:"health"`
	Counters           map[string]int64          `json:"counters"`
	Gauges             map[string]float64        `json:"gauges,omitempty"`
	Rates              map[string]float64        `json:"rates"`
	Histograms         map[string]HistogramStats `json:"histograms,omitempty"`
	VocabularyEstimate uint64                    `json:"vocabulary_estimate"`
	Events             []Event                   `json:"events,omitempty"`
}

// Snapshot computes the rates, histogram summaries, and health of the run
// as of now. The collector stays usable afterwards.
func (c *Collector) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	counters := mapx.Clone(c.counters)
	rates := computeRates(c.pipeline, counters)
	finished := c.now().UTC()

	histograms := make(map[string]HistogramStats, len(c.histograms))
	for name, values := range c.histograms {
		histograms[name] = summarize(values)
	}

	return Snapshot{
		RunID:              c.runID,
		Source:             c.source,
		PipelineType:       c.pipeline,
		StartedAt:          c.started,
		FinishedAt:         finished,
		DurationSeconds:    finished.Sub(c.started).Seconds(),
		Health:             computeHealth(c.pipeline, rates, counters),
		Counters:           counters,
		Gauges:             mapx.Clone(c.gauges),
		Rates:              rates,
		Histograms:         histograms,
		VocabularyEstimate: c.vocab.Count(),
		Events:             mapx.CloneSlice(c.events),
	}
}

// Finalize computes the snapshot, writes the JSON document into metricsDir
// and the markdown quality report into reportsDir, and returns the
// snapshot. Both artifacts are written even for failed runs.
func (c *Collector) Finalize(metricsDir, reportsDir string) (Snapshot, error) {
	snap := c.Snapshot()

	if err := os.MkdirAll(metricsDir, dirPerm); err != nil {
		return snap, fmt.Errorf("quality: create metrics dir: %w", err)
	}

	if err := persist.SaveState(metricsDir, snap.RunID+"_"+phase, snapshotCodec, &snap); err != nil {
		return snap, fmt.Errorf("quality: write metrics: %w", err)
	}

	if err := os.MkdirAll(reportsDir, dirPerm); err != nil {
		return snap, fmt.Errorf("quality: create reports dir: %w", err)
	}

	reportPath := filepath.Join(reportsDir, snap.RunID+"_"+phase+"_quality_report.md")
	if err := os.WriteFile(reportPath, renderReport(snap), filePerm); err != nil {
		return snap, fmt.Errorf("quality: write report: %w", err)
	}

	return snap, nil
}

// computeRates applies the pipeline type's success formulas.
func computeRates(pipeline PipelineType, counters map[string]int64) map[string]float64 {
	rates := make(map[string]float64)

	switch pipeline {
	case PipelineWebScraping:
		fetched := counters[CounterURLsFetched]
		rates[RateHTTPSuccess] = ratio(fetched-counters[CounterURLsFailed], fetched)
		rates[RateExtractionSuccess] = ratio(counters[CounterURLsProcessed], fetched)

	case PipelineFileProcessing:
		rates[RateFileExtractionSuccess] = ratio(counters[CounterFilesProcessed], counters[CounterFilesDiscovered])
		rates[RateRecordParsingSuccess] = ratio(counters[CounterRecordsExtracted], counters[CounterRecordsAttempted])

	case PipelineStreamProcessing:
		if counters[CounterDatasetsOpened] > 0 {
			rates[RateStreamConnectionSuccess] = 1
		} else {
			rates[RateStreamConnectionSuccess] = 0
		}

		rates[RateRecordRetrievalSuccess] = ratio(counters[CounterRecordsFetchedOK], counters[CounterRecordsRequested])
	}

	// Vacuously 1.0 when nothing was extracted and so nothing expected.
	extracted := counters[CounterRecordsExtracted]
	if extracted == 0 {
		rates[RateQualityFilterPass] = 1
	} else {
		rates[RateQualityFilterPass] = ratio(counters[CounterRecordsWritten], extracted)
	}

	for name, rate := range rates {
		rates[name] = stats.Clamp(rate, 0, 1)
	}

	return rates
}

// ratio divides num by den under the zero-denominator conventions: with a
// zero denominator, a positive numerator implies success (1.0) and anything
// else implies nothing happened (0.0).
func ratio(num, den int64) float64 {
	if den == 0 {
		if num > 0 {
			return 1
		}

		return 0
	}

	return float64(num) / float64(den)
}

// computeHealth classifies a run from its rates and error counters.
func computeHealth(pipeline PipelineType, rates map[string]float64, counters map[string]int64) Health {
	if pipeline == PipelineStreamProcessing && rates[RateStreamConnectionSuccess] == 0 {
		return HealthUnhealthy
	}

	if counters[CounterFatalErrors] > 0 {
		return HealthUnhealthy
	}

	worst := 1.0
	for _, rate := range rates {
		if rate < worst {
			worst = rate
		}
	}

	switch {
	case worst < degradedRateFloor:
		return HealthUnhealthy
	case worst < healthyRateFloor:
		return HealthDegraded
	}

	return HealthHealthy
}

// summarize computes the report statistics for one histogram.
func summarize(values []float64) HistogramStats {
	mean, stddev := stats.MeanStdDev(values)

	return HistogramStats{
		Count:  len(values),
		Mean:   mean,
		StdDev: stddev,
		Median: stats.Median(values),
		P95:    stats.Percentile(values, stats.PercentileP95),
		P99:    stats.Percentile(values, percentileP99),
		Min:    stats.Min(values),
		Max:    stats.Max(values),
	}
}
