package quality

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func webSnapshot() Snapshot {
	c := New(testRunID, testSource, PipelineWebScraping)
	c.Add(CounterURLsDiscovered, 12)
	c.Add(CounterURLsFetched, 10)
	c.Add(CounterURLsFailed, 1)
	c.Add(CounterURLsProcessed, 9)
	c.Add(CounterRecordsExtracted, 9)
	c.Add(CounterRecordsWritten, 7)
	c.Add(CounterExactDuplicates, 1)
	c.Add(CounterNearDuplicates, 1)
	c.Add(HTTPStatusCounter(200), 9)
	c.Add(HTTPStatusCounter(404), 1)

	for _, ms := range []float64{80, 120, 90, 150, 60} {
		c.Observe(HistFetchDuration, ms)
	}

	for _, runes := range []float64{240, 800, 510} {
		c.Observe(HistTextLength, runes)
	}

	c.AddVocabulary("muqdisho waa caasimadda soomaaliya")

	return c.Snapshot()
}

func TestRenderReport_Sections(t *testing.T) {
	t.Parallel()

	report := string(renderReport(webSnapshot()))

	for _, want := range []string{
		"# Quality Report: " + testRunID,
		"## Executive Summary",
		"## Processing Statistics",
		"## Performance",
		"## HTTP Status Distribution",
		"## Deduplication",
		"## Text Length Distribution",
		"## Recommendations",
	} {
		assert.Contains(t, report, want)
	}
}

func TestRenderReport_RatesAndCounters(t *testing.T) {
	t.Parallel()

	report := string(renderReport(webSnapshot()))

	assert.Contains(t, report, RateHTTPSuccess)
	assert.Contains(t, report, "90.0%", "http success of 9/10 renders as a percentage")
	assert.Contains(t, report, CounterURLsDiscovered)
	assert.NotContains(t, report, "http_status_200",
		"status counters render in their own section, not among plain counters")
	assert.Contains(t, report, "| 404 |")
}

func TestRenderReport_OmitsEmptySections(t *testing.T) {
	t.Parallel()

	c := New(testRunID, testSource, PipelineFileProcessing)
	c.Add(CounterFilesDiscovered, 1)
	c.Add(CounterFilesProcessed, 1)

	report := string(renderReport(c.Snapshot()))

	assert.NotContains(t, report, "## HTTP Status Distribution")
	assert.NotContains(t, report, "## Performance")
	assert.NotContains(t, report, "## Text Length Distribution")
	assert.Contains(t, report, "## Deduplication", "dedup counts always render")
}

// --- Recommendations ---.

func TestRecommendations_CleanRun(t *testing.T) {
	t.Parallel()

	c := New(testRunID, testSource, PipelineFileProcessing)
	c.Add(CounterFilesDiscovered, 2)
	c.Add(CounterFilesProcessed, 2)
	c.Add(CounterRecordsExtracted, 100)
	c.Add(CounterRecordsWritten, 97)

	recs := recommendations(c.Snapshot())

	require.Len(t, recs, 1)
	assert.Equal(t, "No anomalies detected.", recs[0])
}

func TestRecommendations_SlowFetches(t *testing.T) {
	t.Parallel()

	c := New(testRunID, testSource, PipelineWebScraping)
	c.Add(CounterURLsFetched, 3)
	c.Add(CounterURLsProcessed, 3)
	c.Add(CounterRecordsExtracted, 3)
	c.Add(CounterRecordsWritten, 3)

	for range 3 {
		c.Observe(HistFetchDuration, 20_000)
	}

	assert.True(t, containsSubstring(recommendations(c.Snapshot()), "connection pooling"))
}

func TestRecommendations_LowFilterPassRate(t *testing.T) {
	t.Parallel()

	c := New(testRunID, testSource, PipelineFileProcessing)
	c.Add(CounterFilesDiscovered, 1)
	c.Add(CounterFilesProcessed, 1)
	c.Add(CounterRecordsExtracted, 100)
	c.Add(CounterRecordsWritten, 10)

	assert.True(t, containsSubstring(recommendations(c.Snapshot()), "review filter configurations"))
}

func TestRecommendations_FailedFetches(t *testing.T) {
	t.Parallel()

	c := New(testRunID, testSource, PipelineWebScraping)
	c.Add(CounterURLsFetched, 10)
	c.Add(CounterURLsFailed, 4)
	c.Add(CounterURLsProcessed, 6)
	c.Add(CounterRecordsExtracted, 6)
	c.Add(CounterRecordsWritten, 6)

	assert.True(t, containsSubstring(recommendations(c.Snapshot()), "retry budget"))
}

func TestRecommendations_StreamNeverConnected(t *testing.T) {
	t.Parallel()

	c := New(testRunID, testSource, PipelineStreamProcessing)

	assert.True(t, containsSubstring(recommendations(c.Snapshot()), "stream connection never opened"))
}

func TestRecommendations_DuplicateHeavyRun(t *testing.T) {
	t.Parallel()

	c := New(testRunID, testSource, PipelineWebScraping)
	c.Add(CounterURLsFetched, 10)
	c.Add(CounterURLsProcessed, 10)
	c.Add(CounterRecordsExtracted, 10)
	c.Add(CounterRecordsWritten, 2)
	c.Add(CounterExactDuplicates, 6)
	c.Add(CounterNearDuplicates, 2)

	assert.True(t, containsSubstring(recommendations(c.Snapshot()), "narrowing discovery"))
}

func TestRecommendations_FlushFailures(t *testing.T) {
	t.Parallel()

	c := New(testRunID, testSource, PipelineWebScraping)
	c.Add(CounterURLsFetched, 1)
	c.Add(CounterURLsProcessed, 1)
	c.Add(CounterRecordsExtracted, 1)
	c.Add(CounterRecordsWritten, 1)
	c.Add(CounterFlushFailures, 2)

	assert.True(t, containsSubstring(recommendations(c.Snapshot()), "disk space"))
}

func containsSubstring(recs []string, substr string) bool {
	for _, rec := range recs {
		if strings.Contains(strings.ToLower(rec), strings.ToLower(substr)) {
			return true
		}
	}

	return false
}
