package quality

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testRunID  = "20260115_093000_bbc_somali_deadbeef"
	testSource = "BBC-Somali"
)

func TestCollector_Counters(t *testing.T) {
	t.Parallel()

	c := New(testRunID, testSource, PipelineWebScraping)

	c.Increment(CounterRecordsExtracted)
	c.Increment(CounterRecordsExtracted)
	c.Add(CounterRecordsWritten, 5)

	assert.Equal(t, int64(2), c.Counter(CounterRecordsExtracted))
	assert.Equal(t, int64(5), c.Counter(CounterRecordsWritten))
	assert.Zero(t, c.Counter(CounterURLsFailed), "untouched counters read zero")
}

func TestCollector_ObserveAndGauge(t *testing.T) {
	t.Parallel()

	c := New(testRunID, testSource, PipelineWebScraping)

	c.Observe(HistFetchDuration, 120)
	c.Observe(HistFetchDuration, 80)
	c.SetGauge("inflight", 3)

	snap := c.Snapshot()

	require.Contains(t, snap.Histograms, HistFetchDuration)
	assert.Equal(t, 2, snap.Histograms[HistFetchDuration].Count)
	assert.InDelta(t, 100, snap.Histograms[HistFetchDuration].Mean, 1e-9)
	assert.InDelta(t, 20, snap.Histograms[HistFetchDuration].StdDev, 1e-9)
	assert.InDelta(t, 3, snap.Gauges["inflight"], 1e-9)
}

func TestCollector_RecordEvent(t *testing.T) {
	t.Parallel()

	c := New(testRunID, testSource, PipelineFileProcessing)

	c.RecordEvent("dump_downloaded", map[string]any{"bytes": 1024})
	c.RecordEvent("canceled", nil)

	snap := c.Snapshot()

	require.Len(t, snap.Events, 2)
	assert.Equal(t, "dump_downloaded", snap.Events[0].Name)
	assert.Equal(t, 1024, snap.Events[0].Fields["bytes"])
	assert.False(t, snap.Events[0].At.IsZero())
}

func TestCollector_AddVocabulary(t *testing.T) {
	t.Parallel()

	c := New(testRunID, testSource, PipelineFileProcessing)

	c.AddVocabulary("Soomaaliya waa waddan")
	c.AddVocabulary("soomaaliya WAA dal")

	snap := c.Snapshot()

	// Case-folded distinct tokens: soomaaliya, waa, waddan, dal.
	assert.Equal(t, uint64(4), snap.VocabularyEstimate)
}

func TestCollector_ConcurrentUse(t *testing.T) {
	t.Parallel()

	const (
		goroutines = 8
		perWorker  = 100
	)

	c := New(testRunID, testSource, PipelineWebScraping)

	done := make(chan struct{})

	for range goroutines {
		go func() {
			defer func() { done <- struct{}{} }()

			for range perWorker {
				c.Increment(CounterURLsFetched)
				c.Observe(HistFetchDuration, 10)
			}
		}()
	}

	for range goroutines {
		<-done
	}

	assert.Equal(t, int64(goroutines*perWorker), c.Counter(CounterURLsFetched))
}

func TestFilteredCounter(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "filtered_by_langid_filter", FilteredCounter("langid_filter"))
}

func TestHTTPStatusCounter(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "http_status_200", HTTPStatusCounter(200))
	assert.Equal(t, "http_status_404", HTTPStatusCounter(404))
}
