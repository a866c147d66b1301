package stats_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/somali-nlp/somali-dialect-classifier/pkg/alg/stats"
)

const floatTolerance = 1e-9

// --- Mean tests ---.

func TestMean(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 3.0, stats.Mean([]float64{1, 2, 3, 4, 5}), floatTolerance)
	assert.InDelta(t, 2.5, stats.Mean([]float64{2.5}), floatTolerance)
	assert.Zero(t, stats.Mean(nil))
}

func TestMeanStdDev(t *testing.T) {
	t.Parallel()

	mean, stddev := stats.MeanStdDev([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	assert.InDelta(t, 5.0, mean, floatTolerance)
	assert.InDelta(t, 2.0, stddev, floatTolerance)
}

func TestMeanStdDevEmpty(t *testing.T) {
	t.Parallel()

	mean, stddev := stats.MeanStdDev(nil)
	assert.Zero(t, mean)
	assert.Zero(t, stddev)
}

// --- Percentile tests ---.

func TestPercentile(t *testing.T) {
	t.Parallel()

	values := []float64{15, 20, 35, 40, 50}

	assert.InDelta(t, 15.0, stats.Percentile(values, 0), floatTolerance)
	assert.InDelta(t, 50.0, stats.Percentile(values, 1), floatTolerance)
	assert.InDelta(t, 35.0, stats.Percentile(values, stats.PercentileMedian), floatTolerance)
}

func TestPercentileInterpolates(t *testing.T) {
	t.Parallel()

	// P95 of [1..100] interpolates between the 95th and 96th sorted values.
	values := make([]float64, 100)
	for i := range values {
		values[i] = float64(i + 1)
	}

	assert.InDelta(t, 95.05, stats.Percentile(values, stats.PercentileP95), floatTolerance)
}

func TestPercentileDoesNotMutateInput(t *testing.T) {
	t.Parallel()

	values := []float64{9, 1, 5}
	stats.Percentile(values, stats.PercentileMedian)

	require.Equal(t, []float64{9, 1, 5}, values)
}

func TestPercentileEmpty(t *testing.T) {
	t.Parallel()

	assert.Zero(t, stats.Percentile(nil, stats.PercentileP95))
}

func TestMedian(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 3.0, stats.Median([]float64{5, 3, 1}), floatTolerance)
	assert.InDelta(t, 2.5, stats.Median([]float64{1, 2, 3, 4}), floatTolerance)
}

// --- Generic helper tests ---.

func TestClamp(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 5, stats.Clamp(10, 0, 5))
	assert.Equal(t, 0, stats.Clamp(-3, 0, 5))
	assert.Equal(t, 3, stats.Clamp(3, 0, 5))
	assert.InDelta(t, 0.85, stats.Clamp(0.85, 0.0, 1.0), floatTolerance)
}

func TestMin(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 12, stats.Min([]int{40, 12, 33}))
	assert.Zero(t, stats.Min[int](nil))
}

func TestMax(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 40, stats.Max([]int{40, 12, 33}))
	assert.Zero(t, stats.Max[int](nil))
}
