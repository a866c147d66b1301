package hll_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/somali-nlp/somali-dialect-classifier/pkg/alg/hll"
)

const testPrecision = uint8(14)

func TestNewPrecisionBounds(t *testing.T) {
	t.Parallel()

	for _, p := range []uint8{4, 10, 18} {
		s, err := hll.New(p)
		require.NoError(t, err, "precision %d", p)
		require.NotNil(t, s)
	}

	for _, p := range []uint8{0, 3, 19, 255} {
		_, err := hll.New(p)
		require.ErrorIs(t, err, hll.ErrPrecisionOutOfRange, "precision %d", p)
	}
}

func TestEmptySketchCountsZero(t *testing.T) {
	t.Parallel()

	s, err := hll.New(testPrecision)
	require.NoError(t, err)

	assert.Zero(t, s.Count())
}

func TestSmallVocabularyIsExact(t *testing.T) {
	t.Parallel()

	s, err := hll.New(testPrecision)
	require.NoError(t, err)

	tokens := []string{"waxaa", "la", "sheegay", "in", "ay", "dhacday"}
	for _, tok := range tokens {
		s.Add([]byte(tok))
	}

	assert.Equal(t, uint64(len(tokens)), s.Count())
}

func TestDuplicateTokensDoNotInflateCount(t *testing.T) {
	t.Parallel()

	s, err := hll.New(testPrecision)
	require.NoError(t, err)

	for range 1000 {
		s.Add([]byte("soomaali"))
	}

	assert.Equal(t, uint64(1), s.Count())
}

func TestEstimateAccuracy(t *testing.T) {
	t.Parallel()

	for _, cardinality := range []int{100, 1000, 50_000} {
		s, err := hll.New(testPrecision)
		require.NoError(t, err)

		for i := range cardinality {
			s.Add(fmt.Appendf(nil, "token-%d", i))
		}

		got := float64(s.Count())
		want := float64(cardinality)

		// Precision 14 gives ~0.8% standard error; allow 3%.
		assert.InEpsilon(t, want, got, 0.03, "cardinality %d", cardinality)
	}
}

func TestConcurrentAdd(t *testing.T) {
	t.Parallel()

	s, err := hll.New(testPrecision)
	require.NoError(t, err)

	done := make(chan struct{})

	for w := range 4 {
		go func(worker int) {
			defer func() { done <- struct{}{} }()

			for i := range 1000 {
				s.Add(fmt.Appendf(nil, "worker-%d-token-%d", worker, i))
			}
		}(w)
	}

	for range 4 {
		<-done
	}

	assert.InEpsilon(t, 4000.0, float64(s.Count()), 0.05)
}
