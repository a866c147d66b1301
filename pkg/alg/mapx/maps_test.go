package mapx_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/somali-nlp/somali-dialect-classifier/pkg/alg/mapx"
)

func TestClone(t *testing.T) {
	t.Parallel()

	src := map[string]uint64{"too_short": 3, "non_somali": 7}
	clone := mapx.Clone(src)

	require.Equal(t, src, clone)

	clone["too_short"] = 99
	assert.Equal(t, uint64(3), src["too_short"], "clone must be independent of source")
}

func TestCloneNil(t *testing.T) {
	t.Parallel()

	assert.Nil(t, mapx.Clone[string, int](nil))
}

func TestSortedKeys(t *testing.T) {
	t.Parallel()

	m := map[string]int{"wikipedia": 1, "bbc": 2, "tiktok": 3}

	assert.Equal(t, []string{"bbc", "tiktok", "wikipedia"}, mapx.SortedKeys(m))
	assert.Nil(t, mapx.SortedKeys[string, int](nil))
}
