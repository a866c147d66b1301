// Package mapx provides generic map and slice operations: clone and
// sorted-key extraction.
package mapx

import (
	"cmp"
	stdmaps "maps"
	"slices"
)

// Clone returns a shallow copy of m.
// Returns nil for a nil map.
func Clone[K comparable, V any](m map[K]V) map[K]V {
	if m == nil {
		return nil
	}

	clone := make(map[K]V, len(m))
	stdmaps.Copy(clone, m)

	return clone
}

// SortedKeys returns the keys of m in sorted order.
// Returns nil for a nil map.
func SortedKeys[K cmp.Ordered, V any](m map[K]V) []K {
	if m == nil {
		return nil
	}

	keys := make([]K, 0, len(m))

	for k := range m {
		keys = append(keys, k)
	}

	slices.Sort(keys)

	return keys
}
