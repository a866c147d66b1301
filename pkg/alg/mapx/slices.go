package mapx

// CloneSlice returns a shallow copy of s.
// Returns nil for a nil slice.
func CloneSlice[T any](s []T) []T {
	if s == nil {
		return nil
	}

	clone := make([]T, len(s))
	copy(clone, s)

	return clone
}
