// Package safeconv provides safe integer type conversion functions that panic on overflow.
package safeconv

import "math"

// MaxInt is the maximum value for int type (platform-dependent).
const MaxInt = int(^uint(0) >> 1)

// MustIntToInt32 converts int to int32, panics on bounds violation.
// Use only when bounds violations are logically impossible, such as
// token counts that are capped well below 2^31.
func MustIntToInt32(v int) int32 {
	if v < math.MinInt32 || v > math.MaxInt32 {
		panic("safeconv: int to int32 out of bounds")
	}

	return int32(v)
}

// MustInt64ToInt converts int64 to int, panics on overflow.
// Use only when overflow is logically impossible.
func MustInt64ToInt(v int64) int {
	if v > int64(MaxInt) || v < -int64(MaxInt)-1 {
		panic("safeconv: int64 to int overflow")
	}

	return int(v)
}

// MustUintToInt converts uint to int, panics on overflow.
// Use only when overflow is logically impossible.
func MustUintToInt(v uint) int {
	if v > uint(MaxInt) {
		panic("safeconv: uint to int overflow")
	}

	return int(v)
}

// MustIntToUint converts int to uint, panics if negative.
// Use only when negative values are logically impossible.
func MustIntToUint(v int) uint {
	if v < 0 {
		panic("safeconv: negative int to uint conversion")
	}

	return uint(v)
}
