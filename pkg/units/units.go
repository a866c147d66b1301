// Package units provides binary size unit multipliers (1024-based), used for
// buffer caps, flush thresholds, and download size accounting.
package units

// Binary size multipliers.
const (
	KiB = 1024
	MiB = 1024 * KiB
	GiB = 1024 * MiB
)
