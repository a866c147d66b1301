package pipeline

import (
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// runIDSuffixLen is the random hex tail distinguishing runs started in
// the same second.
const runIDSuffixLen = 8

// NewRunID builds a run identifier of the form
// YYYYMMDD_HHMMSS_<source-slug>_<8-hex>. The timestamp is UTC; the tail
// comes from a random UUID.
func NewRunID(slug string, now time.Time) string {
	id := uuid.New()

	return now.UTC().Format("20060102_150405") + "_" + slug + "_" + hex.EncodeToString(id[:])[:runIDSuffixLen]
}
