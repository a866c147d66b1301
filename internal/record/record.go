// Package record defines the canonical record types flowing through the
// ingestion pipeline: the raw payload produced by source adapters and the
// silver record persisted to the columnar store, plus the deterministic
// identity (hash, id, token count) computations shared by dedup, ledger,
// and writer.
package record

import (
	"strings"
	"time"
	"unicode"
)

// SchemaVersion is the frozen silver schema version. Adding a field requires
// a new major version; the writer refuses records stamped with any other.
const SchemaVersion = "2.1"

// secondsPerDay converts Unix seconds to days since epoch for the
// date_accessed column.
const secondsPerDay = 86400

// SourceType classifies where a source's content comes from.
type SourceType string

// Source types accepted by the silver schema.
const (
	TypeEncyclopedia SourceType = "encyclopedia"
	TypeNews         SourceType = "news"
	TypeWeb          SourceType = "web"
	TypeCorpus       SourceType = "corpus"
	TypeSocial       SourceType = "social"
)

// Register classifies the linguistic register of a source's content.
type Register string

// Registers accepted by the silver schema.
const (
	RegisterFormal     Register = "formal"
	RegisterInformal   Register = "informal"
	RegisterColloquial Register = "colloquial"
)

// Raw is a unit of acquired content before cleaning and filtering.
// SourceURL is empty for sources that do not address units by URL.
type Raw struct {
	Text      string
	SourceURL string
	Metadata  map[string]any
}

// SourceDescriptor identifies a source and the schema constants every record
// from it carries.
type SourceDescriptor struct {
	// Name is the canonical source name (e.g. "BBC-Somali").
	Name string

	// Type is the source classification.
	Type SourceType

	// License is the SPDX-like license tag for the source's content.
	License string

	// Register is the linguistic register of the source's content.
	Register Register

	// Language is the ISO 639-1 code of the target language.
	Language string

	// Domain is the content domain tag (e.g. "news", "encyclopedic").
	Domain string
}

// Slug returns the descriptor name in filesystem form: lower-cased with
// runs of non-alphanumerics collapsed to single underscores
// ("BBC-Somali" -> "bbc_somali"). Used in run ids and partition file names.
func (d SourceDescriptor) Slug() string {
	var b strings.Builder

	pendingSep := false

	for _, r := range strings.ToLower(d.Name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}

			pendingSep = false

			b.WriteRune(r)

			continue
		}

		pendingSep = true
	}

	return b.String()
}

// RunInfo carries the run-scoped values stamped onto every built record.
type RunInfo struct {
	// ID is the run identifier (YYYYMMDD_HHMMSS_<source-slug>_<8-hex>).
	ID string

	// DateAccessed is the UTC acquisition date recorded on records and
	// used as the partition date.
	DateAccessed time.Time
}

// Silver is the persisted record. Field order is normative: the columnar
// schema serializes these twelve fields in exactly this order.
type Silver struct {
	// ID is the deterministic record identity: SOURCE_PREFIX_<16-hex>.
	ID string

	// Text is the cleaned, NFC-normalized content.
	Text string

	// Source is the canonical source name.
	Source string

	// SourceType is one of the SourceType constants.
	SourceType string

	// DateAccessed is the acquisition date in days since the Unix epoch.
	DateAccessed int32

	// Language is the ISO 639-1 language code.
	Language string

	// License is the SPDX-like license tag.
	License string

	// TokenCount is the number of whitespace-delimited tokens in Text.
	TokenCount int32

	// Metadata is a JSON-serialized map (title, url, detected_lang,
	// lang_confidence, topic markers).
	Metadata string

	// Domain is the content domain tag.
	Domain string

	// Embedding is reserved and always empty in this core.
	Embedding string

	// Register is one of the Register constants.
	Register string

	// Version is the schema version the record was built against. It is
	// not a persisted column; the writer refuses mismatched versions.
	Version string
}

// DaysSinceEpoch converts a calendar instant to the date_accessed column
// value: whole UTC days since 1970-01-01.
func DaysSinceEpoch(t time.Time) int32 {
	return int32(t.UTC().Unix() / secondsPerDay)
}

// DateFromDays is the inverse of DaysSinceEpoch, returning midnight UTC of
// the encoded day. Used when rendering partition paths and manifests.
func DateFromDays(days int32) time.Time {
	return time.Unix(int64(days)*secondsPerDay, 0).UTC()
}
