package silver

import (
	"fmt"
	"regexp"
	"unicode"
	"unicode/utf8"

	json "github.com/goccy/go-json"
	"golang.org/x/text/unicode/norm"

	"github.com/somali-nlp/somali-dialect-classifier/internal/record"
	"github.com/somali-nlp/somali-dialect-classifier/pkg/textutil"
)

// idPattern is the shape of a record id: source prefix, underscore,
// first 16 hex digits of the text hash.
var idPattern = regexp.MustCompile(`^[A-Z0-9]{1,4}_[0-9a-f]{16}$`)

// sourceTypes are the source_type values the schema accepts.
var sourceTypes = map[string]struct{}{
	string(record.TypeEncyclopedia): {},
	string(record.TypeNews):         {},
	string(record.TypeWeb):          {},
	string(record.TypeCorpus):       {},
	string(record.TypeSocial):       {},
}

// registers are the register values the schema accepts.
var registers = map[string]struct{}{
	string(record.RegisterFormal):     {},
	string(record.RegisterInformal):   {},
	string(record.RegisterColloquial): {},
}

// SchemaViolationError reports a record that does not conform to the frozen
// silver schema. The whole batch containing the record is refused.
type SchemaViolationError struct {
	// Field is the offending column name.
	Field string

	// RecordID is the id of the offending record, possibly malformed.
	RecordID string

	// Reason says what about the value is wrong.
	Reason string
}

// Error implements error.
func (e *SchemaViolationError) Error() string {
	return fmt.Sprintf("silver: schema violation in field %q (record %q): %s", e.Field, e.RecordID, e.Reason)
}

// violation builds the rejection error for one record field.
func violation(rec record.Silver, field, reason string) error {
	return &SchemaViolationError{Field: field, RecordID: rec.ID, Reason: reason}
}

// validateRecord checks one record against schema 2.1. The first violation
// found is returned; order follows the column order.
func validateRecord(rec record.Silver) error {
	if rec.Version != record.SchemaVersion {
		return violation(rec, "version",
			fmt.Sprintf("record built against %q, writer accepts only %q", rec.Version, record.SchemaVersion))
	}

	if !idPattern.MatchString(rec.ID) {
		return violation(rec, "id", "must be SOURCE_PREFIX_<16 hex digits>")
	}

	if rec.Text == "" {
		return violation(rec, "text", "must be non-empty")
	}

	if !norm.NFC.IsNormalString(rec.Text) {
		return violation(rec, "text", "must be NFC-normalized")
	}

	if trimmed(rec.Text) {
		return violation(rec, "text", "must have no leading or trailing whitespace")
	}

	if rec.Source == "" {
		return violation(rec, "source", "must be non-empty")
	}

	if _, ok := sourceTypes[rec.SourceType]; !ok {
		return violation(rec, "source_type", fmt.Sprintf("unknown value %q", rec.SourceType))
	}

	if rec.DateAccessed <= 0 {
		return violation(rec, "date_accessed", "must be a positive day count")
	}

	if rec.Language == "" {
		return violation(rec, "language", "must be non-empty")
	}

	if rec.License == "" {
		return violation(rec, "license", "must be non-empty")
	}

	if rec.TokenCount < 0 {
		return violation(rec, "token_count", "must be non-negative")
	}

	if counted := textutil.TokenCount(rec.Text); int(rec.TokenCount) != counted {
		return violation(rec, "token_count",
			fmt.Sprintf("says %d, text has %d whitespace tokens", rec.TokenCount, counted))
	}

	var meta map[string]any
	if err := json.Unmarshal([]byte(rec.Metadata), &meta); err != nil || meta == nil {
		return violation(rec, "metadata", "must be a serialized JSON object")
	}

	if rec.Domain == "" {
		return violation(rec, "domain", "must be non-empty")
	}

	if rec.Embedding != "" {
		return violation(rec, "embedding", "is reserved and must stay empty")
	}

	if _, ok := registers[rec.Register]; !ok {
		return violation(rec, "register", fmt.Sprintf("unknown value %q", rec.Register))
	}

	return nil
}

// trimmed reports whether s starts or ends with whitespace. Callers check
// for the empty string first.
func trimmed(s string) bool {
	r, _ := utf8.DecodeRuneInString(s)
	if unicode.IsSpace(r) {
		return true
	}

	r, _ = utf8.DecodeLastRuneInString(s)

	return unicode.IsSpace(r)
}

// row is the columnar projection of a silver record. Field order is the
// frozen column order of schema 2.1; date_accessed carries the DATE logical
// type as days since the Unix epoch.
type row struct {
	ID           string `parquet:"id"`
	Text         string `parquet:"text"`
	Source       string `parquet:"source"`
	SourceType   string `parquet:"source_type"`
	DateAccessed int32  `parquet:"date_accessed,date"`
	Language     string `parquet:"language"`
	License      string `parquet:"license"`
	TokenCount   int32  `parquet:"token_count"`
	Metadata     string `parquet:"metadata"`
	Domain       string `parquet:"domain"`
	Embedding    string `parquet:"embedding"`
	Register     string `parquet:"register"`
}

// newRow projects a validated record onto the column schema.
func newRow(rec record.Silver) row {
	return row{
		ID:           rec.ID,
		Text:         rec.Text,
		Source:       rec.Source,
		SourceType:   rec.SourceType,
		DateAccessed: rec.DateAccessed,
		Language:     rec.Language,
		License:      rec.License,
		TokenCount:   rec.TokenCount,
		Metadata:     rec.Metadata,
		Domain:       rec.Domain,
		Embedding:    rec.Embedding,
		Register:     rec.Register,
	}
}

// record reconstructs the typed record from a stored row. Rows carry no
// version column; the schema version is pinned by the manifest.
func (r row) record() record.Silver {
	return record.Silver{
		ID:           r.ID,
		Text:         r.Text,
		Source:       r.Source,
		SourceType:   r.SourceType,
		DateAccessed: r.DateAccessed,
		Language:     r.Language,
		License:      r.License,
		TokenCount:   r.TokenCount,
		Metadata:     r.Metadata,
		Domain:       r.Domain,
		Embedding:    r.Embedding,
		Register:     r.Register,
		Version:      record.SchemaVersion,
	}
}
