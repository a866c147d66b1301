package record

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"unicode"

	json "github.com/goccy/go-json"
	"golang.org/x/text/unicode/norm"

	"github.com/somali-nlp/somali-dialect-classifier/pkg/safeconv"
	"github.com/somali-nlp/somali-dialect-classifier/pkg/textutil"
)

const (
	// idHashLength is the number of hash hex digits in a record id.
	idHashLength = 16

	// prefixMaxLength is the maximum length of the source prefix in a
	// record id.
	prefixMaxLength = 4
)

// TextHash returns the 64-hex sha256 of the NFC-normalized text. Composed
// and decomposed spellings of the same content hash identically, which is
// what makes ids and exact-dedup hashes stable across sources.
func TextHash(text string) string {
	sum := sha256.Sum256([]byte(norm.NFC.String(text)))

	return hex.EncodeToString(sum[:])
}

// SourcePrefix derives the id prefix from a source name: non-alphanumerics
// removed, upper-cased, truncated to four characters
// ("Wikipedia-Somali" -> "WIKI").
func SourcePrefix(source string) string {
	prefix := make([]rune, 0, prefixMaxLength)

	for _, r := range source {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			continue
		}

		prefix = append(prefix, unicode.ToUpper(r))

		if len(prefix) == prefixMaxLength {
			break
		}
	}

	return string(prefix)
}

// ID returns the deterministic record identity for text acquired from
// source: SOURCE_PREFIX + "_" + first 16 hex of the text hash.
func ID(text, source string) string {
	return SourcePrefix(source) + "_" + TextHash(text)[:idHashLength]
}

// Builder assembles silver records for one source within one run. The
// descriptor and run info are fixed at construction so every record carries
// consistent source constants and the same acquisition date.
type Builder struct {
	desc SourceDescriptor
	run  RunInfo
}

// NewBuilder creates a builder for the given source and run.
func NewBuilder(desc SourceDescriptor, run RunInfo) *Builder {
	return &Builder{desc: desc, run: run}
}

// Build assembles a silver record from cleaned text and free-form metadata.
// The text is NFC-normalized so the stored text always hashes to the record
// id's hash. Metadata must be JSON-serializable; nil or empty maps serialize
// to "{}". Map keys serialize in sorted order, keeping records byte-identical
// across runs.
func (b *Builder) Build(cleaned string, meta map[string]any) (Silver, error) {
	text := norm.NFC.String(cleaned)

	metaJSON := []byte("{}")

	if len(meta) > 0 {
		encoded, err := json.Marshal(meta)
		if err != nil {
			return Silver{}, fmt.Errorf("record: serialize metadata: %w", err)
		}

		metaJSON = encoded
	}

	return Silver{
		ID:           ID(text, b.desc.Name),
		Text:         text,
		Source:       b.desc.Name,
		SourceType:   string(b.desc.Type),
		DateAccessed: DaysSinceEpoch(b.run.DateAccessed),
		Language:     b.desc.Language,
		License:      b.desc.License,
		TokenCount:   safeconv.MustIntToInt32(textutil.TokenCount(text)),
		Metadata:     string(metaJSON),
		Domain:       b.desc.Domain,
		Embedding:    "",
		Register:     string(b.desc.Register),
		Version:      SchemaVersion,
	}, nil
}
