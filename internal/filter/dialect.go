package filter

import (
	"github.com/somali-nlp/somali-dialect-classifier/internal/filter/lexicons"
	"github.com/somali-nlp/somali-dialect-classifier/pkg/alg/mapx"
)

// dialectLexiconName identifies the marker predicate in rejection counters.
const dialectLexiconName = "topic_lexicon_enrichment_filter"

const (
	metaDialectMarkers = "dialect_markers"
	metaPrimaryDialect = "primary_dialect"
)

// DialectLexicon counts dialect-marker hits per tag and records them in the
// metadata. In enrich-only mode it never rejects; otherwise records without
// a single marker are dropped.
type DialectLexicon struct {
	rules      *lexicons.Ruleset
	enrichOnly bool
}

// NewDialectLexicon builds the marker predicate. A nil ruleset selects the
// embedded default tables.
func NewDialectLexicon(rules *lexicons.Ruleset, enrichOnly bool) *DialectLexicon {
	if rules == nil {
		rules = lexicons.DefaultRuleset()
	}

	return &DialectLexicon{rules: rules, enrichOnly: enrichOnly}
}

// Name implements Predicate.
func (*DialectLexicon) Name() string { return dialectLexiconName }

// Check implements Predicate.
func (f *DialectLexicon) Check(text string, _ map[string]any) Verdict {
	counts := f.rules.Count(tokenize(text))
	if len(counts) == 0 {
		return Verdict{Pass: f.enrichOnly}
	}

	return Verdict{
		Pass: true,
		Enrichment: map[string]any{
			metaDialectMarkers: counts,
			metaPrimaryDialect: primaryTag(counts),
		},
	}
}

// primaryTag is the tag with the highest count; ties resolve to the
// alphabetically first tag.
func primaryTag(counts map[string]int64) string {
	best := ""
	bestCount := int64(0)

	for _, tag := range mapx.SortedKeys(counts) {
		if counts[tag] > bestCount {
			best = tag
			bestCount = counts[tag]
		}
	}

	return best
}
