// Package filter implements the predicate chain that decides which cleaned
// records become silver rows.
//
// An Engine runs a record through an ordered list of predicates,
// short-circuiting on the first failure and folding each passing predicate's
// enrichment into the record metadata. Rejections are tallied per predicate
// name so quality reports can attribute every dropped record.
package filter

import (
	"strings"
	"unicode"

	"github.com/somali-nlp/somali-dialect-classifier/internal/record"
	"github.com/somali-nlp/somali-dialect-classifier/pkg/alg/mapx"
)

// Verdict is the outcome of a single predicate check.
type Verdict struct {
	// Pass reports whether the record survives this predicate.
	Pass bool

	// Enrichment holds metadata the predicate derived from the text,
	// merged into the record on pass.
	Enrichment map[string]any
}

// Result is the outcome of running a record through the whole chain.
type Result struct {
	// Passed reports whether every predicate accepted the record.
	Passed bool

	// FailedBy names the predicate that rejected the record; empty on pass.
	FailedBy string
}

// Predicate inspects cleaned text plus its metadata and votes on keeping it.
// Implementations must be deterministic: identical input yields an identical
// verdict.
type Predicate interface {
	// Name identifies the predicate in rejection counters and reports.
	Name() string

	// Check evaluates one record. Implementations must not mutate meta.
	Check(text string, meta map[string]any) Verdict
}

// Engine applies predicates in order with short-circuit rejection.
// It is not safe for concurrent use; the pipeline runs one engine per source.
type Engine struct {
	predicates []Predicate
	failCounts map[string]int64
}

// New builds an engine over the given predicates. Order is significant:
// cheap structural checks belong before vocabulary scans.
func New(predicates ...Predicate) *Engine {
	return &Engine{
		predicates: predicates,
		failCounts: make(map[string]int64),
	}
}

// Apply runs rec through the chain. Enrichments from passing predicates are
// merged into rec.Metadata, allocating the map when needed. On rejection the
// per-predicate counter is incremented and later predicates never run.
func (e *Engine) Apply(rec *record.Raw) Result {
	for _, p := range e.predicates {
		verdict := p.Check(rec.Text, rec.Metadata)
		if !verdict.Pass {
			e.failCounts[p.Name()]++

			return Result{FailedBy: p.Name()}
		}

		if len(verdict.Enrichment) == 0 {
			continue
		}

		if rec.Metadata == nil {
			rec.Metadata = make(map[string]any, len(verdict.Enrichment))
		}

		for k, v := range verdict.Enrichment {
			rec.Metadata[k] = v
		}
	}

	return Result{Passed: true}
}

// FailCounts returns a copy of the per-predicate rejection counters.
func (e *Engine) FailCounts() map[string]int64 {
	return mapx.Clone(e.failCounts)
}

// tokenize lowercases text and splits it into letter/digit runs.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
