package lexicons

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/somali-nlp/somali-dialect-classifier/pkg/alg/mapx"
)

// rulesetVersion is the only ruleset document version this package reads.
const rulesetVersion = 1

var (
	// ErrRulesetVersion reports a ruleset document with an unsupported version.
	ErrRulesetVersion = errors.New("unsupported ruleset version")

	// ErrRulesetEmpty reports a ruleset document that defines no dialects.
	ErrRulesetEmpty = errors.New("ruleset defines no dialects")
)

//go:embed dialects.yaml
var defaultRulesetYAML []byte

// rulesetDoc is the YAML shape of a dialect-marker ruleset file.
type rulesetDoc struct {
	Version  int                 `yaml:"version"`
	Dialects map[string][]string `yaml:"dialects"`
}

// Ruleset holds compiled dialect-marker tables keyed by dialect tag.
// Marker terms are matched against lowercased tokens.
type Ruleset struct {
	tags    []string
	markers map[string]map[string]struct{}
}

// ParseRuleset compiles a YAML ruleset document.
func ParseRuleset(data []byte) (*Ruleset, error) {
	var doc rulesetDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("lexicons: parse ruleset: %w", err)
	}

	if doc.Version != rulesetVersion {
		return nil, fmt.Errorf("lexicons: version %d: %w", doc.Version, ErrRulesetVersion)
	}

	if len(doc.Dialects) == 0 {
		return nil, fmt.Errorf("lexicons: %w", ErrRulesetEmpty)
	}

	markers := make(map[string]map[string]struct{}, len(doc.Dialects))

	for tag, terms := range doc.Dialects {
		set := make(map[string]struct{}, len(terms))

		for _, term := range terms {
			term = strings.ToLower(strings.TrimSpace(term))
			if term == "" {
				continue
			}

			set[term] = struct{}{}
		}

		if len(set) == 0 {
			return nil, fmt.Errorf("lexicons: dialect %q has no markers", tag)
		}

		markers[tag] = set
	}

	return &Ruleset{tags: mapx.SortedKeys(markers), markers: markers}, nil
}

// LoadRuleset reads and compiles a YAML ruleset file.
func LoadRuleset(path string) (*Ruleset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("lexicons: read ruleset: %w", err)
	}

	return ParseRuleset(data)
}

var (
	defaultRuleset     *Ruleset
	defaultRulesetOnce sync.Once
)

// DefaultRuleset returns the embedded dialect-marker tables.
func DefaultRuleset() *Ruleset {
	defaultRulesetOnce.Do(func() {
		rs, err := ParseRuleset(defaultRulesetYAML)
		if err != nil {
			panic(fmt.Sprintf("lexicons: embedded ruleset: %v", err))
		}

		defaultRuleset = rs
	})

	return defaultRuleset
}

// Tags returns the dialect tags in sorted order.
func (r *Ruleset) Tags() []string {
	return mapx.CloneSlice(r.tags)
}

// Count tallies marker hits per dialect tag over the given tokens.
// Only tags with at least one hit appear in the result.
func (r *Ruleset) Count(tokens []string) map[string]int64 {
	counts := make(map[string]int64)

	for _, tok := range tokens {
		for _, tag := range r.tags {
			if _, ok := r.markers[tag][tok]; ok {
				counts[tag]++
			}
		}
	}

	return counts
}
