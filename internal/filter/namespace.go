package filter

import "strings"

// namespaceName identifies the title-prefix predicate in rejection counters.
const namespaceName = "namespace_filter"

// metaTitle is the metadata key the namespace predicate inspects.
const metaTitle = "title"

// Namespace rejects records whose title sits in a skipped wiki namespace,
// such as Talk: or User: pages. Records without a title always pass.
type Namespace struct {
	skipPrefixes []string
}

// NewNamespace builds the title-prefix predicate.
func NewNamespace(skipPrefixes ...string) *Namespace {
	return &Namespace{skipPrefixes: skipPrefixes}
}

// Name implements Predicate.
func (*Namespace) Name() string { return namespaceName }

// Check implements Predicate.
func (f *Namespace) Check(_ string, meta map[string]any) Verdict {
	title, ok := meta[metaTitle].(string)
	if !ok {
		return Verdict{Pass: true}
	}

	for _, prefix := range f.skipPrefixes {
		if strings.HasPrefix(title, prefix) {
			return Verdict{}
		}
	}

	return Verdict{Pass: true}
}
