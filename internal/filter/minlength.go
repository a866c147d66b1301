package filter

import "unicode/utf8"

// minLengthName identifies the length predicate in rejection counters.
const minLengthName = "min_length_filter"

// MinLength rejects records whose cleaned text is shorter than a threshold,
// counted in runes rather than bytes so multibyte scripts are not penalized.
type MinLength struct {
	threshold int
}

// NewMinLength builds the length predicate. A threshold of zero or less
// admits everything.
func NewMinLength(threshold int) *MinLength {
	return &MinLength{threshold: threshold}
}

// Name implements Predicate.
func (*MinLength) Name() string { return minLengthName }

// Check implements Predicate.
func (f *MinLength) Check(text string, _ map[string]any) Verdict {
	if utf8.RuneCountInString(text) < f.threshold {
		return Verdict{}
	}

	return Verdict{Pass: true}
}
