package filter

import "unicode"

// emojiOnlyName identifies the symbol-only predicate in rejection counters.
const emojiOnlyName = "emoji_only_filter"

// EmojiOnly rejects records without a single letter or digit, which on
// social sources means pure emoji or punctuation comments.
type EmojiOnly struct{}

// NewEmojiOnly builds the symbol-only predicate.
func NewEmojiOnly() *EmojiOnly {
	return &EmojiOnly{}
}

// Name implements Predicate.
func (*EmojiOnly) Name() string { return emojiOnlyName }

// Check implements Predicate.
func (*EmojiOnly) Check(text string, _ map[string]any) Verdict {
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return Verdict{Pass: true}
		}
	}

	return Verdict{}
}
