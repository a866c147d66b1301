package filter

import (
	"strings"
	"sync"
	"unicode"

	"github.com/somali-nlp/somali-dialect-classifier/internal/filter/lexicons"
)

// langIDName identifies the language predicate in rejection counters.
const langIDName = "langid_filter"

// LangUnknown is reported when no language profile matches the text.
const LangUnknown = "und"

// Detection blends two signals. Stopword hits carry more weight because
// function words are the strongest short-text discriminator between the
// embedded profiles.
const (
	stopwordWeight = 0.6
	trigramWeight  = 0.4
)

// trigramSize is the character n-gram width of the profile tables.
const trigramSize = 3

const (
	metaDetectedLang   = "detected_lang"
	metaLangConfidence = "lang_confidence"
)

// profile holds the precomputed detection tables for one language.
type profile struct {
	stopwords map[string]struct{}
	trigrams  map[string]struct{}
}

var (
	profilesOnce sync.Once
	profiles     map[string]profile
	profileCodes []string
)

// buildProfiles derives trigram tables from the embedded stopword and seed
// vocabularies. Profiles are built once and shared by every engine.
func buildProfiles() {
	langs := lexicons.AllLanguages()
	profiles = make(map[string]profile, len(langs))
	profileCodes = make([]string, 0, len(langs))

	for _, lang := range langs {
		p := profile{
			stopwords: make(map[string]struct{}),
			trigrams:  make(map[string]struct{}),
		}

		for _, w := range lexicons.Stopwords(lang) {
			p.stopwords[w] = struct{}{}
			addWordTrigrams(p.trigrams, w)
		}

		for _, w := range lexicons.SeedWords(lang) {
			addWordTrigrams(p.trigrams, w)
		}

		profiles[string(lang)] = p
		profileCodes = append(profileCodes, string(lang))
	}
}

// addWordTrigrams records every trigram of the space-padded word.
func addWordTrigrams(set map[string]struct{}, word string) {
	runes := []rune(" " + word + " ")

	for i := 0; i+trigramSize <= len(runes); i++ {
		set[string(runes[i:i+trigramSize])] = struct{}{}
	}
}

// Detect classifies text against the embedded language profiles. It returns
// the best-scoring ISO 639-1 code and a confidence in [0, 1], or LangUnknown
// with zero confidence when nothing matches. Ties resolve to the
// alphabetically first code, keeping detection deterministic.
func Detect(text string) (string, float64) {
	profilesOnce.Do(buildProfiles)

	tokens := tokenize(text)
	if len(tokens) == 0 {
		return LangUnknown, 0
	}

	grams := textTrigrams(tokens)

	best := LangUnknown
	bestScore := 0.0

	for _, code := range profileCodes {
		p := profiles[code]
		score := stopwordWeight*setRatio(tokens, p.stopwords) + trigramWeight*overlapRatio(grams, p.trigrams)

		// Arabic script is self-identifying even when the vocabulary
		// tables miss every word.
		if code == string(lexicons.LangArabic) {
			if r := arabicScriptRatio(text); r > score {
				score = r
			}
		}

		if score > bestScore {
			best = code
			bestScore = score
		}
	}

	if bestScore == 0 {
		return LangUnknown, 0
	}

	if bestScore > 1 {
		bestScore = 1
	}

	return best, bestScore
}

// textTrigrams collects the distinct letter trigrams across tokens.
func textTrigrams(tokens []string) map[string]struct{} {
	grams := make(map[string]struct{})

	for _, tok := range tokens {
		letters := keepLetters(tok)
		if letters == "" {
			continue
		}

		addWordTrigrams(grams, letters)
	}

	return grams
}

// keepLetters drops non-letter runes from a token.
func keepLetters(tok string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) {
			return r
		}

		return -1
	}, tok)
}

// setRatio is the fraction of tokens present in set.
func setRatio(tokens []string, set map[string]struct{}) float64 {
	hits := 0

	for _, tok := range tokens {
		if _, ok := set[tok]; ok {
			hits++
		}
	}

	return float64(hits) / float64(len(tokens))
}

// overlapRatio is the fraction of grams present in profile.
func overlapRatio(grams, profile map[string]struct{}) float64 {
	if len(grams) == 0 {
		return 0
	}

	hits := 0

	for g := range grams {
		if _, ok := profile[g]; ok {
			hits++
		}
	}

	return float64(hits) / float64(len(grams))
}

// arabicScriptRatio is the fraction of letters written in Arabic script.
func arabicScriptRatio(text string) float64 {
	letters := 0
	arabic := 0

	for _, r := range text {
		if !unicode.IsLetter(r) {
			continue
		}

		letters++

		if unicode.Is(unicode.Arabic, r) {
			arabic++
		}
	}

	if letters == 0 {
		return 0
	}

	return float64(arabic) / float64(letters)
}

// LangID keeps records whose detected language is in the allowed set with
// sufficient confidence. Records that pass are enriched with detected_lang
// and lang_confidence.
type LangID struct {
	allowed             map[string]struct{}
	confidenceThreshold float64
}

// NewLangID builds the language predicate. Codes are ISO 639-1.
func NewLangID(allowed []string, confidenceThreshold float64) *LangID {
	set := make(map[string]struct{}, len(allowed))

	for _, code := range allowed {
		set[strings.ToLower(strings.TrimSpace(code))] = struct{}{}
	}

	return &LangID{allowed: set, confidenceThreshold: confidenceThreshold}
}

// Name implements Predicate.
func (*LangID) Name() string { return langIDName }

// Check implements Predicate.
func (f *LangID) Check(text string, _ map[string]any) Verdict {
	code, confidence := Detect(text)

	if _, ok := f.allowed[code]; !ok || confidence < f.confidenceThreshold {
		return Verdict{}
	}

	return Verdict{
		Pass: true,
		Enrichment: map[string]any{
			metaDetectedLang:   code,
			metaLangConfidence: confidence,
		},
	}
}
