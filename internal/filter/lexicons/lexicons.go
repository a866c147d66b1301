// Package lexicons provides the embedded vocabulary tables behind the filter
// chain: per-language stopword and seed-word lists for language
// identification, and dialect-marker rulesets for topic enrichment.
//
// The language tables are small hand-curated profiles sufficient for coarse
// discrimination between the languages that actually occur in the crawled
// sources; they are not a general-purpose language identifier. Stopwords
// drive the token-ratio signal while seed words extend the character-trigram
// profile with characteristic content vocabulary.
package lexicons

import "sort"

// Language identifies a supported profile language by ISO 639-1 code.
type Language string

// Supported profile languages.
const (
	LangArabic  Language = "ar"
	LangEnglish Language = "en"
	LangSomali  Language = "so"
	LangSwedish Language = "sv"
)

// languageRegistry maps language codes to their display names and table loaders.
var languageRegistry = map[Language]struct {
	name      string
	stopwords func() []string
	seedWords func() []string
}{
	LangArabic:  {"Arabic", arabicStopwords, arabicSeedWords},
	LangEnglish: {"English", englishStopwords, englishSeedWords},
	LangSomali:  {"Somali", somaliStopwords, somaliSeedWords},
	LangSwedish: {"Swedish", swedishStopwords, swedishSeedWords},
}

// AllLanguages returns the supported profile languages in code order.
func AllLanguages() []Language {
	langs := make([]Language, 0, len(languageRegistry))
	for lang := range languageRegistry {
		langs = append(langs, lang)
	}

	sort.Slice(langs, func(i, j int) bool { return langs[i] < langs[j] })

	return langs
}

// LanguageName returns the display name for a language code.
func LanguageName(lang Language) string {
	if info, ok := languageRegistry[lang]; ok {
		return info.name
	}

	return string(lang)
}

// Stopwords returns the high-frequency function words for the given language.
// Returns nil if the language is not supported.
func Stopwords(lang Language) []string {
	if info, ok := languageRegistry[lang]; ok {
		return info.stopwords()
	}

	return nil
}

// SeedWords returns the characteristic content vocabulary for the given
// language. Returns nil if the language is not supported.
func SeedWords(lang Language) []string {
	if info, ok := languageRegistry[lang]; ok {
		return info.seedWords()
	}

	return nil
}

// LanguageCount returns the number of supported profile languages.
func LanguageCount() int {
	return len(languageRegistry)
}
