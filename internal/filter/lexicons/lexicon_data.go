package lexicons

// Hand-maintained vocabulary tables. Entries are lowercase and matched
// against lowercased tokens; keep each list sorted roughly by frequency so
// truncating it for experiments stays meaningful.

func somaliStopwords() []string {
	return []string{
		"waa", "iyo", "oo", "ka", "ku", "la", "ma", "in", "uu", "ay",
		"aan", "si", "ah", "ee", "u", "soo", "loo", "kale", "wuxuu",
		"waxay", "waxaa", "ayaa", "ayay", "ayuu", "isaga", "iyada",
		"kuwa", "kan", "tan", "halkaas", "markaas", "laakiin", "ama",
		"haddii", "ilaa", "hoos", "kor", "dhex", "gudaha", "mid",
		"kasta", "qaar", "badan", "ugu", "kala", "wax",
	}
}

func somaliSeedWords() []string {
	return []string{
		"soomaaliya", "soomaali", "soomaaliyeed", "muqdisho",
		"caasimadda", "waddan", "waddanka", "dal", "dalka", "gobolka",
		"degmada", "magaalada", "dadka", "shacabka", "dawladda",
		"xukuumadda", "madaxweynaha", "baarlamaanka", "ciidamada",
		"wararka", "warbaahinta", "maanta", "shalay", "berri",
		"sannadkan", "maalinta", "habeenkii", "af", "afka", "luqadda",
		"dhaqanka", "carruurta", "waxbarashada", "caafimaadka",
		"ganacsiga", "beeraha", "xoolaha", "biyaha", "cuntada",
		"lacagta", "shaqada", "guriga", "qoyska", "nabadda", "colaadda",
	}
}

func englishStopwords() []string {
	return []string{
		"the", "a", "an", "and", "or", "but", "not", "no", "of", "to",
		"in", "on", "at", "by", "for", "with", "from", "as", "is",
		"are", "was", "were", "be", "been", "being", "it", "its",
		"this", "that", "these", "those", "he", "she", "they", "we",
		"you", "i", "him", "her", "them", "his", "their", "our",
		"your", "my", "all", "any", "some", "if", "then", "than",
		"so", "over", "under", "about", "after", "before", "can",
		"will", "would", "could", "should", "has", "have", "had",
		"do", "does", "did",
	}
}

func englishSeedWords() []string {
	return []string{
		"people", "country", "city", "capital", "government", "news",
		"today", "year", "time", "day", "world", "language", "house",
		"water", "money", "work", "school", "because", "through",
		"between", "important", "different", "example", "information",
		"quick", "brown", "fox", "jumps", "lazy", "dog",
	}
}

func swedishStopwords() []string {
	return []string{
		"och", "att", "det", "som", "en", "ett", "är", "av", "för",
		"på", "med", "till", "den", "har", "de", "inte", "om", "var",
		"vid", "sig", "från", "vi", "man", "kan", "när", "efter",
		"under", "också", "hur", "där", "eller", "vad", "men", "ska",
		"skulle", "hade", "denna", "detta", "dessa", "sin", "sitt",
		"sina", "jag", "du", "han", "hon",
	}
}

func swedishSeedWords() []string {
	return []string{
		"sverige", "svenska", "språket", "språk", "mening", "landet",
		"huvudstaden", "stockholm", "människor", "nyheter",
		"regeringen", "året", "dagen", "tiden", "arbetet", "vattnet",
		"pengar", "världen", "staden", "skolan", "exempel",
		"information", "viktig", "olika", "genom",
	}
}

func arabicStopwords() []string {
	return []string{
		"في", "من", "على", "إلى", "عن", "أن", "إن", "كان", "كانت",
		"هذا", "هذه", "ذلك", "تلك", "التي", "الذي", "الذين", "ما",
		"لا", "لم", "لن", "قد", "كل", "بعض", "بعد", "قبل", "عند",
		"مع", "هو", "هي", "هم", "ثم", "أو", "إذا", "حتى", "غير",
		"بين",
	}
}

func arabicSeedWords() []string {
	return []string{
		"الصومال", "الصومالية", "مقديشو", "عاصمة", "بلد", "مدينة",
		"الناس", "الشعب", "الحكومة", "الرئيس", "أخبار", "اليوم",
		"أمس", "سنة", "لغة", "العالم", "الوقت", "البيت", "الماء",
		"العمل", "المال", "المدرسة", "السلام", "عليكم",
	}
}
