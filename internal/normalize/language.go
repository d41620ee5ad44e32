package normalize

import "strings"

var (
	frenchWords  = []string{"le", "la", "les", "de", "du", "des", "et", "ou", "est", "avec"}
	englishWords = []string{"the", "and", "or", "is", "with", "for", "to", "of", "in", "on"}
)

// DetectLanguage guesses "fr" or "en" from common function words.
// It returns "" when neither language dominates.
func DetectLanguage(text string) string {
	counts := make(map[string]int)
	for _, tok := range Tokens(text) {
		counts[strings.Trim(tok, ".,;:!?()\"'")]++
	}
	var fr, en int
	for _, w := range frenchWords {
		fr += counts[w]
	}
	for _, w := range englishWords {
		en += counts[w]
	}
	switch {
	case fr > en:
		return "fr"
	case en > fr:
		return "en"
	}
	return ""
}
