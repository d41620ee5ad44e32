package extraction

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Section length bounds, in characters.
const (
	MinSectionLength = 50
	MaxSectionLength = 2000
)

// Separators, applied as a cascade: numbered list markers, all-caps title
// lines, rule lines, and explicit product markers.
var sectionSeparators = []*regexp.Regexp{
	regexp.MustCompile(`\n\s*\d+[.)]\s+`),
	regexp.MustCompile(`\n[ \t]*[A-Z][A-Z \t]{10,}\n`),
	regexp.MustCompile(`\n\s*[-=]{3,}\s*\n`),
	regexp.MustCompile(`(?i)\n\s*(?:PRODUIT|PRODUCT)\s*\d*\s*[:.]\s*`),
}

// SplitSections splits text into candidate product sections. Each separator
// is applied to every section produced so far. Sections outside
// [MinSectionLength, MaxSectionLength] are dropped; when none survive the
// whole text is returned as a single section, so the result is never empty.
func SplitSections(text string) []string {
	sections := []string{text}
	for _, sep := range sectionSeparators {
		next := make([]string, 0, len(sections))
		for _, section := range sections {
			for _, part := range sep.Split(section, -1) {
				if part = strings.TrimSpace(part); part != "" {
					next = append(next, part)
				}
			}
		}
		sections = next
	}

	kept := make([]string, 0, len(sections))
	for _, s := range sections {
		if n := utf8.RuneCountInString(s); n >= MinSectionLength && n <= MaxSectionLength {
			kept = append(kept, s)
		}
	}
	if len(kept) == 0 {
		return []string{text}
	}
	return kept
}
