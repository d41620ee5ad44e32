package extraction

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var punctuationFolds = strings.NewReplacer(
	"\r\n", "\n",
	"\r", "\n",
	"–", "-",
	"—", "-",
	"‘", "'",
	"’", "'",
	"“", `"`,
	"”", `"`,
)

// Preprocess normalizes text for extraction: NFC composition, control
// characters to spaces, dash and quote folding, and whitespace collapsed
// within each line. Line breaks are kept since section boundaries depend on them.
func Preprocess(text string) string {
	text = punctuationFolds.Replace(norm.NFC.String(text))
	lines := strings.Split(text, "\n")
	out := lines[:0]
	for _, line := range lines {
		out = append(out, collapseLine(line))
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

func collapseLine(line string) string {
	var b strings.Builder
	b.Grow(len(line))
	wasSpace := false
	for _, r := range line {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			if !wasSpace {
				b.WriteRune(' ')
				wasSpace = true
			}
			continue
		}
		b.WriteRune(r)
		wasSpace = false
	}
	return strings.TrimSpace(b.String())
}
