package extraction

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitSections_lengthBounds(t *testing.T) {
	text := strings.Join([]string{
		strings.Repeat("a", 49),
		strings.Repeat("b", 50),
		strings.Repeat("c", 2000),
		strings.Repeat("d", 2001),
	}, "\n---\n")
	got := SplitSections(text)
	assert.Equal(t, []string{strings.Repeat("b", 50), strings.Repeat("c", 2000)}, got)
}

func TestSplitSections_fallback(t *testing.T) {
	assert.Equal(t, []string{"too short"}, SplitSections("too short"))
	assert.Equal(t, []string{""}, SplitSections(""))
}

func TestSplitSections_cascade(t *testing.T) {
	body := func(c string) string { return strings.Repeat(c, 60) }
	text := body("a") +
		"\n1. " + body("b") +
		"\nCATALOGUE PRODUITS\n" + body("c") +
		"\n=====\n" + body("d") +
		"\nProduct 2: " + body("e") +
		"\nPRODUIT 3. " + body("f")
	got := SplitSections(text)
	assert.Equal(t, []string{body("a"), body("b"), body("c"), body("d"), body("e"), body("f")}, got)
}

func TestPreprocess(t *testing.T) {
	in := "Marque:  BOSCH\t\x01 \r\nRéf – “x”  \r\n\n"
	assert.Equal(t, "Marque: BOSCH\nRéf - \"x\"", Preprocess(in))
}
