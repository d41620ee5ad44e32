package loader

import (
	"strings"
	"unicode/utf8"
)

// loadPlain returns content as a string. Invalid UTF-8 sequences are
// replaced with the replacement character.
func loadPlain(content []byte) string {
	if !utf8.Valid(content) {
		return strings.ToValidUTF8(string(content), "�")
	}
	return string(content)
}
