// Package normalize renders products and structured sources as plain text.
package normalize

import (
	"strings"

	"github.com/hyperjump/shohin/internal/models"
)

// FieldSeparator joins the parts of a product's searchable text.
const FieldSeparator = " | "

// SearchableText concatenates the indexed fields of p: name, brand,
// reference, description, category and each characteristic as
// "name: value unit". Empty parts are skipped.
func SearchableText(p *models.Product) string {
	parts := make([]string, 0, 5+len(p.Characteristics))
	for _, s := range []string{p.Name, p.Brand.Name, p.Reference.Value, p.Description, p.Category} {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	for _, c := range p.Characteristics {
		s := c.Name + ": " + c.Value
		if c.Unit != "" {
			s += " " + c.Unit
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, FieldSeparator)
}

// Tokens lowercases text and splits it on whitespace.
func Tokens(text string) []string {
	return strings.Fields(strings.ToLower(text))
}
