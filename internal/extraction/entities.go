package extraction

import (
	"math"
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/hyperjump/shohin/internal/models"
	"github.com/hyperjump/shohin/internal/patterns"
)

// MaxAlternatives is the number of brand and reference candidates kept per product.
const MaxAlternatives = 3

var (
	whitespaceRun      = regexp.MustCompile(`\s+`)
	nonAlphanumeric    = regexp.MustCompile(`[^A-Z0-9]`)
	asciiLetter        = regexp.MustCompile(`[A-Za-z]`)
	asciiAlphanumeric  = regexp.MustCompile(`[A-Za-z0-9]`)
	referenceShape     = regexp.MustCompile(`^[A-Z]{2,4}[0-9]{3,}`)
	referenceKeywords  = `(?i)(?:ref|référence|model|modèle)[\s:]*`
	enumeratorLine     = regexp.MustCompile(`^\d+[.)]`)
	allCapsLine        = regexp.MustCompile(`^[A-Z\s]+$`)
	categoryByKeywords = []struct {
		category models.CharacteristicCategory
		keywords []string
	}{
		{models.CategoryDimension, []string{"longueur", "largeur", "hauteur", "dimension", "taille"}},
		{models.CategoryWeight, []string{"poids", "masse", "weight"}},
		{models.CategoryMaterial, []string{"matériau", "material", "matière"}},
		{models.CategoryColor, []string{"couleur", "color"}},
		{models.CategoryElectrical, []string{"tension", "voltage", "volt"}},
		{models.CategoryPower, []string{"puissance", "power", "watt"}},
	}
)

func extractBrands(section string, rules []patterns.Pattern) []models.Brand {
	var brands []models.Brand
	for _, p := range rules {
		for _, m := range p.Regexp.FindAllStringSubmatch(section, -1) {
			name := strings.TrimSpace(m[1])
			if !validBrand(name) {
				continue
			}
			brands = append(brands, models.Brand{
				Name:           name,
				NormalizedName: NormalizeBrand(name),
				Aliases:        []string{},
				Confidence:     p.Confidence * brandBoost(name, section),
			})
		}
	}
	brands = dedupe(brands, func(b models.Brand) string { return b.NormalizedName })
	sort.SliceStable(brands, func(i, j int) bool { return brands[i].Confidence > brands[j].Confidence })
	if len(brands) > MaxAlternatives {
		brands = brands[:MaxAlternatives]
	}
	return brands
}

func extractReferences(section string, rules []patterns.Pattern) []models.Reference {
	var refs []models.Reference
	for _, p := range rules {
		for _, m := range p.Regexp.FindAllStringSubmatch(section, -1) {
			value := strings.TrimSpace(m[1])
			if !validReference(value) {
				continue
			}
			refs = append(refs, models.Reference{
				Value:           value,
				NormalizedValue: NormalizeReference(value),
				FormatPattern:   p.Name,
				Confidence:      p.Confidence * referenceBoost(value, section),
			})
		}
	}
	refs = dedupe(refs, func(r models.Reference) string { return r.NormalizedValue })
	sort.SliceStable(refs, func(i, j int) bool { return refs[i].Confidence > refs[j].Confidence })
	if len(refs) > MaxAlternatives {
		refs = refs[:MaxAlternatives]
	}
	return refs
}

func extractCharacteristics(section string, rules []patterns.Pattern) []models.Characteristic {
	chars := []models.Characteristic{}
	for _, p := range rules {
		groups := p.Regexp.NumSubexp()
		if groups < 2 {
			continue
		}
		for _, m := range p.Regexp.FindAllStringSubmatch(section, -1) {
			name := strings.TrimSpace(m[1])
			value := strings.TrimSpace(m[2])
			unit := ""
			if groups >= 3 {
				unit = strings.TrimSpace(m[3])
			}
			if !validCharacteristic(name, value) {
				continue
			}
			chars = append(chars, models.Characteristic{
				Name:            name,
				Value:           value,
				Unit:            unit,
				Category:        Categorize(name),
				NormalizedName:  normalizeCharacteristicName(name),
				NormalizedValue: normalizeCharacteristicValue(value, unit),
			})
		}
	}
	return dedupe(chars, models.Characteristic.Key)
}

// dedupe keeps the first item per key, preserving insertion order.
func dedupe[T any](items []T, key func(T) string) []T {
	seen := make(map[string]struct{}, len(items))
	out := items[:0]
	for _, it := range items {
		k := key(it)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, it)
	}
	return out
}

func validBrand(s string) bool {
	n := utf8.RuneCountInString(s)
	return n >= 2 && n <= 50 && !allDigits(s) && asciiLetter.MatchString(s)
}

func validReference(s string) bool {
	n := utf8.RuneCountInString(s)
	return n >= 3 && n <= 20 && asciiAlphanumeric.MatchString(s)
}

func validCharacteristic(name, value string) bool {
	n, v := utf8.RuneCountInString(name), utf8.RuneCountInString(value)
	return n >= 2 && n <= 50 && v >= 1 && v <= 100
}

func allDigits(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return s != ""
}

// isUpper reports whether s has at least one cased letter and no lowercase ones.
func isUpper(s string) bool {
	cased := false
	for _, r := range s {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsUpper(r) {
			cased = true
		}
	}
	return cased
}

// brandBoost is 0.5, plus 0.1 per extra occurrence in the section (at most
// 0.3), plus 0.1 when the brand is fully uppercase. Capped at 1.
func brandBoost(brand, section string) float64 {
	boost := 0.5
	occurrences := strings.Count(strings.ToLower(section), strings.ToLower(brand))
	if extra := occurrences - 1; extra > 0 {
		boost += math.Min(float64(extra)*0.1, 0.3)
	}
	if isUpper(brand) {
		boost += 0.1
	}
	return math.Min(boost, 1)
}

// referenceBoost is 0.5, plus 0.2 for the letters-then-digits shape, plus
// 0.3 when a reference keyword precedes it. Capped at 1.
func referenceBoost(ref, section string) float64 {
	boost := 0.5
	if referenceShape.MatchString(ref) {
		boost += 0.2
	}
	if re, err := regexp.Compile(referenceKeywords + regexp.QuoteMeta(ref)); err == nil && re.MatchString(section) {
		boost += 0.3
	}
	return math.Min(boost, 1)
}

// NormalizeBrand uppercases a brand and collapses its whitespace.
func NormalizeBrand(s string) string {
	return whitespaceRun.ReplaceAllString(strings.ToUpper(strings.TrimSpace(s)), " ")
}

// NormalizeReference uppercases a reference and strips every non-alphanumeric character.
func NormalizeReference(s string) string {
	return nonAlphanumeric.ReplaceAllString(strings.ToUpper(s), "")
}

func normalizeCharacteristicName(s string) string {
	return whitespaceRun.ReplaceAllString(strings.ToLower(strings.TrimSpace(s)), " ")
}

func normalizeCharacteristicValue(value, unit string) string {
	v := strings.TrimSpace(strings.ReplaceAll(value, ",", "."))
	if unit != "" {
		v += " " + strings.ToLower(unit)
	}
	return v
}

// Categorize assigns a characteristic category from keywords in its name.
func Categorize(name string) models.CharacteristicCategory {
	lower := strings.ToLower(name)
	for _, c := range categoryByKeywords {
		for _, kw := range c.keywords {
			if strings.Contains(lower, kw) {
				return c.category
			}
		}
	}
	return models.CategoryOther
}

// productName picks the first descriptive line of a section.
func productName(section string) string {
	lines := strings.Split(section, "\n")
	for _, line := range lines {
		line = strings.TrimSpace(line)
		n := utf8.RuneCountInString(line)
		if n > 10 && n < 100 && !enumeratorLine.MatchString(line) && !allCapsLine.MatchString(line) {
			return line
		}
	}
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			return truncateRunes(line, 80)
		}
	}
	return "extracted product"
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}

// Confidence combines the best brand and reference scores with the number of
// characteristics found.
func Confidence(brand, reference float64, characteristics int) float64 {
	c := 0.4*brand + 0.4*reference + 0.2*math.Min(float64(characteristics)/5, 1)
	return math.Max(0, math.Min(c, 1))
}
