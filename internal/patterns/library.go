// Package patterns holds the declarative extraction rules used to find brands,
// references, and characteristics in product text.
package patterns

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"regexp"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed patterns.yaml
var defaultTable []byte

// ErrInvalidPattern is returned when a rule in the table cannot be used.
var ErrInvalidPattern = errors.New("invalid extraction pattern")

// Rule is the declarative form of an extraction pattern.
type Rule struct {
	Name       string  `yaml:"name"`
	Pattern    string  `yaml:"pattern"`
	Confidence float64 `yaml:"confidence"`
}

// Table is the on-disk shape of a pattern library.
type Table struct {
	Brands          []Rule `yaml:"brands"`
	References      []Rule `yaml:"references"`
	Characteristics []Rule `yaml:"characteristics"`
}

// Pattern is a compiled extraction rule.
type Pattern struct {
	Name       string
	Regexp     *regexp.Regexp
	Confidence float64
}

// Library is an immutable, ordered set of compiled patterns per entity kind.
type Library struct {
	brands          []Pattern
	references      []Pattern
	characteristics []Pattern
}

var (
	defaultOnce sync.Once
	defaultLib  *Library
	defaultErr  error
)

// Default returns the built-in library. It is compiled once.
func Default() (*Library, error) {
	defaultOnce.Do(func() {
		defaultLib, defaultErr = Load(bytes.NewReader(defaultTable))
	})
	return defaultLib, defaultErr
}

// Load parses and compiles a YAML pattern table.
func Load(r io.Reader) (*Library, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read pattern table: %w", err)
	}
	var table Table
	if err := yaml.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("failed to parse pattern table: %w", err)
	}
	return Compile(table)
}

// Compile validates and compiles every rule of table, keeping its order.
func Compile(table Table) (*Library, error) {
	brands, err := compileRules("brands", table.Brands, 1)
	if err != nil {
		return nil, err
	}
	refs, err := compileRules("references", table.References, 1)
	if err != nil {
		return nil, err
	}
	chars, err := compileRules("characteristics", table.Characteristics, 2)
	if err != nil {
		return nil, err
	}
	return &Library{brands: brands, references: refs, characteristics: chars}, nil
}

func compileRules(kind string, rules []Rule, minGroups int) ([]Pattern, error) {
	out := make([]Pattern, 0, len(rules))
	seen := make(map[string]struct{}, len(rules))
	for _, r := range rules {
		if r.Name == "" {
			return nil, fmt.Errorf("%w: %s rule without a name", ErrInvalidPattern, kind)
		}
		if _, dup := seen[r.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate %s rule %q", ErrInvalidPattern, kind, r.Name)
		}
		seen[r.Name] = struct{}{}
		if r.Confidence <= 0 || r.Confidence > 1 {
			return nil, fmt.Errorf("%w: %s rule %q confidence %v outside (0,1]", ErrInvalidPattern, kind, r.Name, r.Confidence)
		}
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("%w: %s rule %q: %v", ErrInvalidPattern, kind, r.Name, err)
		}
		if n := re.NumSubexp(); n < minGroups || n > 3 {
			return nil, fmt.Errorf("%w: %s rule %q has %d groups", ErrInvalidPattern, kind, r.Name, n)
		}
		out = append(out, Pattern{Name: r.Name, Regexp: re, Confidence: r.Confidence})
	}
	return out, nil
}

// BrandPatterns returns the brand rules in evaluation order.
func (l *Library) BrandPatterns() []Pattern {
	return append([]Pattern(nil), l.brands...)
}

// ReferencePatterns returns the reference rules in evaluation order.
func (l *Library) ReferencePatterns() []Pattern {
	return append([]Pattern(nil), l.references...)
}

// CharacteristicPatterns returns the characteristic rules in evaluation order.
func (l *Library) CharacteristicPatterns() []Pattern {
	return append([]Pattern(nil), l.characteristics...)
}
