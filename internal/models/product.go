// Package models defines core data structures for products, documents, queries, and search results.
package models

import "time"

// CharacteristicCategory classifies a product characteristic.
type CharacteristicCategory string

const (
	CategoryDimension  CharacteristicCategory = "dimension"
	CategoryWeight     CharacteristicCategory = "weight"
	CategoryMaterial   CharacteristicCategory = "material"
	CategoryColor      CharacteristicCategory = "color"
	CategoryElectrical CharacteristicCategory = "electrical"
	CategoryPower      CharacteristicCategory = "power"
	CategoryOther      CharacteristicCategory = "other"
)

// DefaultCurrency is assigned to products that carry no explicit currency.
const DefaultCurrency = "EUR"

// Brand is a manufacturer name extracted from a section.
type Brand struct {
	Name           string   `json:"name"`
	NormalizedName string   `json:"normalized_name"`
	Aliases        []string `json:"aliases"`
	Confidence     float64  `json:"confidence"`
}

// Reference is a product code extracted from a section.
type Reference struct {
	Value           string  `json:"value"`
	NormalizedValue string  `json:"normalized_value"`
	FormatPattern   string  `json:"format_pattern"`
	Confidence      float64 `json:"confidence"`
}

// Characteristic is a named attribute with an optional unit.
type Characteristic struct {
	Name            string                 `json:"name"`
	Value           string                 `json:"value"`
	Unit            string                 `json:"unit,omitempty"`
	Category        CharacteristicCategory `json:"category"`
	NormalizedName  string                 `json:"normalized_name"`
	NormalizedValue string                 `json:"normalized_value"`
}

// Key returns the deduplication key of the characteristic.
func (c Characteristic) Key() string {
	return c.NormalizedName + "\x00" + c.NormalizedValue
}

// Product is a structured record extracted from one document section.
// A product always carries both a brand and a reference.
type Product struct {
	ID                    string           `json:"id"`
	Name                  string           `json:"name"`
	Brand                 Brand            `json:"brand"`
	Reference             Reference        `json:"reference"`
	Characteristics       []Characteristic `json:"characteristics"`
	Description           string           `json:"description,omitempty"`
	Category              string           `json:"category,omitempty"`
	Price                 *float64         `json:"price,omitempty"`
	Currency              string           `json:"currency"`
	SourceDocument        string           `json:"source_document"`
	ExtractionConfidence  float64          `json:"extraction_confidence"`
	BrandAlternatives     []Brand          `json:"brand_alternatives,omitempty"`
	ReferenceAlternatives []Reference      `json:"reference_alternatives,omitempty"`
	CreatedAt             time.Time        `json:"created_at"`
	UpdatedAt             time.Time        `json:"updated_at"`
}

// PriceOrZero returns the product price, treating a missing price as zero.
func (p *Product) PriceOrZero() float64 {
	if p.Price == nil {
		return 0
	}
	return *p.Price
}

// Clone returns a deep copy of p.
func (p *Product) Clone() *Product {
	if p == nil {
		return nil
	}
	c := *p
	c.Brand.Aliases = append([]string(nil), p.Brand.Aliases...)
	if c.Brand.Aliases == nil {
		c.Brand.Aliases = []string{}
	}
	c.Characteristics = append([]Characteristic(nil), p.Characteristics...)
	if p.BrandAlternatives != nil {
		c.BrandAlternatives = make([]Brand, len(p.BrandAlternatives))
		for i, b := range p.BrandAlternatives {
			b.Aliases = append([]string{}, b.Aliases...)
			c.BrandAlternatives[i] = b
		}
	}
	c.ReferenceAlternatives = append([]Reference(nil), p.ReferenceAlternatives...)
	if p.Price != nil {
		v := *p.Price
		c.Price = &v
	}
	return &c
}
