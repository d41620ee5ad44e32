package models

import (
	"errors"
	"fmt"
	"strings"
)

// Stage selects the matching strategy for a search.
type Stage string

const (
	StageBrand          Stage = "brand_matching"
	StageReference      Stage = "reference_matching"
	StageCharacteristic Stage = "characteristic_matching"
	StageGeneral        Stage = "general"
)

// ErrEmptyQuery is returned when a search query has no text.
var ErrEmptyQuery = errors.New("query cannot be empty")

// ParseStage maps a stage name to a Stage. The empty string means general.
func ParseStage(s string) (Stage, error) {
	switch Stage(strings.ToLower(strings.TrimSpace(s))) {
	case "", StageGeneral:
		return StageGeneral, nil
	case StageBrand:
		return StageBrand, nil
	case StageReference:
		return StageReference, nil
	case StageCharacteristic:
		return StageCharacteristic, nil
	}
	return "", fmt.Errorf("unknown stage %q", s)
}

// Filters are post-ranking constraints. Nil fields are not applied.
type Filters struct {
	BrandName *string  `json:"brand_name,omitempty"`
	Category  *string  `json:"category,omitempty"`
	MinPrice  *float64 `json:"min_price,omitempty"`
	MaxPrice  *float64 `json:"max_price,omitempty"`
}

// Empty reports whether no filter is set.
func (f Filters) Empty() bool {
	return f.BrandName == nil && f.Category == nil && f.MinPrice == nil && f.MaxPrice == nil
}

// Match reports whether p satisfies every set filter. A missing price counts as 0.
func (f Filters) Match(p *Product) bool {
	if f.BrandName != nil && p.Brand.Name != *f.BrandName {
		return false
	}
	if f.Category != nil && p.Category != *f.Category {
		return false
	}
	price := p.PriceOrZero()
	if f.MinPrice != nil && price < *f.MinPrice {
		return false
	}
	if f.MaxPrice != nil && price > *f.MaxPrice {
		return false
	}
	return true
}

const (
	DefaultMaxResults          = 10
	MaxResultsCap              = 100
	DefaultSimilarityThreshold = 0.7
)

// SearchQuery represents a staged search request.
type SearchQuery struct {
	Query               string   `json:"query"`
	Stage               Stage    `json:"stage,omitempty"`
	MaxResults          int      `json:"max_results,omitempty"`
	SimilarityThreshold *float64 `json:"similarity_threshold,omitempty"`
	Filters             Filters  `json:"filters"`
}

// Clone returns a copy of q whose pointer fields are not shared with q.
func (q *SearchQuery) Clone() *SearchQuery {
	c := *q
	c.SimilarityThreshold = clonePtr(q.SimilarityThreshold)
	c.Filters = Filters{
		BrandName: clonePtr(q.Filters.BrandName),
		Category:  clonePtr(q.Filters.Category),
		MinPrice:  clonePtr(q.Filters.MinPrice),
		MaxPrice:  clonePtr(q.Filters.MaxPrice),
	}
	return &c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Validate ensures the search query has valid fields and sets defaults.
func (q *SearchQuery) Validate() error {
	q.Query = strings.TrimSpace(q.Query)
	if q.Query == "" {
		return ErrEmptyQuery
	}
	stage, err := ParseStage(string(q.Stage))
	if err != nil {
		return err
	}
	q.Stage = stage
	if q.MaxResults <= 0 {
		q.MaxResults = DefaultMaxResults
	}
	if q.MaxResults > MaxResultsCap {
		q.MaxResults = MaxResultsCap
	}
	if q.SimilarityThreshold == nil {
		t := DefaultSimilarityThreshold
		q.SimilarityThreshold = &t
	}
	if *q.SimilarityThreshold < 0 || *q.SimilarityThreshold > 1 {
		return fmt.Errorf("similarity_threshold must be within [0, 1], got %v", *q.SimilarityThreshold)
	}
	if q.Filters.MinPrice != nil && q.Filters.MaxPrice != nil && *q.Filters.MinPrice > *q.Filters.MaxPrice {
		return fmt.Errorf("min_price %v exceeds max_price %v", *q.Filters.MinPrice, *q.Filters.MaxPrice)
	}
	return nil
}

// Threshold returns the similarity threshold, or the default when unset.
func (q *SearchQuery) Threshold() float64 {
	if q.SimilarityThreshold == nil {
		return DefaultSimilarityThreshold
	}
	return *q.SimilarityThreshold
}
