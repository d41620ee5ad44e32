package models

import (
	"testing"
)

func TestSearchQuery_Validate(t *testing.T) {
	bad := 1.5
	low, high := 50.0, 10.0
	tests := []struct {
		name    string
		query   *SearchQuery
		wantErr bool
	}{
		{"empty query", &SearchQuery{Query: ""}, true},
		{"blank query", &SearchQuery{Query: "   "}, true},
		{"valid query", &SearchQuery{Query: "hello"}, false},
		{"sets default limit", &SearchQuery{Query: "x", MaxResults: 0}, false},
		{"caps limit at 100", &SearchQuery{Query: "x", MaxResults: 200}, false},
		{"unknown stage", &SearchQuery{Query: "x", Stage: "colour_matching"}, true},
		{"threshold out of range", &SearchQuery{Query: "x", SimilarityThreshold: &bad}, true},
		{"inverted price range", &SearchQuery{Query: "x", Filters: Filters{MinPrice: &low, MaxPrice: &high}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.query.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if tt.query.MaxResults == 0 {
				t.Error("expected default limit to be set")
			}
			if tt.query.MaxResults > MaxResultsCap {
				t.Errorf("expected limit capped at %d, got %d", MaxResultsCap, tt.query.MaxResults)
			}
			if tt.query.Stage != StageGeneral {
				t.Errorf("expected empty stage to default to general, got %q", tt.query.Stage)
			}
			if tt.query.Threshold() != DefaultSimilarityThreshold {
				t.Errorf("expected default threshold, got %v", tt.query.Threshold())
			}
		})
	}
}

func TestParseStage(t *testing.T) {
	for in, want := range map[string]Stage{
		"":                        StageGeneral,
		"general":                 StageGeneral,
		"BRAND_MATCHING":          StageBrand,
		"reference_matching":      StageReference,
		" characteristic_matching": StageCharacteristic,
	} {
		got, err := ParseStage(in)
		if err != nil {
			t.Fatalf("ParseStage(%q): %v", in, err)
		}
		if got != want {
			t.Errorf("ParseStage(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFilters_Match(t *testing.T) {
	price := 120.0
	p := &Product{Brand: Brand{Name: "BOSCH"}, Category: "tools", Price: &price}
	noPrice := &Product{Brand: Brand{Name: "BOSCH"}}

	brand, other := "BOSCH", "Makita"
	cat := "tools"
	min, max := 100.0, 150.0
	cheap := 10.0

	if !(Filters{}).Match(p) {
		t.Error("empty filters should match")
	}
	if !(Filters{BrandName: &brand, Category: &cat, MinPrice: &min, MaxPrice: &max}).Match(p) {
		t.Error("all filters satisfied should match")
	}
	if (Filters{BrandName: &other}).Match(p) {
		t.Error("brand mismatch should not match")
	}
	if (Filters{MinPrice: &min}).Match(noPrice) {
		t.Error("missing price counts as 0 and should fail min_price")
	}
	if !(Filters{MaxPrice: &cheap}).Match(noPrice) {
		t.Error("missing price counts as 0 and should pass max_price")
	}
}

func TestSearchQuery_Clone(t *testing.T) {
	threshold, brand, minPrice := 0.5, "BOSCH", 10.0
	q := &SearchQuery{
		Query:               "perceuse",
		SimilarityThreshold: &threshold,
		Filters:             Filters{BrandName: &brand, MinPrice: &minPrice},
	}
	c := q.Clone()
	*c.SimilarityThreshold = 0.9
	*c.Filters.BrandName = "MAKITA"
	*c.Filters.MinPrice = 20
	if err := c.Validate(); err != nil {
		t.Fatal(err)
	}
	if threshold != 0.5 || brand != "BOSCH" || minPrice != 10 {
		t.Errorf("clone shares state with the original: %v %q %v", threshold, brand, minPrice)
	}
	if q.MaxResults != 0 || c.MaxResults != DefaultMaxResults {
		t.Errorf("MaxResults: original %d, clone %d", q.MaxResults, c.MaxResults)
	}
	if c.Filters.Category != nil || c.Filters.MaxPrice != nil {
		t.Error("nil filters should stay nil")
	}
}
