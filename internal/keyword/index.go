// Package keyword provides the lexical side of product retrieval: a corpus of
// tokenized documents ranked against query tokens.
package keyword

import (
	"context"
	"math"
)

// ScoreCeiling is the empirical raw score treated as a perfect lexical match.
const ScoreCeiling = 10.0

// Doc is one tokenized corpus entry.
type Doc struct {
	Key    string
	Tokens []string
}

// Scorer ranks a corpus against query tokens.
type Scorer interface {
	// Score returns one raw relevance score per corpus document, in corpus order.
	Score(ctx context.Context, queryTokens []string) ([]float64, error)
	Len() int
	Close() error
}

// Builder indexes a corpus snapshot. Document i is addressed by its position.
type Builder func(docs []Doc) (Scorer, error)

// NormalizeScore maps a raw score into [0, 1] by dividing by ScoreCeiling.
func NormalizeScore(raw float64) float64 {
	return math.Max(0, math.Min(1, raw/ScoreCeiling))
}
