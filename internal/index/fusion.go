package index

import "sort"

const (
	// SemanticWeight and LexicalWeight weigh the two scores of a general search.
	SemanticWeight = 0.7
	LexicalWeight  = 0.3
)

// fused holds an entry position with its component and combined scores.
type fused struct {
	pos      int
	score    float64
	semantic float64
	lexical  float64
}

// fuse merges semantic and lexical scores keyed by entry position. A position
// missing from one map contributes 0 for that term. Results are sorted by
// combined score; ties keep corpus order.
func fuse(semantic, lexical map[int]float64) []fused {
	byPos := make(map[int]*fused, len(semantic)+len(lexical))
	for pos, s := range semantic {
		byPos[pos] = &fused{pos: pos, semantic: s}
	}
	for pos, s := range lexical {
		if f, ok := byPos[pos]; ok {
			f.lexical = s
		} else {
			byPos[pos] = &fused{pos: pos, lexical: s}
		}
	}
	out := make([]fused, 0, len(byPos))
	for _, f := range byPos {
		f.score = SemanticWeight*f.semantic + LexicalWeight*f.lexical
		out = append(out, *f)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].score != out[j].score {
			return out[i].score > out[j].score
		}
		return out[i].pos < out[j].pos
	})
	return out
}
