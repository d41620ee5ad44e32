package index

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/hyperjump/shohin/internal/keyword"
	"github.com/hyperjump/shohin/internal/models"
	"github.com/hyperjump/shohin/internal/normalize"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// CharacteristicThreshold is the similarity floor of characteristic matching.
// It overrides whatever threshold the caller passes.
const CharacteristicThreshold = 0.8

// predicate selects the candidates a stage ranks.
type predicate func(*entry) bool

type scored struct {
	pos   int
	score float64
}

// Search ranks indexed products against query using the strategy of stage.
// Candidates are ranked, then filtered by filters, then cut at the
// similarity threshold and truncated to maxResults. Backend failures are
// returned as *RetrievalError.
func (h *HybridIndex) Search(ctx context.Context, query string, stage models.Stage, maxResults int, threshold float64, filters models.Filters) ([]Match, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, &RetrievalError{Query: query, Stage: stage, Err: models.ErrEmptyQuery}
	}
	if maxResults <= 0 {
		maxResults = models.DefaultMaxResults
	}
	c := h.data.Load()
	if len(c.entries) == 0 {
		return nil, nil
	}

	var (
		matches []Match
		err     error
	)
	switch stage {
	case models.StageBrand:
		matches, err = h.semanticStage(ctx, c, query, brandPredicate(query), maxResults, threshold, filters)
	case models.StageReference:
		matches, err = h.semanticStage(ctx, c, query, referencePredicate(query), maxResults, threshold, filters)
	case models.StageCharacteristic:
		matches, err = h.semanticStage(ctx, c, query, nil, maxResults, CharacteristicThreshold, filters)
	case models.StageGeneral, "":
		matches, err = h.hybridStage(ctx, c, query, maxResults, threshold, filters)
	default:
		err = fmt.Errorf("unknown stage %q", stage)
	}
	if err != nil {
		return nil, &RetrievalError{Query: query, Stage: stage, Err: err}
	}
	h.logger.Debug("Index search",
		zap.String("query", query),
		zap.String("stage", string(stage)),
		zap.Int("results", len(matches)))
	return matches, nil
}

// brandPredicate accepts products whose brand name or normalized brand name
// contains the query, ignoring case.
func brandPredicate(query string) predicate {
	q := strings.ToLower(query)
	return func(e *entry) bool {
		b := e.product.Brand
		return strings.Contains(strings.ToLower(b.Name), q) ||
			strings.Contains(strings.ToLower(b.NormalizedName), q)
	}
}

// referencePredicate accepts products whose reference contains the query or
// whose normalized reference contains the normalized query.
func referencePredicate(query string) predicate {
	q := strings.ToUpper(query)
	nq := normalizeReferenceQuery(query)
	return func(e *entry) bool {
		r := e.product.Reference
		if strings.Contains(strings.ToUpper(r.Value), q) {
			return true
		}
		return nq != "" && strings.Contains(r.NormalizedValue, nq)
	}
}

func normalizeReferenceQuery(query string) string {
	return strings.NewReplacer("-", "", " ", "").Replace(strings.ToUpper(query))
}

// semanticStage ranks the candidates accepted by pred by similarity to query.
func (h *HybridIndex) semanticStage(ctx context.Context, c *corpus, query string, pred predicate, maxResults int, threshold float64, filters models.Filters) ([]Match, error) {
	ranked, err := h.semantic(ctx, c, query, pred)
	if err != nil {
		return nil, err
	}
	out := make([]Match, 0, min(maxResults, len(ranked)))
	seen := make(map[string]struct{})
	for _, r := range ranked {
		p := c.entries[r.pos].product
		if !filters.Match(p) || r.score < threshold || !firstOf(seen, p.ID) {
			continue
		}
		out = append(out, Match{Product: p.Clone(), Score: r.score, SemanticScore: r.score})
		if len(out) == maxResults {
			break
		}
	}
	return out, nil
}

// hybridStage fuses semantic and lexical scores over the union of both
// candidate sets. Semantic candidates must reach threshold; lexical
// candidates need a positive score.
func (h *HybridIndex) hybridStage(ctx context.Context, c *corpus, query string, maxResults int, threshold float64, filters models.Filters) ([]Match, error) {
	var semantic, lexical []scored
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		semantic, err = h.semantic(gctx, c, query, nil)
		return err
	})
	g.Go(func() error {
		var err error
		lexical, err = h.lexicalScores(gctx, c, query)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	semScores := make(map[int]float64, len(semantic))
	for _, r := range semantic {
		if r.score >= threshold && filters.Match(c.entries[r.pos].product) {
			semScores[r.pos] = r.score
		}
	}
	lexScores := make(map[int]float64, len(lexical))
	for _, r := range lexical {
		if filters.Match(c.entries[r.pos].product) {
			lexScores[r.pos] = r.score
		}
	}

	combined := fuse(semScores, lexScores)
	out := make([]Match, 0, min(maxResults, len(combined)))
	seen := make(map[string]struct{})
	for _, f := range combined {
		p := c.entries[f.pos].product
		if !firstOf(seen, p.ID) {
			continue
		}
		out = append(out, Match{
			Product:       p.Clone(),
			Score:         f.score,
			SemanticScore: f.semantic,
			LexicalScore:  f.lexical,
		})
		if len(out) == maxResults {
			break
		}
	}
	return out, nil
}

// firstOf records id in seen and reports whether it was new. Entries of a
// product added more than once share its id; only the best ranked one is
// returned. Products without an id are never collapsed.
func firstOf(seen map[string]struct{}, id string) bool {
	if id == "" {
		return true
	}
	if _, ok := seen[id]; ok {
		return false
	}
	seen[id] = struct{}{}
	return true
}

// semantic returns every candidate of c accepted by pred, by descending similarity.
func (h *HybridIndex) semantic(ctx context.Context, c *corpus, query string, pred predicate) ([]scored, error) {
	vec, err := h.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	filter := func(key string) bool {
		pos, err := strconv.Atoi(key)
		if err != nil || pos < 0 || pos >= len(c.entries) {
			return false
		}
		return pred == nil || pred(c.entries[pos])
	}
	results, err := h.vectors.Search(ctx, vec, 0, filter)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	out := make([]scored, 0, len(results))
	for _, r := range results {
		pos, _ := strconv.Atoi(r.Key)
		out = append(out, scored{pos: pos, score: r.Score})
	}
	return out, nil
}

// lexicalScores returns the positive normalized lexical scores of c's
// entries. It is empty until the first lexical build.
func (h *HybridIndex) lexicalScores(ctx context.Context, c *corpus, query string) ([]scored, error) {
	h.lexMu.RLock()
	defer h.lexMu.RUnlock()
	if h.lexical == nil {
		return nil, nil
	}
	raw, err := h.lexical.Score(ctx, normalize.Tokens(query))
	if err != nil {
		return nil, fmt.Errorf("lexical search failed: %w", err)
	}
	out := make([]scored, 0, len(raw))
	for pos, s := range raw {
		if s <= 0 || pos >= len(c.entries) {
			continue
		}
		out = append(out, scored{pos: pos, score: keyword.NormalizeScore(s)})
	}
	return out, nil
}
