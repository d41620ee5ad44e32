package keyword

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/whitespace"
	"github.com/blevesearch/bleve/v2/mapping"
	blevequery "github.com/blevesearch/bleve/v2/search/query"
)

const (
	tokensAnalyzer = "tokens"
	contentField   = "content"
)

// BleveCorpus is an in-memory Bleve index over a fixed set of documents.
// It is immutable once built; a changed corpus means building a new one.
type BleveCorpus struct {
	index bleve.Index
	keys  []string
}

type corpusDoc struct {
	Content string `json:"content"`
}

func newMapping() (*mapping.IndexMappingImpl, error) {
	im := bleve.NewIndexMapping()
	// documents arrive pre-tokenized: split on whitespace only, so codes like
	// "gsb120-li" stay a single term
	if err := im.AddCustomAnalyzer(tokensAnalyzer, map[string]interface{}{
		"type":          custom.Name,
		"tokenizer":     whitespace.Name,
		"token_filters": []string{lowercase.Name},
	}); err != nil {
		return nil, fmt.Errorf("failed to register analyzer: %w", err)
	}
	docMapping := bleve.NewDocumentMapping()
	textFieldMapping := bleve.NewTextFieldMapping()
	textFieldMapping.Analyzer = tokensAnalyzer
	textFieldMapping.Store = false
	docMapping.AddFieldMappingsAt(contentField, textFieldMapping)
	im.DefaultMapping = docMapping
	im.DefaultAnalyzer = tokensAnalyzer
	return im, nil
}

// BuildBleve is a Builder backed by NewBleveCorpus.
func BuildBleve(docs []Doc) (Scorer, error) {
	c, err := NewBleveCorpus(docs)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// NewBleveCorpus indexes docs in memory. Document i is addressed by its position.
func NewBleveCorpus(docs []Doc) (*BleveCorpus, error) {
	im, err := newMapping()
	if err != nil {
		return nil, err
	}
	index, err := bleve.NewMemOnly(im)
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	batch := index.NewBatch()
	keys := make([]string, len(docs))
	for i, d := range docs {
		keys[i] = d.Key
		if err := batch.Index(strconv.Itoa(i), corpusDoc{Content: strings.Join(d.Tokens, " ")}); err != nil {
			_ = index.Close()
			return nil, fmt.Errorf("failed to index document %s: %w", d.Key, err)
		}
	}
	if err := index.Batch(batch); err != nil {
		_ = index.Close()
		return nil, fmt.Errorf("failed to index corpus: %w", err)
	}
	return &BleveCorpus{index: index, keys: keys}, nil
}

// Len returns the number of documents in the corpus.
func (b *BleveCorpus) Len() int {
	return len(b.keys)
}

// Score runs a disjunction of the query tokens and returns each document's
// raw score in corpus order. Documents without a match score 0.
func (b *BleveCorpus) Score(ctx context.Context, queryTokens []string) ([]float64, error) {
	scores := make([]float64, len(b.keys))
	if len(b.keys) == 0 {
		return scores, nil
	}
	terms := make([]blevequery.Query, 0, len(queryTokens))
	seen := make(map[string]struct{}, len(queryTokens))
	for _, tok := range queryTokens {
		tok = strings.ToLower(tok)
		if _, dup := seen[tok]; dup || tok == "" {
			continue
		}
		seen[tok] = struct{}{}
		tq := bleve.NewTermQuery(tok)
		tq.SetField(contentField)
		terms = append(terms, tq)
	}
	if len(terms) == 0 {
		return scores, nil
	}
	req := bleve.NewSearchRequest(bleve.NewDisjunctionQuery(terms...))
	req.Size = len(b.keys)
	results, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}
	for _, hit := range results.Hits {
		i, err := strconv.Atoi(hit.ID)
		if err != nil || i < 0 || i >= len(scores) {
			continue
		}
		scores[i] = hit.Score
	}
	return scores, nil
}

// Close closes the Bleve index.
func (b *BleveCorpus) Close() error {
	return b.index.Close()
}
