package search

import (
	"context"
	"testing"
	"time"

	"github.com/hyperjump/shohin/internal/cache"
	"github.com/hyperjump/shohin/internal/embedding"
	"github.com/hyperjump/shohin/internal/index"
	"github.com/hyperjump/shohin/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func products() []*models.Product {
	return []*models.Product{
		{
			ID:        "p1",
			Name:      "Perceuse visseuse sans fil",
			Brand:     models.Brand{Name: "BOSCH", NormalizedName: "BOSCH", Confidence: 0.9},
			Reference: models.Reference{Value: "GSB120-LI", NormalizedValue: "GSB120LI", Confidence: 0.9},
			Currency:  models.DefaultCurrency,
		},
		{
			ID:        "p2",
			Name:      "Scie circulaire compacte",
			Brand:     models.Brand{Name: "MAKITA", NormalizedName: "MAKITA", Confidence: 0.9},
			Reference: models.Reference{Value: "HS7601J", NormalizedValue: "HS7601J", Confidence: 0.9},
			Currency:  models.DefaultCurrency,
		},
	}
}

func newIndex(t *testing.T, items []*models.Product) *index.HybridIndex {
	t.Helper()
	idx, err := index.New(context.Background(), embedding.NewMockEmbedder(64))
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	require.NoError(t, idx.Add(context.Background(), items))
	return idx
}

func threshold(v float64) *float64 { return &v }

func TestEngine_Search(t *testing.T) {
	e := NewEngine(newIndex(t, products()))

	resp, err := e.Search(context.Background(), &models.SearchQuery{
		Query:               "  bosch ",
		Stage:               models.StageBrand,
		SimilarityThreshold: threshold(0),
	})
	require.NoError(t, err)
	assert.Equal(t, "bosch", resp.Query)
	assert.Equal(t, models.StageBrand, resp.Stage)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, 1, resp.Total)
	assert.Equal(t, 1, resp.Results[0].Rank)
	assert.Equal(t, "p1", resp.Results[0].Product.ID)
	assert.False(t, resp.NoRelevantInformation)
	assert.Empty(t, resp.Message)
}

func TestEngine_Search_defaultsToGeneral(t *testing.T) {
	e := NewEngine(newIndex(t, products()))

	resp, err := e.Search(context.Background(), &models.SearchQuery{Query: "makita", SimilarityThreshold: threshold(0)})
	require.NoError(t, err)
	assert.Equal(t, models.StageGeneral, resp.Stage)
	require.NotEmpty(t, resp.Results)
	assert.Equal(t, "p2", resp.Results[0].Product.ID)
	for i, r := range resp.Results {
		assert.Equal(t, i+1, r.Rank)
	}
}

func TestEngine_Search_noRelevantInformation(t *testing.T) {
	e := NewEngine(newIndex(t, nil))

	resp, err := e.Search(context.Background(), &models.SearchQuery{Query: "bosch"})
	require.NoError(t, err)
	assert.True(t, resp.NoRelevantInformation)
	assert.Equal(t, models.NoRelevantInformationMessage, resp.Message)
	assert.NotNil(t, resp.Results)
	assert.Empty(t, resp.Results)
}

func TestEngine_Search_invalid(t *testing.T) {
	e := NewEngine(newIndex(t, products()))

	_, err := e.Search(context.Background(), &models.SearchQuery{Query: "   "})
	assert.ErrorIs(t, err, models.ErrEmptyQuery)

	_, err = e.Search(context.Background(), &models.SearchQuery{Query: "bosch", Stage: "color_matching"})
	assert.Error(t, err)

	_, err = e.Search(context.Background(), &models.SearchQuery{Query: "bosch", SimilarityThreshold: threshold(1.5)})
	assert.Error(t, err)
}

func TestEngine_Search_stageThreshold(t *testing.T) {
	e := NewEngine(newIndex(t, products()), WithStageThreshold(models.StageBrand, 0.99))

	resp, err := e.Search(context.Background(), &models.SearchQuery{Query: "BOSCH", Stage: models.StageBrand})
	require.NoError(t, err)
	assert.True(t, resp.NoRelevantInformation)

	// an explicit threshold wins over the stage default
	resp, err = e.Search(context.Background(), &models.SearchQuery{
		Query:               "BOSCH",
		Stage:               models.StageBrand,
		SimilarityThreshold: threshold(0),
	})
	require.NoError(t, err)
	assert.Len(t, resp.Results, 1)
}

func TestEngine_Search_cache(t *testing.T) {
	ctx := context.Background()
	idx := newIndex(t, products())
	c := cache.NewMemoryClient(10, time.Minute)
	e := NewEngine(idx, WithCache(c, time.Minute))

	query := func() *models.SearchQuery {
		return &models.SearchQuery{Query: "bosch", Stage: models.StageBrand, SimilarityThreshold: threshold(0)}
	}
	first, err := e.Search(ctx, query())
	require.NoError(t, err)
	assert.False(t, first.Cached)
	assert.Equal(t, 1, c.Len())

	second, err := e.Search(ctx, query())
	require.NoError(t, err)
	assert.True(t, second.Cached)
	require.Len(t, second.Results, 1)
	assert.Equal(t, first.Results[0].Product.ID, second.Results[0].Product.ID)
	assert.Equal(t, first.Results[0].Score, second.Results[0].Score)

	// new products change the key
	another := products()[0]
	another.ID = "p3"
	another.Reference = models.Reference{Value: "GSR18V", NormalizedValue: "GSR18V", Confidence: 0.9}
	require.NoError(t, idx.Add(ctx, []*models.Product{another}))
	third, err := e.Search(ctx, query())
	require.NoError(t, err)
	assert.False(t, third.Cached)
	assert.Len(t, third.Results, 2)
}

func TestEngine_Search_leavesQueryUntouched(t *testing.T) {
	e := NewEngine(newIndex(t, products()), WithStageThreshold(models.StageBrand, 0.99))

	query := &models.SearchQuery{Query: "  BOSCH ", Stage: models.StageBrand}
	resp, err := e.Search(context.Background(), query)
	require.NoError(t, err)
	assert.Equal(t, "BOSCH", resp.Query)
	assert.Nil(t, query.SimilarityThreshold)
	assert.Zero(t, query.MaxResults)
	assert.Equal(t, "  BOSCH ", query.Query)

	// the same struct reused for another stage picks up that stage's default
	query.Stage = models.StageGeneral
	query.Query = "bosch"
	resp, err = e.Search(context.Background(), query)
	require.NoError(t, err)
	assert.Nil(t, query.SimilarityThreshold)
	assert.Equal(t, models.StageGeneral, resp.Stage)
}
