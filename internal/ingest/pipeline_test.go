package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hyperjump/shohin/internal/cache"
	"github.com/hyperjump/shohin/internal/embedding"
	"github.com/hyperjump/shohin/internal/extraction"
	"github.com/hyperjump/shohin/internal/fileid"
	"github.com/hyperjump/shohin/internal/index"
	"github.com/hyperjump/shohin/internal/loader"
	"github.com/hyperjump/shohin/internal/models"
	"github.com/hyperjump/shohin/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

const fiche = "Perceuse visseuse sans fil avec batterie et chargeur de la gamme pro\n" +
	"Marque: BOSCH\n" +
	"Référence: GSB120-LI\n" +
	"Puissance: 120W\n"

type fixture struct {
	pipeline *Pipeline
	index    *index.HybridIndex
	store    *storage.SQLiteStorage
	cache    *cache.MemoryClient
	dir      string
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewSQLiteStorage(filepath.Join(dir, "db", "shohin.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	idx, err := index.New(context.Background(), embedding.NewMockEmbedder(64))
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })

	ex, err := extraction.New(nil)
	require.NoError(t, err)
	t.Cleanup(ex.Close)

	c := cache.NewMemoryClient(10, time.Minute)
	opts = append([]Option{WithStorage(store), WithCache(c), WithWorkers(2)}, opts...)
	return &fixture{
		pipeline: New(loader.New(), ex, idx, opts...),
		index:    idx,
		store:    store,
		cache:    c,
		dir:      dir,
	}
}

func (f *fixture) write(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(f.dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestIngestFile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	path := f.write(t, "fiche.txt", fiche)

	doc, err := f.pipeline.IngestFile(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, doc.Status)
	assert.Equal(t, fileid.FileDocID(path), doc.ID)
	assert.Equal(t, models.DocumentText, doc.Type)
	assert.Equal(t, "fr", doc.Language)
	assert.Equal(t, fileid.Checksum([]byte(fiche)), doc.Checksum)
	require.Len(t, doc.Products, 1)
	assert.Equal(t, "BOSCH", doc.Products[0].Brand.NormalizedName)
	assert.Equal(t, path, doc.Products[0].SourceDocument)

	stored, err := f.store.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Products, 1)
	assert.Equal(t, 1, f.index.Stats().DocumentCount)
}

func TestIngestFile_unchangedIsSkipped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	path := f.write(t, "fiche.txt", fiche)

	_, err := f.pipeline.IngestFile(ctx, path)
	require.NoError(t, err)
	summary, err := f.pipeline.IngestFiles(ctx, []string{path})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 1, f.index.Stats().DocumentCount)

	// a changed file is processed again
	f.write(t, "fiche.txt", strings.Replace(fiche, "GSB120-LI", "GSB180-LI", 1))
	doc, err := f.pipeline.IngestFile(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, "GSB180LI", doc.Products[0].Reference.NormalizedValue)
	assert.Equal(t, 2, f.index.Stats().DocumentCount)
}

func TestIngestFile_failuresAreDocuments(t *testing.T) {
	f := newFixture(t, WithMaxFileSize(64))
	ctx := context.Background()

	cases := map[string]struct {
		path string
		want error
	}{
		"missing":     {path: filepath.Join(f.dir, "missing.txt")},
		"unsupported": {path: f.write(t, "setup.exe", "MZ"), want: ErrExtensionNotAllowed},
		"too large":   {path: f.write(t, "big.txt", strings.Repeat("x", 100)), want: ErrFileTooLarge},
		"corrupt":     {path: f.write(t, "broken.docx", "not a zip")},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			doc, err := f.pipeline.IngestFile(ctx, tc.path)
			require.NoError(t, err)
			assert.Equal(t, models.StatusError, doc.Status)
			assert.NotEmpty(t, doc.Error)
			assert.Empty(t, doc.Products)
			if tc.want != nil {
				assert.Contains(t, doc.Error, tc.want.Error())
			}
			stored, err := f.store.GetDocument(ctx, doc.ID)
			require.NoError(t, err)
			assert.Equal(t, models.StatusError, stored.Status)
		})
	}
}

func TestIngestFile_spreadsheetSheets(t *testing.T) {
	f := newFixture(t)
	path := filepath.Join(f.dir, "catalog.xlsx")
	x := excelize.NewFile()
	x.SetCellValue("Sheet1", "A1", "Désignation")
	x.SetCellValue("Sheet1", "A2", "Marque: BOSCH")
	x.SetCellValue("Sheet1", "A3", "Référence: GSB120-LI")
	x.SetCellValue("Sheet1", "A4", "Perceuse visseuse sans fil 18V")
	require.NoError(t, x.SaveAs(path))
	require.NoError(t, x.Close())

	doc, err := f.pipeline.IngestFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, models.DocumentExcel, doc.Type)
	require.Len(t, doc.Products, 1)
	assert.Equal(t, path+"#Sheet1", doc.Products[0].SourceDocument)
}

func TestIngestText(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	doc, err := f.pipeline.IngestText(ctx, &models.DocumentInput{Name: "inline", Content: fiche})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(doc.ID, "text:"))
	assert.Equal(t, models.StatusCompleted, doc.Status)
	require.Len(t, doc.Products, 1)
	assert.Equal(t, "inline", doc.Products[0].SourceDocument)

	doc, err = f.pipeline.IngestText(ctx, &models.DocumentInput{Content: "   "})
	require.NoError(t, err)
	assert.Equal(t, models.StatusError, doc.Status)
}

func TestIngest_invalidatesSearchCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.cache.Set(ctx, cache.SearchPrefix+"general:bosch", []byte("{}"), time.Minute))
	require.NoError(t, f.cache.Set(ctx, "other", []byte("{}"), time.Minute))

	_, err := f.pipeline.IngestText(ctx, &models.DocumentInput{Content: fiche})
	require.NoError(t, err)

	_, err = f.cache.Get(ctx, cache.SearchPrefix+"general:bosch")
	assert.ErrorIs(t, err, cache.ErrCacheMiss)
	_, err = f.cache.Get(ctx, "other")
	assert.NoError(t, err)
}

func TestIngestDirectory(t *testing.T) {
	var (
		mu   sync.Mutex
		seen []string
	)
	f := newFixture(t, WithProgress(func(d *models.Document) {
		mu.Lock()
		seen = append(seen, d.Name)
		mu.Unlock()
	}))
	f.write(t, "a.txt", fiche)
	f.write(t, "b.md", strings.Replace(fiche, "BOSCH", "MAKITA", 1))
	f.write(t, "sub/c.txt", strings.Replace(fiche, "BOSCH", "DEWALT", 1))
	f.write(t, "skip.xyz", "ignored")
	f.write(t, "empty.txt", "nothing to see here")

	summary, err := f.pipeline.IngestDirectory(context.Background(), f.dir, false)
	require.NoError(t, err)
	assert.Len(t, summary.Documents, 3)
	assert.Equal(t, 3, summary.Completed)
	assert.Equal(t, 2, summary.Products)
	assert.Len(t, seen, 3)

	summary, err = f.pipeline.IngestDirectory(context.Background(), f.dir, true)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Completed)
	assert.Equal(t, 3, summary.Skipped)
	assert.Equal(t, 3, f.index.Stats().DocumentCount)

	_, err = f.pipeline.IngestDirectory(context.Background(), filepath.Join(f.dir, "a.txt"), true)
	assert.Error(t, err)
}

func TestIngestFiles_cancelled(t *testing.T) {
	f := newFixture(t)
	path := f.write(t, "a.txt", fiche)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.pipeline.IngestFiles(ctx, []string{path, path})
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestReload(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.pipeline.IngestText(ctx, &models.DocumentInput{Content: fiche})
	require.NoError(t, err)
	_, err = f.pipeline.IngestText(ctx, &models.DocumentInput{Content: strings.Replace(fiche, "BOSCH", "MAKITA", 1)})
	require.NoError(t, err)

	fresh, err := index.New(ctx, embedding.NewMockEmbedder(64))
	require.NoError(t, err)
	defer fresh.Close()
	ex, err := extraction.New(nil)
	require.NoError(t, err)
	defer ex.Close()

	p := New(loader.New(), ex, fresh, WithStorage(f.store))
	n, err := p.Reload(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, fresh.Stats().DocumentCount)
}

func TestExtensionAllowed(t *testing.T) {
	tests := []struct {
		ext     string
		allowed []string
		want    bool
	}{
		{".pdf", []string{".pdf", ".xlsx"}, true},
		{".PDF", []string{"pdf"}, true},
		{".go", []string{".txt"}, false},
		{"", []string{".txt"}, false},
	}
	for _, tt := range tests {
		if got := extensionAllowed(tt.ext, tt.allowed); got != tt.want {
			t.Errorf("extensionAllowed(%q, %v) = %v, want %v", tt.ext, tt.allowed, got, tt.want)
		}
	}
}
