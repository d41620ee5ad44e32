package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/hyperjump/shohin/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStorage {
	t.Helper()
	store, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "nested", "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testDocument(id string, products ...*models.Product) *models.Document {
	return &models.Document{
		ID:             id,
		Path:           "/data/" + id + ".pdf",
		Name:           id + ".pdf",
		Type:           models.DocumentPDF,
		Size:           1024,
		Checksum:       "abc123",
		Language:       "fr",
		Status:         models.StatusCompleted,
		Products:       products,
		ProcessingTime: 1500 * time.Millisecond,
		ProcessedAt:    time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func testProduct(id, brand string) *models.Product {
	price := 99.5
	return &models.Product{
		ID:        id,
		Name:      "Perceuse " + brand,
		Brand:     models.Brand{Name: brand, NormalizedName: brand, Aliases: []string{}, Confidence: 0.9},
		Reference: models.Reference{Value: "GSB-1", NormalizedValue: "GSB1", Confidence: 0.95},
		Characteristics: []models.Characteristic{
			{Name: "puissance", Value: "120", Unit: "W", Category: models.CategoryPower},
		},
		Price:    &price,
		Currency: models.DefaultCurrency,
	}
}

func TestSQLiteStorage_Documents(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	doc := testDocument("doc1", testProduct("p1", "BOSCH"), testProduct("p2", "MAKITA"))
	if err := store.SaveDocument(ctx, doc); err != nil {
		t.Fatal(err)
	}

	got, err := store.GetDocument(ctx, "doc1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "doc1.pdf" || got.Type != models.DocumentPDF || got.Language != "fr" {
		t.Errorf("got %+v", got)
	}
	if got.ProcessingTime != 1500*time.Millisecond {
		t.Errorf("ProcessingTime = %v", got.ProcessingTime)
	}
	if !got.ProcessedAt.Equal(doc.ProcessedAt) {
		t.Errorf("ProcessedAt = %v, want %v", got.ProcessedAt, doc.ProcessedAt)
	}
	if len(got.Products) != 2 || got.Products[0].ID != "p1" || got.Products[1].ID != "p2" {
		t.Fatalf("products = %+v", got.Products)
	}
	if got.Products[0].Price == nil || *got.Products[0].Price != 99.5 {
		t.Errorf("price not round-tripped: %+v", got.Products[0].Price)
	}

	// saving again replaces the product set
	doc.Products = []*models.Product{testProduct("p3", "DEWALT")}
	if err := store.SaveDocument(ctx, doc); err != nil {
		t.Fatal(err)
	}
	got, _ = store.GetDocument(ctx, "doc1")
	if len(got.Products) != 1 || got.Products[0].ID != "p3" {
		t.Errorf("expected products replaced, got %+v", got.Products)
	}

	list, err := store.ListDocuments(ctx, 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || len(list[0].Products) != 0 {
		t.Errorf("expected 1 document without products, got %+v", list)
	}

	if err := store.DeleteDocument(ctx, "doc1"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.GetDocument(ctx, "doc1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if n, _ := store.CountProducts(ctx); n != 0 {
		t.Errorf("expected products deleted with document, got %d", n)
	}
}

func TestSQLiteStorage_FailedDocument(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	doc := testDocument("bad")
	doc.Failed(errors.New("unsupported file type"))
	if err := store.SaveDocument(ctx, doc); err != nil {
		t.Fatal(err)
	}
	got, err := store.GetDocument(ctx, "bad")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.StatusError || got.Error != "unsupported file type" || len(got.Products) != 0 {
		t.Errorf("got %+v", got)
	}
}

func TestSQLiteStorage_Products(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.SaveDocument(ctx, testDocument("a", testProduct("p1", "BOSCH"))); err != nil {
		t.Fatal(err)
	}
	if err := store.SaveDocument(ctx, testDocument("b", testProduct("p2", "MAKITA"), testProduct("p3", "DEWALT"))); err != nil {
		t.Fatal(err)
	}

	p, err := store.GetProduct(ctx, "p2")
	if err != nil {
		t.Fatal(err)
	}
	if p.Brand.NormalizedName != "MAKITA" || len(p.Characteristics) != 1 {
		t.Errorf("got %+v", p)
	}
	if _, err := store.GetProduct(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	page, err := store.ListProducts(ctx, 1, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 2 || page[0].ID != "p2" || page[1].ID != "p3" {
		t.Errorf("unexpected page %+v", page)
	}
}

func TestSQLiteStorage_Counts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	n, err := store.CountDocuments(ctx)
	if err != nil || n != 0 {
		t.Errorf("CountDocuments: %v, %d", err, n)
	}
	_ = store.SaveDocument(ctx, testDocument("x", testProduct("p1", "BOSCH")))
	n, _ = store.CountDocuments(ctx)
	if n != 1 {
		t.Errorf("expected 1 document, got %d", n)
	}
	n, _ = store.CountProducts(ctx)
	if n != 1 {
		t.Errorf("expected 1 product, got %d", n)
	}
	size, err := store.SizeBytes()
	if err != nil || size <= 0 {
		t.Errorf("SizeBytes: %v, %d", err, size)
	}
}
