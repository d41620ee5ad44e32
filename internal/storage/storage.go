// Package storage defines the persistence interface for documents and products.
package storage

import (
	"context"
	"errors"

	"github.com/hyperjump/shohin/internal/models"
)

// ErrNotFound is returned when a document or product does not exist.
var ErrNotFound = errors.New("not found")

// Storage defines document and product persistence operations.
type Storage interface {
	// SaveDocument upserts doc and replaces the products stored for it.
	SaveDocument(ctx context.Context, doc *models.Document) error
	// GetDocument returns a document with its products.
	GetDocument(ctx context.Context, id string) (*models.Document, error)
	// ListDocuments returns documents without their products, newest first.
	ListDocuments(ctx context.Context, offset, limit int) ([]*models.Document, error)
	DeleteDocument(ctx context.Context, id string) error

	GetProduct(ctx context.Context, id string) (*models.Product, error)
	// ListProducts returns products in insertion order.
	ListProducts(ctx context.Context, offset, limit int) ([]*models.Product, error)

	CountDocuments(ctx context.Context) (int64, error)
	CountProducts(ctx context.Context) (int64, error)

	Close() error
}
