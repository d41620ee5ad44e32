package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/shohin/internal/models"
)

// SQLiteStorage implements Storage using SQLite. Products are stored as JSON
// with their brand, reference and category copied into indexed columns.
type SQLiteStorage struct {
	db   *sql.DB
	path string
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db, path: dbPath}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		path TEXT NOT NULL,
		name TEXT,
		type TEXT,
		size INTEGER,
		checksum TEXT,
		language TEXT,
		status TEXT NOT NULL,
		error TEXT,
		processing_ms INTEGER,
		processed_at TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_documents_processed_at ON documents(processed_at);

	CREATE TABLE IF NOT EXISTS products (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL,
		document_id TEXT NOT NULL,
		brand TEXT,
		reference TEXT,
		category TEXT,
		data TEXT NOT NULL,
		created_at TIMESTAMP,
		FOREIGN KEY (document_id) REFERENCES documents(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_products_id ON products(id);
	CREATE INDEX IF NOT EXISTS idx_products_document_id ON products(document_id);
	CREATE INDEX IF NOT EXISTS idx_products_brand ON products(brand);
	CREATE INDEX IF NOT EXISTS idx_products_reference ON products(reference);
	`
	_, err := db.Exec(schema)
	return err
}

// SaveDocument upserts doc and replaces its products in one transaction.
func (s *SQLiteStorage) SaveDocument(ctx context.Context, doc *models.Document) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO documents (id, path, name, type, size, checksum, language, status, error, processing_ms, processed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			path = excluded.path, name = excluded.name, type = excluded.type, size = excluded.size,
			checksum = excluded.checksum, language = excluded.language, status = excluded.status,
			error = excluded.error, processing_ms = excluded.processing_ms, processed_at = excluded.processed_at`,
		doc.ID, doc.Path, doc.Name, string(doc.Type), doc.Size, doc.Checksum, doc.Language,
		string(doc.Status), doc.Error, doc.ProcessingTime.Milliseconds(), doc.ProcessedAt,
	); err != nil {
		return fmt.Errorf("failed to store document: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM products WHERE document_id = ?`, doc.ID); err != nil {
		return fmt.Errorf("failed to clear products: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO products (id, document_id, brand, reference, category, data, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, p := range doc.Products {
		data, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("failed to marshal product %s: %w", p.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, p.ID, doc.ID, p.Brand.NormalizedName, p.Reference.NormalizedValue,
			p.Category, string(data), p.CreatedAt); err != nil {
			return fmt.Errorf("failed to store product %s: %w", p.ID, err)
		}
	}
	return tx.Commit()
}

const documentColumns = `id, path, name, type, size, checksum, language, status, error, processing_ms, processed_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*models.Document, error) {
	var (
		doc          models.Document
		docType      string
		status       string
		lang, errMsg sql.NullString
		processingMS int64
		processedAt  sql.NullTime
	)
	if err := row.Scan(&doc.ID, &doc.Path, &doc.Name, &docType, &doc.Size, &doc.Checksum, &lang,
		&status, &errMsg, &processingMS, &processedAt); err != nil {
		return nil, err
	}
	doc.Type = models.DocumentType(docType)
	doc.Status = models.DocumentStatus(status)
	doc.Language = lang.String
	doc.Error = errMsg.String
	doc.ProcessingTime = time.Duration(processingMS) * time.Millisecond
	doc.ProcessedAt = processedAt.Time
	return &doc, nil
}

// GetDocument returns a document by ID with its products.
func (s *SQLiteStorage) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	doc, err := scanDocument(s.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	doc.Products, err = s.queryProducts(ctx,
		`SELECT data FROM products WHERE document_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// ListDocuments returns documents with offset and limit, without products.
func (s *SQLiteStorage) ListDocuments(ctx context.Context, offset, limit int) ([]*models.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM documents ORDER BY processed_at DESC LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*models.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// DeleteDocument removes a document and its products.
func (s *SQLiteStorage) DeleteDocument(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	return err
}

// GetProduct returns the first stored product with the given ID.
func (s *SQLiteStorage) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	products, err := s.queryProducts(ctx, `SELECT data FROM products WHERE id = ? ORDER BY seq LIMIT 1`, id)
	if err != nil {
		return nil, err
	}
	if len(products) == 0 {
		return nil, fmt.Errorf("product %s: %w", id, ErrNotFound)
	}
	return products[0], nil
}

// ListProducts returns products in insertion order.
func (s *SQLiteStorage) ListProducts(ctx context.Context, offset, limit int) ([]*models.Product, error) {
	return s.queryProducts(ctx, `SELECT data FROM products ORDER BY seq LIMIT ? OFFSET ?`, limit, offset)
}

func (s *SQLiteStorage) queryProducts(ctx context.Context, query string, args ...any) ([]*models.Product, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := []*models.Product{}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var p models.Product
		if err := json.Unmarshal([]byte(data), &p); err != nil {
			return nil, fmt.Errorf("failed to unmarshal product: %w", err)
		}
		products = append(products, &p)
	}
	return products, rows.Err()
}

// CountDocuments returns the total number of documents.
func (s *SQLiteStorage) CountDocuments(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&count)
	return count, err
}

// CountProducts returns the total number of products.
func (s *SQLiteStorage) CountProducts(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM products`).Scan(&count)
	return count, err
}

// SizeBytes returns the on-disk size of the database with its WAL files.
// Missing files count as zero.
func (s *SQLiteStorage) SizeBytes() (int64, error) {
	var total int64
	for _, p := range []string{s.path, s.path + "-wal", s.path + "-shm"} {
		info, err := os.Stat(p)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return 0, err
		}
		total += info.Size()
	}
	return total, nil
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
