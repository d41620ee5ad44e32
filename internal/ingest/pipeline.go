// Package ingest runs documents through loading, product extraction,
// persistence and indexing. Every document is processed in isolation: a
// failure marks that document as failed and the batch carries on.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/hyperjump/shohin/internal/cache"
	"github.com/hyperjump/shohin/internal/extraction"
	"github.com/hyperjump/shohin/internal/fileid"
	"github.com/hyperjump/shohin/internal/index"
	"github.com/hyperjump/shohin/internal/loader"
	"github.com/hyperjump/shohin/internal/models"
	"github.com/hyperjump/shohin/internal/normalize"
	"github.com/hyperjump/shohin/internal/storage"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
)

// DefaultMaxFileSize is the largest file IngestFile accepts.
const DefaultMaxFileSize int64 = 50 << 20

var (
	// ErrFileTooLarge is recorded on documents over the size limit.
	ErrFileTooLarge = errors.New("file exceeds maximum size")
	// ErrExtensionNotAllowed is recorded on documents with a filtered extension.
	ErrExtensionNotAllowed = errors.New("file extension not allowed")
)

// Pipeline ingests documents into the store and the hybrid index.
type Pipeline struct {
	loader      *loader.Loader
	extractor   *extraction.Extractor
	index       *index.HybridIndex
	store       storage.Storage
	cache       cache.Client
	logger      *zap.Logger
	maxFileSize int64
	extensions  []string
	workers     int
	progress    func(*models.Document)
	now         func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger. A nil logger is ignored.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithStorage persists every processed document and its products.
func WithStorage(s storage.Storage) Option {
	return func(p *Pipeline) { p.store = s }
}

// WithCache drops cached search responses after products are added.
func WithCache(c cache.Client) Option {
	return func(p *Pipeline) { p.cache = c }
}

// WithMaxFileSize sets the largest accepted file in bytes.
func WithMaxFileSize(n int64) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.maxFileSize = n
		}
	}
}

// WithExtensions restricts ingested files to the given extensions.
// Without it every extension the loader supports is accepted.
func WithExtensions(exts []string) Option {
	return func(p *Pipeline) { p.extensions = exts }
}

// WithWorkers sets how many documents a batch processes concurrently.
func WithWorkers(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithProgress registers a callback run after each document of a batch.
func WithProgress(fn func(*models.Document)) Option {
	return func(p *Pipeline) { p.progress = fn }
}

// New creates a pipeline.
func New(l *loader.Loader, ex *extraction.Extractor, idx *index.HybridIndex, opts ...Option) *Pipeline {
	workers := runtime.NumCPU() / 2
	if workers < 1 {
		workers = 1
	}
	p := &Pipeline{
		loader:      l,
		extractor:   ex,
		index:       idx,
		logger:      zap.NewNop(),
		maxFileSize: DefaultMaxFileSize,
		workers:     workers,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// IngestFile processes one file. Unreadable, oversized or unsupported files
// yield a document in StatusError, not an error. A file whose checksum
// matches its completed stored document is not processed again. The
// returned error is reserved for cancellation and storage failures.
func (p *Pipeline) IngestFile(ctx context.Context, path string) (*models.Document, error) {
	doc, _, err := p.ingestFile(ctx, path)
	return doc, err
}

func (p *Pipeline) ingestFile(ctx context.Context, path string) (doc *models.Document, skipped bool, err error) {
	start := p.now()
	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}
	doc = &models.Document{
		ID:     fileid.FileDocID(absPath),
		Path:   absPath,
		Name:   filepath.Base(absPath),
		Type:   loader.TypeOf(absPath),
		Status: models.StatusPending,
	}

	content, err := p.readFile(absPath)
	if err != nil {
		return p.finish(ctx, doc.Failed(err), start)
	}
	doc.Size = int64(len(content))
	doc.Checksum = fileid.Checksum(content)

	if p.store != nil {
		if prev, err := p.store.GetDocument(ctx, doc.ID); err == nil &&
			prev.Status == models.StatusCompleted && prev.Checksum == doc.Checksum {
			p.logger.Debug("Skipping unchanged document", zap.String("path", absPath))
			return prev, true, nil
		}
	}

	segments, err := p.loader.LoadBytes(content, doc.Name)
	if err != nil {
		return p.finish(ctx, doc.Failed(err), start)
	}
	// source ids carry the full path so products point back to their file
	for i := range segments {
		segments[i].SourceID = filepath.Join(filepath.Dir(absPath), segments[i].SourceID)
	}
	return p.process(ctx, doc, segments, start)
}

// RemoveFile deletes the stored document of a file. Its products stay in the
// append-only index until the next Reload.
func (p *Pipeline) RemoveFile(ctx context.Context, path string) error {
	if p.store == nil {
		return nil
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}
	err = p.store.DeleteDocument(ctx, fileid.FileDocID(absPath))
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to delete document of %s: %w", absPath, err)
	}
	p.logger.Info("Document removed", zap.String("path", absPath))
	return nil
}

func (p *Pipeline) readFile(path string) ([]byte, error) {
	if !p.allowed(path) {
		return nil, fmt.Errorf("%w: %s", ErrExtensionNotAllowed, filepath.Ext(path))
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("not a regular file: %s", path)
	}
	if info.Size() > p.maxFileSize {
		return nil, fmt.Errorf("%w: %d > %d bytes", ErrFileTooLarge, info.Size(), p.maxFileSize)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return content, nil
}

// IngestText processes inline text. Name, when set, is used as source id.
func (p *Pipeline) IngestText(ctx context.Context, input *models.DocumentInput) (*models.Document, error) {
	start := p.now()
	if input.ID == "" {
		input.ID = fileid.TextDocID()
	}
	name := input.Name
	if name == "" {
		name = input.ID
	}
	content := []byte(input.Content)
	doc := &models.Document{
		ID:       input.ID,
		Path:     name,
		Name:     name,
		Type:     models.DocumentText,
		Size:     int64(len(content)),
		Checksum: fileid.Checksum(content),
		Status:   models.StatusPending,
	}
	if strings.TrimSpace(input.Content) == "" {
		return finishOnly(p.finish(ctx, doc.Failed(errors.New("content is empty")), start))
	}
	return finishOnly(p.process(ctx, doc, []loader.Segment{{Text: input.Content, SourceID: name}}, start))
}

// IngestURL fetches a web page and processes its visible text.
func (p *Pipeline) IngestURL(ctx context.Context, url string) (*models.Document, error) {
	start := p.now()
	doc := &models.Document{
		ID:     fileid.URLDocID(url),
		Path:   url,
		Name:   url,
		Type:   models.DocumentWeb,
		Status: models.StatusPending,
	}
	segments, err := p.loader.LoadURL(ctx, url)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return finishOnly(p.finish(ctx, doc.Failed(err), start))
	}
	var size int
	for _, s := range segments {
		size += len(s.Text)
	}
	doc.Size = int64(size)
	doc.Checksum = fileid.Checksum([]byte(segments[0].Text))
	return finishOnly(p.process(ctx, doc, segments, start))
}

func finishOnly(doc *models.Document, _ bool, err error) (*models.Document, error) {
	return doc, err
}

// process extracts products from every segment and adds them to the index.
func (p *Pipeline) process(ctx context.Context, doc *models.Document, segments []loader.Segment, start time.Time) (*models.Document, bool, error) {
	products := []*models.Product{}
	var sample strings.Builder
	for _, seg := range segments {
		if sample.Len() < 4096 {
			sample.WriteString(seg.Text)
			sample.WriteByte('\n')
		}
		found, err := p.extractor.Extract(ctx, seg.Text, seg.SourceID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, false, ctx.Err()
			}
			return p.finish(ctx, doc.Failed(fmt.Errorf("extract products: %w", err)), start)
		}
		products = append(products, found...)
	}
	doc.Language = normalize.DetectLanguage(sample.String())

	if err := p.index.Add(ctx, products); err != nil {
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
		return p.finish(ctx, doc.Failed(fmt.Errorf("index products: %w", err)), start)
	}
	doc.Products = products
	doc.Status = models.StatusCompleted
	if len(products) > 0 && p.cache != nil {
		if err := p.cache.DeleteByPrefix(ctx, cache.SearchPrefix); err != nil {
			p.logger.Warn("Failed to invalidate search cache", zap.Error(err))
		}
	}
	return p.finish(ctx, doc, start)
}

// finish stamps timing, persists the document and logs the outcome.
func (p *Pipeline) finish(ctx context.Context, doc *models.Document, start time.Time) (*models.Document, bool, error) {
	doc.ProcessedAt = p.now()
	doc.ProcessingTime = doc.ProcessedAt.Sub(start)
	if doc.Products == nil {
		doc.Products = []*models.Product{}
	}
	if p.store != nil {
		if err := p.store.SaveDocument(ctx, doc); err != nil {
			return doc, false, fmt.Errorf("failed to store document %s: %w", doc.Name, err)
		}
	}
	if doc.Status == models.StatusError {
		p.logger.Warn("Document failed",
			zap.String("document", doc.Name),
			zap.String("error", doc.Error))
	} else {
		p.logger.Info("Document processed",
			zap.String("document", doc.Name),
			zap.Int("products", len(doc.Products)),
			zap.String("language", doc.Language),
			zap.Duration("elapsed", doc.ProcessingTime))
	}
	return doc, false, nil
}

func (p *Pipeline) allowed(path string) bool {
	if len(p.extensions) == 0 {
		return loader.Supported(path)
	}
	return extensionAllowed(filepath.Ext(path), p.extensions)
}

func extensionAllowed(ext string, allowed []string) bool {
	extNorm := strings.ToLower(strings.TrimPrefix(ext, "."))
	for _, a := range allowed {
		if strings.ToLower(strings.TrimPrefix(a, ".")) == extNorm {
			return true
		}
	}
	return false
}

// Summary reports the outcome of a batch.
type Summary struct {
	Documents []*models.Document `json:"documents"`
	Completed int                `json:"completed"`
	Failed    int                `json:"failed"`
	Skipped   int                `json:"skipped"`
	Products  int                `json:"products"`
}

// IngestFiles processes paths concurrently on a bounded worker pool.
// Documents are reported in input order. Cancelling ctx stops the batch.
func (p *Pipeline) IngestFiles(ctx context.Context, paths []string) (*Summary, error) {
	pool, err := ants.NewPool(p.workers)
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}
	defer pool.Release()

	type outcome struct {
		doc     *models.Document
		skipped bool
		err     error
	}
	results := make([]outcome, len(paths))
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for i, path := range paths {
		i, path := i, path
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		if err := pool.Submit(func() {
			defer wg.Done()
			doc, skipped, err := p.ingestFile(ctx, path)
			results[i] = outcome{doc: doc, skipped: skipped, err: err}
			if doc != nil && p.progress != nil {
				mu.Lock()
				p.progress(doc)
				mu.Unlock()
			}
		}); err != nil {
			wg.Done()
			results[i] = outcome{err: fmt.Errorf("submit %s: %w", path, err)}
		}
	}
	wg.Wait()

	summary := &Summary{}
	var firstErr error
	for _, r := range results {
		if r.err != nil && firstErr == nil {
			firstErr = r.err
		}
		if r.doc == nil {
			continue
		}
		summary.Documents = append(summary.Documents, r.doc)
		switch {
		case r.skipped:
			summary.Skipped++
		case r.doc.Status == models.StatusError:
			summary.Failed++
		default:
			summary.Completed++
			summary.Products += len(r.doc.Products)
		}
	}
	if firstErr == nil {
		firstErr = ctx.Err()
	}
	return summary, firstErr
}

// IngestDirectory ingests every accepted regular file under dir.
// Subdirectories are walked only when recursive is set.
func (p *Pipeline) IngestDirectory(ctx context.Context, dir string, recursive bool) (*Summary, error) {
	paths, err := p.CollectFiles(dir, recursive)
	if err != nil {
		return nil, err
	}
	return p.IngestFiles(ctx, paths)
}

// CollectFiles lists the files under dir that IngestDirectory would process.
func (p *Pipeline) CollectFiles(dir string, recursive bool) ([]string, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absDir)
	if err != nil {
		return nil, fmt.Errorf("stat directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", absDir)
	}
	var paths []string
	err = filepath.WalkDir(absDir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			if path != absDir && (!recursive || strings.HasPrefix(d.Name(), ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if !p.allowed(path) {
			return nil
		}
		// resolve symlinks so only regular files are ingested
		finfo, statErr := os.Stat(path)
		if statErr != nil || !finfo.Mode().IsRegular() {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	return paths, err
}

// Reload adds every stored product to the index, used at startup to
// rebuild the in-memory index from the store.
func (p *Pipeline) Reload(ctx context.Context, pageSize int) (int, error) {
	if p.store == nil {
		return 0, nil
	}
	if pageSize <= 0 {
		pageSize = 500
	}
	total := 0
	for offset := 0; ; offset += pageSize {
		page, err := p.store.ListProducts(ctx, offset, pageSize)
		if err != nil {
			return total, fmt.Errorf("failed to list products: %w", err)
		}
		if len(page) == 0 {
			break
		}
		if err := p.index.Add(ctx, page); err != nil {
			return total, fmt.Errorf("failed to index stored products: %w", err)
		}
		total += len(page)
		if len(page) < pageSize {
			break
		}
	}
	p.logger.Info("Index reloaded from storage", zap.Int("products", total))
	return total, nil
}
