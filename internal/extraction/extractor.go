// Package extraction turns product text into structured products: the text is
// split into sections and each section is matched against the pattern library.
package extraction

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hyperjump/shohin/internal/models"
	"github.com/hyperjump/shohin/internal/patterns"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
)

// IDFunc derives a product id from its source and section index.
type IDFunc func(sourceID string, section int) string

// Extractor extracts products from text. It is safe for concurrent use.
type Extractor struct {
	brands          []patterns.Pattern
	references      []patterns.Pattern
	characteristics []patterns.Pattern

	pool   *ants.Pool
	idFunc IDFunc
	now    func() time.Time
	logger *zap.Logger

	// sectionHook runs before a section is matched; used by tests.
	sectionHook func(section int, text string)
}

// Option configures an Extractor.
type Option func(*Extractor) error

// WithLogger sets a logger for skipped sections and extraction summaries.
func WithLogger(l *zap.Logger) Option {
	return func(e *Extractor) error {
		if l != nil {
			e.logger = l
		}
		return nil
	}
}

// WithWorkers extracts sections of a document in parallel on a pool of n
// workers. n <= 1 keeps extraction sequential.
func WithWorkers(n int) Option {
	return func(e *Extractor) error {
		if n <= 1 {
			return nil
		}
		pool, err := ants.NewPool(n)
		if err != nil {
			return fmt.Errorf("failed to create extraction pool: %w", err)
		}
		e.pool = pool
		return nil
	}
}

// WithIDFunc overrides product id generation.
func WithIDFunc(fn IDFunc) Option {
	return func(e *Extractor) error {
		if fn != nil {
			e.idFunc = fn
		}
		return nil
	}
}

// New creates an extractor over lib. A nil lib uses the built-in patterns.
func New(lib *patterns.Library, opts ...Option) (*Extractor, error) {
	if lib == nil {
		var err error
		if lib, err = patterns.Default(); err != nil {
			return nil, err
		}
	}
	e := &Extractor{
		brands:          lib.BrandPatterns(),
		references:      lib.ReferencePatterns(),
		characteristics: lib.CharacteristicPatterns(),
		now:             time.Now,
		logger:          zap.NewNop(),
	}
	e.idFunc = e.hashID
	for _, opt := range opts {
		if err := opt(e); err != nil {
			e.Close()
			return nil, err
		}
	}
	return e, nil
}

// Close releases the worker pool, if any.
func (e *Extractor) Close() {
	if e.pool != nil {
		e.pool.Release()
	}
}

// Extract returns the products found in text, in section order. A section
// that fails is logged and skipped. Only context cancellation aborts the
// whole document.
func (e *Extractor) Extract(ctx context.Context, text, sourceID string) ([]*models.Product, error) {
	sections := SplitSections(Preprocess(text))
	found := make([]*models.Product, len(sections))

	run := func(i int) {
		if ctx.Err() != nil {
			return
		}
		p, err := e.extractSection(sections[i], sourceID, i)
		if err != nil {
			e.logger.Warn("extraction section skipped",
				zap.String("source", sourceID),
				zap.Int("section", i),
				zap.Error(err))
			return
		}
		found[i] = p
	}

	if e.pool == nil || len(sections) == 1 {
		for i := range sections {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			run(i)
		}
	} else {
		var wg sync.WaitGroup
		for i := range sections {
			i := i
			wg.Add(1)
			if err := e.pool.Submit(func() {
				defer wg.Done()
				run(i)
			}); err != nil {
				wg.Done()
				run(i)
			}
		}
		wg.Wait()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	products := make([]*models.Product, 0, len(found))
	for _, p := range found {
		if p != nil {
			products = append(products, p)
		}
	}
	e.logger.Debug("extraction complete",
		zap.String("source", sourceID),
		zap.Int("sections", len(sections)),
		zap.Int("products", len(products)))
	return products, nil
}

// extractSection returns nil without error when the section lacks a brand or a reference.
func (e *Extractor) extractSection(section, sourceID string, idx int) (p *models.Product, err error) {
	defer func() {
		if r := recover(); r != nil {
			p = nil
			err = &SectionError{Source: sourceID, Section: idx, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	if e.sectionHook != nil {
		e.sectionHook(idx, section)
	}

	brands := extractBrands(section, e.brands)
	if len(brands) == 0 {
		return nil, nil
	}
	refs := extractReferences(section, e.references)
	if len(refs) == 0 {
		return nil, nil
	}
	chars := extractCharacteristics(section, e.characteristics)

	now := e.now()
	return &models.Product{
		ID:                    e.idFunc(sourceID, idx),
		Name:                  productName(section),
		Brand:                 brands[0],
		Reference:             refs[0],
		Characteristics:       chars,
		Currency:              models.DefaultCurrency,
		SourceDocument:        sourceID,
		ExtractionConfidence:  Confidence(brands[0].Confidence, refs[0].Confidence, len(chars)),
		BrandAlternatives:     brands,
		ReferenceAlternatives: refs,
		CreatedAt:             now,
		UpdatedAt:             now,
	}, nil
}

// hashID is the first 12 hex characters of md5(stem_section_timestamp).
func (e *Extractor) hashID(sourceID string, section int) string {
	return ProductID(sourceID, section, e.now())
}

// ProductID derives a product id from the source stem, section index, and time.
func ProductID(sourceID string, section int, at time.Time) string {
	base := filepath.Base(sourceID)
	if i := strings.IndexByte(base, '#'); i >= 0 {
		base = base[:i]
	}
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	sum := md5.Sum([]byte(stem + "_" + strconv.Itoa(section) + "_" + at.Format(time.RFC3339Nano)))
	return hex.EncodeToString(sum[:])[:12]
}
