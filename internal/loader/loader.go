// Package loader turns source documents into plain text segments for
// product extraction.
package loader

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hyperjump/shohin/internal/models"
	"github.com/hyperjump/shohin/internal/normalize"
)

// ErrUnsupportedFormat is returned for file extensions no loader handles.
var ErrUnsupportedFormat = errors.New("unsupported file format")

// Segment is a piece of text with the source id products extracted from it
// are attributed to. Most formats yield one segment; spreadsheets yield one
// per sheet with a "name#sheet" source id.
type Segment struct {
	Text     string
	SourceID string
}

// SupportedExtensions lists the file extensions Load accepts.
var SupportedExtensions = []string{
	".pdf", ".xlsx", ".xlsm", ".ods", ".docx", ".odt", ".rtf", ".pptx", ".odp",
	".json", ".xml", ".html", ".htm", ".txt", ".md", ".csv",
}

// DefaultUserAgent identifies web requests made by LoadURL.
const DefaultUserAgent = "shohin/1.0 (+product-extraction)"

// Loader extracts text from document files and web pages.
type Loader struct {
	limits    normalize.Limits
	client    *http.Client
	userAgent string
}

// Option configures a Loader.
type Option func(*Loader)

// WithLimits bounds the text rendered from spreadsheets, JSON and XML.
func WithLimits(lim normalize.Limits) Option {
	return func(l *Loader) { l.limits = lim }
}

// WithHTTPClient sets the client used by LoadURL.
func WithHTTPClient(c *http.Client) Option {
	return func(l *Loader) {
		if c != nil {
			l.client = c
		}
	}
}

// WithUserAgent sets the User-Agent header sent by LoadURL.
func WithUserAgent(ua string) Option {
	return func(l *Loader) {
		if ua != "" {
			l.userAgent = ua
		}
	}
}

// New returns a Loader.
func New(opts ...Option) *Loader {
	l := &Loader{
		limits:    normalize.DefaultLimits,
		client:    &http.Client{Timeout: 30 * time.Second},
		userAgent: DefaultUserAgent,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Supported reports whether Load handles files with the extension of name.
func Supported(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range SupportedExtensions {
		if e == ext {
			return true
		}
	}
	return false
}

// TypeOf returns the document type for a file name.
func TypeOf(name string) models.DocumentType {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return models.DocumentPDF
	case ".xlsx", ".xlsm", ".ods", ".csv":
		return models.DocumentExcel
	case ".json":
		return models.DocumentJSON
	case ".xml":
		return models.DocumentXML
	case ".html", ".htm":
		return models.DocumentWeb
	case ".docx", ".odt", ".rtf", ".pptx", ".odp":
		return models.DocumentOffice
	default:
		return models.DocumentText
	}
}

// Load reads the file at path and returns its text segments.
func (l *Loader) Load(path string) ([]Segment, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return l.LoadBytes(content, filepath.Base(path))
}

// LoadBytes extracts text from content according to the extension of name.
// Source ids are derived from name.
func (l *Loader) LoadBytes(content []byte, name string) ([]Segment, error) {
	ext := strings.ToLower(filepath.Ext(name))
	var (
		text string
		err  error
	)
	switch ext {
	case ".xlsx", ".xlsm":
		return l.loadExcel(content, name)
	case ".ods":
		return l.loadODS(content, name)
	case ".pdf":
		text, err = loadPDF(content)
	case ".docx":
		text, err = loadDOCX(content)
	case ".pptx":
		text, err = loadPPTX(content)
	case ".odt", ".odp":
		text, err = loadODF(content)
	case ".rtf":
		text, err = loadRTF(content)
	case ".json":
		text, err = normalize.JSONText(content, l.limits)
	case ".xml":
		text, err = normalize.XMLText(bytes.NewReader(content), l.limits)
	case ".html", ".htm":
		text, err = htmlText(bytes.NewReader(content))
	case ".txt", ".md", ".csv", "":
		text = loadPlain(content)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return nil, err
	}
	return []Segment{{Text: text, SourceID: name}}, nil
}
