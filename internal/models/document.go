package models

import "time"

// DocumentType is the coarse source format of an ingested document.
type DocumentType string

const (
	DocumentPDF    DocumentType = "pdf"
	DocumentExcel  DocumentType = "excel"
	DocumentWeb    DocumentType = "web"
	DocumentJSON   DocumentType = "json"
	DocumentXML    DocumentType = "xml"
	DocumentText   DocumentType = "text"
	DocumentOffice DocumentType = "office"
)

// DocumentStatus is the processing outcome of a document.
type DocumentStatus string

const (
	StatusPending   DocumentStatus = "pending"
	StatusCompleted DocumentStatus = "completed"
	StatusError     DocumentStatus = "error"
)

// Document is an ingested source along with the products extracted from it.
// A document in StatusError carries an error message and no products.
type Document struct {
	ID             string         `json:"id"`
	Path           string         `json:"path"`
	Name           string         `json:"name"`
	Type           DocumentType   `json:"type"`
	Size           int64          `json:"size"`
	Checksum       string         `json:"checksum"`
	Language       string         `json:"language,omitempty"`
	Status         DocumentStatus `json:"status"`
	Error          string         `json:"error,omitempty"`
	Products       []*Product     `json:"products"`
	ProcessingTime time.Duration  `json:"processing_time"`
	ProcessedAt    time.Time      `json:"processed_at"`
}

// Failed marks the document as failed and drops any products.
func (d *Document) Failed(err error) *Document {
	d.Status = StatusError
	d.Error = err.Error()
	d.Products = []*Product{}
	return d
}

// DocumentInput is the input for ingesting raw text.
type DocumentInput struct {
	ID      string `json:"id,omitempty"`
	Name    string `json:"name,omitempty"`
	Content string `json:"content"`
}
