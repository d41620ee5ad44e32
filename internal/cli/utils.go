// Package cli formats shohin command output.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/shohin/internal/index"
	"github.com/hyperjump/shohin/internal/ingest"
	"github.com/hyperjump/shohin/internal/models"
	"github.com/hyperjump/shohin/pkg/utils"
)

// OutputFormat is the format of command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputCompact is one line per result.
	OutputCompact OutputFormat = "compact"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat maps a flag value to an OutputFormat.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(s)); f {
	case OutputText, OutputCompact, OutputJSON:
		return f, nil
	case "":
		return OutputText, nil
	}
	return "", fmt.Errorf("unknown output format %q; use text, compact, or json", s)
}

const separator = "─────────────────────────────────────────────────────────"

// Status summarizes the store and the index.
type Status struct {
	Documents     int64       `json:"documents"`
	Products      int64       `json:"products"`
	DatabasePath  string      `json:"database_path,omitempty"`
	DatabaseBytes int64       `json:"database_bytes,omitempty"`
	Index         index.Stats `json:"index"`
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteSearchResults writes a search response to w in the given format.
func WriteSearchResults(w io.Writer, response *models.SearchResponse, format OutputFormat) error {
	switch format {
	case OutputJSON:
		return writeJSON(w, response)
	case OutputCompact:
		for _, r := range response.Results {
			fmt.Fprintf(w, "%d\t%.4f\t%s\t%s\t%s\n", r.Rank, r.Score,
				r.Product.Brand.Name, r.Product.Reference.Value, utils.Truncate(r.Product.Name, 60))
		}
		if response.NoRelevantInformation {
			fmt.Fprintln(w, response.Message)
		}
		return nil
	default:
		writeSearchResultsText(w, response)
		return nil
	}
}

func writeSearchResultsText(w io.Writer, response *models.SearchResponse) {
	cached := ""
	if response.Cached {
		cached = ", cached"
	}
	fmt.Fprintf(w, "\nFound %d results in %dms (stage %s%s)\n\n", response.Total, response.QueryTime, response.Stage, cached)
	if response.NoRelevantInformation {
		fmt.Fprintln(w, response.Message)
		return
	}
	for _, r := range response.Results {
		fmt.Fprintln(w, separator)
		fmt.Fprintf(w, "Rank: %d | Score: %.4f (Semantic: %.4f, Lexical: %.4f)\n",
			r.Rank, r.Score, r.SemanticScore, r.LexicalScore)
		writeProduct(w, r.Product)
		fmt.Fprintln(w)
	}
}

// WriteProducts writes extracted products to w.
func WriteProducts(w io.Writer, products []*models.Product, format OutputFormat) error {
	switch format {
	case OutputJSON:
		if products == nil {
			products = []*models.Product{}
		}
		return writeJSON(w, products)
	case OutputCompact:
		for _, p := range products {
			fmt.Fprintf(w, "%s\t%s\t%s\t%.2f\n", p.ID, p.Brand.Name, p.Reference.Value, p.ExtractionConfidence)
		}
		return nil
	default:
		fmt.Fprintf(w, "\nExtracted %d products\n\n", len(products))
		for _, p := range products {
			fmt.Fprintln(w, separator)
			writeProduct(w, p)
			fmt.Fprintln(w)
		}
		return nil
	}
}

func writeProduct(w io.Writer, p *models.Product) {
	fmt.Fprintf(w, "ID: %s\n", p.ID)
	if p.Name != "" {
		fmt.Fprintf(w, "Name: %s\n", utils.Truncate(p.Name, 200))
	}
	fmt.Fprintf(w, "Brand: %s (%.2f)\n", p.Brand.Name, p.Brand.Confidence)
	fmt.Fprintf(w, "Reference: %s (%.2f)\n", p.Reference.Value, p.Reference.Confidence)
	if p.Category != "" {
		fmt.Fprintf(w, "Category: %s\n", p.Category)
	}
	if p.Price != nil {
		fmt.Fprintf(w, "Price: %.2f %s\n", *p.Price, p.Currency)
	}
	for _, c := range p.Characteristics {
		value := c.Value
		if c.Unit != "" {
			value += " " + c.Unit
		}
		fmt.Fprintf(w, "  - %s: %s\n", c.Name, value)
	}
	if p.SourceDocument != "" {
		fmt.Fprintf(w, "Source: %s\n", p.SourceDocument)
	}
}

// WriteSummary writes the outcome of an ingestion batch to w.
func WriteSummary(w io.Writer, s *ingest.Summary, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, s)
	}
	for _, d := range s.Documents {
		if d.Status == models.StatusError {
			fmt.Fprintf(w, "FAILED  %s: %s\n", d.Path, d.Error)
		} else if format == OutputCompact {
			fmt.Fprintf(w, "%-7s %s\t%d\n", d.Status, d.Path, len(d.Products))
		}
	}
	fmt.Fprintf(w, "%d documents: %d completed, %d skipped, %d failed, %d products\n",
		len(s.Documents), s.Completed, s.Skipped, s.Failed, s.Products)
	return nil
}

// WriteStatus writes store and index status to w.
func WriteStatus(w io.Writer, s *Status, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, s)
	}
	fmt.Fprintf(w, "documents:          %d   # stored documents\n", s.Documents)
	fmt.Fprintf(w, "products:           %d   # stored products\n", s.Products)
	fmt.Fprintf(w, "indexed_products:   %d   # products in the hybrid index\n", s.Index.DocumentCount)
	fmt.Fprintf(w, "index_name:         %s\n", s.Index.IndexName)
	fmt.Fprintf(w, "embedding_model:    %s\n", s.Index.EmbeddingModelID)
	fmt.Fprintf(w, "lexical_ready:      %t\n", s.Index.LexicalIndexReady)
	if s.DatabasePath != "" {
		fmt.Fprintf(w, "database_path:      %s\n", s.DatabasePath)
	}
	if s.DatabaseBytes > 0 {
		fmt.Fprintf(w, "database_size:      %s\n", FormatBytes(s.DatabaseBytes))
	}
	return nil
}

// FormatBytes renders n with a binary unit suffix.
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
