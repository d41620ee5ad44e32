package normalize

import (
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"unicode/utf8"
)

// Limits bound the text produced from structured sources.
type Limits struct {
	MaxRows  int
	MaxDepth int
	MaxChars int
}

// DefaultLimits keeps a rendered source within a size the extractor handles comfortably.
var DefaultLimits = Limits{MaxRows: 10000, MaxDepth: 32, MaxChars: 2 << 20}

// boundedWriter stops accepting lines once max characters are written.
type boundedWriter struct {
	b    strings.Builder
	max  int
	n    int
	full bool
}

func (w *boundedWriter) line(s string) bool {
	if w.full {
		return false
	}
	n := utf8.RuneCountInString(s) + 1
	if w.max > 0 && w.n+n > w.max {
		w.full = true
		return false
	}
	w.b.WriteString(s)
	w.b.WriteByte('\n')
	w.n += n
	return true
}

func (w *boundedWriter) String() string { return strings.TrimRight(w.b.String(), "\n") }

// SpreadsheetText renders a sheet as a header line followed by one
// "Row n: a | b" line per row, skipping empty cells.
func SpreadsheetText(sheet string, rows [][]string, lim Limits) string {
	w := &boundedWriter{max: lim.MaxChars}
	w.line("Sheet: " + sheet)
	if len(rows) == 0 {
		return w.String()
	}
	w.line("Columns: " + joinCells(rows[0]))
	for i, row := range rows[1:] {
		if lim.MaxRows > 0 && i >= lim.MaxRows {
			break
		}
		cells := joinCells(row)
		if cells == "" {
			continue
		}
		if !w.line(fmt.Sprintf("Row %d: %s", i+1, cells)) {
			break
		}
	}
	return w.String()
}

func joinCells(row []string) string {
	cells := make([]string, 0, len(row))
	for _, c := range row {
		if c = strings.TrimSpace(c); c != "" {
			cells = append(cells, c)
		}
	}
	return strings.Join(cells, FieldSeparator)
}

// JSONText renders decoded JSON as indented "key: value" lines.
func JSONText(data []byte, lim Limits) (string, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return "", fmt.Errorf("failed to parse json: %w", err)
	}
	w := &boundedWriter{max: lim.MaxChars}
	walkJSON(w, v, 0, lim.MaxDepth)
	return w.String(), nil
}

func walkJSON(w *boundedWriter, v any, depth, maxDepth int) {
	if maxDepth > 0 && depth > maxDepth {
		return
	}
	prefix := strings.Repeat("  ", depth)
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			switch child := t[k].(type) {
			case map[string]any, []any:
				if !w.line(prefix + k + ":") {
					return
				}
				walkJSON(w, child, depth+1, maxDepth)
			default:
				if !w.line(prefix + k + ": " + scalar(child)) {
					return
				}
			}
		}
	case []any:
		for i, item := range t {
			if !w.line(fmt.Sprintf("%s[%d]:", prefix, i)) {
				return
			}
			walkJSON(w, item, depth+1, maxDepth)
		}
	default:
		w.line(prefix + scalar(t))
	}
}

func scalar(v any) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case string:
		return t
	case float64:
		return fmt.Sprintf("%v", t)
	default:
		return fmt.Sprint(t)
	}
}

// XMLText renders an XML document as indented lines: each element's name
// with its attributes as "k=v", then its trimmed text.
func XMLText(r io.Reader, lim Limits) (string, error) {
	dec := xml.NewDecoder(r)
	dec.Strict = false
	w := &boundedWriter{max: lim.MaxChars}
	depth := 0
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("failed to parse xml: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			line := strings.Repeat("  ", depth) + t.Name.Local
			if len(t.Attr) > 0 {
				attrs := make([]string, len(t.Attr))
				for i, a := range t.Attr {
					attrs[i] = a.Name.Local + "=" + a.Value
				}
				line += " (" + strings.Join(attrs, " ") + ")"
			}
			if lim.MaxDepth <= 0 || depth <= lim.MaxDepth {
				if !w.line(line) {
					return w.String(), nil
				}
			}
			depth++
		case xml.EndElement:
			depth--
		case xml.CharData:
			text := strings.TrimSpace(string(t))
			if text == "" || (lim.MaxDepth > 0 && depth > lim.MaxDepth+1) {
				continue
			}
			if !w.line(strings.Repeat("  ", depth) + text) {
				return w.String(), nil
			}
		}
	}
	return w.String(), nil
}
