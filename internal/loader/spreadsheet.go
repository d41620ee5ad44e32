package loader

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/hyperjump/shohin/internal/normalize"
	"github.com/xuri/excelize/v2"
)

const odfContentPath = "content.xml"

// maxRepeatedCells caps expansion of ODS number-columns-repeated runs.
const maxRepeatedCells = 64

// loadExcel renders every sheet as its own segment.
func (l *Loader) loadExcel(content []byte, name string) ([]Segment, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("open Excel: %w", err)
	}
	defer f.Close()

	var segments []Segment
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("get rows for sheet %q: %w", sheet, err)
		}
		segments = append(segments, l.sheetSegment(name, sheet, rows))
	}
	return segments, nil
}

// loadODS renders every table of an OpenDocument spreadsheet as its own segment.
func (l *Loader) loadODS(content []byte, name string) ([]Segment, error) {
	data, err := readZipFile(content, odfContentPath)
	if err != nil {
		return nil, fmt.Errorf("extract ODS: %w", err)
	}
	sheets, err := parseODSTables(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("extract ODS: %w", err)
	}
	segments := make([]Segment, 0, len(sheets))
	for _, s := range sheets {
		segments = append(segments, l.sheetSegment(name, s.name, s.rows))
	}
	return segments, nil
}

func (l *Loader) sheetSegment(name, sheet string, rows [][]string) Segment {
	return Segment{
		Text:     normalize.SpreadsheetText(sheet, rows, l.limits),
		SourceID: name + "#" + sheet,
	}
}

type odsSheet struct {
	name string
	rows [][]string
}

// parseODSTables reads table:table, table:table-row and table:table-cell
// elements. Trailing empty cells of a row are dropped.
func parseODSTables(r io.Reader) ([]odsSheet, error) {
	dec := xml.NewDecoder(r)
	var (
		sheets  []odsSheet
		row     []string
		cell    strings.Builder
		inCell  bool
		repeat  int
		inTable bool
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "table":
				sheets = append(sheets, odsSheet{name: attr(t, "name")})
				inTable = true
			case "table-row":
				row = row[:0:0]
			case "table-cell", "covered-table-cell":
				inCell = true
				cell.Reset()
				repeat = 1
				if n, err := strconv.Atoi(attr(t, "number-columns-repeated")); err == nil && n > 1 {
					repeat = min(n, maxRepeatedCells)
				}
			case "p":
				if inCell && cell.Len() > 0 {
					cell.WriteByte(' ')
				}
			}
		case xml.CharData:
			if inCell {
				cell.Write(t)
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "table":
				inTable = false
			case "table-cell", "covered-table-cell":
				v := strings.TrimSpace(cell.String())
				for i := 0; i < repeat; i++ {
					row = append(row, v)
				}
				inCell = false
			case "table-row":
				if !inTable || len(sheets) == 0 {
					continue
				}
				for len(row) > 0 && row[len(row)-1] == "" {
					row = row[:len(row)-1]
				}
				if len(row) > 0 {
					s := &sheets[len(sheets)-1]
					s.rows = append(s.rows, row)
				}
			}
		}
	}
	return sheets, nil
}

func attr(el xml.StartElement, local string) string {
	for _, a := range el.Attr {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}
