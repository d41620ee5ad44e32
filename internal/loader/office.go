package loader

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

const (
	docxDocumentXMLPath = "word/document.xml"
	contentTypesPath    = "[Content_Types].xml"
	docxMainContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"
	pptxSlidePrefix     = "ppt/slides/slide"
)

var slideNumber = regexp.MustCompile(`slide(\d+)\.xml$`)

// readZipFile returns the contents of one entry of a zip archive.
func readZipFile(content []byte, name string) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("not a zip: %w", err)
	}
	for _, f := range zr.File {
		if f.Name == name {
			return readEntry(f)
		}
	}
	return nil, fmt.Errorf("%s not found", name)
}

func readEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", f.Name, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", f.Name, err)
	}
	return data, nil
}

// paragraphText collects the character data found inside text elements and
// ends a line whenever a paragraph element closes.
func paragraphText(r io.Reader, textElems, paraElems map[string]bool) (string, error) {
	dec := xml.NewDecoder(r)
	var (
		b     strings.Builder
		line  strings.Builder
		depth int
	)
	flush := func() {
		if s := strings.TrimSpace(line.String()); s != "" {
			b.WriteString(s)
			b.WriteByte('\n')
		}
		line.Reset()
	}
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if textElems[t.Name.Local] {
				depth++
			}
			switch t.Name.Local {
			case "tab", "s":
				line.WriteByte(' ')
			case "br", "line-break":
				flush()
			}
		case xml.CharData:
			if depth > 0 {
				line.Write(t)
			}
		case xml.EndElement:
			if textElems[t.Name.Local] && depth > 0 {
				depth--
			}
			if paraElems[t.Name.Local] {
				flush()
			}
		}
	}
	flush()
	return strings.TrimSpace(b.String()), nil
}

var (
	ooxmlText = map[string]bool{"t": true}
	ooxmlPara = map[string]bool{"p": true}
	odfText   = map[string]bool{"p": true, "h": true}
	odfPara   = map[string]bool{"p": true, "h": true}
)

// findDocxMainDocumentPath reads the main document part name from
// [Content_Types].xml, or returns "" when there is none.
func findDocxMainDocumentPath(zr *zip.Reader) string {
	for _, f := range zr.File {
		if f.Name != contentTypesPath {
			continue
		}
		data, err := readEntry(f)
		if err != nil {
			return ""
		}
		var types struct {
			Overrides []struct {
				PartName    string `xml:"PartName,attr"`
				ContentType string `xml:"ContentType,attr"`
			} `xml:"Override"`
		}
		if err := xml.Unmarshal(data, &types); err != nil {
			return ""
		}
		for _, o := range types.Overrides {
			if o.ContentType == docxMainContentType {
				return strings.TrimPrefix(o.PartName, "/")
			}
		}
		return ""
	}
	return ""
}

// loadDOCX returns the paragraphs of the main document part, one per line.
func loadDOCX(content []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("extract DOCX: not a zip: %w", err)
	}
	docPath := findDocxMainDocumentPath(zr)
	if docPath == "" {
		docPath = docxDocumentXMLPath
	}
	for _, f := range zr.File {
		if f.Name != docPath {
			continue
		}
		data, err := readEntry(f)
		if err != nil {
			return "", fmt.Errorf("extract DOCX: %w", err)
		}
		text, err := paragraphText(bytes.NewReader(data), ooxmlText, ooxmlPara)
		if err != nil {
			return "", fmt.Errorf("extract DOCX: %w", err)
		}
		return text, nil
	}
	return "", fmt.Errorf("extract DOCX: %s not found", docPath)
}

// loadPPTX returns the text of every slide in slide order, one paragraph per line.
func loadPPTX(content []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("extract PPTX: not a zip: %w", err)
	}
	type slide struct {
		n int
		f *zip.File
	}
	var slides []slide
	for _, f := range zr.File {
		if !strings.HasPrefix(f.Name, pptxSlidePrefix) {
			continue
		}
		m := slideNumber.FindStringSubmatch(f.Name)
		if m == nil {
			continue
		}
		n, _ := strconv.Atoi(m[1])
		slides = append(slides, slide{n: n, f: f})
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].n < slides[j].n })

	var parts []string
	for _, s := range slides {
		data, err := readEntry(s.f)
		if err != nil {
			return "", fmt.Errorf("extract PPTX: %w", err)
		}
		text, err := paragraphText(bytes.NewReader(data), ooxmlText, ooxmlPara)
		if err != nil {
			return "", fmt.Errorf("extract PPTX: %s: %w", s.f.Name, err)
		}
		if text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n"), nil
}

// loadODF returns the paragraphs and headings of an OpenDocument text or
// presentation, one per line.
func loadODF(content []byte) (string, error) {
	data, err := readZipFile(content, odfContentPath)
	if err != nil {
		return "", fmt.Errorf("extract OpenDocument: %w", err)
	}
	text, err := paragraphText(bytes.NewReader(data), odfText, odfPara)
	if err != nil {
		return "", fmt.Errorf("extract OpenDocument: %w", err)
	}
	return text, nil
}
