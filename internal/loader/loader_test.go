package loader

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hyperjump/shohin/internal/models"
	"github.com/hyperjump/shohin/internal/normalize"
	"github.com/xuri/excelize/v2"
)

func loadOne(t *testing.T, content []byte, name string) string {
	t.Helper()
	segs, err := New().LoadBytes(content, name)
	if err != nil {
		t.Fatalf("LoadBytes(%s): %v", name, err)
	}
	if len(segs) != 1 {
		t.Fatalf("expected 1 segment, got %d", len(segs))
	}
	if segs[0].SourceID != name {
		t.Errorf("SourceID = %q, want %q", segs[0].SourceID, name)
	}
	return segs[0].Text
}

func zipOf(files map[string]string) []byte {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range files {
		fw, _ := w.Create(name)
		_, _ = fw.Write([]byte(content))
	}
	_ = w.Close()
	return buf.Bytes()
}

func TestLoadBytes_plain(t *testing.T) {
	if got := loadOne(t, []byte("Marque: BOSCH\nLine 2"), "notes.txt"); got != "Marque: BOSCH\nLine 2" {
		t.Errorf("got %q", got)
	}
	if got := loadOne(t, []byte("hello\x80world"), "bad.md"); got != "hello�world" {
		t.Errorf("got %q", got)
	}
}

func TestLoadBytes_unsupported(t *testing.T) {
	_, err := New().LoadBytes([]byte("MZ"), "setup.exe")
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestLoadBytes_excelPerSheet(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	f.SetCellValue("Sheet1", "A1", "Marque")
	f.SetCellValue("Sheet1", "B1", "Référence")
	f.SetCellValue("Sheet1", "A2", "BOSCH")
	f.SetCellValue("Sheet1", "B2", "GSB120-LI")
	if _, err := f.NewSheet("Promo"); err != nil {
		t.Fatal(err)
	}
	f.SetCellValue("Promo", "A1", "Makita")
	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}

	segs, err := New().LoadBytes(buf.Bytes(), "catalog.xlsx")
	if err != nil {
		t.Fatalf("LoadBytes: %v", err)
	}
	if len(segs) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(segs))
	}
	if segs[0].SourceID != "catalog.xlsx#Sheet1" || segs[1].SourceID != "catalog.xlsx#Promo" {
		t.Errorf("source ids = %q, %q", segs[0].SourceID, segs[1].SourceID)
	}
	want := "Sheet: Sheet1\nColumns: Marque | Référence\nRow 1: BOSCH | GSB120-LI"
	if segs[0].Text != want {
		t.Errorf("got %q, want %q", segs[0].Text, want)
	}
}

func TestLoadBytes_ods(t *testing.T) {
	content := `<office:document-content><office:body><office:spreadsheet>
<table:table table:name="Outils">
<table:table-row><table:table-cell><text:p>Marque</text:p></table:table-cell><table:table-cell><text:p>Prix</text:p></table:table-cell></table:table-row>
<table:table-row><table:table-cell><text:p>BOSCH</text:p></table:table-cell><table:table-cell><text:p>149</text:p></table:table-cell><table:table-cell table:number-columns-repeated="1000"/></table:table-row>
</table:table></office:spreadsheet></office:body></office:document-content>`
	segs, err := New().LoadBytes(zipOf(map[string]string{"content.xml": content}), "stock.ods")
	if err != nil {
		t.Fatalf("LoadBytes: %v", err)
	}
	if len(segs) != 1 || segs[0].SourceID != "stock.ods#Outils" {
		t.Fatalf("unexpected segments %+v", segs)
	}
	want := "Sheet: Outils\nColumns: Marque | Prix\nRow 1: BOSCH | 149"
	if segs[0].Text != want {
		t.Errorf("got %q, want %q", segs[0].Text, want)
	}
}

func TestLoadBytes_docxKeepsParagraphs(t *testing.T) {
	doc := `<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
		`<w:p w:rsidR="00A1"><w:r><w:t>Marque:</w:t></w:r><w:r><w:t xml:space="preserve"> BOSCH</w:t></w:r></w:p>` +
		`<w:p><w:r><w:t>Référence: GSB120-LI</w:t></w:r></w:p></w:body></w:document>`
	got := loadOne(t, zipOf(map[string]string{"word/document.xml": doc}), "fiche.docx")
	if got != "Marque: BOSCH\nRéférence: GSB120-LI" {
		t.Errorf("got %q", got)
	}
}

func TestLoadBytes_docxContentTypes(t *testing.T) {
	types := `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">
<Override ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml" PartName="/word/document2.xml"/>
</Types>`
	doc := `<w:document xmlns:w="x"><w:body><w:p><w:r><w:t>Content from document2</w:t></w:r></w:p></w:body></w:document>`
	got := loadOne(t, zipOf(map[string]string{"[Content_Types].xml": types, "word/document2.xml": doc}), "a.docx")
	if got != "Content from document2" {
		t.Errorf("got %q", got)
	}
}

func TestLoadBytes_pptxSlideOrder(t *testing.T) {
	slide := func(text string) string {
		return `<p:sld xmlns:p="p" xmlns:a="a"><p:cSld><p:spTree><p:sp><p:txBody><a:p><a:r><a:t>` + text + `</a:t></a:r></a:p></p:txBody></p:sp></p:spTree></p:cSld></p:sld>`
	}
	content := zipOf(map[string]string{
		"ppt/slides/slide10.xml": slide("Tenth slide"),
		"ppt/slides/slide2.xml":  slide("Second slide"),
		"ppt/slides/slide1.xml":  slide("First slide"),
	})
	if got := loadOne(t, content, "deck.pptx"); got != "First slide\nSecond slide\nTenth slide" {
		t.Errorf("got %q", got)
	}
}

func TestLoadBytes_odf(t *testing.T) {
	content := `<office:document><office:body><text:h>Perceuse sans fil</text:h>` +
		`<text:p>Marque: <text:span>BOSCH</text:span></text:p><text:p>Puissance: 120W</text:p></office:body></office:document>`
	for _, name := range []string{"fiche.odt", "slides.odp"} {
		got := loadOne(t, zipOf(map[string]string{"content.xml": content}), name)
		if got != "Perceuse sans fil\nMarque: BOSCH\nPuissance: 120W" {
			t.Errorf("%s: got %q", name, got)
		}
	}
}

func TestLoadBytes_odfContentNotFound(t *testing.T) {
	_, err := New().LoadBytes(zipOf(map[string]string{"meta.xml": "<x/>"}), "a.odt")
	if err == nil || !strings.Contains(err.Error(), "content.xml not found") {
		t.Errorf("expected content.xml not found, got %v", err)
	}
}

func TestLoadBytes_notZip(t *testing.T) {
	for _, name := range []string{"a.docx", "a.pptx", "a.ods", "a.odp"} {
		if _, err := New().LoadBytes([]byte("not a zip"), name); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestLoadBytes_jsonAndXML(t *testing.T) {
	got := loadOne(t, []byte(`{"marque": "BOSCH", "reference": "GSB120-LI"}`), "p.json")
	if !strings.Contains(got, "marque: BOSCH") || !strings.Contains(got, "reference: GSB120-LI") {
		t.Errorf("json: got %q", got)
	}
	got = loadOne(t, []byte(`<produit marque="BOSCH"><ref>GSB120-LI</ref></produit>`), "p.xml")
	if !strings.Contains(got, "marque=BOSCH") || !strings.Contains(got, "GSB120-LI") {
		t.Errorf("xml: got %q", got)
	}
}

func TestLoadBytes_limits(t *testing.T) {
	l := New(WithLimits(normalize.Limits{MaxChars: 20}))
	segs, err := l.LoadBytes([]byte(`{"a": "aaaaaaaaaa", "b": "bbbbbbbbbb", "c": "cccccccccc"}`), "big.json")
	if err != nil {
		t.Fatal(err)
	}
	if len([]rune(segs[0].Text)) > 20 {
		t.Errorf("text exceeds limit: %q", segs[0].Text)
	}
}

func TestHTMLText(t *testing.T) {
	page := `<html><head><title>x</title><style>body{}</style></head><body>
<script>var brand = "MAKITA";</script>
<h1>Perceuse   sans fil</h1><p>Marque: <b>BOSCH</b></p><ul><li>Puissance: 120W</li></ul></body></html>`
	got, err := htmlText(strings.NewReader(page))
	if err != nil {
		t.Fatal(err)
	}
	want := "Perceuse sans fil\nMarque: BOSCH\nPuissance: 120W"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestLoadURL(t *testing.T) {
	var ua string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua = r.Header.Get("User-Agent")
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`<p>Marque: BOSCH</p><p>Référence: GSB120-LI</p>`))
	}))
	defer srv.Close()

	l := New(WithUserAgent("test-agent"))
	segs, err := l.LoadURL(context.Background(), srv.URL+"/fiche")
	if err != nil {
		t.Fatalf("LoadURL: %v", err)
	}
	if ua != "test-agent" {
		t.Errorf("User-Agent = %q", ua)
	}
	if segs[0].SourceID != srv.URL+"/fiche" || segs[0].Text != "Marque: BOSCH\nRéférence: GSB120-LI" {
		t.Errorf("got %+v", segs[0])
	}
	if _, err := l.LoadURL(context.Background(), srv.URL+"/missing"); err == nil {
		t.Error("expected error for 404")
	}
}

func TestLoad_file(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fiche.txt")
	if err := os.WriteFile(path, []byte("File content"), 0600); err != nil {
		t.Fatal(err)
	}
	segs, err := New().Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if segs[0].Text != "File content" || segs[0].SourceID != "fiche.txt" {
		t.Errorf("got %+v", segs[0])
	}
	if _, err := New().Load(filepath.Join(t.TempDir(), "missing.txt")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestTypeOfAndSupported(t *testing.T) {
	cases := map[string]models.DocumentType{
		"a.PDF": models.DocumentPDF, "b.xlsx": models.DocumentExcel, "c.json": models.DocumentJSON,
		"d.xml": models.DocumentXML, "e.html": models.DocumentWeb, "f.docx": models.DocumentOffice,
		"g.txt": models.DocumentText,
	}
	for name, want := range cases {
		if got := TypeOf(name); got != want {
			t.Errorf("TypeOf(%q) = %q, want %q", name, got, want)
		}
		if !Supported(name) {
			t.Errorf("Supported(%q) = false", name)
		}
	}
	if Supported("a.exe") {
		t.Error("Supported(a.exe) = true")
	}
}
