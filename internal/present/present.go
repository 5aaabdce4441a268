// Package present renders recognized text: the HTML result container, the
// upload page around it, and plain-text and XLSX downloads.
package present

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// DefaultTitle is the page heading.
const DefaultTitle = "Image to Text"

const (
	sheetName = "Result"
	lineCol   = "Line"
	textCol   = "Text"
)

// PageData feeds the upload page template.
type PageData struct {
	Title    string
	Accept   string // <input accept> value
	Busy     bool
	Progress int
	Result   string
}

// RenderResult writes the result container holding text verbatim (HTML
// escaped). Empty text writes nothing.
//
// The container opens with a newline because HTML drops one leading newline
// inside <pre>; text that itself starts with a newline survives that way.
func RenderResult(w io.Writer, text string) error {
	if text == "" {
		return nil
	}
	return templates.ExecuteTemplate(w, "result", text)
}

// RenderPage writes the full upload page.
func RenderPage(w io.Writer, d PageData) error {
	if d.Title == "" {
		d.Title = DefaultTitle
	}
	return templates.ExecuteTemplate(w, "page", d)
}

// ExportText returns text as a UTF-8 download body.
func ExportText(text string) []byte {
	return []byte(text)
}

// ExportXLSX writes text to a single-sheet workbook, one row per line, under a
// Line/Text header.
func ExportXLSX(text string) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), sheetName); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	_ = f.SetCellValue(sheetName, "A1", lineCol)
	_ = f.SetCellValue(sheetName, "B1", textCol)

	for i, line := range Lines(text) {
		row := i + 2
		lineCell, _ := excelize.CoordinatesToCellName(1, row)
		textCell, _ := excelize.CoordinatesToCellName(2, row)
		_ = f.SetCellValue(sheetName, lineCell, i+1)
		_ = f.SetCellStr(sheetName, textCell, line)
	}
	_ = f.SetColWidth(sheetName, "A", "A", 8)
	_ = f.SetColWidth(sheetName, "B", "B", 100)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}

// Lines splits text on newlines. A trailing newline does not produce an empty
// final line; "" has no lines.
func Lines(text string) []string {
	if text == "" {
		return nil
	}
	text = strings.TrimSuffix(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	return strings.Split(text, "\n")
}
