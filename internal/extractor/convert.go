package extractor

import (
	"archive/zip"
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/ledongthuc/pdf"
)

// maxFileBytes bounds how much of a single archived file is read. Bundles
// occasionally contain CAD drawings and scans far beyond any useful text.
const maxFileBytes = 64 << 20

// unsupportedFormatError marks a file whose format carries no extractable
// text. These count as skipped, not failed.
type unsupportedFormatError struct {
	ext string
}

func (e *unsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported format %q", e.ext)
}

// convertFile reads one archived file and converts it to markdown text based
// on its extension.
func convertFile(file *zip.File) (string, error) {
	ext := strings.ToLower(path.Ext(file.Name))
	switch ext {
	case ".pdf", ".txt", ".md", ".markdown", ".csv", ".html", ".htm":
	default:
		return "", &unsupportedFormatError{ext: ext}
	}

	rc, err := file.Open()
	if err != nil {
		return "", fmt.Errorf("open: %w", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, maxFileBytes+1))
	if err != nil {
		return "", fmt.Errorf("read: %w", err)
	}
	if len(data) > maxFileBytes {
		return "", fmt.Errorf("file exceeds %d bytes", maxFileBytes)
	}

	switch ext {
	case ".pdf":
		return pdfToText(data)
	case ".csv":
		return csvToMarkdown(data)
	case ".html", ".htm":
		return htmlToText(data)
	default:
		return string(data), nil
	}
}

// pdfToText pulls the plain text stream out of a PDF.
func pdfToText(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("parse pdf: %w", err)
	}
	text, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extract pdf text: %w", err)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(text); err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	if buf.Len() == 0 {
		return "", fmt.Errorf("pdf contains no extractable text")
	}
	return buf.String(), nil
}

// csvToMarkdown renders a CSV file as a markdown pipe table, first row as
// header.
func csvToMarkdown(data []byte) (string, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return "", fmt.Errorf("parse csv: %w", err)
	}
	if len(rows) == 0 {
		return "", nil
	}

	var b strings.Builder
	writeRow := func(cells []string) {
		b.WriteString("|")
		for _, cell := range cells {
			b.WriteString(" ")
			b.WriteString(strings.ReplaceAll(cell, "|", "\\|"))
			b.WriteString(" |")
		}
		b.WriteString("\n")
	}

	writeRow(rows[0])
	b.WriteString("|")
	for range rows[0] {
		b.WriteString(" --- |")
	}
	b.WriteString("\n")
	for _, row := range rows[1:] {
		writeRow(row)
	}
	return b.String(), nil
}

// htmlToText strips markup and returns the readable text of an HTML file.
func htmlToText(data []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	doc.Find("script, style, noscript").Remove()

	var b strings.Builder
	doc.Find("body").Each(func(_ int, sel *goquery.Selection) {
		b.WriteString(sel.Text())
	})
	text := b.String()
	if strings.TrimSpace(text) == "" {
		// Fragment without a body element.
		text = doc.Text()
	}

	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		out = append(out, strings.TrimSpace(line))
	}
	return strings.Join(out, "\n"), nil
}
