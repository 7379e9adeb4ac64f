package services

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"oa-workflow/models"
)

const versionCheckPages = 3

var acceptedMarkers = []string{
	"accepted manuscript",
	"author accepted",
	"accepted author manuscript",
	"accepted for publication",
	"author manuscript",
	"author's manuscript",
	"postprint",
	"post-print",
	"this is the peer reviewed version",
	"not the final published version",
	"has been accepted for publication",
}

var publishedMarkers = []string{
	"©",
	"copyright",
	"all rights reserved",
	"published by",
	"journal homepage",
	"available online",
	"contents lists available at",
	"doi.org/",
	"creative commons attribution",
	"this article is distributed under",
	"issn",
}

func countMarkers(text string, markers []string) int {
	n := 0
	for _, m := range markers {
		n += strings.Count(text, m)
	}
	return n
}

// ClassifyVersionText compares accepted-manuscript phrases with publisher boilerplate.
// A tie yields the unknown version.
func ClassifyVersionText(text string) models.FileVersion {
	text = strings.ToLower(text)
	accepted := countMarkers(text, acceptedMarkers)
	published := countMarkers(text, publishedMarkers)
	switch {
	case accepted > published:
		return models.FileVersionAccepted
	case published > accepted:
		return models.FileVersionPublished
	default:
		return models.FileVersionUnknown
	}
}

// PDFVersionChecker erkennt die Manuskriptversion am Text der ersten Seiten.
type PDFVersionChecker struct {
	MaxPages int
}

// NewPDFVersionChecker erstellt einen Checker für die ersten drei Seiten.
func NewPDFVersionChecker() *PDFVersionChecker {
	return &PDFVersionChecker{MaxPages: versionCheckPages}
}

// Detect gibt für Nicht-PDFs und unlesbare Dateien die unbekannte Version zurück.
func (c *PDFVersionChecker) Detect(data []byte) models.FileVersion {
	if !bytes.HasPrefix(data, []byte("%PDF")) {
		return models.FileVersionUnknown
	}
	text, err := extractText(data, c.MaxPages)
	if err != nil {
		return models.FileVersionUnknown
	}
	return ClassifyVersionText(normalizeExtractedText(text))
}

func extractText(data []byte, maxPages int) (text string, err error) {
	// ledongthuc/pdf panics on some malformed files
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("read pdf: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}

	if maxPages <= 0 || maxPages > reader.NumPage() {
		maxPages = reader.NumPage()
	}

	var builder strings.Builder
	for i := 1; i <= maxPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		builder.WriteString(pageText)
		builder.WriteString("\n")
	}
	return builder.String(), nil
}
