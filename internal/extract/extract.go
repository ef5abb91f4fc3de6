package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

var ErrUnsupportedType = errors.New("unsupported file type")

// Page is one unit of extracted text. Number is 0 when the format has no pages.
type Page struct {
	Number int
	Text   string
}

type Document struct {
	Pages []Page
}

// Text joins all pages with blank lines.
func (d Document) Text() string {
	parts := make([]string, 0, len(d.Pages))
	for _, p := range d.Pages {
		parts = append(parts, p.Text)
	}
	return strings.Join(parts, "\n\n")
}

// Extractor parses raw document bytes into text by file type.
type Extractor struct{}

func New() *Extractor {
	return &Extractor{}
}

func (e *Extractor) Extract(ctx context.Context, data []byte, fileType string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	switch strings.ToLower(strings.TrimPrefix(fileType, ".")) {
	case "pdf":
		pages, err := pdfPages(data)
		if err != nil {
			return Document{}, fmt.Errorf("extract pdf failed: %w", err)
		}
		return Document{Pages: pages}, nil
	case "docx":
		text, err := docxText(data)
		if err != nil {
			return Document{}, fmt.Errorf("extract docx failed: %w", err)
		}
		return Document{Pages: []Page{{Text: text}}}, nil
	case "txt":
		return Document{Pages: []Page{{Text: plainText(data)}}}, nil
	default:
		return Document{}, fmt.Errorf("%w: %s", ErrUnsupportedType, fileType)
	}
}

func plainText(data []byte) string {
	if utf8.Valid(data) {
		return string(data)
	}
	return strings.ToValidUTF8(string(data), "�")
}
