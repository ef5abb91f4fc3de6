package extract

import (
	"bytes"
	"strings"

	"github.com/ledongthuc/pdf"
)

// pdfPages returns the plain text of each non-blank page, numbered from 1.
func pdfPages(data []byte) ([]Page, error) {
	if len(data) == 0 {
		return nil, nil
	}
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}

	pages := make([]Page, 0, reader.NumPage())
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		pages = append(pages, Page{Number: i, Text: text})
	}
	return pages, nil
}
