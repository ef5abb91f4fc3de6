package rag

import (
	"strings"

	"gopherai-docqa/internal/extract"
)

type ChunkerConfig struct {
	Size    int
	Overlap int
}

// TextChunk is one chunk ready for embedding.
type TextChunk struct {
	Index      int
	Text       string
	PageNumber *int
}

// Chunker splits text into overlapping windows, preferring to cut after a
// sentence end or at a blank line when one lies past the window midpoint.
type Chunker struct {
	size    int
	overlap int
}

func NewChunker(cfg ChunkerConfig) *Chunker {
	size := cfg.Size
	if size <= 0 {
		size = 800
	}
	overlap := cfg.Overlap
	if overlap < 0 || overlap >= size {
		overlap = 0
	}
	return &Chunker{size: size, overlap: overlap}
}

// ChunkPages windows every page separately, then folds fragments across page
// boundaries so a stray page number joins the chunk before it. Indices run on
// across pages.
func (c *Chunker) ChunkPages(pages []extract.Page) []TextChunk {
	var pieces []TextChunk
	for _, p := range pages {
		var page *int
		if p.Number > 0 {
			n := p.Number
			page = &n
		}
		for _, text := range c.windows(p.Text) {
			pieces = append(pieces, TextChunk{Text: text, PageNumber: page})
		}
	}
	out := mergeFragments(pieces)
	for i := range out {
		out[i].Index = i
	}
	return out
}

func (c *Chunker) windows(text string) []string {
	runes := []rune(text)
	n := len(runes)
	if n <= c.size {
		return []string{text}
	}

	var out []string
	start := 0
	for start < n {
		end := start + c.size
		if end >= n {
			out = append(out, string(runes[start:]))
			break
		}
		if brk := lastBreak(runes[start:end]); brk > c.size/2 {
			end = start + brk + 1
		}
		out = append(out, string(runes[start:end]))

		// A break can make the chunk shorter than the overlap; keep what
		// overlap fits and still move forward.
		start = end - min(c.overlap, end-start-1)
	}
	return out
}

// lastBreak finds the last ". " or "\n\n" in window, as a rune offset, or -1.
func lastBreak(window []rune) int {
	for i := len(window) - 2; i >= 0; i-- {
		if (window[i] == '.' && window[i+1] == ' ') || (window[i] == '\n' && window[i+1] == '\n') {
			return i
		}
	}
	return -1
}

// mergeFragments folds blank and single-character pieces into the previous
// chunk, which keeps its own page number.
func mergeFragments(pieces []TextChunk) []TextChunk {
	out := make([]TextChunk, 0, len(pieces))
	for _, p := range pieces {
		trimmed := strings.TrimSpace(p.Text)
		switch {
		case trimmed == "":
			if len(out) > 0 {
				out[len(out)-1].Text += "\n" + p.Text
			}
		case len([]rune(trimmed)) == 1 && len(out) > 0:
			out[len(out)-1].Text += p.Text
		default:
			out = append(out, p)
		}
	}
	return out
}
