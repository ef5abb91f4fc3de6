package rag

import (
	"context"
	"sort"
	"strings"
	"unicode/utf8"

	"gopherai-docqa/internal/model"
)

// KeywordMatcher scores chunks by the share of question words they contain.
type KeywordMatcher struct {
	store ChunkStore
	topK  int
}

func NewKeywordMatcher(store ChunkStore, topK int) *KeywordMatcher {
	if topK <= 0 {
		topK = 5
	}
	return &KeywordMatcher{store: store, topK: topK}
}

func (m *KeywordMatcher) Match(ctx context.Context, question string, scope model.ChunkScope) ([]model.RetrievedChunk, error) {
	if scope.UserID == 0 {
		return nil, ErrScopeViolation
	}
	tokens := queryTokens(question)
	if len(tokens) == 0 {
		return nil, nil
	}
	rows, err := m.store.ListScoped(ctx, scope)
	if err != nil {
		return nil, err
	}

	var out []model.RetrievedChunk
	for _, r := range rows {
		if r.UserID != scope.UserID {
			continue
		}
		text := strings.ToLower(r.ChunkText)
		matches := 0
		for _, t := range tokens {
			if strings.Contains(text, t) {
				matches++
			}
		}
		if matches > 0 {
			out = append(out, model.NewRetrievedChunk(r, float64(matches)/float64(len(tokens))))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Similarity > out[j].Similarity })
	if len(out) > m.topK {
		out = out[:m.topK]
	}
	return out, nil
}

// queryTokens lower-cases, splits on whitespace, drops words of two runes or
// fewer, and removes duplicates keeping first occurrence.
func queryTokens(question string) []string {
	seen := make(map[string]struct{})
	var tokens []string
	for _, w := range strings.Fields(strings.ToLower(question)) {
		if utf8.RuneCountInString(w) <= 2 {
			continue
		}
		if _, ok := seen[w]; ok {
			continue
		}
		seen[w] = struct{}{}
		tokens = append(tokens, w)
	}
	return tokens
}
