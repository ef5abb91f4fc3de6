package rag

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"gopherai-docqa/internal/model"
)

// ChunkStore is the read side of chunk persistence used by retrieval.
type ChunkStore interface {
	ListScoped(ctx context.Context, scope model.ChunkScope) ([]model.ScopedChunk, error)
	Nearest(ctx context.Context, scope model.ChunkScope, query []float32, limit int) ([]model.ScopedChunk, error)
	VectorSearchAvailable(ctx context.Context) (bool, error)
}

// SimilaritySearch ranks scoped chunks against a query vector, best first.
type SimilaritySearch interface {
	Name() string
	Available(ctx context.Context) bool
	Search(ctx context.Context, scope model.ChunkScope, query []float32, limit int) ([]model.RetrievedChunk, error)
}

// NativeSearch delegates ordering to the database's vector distance operator.
type NativeSearch struct {
	store    ChunkStore
	probeTTL time.Duration

	mu        sync.Mutex
	probedAt  time.Time
	available bool
}

func NewNativeSearch(store ChunkStore, probeTTL time.Duration) *NativeSearch {
	if probeTTL <= 0 {
		probeTTL = time.Minute
	}
	return &NativeSearch{store: store, probeTTL: probeTTL}
}

func (s *NativeSearch) Name() string { return "native" }

// Available re-probes the database at most once per probeTTL.
func (s *NativeSearch) Available(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.probedAt.IsZero() && time.Since(s.probedAt) < s.probeTTL {
		return s.available
	}
	ok, err := s.store.VectorSearchAvailable(ctx)
	s.available = ok && err == nil
	s.probedAt = time.Now()
	return s.available
}

func (s *NativeSearch) Search(ctx context.Context, scope model.ChunkScope, query []float32, limit int) ([]model.RetrievedChunk, error) {
	rows, err := s.store.Nearest(ctx, scope, query, limit)
	if err != nil {
		return nil, err
	}
	out := make([]model.RetrievedChunk, 0, len(rows))
	for _, r := range rows {
		out = append(out, model.NewRetrievedChunk(r, math.Max(0, 1-r.Distance)))
	}
	return out, nil
}

// MemorySearch loads every scoped chunk and ranks by cosine similarity.
type MemorySearch struct {
	store ChunkStore
}

func NewMemorySearch(store ChunkStore) *MemorySearch {
	return &MemorySearch{store: store}
}

func (s *MemorySearch) Name() string { return "memory" }

func (s *MemorySearch) Available(context.Context) bool { return true }

func (s *MemorySearch) Search(ctx context.Context, scope model.ChunkScope, query []float32, limit int) ([]model.RetrievedChunk, error) {
	rows, err := s.store.ListScoped(ctx, scope)
	if err != nil {
		return nil, err
	}
	out := make([]model.RetrievedChunk, 0, len(rows))
	for _, r := range rows {
		out = append(out, model.NewRetrievedChunk(r, CosineSimilarity(query, r.Embedding)))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Similarity > out[j].Similarity })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// CosineSimilarity is 0 when either vector has zero norm or the lengths differ.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
