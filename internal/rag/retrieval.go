package rag

import (
	"context"
	"errors"
	"fmt"

	"gopherai-docqa/internal/model"
	"gopherai-docqa/internal/platform/logger"
)

type RetrievalConfig struct {
	TopK      int
	Threshold float64
}

// RetrievalEngine runs the first available similarity backend and applies the
// threshold. When every candidate falls below it, the top candidates are
// returned unfiltered, so an empty result means the scope holds no chunks.
type RetrievalEngine struct {
	backends  []SimilaritySearch
	topK      int
	threshold float64
	log       *logger.Logger
}

func NewRetrievalEngine(cfg RetrievalConfig, log *logger.Logger, backends ...SimilaritySearch) *RetrievalEngine {
	if cfg.TopK <= 0 {
		cfg.TopK = 5
	}
	if log == nil {
		log = logger.Nop()
	}
	return &RetrievalEngine{
		backends:  backends,
		topK:      cfg.TopK,
		threshold: cfg.Threshold,
		log:       log,
	}
}

func (e *RetrievalEngine) TopK() int {
	return e.topK
}

func (e *RetrievalEngine) Retrieve(ctx context.Context, scope model.ChunkScope, query []float32) ([]model.RetrievedChunk, error) {
	if scope.UserID == 0 {
		return nil, ErrScopeViolation
	}

	candidates, err := e.search(ctx, scope, query)
	if err != nil {
		return nil, err
	}
	candidates = e.ownedBy(scope.UserID, candidates)
	if len(candidates) > e.topK {
		candidates = candidates[:e.topK]
	}

	kept := make([]model.RetrievedChunk, 0, len(candidates))
	for _, c := range candidates {
		if c.Similarity >= e.threshold {
			kept = append(kept, c)
		}
	}
	if len(kept) == 0 && len(candidates) > 0 {
		e.log.Info("no chunk above similarity threshold, returning top candidates",
			"user_id", scope.UserID,
			"threshold", e.threshold,
			"best", candidates[0].Similarity,
			"count", len(candidates),
		)
		return candidates, nil
	}
	return kept, nil
}

func (e *RetrievalEngine) search(ctx context.Context, scope model.ChunkScope, query []float32) ([]model.RetrievedChunk, error) {
	var errs []error
	for _, b := range e.backends {
		if !b.Available(ctx) {
			continue
		}
		out, err := b.Search(ctx, scope, query, e.topK)
		if err == nil {
			return out, nil
		}
		e.log.Warn("similarity backend failed, falling back",
			"backend", b.Name(),
			"user_id", scope.UserID,
			"stage", "retrieve",
			"error", err,
		)
		errs = append(errs, fmt.Errorf("%s: %w", b.Name(), err))
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("all similarity backends failed: %w", errors.Join(errs...))
	}
	return nil, errors.New("no similarity backend available")
}

func (e *RetrievalEngine) ownedBy(userID uint, in []model.RetrievedChunk) []model.RetrievedChunk {
	out := in[:0]
	for _, c := range in {
		if c.UserID != userID {
			e.log.Error("dropping chunk outside user scope", "user_id", userID, "chunk_id", c.ChunkID, "error", ErrScopeViolation)
			continue
		}
		out = append(out, c)
	}
	return out
}
