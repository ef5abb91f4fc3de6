package rag

import (
	"context"
	"errors"
	"sync"

	"gopherai-docqa/internal/ai"
	"gopherai-docqa/internal/extract"
	"gopherai-docqa/internal/model"
)

type scriptedEmbedder struct {
	mu    sync.Mutex
	calls int
	fn    func(call int, text string) ([]float32, error)
}

func (s *scriptedEmbedder) Embed(_ context.Context, text string, _ int) ([]float32, error) {
	s.mu.Lock()
	s.calls++
	call := s.calls
	s.mu.Unlock()
	return s.fn(call, text)
}

// Embed lets the same fake stand in for the retrying client.
type directEmbedder struct {
	fn func(text string) ([]float32, error)
}

func (d directEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	return d.fn(text)
}

type memChunkStore struct {
	rows        []model.ScopedChunk
	vector      bool
	nearestErr  error
	probeCalls  int
	nearestRows []model.ScopedChunk
}

func (m *memChunkStore) ListScoped(_ context.Context, scope model.ChunkScope) ([]model.ScopedChunk, error) {
	var out []model.ScopedChunk
	for _, r := range m.rows {
		if r.UserID != scope.UserID {
			continue
		}
		if len(scope.FileIDs) > 0 && !containsID(scope.FileIDs, r.FileID) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (m *memChunkStore) Nearest(_ context.Context, _ model.ChunkScope, _ []float32, limit int) ([]model.ScopedChunk, error) {
	if m.nearestErr != nil {
		return nil, m.nearestErr
	}
	out := m.nearestRows
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memChunkStore) VectorSearchAvailable(context.Context) (bool, error) {
	m.probeCalls++
	return m.vector, nil
}

func containsID(ids []uint, id uint) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func scoped(id, fileID, userID uint, filename, text string, emb []float32, page *int) model.ScopedChunk {
	return model.ScopedChunk{
		DocumentChunk: model.DocumentChunk{
			ID:         id,
			FileID:     fileID,
			UserID:     userID,
			ChunkIndex: int(id),
			PageNumber: page,
			ChunkText:  text,
			Embedding:  emb,
		},
		Filename: filename,
	}
}

func intPtr(n int) *int { return &n }

type memFiles struct {
	assets map[uint]*model.FileAsset
	saves  []model.FileAsset
}

func (m *memFiles) GetByIDAndUserID(_ context.Context, id, userID uint) (*model.FileAsset, error) {
	a, ok := m.assets[id]
	if !ok || a.UserID != userID {
		return nil, nil
	}
	cp := *a
	cp.Metadata = model.Metadata{}
	for k, v := range a.Metadata {
		cp.Metadata[k] = v
	}
	return &cp, nil
}

func (m *memFiles) SaveState(_ context.Context, asset *model.FileAsset) error {
	cp := *asset
	m.assets[asset.ID] = &cp
	m.saves = append(m.saves, cp)
	return nil
}

type memChunkWriter struct {
	created []model.DocumentChunk
	deleted []uint
	err     error
}

func (m *memChunkWriter) CreateBatch(_ context.Context, chunks []model.DocumentChunk) error {
	if m.err != nil {
		return m.err
	}
	m.created = append(m.created, chunks...)
	return nil
}

func (m *memChunkWriter) DeleteByFile(_ context.Context, _ uint, fileID uint) error {
	m.deleted = append(m.deleted, fileID)
	return nil
}

type memObjects map[string][]byte

func (m memObjects) Get(_ context.Context, key string) ([]byte, error) {
	data, ok := m[key]
	if !ok {
		return nil, errors.New("object not found")
	}
	return data, nil
}

type fixedDocuments struct {
	doc extract.Document
	err error
}

func (f fixedDocuments) Extract(context.Context, []byte, string) (extract.Document, error) {
	return f.doc, f.err
}

type fixedImages struct {
	text, method string
}

func (f fixedImages) Extract(context.Context, []byte, string) (string, string) {
	return f.text, f.method
}

type scriptedLLM struct {
	calls  []string
	script map[string]func() (string, error)
	last   ai.CompletionRequest
}

func (s *scriptedLLM) Complete(_ context.Context, req ai.CompletionRequest) (string, error) {
	s.calls = append(s.calls, req.Model)
	s.last = req
	if fn, ok := s.script[req.Model]; ok {
		return fn()
	}
	return "", errors.New("unscripted model")
}
