package app

import (
	"context"
	"errors"
	"sync"

	"gopherai-docqa/internal/model"
	"gopherai-docqa/internal/rag"
)

type memFiles struct {
	mu     sync.Mutex
	nextID uint
	rows   map[uint]model.FileAsset
	delErr error
}

func newMemFiles() *memFiles {
	return &memFiles{rows: map[uint]model.FileAsset{}}
}

func (m *memFiles) Create(_ context.Context, asset *model.FileAsset) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	asset.ID = m.nextID
	m.rows[asset.ID] = clone(*asset)
	return nil
}

func (m *memFiles) GetByIDAndUserID(_ context.Context, id, userID uint) (*model.FileAsset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok || row.UserID != userID {
		return nil, nil
	}
	out := clone(row)
	return &out, nil
}

func (m *memFiles) ListByIDsAndUserID(_ context.Context, ids []uint, userID uint) ([]model.FileAsset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.FileAsset
	for _, id := range ids {
		if row, ok := m.rows[id]; ok && row.UserID == userID {
			out = append(out, clone(row))
		}
	}
	return out, nil
}

func (m *memFiles) SaveState(_ context.Context, asset *model.FileAsset) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[asset.ID]
	if !ok || row.UserID != asset.UserID {
		return nil
	}
	row.Status = asset.Status
	row.IngestionStatus = asset.IngestionStatus
	row.Metadata = clone(*asset).Metadata
	m.rows[asset.ID] = row
	return nil
}

func (m *memFiles) DeleteByIDAndUserID(_ context.Context, id, userID uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.delErr != nil {
		return m.delErr
	}
	if row, ok := m.rows[id]; ok && row.UserID == userID {
		delete(m.rows, id)
	}
	return nil
}

func (m *memFiles) get(id uint) (model.FileAsset, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	return row, ok
}

func clone(a model.FileAsset) model.FileAsset {
	meta := model.Metadata{}
	for k, v := range a.Metadata {
		meta[k] = v
	}
	a.Metadata = meta
	return a
}

type recordingQueue struct {
	tasks []model.IngestionTask
	err   error
}

func (q *recordingQueue) Submit(_ context.Context, task model.IngestionTask) error {
	if q.err != nil {
		return q.err
	}
	q.tasks = append(q.tasks, task)
	return nil
}

type stubVectors struct {
	calls int
	err   error
}

func (s *stubVectors) DeleteByFile(context.Context, uint, uint) error {
	s.calls++
	return s.err
}

type stubObjects struct {
	keys []string
	err  error
}

func (s *stubObjects) Delete(_ context.Context, key string) error {
	if s.err != nil {
		return s.err
	}
	s.keys = append(s.keys, key)
	return nil
}

type stubLocks struct {
	err      error
	released int
}

func (s *stubLocks) Acquire(context.Context, uint) (func(), error) {
	if s.err != nil {
		return nil, s.err
	}
	return func() { s.released++ }, nil
}

type stubIngester struct {
	res rag.IngestionResult
	err error
}

func (s stubIngester) Ingest(context.Context, model.IngestionTask) (rag.IngestionResult, error) {
	return s.res, s.err
}

type stubAsker struct {
	answer rag.Answer
	err    error
	got    rag.AskInput
}

func (s *stubAsker) Ask(_ context.Context, in rag.AskInput) (rag.Answer, error) {
	s.got = in
	return s.answer, s.err
}

type memMessages struct {
	saved  []model.Message
	recent []model.Message
}

func (m *memMessages) CreateBatch(_ context.Context, messages []model.Message) error {
	m.saved = append(m.saved, messages...)
	return nil
}

func (m *memMessages) ListRecent(context.Context, string, uint, int) ([]model.Message, error) {
	return m.recent, nil
}

type memHistory struct {
	data     map[string][]model.Message
	getErr   error
	appended int
}

func newMemHistory() *memHistory {
	return &memHistory{data: map[string][]model.Message{}}
}

func (h *memHistory) GetHistory(_ context.Context, _ uint, conversationID string) ([]model.Message, bool, error) {
	if h.getErr != nil {
		return nil, false, h.getErr
	}
	msgs, ok := h.data[conversationID]
	return msgs, ok, nil
}

func (h *memHistory) SetHistory(_ context.Context, _ uint, conversationID string, messages []model.Message) error {
	h.data[conversationID] = messages
	return nil
}

func (h *memHistory) Append(_ context.Context, _ uint, conversationID string, messages ...model.Message) error {
	h.appended += len(messages)
	h.data[conversationID] = append(h.data[conversationID], messages...)
	return nil
}

var errBoom = errors.New("boom")
