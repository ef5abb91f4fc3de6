package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"

	"gopherai-docqa/internal/model"
)

var ErrUnscopedQuery = errors.New("chunk query requires a user id")

type ChunkRepository struct {
	db *gorm.DB
}

func NewChunkRepository(db *gorm.DB) *ChunkRepository {
	return &ChunkRepository{db: db}
}

func (r *ChunkRepository) CreateBatch(ctx context.Context, chunks []model.DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).CreateInBatches(&chunks, 100).Error; err != nil {
		return fmt.Errorf("create chunks batch failed: %w", err)
	}
	return nil
}

func (r *ChunkRepository) DeleteByFile(ctx context.Context, userID, fileID uint) error {
	if userID == 0 {
		return ErrUnscopedQuery
	}
	if err := r.db.WithContext(ctx).Where("file_id = ? AND user_id = ?", fileID, userID).Delete(&model.DocumentChunk{}).Error; err != nil {
		return fmt.Errorf("delete chunks by file failed: %w", err)
	}
	return nil
}

// ListScoped loads every chunk in scope together with its file name.
func (r *ChunkRepository) ListScoped(ctx context.Context, scope model.ChunkScope) ([]model.ScopedChunk, error) {
	q, err := r.scoped(ctx, scope)
	if err != nil {
		return nil, err
	}
	var rows []model.ScopedChunk
	err = q.Select("document_chunks.*, file_assets.filename AS filename").
		Order("document_chunks.file_id ASC, document_chunks.chunk_index ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list scoped chunks failed: %w", err)
	}
	return rows, nil
}

// Nearest orders scoped chunks by pgvector cosine distance to query. Postgres only.
func (r *ChunkRepository) Nearest(ctx context.Context, scope model.ChunkScope, query []float32, limit int) ([]model.ScopedChunk, error) {
	q, err := r.scoped(ctx, scope)
	if err != nil {
		return nil, err
	}
	var rows []model.ScopedChunk
	err = q.Select("document_chunks.*, file_assets.filename AS filename, (document_chunks.embedding <=> ?) AS distance", pgvector.NewVector(query)).
		Where("document_chunks.embedding IS NOT NULL").
		Order("distance ASC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("nearest chunks query failed: %w", err)
	}
	return rows, nil
}

// VectorSearchAvailable reports whether the connected database can run Nearest.
func (r *ChunkRepository) VectorSearchAvailable(ctx context.Context) (bool, error) {
	if r.db.Dialector.Name() != "postgres" {
		return false, nil
	}
	var n int64
	if err := r.db.WithContext(ctx).Raw("SELECT COUNT(*) FROM pg_extension WHERE extname = ?", "vector").Scan(&n).Error; err != nil {
		return false, fmt.Errorf("probe vector extension failed: %w", err)
	}
	return n > 0, nil
}

func (r *ChunkRepository) scoped(ctx context.Context, scope model.ChunkScope) (*gorm.DB, error) {
	if scope.UserID == 0 {
		return nil, ErrUnscopedQuery
	}
	q := r.db.WithContext(ctx).
		Table("document_chunks").
		Joins("JOIN file_assets ON file_assets.id = document_chunks.file_id AND file_assets.user_id = document_chunks.user_id").
		Where("document_chunks.user_id = ?", scope.UserID)
	if len(scope.FileIDs) > 0 {
		q = q.Where("document_chunks.file_id IN ?", scope.FileIDs)
	}
	return q, nil
}
