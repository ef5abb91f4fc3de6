package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"gopherai-docqa/internal/model"
)

type FileAssetRepository struct {
	db *gorm.DB
}

func NewFileAssetRepository(db *gorm.DB) *FileAssetRepository {
	return &FileAssetRepository{db: db}
}

func (r *FileAssetRepository) Create(ctx context.Context, asset *model.FileAsset) error {
	if err := r.db.WithContext(ctx).Create(asset).Error; err != nil {
		return fmt.Errorf("create file asset failed: %w", err)
	}
	return nil
}

// GetByIDAndUserID returns nil, nil when the file does not exist or belongs to another user.
func (r *FileAssetRepository) GetByIDAndUserID(ctx context.Context, id, userID uint) (*model.FileAsset, error) {
	var asset model.FileAsset
	if err := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&asset).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get file asset failed: %w", err)
	}
	return &asset, nil
}

func (r *FileAssetRepository) ListByIDsAndUserID(ctx context.Context, ids []uint, userID uint) ([]model.FileAsset, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var list []model.FileAsset
	if err := r.db.WithContext(ctx).Where("id IN ? AND user_id = ?", ids, userID).Order("id ASC").Find(&list).Error; err != nil {
		return nil, fmt.Errorf("list file assets failed: %w", err)
	}
	return list, nil
}

// SaveState writes the status columns and metadata of an already loaded asset.
func (r *FileAssetRepository) SaveState(ctx context.Context, asset *model.FileAsset) error {
	err := r.db.WithContext(ctx).
		Model(asset).
		Where("user_id = ?", asset.UserID).
		Select("status", "ingestion_status", "metadata", "updated_at").
		Updates(asset).Error
	if err != nil {
		return fmt.Errorf("save file asset state failed: %w", err)
	}
	return nil
}

func (r *FileAssetRepository) DeleteByIDAndUserID(ctx context.Context, id, userID uint) error {
	if err := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).Delete(&model.FileAsset{}).Error; err != nil {
		return fmt.Errorf("delete file asset failed: %w", err)
	}
	return nil
}
