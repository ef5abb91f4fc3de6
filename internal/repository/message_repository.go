package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"gopherai-docqa/internal/model"
)

type MessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

func (r *MessageRepository) CreateBatch(ctx context.Context, messages []model.Message) error {
	if len(messages) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Create(&messages).Error; err != nil {
		return fmt.Errorf("create messages failed: %w", err)
	}
	return nil
}

// ListRecent returns the last limit messages of a conversation in chronological order.
func (r *MessageRepository) ListRecent(ctx context.Context, conversationID string, userID uint, limit int) ([]model.Message, error) {
	if limit <= 0 || limit > 200 {
		limit = 100
	}

	var messages []model.Message
	err := r.db.WithContext(ctx).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Order("id DESC").
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, fmt.Errorf("list messages failed: %w", err)
	}
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}
