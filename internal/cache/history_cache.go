package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redisv9 "github.com/redis/go-redis/v9"

	"gopherai-docqa/internal/model"
)

// HistoryCache keeps the most recent turns of each conversation in a Redis list.
type HistoryCache struct {
	client     *redisv9.Client
	historyTTL time.Duration
	maxTurns   int
}

func NewHistoryCache(client *redisv9.Client, historyTTL time.Duration, maxTurns int) *HistoryCache {
	if historyTTL <= 0 {
		historyTTL = time.Hour
	}
	if maxTurns <= 0 {
		maxTurns = 20
	}
	return &HistoryCache{
		client:     client,
		historyTTL: historyTTL,
		maxTurns:   maxTurns,
	}
}

// GetHistory returns cached turns oldest first; hit is false when the key is absent.
func (c *HistoryCache) GetHistory(ctx context.Context, userID uint, conversationID string) ([]model.Message, bool, error) {
	key := c.historyKey(userID, conversationID)
	raw, err := c.client.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, false, fmt.Errorf("redis get history failed: %w", err)
	}
	if len(raw) == 0 {
		return nil, false, nil
	}

	messages := make([]model.Message, 0, len(raw))
	for _, item := range raw {
		var m model.Message
		if err := json.Unmarshal([]byte(item), &m); err != nil {
			return nil, false, fmt.Errorf("unmarshal cached history failed: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, true, nil
}

// SetHistory replaces the cached turns.
func (c *HistoryCache) SetHistory(ctx context.Context, userID uint, conversationID string, messages []model.Message) error {
	key := c.historyKey(userID, conversationID)
	pipe := c.client.TxPipeline()
	pipe.Del(ctx, key)
	if err := c.push(ctx, pipe, key, messages); err != nil {
		return err
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis set history failed: %w", err)
	}
	return nil
}

// Append adds turns and trims the list to the newest maxTurns entries.
func (c *HistoryCache) Append(ctx context.Context, userID uint, conversationID string, messages ...model.Message) error {
	if len(messages) == 0 {
		return nil
	}
	key := c.historyKey(userID, conversationID)
	pipe := c.client.TxPipeline()
	if err := c.push(ctx, pipe, key, messages); err != nil {
		return err
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis append history failed: %w", err)
	}
	return nil
}

func (c *HistoryCache) push(ctx context.Context, pipe redisv9.Pipeliner, key string, messages []model.Message) error {
	if len(messages) == 0 {
		return nil
	}
	values := make([]interface{}, 0, len(messages))
	for _, m := range messages {
		payload, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("marshal history cache failed: %w", err)
		}
		values = append(values, payload)
	}
	pipe.RPush(ctx, key, values...)
	pipe.LTrim(ctx, key, int64(-c.maxTurns), -1)
	pipe.Expire(ctx, key, c.historyTTL)
	return nil
}

func (c *HistoryCache) historyKey(userID uint, conversationID string) string {
	return fmt.Sprintf("chat:history:%d:%s", userID, conversationID)
}
