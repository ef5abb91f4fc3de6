package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	redisv9 "github.com/redis/go-redis/v9"
)

var ErrLockHeld = errors.New("file is locked by another request")

var releaseScript = redisv9.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// FileLock serializes ingestion triggers for the same file across instances.
type FileLock struct {
	client *redisv9.Client
	ttl    time.Duration
}

func NewFileLock(client *redisv9.Client, ttl time.Duration) *FileLock {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &FileLock{client: client, ttl: ttl}
}

// Acquire returns ErrLockHeld when another holder owns the lock. The returned
// release func only deletes the key if it still holds this caller's token.
func (l *FileLock) Acquire(ctx context.Context, fileID uint) (func(), error) {
	key := l.key(fileID)
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis acquire file lock failed: %w", err)
	}
	if !ok {
		return nil, ErrLockHeld
	}
	return func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		_ = releaseScript.Run(ctx, l.client, []string{key}, token).Err()
	}, nil
}

func (l *FileLock) key(fileID uint) string {
	return fmt.Sprintf("file:ingest:lock:%d", fileID)
}
