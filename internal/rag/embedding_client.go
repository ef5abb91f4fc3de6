package rag

import (
	"context"
	"fmt"
	"time"

	"gopherai-docqa/internal/platform/logger"
)

// EmbeddingProvider produces one vector per call and may fail transiently.
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string, dimension int) ([]float32, error)
}

type EmbeddingClientConfig struct {
	Dimension  int
	MaxRetries int
}

// EmbeddingClient retries a provider with 1s, 2s, 4s... backoff between attempts.
type EmbeddingClient struct {
	provider   EmbeddingProvider
	dimension  int
	maxRetries int
	sleep      func(ctx context.Context, d time.Duration) error
	log        *logger.Logger
}

func NewEmbeddingClient(provider EmbeddingProvider, cfg EmbeddingClientConfig, log *logger.Logger) *EmbeddingClient {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if log == nil {
		log = logger.Nop()
	}
	return &EmbeddingClient{
		provider:   provider,
		dimension:  cfg.Dimension,
		maxRetries: cfg.MaxRetries,
		sleep:      sleepContext,
		log:        log,
	}
}

// WithSleep replaces the backoff sleeper.
func (c *EmbeddingClient) WithSleep(fn func(ctx context.Context, d time.Duration) error) *EmbeddingClient {
	c.sleep = fn
	return c
}

func (c *EmbeddingClient) Dimension() int {
	return c.dimension
}

func (c *EmbeddingClient) Embed(ctx context.Context, text string) ([]float32, error) {
	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		vec, err := c.provider.Embed(ctx, text, c.dimension)
		if err == nil && len(vec) == 0 {
			err = fmt.Errorf("empty embedding: %w", ErrTransientProvider)
		}
		if err == nil && c.dimension > 0 && len(vec) != c.dimension {
			err = fmt.Errorf("embedding dimension %d, want %d: %w", len(vec), c.dimension, ErrTransientProvider)
		}
		if err == nil {
			return vec, nil
		}
		lastErr = err

		if attempt == c.maxRetries-1 {
			break
		}
		wait := time.Duration(1<<attempt) * time.Second
		c.log.Warn("embedding attempt failed, retrying",
			"attempt", attempt+1,
			"max_attempts", c.maxRetries,
			"wait", wait.String(),
			"error", err,
		)
		if err := c.sleep(ctx, wait); err != nil {
			return nil, fmt.Errorf("embedding retry interrupted: %w", err)
		}
	}
	return nil, fmt.Errorf("%w after %d attempts: %w", ErrEmbeddingExhausted, c.maxRetries, lastErr)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
