package worker

import (
	"context"
	"errors"

	"gopherai-docqa/internal/model"
)

var ErrPoolClosed = errors.New("worker pool is closed")

// Handler runs one ingestion task. Errors are reported, never retried here.
type Handler func(ctx context.Context, task model.IngestionTask) error
