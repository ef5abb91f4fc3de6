package worker

import (
	"context"
	"sync"

	"gopherai-docqa/internal/model"
	"gopherai-docqa/internal/platform/logger"
)

// Pool runs ingestion tasks on a fixed number of goroutines inside the
// process. Close stops intake and waits for queued tasks to finish.
type Pool struct {
	workers int
	handler Handler
	log     *logger.Logger
	tasks   chan model.IngestionTask
	done    chan struct{}

	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
	wg        sync.WaitGroup
	cancel    context.CancelFunc
}

func NewPool(workers, queueSize int, handler Handler, log *logger.Logger) *Pool {
	if workers <= 0 {
		workers = 4
	}
	if queueSize <= 0 {
		queueSize = 64
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Pool{
		workers: workers,
		handler: handler,
		log:     log.With("component", "ingestion_pool"),
		tasks:   make(chan model.IngestionTask, queueSize),
		done:    make(chan struct{}),
	}
}

func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPoolClosed
	}
	if p.cancel != nil {
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for task := range p.tasks {
				p.run(ctx, task)
			}
		}()
	}
	p.log.Info("ingestion pool started", "workers", p.workers)
	return nil
}

// Submit enqueues a task, blocking while the queue is full. A Close during
// the wait makes it return ErrPoolClosed.
func (p *Pool) Submit(ctx context.Context, task model.IngestionTask) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}
	select {
	case p.tasks <- task:
		return nil
	case <-p.done:
		return ErrPoolClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pool) run(ctx context.Context, task model.IngestionTask) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("ingestion task panicked", "task_id", task.ID, "file_id", task.FileID, "panic", r)
		}
	}()
	if err := p.handler(ctx, task); err != nil {
		p.log.Warn("ingestion task failed", "task_id", task.ID, "file_id", task.FileID, "user_id", task.UserID, "error", err)
	}
}

// Close drains queued tasks and waits for running ones. Tasks queued on a
// pool that was never started are dropped.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		close(p.done)

		p.mu.Lock()
		p.closed = true
		close(p.tasks)
		cancel := p.cancel
		p.mu.Unlock()

		p.wg.Wait()
		if cancel != nil {
			cancel()
		}
	})
}
