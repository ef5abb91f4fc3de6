package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"gopherai-docqa/internal/model"
	"gopherai-docqa/internal/platform/logger"
	"gopherai-docqa/internal/platform/rabbitmq"
)

// IngestionConsumer runs ingestion tasks delivered through RabbitMQ.
type IngestionConsumer struct {
	conn      *amqp.Connection
	queueName string
	prefetch  int
	handler   Handler
	log       *logger.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewIngestionConsumer(conn *amqp.Connection, queueName string, prefetch int, handler Handler, log *logger.Logger) *IngestionConsumer {
	if prefetch <= 0 {
		prefetch = 1
	}
	if log == nil {
		log = logger.Nop()
	}
	return &IngestionConsumer{
		conn:      conn,
		queueName: queueName,
		prefetch:  prefetch,
		handler:   handler,
		log:       log.With("component", "ingestion_consumer", "queue", queueName),
	}
}

// Start opens one channel and runs prefetch handlers concurrently on it.
func (w *IngestionConsumer) Start(ctx context.Context) error {
	if w.cancel != nil {
		return nil
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	ch, err := w.conn.Channel()
	if err != nil {
		cancel()
		return fmt.Errorf("open worker channel failed: %w", err)
	}
	if err := rabbitmq.DeclareQueue(ch, w.queueName); err != nil {
		_ = ch.Close()
		cancel()
		return err
	}
	if err := ch.Qos(w.prefetch, 0, false); err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("set worker qos failed: %w", err)
	}

	deliveries, err := ch.Consume(
		w.queueName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("consume queue failed: %w", err)
	}

	var loops sync.WaitGroup
	for i := 0; i < w.prefetch; i++ {
		loops.Add(1)
		go func() {
			defer loops.Done()
			w.loop(workerCtx, deliveries)
		}()
	}
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		loops.Wait()
		_ = ch.Close()
	}()

	w.log.Info("ingestion consumer started", "prefetch", w.prefetch)
	return nil
}

func (w *IngestionConsumer) loop(ctx context.Context, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			w.handle(ctx, d)
		}
	}
}

func (w *IngestionConsumer) handle(ctx context.Context, d amqp.Delivery) {
	var task model.IngestionTask
	if err := json.Unmarshal(d.Body, &task); err != nil {
		w.log.Error("decode ingestion task failed", "error", err)
		_ = d.Nack(false, false)
		return
	}

	if err := w.handler(ctx, task); err != nil {
		w.log.Warn("ingestion task failed", "task_id", task.ID, "file_id", task.FileID, "user_id", task.UserID, "error", err)
		_ = d.Nack(false, false)
		return
	}
	_ = d.Ack(false)
}

func (w *IngestionConsumer) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
