package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"gopherai-docqa/internal/model"
)

// TaskPublisher enqueues ingestion tasks as persistent JSON messages.
type TaskPublisher struct {
	conn      *amqp.Connection
	queueName string
}

func NewTaskPublisher(conn *amqp.Connection, queueName string) *TaskPublisher {
	return &TaskPublisher{
		conn:      conn,
		queueName: queueName,
	}
}

func (p *TaskPublisher) Submit(ctx context.Context, task model.IngestionTask) error {
	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("open rabbitmq channel failed: %w", err)
	}
	defer ch.Close()

	if err := DeclareQueue(ch, p.queueName); err != nil {
		return err
	}

	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal ingestion task failed: %w", err)
	}

	if err := ch.PublishWithContext(
		ctx,
		"",
		p.queueName,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			MessageId:    task.ID,
			Body:         payload,
			DeliveryMode: amqp.Persistent,
		},
	); err != nil {
		return fmt.Errorf("publish ingestion task failed: %w", err)
	}
	return nil
}
