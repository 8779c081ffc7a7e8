// Package queue carries scheduler ticks over RabbitMQ so a single consumer
// drives batch execution even when several processes can request sweeps.
package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/streadway/amqp"
	"go.uber.org/zap"
)

const tickQueueName = "campaign_ticks"

// TickMessage asks the scheduler consumer to run one sweep.
type TickMessage struct {
	RequestedBy string    `json:"requested_by"`
	RequestedAt time.Time `json:"requested_at"`
}

// TickHandler processes one tick. A nil return acks the delivery; an error
// nacks it without requeue, since the next periodic tick supersedes it.
type TickHandler func(ctx context.Context, msg TickMessage) error

type TickQueue struct {
	conn   *amqp.Connection
	ch     *amqp.Channel
	Logger *zap.SugaredLogger
}

func Dial(url string, log *zap.SugaredLogger) (*TickQueue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, errors.Wrap(err, "connect to RabbitMQ")
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "open channel")
	}
	_, err = ch.QueueDeclare(
		tickQueueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, errors.Wrap(err, "declare tick queue")
	}
	return &TickQueue{conn: conn, ch: ch, Logger: log}, nil
}

func (q *TickQueue) Close() {
	q.ch.Close()
	q.conn.Close()
}

func (q *TickQueue) PublishTick(msg TickMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "encode tick")
	}
	return q.ch.Publish(
		"",            // default exchange
		tickQueueName, // routing key
		false,         // mandatory
		false,         // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
}

// ConsumeTicks blocks until ctx is cancelled or the delivery channel closes.
func (q *TickQueue) ConsumeTicks(ctx context.Context, handler TickHandler) error {
	deliveries, err := q.ch.Consume(
		tickQueueName,
		"",    // consumer tag
		false, // autoAck off, ack after the sweep finishes
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return errors.Wrap(err, "register tick consumer")
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("tick delivery channel closed")
			}

			var msg TickMessage
			if err := json.Unmarshal(d.Body, &msg); err != nil {
				q.Logger.Warnw("dropping malformed tick", "error", err)
				d.Ack(false)
				continue
			}

			if err := handler(ctx, msg); err != nil {
				q.Logger.Errorw("tick sweep failed", "requested_by", msg.RequestedBy, "error", err)
				// the next periodic tick covers the same work, do not requeue
				d.Nack(false, false)
				continue
			}
			d.Ack(false)
		}
	}
}
