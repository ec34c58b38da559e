// Package events carries telemetry and mission status over RabbitMQ.
package events

import (
	"context"
	"fmt"
	"log"
	"time"

	amqp "github.com/streadway/amqp"
)

// Channel is the subset of *amqp.Channel used here.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
}

var _ Channel = (*amqp.Channel)(nil)

var amqpDial = amqp.Dial

// Dial connects to the broker, retrying every delay up to attempts times.
// It gives up early with ctx.Err() once ctx is done.
func Dial(ctx context.Context, url string, attempts int, delay time.Duration) (*amqp.Connection, error) {
	var (
		conn *amqp.Connection
		err  error
	)
	for i := 1; i <= attempts; i++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		conn, err = amqpDial(url)
		if err == nil {
			return conn, nil
		}
		log.Printf("RabbitMQ connection failed (attempt %d/%d): %v", i, attempts, err)
		if i < attempts {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return nil, fmt.Errorf("connect to rabbitmq: %w", err)
}

// DeclareTopology declares the telemetry fanout exchange and the durable
// status queue.
func DeclareTopology(ch Channel, exchange, statusQueue string) error {
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeFanout, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	if _, err := ch.QueueDeclare(statusQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", statusQueue, err)
	}
	return nil
}
