// Package mq is the RabbitMQ client shared by the test generator services.
// Everything goes through one topic exchange so consumers subscribe to
// routing key patterns.
package mq

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"
)

const (
	Exchange     = "testgen.events"
	ExchangeType = "topic"

	dialAttempts = 10
)

// Broker wraps an AMQP connection and a single channel.
type Broker struct {
	url  string
	conn *amqp.Connection
	ch   *amqp.Channel
}

// New connects to RabbitMQ and declares the exchange. Dialing is retried
// with exponential backoff until ctx ends or the attempts run out.
func New(ctx context.Context, amqpURL string) (*Broker, error) {
	b := &Broker{url: amqpURL}
	if err := b.connect(ctx); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *Broker) connect(ctx context.Context) error {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = time.Second
	eb.MaxInterval = 10 * time.Second

	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		conn, err := amqp.Dial(b.url)
		if err != nil {
			log.Warn().Err(err).Int("attempt", attempt).Msg("RabbitMQ connection failed, retrying")
			return err
		}
		b.conn = conn
		return nil
	}, backoff.WithContext(backoff.WithMaxRetries(eb, dialAttempts-1), ctx))
	if err != nil {
		return fmt.Errorf("rabbitmq connect after %d attempts: %w", attempt, err)
	}

	b.ch, err = b.conn.Channel()
	if err != nil {
		b.conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	// Declare durable topic exchange
	return b.ch.ExchangeDeclare(
		Exchange,
		ExchangeType,
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
}

// Publish sends a message to the topic exchange with the given routing key.
func (b *Broker) Publish(ctx context.Context, routingKey string, body []byte) error {
	return b.ch.PublishWithContext(ctx,
		Exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
}

// Subscribe binds a named queue to the exchange using a routing key pattern.
// Pattern examples: "generation.*", "log.#", "generation.failed"
func (b *Broker) Subscribe(queueName, pattern string) (<-chan amqp.Delivery, error) {
	q, err := b.ch.QueueDeclare(
		queueName,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("declare queue %s: %w", queueName, err)
	}

	if err := b.ch.QueueBind(q.Name, pattern, Exchange, false, nil); err != nil {
		return nil, fmt.Errorf("bind queue %s to %s: %w", queueName, pattern, err)
	}

	// Prefetch 1: one message at a time per worker
	if err := b.ch.Qos(1, 0, false); err != nil {
		return nil, fmt.Errorf("set qos: %w", err)
	}

	return b.ch.Consume(
		q.Name,
		"",    // consumer tag, auto-generated
		false, // manual ack after processing
		false, false, false, nil,
	)
}

// Close shuts down channel and connection.
func (b *Broker) Close() {
	if b.ch != nil {
		b.ch.Close()
	}
	if b.conn != nil {
		b.conn.Close()
	}
}
