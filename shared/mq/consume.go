package mq

import (
	"context"
	"errors"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"
)

// Acknowledger is the part of amqp.Delivery that Consume needs.
type Acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

// Handler processes one delivery body. A returned error nacks it.
type Handler func(ctx context.Context, routingKey string, body []byte) error

// ErrDeliveriesClosed is returned by Consume when the broker closes the
// delivery channel.
var ErrDeliveriesClosed = errors.New("delivery channel closed")

// Consume runs handler for every delivery until ctx ends. Successful
// deliveries are acked; failed ones are nacked and, if requeue is set, put
// back on the queue.
func Consume(ctx context.Context, deliveries <-chan amqp.Delivery, requeue bool, handler Handler) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return ErrDeliveriesClosed
			}
			settle(ctx, d, d.RoutingKey, d.Body, requeue, handler)
		}
	}
}

func settle(ctx context.Context, ack Acknowledger, key string, body []byte, requeue bool, handler Handler) {
	if err := handler(ctx, key, body); err != nil {
		log.Error().Err(err).Str("key", key).Bool("requeue", requeue).Msg("handler error")
		_ = ack.Nack(false, requeue)
		return
	}
	_ = ack.Ack(false)
}
