package events

import (
	"context"

	"github.com/rs/zerolog/log"
)

// Publisher is satisfied by *mq.Broker.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, body []byte) error
}

// Feed is satisfied by *hub.Hub.
type Feed interface {
	BroadcastRaw(b []byte)
}

// Emitter sends envelopes to the live feed and, when configured, to the
// broker. Delivery failures are logged and never returned.
type Emitter struct {
	service string
	feed    Feed
	pub     Publisher
}

// NewEmitter accepts nil for either sink.
func NewEmitter(service string, feed Feed, pub Publisher) *Emitter {
	return &Emitter{service: service, feed: feed, pub: pub}
}

func (e *Emitter) Emit(ctx context.Context, routingKey string, payload any) {
	b, err := Wrap(routingKey, payload)
	if err != nil {
		log.Error().Err(err).Str("key", routingKey).Msg("wrap event")
		return
	}
	if e.feed != nil {
		e.feed.BroadcastRaw(b)
	}
	if e.pub != nil {
		if err := e.pub.Publish(ctx, routingKey, b); err != nil {
			log.Warn().Err(err).Str("key", routingKey).Msg("publish event")
		}
	}
}

// Log writes message to the service log and emits it as a log.event.
func (e *Emitter) Log(ctx context.Context, requestID, level, step, message string, data map[string]any) {
	log.Info().Str("service", e.service).Str("request", requestID).Str("step", step).Msg(message)
	e.Emit(ctx, LogEvent, LogEventPayload{
		RequestID: requestID,
		Level:     level,
		Step:      step,
		Message:   message,
		Data:      data,
	})
}
