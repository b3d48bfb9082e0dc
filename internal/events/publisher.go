package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher emits derived events. Callers treat failures as advisory.
type Publisher interface {
	Publish(ctx context.Context, event DomainEvent) error
}

// Sender is the broker operation the AMQP publisher needs.
type Sender interface {
	Publish(ctx context.Context, routingKey string, msg amqp.Publishing) error
}

// AMQPPublisher publishes events to the configured exchange with the event
// type as routing key.
type AMQPPublisher struct {
	sender Sender
}

func NewAMQPPublisher(sender Sender) *AMQPPublisher {
	return &AMQPPublisher{sender: sender}
}

func (p *AMQPPublisher) Publish(ctx context.Context, event DomainEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", event.Type, err)
	}

	return p.sender.Publish(ctx, event.Type, amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		MessageId:     event.EventID,
		CorrelationId: event.CorrelationID,
		Type:          event.Type,
		Timestamp:     time.Now().UTC(),
		Body:          body,
	})
}

// NopPublisher drops every event. Used when the broker is disabled.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, DomainEvent) error { return nil }
