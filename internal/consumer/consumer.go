// Package consumer reads domain events from the durable queue and hands them
// to a Handler, one delivery at a time.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"gamification-service/internal/broker"
	"gamification-service/internal/config"
	"gamification-service/internal/events"
	"gamification-service/internal/metrics"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "gamification-service/internal/consumer"

// Handler applies one decoded event. A returned error rejects the delivery.
type Handler interface {
	Handle(ctx context.Context, ev events.Event) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, ev events.Event) error

func (f HandlerFunc) Handle(ctx context.Context, ev events.Event) error {
	return f(ctx, ev)
}

// Broker is the connection the consumer subscribes through.
// *broker.Connection satisfies it.
type Broker interface {
	Connect(ctx context.Context) error
	Subscribe(queue string, routingKeys []string, prefetch int) (<-chan amqp.Delivery, io.Closer, error)
}

type Consumer struct {
	cfg     config.RabbitConfig
	conn    Broker
	handler Handler
	log     *logrus.Logger
}

func New(cfg config.RabbitConfig, conn Broker, handler Handler, log *logrus.Logger) *Consumer {
	return &Consumer{
		cfg:     cfg,
		conn:    conn,
		handler: handler,
		log:     log,
	}
}

// Start consumes until ctx is done. After the delivery stream closes, or the
// subscription cannot be set up, the broker connection is re-established and
// the subscription retried with a linearly growing delay. Cycles that end
// before any delivery arrives count as failed attempts; once
// cfg.ConnectAttempts of them happen in a row, or a reconnect exhausts its
// own retries, Start returns broker.ErrUnavailable and the consumer stays down.
func (c *Consumer) Start(ctx context.Context) error {
	attempts := c.cfg.ConnectAttempts
	if attempts < 1 {
		attempts = 1
	}

	failures := 0
	for {
		handled, err := c.consume(ctx)
		if ctx.Err() != nil {
			c.log.Info("stopping consumer")
			return nil
		}

		if handled > 0 {
			failures = 0
		} else {
			failures++
		}

		if failures >= attempts {
			return fmt.Errorf("%w: subscription failed %d times in a row: %v", broker.ErrUnavailable, failures, err)
		}

		delay := c.cfg.ConnectBaseDelay * time.Duration(max(failures, 1))
		c.log.WithError(err).WithFields(logrus.Fields{
			"attempt": failures,
			"delay":   delay,
		}).Error("RabbitMQ subscription lost, reconnecting")

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil
		}

		if err := c.conn.Connect(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		c.log.Info("successfully reconnected to RabbitMQ")
	}
}

// consume runs one subscription until it ends and reports how many
// deliveries it handled.
func (c *Consumer) consume(ctx context.Context) (int, error) {
	msgs, sub, err := c.conn.Subscribe(c.cfg.Queue, events.InboundTypes(), c.cfg.Prefetch)
	if err != nil {
		return 0, err
	}
	defer sub.Close()

	c.log.WithFields(logrus.Fields{
		"queue":    c.cfg.Queue,
		"prefetch": c.cfg.Prefetch,
	}).Info("consumer started")

	return c.loop(ctx, msgs)
}

// loop handles deliveries serially, so events from the queue are applied in
// the order they arrive.
func (c *Consumer) loop(ctx context.Context, msgs <-chan amqp.Delivery) (int, error) {
	handled := 0
	for {
		select {
		case <-ctx.Done():
			return handled, ctx.Err()

		case msg, ok := <-msgs:
			if !ok {
				return handled, errors.New("delivery channel closed")
			}
			c.handleDelivery(ctx, msg)
			handled++
		}
	}
}

// handleDelivery settles msg exactly once: ack on success or unknown type,
// reject without requeue on a malformed body, handler error or panic.
// Rejected messages go to the dead-letter exchange.
func (c *Consumer) handleDelivery(ctx context.Context, msg amqp.Delivery) {
	start := time.Now()

	ctx, span := otel.Tracer(tracerName).Start(ctx, "consume "+msg.RoutingKey,
		trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()

	eventType := msg.RoutingKey
	outcome := "rejected"
	defer func() {
		metrics.EventsConsumed.WithLabelValues(eventType, outcome).Inc()
		metrics.EventDuration.WithLabelValues(eventType).Observe(time.Since(start).Seconds())
	}()

	ev, err := events.Decode(msg.Body)
	if err != nil {
		span.SetStatus(codes.Error, "malformed event")
		c.log.WithFields(logrus.Fields{
			"error":       err,
			"routing_key": msg.RoutingKey,
			"body":        string(msg.Body),
		}).Error("failed to decode message")

		c.reject(msg)
		return
	}

	eventType = ev.Envelope.Type
	span.SetAttributes(
		attribute.String("event.id", ev.Envelope.EventID),
		attribute.String("event.type", eventType),
	)
	fields := logrus.Fields{
		"event_id":   ev.Envelope.EventID,
		"event_type": eventType,
	}

	if _, unknown := ev.Body.(events.Unknown); unknown {
		c.log.WithFields(fields).Info("ignoring event of unknown type")
		outcome = "ignored"
		c.ack(msg)
		return
	}

	if err := c.safeHandle(ctx, ev); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.log.WithFields(fields).WithError(err).Error("failed to handle event, rejecting")

		c.reject(msg)
		return
	}

	outcome = "acked"
	c.ack(msg)
	c.log.WithFields(fields).Debug("event handled")
}

func (c *Consumer) safeHandle(ctx context.Context, ev events.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return c.handler.Handle(ctx, ev)
}

func (c *Consumer) ack(msg amqp.Delivery) {
	if err := msg.Ack(false); err != nil {
		c.log.WithError(err).Warn("failed to ack message")
	}
}

func (c *Consumer) reject(msg amqp.Delivery) {
	if err := msg.Nack(false, false); err != nil {
		c.log.WithError(err).Warn("failed to nack message")
	}
}
