// Package broker owns the AMQP connection shared by the consumer and the
// publisher: bounded connect with linear backoff, exchange declaration, a
// channel factory for consumers and a guarded publishing channel.
package broker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"gamification-service/internal/config"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// ErrUnavailable is returned once every connect attempt has failed.
var ErrUnavailable = errors.New("message broker unavailable")

// ErrNotConnected is returned by operations attempted before Connect succeeds.
var ErrNotConnected = errors.New("message broker not connected")

// amqpConnection is the part of *amqp.Connection used here.
type amqpConnection interface {
	Channel() (*amqp.Channel, error)
	IsClosed() bool
	Close() error
}

type Connection struct {
	cfg config.RabbitConfig
	log *logrus.Logger

	dial  func(url string) (amqpConnection, error)
	sleep func(ctx context.Context, d time.Duration) error

	mu   sync.RWMutex
	conn amqpConnection

	pubMu sync.Mutex
	pubCh *amqp.Channel
}

func New(cfg config.RabbitConfig, log *logrus.Logger) *Connection {
	return &Connection{
		cfg: cfg,
		log: log,
		dial: func(url string) (amqpConnection, error) {
			return amqp.Dial(url)
		},
		sleep: sleepContext,
	}
}

func (c *Connection) url() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%d%s",
		c.cfg.User, c.cfg.Password, c.cfg.Host, c.cfg.Port, c.cfg.VHost)
}

// Connect dials the broker up to cfg.ConnectAttempts times, waiting
// attempt*ConnectBaseDelay after each failure, and declares the durable topic
// exchange. It returns ErrUnavailable when every attempt fails.
func (c *Connection) Connect(ctx context.Context) error {
	attempts := c.cfg.ConnectAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = c.connectOnce()
		if lastErr == nil {
			c.log.WithFields(logrus.Fields{
				"host":     c.cfg.Host,
				"exchange": c.cfg.Exchange,
				"attempt":  attempt,
			}).Info("connected to RabbitMQ")
			return nil
		}

		if attempt == attempts {
			break
		}

		delay := c.cfg.ConnectBaseDelay * time.Duration(attempt)
		c.log.WithFields(logrus.Fields{
			"attempt": attempt,
			"delay":   delay,
			"error":   lastErr,
		}).Warn("connection to RabbitMQ failed, retrying")

		if err := c.sleep(ctx, delay); err != nil {
			return err
		}
	}

	return fmt.Errorf("%w after %d attempts: %v", ErrUnavailable, attempts, lastErr)
}

func (c *Connection) connectOnce() error {
	conn, err := c.dial(c.url())
	if err != nil {
		return fmt.Errorf("failed to dial RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(
		c.cfg.Exchange,
		amqp.ExchangeTopic,
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		conn.Close()
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	c.mu.Lock()
	old := c.conn
	c.conn = conn
	c.mu.Unlock()

	c.pubMu.Lock()
	c.pubCh = nil
	c.pubMu.Unlock()

	if old != nil && !old.IsClosed() {
		old.Close()
	}
	return nil
}

// DeclareQueue declares the durable queue on ch, binds it to the exchange for
// each routing key and, when a dead-letter exchange is configured, routes
// rejected deliveries to "<queue>.dlq" through it.
func (c *Connection) DeclareQueue(ch *amqp.Channel, queue string, routingKeys []string) error {
	var args amqp.Table

	if dlx := c.cfg.DeadLetterExchange; dlx != "" {
		if err := ch.ExchangeDeclare(dlx, amqp.ExchangeFanout, true, false, false, false, nil); err != nil {
			return fmt.Errorf("failed to declare dead-letter exchange: %w", err)
		}

		dlq := queue + ".dlq"
		if _, err := ch.QueueDeclare(dlq, true, false, false, false, nil); err != nil {
			return fmt.Errorf("failed to declare dead-letter queue: %w", err)
		}
		if err := ch.QueueBind(dlq, "", dlx, false, nil); err != nil {
			return fmt.Errorf("failed to bind dead-letter queue: %w", err)
		}

		args = amqp.Table{"x-dead-letter-exchange": dlx}
	}

	if _, err := ch.QueueDeclare(
		queue,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		args,
	); err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	for _, key := range routingKeys {
		if err := ch.QueueBind(queue, key, c.cfg.Exchange, false, nil); err != nil {
			return fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	return nil
}

// Subscribe opens a channel, declares the queue topology and starts a
// manual-ack consumer on it. Closing the returned channel handle ends the
// subscription.
func (c *Connection) Subscribe(queue string, routingKeys []string, prefetch int) (<-chan amqp.Delivery, io.Closer, error) {
	ch, err := c.Channel()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := c.DeclareQueue(ch, queue, routingKeys); err != nil {
		ch.Close()
		return nil, nil, err
	}

	if err := ch.Qos(prefetch, 0, false); err != nil {
		ch.Close()
		return nil, nil, fmt.Errorf("failed to set QoS: %w", err)
	}

	msgs, err := ch.Consume(
		queue,
		"",    // consumer tag
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		ch.Close()
		return nil, nil, fmt.Errorf("failed to start consuming: %w", err)
	}

	return msgs, ch, nil
}

// Channel opens a new channel for a consumer.
func (c *Connection) Channel() (*amqp.Channel, error) {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil || conn.IsClosed() {
		return nil, ErrNotConnected
	}
	return conn.Channel()
}

// Publish sends msg on the shared publishing channel, opening it on first use.
// A failed publish discards the channel so the next call starts clean.
func (c *Connection) Publish(ctx context.Context, routingKey string, msg amqp.Publishing) error {
	c.pubMu.Lock()
	defer c.pubMu.Unlock()

	if c.pubCh == nil || c.pubCh.IsClosed() {
		ch, err := c.Channel()
		if err != nil {
			return err
		}
		c.pubCh = ch
	}

	if err := c.pubCh.PublishWithContext(ctx, c.cfg.Exchange, routingKey, false, false, msg); err != nil {
		c.pubCh.Close()
		c.pubCh = nil
		return fmt.Errorf("failed to publish %s: %w", routingKey, err)
	}
	return nil
}

func (c *Connection) Close() {
	c.pubMu.Lock()
	if c.pubCh != nil {
		c.pubCh.Close()
		c.pubCh = nil
	}
	c.pubMu.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}

	c.log.Info("broker connection closed")
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
