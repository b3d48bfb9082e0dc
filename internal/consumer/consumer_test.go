package consumer

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"gamification-service/internal/broker"
	"gamification-service/internal/config"
	"gamification-service/internal/events"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// acknowledger records how each delivery was settled.
type acknowledger struct {
	acks    int
	nacks   int
	requeue bool
}

func (a *acknowledger) Ack(uint64, bool) error {
	a.acks++
	return nil
}

func (a *acknowledger) Nack(_ uint64, _ bool, requeue bool) error {
	a.nacks++
	a.requeue = a.requeue || requeue
	return nil
}

func (a *acknowledger) Reject(_ uint64, requeue bool) error {
	a.nacks++
	a.requeue = a.requeue || requeue
	return nil
}

func delivery(ack *acknowledger, body string) amqp.Delivery {
	return amqp.Delivery{
		Acknowledger: ack,
		RoutingKey:   events.TypeModuleCompleted,
		Body:         []byte(body),
	}
}

func newConsumer(h HandlerFunc) *Consumer {
	return New(config.RabbitConfig{Queue: "gamification.events"}, nil, h, quietLogger())
}

const validBody = `{"eventId":"E1","type":"progress.module.completed.v1","payload":{"userId":"U1","moduleId":"M1","xpEarned":50}}`

func TestHandleDeliveryAcksOnSuccess(t *testing.T) {
	var got events.Event
	c := newConsumer(func(_ context.Context, ev events.Event) error {
		got = ev
		return nil
	})

	ack := &acknowledger{}
	c.handleDelivery(context.Background(), delivery(ack, validBody))

	assert.Equal(t, 1, ack.acks)
	assert.Zero(t, ack.nacks)
	assert.Equal(t, "E1", got.Envelope.EventID)
}

func TestHandleDeliveryRejectsMalformed(t *testing.T) {
	called := false
	c := newConsumer(func(context.Context, events.Event) error {
		called = true
		return nil
	})

	for _, body := range []string{`not json`, `{"type":"progress.module.completed.v1"}`, `{"eventId":"E1","type":"progress.module.completed.v1","payload":{}}`} {
		ack := &acknowledger{}
		c.handleDelivery(context.Background(), delivery(ack, body))

		assert.Zero(t, ack.acks, body)
		assert.Equal(t, 1, ack.nacks, body)
		assert.False(t, ack.requeue, "malformed messages are never requeued")
	}
	assert.False(t, called)
}

func TestHandleDeliveryRejectsHandlerError(t *testing.T) {
	c := newConsumer(func(context.Context, events.Event) error {
		return errors.New("db down")
	})

	ack := &acknowledger{}
	c.handleDelivery(context.Background(), delivery(ack, validBody))

	assert.Zero(t, ack.acks)
	assert.Equal(t, 1, ack.nacks)
	assert.False(t, ack.requeue)
}

func TestHandleDeliveryRecoversPanic(t *testing.T) {
	c := newConsumer(func(context.Context, events.Event) error {
		panic("boom")
	})

	ack := &acknowledger{}
	assert.NotPanics(t, func() {
		c.handleDelivery(context.Background(), delivery(ack, validBody))
	})
	assert.Equal(t, 1, ack.nacks)
	assert.Zero(t, ack.acks)
}

func TestHandleDeliveryAcksUnknownType(t *testing.T) {
	called := false
	c := newConsumer(func(context.Context, events.Event) error {
		called = true
		return nil
	})

	ack := &acknowledger{}
	c.handleDelivery(context.Background(), delivery(ack, `{"eventId":"E9","type":"catalog.course.published.v3","payload":{}}`))

	assert.Equal(t, 1, ack.acks)
	assert.Zero(t, ack.nacks)
	assert.False(t, called)
}

func TestLoopProcessesSeriallyAndStopsOnClose(t *testing.T) {
	inFlight, maxInFlight, handled := 0, 0, 0
	c := newConsumer(func(context.Context, events.Event) error {
		inFlight++
		if inFlight > maxInFlight {
			maxInFlight = inFlight
		}
		time.Sleep(time.Millisecond)
		handled++
		inFlight--
		return nil
	})

	msgs := make(chan amqp.Delivery, 3)
	acks := []*acknowledger{{}, {}, {}}
	for _, a := range acks {
		msgs <- delivery(a, validBody)
	}
	close(msgs)

	n, err := c.loop(context.Background(), msgs)
	require.Error(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 3, handled)
	assert.Equal(t, 1, maxInFlight)
	for _, a := range acks {
		assert.Equal(t, 1, a.acks)
	}
}

func TestLoopStopsWithContext(t *testing.T) {
	c := newConsumer(func(context.Context, events.Event) error { return nil })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.loop(ctx, make(chan amqp.Delivery))
	assert.ErrorIs(t, err, context.Canceled)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// fakeBroker serves one scripted result per Subscribe call and fails every
// call past the end of the script.
type fakeBroker struct {
	mu         sync.Mutex
	script     []func() (<-chan amqp.Delivery, error)
	subscribes int
	connects   int
	connectErr error
}

func (b *fakeBroker) Connect(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connects++
	return b.connectErr
}

func (b *fakeBroker) Subscribe(string, []string, int) (<-chan amqp.Delivery, io.Closer, error) {
	b.mu.Lock()
	n := b.subscribes
	b.subscribes++
	b.mu.Unlock()

	if n < len(b.script) {
		msgs, err := b.script[n]()
		if err != nil {
			return nil, nil, err
		}
		return msgs, nopCloser{}, nil
	}
	return nil, nil, errors.New("PRECONDITION_FAILED - inequivalent arg 'x-dead-letter-exchange'")
}

func failing() (<-chan amqp.Delivery, error) {
	return nil, errors.New("PRECONDITION_FAILED - inequivalent arg 'x-dead-letter-exchange'")
}

func oneDelivery() (<-chan amqp.Delivery, error) {
	msgs := make(chan amqp.Delivery, 1)
	msgs <- delivery(&acknowledger{}, validBody)
	close(msgs)
	return msgs, nil
}

func startConsumer(b *fakeBroker, attempts int) *Consumer {
	cfg := config.RabbitConfig{
		Queue:            "gamification.events",
		ConnectAttempts:  attempts,
		ConnectBaseDelay: time.Millisecond,
	}
	return New(cfg, b, HandlerFunc(func(context.Context, events.Event) error { return nil }), quietLogger())
}

func TestStartGivesUpWhenSubscriptionKeepsFailing(t *testing.T) {
	b := &fakeBroker{}
	c := startConsumer(b, 3)

	err := c.Start(context.Background())
	require.ErrorIs(t, err, broker.ErrUnavailable)
	assert.Contains(t, err.Error(), "PRECONDITION_FAILED")
	assert.Equal(t, 3, b.subscribes)
	assert.Equal(t, 2, b.connects)
}

func TestStartResetsAttemptsOnceDeliveriesFlow(t *testing.T) {
	b := &fakeBroker{script: []func() (<-chan amqp.Delivery, error){failing, failing, oneDelivery}}
	c := startConsumer(b, 3)

	err := c.Start(context.Background())
	require.ErrorIs(t, err, broker.ErrUnavailable)
	// two failures, one productive cycle, then three more failures
	assert.Equal(t, 6, b.subscribes)
}

func TestStartStopsWhenReconnectIsExhausted(t *testing.T) {
	b := &fakeBroker{
		script:     []func() (<-chan amqp.Delivery, error){oneDelivery},
		connectErr: broker.ErrUnavailable,
	}
	c := startConsumer(b, 10)

	err := c.Start(context.Background())
	require.ErrorIs(t, err, broker.ErrUnavailable)
	assert.Equal(t, 1, b.subscribes)
	assert.Equal(t, 1, b.connects)
}

func TestStartReturnsNilOnCancel(t *testing.T) {
	b := &fakeBroker{script: []func() (<-chan amqp.Delivery, error){
		func() (<-chan amqp.Delivery, error) { return make(chan amqp.Delivery), nil },
	}}
	c := startConsumer(b, 3)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Start did not return after cancel")
	}
}
