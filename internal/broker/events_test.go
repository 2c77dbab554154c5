package broker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"reservation-service/internal/models"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
	err  error
}

func (w *captureWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *captureWriter) Close() error { return nil }

func newCaptureProducer(topic string) (*Producer, *captureWriter) {
	w := &captureWriter{}
	return &Producer{writer: w, topic: topic}, w
}

func base(eventType string) models.BaseEvent {
	return models.BaseEvent{EventID: "evt-1", EventType: eventType, Timestamp: time.Now()}
}

func TestEventPublisherRoutesByTopic(t *testing.T) {
	events, eventsW := newCaptureProducer("order-events")
	alerts, alertsW := newCaptureProducer("inventory-alerts")
	ep := NewEventPublisher(events, alerts)
	ctx := context.Background()

	require.NoError(t, ep.PublishOrderPlaced(ctx, &models.OrderPlacedEvent{
		BaseEvent: base(models.EventTypeOrderPlaced), OrderID: 9, ListingID: 3, Quantity: 2,
	}))
	require.NoError(t, ep.PublishCompensationFailed(ctx, &models.CompensationFailedEvent{
		BaseEvent: base(models.EventTypeCompensationFailed), ListingID: 3, Quantity: 2,
	}))

	require.Len(t, eventsW.msgs, 1)
	assert.Equal(t, "order-9", string(eventsW.msgs[0].Key))

	var placed models.OrderPlacedEvent
	require.NoError(t, json.Unmarshal(eventsW.msgs[0].Value, &placed))
	assert.Equal(t, int64(9), placed.OrderID)
	assert.Equal(t, models.EventTypeOrderPlaced, placed.EventType)

	require.Len(t, alertsW.msgs, 1)
	assert.Equal(t, "listing-3", string(alertsW.msgs[0].Key))
}

func TestEventPublisherSharedProducer(t *testing.T) {
	events, w := newCaptureProducer("order-events")
	ep := NewEventPublisher(events, nil)

	require.NoError(t, ep.PublishCompensationSettled(context.Background(), &models.CompensationSettledEvent{
		BaseEvent: base(models.EventTypeCompensationSettled), ListingID: 1,
	}))
	assert.Len(t, w.msgs, 1)
}

func TestPublishEventWriteError(t *testing.T) {
	p, w := newCaptureProducer("order-events")
	w.err = errors.New("leader not available")

	err := p.PublishEvent(context.Background(), "k", map[string]int{"a": 1})
	assert.ErrorContains(t, err, "leader not available")
}

func message(t *testing.T, event interface{}) kafka.Message {
	value, err := json.Marshal(event)
	require.NoError(t, err)
	return kafka.Message{Value: value}
}

func TestHandleMessageRoutesEvents(t *testing.T) {
	h := NewEventHandler()

	var cancelled *models.OrderCancelledEvent
	var alert *models.CompensationFailedEvent
	h.OnOrderCancelled(func(_ context.Context, e *models.OrderCancelledEvent) error {
		cancelled = e
		return nil
	})
	h.OnCompensationFailed(func(_ context.Context, e *models.CompensationFailedEvent) error {
		alert = e
		return nil
	})
	ctx := context.Background()

	require.NoError(t, h.HandleMessage(ctx, message(t, &models.OrderCancelledEvent{
		BaseEvent: base(models.EventTypeOrderCancelled), OrderID: 4, ListingID: 2, Quantity: 3,
	})))
	require.NotNil(t, cancelled)
	assert.Equal(t, int64(4), cancelled.OrderID)
	assert.Equal(t, 3, cancelled.Quantity)

	require.NoError(t, h.HandleMessage(ctx, message(t, &models.CompensationFailedEvent{
		BaseEvent: base(models.EventTypeCompensationFailed), ListingID: 2, Quantity: 1, Operation: "cancel_order",
	})))
	require.NotNil(t, alert)
	assert.Equal(t, "cancel_order", alert.Operation)

	// No handler registered
	assert.NoError(t, h.HandleMessage(ctx, message(t, &models.OrderPlacedEvent{
		BaseEvent: base(models.EventTypeOrderPlaced),
	})))
	assert.NoError(t, h.HandleMessage(ctx, message(t, &models.BaseEvent{EventType: "SOMETHING_ELSE"})))
}

func TestHandleMessageMalformed(t *testing.T) {
	h := NewEventHandler()
	h.OnOrderPlaced(func(context.Context, *models.OrderPlacedEvent) error { return nil })

	err := h.HandleMessage(context.Background(), kafka.Message{Value: []byte("{not json")})
	assert.ErrorIs(t, err, ErrMalformedEvent)

	err = h.HandleMessage(context.Background(), kafka.Message{
		Value: []byte(`{"event_type":"ORDER_PLACED","order_id":"nine"}`),
	})
	assert.ErrorIs(t, err, ErrMalformedEvent)
}

func TestConsumerHandleRetries(t *testing.T) {
	c := &Consumer{maxAttempts: 3}
	ctx := context.Background()

	calls := 0
	err := c.handle(ctx, func(context.Context, kafka.Message) error {
		calls++
		if calls < 3 {
			return errors.New("db busy")
		}
		return nil
	}, kafka.Message{})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)

	calls = 0
	err = c.handle(ctx, func(context.Context, kafka.Message) error {
		calls++
		return ErrMalformedEvent
	}, kafka.Message{})
	assert.ErrorIs(t, err, ErrMalformedEvent)
	assert.Equal(t, 1, calls)
}

func TestConsumerRetryUntilHandled(t *testing.T) {
	c := &Consumer{maxAttempts: 3}
	WithRetryUntilHandled(time.Millisecond)(c)
	ctx := context.Background()

	calls := 0
	err := c.handle(ctx, func(context.Context, kafka.Message) error {
		calls++
		if calls <= 10 {
			return errors.New("db down")
		}
		return nil
	}, kafka.Message{})
	require.NoError(t, err)
	assert.Equal(t, 11, calls)

	// Malformed messages still give up at once
	calls = 0
	err = c.handle(ctx, func(context.Context, kafka.Message) error {
		calls++
		return ErrMalformedEvent
	}, kafka.Message{})
	assert.ErrorIs(t, err, ErrMalformedEvent)
	assert.Equal(t, 1, calls)
}

func TestConsumerRetryUntilHandledStopsWithContext(t *testing.T) {
	c := &Consumer{}
	WithRetryUntilHandled(time.Millisecond)(c)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	calls := 0
	err := c.handle(ctx, func(context.Context, kafka.Message) error {
		calls++
		if calls == 5 {
			cancel()
		}
		return errors.New("db down")
	}, kafka.Message{})
	assert.Error(t, err)
	assert.Equal(t, 5, calls)
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
}

func TestConsumerBackoff(t *testing.T) {
	c := &Consumer{maxAttempts: 3, retryBackoff: time.Second}
	assert.Equal(t, time.Second, c.backoff(1))
	assert.Equal(t, 5*time.Second, c.backoff(5))

	WithRetryUntilHandled(3 * time.Second)(c)
	assert.Equal(t, 2*time.Second, c.backoff(2))
	assert.Equal(t, 3*time.Second, c.backoff(50))
}
