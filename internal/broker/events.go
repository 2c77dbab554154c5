package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"reservation-service/internal/models"
	"reservation-service/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// ErrMalformedEvent marks a message that can never be handled
var ErrMalformedEvent = errors.New("malformed event")

// EventPublisher handles publishing domain events. Order lifecycle events
// go to the events producer, compensation alerts to the alerts producer.
type EventPublisher struct {
	events *Producer
	alerts *Producer
}

// NewEventPublisher creates a new event publisher. alerts may be the same
// producer as events.
func NewEventPublisher(events, alerts *Producer) *EventPublisher {
	if alerts == nil {
		alerts = events
	}
	return &EventPublisher{events: events, alerts: alerts}
}

func orderKey(orderID int64) string {
	return fmt.Sprintf("order-%d", orderID)
}

func listingKey(listingID int64) string {
	return fmt.Sprintf("listing-%d", listingID)
}

// PublishOrderPlaced publishes OrderPlaced event
func (ep *EventPublisher) PublishOrderPlaced(ctx context.Context, event *models.OrderPlacedEvent) error {
	return ep.events.PublishEvent(ctx, orderKey(event.OrderID), event)
}

// PublishOrderStatusChanged publishes OrderStatusChanged event
func (ep *EventPublisher) PublishOrderStatusChanged(ctx context.Context, event *models.OrderStatusChangedEvent) error {
	return ep.events.PublishEvent(ctx, orderKey(event.OrderID), event)
}

// PublishOrderCancelled publishes OrderCancelled event
func (ep *EventPublisher) PublishOrderCancelled(ctx context.Context, event *models.OrderCancelledEvent) error {
	return ep.events.PublishEvent(ctx, orderKey(event.OrderID), event)
}

// PublishListingRestocked publishes ListingRestocked event
func (ep *EventPublisher) PublishListingRestocked(ctx context.Context, event *models.ListingRestockedEvent) error {
	return ep.events.PublishEvent(ctx, listingKey(event.ListingID), event)
}

// PublishCompensationFailed publishes the alert for stock that could not be
// given back
func (ep *EventPublisher) PublishCompensationFailed(ctx context.Context, event *models.CompensationFailedEvent) error {
	return ep.alerts.PublishEvent(ctx, listingKey(event.ListingID), event)
}

// PublishCompensationSettled publishes CompensationSettled event
func (ep *EventPublisher) PublishCompensationSettled(ctx context.Context, event *models.CompensationSettledEvent) error {
	return ep.alerts.PublishEvent(ctx, listingKey(event.ListingID), event)
}

// EventHandler handles incoming events
type EventHandler struct {
	onOrderPlaced         func(context.Context, *models.OrderPlacedEvent) error
	onOrderStatusChanged  func(context.Context, *models.OrderStatusChangedEvent) error
	onOrderCancelled      func(context.Context, *models.OrderCancelledEvent) error
	onListingRestocked    func(context.Context, *models.ListingRestockedEvent) error
	onCompensationFailed  func(context.Context, *models.CompensationFailedEvent) error
	onCompensationSettled func(context.Context, *models.CompensationSettledEvent) error
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{}
}

// OnOrderPlaced registers a handler for OrderPlaced events
func (eh *EventHandler) OnOrderPlaced(handler func(context.Context, *models.OrderPlacedEvent) error) {
	eh.onOrderPlaced = handler
}

// OnOrderStatusChanged registers a handler for OrderStatusChanged events
func (eh *EventHandler) OnOrderStatusChanged(handler func(context.Context, *models.OrderStatusChangedEvent) error) {
	eh.onOrderStatusChanged = handler
}

// OnOrderCancelled registers a handler for OrderCancelled events
func (eh *EventHandler) OnOrderCancelled(handler func(context.Context, *models.OrderCancelledEvent) error) {
	eh.onOrderCancelled = handler
}

// OnListingRestocked registers a handler for ListingRestocked events
func (eh *EventHandler) OnListingRestocked(handler func(context.Context, *models.ListingRestockedEvent) error) {
	eh.onListingRestocked = handler
}

// OnCompensationFailed registers a handler for CompensationFailed alerts
func (eh *EventHandler) OnCompensationFailed(handler func(context.Context, *models.CompensationFailedEvent) error) {
	eh.onCompensationFailed = handler
}

// OnCompensationSettled registers a handler for CompensationSettled events
func (eh *EventHandler) OnCompensationSettled(handler func(context.Context, *models.CompensationSettledEvent) error) {
	eh.onCompensationSettled = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	util.GetLogger().Debug("Handling event",
		zap.String("type", baseEvent.EventType),
		zap.String("id", baseEvent.EventID))

	switch baseEvent.EventType {
	case models.EventTypeOrderPlaced:
		return dispatch(ctx, msg, eh.onOrderPlaced)
	case models.EventTypeOrderStatusChanged:
		return dispatch(ctx, msg, eh.onOrderStatusChanged)
	case models.EventTypeOrderCancelled:
		return dispatch(ctx, msg, eh.onOrderCancelled)
	case models.EventTypeListingRestocked:
		return dispatch(ctx, msg, eh.onListingRestocked)
	case models.EventTypeCompensationFailed:
		return dispatch(ctx, msg, eh.onCompensationFailed)
	case models.EventTypeCompensationSettled:
		return dispatch(ctx, msg, eh.onCompensationSettled)
	default:
		util.GetLogger().Debug("Unhandled event type", zap.String("type", baseEvent.EventType))
	}

	return nil
}

// dispatch decodes msg into T and calls handler, if one is registered
func dispatch[T any](ctx context.Context, msg kafka.Message, handler func(context.Context, *T) error) error {
	if handler == nil {
		return nil
	}
	var event T
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return fmt.Errorf("%w: %T: %v", ErrMalformedEvent, event, err)
	}
	return handler(ctx, &event)
}
