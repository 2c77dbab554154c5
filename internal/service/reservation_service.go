package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"reservation-service/internal/models"
	"reservation-service/internal/util"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// casRetries bounds how often a status update is retried after losing a
// compare-and-set race
const casRetries = 3

// ReservationService turns purchase requests into orders without letting a
// listing's available quantity go negative
type ReservationService struct {
	catalog   CatalogStore
	ledger    OrderLedger
	tx        Transactor
	publisher EventPublisher
	mirror    StockMirror
	releaser  *releaser
	pageLimit int
	logger    *zap.Logger
}

// NewReservationService creates a new reservation service. If catalog also
// implements Transactor, placement and cancellation run in one transaction.
// publisher and mirror may be nil.
func NewReservationService(
	catalog CatalogStore,
	ledger OrderLedger,
	publisher EventPublisher,
	mirror StockMirror,
	policy RetryPolicy,
	pageLimit int,
) *ReservationService {
	if publisher == nil {
		publisher = noopPublisher{}
	}
	if mirror == nil {
		mirror = noopMirror{}
	}
	if pageLimit <= 0 {
		pageLimit = 50
	}

	s := &ReservationService{
		catalog:   catalog,
		ledger:    ledger,
		publisher: publisher,
		mirror:    mirror,
		releaser:  newReleaser(catalog, publisher, policy),
		pageLimit: pageLimit,
		logger:    util.GetLogger(),
	}
	if tx, ok := catalog.(Transactor); ok {
		s.tx = tx
	}
	return s
}

// PlaceOrderRequest represents a request to reserve units of a listing
type PlaceOrderRequest struct {
	ListingID int64 `json:"listing_id" binding:"required"`
	Quantity  int   `json:"quantity"`
}

// PlaceOrder reserves req.Quantity units and records a pending order. It
// returns the order only when both the reservation and the order are durable.
func (s *ReservationService) PlaceOrder(ctx context.Context, actor models.Actor, req PlaceOrderRequest) (order *models.Order, err error) {
	ctx, span := util.StartSpan(ctx, "ReservationService.PlaceOrder",
		attribute.Int64("listing_id", req.ListingID),
		attribute.Int("quantity", req.Quantity))
	defer func() { util.EndSpan(span, err) }()

	if actor.IsZero() {
		return nil, models.ErrForbidden
	}
	if req.Quantity <= 0 {
		util.OrdersFailedTotal.WithLabelValues("invalid_quantity").Inc()
		return nil, fmt.Errorf("%w: got %d", models.ErrInvalidQuantity, req.Quantity)
	}

	// A caller that goes away must not leave stock taken without an order.
	ctx = context.WithoutCancel(ctx)

	start := time.Now()
	defer func() {
		util.InventoryReserveLatency.Observe(time.Since(start).Seconds())
	}()

	order = &models.Order{
		ListingID:  req.ListingID,
		CustomerID: actor.ID,
		Quantity:   req.Quantity,
		Status:     models.OrderStatusPending,
	}

	if s.tx != nil {
		err = s.tx.PlaceOrderTx(ctx, order)
	} else {
		err = s.reserveThenRecord(ctx, order)
	}
	if err != nil {
		util.OrdersFailedTotal.WithLabelValues(failureReason(err)).Inc()
		fields := []zap.Field{
			zap.Int64("listing_id", req.ListingID),
			zap.String("customer_id", actor.ID),
			zap.Int("quantity", req.Quantity),
			zap.Error(err),
		}
		if IsClientError(err) {
			s.logger.Info("Order rejected", fields...)
		} else {
			s.logger.Error("Order failed", fields...)
		}
		return nil, err
	}

	util.OrdersPlacedTotal.Inc()
	s.logger.Info("Order placed",
		zap.Int64("order_id", order.ID),
		zap.Int64("listing_id", order.ListingID),
		zap.Int("quantity", order.Quantity),
		zap.Int64("total_price", order.TotalPrice))

	s.adjustMirror(ctx, order.ListingID, -order.Quantity)

	event := &models.OrderPlacedEvent{
		BaseEvent:    newBaseEvent(models.EventTypeOrderPlaced),
		OrderID:      order.ID,
		ListingID:    order.ListingID,
		RestaurantID: order.RestaurantID,
		CustomerID:   order.CustomerID,
		Quantity:     order.Quantity,
		TotalPrice:   order.TotalPrice,
	}
	if err := s.publisher.PublishOrderPlaced(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderPlaced event", zap.Error(err))
	}

	return order, nil
}

// reserveThenRecord is the path for catalogs without transactions: take the
// stock with a conditional decrement, then write the order, giving the stock
// back if the write fails.
func (s *ReservationService) reserveThenRecord(ctx context.Context, order *models.Order) error {
	listing, err := s.catalog.GetListing(ctx, order.ListingID)
	if err != nil {
		if errors.Is(err, models.ErrListingNotFound) {
			return err
		}
		return fmt.Errorf("failed to load listing: %w", err)
	}

	ok, err := s.catalog.ConditionalDecrement(ctx, order.ListingID, order.Quantity)
	if err != nil {
		return fmt.Errorf("failed to reserve stock: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: listing %d", models.ErrInsufficientStock, order.ListingID)
	}

	order.RestaurantID = listing.RestaurantID
	order.UnitPrice = listing.UnitPrice
	order.TotalPrice = listing.UnitPrice * int64(order.Quantity)

	if err := s.ledger.InsertOrder(ctx, order); err != nil {
		s.logger.Warn("Order insert failed after reservation, releasing stock",
			zap.Int64("listing_id", order.ListingID),
			zap.Int("quantity", order.Quantity),
			zap.Error(err))

		if relErr := s.releaser.release(ctx, "place_order", order.ListingID, 0, order.Quantity); relErr != nil {
			return relErr
		}
		order.ID = 0
		return fmt.Errorf("%w: %v", models.ErrOrderPersistenceFailed, err)
	}
	return nil
}

// CancelOrder cancels a pending or preparing order and returns its units to
// the listing
func (s *ReservationService) CancelOrder(ctx context.Context, actor models.Actor, orderID int64) (order *models.Order, err error) {
	ctx, span := util.StartSpan(ctx, "ReservationService.CancelOrder", attribute.Int64("order_id", orderID))
	defer func() { util.EndSpan(span, err) }()

	ctx = context.WithoutCancel(ctx)

	for attempt := 0; attempt < casRetries; attempt++ {
		current, err := s.ledger.GetOrder(ctx, orderID)
		if err != nil {
			return nil, err
		}
		if !actor.CanCancel(current) {
			return nil, models.ErrForbidden
		}
		if !current.Status.Cancellable() {
			return nil, fmt.Errorf("%w: %s -> %s", models.ErrInvalidTransition, current.Status, models.OrderStatusCancelled)
		}

		change := models.StatusChange{
			OrderID: orderID,
			From:    current.Status,
			To:      models.OrderStatusCancelled,
			ActorID: actor.ID,
		}

		order, err = s.cancel(ctx, current, change)
		if errors.Is(err, models.ErrStatusConflict) {
			continue
		}
		if err != nil {
			return nil, err
		}

		util.OrdersCancelledTotal.Inc()
		util.OrderTransitionsTotal.WithLabelValues(string(models.OrderStatusCancelled)).Inc()
		s.logger.Info("Order cancelled",
			zap.Int64("order_id", order.ID),
			zap.Int64("listing_id", order.ListingID),
			zap.Int("quantity", order.Quantity),
			zap.String("cancelled_by", actor.ID))

		s.adjustMirror(ctx, order.ListingID, order.Quantity)

		event := &models.OrderCancelledEvent{
			BaseEvent:    newBaseEvent(models.EventTypeOrderCancelled),
			OrderID:      order.ID,
			ListingID:    order.ListingID,
			RestaurantID: order.RestaurantID,
			CustomerID:   order.CustomerID,
			Quantity:     order.Quantity,
			CancelledBy:  actor.ID,
		}
		if err := s.publisher.PublishOrderCancelled(ctx, event); err != nil {
			s.logger.Error("Failed to publish OrderCancelled event", zap.Error(err))
		}
		return order, nil
	}

	return nil, fmt.Errorf("%w: order %d kept changing", models.ErrInvalidTransition, orderID)
}

func (s *ReservationService) cancel(ctx context.Context, current *models.Order, change models.StatusChange) (*models.Order, error) {
	if s.tx != nil {
		return s.tx.CancelOrderTx(ctx, change)
	}

	if err := s.ledger.UpdateOrderStatus(ctx, change); err != nil {
		return nil, err
	}

	cancelled := *current
	cancelled.Status = models.OrderStatusCancelled
	cancelled.CancelledBy = change.ActorID

	if err := s.releaser.release(ctx, "cancel_order", current.ListingID, current.ID, current.Quantity); err != nil {
		return nil, err
	}
	return &cancelled, nil
}

// AdvanceStatus moves an order forward through preparation. A target of
// cancelled behaves like CancelOrder.
func (s *ReservationService) AdvanceStatus(ctx context.Context, actor models.Actor, orderID int64, next models.OrderStatus) (order *models.Order, err error) {
	if next == models.OrderStatusCancelled {
		return s.CancelOrder(ctx, actor, orderID)
	}

	ctx, span := util.StartSpan(ctx, "ReservationService.AdvanceStatus",
		attribute.Int64("order_id", orderID),
		attribute.String("status", string(next)))
	defer func() { util.EndSpan(span, err) }()

	if !next.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", models.ErrInvalidTransition, next)
	}

	for attempt := 0; attempt < casRetries; attempt++ {
		current, err := s.ledger.GetOrder(ctx, orderID)
		if err != nil {
			return nil, err
		}
		if !actor.CanAdvance(current) {
			return nil, models.ErrForbidden
		}
		if !current.Status.CanTransitionTo(next) {
			return nil, fmt.Errorf("%w: %s -> %s", models.ErrInvalidTransition, current.Status, next)
		}

		change := models.StatusChange{OrderID: orderID, From: current.Status, To: next, ActorID: actor.ID}
		err = s.ledger.UpdateOrderStatus(ctx, change)
		if errors.Is(err, models.ErrStatusConflict) {
			continue
		}
		if err != nil {
			return nil, err
		}

		util.OrderTransitionsTotal.WithLabelValues(string(next)).Inc()
		s.logger.Info("Order status changed",
			zap.Int64("order_id", orderID),
			zap.String("from", string(current.Status)),
			zap.String("to", string(next)))

		updated := *current
		updated.Status = next

		event := &models.OrderStatusChangedEvent{
			BaseEvent:    newBaseEvent(models.EventTypeOrderStatusChanged),
			OrderID:      updated.ID,
			ListingID:    updated.ListingID,
			RestaurantID: updated.RestaurantID,
			CustomerID:   updated.CustomerID,
			From:         current.Status,
			To:           next,
		}
		if err := s.publisher.PublishOrderStatusChanged(ctx, event); err != nil {
			s.logger.Error("Failed to publish OrderStatusChanged event", zap.Error(err))
		}
		return &updated, nil
	}

	return nil, fmt.Errorf("%w: order %d kept changing", models.ErrInvalidTransition, orderID)
}

// GetOrder returns an order visible to the actor
func (s *ReservationService) GetOrder(ctx context.Context, actor models.Actor, orderID int64) (*models.Order, error) {
	order, err := s.ledger.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !actor.CanView(order) {
		return nil, fmt.Errorf("%w: %d", models.ErrOrderNotFound, orderID)
	}
	return order, nil
}

// ListOrders returns the actor's orders: a customer sees their own, a
// restaurant sees those placed against its listings
func (s *ReservationService) ListOrders(ctx context.Context, actor models.Actor, filter models.OrderFilter) ([]models.Order, error) {
	switch actor.Role {
	case models.RoleCustomer:
		filter.CustomerID = actor.ID
	case models.RoleRestaurant:
		if actor.RestaurantID == 0 {
			return nil, models.ErrForbidden
		}
		filter.RestaurantID = actor.RestaurantID
	case models.RoleSystem:
	default:
		return nil, models.ErrForbidden
	}

	if filter.Status != "" && !filter.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", models.ErrInvalidTransition, filter.Status)
	}
	if filter.Limit <= 0 || filter.Limit > s.pageLimit {
		filter.Limit = s.pageLimit
	}

	return s.ledger.ListOrders(ctx, filter)
}

func (s *ReservationService) adjustMirror(ctx context.Context, listingID int64, delta int) {
	if err := s.mirror.AdjustAvailable(ctx, listingID, delta); err != nil {
		util.StockMirrorErrorsTotal.WithLabelValues("adjust").Inc()
		s.logger.Warn("Failed to adjust stock mirror",
			zap.Int64("listing_id", listingID),
			zap.Error(err))
	}
}

func newBaseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now(),
	}
}

// failureReason labels a placement failure for metrics
func failureReason(err error) string {
	switch {
	case errors.Is(err, models.ErrInvalidQuantity):
		return "invalid_quantity"
	case errors.Is(err, models.ErrListingNotFound):
		return "listing_not_found"
	case errors.Is(err, models.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, models.ErrCompensationFailed):
		return "compensation_failed"
	case errors.Is(err, models.ErrOrderPersistenceFailed):
		return "persistence_failed"
	}
	return "error"
}
