package service

import (
	"context"

	"reservation-service/internal/models"
)

// CatalogStore holds listings. ConditionalDecrement must check and deduct
// in a single atomic step.
type CatalogStore interface {
	GetListing(ctx context.Context, id int64) (*models.Listing, error)
	ConditionalDecrement(ctx context.Context, listingID int64, amount int) (bool, error)
	Increment(ctx context.Context, listingID int64, amount int) error
}

// OrderLedger holds orders. UpdateOrderStatus is a compare-and-set on the
// previous status.
type OrderLedger interface {
	InsertOrder(ctx context.Context, order *models.Order) error
	GetOrder(ctx context.Context, id int64) (*models.Order, error)
	UpdateOrderStatus(ctx context.Context, change models.StatusChange) error
	ListOrders(ctx context.Context, filter models.OrderFilter) ([]models.Order, error)
}

// Transactor is implemented by catalogs that can run the reservation and
// the ledger write in one transaction. When available it is always used.
type Transactor interface {
	PlaceOrderTx(ctx context.Context, order *models.Order) error
	CancelOrderTx(ctx context.Context, change models.StatusChange) (*models.Order, error)
}

// ListingStore is the restaurant-facing view of the catalog
type ListingStore interface {
	CreateListing(ctx context.Context, l *models.Listing) error
	GetListing(ctx context.Context, id int64) (*models.Listing, error)
	ListListings(ctx context.Context, restaurantID int64, limit, offset int) ([]models.Listing, int, error)
	UpdateListingDetails(ctx context.Context, l *models.Listing) error
	Restock(ctx context.Context, listingID int64, amount int) (*models.Listing, error)
	DeleteListing(ctx context.Context, listingID int64) error
}

// StockReader reads authoritative availability
type StockReader interface {
	GetStockLevel(ctx context.Context, listingID int64) (*models.StockLevel, error)
	ListStockLevels(ctx context.Context) ([]models.StockLevel, error)
}

// AlertLedger settles compensation alerts. SettleCompensation must record
// the alert and give its stock back atomically, reporting false when the
// alert was settled before.
type AlertLedger interface {
	SettleCompensation(ctx context.Context, alert *models.CompensationFailedEvent) (bool, error)
}

// StockMirror is a non-authoritative copy of availability used for reads
type StockMirror interface {
	SetAvailable(ctx context.Context, listingID int64, available int) error
	AdjustAvailable(ctx context.Context, listingID int64, delta int) error
	GetAvailable(ctx context.Context, listingID int64) (int, bool, error)
	RemoveAvailable(ctx context.Context, listingID int64) error
}

// EventPublisher publishes domain events
type EventPublisher interface {
	PublishOrderPlaced(ctx context.Context, event *models.OrderPlacedEvent) error
	PublishOrderStatusChanged(ctx context.Context, event *models.OrderStatusChangedEvent) error
	PublishOrderCancelled(ctx context.Context, event *models.OrderCancelledEvent) error
	PublishListingRestocked(ctx context.Context, event *models.ListingRestockedEvent) error
	PublishCompensationFailed(ctx context.Context, event *models.CompensationFailedEvent) error
	PublishCompensationSettled(ctx context.Context, event *models.CompensationSettledEvent) error
}

type noopPublisher struct{}

func (noopPublisher) PublishOrderPlaced(context.Context, *models.OrderPlacedEvent) error { return nil }
func (noopPublisher) PublishOrderStatusChanged(context.Context, *models.OrderStatusChangedEvent) error {
	return nil
}
func (noopPublisher) PublishOrderCancelled(context.Context, *models.OrderCancelledEvent) error {
	return nil
}
func (noopPublisher) PublishListingRestocked(context.Context, *models.ListingRestockedEvent) error {
	return nil
}
func (noopPublisher) PublishCompensationFailed(context.Context, *models.CompensationFailedEvent) error {
	return nil
}
func (noopPublisher) PublishCompensationSettled(context.Context, *models.CompensationSettledEvent) error {
	return nil
}

type noopMirror struct{}

func (noopMirror) SetAvailable(context.Context, int64, int) error    { return nil }
func (noopMirror) AdjustAvailable(context.Context, int64, int) error { return nil }
func (noopMirror) GetAvailable(context.Context, int64) (int, bool, error) {
	return 0, false, nil
}
func (noopMirror) RemoveAvailable(context.Context, int64) error { return nil }
