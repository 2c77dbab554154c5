package models

import "time"

// Event types
const (
	EventTypeOrderPlaced         = "ORDER_PLACED"
	EventTypeOrderStatusChanged  = "ORDER_STATUS_CHANGED"
	EventTypeOrderCancelled      = "ORDER_CANCELLED"
	EventTypeListingRestocked    = "LISTING_RESTOCKED"
	EventTypeCompensationFailed  = "COMPENSATION_FAILED"
	EventTypeCompensationSettled = "COMPENSATION_SETTLED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderPlacedEvent published when a reservation commits
type OrderPlacedEvent struct {
	BaseEvent
	OrderID      int64  `json:"order_id"`
	ListingID    int64  `json:"listing_id"`
	RestaurantID int64  `json:"restaurant_id"`
	CustomerID   string `json:"customer_id"`
	Quantity     int    `json:"quantity"`
	TotalPrice   int64  `json:"total_price"`
}

// OrderStatusChangedEvent published on every forward transition
type OrderStatusChangedEvent struct {
	BaseEvent
	OrderID      int64       `json:"order_id"`
	ListingID    int64       `json:"listing_id"`
	RestaurantID int64       `json:"restaurant_id"`
	CustomerID   string      `json:"customer_id"`
	From         OrderStatus `json:"from"`
	To           OrderStatus `json:"to"`
}

// OrderCancelledEvent published when an order is cancelled and its stock released
type OrderCancelledEvent struct {
	BaseEvent
	OrderID      int64  `json:"order_id"`
	ListingID    int64  `json:"listing_id"`
	RestaurantID int64  `json:"restaurant_id"`
	CustomerID   string `json:"customer_id"`
	Quantity     int    `json:"quantity"`
	CancelledBy  string `json:"cancelled_by"`
}

// ListingRestockedEvent published when a restaurant adds stock
type ListingRestockedEvent struct {
	BaseEvent
	ListingID    int64 `json:"listing_id"`
	RestaurantID int64 `json:"restaurant_id"`
	Amount       int   `json:"amount"`
}

// CompensationFailedEvent is the alert raised when taken stock could not be
// given back. OrderID is zero when the order was never recorded.
type CompensationFailedEvent struct {
	BaseEvent
	ListingID int64  `json:"listing_id"`
	OrderID   int64  `json:"order_id,omitempty"`
	Quantity  int    `json:"quantity"`
	Operation string `json:"operation"`
	Reason    string `json:"reason"`
}

// CompensationSettledEvent published once reconciliation has restored the stock
type CompensationSettledEvent struct {
	BaseEvent
	AlertID   string `json:"alert_id"`
	ListingID int64  `json:"listing_id"`
	Quantity  int    `json:"quantity"`
}
