package models

import "time"

// Listing represents a posted surplus meal deal
type Listing struct {
	ID                int64     `db:"id" json:"id"`
	RestaurantID      int64     `db:"restaurant_id" json:"restaurant_id"`
	Name              string    `db:"name" json:"name"`
	Description       string    `db:"description" json:"description"`
	OriginalPrice     int64     `db:"original_price" json:"original_price"`
	UnitPrice         int64     `db:"unit_price" json:"unit_price"`
	QuantityAvailable int       `db:"quantity_available" json:"quantity_available"`
	QuantityPosted    int       `db:"quantity_posted" json:"quantity_posted"`
	PickupStart       time.Time `db:"pickup_start" json:"pickup_start"`
	PickupEnd         time.Time `db:"pickup_end" json:"pickup_end"`
	IsVegetarian      bool      `db:"is_vegetarian" json:"is_vegetarian"`
	PortionSize       string    `db:"portion_size" json:"portion_size,omitempty"`
	ImageURL          string    `db:"image_url" json:"image_url,omitempty"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}

// DiscountPercentage is derived from the two prices, rounded down
func (l *Listing) DiscountPercentage() int {
	if l.OriginalPrice <= 0 || l.UnitPrice >= l.OriginalPrice {
		return 0
	}
	return int((l.OriginalPrice - l.UnitPrice) * 100 / l.OriginalPrice)
}

// Order represents a customer reservation against a listing
type Order struct {
	ID           int64       `db:"id" json:"id"`
	ListingID    int64       `db:"listing_id" json:"listing_id"`
	RestaurantID int64       `db:"restaurant_id" json:"restaurant_id"`
	CustomerID   string      `db:"customer_id" json:"customer_id"`
	Quantity     int         `db:"quantity" json:"quantity"`
	UnitPrice    int64       `db:"unit_price" json:"unit_price"`
	TotalPrice   int64       `db:"total_price" json:"total_price"`
	Status       OrderStatus `db:"status" json:"status"`
	CancelledBy  string      `db:"cancelled_by" json:"cancelled_by,omitempty"`
	CreatedAt    time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time   `db:"updated_at" json:"updated_at"`
}

// OrderFilter narrows order listings for the dashboard and customer views
type OrderFilter struct {
	CustomerID   string
	RestaurantID int64
	ListingID    int64
	Status       OrderStatus
	Limit        int
}

// StockLevel is the availability of a single listing
type StockLevel struct {
	ListingID int64 `db:"id" json:"listing_id"`
	Available int   `db:"quantity_available" json:"quantity_available"`
}

// StatusChange is a compare-and-set transition of one order
type StatusChange struct {
	OrderID int64
	From    OrderStatus
	To      OrderStatus
	ActorID string
}
