package models

// Role of an authenticated caller
type Role string

const (
	RoleCustomer   Role = "customer"
	RoleRestaurant Role = "restaurant"
	RoleSystem     Role = "system"
)

// Actor is the already-authenticated identity performing an operation.
// RestaurantID is set only for restaurant actors.
type Actor struct {
	ID           string `json:"id"`
	Role         Role   `json:"role"`
	RestaurantID int64  `json:"restaurant_id,omitempty"`
}

// SystemActor is used by background workers
var SystemActor = Actor{ID: "system", Role: RoleSystem}

// IsZero reports whether no identity was supplied
func (a Actor) IsZero() bool {
	return a.ID == ""
}

// OwnsRestaurant reports whether the actor manages the given restaurant
func (a Actor) OwnsRestaurant(restaurantID int64) bool {
	return a.Role == RoleRestaurant && a.RestaurantID != 0 && a.RestaurantID == restaurantID
}

// CanView reports whether the actor may read the order
func (a Actor) CanView(o *Order) bool {
	switch a.Role {
	case RoleSystem:
		return true
	case RoleRestaurant:
		return a.OwnsRestaurant(o.RestaurantID)
	case RoleCustomer:
		return a.ID == o.CustomerID
	}
	return false
}

// CanCancel reports whether the actor may cancel the order
func (a Actor) CanCancel(o *Order) bool {
	return a.CanView(o)
}

// CanAdvance reports whether the actor may move the order through preparation
func (a Actor) CanAdvance(o *Order) bool {
	return a.Role == RoleSystem || a.OwnsRestaurant(o.RestaurantID)
}
