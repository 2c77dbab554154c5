package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderStatusTransitions(t *testing.T) {
	tests := []struct {
		from OrderStatus
		to   OrderStatus
		ok   bool
	}{
		{OrderStatusPending, OrderStatusPreparing, true},
		{OrderStatusPreparing, OrderStatusReady, true},
		{OrderStatusReady, OrderStatusCompleted, true},
		{OrderStatusPending, OrderStatusCancelled, true},
		{OrderStatusPreparing, OrderStatusCancelled, true},
		{OrderStatusReady, OrderStatusCancelled, false},
		{OrderStatusPending, OrderStatusCompleted, false},
		{OrderStatusPending, OrderStatusReady, false},
		{OrderStatusCompleted, OrderStatusPreparing, false},
		{OrderStatusCancelled, OrderStatusPending, false},
		{OrderStatusPreparing, OrderStatusPending, false},
		{OrderStatusPending, OrderStatusPending, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.ok, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestOrderStatusTerminal(t *testing.T) {
	assert.True(t, OrderStatusCompleted.Terminal())
	assert.True(t, OrderStatusCancelled.Terminal())
	assert.False(t, OrderStatusReady.Terminal())

	assert.True(t, OrderStatusPending.Cancellable())
	assert.True(t, OrderStatusPreparing.Cancellable())
	assert.False(t, OrderStatusReady.Cancellable())
}

func TestParseOrderStatus(t *testing.T) {
	st, err := ParseOrderStatus("ready")
	require.NoError(t, err)
	assert.Equal(t, OrderStatusReady, st)

	_, err = ParseOrderStatus("active")
	assert.Error(t, err)
}

func TestActorPermissions(t *testing.T) {
	order := &Order{ID: 1, RestaurantID: 7, CustomerID: "cust-1"}

	customer := Actor{ID: "cust-1", Role: RoleCustomer}
	stranger := Actor{ID: "cust-2", Role: RoleCustomer}
	owner := Actor{ID: "owner-1", Role: RoleRestaurant, RestaurantID: 7}
	rival := Actor{ID: "owner-2", Role: RoleRestaurant, RestaurantID: 8}

	assert.True(t, customer.CanCancel(order))
	assert.False(t, customer.CanAdvance(order))
	assert.False(t, stranger.CanView(order))
	assert.True(t, owner.CanAdvance(order))
	assert.True(t, owner.CanCancel(order))
	assert.False(t, rival.CanView(order))
	assert.True(t, SystemActor.CanAdvance(order))
}

func TestDiscountPercentage(t *testing.T) {
	l := &Listing{OriginalPrice: 1200, UnitPrice: 400}
	assert.Equal(t, 66, l.DiscountPercentage())

	l = &Listing{OriginalPrice: 0, UnitPrice: 400}
	assert.Equal(t, 0, l.DiscountPercentage())
}
