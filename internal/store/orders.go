package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"reservation-service/internal/models"

	"github.com/jmoiron/sqlx"
)

const orderColumns = `id, listing_id, restaurant_id, customer_id, quantity, unit_price,
	total_price, status, cancelled_by, created_at, updated_at`

// InsertOrder records a new order
func (s *Store) InsertOrder(ctx context.Context, order *models.Order) error {
	query := `
		INSERT INTO orders (listing_id, restaurant_id, customer_id, quantity, unit_price, total_price, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at`

	return s.db.QueryRowxContext(ctx, query,
		order.ListingID, order.RestaurantID, order.CustomerID, order.Quantity,
		order.UnitPrice, order.TotalPrice, order.Status,
	).Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt)
}

// GetOrder retrieves an order by ID
func (s *Store) GetOrder(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT "+orderColumns+" FROM orders WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", models.ErrOrderNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// UpdateOrderStatus moves an order from change.From to change.To. It fails
// with ErrStatusConflict if the order is no longer in change.From.
func (s *Store) UpdateOrderStatus(ctx context.Context, change models.StatusChange) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE orders
		SET status = $1,
			cancelled_by = CASE WHEN $1 = 'cancelled' THEN $2 ELSE cancelled_by END,
			updated_at = NOW()
		WHERE id = $3 AND status = $4`,
		change.To, change.ActorID, change.OrderID, change.From)
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	return statusMiss(ctx, s.db, change.OrderID)
}

// ListOrders returns orders matching the filter, newest first
func (s *Store) ListOrders(ctx context.Context, filter models.OrderFilter) ([]models.Order, error) {
	var (
		conds []string
		args  []interface{}
	)
	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if filter.CustomerID != "" {
		add("customer_id = $%d", filter.CustomerID)
	}
	if filter.RestaurantID != 0 {
		add("restaurant_id = $%d", filter.RestaurantID)
	}
	if filter.ListingID != 0 {
		add("listing_id = $%d", filter.ListingID)
	}
	if filter.Status != "" {
		add("status = $%d", filter.Status)
	}

	query := "SELECT " + orderColumns + " FROM orders"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	orders := []models.Order{}
	err := s.db.SelectContext(ctx, &orders, query, args...)
	return orders, err
}

// HeldQuantity sums the quantity of non-cancelled orders for a listing
func (s *Store) HeldQuantity(ctx context.Context, listingID int64) (int, error) {
	var held int
	err := s.db.GetContext(ctx, &held,
		"SELECT COALESCE(SUM(quantity), 0) FROM orders WHERE listing_id = $1 AND status <> 'cancelled'",
		listingID)
	return held, err
}

// statusMiss explains why a compare-and-set status update touched no row
func statusMiss(ctx context.Context, q sqlx.QueryerContext, orderID int64) error {
	var exists bool
	if err := sqlx.GetContext(ctx, q, &exists,
		"SELECT EXISTS(SELECT 1 FROM orders WHERE id = $1)", orderID); err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: %d", models.ErrOrderNotFound, orderID)
	}
	return fmt.Errorf("%w: order %d", models.ErrStatusConflict, orderID)
}
