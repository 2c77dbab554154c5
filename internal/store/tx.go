package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"reservation-service/internal/models"
)

// PlaceOrderTx reserves stock and records the order in one transaction.
// The order's UnitPrice, RestaurantID and TotalPrice are taken from the
// listing row at the moment of the decrement. Either both writes commit or
// neither does.
func (s *Store) PlaceOrderTx(ctx context.Context, order *models.Order) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", models.ErrOrderPersistenceFailed, err)
	}
	defer tx.Rollback()

	var reserved struct {
		UnitPrice    int64 `db:"unit_price"`
		RestaurantID int64 `db:"restaurant_id"`
	}
	err = tx.GetContext(ctx, &reserved,
		`UPDATE listings
		SET quantity_available = quantity_available - $1, updated_at = NOW()
		WHERE id = $2 AND quantity_available >= $1
		RETURNING unit_price, restaurant_id`,
		order.Quantity, order.ListingID)
	if errors.Is(err, sql.ErrNoRows) {
		var exists bool
		if err := tx.GetContext(ctx, &exists,
			"SELECT EXISTS(SELECT 1 FROM listings WHERE id = $1)", order.ListingID); err != nil {
			return fmt.Errorf("failed to check listing: %w", err)
		}
		if !exists {
			return fmt.Errorf("%w: %d", models.ErrListingNotFound, order.ListingID)
		}
		return fmt.Errorf("%w: listing %d", models.ErrInsufficientStock, order.ListingID)
	}
	if err != nil {
		return fmt.Errorf("failed to reserve stock: %w", err)
	}

	order.UnitPrice = reserved.UnitPrice
	order.RestaurantID = reserved.RestaurantID
	order.TotalPrice = reserved.UnitPrice * int64(order.Quantity)

	err = tx.QueryRowxContext(ctx,
		`INSERT INTO orders (listing_id, restaurant_id, customer_id, quantity, unit_price, total_price, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at`,
		order.ListingID, order.RestaurantID, order.CustomerID, order.Quantity,
		order.UnitPrice, order.TotalPrice, order.Status,
	).Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return fmt.Errorf("%w: insert: %v", models.ErrOrderPersistenceFailed, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", models.ErrOrderPersistenceFailed, err)
	}
	return nil
}

// CancelOrderTx marks the order cancelled and returns its quantity to the
// listing in one transaction. change.To must be cancelled.
func (s *Store) CancelOrderTx(ctx context.Context, change models.StatusChange) (*models.Order, error) {
	if change.To != models.OrderStatusCancelled {
		return nil, fmt.Errorf("%w: %s -> %s", models.ErrInvalidTransition, change.From, change.To)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var order models.Order
	err = tx.GetContext(ctx, &order,
		`UPDATE orders
		SET status = 'cancelled', cancelled_by = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3
		RETURNING `+orderColumns,
		change.ActorID, change.OrderID, change.From)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, statusMiss(ctx, tx, change.OrderID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to cancel order: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE listings
		SET quantity_available = LEAST(quantity_available + $1, quantity_posted), updated_at = NOW()
		WHERE id = $2`,
		order.Quantity, order.ListingID); err != nil {
		return nil, fmt.Errorf("failed to release stock: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &order, nil
}

// SettleCompensation records the alert as processed and gives its quantity
// back in one transaction. It returns false without touching stock when the
// alert was already settled. A missing listing is recorded as processed and
// reported as ErrListingNotFound.
func (s *Store) SettleCompensation(ctx context.Context, alert *models.CompensationFailedEvent) (bool, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		"INSERT INTO processed_events (event_id, event_type) VALUES ($1, $2) ON CONFLICT (event_id) DO NOTHING",
		alert.EventID, alert.EventType)
	if err != nil {
		return false, fmt.Errorf("failed to record event: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}

	res, err = tx.ExecContext(ctx,
		`UPDATE listings
		SET quantity_available = LEAST(quantity_available + $1, quantity_posted), updated_at = NOW()
		WHERE id = $2`,
		alert.Quantity, alert.ListingID)
	if err != nil {
		return false, fmt.Errorf("failed to release stock: %w", err)
	}
	if n, err = res.RowsAffected(); err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}
	if n == 0 {
		return false, fmt.Errorf("%w: %d", models.ErrListingNotFound, alert.ListingID)
	}
	return true, nil
}
