package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"reservation-service/internal/models"
)

const listingColumns = `id, restaurant_id, name, description, original_price, unit_price,
	quantity_available, quantity_posted, pickup_start, pickup_end,
	is_vegetarian, portion_size, image_url, created_at, updated_at`

// CreateListing inserts a new listing
func (s *Store) CreateListing(ctx context.Context, l *models.Listing) error {
	query := `
		INSERT INTO listings (restaurant_id, name, description, original_price, unit_price,
			quantity_available, quantity_posted, pickup_start, pickup_end,
			is_vegetarian, portion_size, image_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, created_at, updated_at`

	return s.db.QueryRowxContext(ctx, query,
		l.RestaurantID, l.Name, l.Description, l.OriginalPrice, l.UnitPrice,
		l.QuantityAvailable, l.QuantityPosted, l.PickupStart, l.PickupEnd,
		l.IsVegetarian, l.PortionSize, l.ImageURL,
	).Scan(&l.ID, &l.CreatedAt, &l.UpdatedAt)
}

// GetListing retrieves a listing by ID
func (s *Store) GetListing(ctx context.Context, id int64) (*models.Listing, error) {
	var l models.Listing
	err := s.db.GetContext(ctx, &l, "SELECT "+listingColumns+" FROM listings WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", models.ErrListingNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// ListListings returns a page of listings, newest first. restaurantID 0 lists all.
func (s *Store) ListListings(ctx context.Context, restaurantID int64, limit, offset int) ([]models.Listing, int, error) {
	var total int
	if err := s.db.GetContext(ctx, &total,
		"SELECT COUNT(*) FROM listings WHERE ($1 = 0 OR restaurant_id = $1)", restaurantID); err != nil {
		return nil, 0, err
	}

	listings := []models.Listing{}
	err := s.db.SelectContext(ctx, &listings,
		"SELECT "+listingColumns+` FROM listings
		WHERE ($1 = 0 OR restaurant_id = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`, restaurantID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return listings, total, nil
}

// UpdateListingDetails updates the editable fields of a listing. Quantities
// are left alone; they only move through the reservation primitives.
func (s *Store) UpdateListingDetails(ctx context.Context, l *models.Listing) error {
	query := `
		UPDATE listings
		SET name = $1, description = $2, original_price = $3, unit_price = $4,
			pickup_start = $5, pickup_end = $6, is_vegetarian = $7,
			portion_size = $8, image_url = $9, updated_at = NOW()
		WHERE id = $10
		RETURNING quantity_available, quantity_posted, updated_at`

	err := s.db.QueryRowxContext(ctx, query,
		l.Name, l.Description, l.OriginalPrice, l.UnitPrice,
		l.PickupStart, l.PickupEnd, l.IsVegetarian,
		l.PortionSize, l.ImageURL, l.ID,
	).Scan(&l.QuantityAvailable, &l.QuantityPosted, &l.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %d", models.ErrListingNotFound, l.ID)
	}
	return err
}

// ConditionalDecrement takes amount units only if that many are available.
// It returns false when stock was insufficient or the listing is gone.
func (s *Store) ConditionalDecrement(ctx context.Context, listingID int64, amount int) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE listings
		SET quantity_available = quantity_available - $1, updated_at = NOW()
		WHERE id = $2 AND quantity_available >= $1`,
		amount, listingID)
	if err != nil {
		return false, fmt.Errorf("failed to decrement stock: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Increment gives amount units back, never above the posted quantity
func (s *Store) Increment(ctx context.Context, listingID int64, amount int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE listings
		SET quantity_available = LEAST(quantity_available + $1, quantity_posted), updated_at = NOW()
		WHERE id = $2`,
		amount, listingID)
	if err != nil {
		return fmt.Errorf("failed to increment stock: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %d", models.ErrListingNotFound, listingID)
	}
	return nil
}

// Restock adds amount units to both the available and the posted quantity
func (s *Store) Restock(ctx context.Context, listingID int64, amount int) (*models.Listing, error) {
	var l models.Listing
	err := s.db.GetContext(ctx, &l,
		`UPDATE listings
		SET quantity_available = quantity_available + $1,
			quantity_posted = quantity_posted + $1,
			updated_at = NOW()
		WHERE id = $2
		RETURNING `+listingColumns,
		amount, listingID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", models.ErrListingNotFound, listingID)
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// DeleteListing removes a listing no order refers to
func (s *Store) DeleteListing(ctx context.Context, listingID int64) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var id int64
	err = tx.GetContext(ctx, &id, "SELECT id FROM listings WHERE id = $1 FOR UPDATE", listingID)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %d", models.ErrListingNotFound, listingID)
	}
	if err != nil {
		return err
	}

	var referenced int
	if err := tx.GetContext(ctx, &referenced,
		"SELECT COUNT(*) FROM orders WHERE listing_id = $1", listingID); err != nil {
		return err
	}
	if referenced > 0 {
		return fmt.Errorf("%w: listing %d has %d orders", models.ErrConflict, listingID, referenced)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM listings WHERE id = $1", listingID); err != nil {
		return fmt.Errorf("failed to delete listing: %w", err)
	}

	return tx.Commit()
}

// ListStockLevels returns the available quantity of every listing
func (s *Store) ListStockLevels(ctx context.Context) ([]models.StockLevel, error) {
	var levels []models.StockLevel
	err := s.db.SelectContext(ctx, &levels, "SELECT id, quantity_available FROM listings ORDER BY id")
	return levels, err
}

// GetStockLevel returns the available quantity of one listing
func (s *Store) GetStockLevel(ctx context.Context, listingID int64) (*models.StockLevel, error) {
	var level models.StockLevel
	err := s.db.GetContext(ctx, &level,
		"SELECT id, quantity_available FROM listings WHERE id = $1", listingID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", models.ErrListingNotFound, listingID)
	}
	if err != nil {
		return nil, err
	}
	return &level, nil
}
