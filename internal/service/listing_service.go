package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"reservation-service/internal/models"
	"reservation-service/internal/util"

	"go.uber.org/zap"
)

// ListingInput carries the restaurant-editable fields of a listing
type ListingInput struct {
	Name          string    `json:"name" binding:"required"`
	Description   string    `json:"description"`
	OriginalPrice int64     `json:"original_price" binding:"required"`
	UnitPrice     int64     `json:"unit_price" binding:"required"`
	Quantity      int       `json:"quantity"`
	PickupStart   time.Time `json:"pickup_start" binding:"required"`
	PickupEnd     time.Time `json:"pickup_end" binding:"required"`
	IsVegetarian  bool      `json:"is_vegetarian"`
	PortionSize   string    `json:"portion_size"`
	ImageURL      string    `json:"image_url"`
}

func (in ListingInput) validate() error {
	switch {
	case strings.TrimSpace(in.Name) == "":
		return fmt.Errorf("%w: name is required", models.ErrInvalidListing)
	case in.OriginalPrice <= 0 || in.UnitPrice <= 0:
		return fmt.Errorf("%w: prices must be positive", models.ErrInvalidListing)
	case in.UnitPrice > in.OriginalPrice:
		return fmt.Errorf("%w: unit price exceeds original price", models.ErrInvalidListing)
	case !in.PickupEnd.After(in.PickupStart):
		return fmt.Errorf("%w: pickup window ends before it starts", models.ErrInvalidListing)
	}
	return nil
}

func (in ListingInput) apply(l *models.Listing) {
	l.Name = strings.TrimSpace(in.Name)
	l.Description = in.Description
	l.OriginalPrice = in.OriginalPrice
	l.UnitPrice = in.UnitPrice
	l.PickupStart = in.PickupStart
	l.PickupEnd = in.PickupEnd
	l.IsVegetarian = in.IsVegetarian
	l.PortionSize = in.PortionSize
	l.ImageURL = in.ImageURL
}

// ListingPage is one page of listings
type ListingPage struct {
	Listings []models.Listing `json:"listings"`
	Total    int              `json:"total"`
	Page     int              `json:"page"`
	Limit    int              `json:"limit"`
}

// ListingService manages restaurant listings
type ListingService struct {
	store     ListingStore
	stock     StockReader
	mirror    StockMirror
	publisher EventPublisher
	pageLimit int
	logger    *zap.Logger
}

// NewListingService creates a new listing service
func NewListingService(store ListingStore, stock StockReader, mirror StockMirror, publisher EventPublisher, pageLimit int) *ListingService {
	if publisher == nil {
		publisher = noopPublisher{}
	}
	if mirror == nil {
		mirror = noopMirror{}
	}
	if pageLimit <= 0 {
		pageLimit = 50
	}
	return &ListingService{
		store:     store,
		stock:     stock,
		mirror:    mirror,
		publisher: publisher,
		pageLimit: pageLimit,
		logger:    util.GetLogger(),
	}
}

// CreateListing posts a new listing for the actor's restaurant
func (s *ListingService) CreateListing(ctx context.Context, actor models.Actor, in ListingInput) (*models.Listing, error) {
	if actor.Role != models.RoleRestaurant || actor.RestaurantID == 0 {
		return nil, models.ErrForbidden
	}
	if err := in.validate(); err != nil {
		return nil, err
	}
	if in.Quantity <= 0 {
		return nil, fmt.Errorf("%w: got %d", models.ErrInvalidQuantity, in.Quantity)
	}

	l := &models.Listing{
		RestaurantID:      actor.RestaurantID,
		QuantityAvailable: in.Quantity,
		QuantityPosted:    in.Quantity,
	}
	in.apply(l)

	if err := s.store.CreateListing(ctx, l); err != nil {
		return nil, fmt.Errorf("failed to create listing: %w", err)
	}

	s.logger.Info("Listing created",
		zap.Int64("listing_id", l.ID),
		zap.Int64("restaurant_id", l.RestaurantID),
		zap.Int("quantity", l.QuantityPosted))

	s.setMirror(ctx, l.ID, l.QuantityAvailable)
	return l, nil
}

// UpdateListing edits a listing's details. Quantities are not editable here.
func (s *ListingService) UpdateListing(ctx context.Context, actor models.Actor, id int64, in ListingInput) (*models.Listing, error) {
	l, err := s.owned(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if err := in.validate(); err != nil {
		return nil, err
	}

	in.apply(l)
	if err := s.store.UpdateListingDetails(ctx, l); err != nil {
		return nil, err
	}

	s.logger.Info("Listing updated", zap.Int64("listing_id", id))
	return l, nil
}

// Restock adds amount units to a listing
func (s *ListingService) Restock(ctx context.Context, actor models.Actor, id int64, amount int) (*models.Listing, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: got %d", models.ErrInvalidQuantity, amount)
	}
	if _, err := s.owned(ctx, actor, id); err != nil {
		return nil, err
	}

	l, err := s.store.Restock(ctx, id, amount)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Listing restocked",
		zap.Int64("listing_id", id),
		zap.Int("amount", amount),
		zap.Int("available", l.QuantityAvailable))

	s.setMirror(ctx, id, l.QuantityAvailable)

	event := &models.ListingRestockedEvent{
		BaseEvent:    newBaseEvent(models.EventTypeListingRestocked),
		ListingID:    id,
		RestaurantID: l.RestaurantID,
		Amount:       amount,
	}
	if err := s.publisher.PublishListingRestocked(ctx, event); err != nil {
		s.logger.Error("Failed to publish ListingRestocked event", zap.Error(err))
	}
	return l, nil
}

// DeleteListing removes a listing that no order refers to
func (s *ListingService) DeleteListing(ctx context.Context, actor models.Actor, id int64) error {
	if _, err := s.owned(ctx, actor, id); err != nil {
		return err
	}
	if err := s.store.DeleteListing(ctx, id); err != nil {
		return err
	}

	s.logger.Info("Listing deleted", zap.Int64("listing_id", id))
	if err := s.mirror.RemoveAvailable(ctx, id); err != nil {
		util.StockMirrorErrorsTotal.WithLabelValues("remove").Inc()
		s.logger.Warn("Failed to remove stock mirror entry", zap.Int64("listing_id", id), zap.Error(err))
	}
	return nil
}

// GetListing returns a listing
func (s *ListingService) GetListing(ctx context.Context, id int64) (*models.Listing, error) {
	return s.store.GetListing(ctx, id)
}

// ListListings returns a page of listings. restaurantID 0 lists all.
func (s *ListingService) ListListings(ctx context.Context, restaurantID int64, page, limit int) (*ListingPage, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 || limit > s.pageLimit {
		limit = s.pageLimit
	}

	listings, total, err := s.store.ListListings(ctx, restaurantID, limit, (page-1)*limit)
	if err != nil {
		return nil, err
	}
	return &ListingPage{Listings: listings, Total: total, Page: page, Limit: limit}, nil
}

// GetAvailability returns a listing's available units, from the mirror when
// it has the listing and from the store otherwise
func (s *ListingService) GetAvailability(ctx context.Context, id int64) (*models.StockLevel, error) {
	available, ok, err := s.mirror.GetAvailable(ctx, id)
	if err != nil {
		util.StockMirrorErrorsTotal.WithLabelValues("get").Inc()
		s.logger.Warn("Stock mirror read failed, using database", zap.Int64("listing_id", id), zap.Error(err))
	}
	if err == nil && ok {
		return &models.StockLevel{ListingID: id, Available: available}, nil
	}

	level, err := s.stock.GetStockLevel(ctx, id)
	if err != nil {
		return nil, err
	}
	s.setMirror(ctx, id, level.Available)
	return level, nil
}

func (s *ListingService) owned(ctx context.Context, actor models.Actor, id int64) (*models.Listing, error) {
	l, err := s.store.GetListing(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.OwnsRestaurant(l.RestaurantID) {
		return nil, models.ErrForbidden
	}
	return l, nil
}

func (s *ListingService) setMirror(ctx context.Context, id int64, available int) {
	if err := s.mirror.SetAvailable(ctx, id, available); err != nil {
		util.StockMirrorErrorsTotal.WithLabelValues("set").Inc()
		s.logger.Warn("Failed to update stock mirror", zap.Int64("listing_id", id), zap.Error(err))
	}
}

// IsClientError reports whether err is an expected outcome caused by the
// request rather than a fault in the service
func IsClientError(err error) bool {
	for _, target := range []error{
		models.ErrInvalidQuantity,
		models.ErrInvalidListing,
		models.ErrListingNotFound,
		models.ErrOrderNotFound,
		models.ErrInsufficientStock,
		models.ErrInvalidTransition,
		models.ErrForbidden,
		models.ErrConflict,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
