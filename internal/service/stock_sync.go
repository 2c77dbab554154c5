package service

import (
	"context"
	"errors"

	"reservation-service/internal/models"
	"reservation-service/internal/util"

	"go.uber.org/zap"
)

// StockSync copies authoritative availability into the mirror
type StockSync struct {
	stock  StockReader
	mirror StockMirror
	logger *zap.Logger
}

// NewStockSync creates a new stock sync
func NewStockSync(stock StockReader, mirror StockMirror) *StockSync {
	return &StockSync{
		stock:  stock,
		mirror: mirror,
		logger: util.GetLogger(),
	}
}

// SyncAll overwrites the mirror for every listing and returns how many
// entries were written
func (s *StockSync) SyncAll(ctx context.Context) (int, error) {
	levels, err := s.stock.ListStockLevels(ctx)
	if err != nil {
		return 0, err
	}

	written := 0
	for _, level := range levels {
		if err := s.mirror.SetAvailable(ctx, level.ListingID, level.Available); err != nil {
			util.StockMirrorErrorsTotal.WithLabelValues("set").Inc()
			s.logger.Warn("Failed to sync listing availability",
				zap.Int64("listing_id", level.ListingID),
				zap.Error(err))
			continue
		}
		written++
	}

	s.logger.Info("Stock mirror synced", zap.Int("listings", written), zap.Int("total", len(levels)))
	return written, nil
}

// Refresh overwrites the mirror for one listing. A deleted listing is
// removed from the mirror.
func (s *StockSync) Refresh(ctx context.Context, listingID int64) error {
	level, err := s.stock.GetStockLevel(ctx, listingID)
	if errors.Is(err, models.ErrListingNotFound) {
		return s.mirror.RemoveAvailable(ctx, listingID)
	}
	if err != nil {
		return err
	}
	return s.mirror.SetAvailable(ctx, listingID, level.Available)
}
