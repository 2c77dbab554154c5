package service

import (
	"context"
	"errors"
	"fmt"

	"reservation-service/internal/models"
	"reservation-service/internal/util"

	"go.uber.org/zap"
)

// HoldReader sums the stock held by live orders
type HoldReader interface {
	GetListing(ctx context.Context, id int64) (*models.Listing, error)
	HeldQuantity(ctx context.Context, listingID int64) (int, error)
}

// StockAudit compares a listing's stock against the orders holding it
type StockAudit struct {
	ListingID int64 `json:"listing_id"`
	Posted    int   `json:"quantity_posted"`
	Available int   `json:"quantity_available"`
	Held      int   `json:"quantity_held"`
	// Missing is how many units are neither available nor held. It is
	// positive while a failed release awaits reconciliation.
	Missing  int  `json:"quantity_missing"`
	Balanced bool `json:"balanced"`
}

// Reconciler settles releases that exhausted their retries
type Reconciler struct {
	ledger    AlertLedger
	holds     HoldReader
	publisher EventPublisher
	mirror    StockMirror
	logger    *zap.Logger
}

// NewReconciler creates a new reconciler. publisher and mirror may be nil.
func NewReconciler(ledger AlertLedger, holds HoldReader, publisher EventPublisher, mirror StockMirror) *Reconciler {
	if publisher == nil {
		publisher = noopPublisher{}
	}
	if mirror == nil {
		mirror = noopMirror{}
	}
	return &Reconciler{
		ledger:    ledger,
		holds:     holds,
		publisher: publisher,
		mirror:    mirror,
		logger:    util.GetLogger(),
	}
}

// Reconcile gives back the stock named by a compensation alert. Each alert
// is applied at most once; a returned error leaves it for redelivery.
func (r *Reconciler) Reconcile(ctx context.Context, alert *models.CompensationFailedEvent) error {
	applied, err := r.ledger.SettleCompensation(ctx, alert)
	switch {
	case errors.Is(err, models.ErrListingNotFound):
		util.ReconciliationsTotal.WithLabelValues("listing_gone").Inc()
		r.logger.Warn("Listing gone, dropping compensation alert",
			zap.String("event_id", alert.EventID),
			zap.Int64("listing_id", alert.ListingID))
		return nil
	case err != nil:
		util.ReconciliationsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to settle alert %s: %w", alert.EventID, err)
	case !applied:
		r.logger.Debug("Compensation alert already settled", zap.String("event_id", alert.EventID))
		return nil
	}

	util.ReconciliationsTotal.WithLabelValues("settled").Inc()
	r.logger.Info("Compensation settled",
		zap.String("event_id", alert.EventID),
		zap.String("operation", alert.Operation),
		zap.Int64("listing_id", alert.ListingID),
		zap.Int("quantity", alert.Quantity))

	if err := r.mirror.AdjustAvailable(ctx, alert.ListingID, alert.Quantity); err != nil {
		util.StockMirrorErrorsTotal.WithLabelValues("adjust").Inc()
	}

	settled := &models.CompensationSettledEvent{
		BaseEvent: newBaseEvent(models.EventTypeCompensationSettled),
		AlertID:   alert.EventID,
		ListingID: alert.ListingID,
		Quantity:  alert.Quantity,
	}
	if err := r.publisher.PublishCompensationSettled(ctx, settled); err != nil {
		r.logger.Error("Failed to publish CompensationSettled event", zap.Error(err))
	}
	return nil
}

// Audit checks that a listing's posted quantity equals what is available
// plus what live orders hold
func (r *Reconciler) Audit(ctx context.Context, listingID int64) (*StockAudit, error) {
	l, err := r.holds.GetListing(ctx, listingID)
	if err != nil {
		return nil, err
	}
	held, err := r.holds.HeldQuantity(ctx, listingID)
	if err != nil {
		return nil, err
	}

	audit := &StockAudit{
		ListingID: listingID,
		Posted:    l.QuantityPosted,
		Available: l.QuantityAvailable,
		Held:      held,
		Missing:   l.QuantityPosted - l.QuantityAvailable - held,
	}
	audit.Balanced = audit.Missing == 0
	if !audit.Balanced {
		r.logger.Warn("Stock out of balance",
			zap.Int64("listing_id", listingID),
			zap.Int("posted", audit.Posted),
			zap.Int("available", audit.Available),
			zap.Int("held", audit.Held))
	}
	return audit, nil
}
