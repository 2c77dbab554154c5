package worker

import (
	"context"
	"time"

	"reservation-service/internal/broker"
	"reservation-service/internal/models"
	"reservation-service/internal/util"

	"go.uber.org/zap"
)

// MirrorRefresher refreshes mirrored availability
type MirrorRefresher interface {
	SyncAll(ctx context.Context) (int, error)
	Refresh(ctx context.Context, listingID int64) error
}

// AlertReconciler settles compensation alerts
type AlertReconciler interface {
	Reconcile(ctx context.Context, alert *models.CompensationFailedEvent) error
}

// AvailabilityWorker keeps the stock mirror in step with the database
type AvailabilityWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	sync         MirrorRefresher
	interval     time.Duration
	logger       *zap.Logger
}

// NewAvailabilityWorker creates a new availability worker. Every interval
// the whole mirror is rebuilt; zero disables the periodic rebuild.
func NewAvailabilityWorker(consumer *broker.Consumer, sync MirrorRefresher, interval time.Duration) *AvailabilityWorker {
	w := &AvailabilityWorker{
		consumer:     consumer,
		eventHandler: broker.NewEventHandler(),
		sync:         sync,
		interval:     interval,
		logger:       util.GetLogger().With(zap.String("worker", "availability")),
	}

	w.eventHandler.OnOrderPlaced(func(ctx context.Context, e *models.OrderPlacedEvent) error {
		return w.refresh(ctx, e.ListingID)
	})
	w.eventHandler.OnOrderCancelled(func(ctx context.Context, e *models.OrderCancelledEvent) error {
		return w.refresh(ctx, e.ListingID)
	})
	w.eventHandler.OnListingRestocked(func(ctx context.Context, e *models.ListingRestockedEvent) error {
		return w.refresh(ctx, e.ListingID)
	})
	w.eventHandler.OnCompensationSettled(func(ctx context.Context, e *models.CompensationSettledEvent) error {
		return w.refresh(ctx, e.ListingID)
	})

	return w
}

func (w *AvailabilityWorker) refresh(ctx context.Context, listingID int64) error {
	if err := w.sync.Refresh(ctx, listingID); err != nil {
		util.StockMirrorErrorsTotal.WithLabelValues("refresh").Inc()
		return err
	}
	return nil
}

// Start rebuilds the mirror, then follows order events until ctx is done
func (w *AvailabilityWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting availability worker")

	w.syncAll(ctx)
	if w.interval > 0 {
		go w.loop(ctx)
	}

	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

func (w *AvailabilityWorker) loop(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.syncAll(ctx)
		}
	}
}

func (w *AvailabilityWorker) syncAll(ctx context.Context) {
	if _, err := w.sync.SyncAll(ctx); err != nil {
		w.logger.Warn("Full stock mirror sync failed", zap.Error(err))
	}
}

// Stop stops the worker
func (w *AvailabilityWorker) Stop() error {
	w.logger.Info("Stopping availability worker")
	return w.consumer.Close()
}

// ReconciliationWorker retries stock releases that exhausted their retries
type ReconciliationWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	logger       *zap.Logger
}

// NewReconciliationWorker creates a new reconciliation worker
func NewReconciliationWorker(consumer *broker.Consumer, reconciler AlertReconciler) *ReconciliationWorker {
	w := &ReconciliationWorker{
		consumer:     consumer,
		eventHandler: broker.NewEventHandler(),
		logger:       util.GetLogger().With(zap.String("worker", "reconciliation")),
	}

	w.eventHandler.OnCompensationFailed(func(ctx context.Context, alert *models.CompensationFailedEvent) error {
		w.logger.Info("Reconciling compensation alert",
			zap.String("event_id", alert.EventID),
			zap.Int64("listing_id", alert.ListingID),
			zap.Int("quantity", alert.Quantity))
		return reconciler.Reconcile(ctx, alert)
	})

	return w
}

// Start follows compensation alerts until ctx is done
func (w *ReconciliationWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting reconciliation worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *ReconciliationWorker) Stop() error {
	w.logger.Info("Stopping reconciliation worker")
	return w.consumer.Close()
}
