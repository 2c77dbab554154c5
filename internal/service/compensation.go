package service

import (
	"context"
	"fmt"
	"time"

	"reservation-service/internal/models"
	"reservation-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RetryPolicy bounds how hard a stock release is retried before escalation
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
}

// DefaultRetryPolicy is used when the configured policy is unusable
var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 5, Backoff: 50 * time.Millisecond}

func (p RetryPolicy) normalize() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultRetryPolicy.MaxAttempts
	}
	if p.Backoff < 0 {
		p.Backoff = 0
	}
	return p
}

// maxReleaseDelay caps the doubling wait between release attempts
const maxReleaseDelay = 5 * time.Second

// delay returns the wait before retry n (n starts at 1)
func (p RetryPolicy) delay(n int) time.Duration {
	d := p.Backoff
	for i := 1; i < n && d < maxReleaseDelay; i++ {
		d *= 2
	}
	if d > maxReleaseDelay {
		d = maxReleaseDelay
	}
	return d
}

// releaser gives reserved stock back to the catalog, retrying with
// exponential backoff and raising an alert when it cannot.
type releaser struct {
	catalog   CatalogStore
	publisher EventPublisher
	policy    RetryPolicy
	logger    *zap.Logger
	sleep     func(context.Context, time.Duration)
}

func newReleaser(catalog CatalogStore, publisher EventPublisher, policy RetryPolicy) *releaser {
	return &releaser{
		catalog:   catalog,
		publisher: publisher,
		policy:    policy.normalize(),
		logger:    util.GetLogger(),
		sleep:     sleepCtx,
	}
}

// release returns quantity units to listingID. operation and orderID only
// label logs, metrics and the alert. The returned error wraps
// ErrCompensationFailed.
func (r *releaser) release(ctx context.Context, operation string, listingID, orderID int64, quantity int) error {
	var lastErr error
	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		if attempt > 1 {
			r.sleep(ctx, r.policy.delay(attempt-1))
		}

		lastErr = r.catalog.Increment(ctx, listingID, quantity)
		if lastErr == nil {
			util.CompensationAttemptsTotal.WithLabelValues(operation, "ok").Inc()
			if attempt > 1 {
				r.logger.Info("Stock released after retry",
					zap.String("operation", operation),
					zap.Int64("listing_id", listingID),
					zap.Int("attempt", attempt))
			}
			return nil
		}

		util.CompensationAttemptsTotal.WithLabelValues(operation, "error").Inc()
		r.logger.Warn("Stock release attempt failed",
			zap.String("operation", operation),
			zap.Int64("listing_id", listingID),
			zap.Int64("order_id", orderID),
			zap.Int("quantity", quantity),
			zap.Int("attempt", attempt),
			zap.Error(lastErr))
	}

	util.CompensationFailedTotal.WithLabelValues(operation).Inc()
	r.logger.Error("Stock release exhausted retries, inventory understated",
		zap.String("operation", operation),
		zap.Int64("listing_id", listingID),
		zap.Int64("order_id", orderID),
		zap.Int("quantity", quantity),
		zap.Error(lastErr))

	alert := &models.CompensationFailedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeCompensationFailed,
			Timestamp: time.Now(),
		},
		ListingID: listingID,
		OrderID:   orderID,
		Quantity:  quantity,
		Operation: operation,
		Reason:    lastErr.Error(),
	}
	if err := r.publisher.PublishCompensationFailed(ctx, alert); err != nil {
		r.logger.Error("Failed to publish CompensationFailed alert",
			zap.Int64("listing_id", listingID),
			zap.Error(err))
	}

	return fmt.Errorf("%w: listing %d, %d units: %v", models.ErrCompensationFailed, listingID, quantity, lastErr)
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
