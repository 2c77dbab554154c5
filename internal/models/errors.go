package models

import "errors"

// Validation errors are expected outcomes and are shown to the user as-is.
var (
	ErrInvalidQuantity   = errors.New("quantity must be a positive integer")
	ErrInvalidListing    = errors.New("invalid listing")
	ErrListingNotFound   = errors.New("listing not found")
	ErrOrderNotFound     = errors.New("order not found")
	ErrInsufficientStock = errors.New("not enough meals available")
	ErrInvalidTransition = errors.New("invalid order status transition")
	ErrForbidden         = errors.New("forbidden")
	ErrConflict          = errors.New("conflict")
)

// ErrOrderPersistenceFailed means the order could not be recorded. Any stock
// taken for it has been given back.
var ErrOrderPersistenceFailed = errors.New("order could not be recorded")

// ErrCompensationFailed means stock was taken and could not be given back.
// Inventory is understated until reconciled.
var ErrCompensationFailed = errors.New("stock release failed, inventory requires reconciliation")

// ErrStatusConflict is returned by the ledger when a compare-and-set status
// update finds the order in a different status than expected.
var ErrStatusConflict = errors.New("order status changed concurrently")
