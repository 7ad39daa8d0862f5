package models

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation rejects malformed input before any transaction starts.
	ErrValidation = errors.New("invalid request")

	// ErrDiscountNotFound means the discount code does not exist.
	ErrDiscountNotFound = errors.New("discount code not found")

	// ErrProductNotFound means a cart line references an unknown product.
	ErrProductNotFound = errors.New("product not found")

	// ErrOrderNotFound means the referenced order does not exist.
	ErrOrderNotFound = errors.New("order not found")

	// ErrInvalidTransition means the status change is not in the table.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrContentionExceeded means the transaction retry budget ran out.
	// Transient: the caller may retry the whole placement.
	ErrContentionExceeded = errors.New("transaction contention exceeded")

	// ErrHashMismatch means webhook authentication failed. Treated as a
	// security event; nothing is mutated.
	ErrHashMismatch = errors.New("hash verification failed")
)

// InsufficientStockError aborts an order placement when any line cannot be
// covered. The whole transaction rolls back; no partial decrements survive.
type InsufficientStockError struct {
	ProductID int64
	Name      string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("not enough stock for %s (product %d): requested %d, available %d",
		e.Name, e.ProductID, e.Requested, e.Available)
}
