package store

import (
	"context"
	"fmt"

	"storefront-service/internal/models"
)

// ApplyTransition moves an order to target inside the given transaction.
//
// When expected is non-nil the transition is a compare-and-swap: if the
// stored status no longer equals *expected the call is an idempotent no-op
// and reports applied=false with no error. This is what makes replayed
// webhook deliveries safe.
//
// When expected is nil (operator-driven path) the guard is skipped, but the
// transition table is still enforced: a move not in the table fails with
// ErrInvalidTransition and leaves the order untouched.
func ApplyTransition(ctx context.Context, tx Tx, orderID string, target models.OrderStatus, expected *models.OrderStatus, note string) (applied bool, from models.OrderStatus, err error) {
	if !target.Valid() {
		return false, "", fmt.Errorf("%w: unknown status %q", models.ErrInvalidTransition, target)
	}

	order, err := tx.GetOrder(ctx, orderID)
	if err != nil {
		return false, "", err
	}
	if order == nil {
		return false, "", models.ErrOrderNotFound
	}

	if expected != nil && order.Status != *expected {
		return false, order.Status, nil
	}

	if !order.Status.CanTransitionTo(target) {
		return false, order.Status, fmt.Errorf("%w: %s -> %s", models.ErrInvalidTransition, order.Status, target)
	}

	if err := tx.UpdateOrderStatus(ctx, orderID, target, note); err != nil {
		return false, order.Status, err
	}
	return true, order.Status, nil
}
