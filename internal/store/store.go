package store

import (
	"context"
	"errors"

	"storefront-service/internal/models"
)

// ErrConflict is returned by Transact when the underlying store detected a
// concurrent modification of a document read inside the transaction. Callers
// retry via TransactWithRetry.
var ErrConflict = errors.New("transaction conflict")

// Tx exposes the reads and writes available inside one atomic unit. Either
// every write commits or none does.
type Tx interface {
	GetProduct(ctx context.Context, id int64) (*models.Product, error)
	UpdateProductStock(ctx context.Context, id int64, stock int) error
	GetOrder(ctx context.Context, id string) (*models.Order, error)
	CreateOrder(ctx context.Context, order *models.Order) error
	UpdateOrderStatus(ctx context.Context, id string, status models.OrderStatus, note string) error
}

// Store is the persistent-store collaborator: document get/list/set/delete
// plus a multi-document read-modify-write transaction with optimistic
// conflict detection.
type Store interface {
	GetProduct(ctx context.Context, id int64) (*models.Product, error)
	ListProducts(ctx context.Context) ([]models.Product, error)
	PutProduct(ctx context.Context, product *models.Product) error
	SetProductStock(ctx context.Context, id int64, stock int) error

	GetOrder(ctx context.Context, id string) (*models.Order, error)

	// ListOrders returns order summaries, newest first. Item snapshots are
	// omitted in every implementation; GetOrder loads the full record.
	ListOrders(ctx context.Context) ([]models.Order, error)

	GetDiscountCode(ctx context.Context, code string) (*models.DiscountCode, error)
	PutDiscountCode(ctx context.Context, code *models.DiscountCode) error
	DeleteDiscountCode(ctx context.Context, code string) error

	// Transact runs fn inside one transaction. A conflicting concurrent
	// commit surfaces as ErrConflict; any error from fn aborts the
	// transaction and is returned unchanged.
	Transact(ctx context.Context, fn func(tx Tx) error) error

	Close() error
}
