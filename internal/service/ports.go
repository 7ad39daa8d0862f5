package service

import (
	"context"
	"time"

	"storefront-service/internal/models"
)

// EventPublisher is the outbound event sink. A nil publisher disables
// publishing; failures are logged, never fatal to the request.
type EventPublisher interface {
	PublishOrderPlaced(ctx context.Context, event *models.OrderPlacedEvent) error
	PublishOrderStatusChanged(ctx context.Context, event *models.OrderStatusChangedEvent) error
	PublishPaymentReceived(ctx context.Context, event *models.PaymentReceivedEvent) error
}

// CatalogCache is a read cache for product listings. A nil cache means every
// listing hits the store.
type CatalogCache interface {
	GetProducts(ctx context.Context) ([]models.Product, bool)
	SetProducts(ctx context.Context, products []models.Product) error
	InvalidateProducts(ctx context.Context) error
}

// ReplayMarker records gateway transaction ids so obvious webhook replays
// can be observed. Advisory only: the guarded status transition is what
// makes replays safe.
type ReplayMarker interface {
	MarkNotificationSeen(ctx context.Context, txnID string, ttl time.Duration) (bool, error)
}
