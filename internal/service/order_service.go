package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storefront-service/internal/models"
	"storefront-service/internal/pricing"
	"storefront-service/internal/store"
	"storefront-service/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Payment modes accepted at placement.
const (
	PaymentModeImmediate = "immediate"
	PaymentModeDeferred  = "deferred"
)

// OrderService handles order placement and status management.
type OrderService struct {
	store     store.Store
	cache     CatalogCache
	events    EventPublisher
	discounts *DiscountValidator
	logger    *zap.Logger
	taxRate   decimal.Decimal
	retry     store.RetryPolicy
}

// NewOrderService creates a new order service.
func NewOrderService(
	s store.Store,
	cache CatalogCache,
	events EventPublisher,
	discounts *DiscountValidator,
	taxRate decimal.Decimal,
	retry store.RetryPolicy,
) *OrderService {
	if retry.Attempts < 1 {
		retry = store.DefaultRetryPolicy
	}
	retry.OnConflict = func() { util.StockConflictsTotal.Inc() }

	return &OrderService{
		store:     s,
		cache:     cache,
		events:    events,
		discounts: discounts,
		logger:    util.GetLogger(),
		taxRate:   taxRate,
		retry:     retry,
	}
}

// CartLine is one requested cart entry.
type CartLine struct {
	ProductID int64 `json:"product_id" binding:"required"`
	Quantity  int   `json:"quantity" binding:"required,min=1"`
}

// PlaceOrderRequest represents a request to place an order.
type PlaceOrderRequest struct {
	Items        []CartLine `json:"items" binding:"required,min=1"`
	Email        string     `json:"email" binding:"required,email"`
	Phone        string     `json:"phone" binding:"required"`
	DiscountCode string     `json:"discount_code,omitempty"`
	PaymentMode  string     `json:"payment_mode" binding:"required,oneof=immediate deferred"`
	Notes        string     `json:"notes,omitempty"`
}

// PlaceOrderResponse is returned after a successful placement.
type PlaceOrderResponse struct {
	OrderID string             `json:"order_id"`
	Status  models.OrderStatus `json:"status"`
	Total   string             `json:"total"`
}

// PlaceOrder validates the cart, prices it and commits the order.
//
// Immediate orders run the full inventory transaction: every line's stock is
// checked and decremented and the order written in one atomic unit, retried
// under write conflicts. Deferred orders are written with status
// PendingPayment and touch no stock; their stock is claimed when the gateway
// confirms payment.
func (s *OrderService) PlaceOrder(ctx context.Context, req *PlaceOrderRequest) (*PlaceOrderResponse, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.PlaceOrder")
	defer span.End()

	start := time.Now()
	defer func() {
		util.PlacementLatency.Observe(time.Since(start).Seconds())
	}()

	if err := validatePlaceOrder(req); err != nil {
		util.OrdersFailedTotal.WithLabelValues("validation").Inc()
		return nil, err
	}

	var discount *models.DiscountCode
	if req.DiscountCode != "" {
		dc, err := s.discounts.Validate(ctx, req.DiscountCode)
		if err != nil {
			util.OrdersFailedTotal.WithLabelValues("discount").Inc()
			return nil, err
		}
		discount = dc
	}

	deferred := req.PaymentMode == PaymentModeDeferred

	order := &models.Order{
		ID:        uuid.NewString(),
		Email:     req.Email,
		Phone:     req.Phone,
		Notes:     req.Notes,
		CreatedAt: time.Now().UTC(),
	}
	if deferred {
		order.Status = models.StatusPendingPayment
	} else {
		order.Status = models.StatusProcessing
	}

	body := func(tx store.Tx) error {
		order.Items = order.Items[:0]
		lines := make([]pricing.Line, 0, len(req.Items))

		for _, line := range req.Items {
			product, err := tx.GetProduct(ctx, line.ProductID)
			if err != nil {
				return err
			}
			if product == nil {
				return fmt.Errorf("%w: %d", models.ErrProductNotFound, line.ProductID)
			}

			if !deferred {
				remaining := product.Stock - line.Quantity
				if remaining < 0 {
					return &models.InsufficientStockError{
						ProductID: product.ID,
						Name:      product.Name,
						Requested: line.Quantity,
						Available: product.Stock,
					}
				}
				if err := tx.UpdateProductStock(ctx, product.ID, remaining); err != nil {
					return err
				}
			}

			lines = append(lines, pricing.Line{Product: *product, Quantity: line.Quantity})
			order.Items = append(order.Items, models.OrderItem{
				ProductID:     product.ID,
				Name:          product.Name,
				ImageURL:      product.ImageURL,
				UnitPrice:     product.Price,
				DiscountPrice: product.DiscountPrice,
				Quantity:      line.Quantity,
			})
		}

		quote, err := pricing.Compute(lines, discount, s.taxRate)
		if err != nil {
			return err
		}
		order.Subtotal = quote.Subtotal
		order.Discount = quote.Discount
		order.Taxes = quote.Taxes
		order.Total = quote.Total

		return tx.CreateOrder(ctx, order)
	}

	// Deferred placements touch no stock but still read product rows for the
	// price snapshots, so they share the conflict-retry budget.
	err := store.TransactWithRetry(ctx, s.store, s.retry, body)
	if err != nil {
		util.OrdersFailedTotal.WithLabelValues(failureReason(err)).Inc()
		return nil, err
	}

	util.OrdersPlacedTotal.WithLabelValues(req.PaymentMode).Inc()
	s.logger.Info("Order placed",
		zap.String("order_id", order.ID),
		zap.String("status", string(order.Status)),
		zap.String("total", order.Total.StringFixed(2)))

	s.publishOrderPlaced(ctx, order)

	return &PlaceOrderResponse{
		OrderID: order.ID,
		Status:  order.Status,
		Total:   order.Total.StringFixed(2),
	}, nil
}

func validatePlaceOrder(req *PlaceOrderRequest) error {
	if len(req.Items) == 0 {
		return fmt.Errorf("%w: cart is empty", models.ErrValidation)
	}
	for _, line := range req.Items {
		if line.Quantity < 1 {
			return fmt.Errorf("%w: quantity must be at least 1 for product %d",
				models.ErrValidation, line.ProductID)
		}
	}
	if req.Email == "" {
		return fmt.Errorf("%w: email is required", models.ErrValidation)
	}
	if req.PaymentMode != PaymentModeImmediate && req.PaymentMode != PaymentModeDeferred {
		return fmt.Errorf("%w: unknown payment mode %q", models.ErrValidation, req.PaymentMode)
	}
	return nil
}

func failureReason(err error) string {
	var stockErr *models.InsufficientStockError
	switch {
	case errors.As(err, &stockErr):
		return "insufficient_stock"
	case errors.Is(err, models.ErrContentionExceeded):
		return "contention"
	case errors.Is(err, models.ErrProductNotFound):
		return "unknown_product"
	case errors.Is(err, models.ErrValidation):
		return "validation"
	default:
		return "store_error"
	}
}

// ValidateDiscount checks a raw discount code and returns its effect.
func (s *OrderService) ValidateDiscount(ctx context.Context, code string) (*models.DiscountCode, error) {
	return s.discounts.Validate(ctx, code)
}

// GetOrder retrieves an order by ID.
func (s *OrderService) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	return s.store.GetOrder(ctx, orderID)
}

// ListOrders retrieves order summaries for the admin screen, without item
// snapshots.
func (s *OrderService) ListOrders(ctx context.Context) ([]models.Order, error) {
	return s.store.ListOrders(ctx)
}

// ListProducts retrieves the catalog, served from cache when possible.
func (s *OrderService) ListProducts(ctx context.Context) ([]models.Product, error) {
	if s.cache != nil {
		if products, ok := s.cache.GetProducts(ctx); ok {
			return products, nil
		}
	}

	products, err := s.store.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.SetProducts(ctx, products); err != nil {
			s.logger.Warn("Failed to cache catalog", zap.Error(err))
		}
	}
	return products, nil
}

// UpdateStatus applies an operator-driven transition. The compare-and-swap
// guard is omitted but the transition table is still enforced by the store.
func (s *OrderService) UpdateStatus(ctx context.Context, orderID string, target models.OrderStatus) error {
	ctx, span := util.StartSpan(ctx, "OrderService.UpdateStatus")
	defer span.End()

	var from models.OrderStatus
	err := store.TransactWithRetry(ctx, s.store, s.retry, func(tx store.Tx) error {
		var err error
		_, from, err = store.ApplyTransition(ctx, tx, orderID, target, nil, "")
		return err
	})
	if err != nil {
		return err
	}

	util.OrderTransitionsTotal.WithLabelValues(string(target)).Inc()
	if target == models.StatusCancelled {
		util.OrdersCancelledTotal.Inc()
	}
	s.logger.Info("Order status updated",
		zap.String("order_id", orderID),
		zap.String("from", string(from)),
		zap.String("to", string(target)))

	s.publishStatusChanged(ctx, orderID, from, target, "")
	return nil
}

// SetProductStock applies an administrative stock override and drops the
// cached catalog.
func (s *OrderService) SetProductStock(ctx context.Context, productID int64, stock int) error {
	if stock < 0 {
		return fmt.Errorf("%w: stock must not be negative", models.ErrValidation)
	}
	if err := s.store.SetProductStock(ctx, productID, stock); err != nil {
		return err
	}
	s.invalidateCatalog(ctx)
	return nil
}

// UpsertDiscountCode creates or replaces a discount code.
func (s *OrderService) UpsertDiscountCode(ctx context.Context, code *models.DiscountCode) error {
	if code.Kind != models.DiscountPercentage && code.Kind != models.DiscountFixed {
		return fmt.Errorf("%w: unknown discount kind %q", models.ErrValidation, code.Kind)
	}
	if !code.Value.IsPositive() {
		return fmt.Errorf("%w: discount value must be positive", models.ErrValidation)
	}
	return s.store.PutDiscountCode(ctx, code)
}

// DeleteDiscountCode removes a discount code.
func (s *OrderService) DeleteDiscountCode(ctx context.Context, code string) error {
	return s.store.DeleteDiscountCode(ctx, code)
}

func (s *OrderService) invalidateCatalog(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateProducts(ctx); err != nil {
		s.logger.Warn("Failed to invalidate catalog cache", zap.Error(err))
	}
}

func (s *OrderService) publishOrderPlaced(ctx context.Context, order *models.Order) {
	if s.events == nil {
		return
	}
	event := &models.OrderPlacedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.NewString(),
			EventType: models.EventTypeOrderPlaced,
			Timestamp: time.Now().UTC(),
		},
		OrderID: order.ID,
		Email:   order.Email,
		Total:   order.Total.StringFixed(2),
		Status:  order.Status,
		Items:   order.Items,
	}
	if err := s.events.PublishOrderPlaced(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderPlaced event", zap.Error(err))
	}
}

func (s *OrderService) publishStatusChanged(ctx context.Context, orderID string, from, to models.OrderStatus, note string) {
	if s.events == nil {
		return
	}
	event := &models.OrderStatusChangedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.NewString(),
			EventType: models.EventTypeOrderStatusChanged,
			Timestamp: time.Now().UTC(),
		},
		OrderID: orderID,
		From:    from,
		To:      to,
		Note:    note,
	}
	if err := s.events.PublishOrderStatusChanged(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderStatusChanged event", zap.Error(err))
	}
}
