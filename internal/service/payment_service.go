package service

import (
	"context"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"storefront-service/internal/models"
	"storefront-service/internal/store"
	"storefront-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// replayMarkerTTL bounds how long a gateway transaction id is remembered for
// replay observation.
const replayMarkerTTL = 24 * time.Hour

// PaymentService authenticates gateway webhook notifications and drives the
// resulting order transition. The claimed status is never trusted until the
// notification's hash has been recomputed and matched.
type PaymentService struct {
	store   store.Store
	events  EventPublisher
	replays ReplayMarker
	logger  *zap.Logger
	key     string
	salt    string
	retry   store.RetryPolicy
}

// NewPaymentService creates a new payment webhook service. key and salt are
// the shared gateway credentials.
func NewPaymentService(s store.Store, events EventPublisher, replays ReplayMarker, key, salt string, retry store.RetryPolicy) *PaymentService {
	if retry.Attempts < 1 {
		retry = store.DefaultRetryPolicy
	}
	retry.OnConflict = func() { util.StockConflictsTotal.Inc() }

	return &PaymentService{
		store:   s,
		events:  events,
		replays: replays,
		logger:  util.GetLogger(),
		key:     key,
		salt:    salt,
		retry:   retry,
	}
}

// VerifyNotification recomputes the reverse hash and compares it with the
// caller-supplied one in constant time. Missing fields fail with
// ErrValidation, a bad hash with ErrHashMismatch. Nothing is mutated here.
func (ps *PaymentService) VerifyNotification(n *models.PaymentNotification) error {
	if n.Status == "" || n.TxnID == "" || n.Hash == "" || n.Email == "" ||
		n.FirstName == "" || n.ProductInfo == "" || n.Amount == "" {
		return fmt.Errorf("%w: missing notification fields", models.ErrValidation)
	}
	if ps.key == "" || ps.salt == "" {
		return fmt.Errorf("%w: gateway credentials not configured", models.ErrValidation)
	}

	expected := ps.computeHash(n)
	supplied := strings.ToLower(strings.TrimSpace(n.Hash))
	if subtle.ConstantTimeCompare([]byte(expected), []byte(supplied)) != 1 {
		return models.ErrHashMismatch
	}
	return nil
}

// computeHash builds the gateway's response-hash string: the shared salt,
// the claimed status, ten reserved empty fields, then the notification
// fields and the public key identifier, digested with SHA-512.
func (ps *PaymentService) computeHash(n *models.PaymentNotification) string {
	payload := fmt.Sprintf("%s|%s|||||||||||%s|%s|%s|%s|%s|%s",
		ps.salt, n.Status, n.Email, n.FirstName, n.ProductInfo, n.Amount, n.TxnID, ps.key)
	sum := sha512.Sum512([]byte(payload))
	return hex.EncodeToString(sum[:])
}

// HandleNotification authenticates a gateway notification and applies at
// most one order transition.
//
// A success status claims the order's stock (deferred orders reserve at
// confirmation) and moves PendingPayment -> Processing; any other status
// moves PendingPayment -> Cancelled with a note recording the claim. Both
// transitions are guarded compare-and-swaps, so redelivered notifications
// are no-ops once the status has moved on. If stock ran out between
// placement and confirmation the order is cancelled instead.
func (ps *PaymentService) HandleNotification(ctx context.Context, n *models.PaymentNotification) error {
	ctx, span := util.StartSpan(ctx, "PaymentService.HandleNotification")
	defer span.End()

	util.WebhookReceivedTotal.Inc()

	if err := ps.VerifyNotification(n); err != nil {
		if errors.Is(err, models.ErrHashMismatch) {
			// Security event: the payload did not come from the gateway
			// unaltered. No state is touched.
			util.WebhookRejectedTotal.WithLabelValues("hash_mismatch").Inc()
			ps.logger.Warn("Webhook hash mismatch",
				zap.String("txnid", n.TxnID),
				zap.String("claimed_status", n.Status))
		} else {
			util.WebhookRejectedTotal.WithLabelValues("invalid").Inc()
		}
		return err
	}

	ps.observeReplay(ctx, n.TxnID)

	var applied bool
	var from models.OrderStatus
	var note string

	if n.Status == models.GatewayStatusSuccess {
		var err error
		applied, from, err = ps.confirmOrder(ctx, n)
		if err != nil {
			return err
		}
	} else {
		note = fmt.Sprintf("Payment %s by user.", n.Status)
		expected := models.StatusPendingPayment
		err := store.TransactWithRetry(ctx, ps.store, ps.retry, func(tx store.Tx) error {
			var err error
			applied, from, err = store.ApplyTransition(ctx, tx, n.TxnID, models.StatusCancelled, &expected, note)
			return err
		})
		if err != nil {
			return err
		}
		if applied {
			util.OrdersCancelledTotal.Inc()
		}
	}

	if !applied {
		util.WebhookReplaysTotal.Inc()
		ps.logger.Info("Webhook transition was a no-op",
			zap.String("txnid", n.TxnID),
			zap.String("current_status", string(from)))
		return nil
	}

	target := models.StatusProcessing
	if n.Status != models.GatewayStatusSuccess {
		target = models.StatusCancelled
	}
	util.OrderTransitionsTotal.WithLabelValues(string(target)).Inc()
	ps.logger.Info("Webhook applied",
		zap.String("txnid", n.TxnID),
		zap.String("gateway_status", n.Status),
		zap.String("to", string(target)))

	ps.publishPaymentReceived(ctx, n)
	if ps.events != nil {
		event := &models.OrderStatusChangedEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.NewString(),
				EventType: models.EventTypeOrderStatusChanged,
				Timestamp: time.Now().UTC(),
			},
			OrderID: n.TxnID,
			From:    from,
			To:      target,
			Note:    note,
		}
		if err := ps.events.PublishOrderStatusChanged(ctx, event); err != nil {
			ps.logger.Error("Failed to publish OrderStatusChanged event", zap.Error(err))
		}
	}
	return nil
}

// confirmOrder claims the order's stock and moves it to Processing in one
// atomic unit. An order whose stock can no longer be covered is cancelled
// with an out-of-stock note; the caller still reports the notification as
// processed.
func (ps *PaymentService) confirmOrder(ctx context.Context, n *models.PaymentNotification) (applied bool, from models.OrderStatus, err error) {
	expected := models.StatusPendingPayment

	err = store.TransactWithRetry(ctx, ps.store, ps.retry, func(tx store.Tx) error {
		applied, from = false, ""

		order, err := tx.GetOrder(ctx, n.TxnID)
		if err != nil {
			return err
		}
		if order == nil {
			return models.ErrOrderNotFound
		}
		if order.Status != models.StatusPendingPayment {
			from = order.Status
			return nil
		}

		for _, item := range order.Items {
			product, err := tx.GetProduct(ctx, item.ProductID)
			if err != nil {
				return err
			}
			available := 0
			if product != nil {
				available = product.Stock
			}
			remaining := available - item.Quantity
			if remaining < 0 {
				return &models.InsufficientStockError{
					ProductID: item.ProductID,
					Name:      item.Name,
					Requested: item.Quantity,
					Available: available,
				}
			}
			if err := tx.UpdateProductStock(ctx, item.ProductID, remaining); err != nil {
				return err
			}
		}

		applied, from, err = store.ApplyTransition(ctx, tx, n.TxnID, models.StatusProcessing, &expected, "")
		return err
	})

	var stockErr *models.InsufficientStockError
	if errors.As(err, &stockErr) {
		ps.logger.Warn("Stock exhausted before payment confirmation, cancelling order",
			zap.String("txnid", n.TxnID),
			zap.Int64("product_id", stockErr.ProductID))
		return ps.cancelUnfulfillable(ctx, n.TxnID, stockErr)
	}
	return applied, from, err
}

func (ps *PaymentService) cancelUnfulfillable(ctx context.Context, orderID string, stockErr *models.InsufficientStockError) (bool, models.OrderStatus, error) {
	expected := models.StatusPendingPayment
	note := fmt.Sprintf("Payment received but %s was out of stock.", stockErr.Name)

	var applied bool
	var from models.OrderStatus
	err := store.TransactWithRetry(ctx, ps.store, ps.retry, func(tx store.Tx) error {
		var err error
		applied, from, err = store.ApplyTransition(ctx, tx, orderID, models.StatusCancelled, &expected, note)
		return err
	})
	if err != nil {
		return false, "", err
	}
	if applied {
		util.OrdersCancelledTotal.Inc()
		util.OrderTransitionsTotal.WithLabelValues(string(models.StatusCancelled)).Inc()
	}
	// Reported as not-applied-to-Processing; the cancel path logged above.
	return false, from, nil
}

func (ps *PaymentService) observeReplay(ctx context.Context, txnID string) {
	if ps.replays == nil {
		return
	}
	first, err := ps.replays.MarkNotificationSeen(ctx, txnID, replayMarkerTTL)
	if err != nil {
		ps.logger.Debug("Replay marker unavailable", zap.Error(err))
		return
	}
	if !first {
		ps.logger.Info("Duplicate webhook delivery observed", zap.String("txnid", txnID))
	}
}

func (ps *PaymentService) publishPaymentReceived(ctx context.Context, n *models.PaymentNotification) {
	if ps.events == nil {
		return
	}
	event := &models.PaymentReceivedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.NewString(),
			EventType: models.EventTypePaymentReceived,
			Timestamp: time.Now().UTC(),
		},
		OrderID:       n.TxnID,
		GatewayStatus: n.Status,
		Amount:        n.Amount,
	}
	if err := ps.events.PublishPaymentReceived(ctx, event); err != nil {
		ps.logger.Error("Failed to publish PaymentReceived event", zap.Error(err))
	}
}
