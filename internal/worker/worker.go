package worker

import (
	"context"

	"storefront-service/internal/broker"
	"storefront-service/internal/models"
	"storefront-service/internal/util"

	"go.uber.org/zap"
)

// NotificationWorker consumes order events and dispatches customer
// notifications for status changes. Delivery is a stub: the hook point is
// real, the email provider is not wired up yet.
type NotificationWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	logger       *zap.Logger
}

// NewNotificationWorker creates a worker bound to a consumer.
func NewNotificationWorker(consumer *broker.Consumer) *NotificationWorker {
	w := &NotificationWorker{
		consumer: consumer,
		logger:   util.GetLogger(),
	}

	eventHandler := broker.NewEventHandler()
	eventHandler.OnOrderStatusChanged(w.handleStatusChanged)
	eventHandler.OnPaymentReceived(w.handlePaymentReceived)
	w.eventHandler = eventHandler

	return w
}

// Start consumes events until the context is cancelled.
func (w *NotificationWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting notification worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop closes the underlying consumer.
func (w *NotificationWorker) Stop() error {
	w.logger.Info("Stopping notification worker")
	return w.consumer.Close()
}

func (w *NotificationWorker) handleStatusChanged(ctx context.Context, event *models.OrderStatusChangedEvent) error {
	w.logger.Info("Dispatching status notification",
		zap.String("order_id", event.OrderID),
		zap.String("from", string(event.From)),
		zap.String("to", string(event.To)))

	util.NotificationsSentTotal.WithLabelValues(string(event.To)).Inc()
	return nil
}

func (w *NotificationWorker) handlePaymentReceived(ctx context.Context, event *models.PaymentReceivedEvent) error {
	w.logger.Info("Payment notification recorded",
		zap.String("order_id", event.OrderID),
		zap.String("gateway_status", event.GatewayStatus))
	return nil
}
