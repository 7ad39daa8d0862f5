package models

import "time"

// Event types
const (
	EventTypeOrderPlaced        = "ORDER_PLACED"
	EventTypeOrderStatusChanged = "ORDER_STATUS_CHANGED"
	EventTypePaymentReceived    = "PAYMENT_RECEIVED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderPlacedEvent published when an order is committed
type OrderPlacedEvent struct {
	BaseEvent
	OrderID string      `json:"order_id"`
	Email   string      `json:"email"`
	Total   string      `json:"total"`
	Status  OrderStatus `json:"status"`
	Items   []OrderItem `json:"items"`
}

// OrderStatusChangedEvent published on every applied status transition,
// whether driven by the gateway or an operator
type OrderStatusChangedEvent struct {
	BaseEvent
	OrderID string      `json:"order_id"`
	From    OrderStatus `json:"from"`
	To      OrderStatus `json:"to"`
	Note    string      `json:"note,omitempty"`
}

// PaymentReceivedEvent published after a gateway notification is
// authenticated and applied
type PaymentReceivedEvent struct {
	BaseEvent
	OrderID       string `json:"order_id"`
	GatewayStatus string `json:"gateway_status"`
	Amount        string `json:"amount"`
}
