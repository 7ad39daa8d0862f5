package models

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	StatusPendingPayment OrderStatus = "Pending Payment"
	StatusProcessing     OrderStatus = "Processing"
	StatusShipped        OrderStatus = "Shipped"
	StatusDelivered      OrderStatus = "Delivered"
	StatusCancelled      OrderStatus = "Cancelled"
)

// allowedTransitions is the full forward-only transition table.
// Delivered and Cancelled are terminal.
var allowedTransitions = map[OrderStatus][]OrderStatus{
	StatusPendingPayment: {StatusProcessing, StatusCancelled},
	StatusProcessing:     {StatusShipped, StatusCancelled},
	StatusShipped:        {StatusDelivered},
	StatusDelivered:      {},
	StatusCancelled:      {},
}

// Valid reports whether s is a known order status.
func (s OrderStatus) Valid() bool {
	_, ok := allowedTransitions[s]
	return ok
}

// CanTransitionTo reports whether the table permits moving from s to target.
func (s OrderStatus) CanTransitionTo(target OrderStatus) bool {
	for _, t := range allowedTransitions[s] {
		if t == target {
			return true
		}
	}
	return false
}
