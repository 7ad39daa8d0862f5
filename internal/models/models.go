package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product represents a purchasable item in a store's catalog.
// Stock is mutated only through the order transaction or an explicit
// administrative override.
type Product struct {
	ID            int64            `db:"id" json:"id"`
	StoreID       int64            `db:"store_id" json:"store_id"`
	Name          string           `db:"name" json:"name"`
	ImageURL      string           `db:"image_url" json:"image_url"`
	Price         decimal.Decimal  `db:"price" json:"price"`
	DiscountPrice *decimal.Decimal `db:"discount_price" json:"discount_price,omitempty"`
	Stock         int              `db:"stock" json:"stock"`
	Category      string           `db:"category" json:"category"`
}

// EffectivePrice returns the discount price when one is set, otherwise the
// regular unit price.
func (p *Product) EffectivePrice() decimal.Decimal {
	if p.DiscountPrice != nil {
		return *p.DiscountPrice
	}
	return p.Price
}

// OrderItem is a snapshot of a product at purchase time. Later catalog or
// price changes must not alter it.
type OrderItem struct {
	ProductID     int64            `db:"product_id" json:"product_id"`
	Name          string           `db:"name" json:"name"`
	ImageURL      string           `db:"image_url" json:"image_url"`
	UnitPrice     decimal.Decimal  `db:"unit_price" json:"unit_price"`
	DiscountPrice *decimal.Decimal `db:"discount_price" json:"discount_price,omitempty"`
	Quantity      int              `db:"quantity" json:"quantity"`
}

// Order is a persisted purchase record. Orders are never deleted; only the
// status (and notes) move after creation.
type Order struct {
	ID        string          `db:"id" json:"id"`
	Email     string          `db:"email" json:"email"`
	Phone     string          `db:"phone" json:"phone"`
	Items     []OrderItem     `db:"-" json:"items"`
	Subtotal  decimal.Decimal `db:"subtotal" json:"subtotal"`
	Discount  decimal.Decimal `db:"discount" json:"discount"`
	Taxes     decimal.Decimal `db:"taxes" json:"taxes"`
	Total     decimal.Decimal `db:"total" json:"total"`
	Status    OrderStatus     `db:"status" json:"status"`
	Notes     string          `db:"notes" json:"notes,omitempty"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}

// DiscountKind tags the two discount variants.
type DiscountKind string

const (
	DiscountPercentage DiscountKind = "percentage"
	DiscountFixed      DiscountKind = "fixed"
)

// DiscountCode is a redeemable code. Codes are stored upper-cased and looked
// up case-insensitively. Value must be > 0.
type DiscountCode struct {
	Code  string          `db:"code" json:"code"`
	Kind  DiscountKind    `db:"kind" json:"kind"`
	Value decimal.Decimal `db:"value" json:"value"`
}

// Apply returns the discount amount for the given subtotal, clamped to
// [0, subtotal].
func (d *DiscountCode) Apply(subtotal decimal.Decimal) decimal.Decimal {
	var amount decimal.Decimal
	switch d.Kind {
	case DiscountPercentage:
		amount = subtotal.Mul(d.Value).Div(decimal.NewFromInt(100))
	case DiscountFixed:
		amount = d.Value
	}
	if amount.GreaterThan(subtotal) {
		amount = subtotal
	}
	if amount.IsNegative() {
		amount = decimal.Zero
	}
	return amount
}

// PaymentNotification is an inbound gateway callback. It is transient: it is
// authenticated, used to drive one order transition, and never persisted.
type PaymentNotification struct {
	Status      string `form:"status" json:"status"`
	TxnID       string `form:"txnid" json:"txnid"`
	Hash        string `form:"hash" json:"hash"`
	Email       string `form:"email" json:"email"`
	FirstName   string `form:"firstname" json:"firstname"`
	ProductInfo string `form:"productinfo" json:"productinfo"`
	Amount      string `form:"amount" json:"amount"`
}

// GatewayStatusSuccess is the claimed status the gateway sends for a
// completed payment. Any other authenticated status cancels the order.
const GatewayStatusSuccess = "success"
