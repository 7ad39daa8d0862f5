package service

import (
	"context"
	"fmt"
	"strings"

	"storefront-service/internal/models"
	"storefront-service/internal/store"
)

// DiscountValidator looks up discount codes and confirms they are usable.
// It mutates nothing.
type DiscountValidator struct {
	store store.Store
}

// NewDiscountValidator creates a new discount validator.
func NewDiscountValidator(s store.Store) *DiscountValidator {
	return &DiscountValidator{store: s}
}

// Validate normalizes the raw code, looks it up and returns its effect.
// Unknown codes fail with ErrDiscountNotFound.
func (v *DiscountValidator) Validate(ctx context.Context, raw string) (*models.DiscountCode, error) {
	code := strings.ToUpper(strings.TrimSpace(raw))
	if code == "" {
		return nil, fmt.Errorf("%w: empty discount code", models.ErrValidation)
	}

	dc, err := v.store.GetDiscountCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if !dc.Value.IsPositive() {
		return nil, fmt.Errorf("%w: discount %s has non-positive value", models.ErrValidation, dc.Code)
	}
	return dc, nil
}
