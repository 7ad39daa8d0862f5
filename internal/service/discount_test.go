package service

import (
	"context"
	"testing"

	"storefront-service/internal/models"
	"storefront-service/internal/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscountValidatorNormalizesCode(t *testing.T) {
	s := store.NewMemStore()
	ctx := context.Background()
	require.NoError(t, s.PutDiscountCode(ctx, &models.DiscountCode{
		Code:  "GLOW20",
		Kind:  models.DiscountPercentage,
		Value: decimal.NewFromInt(20),
	}))

	v := NewDiscountValidator(s)
	for _, raw := range []string{"GLOW20", "glow20", "  Glow20  "} {
		dc, err := v.Validate(ctx, raw)
		require.NoError(t, err, "raw code %q", raw)
		assert.Equal(t, "GLOW20", dc.Code)
	}
}

func TestDiscountValidatorUnknownCode(t *testing.T) {
	v := NewDiscountValidator(store.NewMemStore())

	_, err := v.Validate(context.Background(), "NOPE")
	assert.ErrorIs(t, err, models.ErrDiscountNotFound)
}

func TestDiscountValidatorEmptyCode(t *testing.T) {
	v := NewDiscountValidator(store.NewMemStore())

	_, err := v.Validate(context.Background(), "   ")
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestDiscountValidatorNonPositiveValue(t *testing.T) {
	s := store.NewMemStore()
	ctx := context.Background()
	require.NoError(t, s.PutDiscountCode(ctx, &models.DiscountCode{
		Code:  "BROKEN",
		Kind:  models.DiscountFixed,
		Value: decimal.Zero,
	}))

	_, err := NewDiscountValidator(s).Validate(ctx, "BROKEN")
	assert.ErrorIs(t, err, models.ErrValidation)
}
