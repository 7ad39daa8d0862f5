package store

import (
	"context"
	"testing"
	"time"

	"storefront-service/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedProduct(t *testing.T, s *MemStore, id int64, stock int) {
	t.Helper()
	err := s.PutProduct(context.Background(), &models.Product{
		ID:      id,
		StoreID: 1,
		Name:    "Body Oil",
		Price:   decimal.NewFromInt(500),
		Stock:   stock,
	})
	require.NoError(t, err)
}

func seedOrder(t *testing.T, s *MemStore, id string, status models.OrderStatus) {
	t.Helper()
	err := s.Transact(context.Background(), func(tx Tx) error {
		return tx.CreateOrder(context.Background(), &models.Order{
			ID:        id,
			Email:     "a@example.com",
			Status:    status,
			Subtotal:  decimal.NewFromInt(500),
			Total:     decimal.NewFromInt(500),
			CreatedAt: time.Now(),
		})
	})
	require.NoError(t, err)
}

func TestTransactCommitsAllWrites(t *testing.T) {
	s := NewMemStore()
	seedProduct(t, s, 1, 10)
	ctx := context.Background()

	err := s.Transact(ctx, func(tx Tx) error {
		p, err := tx.GetProduct(ctx, 1)
		require.NoError(t, err)
		if err := tx.UpdateProductStock(ctx, 1, p.Stock-3); err != nil {
			return err
		}
		return tx.CreateOrder(ctx, &models.Order{ID: "ord-1", Status: models.StatusProcessing})
	})
	require.NoError(t, err)

	p, err := s.GetProduct(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 7, p.Stock)

	o, err := s.GetOrder(ctx, "ord-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusProcessing, o.Status)
}

func TestListOrdersOmitsItemSnapshots(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	err := s.Transact(ctx, func(tx Tx) error {
		return tx.CreateOrder(ctx, &models.Order{
			ID:     "ord-1",
			Status: models.StatusProcessing,
			Items: []models.OrderItem{
				{ProductID: 1, Name: "Body Oil", UnitPrice: decimal.NewFromInt(500), Quantity: 2},
			},
			CreatedAt: time.Now(),
		})
	})
	require.NoError(t, err)

	orders, err := s.ListOrders(ctx)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Empty(t, orders[0].Items, "listings are summary-only")

	o, err := s.GetOrder(ctx, "ord-1")
	require.NoError(t, err)
	assert.Len(t, o.Items, 1, "the full record still carries its snapshots")
}

func TestTransactRollsBackOnError(t *testing.T) {
	s := NewMemStore()
	seedProduct(t, s, 1, 10)
	ctx := context.Background()

	err := s.Transact(ctx, func(tx Tx) error {
		if err := tx.UpdateProductStock(ctx, 1, 0); err != nil {
			return err
		}
		if err := tx.CreateOrder(ctx, &models.Order{ID: "ord-1"}); err != nil {
			return err
		}
		return assert.AnError
	})
	require.Error(t, err)

	p, err := s.GetProduct(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 10, p.Stock, "aborted transaction must leave stock untouched")

	_, err = s.GetOrder(ctx, "ord-1")
	assert.ErrorIs(t, err, models.ErrOrderNotFound)
}

func TestTransactDetectsConflicts(t *testing.T) {
	s := NewMemStore()
	seedProduct(t, s, 1, 10)
	ctx := context.Background()

	err := s.Transact(ctx, func(tx Tx) error {
		if _, err := tx.GetProduct(ctx, 1); err != nil {
			return err
		}
		// Concurrent writer commits between our read and our commit.
		require.NoError(t, s.SetProductStock(ctx, 1, 2))
		return tx.UpdateProductStock(ctx, 1, 9)
	})
	assert.ErrorIs(t, err, ErrConflict)

	p, err := s.GetProduct(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, p.Stock, "conflicting transaction must not overwrite the concurrent commit")
}

func TestTransactWithRetryRecoversFromConflicts(t *testing.T) {
	s := NewMemStore()
	seedProduct(t, s, 1, 10)
	ctx := context.Background()

	conflicts := 0
	poisoned := true
	policy := RetryPolicy{
		Attempts:    5,
		BaseBackoff: time.Millisecond,
		OnConflict:  func() { conflicts++ },
	}

	err := TransactWithRetry(ctx, s, policy, func(tx Tx) error {
		p, err := tx.GetProduct(ctx, 1)
		if err != nil {
			return err
		}
		if poisoned {
			poisoned = false
			require.NoError(t, s.SetProductStock(ctx, 1, p.Stock))
		}
		return tx.UpdateProductStock(ctx, 1, p.Stock-1)
	})
	require.NoError(t, err)
	assert.Equal(t, 1, conflicts)

	p, err := s.GetProduct(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 9, p.Stock)
}

func TestTransactWithRetryExhaustsBudget(t *testing.T) {
	s := NewMemStore()
	seedProduct(t, s, 1, 10)
	ctx := context.Background()

	policy := RetryPolicy{Attempts: 3, BaseBackoff: time.Millisecond}
	err := TransactWithRetry(ctx, s, policy, func(tx Tx) error {
		p, err := tx.GetProduct(ctx, 1)
		if err != nil {
			return err
		}
		// Every attempt loses the race.
		require.NoError(t, s.SetProductStock(ctx, 1, p.Stock))
		return tx.UpdateProductStock(ctx, 1, p.Stock-1)
	})
	assert.ErrorIs(t, err, models.ErrContentionExceeded)
}

func TestApplyTransitionChain(t *testing.T) {
	s := NewMemStore()
	seedOrder(t, s, "ord-1", models.StatusPendingPayment)
	ctx := context.Background()

	for _, target := range []models.OrderStatus{
		models.StatusProcessing,
		models.StatusShipped,
		models.StatusDelivered,
	} {
		err := s.Transact(ctx, func(tx Tx) error {
			applied, _, err := ApplyTransition(ctx, tx, "ord-1", target, nil, "")
			require.NoError(t, err)
			assert.True(t, applied)
			return nil
		})
		require.NoError(t, err)
	}

	o, err := s.GetOrder(ctx, "ord-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusDelivered, o.Status)
}

func TestApplyTransitionRejectsTerminalStates(t *testing.T) {
	cases := []struct {
		name string
		from models.OrderStatus
	}{
		{"delivered is terminal", models.StatusDelivered},
		{"cancelled is terminal", models.StatusCancelled},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := NewMemStore()
			seedOrder(t, s, "ord-1", tc.from)
			ctx := context.Background()

			err := s.Transact(ctx, func(tx Tx) error {
				_, _, err := ApplyTransition(ctx, tx, "ord-1", models.StatusProcessing, nil, "")
				return err
			})
			assert.ErrorIs(t, err, models.ErrInvalidTransition)

			o, getErr := s.GetOrder(ctx, "ord-1")
			require.NoError(t, getErr)
			assert.Equal(t, tc.from, o.Status, "state must be unchanged after a rejected transition")
		})
	}
}

func TestApplyTransitionGuardIsIdempotent(t *testing.T) {
	s := NewMemStore()
	seedOrder(t, s, "ord-1", models.StatusProcessing)
	ctx := context.Background()

	// Guard expects PendingPayment but the order already moved on: no-op
	// success, not an error.
	expected := models.StatusPendingPayment
	err := s.Transact(ctx, func(tx Tx) error {
		applied, from, err := ApplyTransition(ctx, tx, "ord-1", models.StatusProcessing, &expected, "")
		require.NoError(t, err)
		assert.False(t, applied)
		assert.Equal(t, models.StatusProcessing, from)
		return nil
	})
	require.NoError(t, err)
}

func TestApplyTransitionUnknownOrder(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	err := s.Transact(ctx, func(tx Tx) error {
		_, _, err := ApplyTransition(ctx, tx, "missing", models.StatusProcessing, nil, "")
		return err
	})
	assert.ErrorIs(t, err, models.ErrOrderNotFound)
}

func TestApplyTransitionRecordsNote(t *testing.T) {
	s := NewMemStore()
	seedOrder(t, s, "ord-1", models.StatusPendingPayment)
	ctx := context.Background()

	err := s.Transact(ctx, func(tx Tx) error {
		_, _, err := ApplyTransition(ctx, tx, "ord-1", models.StatusCancelled, nil, "Payment failure by user.")
		return err
	})
	require.NoError(t, err)

	o, err := s.GetOrder(ctx, "ord-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, o.Status)
	assert.Equal(t, "Payment failure by user.", o.Notes)
}
