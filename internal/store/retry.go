package store

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"storefront-service/internal/models"
)

// RetryPolicy bounds the optimistic-transaction retry loop. Attempts is the
// total number of tries, not the number of retries.
type RetryPolicy struct {
	Attempts    int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration

	// OnConflict, when set, is invoked once per detected write conflict
	// before the backoff sleep. Used for instrumentation.
	OnConflict func()
}

// DefaultRetryPolicy is five attempts with jittered exponential backoff.
var DefaultRetryPolicy = RetryPolicy{
	Attempts:    5,
	BaseBackoff: 10 * time.Millisecond,
	MaxBackoff:  250 * time.Millisecond,
}

// TransactWithRetry runs fn through s.Transact, retrying the whole body on
// ErrConflict up to the policy's attempt budget. Non-conflict errors abort
// immediately. Exhausting the budget returns ErrContentionExceeded.
func TransactWithRetry(ctx context.Context, s Store, policy RetryPolicy, fn func(tx Tx) error) error {
	if policy.Attempts < 1 {
		policy = DefaultRetryPolicy
	}

	var err error
	for attempt := 0; attempt < policy.Attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoff(policy, attempt)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err = s.Transact(ctx, fn)
		if !errors.Is(err, ErrConflict) {
			return err
		}
		if policy.OnConflict != nil {
			policy.OnConflict()
		}
	}

	return fmt.Errorf("%w after %d attempts: %v", models.ErrContentionExceeded, policy.Attempts, err)
}

// backoff returns an exponentially growing, jittered delay for the given
// attempt number, capped at MaxBackoff.
func backoff(policy RetryPolicy, attempt int) time.Duration {
	d := policy.BaseBackoff << uint(attempt-1)
	if policy.MaxBackoff > 0 && d > policy.MaxBackoff {
		d = policy.MaxBackoff
	}
	// Full jitter keeps colliding transactions from retrying in lockstep.
	return time.Duration(rand.Int63n(int64(d) + 1))
}
