package exchange

import (
	"context"
	"time"
)

// PlaceProtectiveOrder wraps a protective-order placement (SL or TP,
// created after an entry fill) in the bounded retry of spec §4.5: 5
// attempts, delay between attempts increasing linearly as 2*n seconds.
// Returns the last error if every attempt fails.
func PlaceProtectiveOrder(ctx context.Context, cfg RetryConfig, place func(ctx context.Context) (*OrderRef, error)) (*OrderRef, error) {
	if cfg.MaxAttempts <= 0 {
		cfg = DefaultProtectiveRetry
	}

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		ref, err := place(ctx)
		if err == nil {
			return ref, nil
		}
		lastErr = err

		if attempt == cfg.MaxAttempts {
			break
		}

		delay := time.Duration(attempt) * cfg.BaseDelay
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil, lastErr
}
