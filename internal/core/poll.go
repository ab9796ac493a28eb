package core

import (
	"context"
	"fmt"
	"time"
)

// Poll repeatedly calls fn until it reports done, sleeping between attempts
// with exponential backoff starting at interval and capped at max. The
// context bounds the whole wait: when it expires the result is ErrPollTimeout,
// which callers can tell apart from fn failing.
func Poll(ctx context.Context, interval, max time.Duration, fn func(context.Context) (bool, error)) error {
	delay := interval
	for {
		done, err := fn(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("%w: %v", ErrPollTimeout, ctx.Err())
			}
			return err
		}
		if done {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", ErrPollTimeout, ctx.Err())
		case <-time.After(delay):
		}

		delay *= 2
		if delay > max {
			delay = max
		}
	}
}
