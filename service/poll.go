package service

import (
	"context"
	"time"
)

type PollOptions struct {
	Interval    time.Duration
	MaxAttempts int
	Op          string
}

// PollFunc reports done=true once the awaited job is terminal. A non-nil
// error stops polling and is returned as is.
type PollFunc func(ctx context.Context, attempt int) (done bool, err error)

// PollUntil waits one interval per attempt, then counts the attempt and
// gives up with a TimeoutError once the ceiling is reached, before calling
// check for that attempt.
func PollUntil(ctx context.Context, opts PollOptions, check PollFunc) error {
	if opts.Interval <= 0 {
		opts.Interval = time.Second
	}
	op := opts.Op
	if op == "" {
		op = "poll"
	}

	ticker := time.NewTicker(opts.Interval)
	defer ticker.Stop()

	attempts := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			attempts++
			if opts.MaxAttempts > 0 && attempts >= opts.MaxAttempts {
				return &TimeoutError{Op: op, Attempts: attempts}
			}
			done, err := check(ctx, attempts)
			if err != nil {
				return err
			}
			if done {
				return nil
			}
		}
	}
}
