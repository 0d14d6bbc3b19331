package downloader

import (
	"context"
	"time"
)

// Backoff is the retry schedule for thumbnail fetches. Transient failures
// (5xx, 429, network errors) are retried up to MaxAttempts times in total,
// waiting InitialDelay after the first failure and Factor times longer after
// each following one, never more than MaxDelay.
type Backoff struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Factor       float64
}

// Delay returns the wait that follows the given failed attempt, counted from 1.
func (b Backoff) Delay(attempt int) time.Duration {
	factor := b.Factor
	if factor < 1 {
		factor = 1
	}
	d := float64(b.InitialDelay)
	for i := 1; i < attempt; i++ {
		d *= factor
		if b.MaxDelay > 0 && d >= float64(b.MaxDelay) {
			return b.MaxDelay
		}
	}
	if b.MaxDelay > 0 && time.Duration(d) > b.MaxDelay {
		return b.MaxDelay
	}
	return time.Duration(d)
}

func (b Backoff) attempts() int {
	if b.MaxAttempts < 1 {
		return 1
	}
	return b.MaxAttempts
}

// retryFetch runs fetch until it succeeds, fails with an error retryable
// rejects, or runs out of attempts. It also returns how many attempts ran.
// Cancelling ctx during a wait returns ctx.Err().
func retryFetch(
	ctx context.Context,
	b Backoff,
	fetch func(attempt int) (*Response, error),
	retryable func(error) bool,
) (*Response, int, error) {
	for attempt := 1; ; attempt++ {
		resp, err := fetch(attempt)
		if err == nil {
			return resp, attempt, nil
		}
		if !retryable(err) || attempt >= b.attempts() {
			return nil, attempt, err
		}

		timer := time.NewTimer(b.Delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, attempt, ctx.Err()
		case <-timer.C:
		}
	}
}
