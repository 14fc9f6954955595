package sync

import "time"

const (
	backoffBase = 2 * time.Second
	backoffMax  = 5 * time.Minute
)

// backoffDelay computes the exponential retry delay for the given number of
// consecutive failed passes. Formula: base * 2^(failures-1), capped.
func backoffDelay(failures int) time.Duration {
	if failures < 1 {
		failures = 1
	}
	delay := backoffBase
	for i := 1; i < failures; i++ {
		delay *= 2
		if delay >= backoffMax {
			return backoffMax
		}
	}
	if delay > backoffMax {
		return backoffMax
	}
	return delay
}
